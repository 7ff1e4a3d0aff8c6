package event

import (
	"fmt"
	"time"

	"github.com/willsarg/Sundai-LaundryAlert/internal/energy"
	"github.com/willsarg/Sundai-LaundryAlert/internal/rhythm"
)

// ClipMeta is the metadata the ingestion collaborator supplies with each
// clip. CapturedAt is the device-side capture time; ProcessedAt is normally
// zero and only set when an upstream stage already stamped the clip.
type ClipMeta struct {
	Filename    string
	CapturedAt  time.Time
	ProcessedAt time.Time
}

// ClassificationEvent is the wire record handed to the reporting
// collaborator. It is created once per clip, immutable thereafter.
// The is_speech and is_voice fields are reserved for future classifiers
// and always false.
type ClassificationEvent struct {
	Filename    string    `json:"filename"`
	Timestamp   time.Time `json:"timestamp"`
	HasSound    bool      `json:"has_sound"`
	IsKnocking  bool      `json:"is_knocking"`
	IsSpeech    bool      `json:"is_speech"`
	IsVoice     bool      `json:"is_voice"`
	Confidence  float64   `json:"confidence"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Compose merges clip metadata, the energy profile and the rhythm verdict
// into one event. A processing timestamp already present in the metadata is
// preserved rather than overwritten, so composition is idempotent. Performs
// no I/O.
func Compose(meta ClipMeta, profile *energy.Profile, verdict rhythm.Verdict, now time.Time) *ClassificationEvent {
	processedAt := meta.ProcessedAt
	if processedAt.IsZero() {
		processedAt = now
	}

	return &ClassificationEvent{
		Filename:    meta.Filename,
		Timestamp:   meta.CapturedAt.UTC(),
		HasSound:    profile.HasSound,
		IsKnocking:  verdict.IsKnocking,
		IsSpeech:    false, // reserved
		IsVoice:     false, // reserved
		Confidence:  verdict.Confidence,
		ProcessedAt: processedAt.UTC(),
	}
}

// Validate checks the fields the reporting collaborator requires for
// acceptance.
func (e *ClassificationEvent) Validate() error {
	if e.Filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}

	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0, 1], got %f", e.Confidence)
	}

	return nil
}
