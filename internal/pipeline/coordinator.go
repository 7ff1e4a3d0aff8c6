package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/willsarg/Sundai-LaundryAlert/internal/audio"
	"github.com/willsarg/Sundai-LaundryAlert/internal/energy"
	"github.com/willsarg/Sundai-LaundryAlert/internal/event"
	"github.com/willsarg/Sundai-LaundryAlert/internal/peaks"
	"github.com/willsarg/Sundai-LaundryAlert/internal/rhythm"
)

// State is the lifecycle position of one per-clip run.
// Received → Decoded → Analyzed → Reported → Cleaned, with Failed reachable
// from any non-terminal state. Cleaned and Failed are terminal; Reported is
// also terminal when the best-effort cleanup fails, since a failed delete
// never reverts a reported run.
type State string

const (
	StateReceived State = "received"
	StateDecoded  State = "decoded"
	StateAnalyzed State = "analyzed"
	StateReported State = "reported"
	StateCleaned  State = "cleaned"
	StateFailed   State = "failed"
)

// Clip is one audio artifact submitted for classification, as handed over
// by an ingestion trigger.
type Clip struct {
	Filename   string
	CapturedAt time.Time
	Data       []byte
}

// Result is the terminal outcome of one run
type Result struct {
	RunID    string
	State    State
	Event    *event.ClassificationEvent
	Err      error
	Duration time.Duration
}

// Reporter hands a composed event to the external reporting collaborator
type Reporter interface {
	Report(ctx context.Context, ev *event.ClassificationEvent) error
}

// Cleaner signals deletion of a source artifact to the external store
type Cleaner interface {
	Delete(ctx context.Context, filename string) error
}

// Config contains coordinator policy configuration
type Config struct {
	// ClassifySilent runs the peak and rhythm stages even for clips the
	// energy analyzer classified as silent, making knocking in an
	// otherwise-quiet clip detectable.
	ClassifySilent bool

	// RunTimeout bounds one complete per-clip run.
	RunTimeout time.Duration
}

// Coordinator orchestrates the classification pipeline for one clip at a
// time: decode, analyze, compose, report, clean up. Each run is independent
// and self-contained; the only shared state is the read-only configuration
// and the run counters.
type Coordinator struct {
	config     Config
	analyzer   *energy.Analyzer
	detector   *peaks.Detector
	classifier *rhythm.Classifier
	reporter   Reporter
	cleaner    Cleaner
	logger     *slog.Logger

	// Statistics
	runsStarted    uint64
	runsCompleted  uint64
	runsFailed     uint64
	decodeFailures uint64
	knocksDetected uint64

	mu sync.RWMutex
}

// CoordinatorStats represents coordinator statistics
type CoordinatorStats struct {
	RunsStarted    uint64 `json:"runs_started"`
	RunsCompleted  uint64 `json:"runs_completed"`
	RunsFailed     uint64 `json:"runs_failed"`
	DecodeFailures uint64 `json:"decode_failures"`
	KnocksDetected uint64 `json:"knocks_detected"`
}

// NewCoordinator creates a pipeline coordinator
func NewCoordinator(config Config, analyzer *energy.Analyzer, detector *peaks.Detector,
	classifier *rhythm.Classifier, reporter Reporter, cleaner Cleaner, logger *slog.Logger) (*Coordinator, error) {

	if analyzer == nil || detector == nil || classifier == nil {
		return nil, fmt.Errorf("analyzer, detector and classifier are required")
	}

	if reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}

	if cleaner == nil {
		return nil, fmt.Errorf("cleaner is required")
	}

	if config.RunTimeout <= 0 {
		config.RunTimeout = 30 * time.Second
	}

	return &Coordinator{
		config:     config,
		analyzer:   analyzer,
		detector:   detector,
		classifier: classifier,
		reporter:   reporter,
		cleaner:    cleaner,
		logger:     logger,
	}, nil
}

// Process runs the full pipeline for one clip. The run either composes and
// reports a complete event or none at all; partial results are never
// emitted. Reprocessing the same bytes is a pure deterministic
// recomputation, so duplicate delivery of an artifact is tolerated.
func (c *Coordinator) Process(ctx context.Context, clip Clip) Result {
	runID := uuid.New().String()
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.config.RunTimeout)
	defer cancel()

	c.mu.Lock()
	c.runsStarted++
	c.mu.Unlock()

	logger := c.logger.With(
		slog.String("run_id", runID),
		slog.String("filename", clip.Filename),
	)

	logger.Debug("Run received", slog.Int("size_bytes", len(clip.Data)))

	// Received → Decoded
	decoded, err := audio.Decode(clip.Data)
	if err != nil {
		var decodeErr *audio.DecodeError
		if errors.As(err, &decodeErr) {
			c.mu.Lock()
			c.decodeFailures++
			c.mu.Unlock()
		}

		logger.Error("Clip decode failed", slog.String("error", err.Error()))

		// A corrupt file should not linger: attempt cleanup even though the
		// run failed before classification.
		c.attemptCleanup(ctx, clip.Filename, logger)

		return c.fail(runID, startTime, fmt.Errorf("decode: %w", err))
	}

	logger.Debug("Clip decoded",
		slog.Int("samples", len(decoded.Samples)),
		slog.Int("sample_rate", decoded.SampleRate),
		slog.Int("channels", decoded.Channels),
		slog.Float64("duration", decoded.Duration.Seconds()),
	)

	// Decoded → Analyzed
	profile, err := c.analyzer.Analyze(decoded.Samples, decoded.SampleRate)
	if err != nil {
		logger.Error("Energy analysis failed", slog.String("error", err.Error()))
		return c.fail(runID, startTime, fmt.Errorf("energy analysis: %w", err))
	}

	var verdict rhythm.Verdict
	if profile.HasSound || c.config.ClassifySilent {
		peakSet, err := c.detector.Detect(decoded.Samples, decoded.SampleRate)
		if err != nil {
			logger.Error("Peak detection failed", slog.String("error", err.Error()))
			return c.fail(runID, startTime, fmt.Errorf("peak detection: %w", err))
		}

		verdict = c.classifier.Classify(peakSet, decoded.Duration)

		logger.Debug("Clip analyzed",
			slog.Bool("has_sound", profile.HasSound),
			slog.Float64("aggregate_rms", profile.Aggregate),
			slog.Int("peaks", len(peakSet)),
			slog.Bool("is_knocking", verdict.IsKnocking),
			slog.Float64("confidence", verdict.Confidence),
		)
	}

	// An aborted run must never report a partially computed result.
	if ctx.Err() != nil {
		logger.Warn("Run aborted before reporting", slog.String("error", ctx.Err().Error()))
		return c.fail(runID, startTime, ctx.Err())
	}

	ev := event.Compose(event.ClipMeta{
		Filename:   clip.Filename,
		CapturedAt: clip.CapturedAt,
	}, profile, verdict, time.Now())

	if verdict.IsKnocking {
		c.mu.Lock()
		c.knocksDetected++
		c.mu.Unlock()
	}

	// Analyzed → Reported
	if err := c.reporter.Report(ctx, ev); err != nil {
		// Keep the event in the log so exhausted retries never silently
		// lose data.
		payload, _ := json.Marshal(ev)
		logger.Error("Event reporting failed",
			slog.String("error", err.Error()),
			slog.String("event", string(payload)),
		)
		return c.fail(runID, startTime, fmt.Errorf("reporting: %w", err))
	}

	logger.Info("Event reported",
		slog.Bool("has_sound", ev.HasSound),
		slog.Bool("is_knocking", ev.IsKnocking),
		slog.Float64("confidence", ev.Confidence),
	)

	// Reported → Cleaned (best effort)
	finalState := StateCleaned
	if err := c.cleaner.Delete(ctx, clip.Filename); err != nil {
		logger.Warn("Artifact cleanup failed",
			slog.String("error", err.Error()),
		)
		finalState = StateReported
	}

	c.mu.Lock()
	c.runsCompleted++
	c.mu.Unlock()

	return Result{
		RunID:    runID,
		State:    finalState,
		Event:    ev,
		Duration: time.Since(startTime),
	}
}

// attemptCleanup deletes an artifact on a best-effort basis after a failed
// run. Uses a fresh short deadline so an already-expired run context does
// not block the delete.
func (c *Coordinator) attemptCleanup(ctx context.Context, filename string, logger *slog.Logger) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}

	cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.cleaner.Delete(cleanupCtx, filename); err != nil {
		logger.Warn("Cleanup of failed clip did not succeed",
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) fail(runID string, startTime time.Time, err error) Result {
	c.mu.Lock()
	c.runsFailed++
	c.mu.Unlock()

	return Result{
		RunID:    runID,
		State:    StateFailed,
		Err:      err,
		Duration: time.Since(startTime),
	}
}

// GetStats returns current coordinator statistics
func (c *Coordinator) GetStats() CoordinatorStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CoordinatorStats{
		RunsStarted:    c.runsStarted,
		RunsCompleted:  c.runsCompleted,
		RunsFailed:     c.runsFailed,
		DecodeFailures: c.decodeFailures,
		KnocksDetected: c.knocksDetected,
	}
}
