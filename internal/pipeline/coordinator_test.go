package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/willsarg/Sundai-LaundryAlert/internal/audio"
	"github.com/willsarg/Sundai-LaundryAlert/internal/energy"
	"github.com/willsarg/Sundai-LaundryAlert/internal/event"
	"github.com/willsarg/Sundai-LaundryAlert/internal/peaks"
	"github.com/willsarg/Sundai-LaundryAlert/internal/rhythm"
)

type fakeReporter struct {
	mu     sync.Mutex
	events []*event.ClassificationEvent
	err    error
}

func (f *fakeReporter) Report(ctx context.Context, ev *event.ClassificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeReporter) reported() []*event.ClassificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*event.ClassificationEvent(nil), f.events...)
}

type fakeCleaner struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeCleaner) Delete(ctx context.Context, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, filename)
	return nil
}

func (f *fakeCleaner) deletions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T, config Config, reporter Reporter, cleaner Cleaner) *Coordinator {
	t.Helper()

	analyzer, err := energy.NewAnalyzer(25*time.Millisecond, 0.003)
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	detector, err := peaks.NewDetector(10*time.Millisecond, 4.0, 0.01, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	classifier, err := rhythm.NewClassifier(3, 200*time.Millisecond, 2*time.Second, 0.35)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	coordinator, err := NewCoordinator(config, analyzer, detector, classifier, reporter, cleaner, testLogger())
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}

	return coordinator
}

// silentWAV builds one second of digital silence at 16kHz
func silentWAV(t *testing.T) []byte {
	t.Helper()

	data, err := audio.Encode(make([]int16, 16000), 16000)
	if err != nil {
		t.Fatalf("Failed to encode silent WAV: %v", err)
	}
	return data
}

// knockWAV builds a 3s clip with five evenly spaced 20ms knock bursts
func knockWAV(t *testing.T) []byte {
	t.Helper()

	sampleRate := 16000
	samples := make([]int16, 3*sampleRate)
	for _, atMs := range []int{500, 1000, 1500, 2000, 2500} {
		start := atMs * sampleRate / 1000
		for i := start; i < start+320; i++ {
			samples[i] = 26000
		}
	}

	data, err := audio.Encode(samples, sampleRate)
	if err != nil {
		t.Fatalf("Failed to encode knock WAV: %v", err)
	}
	return data
}

func testClip(filename string, data []byte) Clip {
	return Clip{
		Filename:   filename,
		CapturedAt: time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC),
		Data:       data,
	}
}

func TestProcessSilentClip(t *testing.T) {
	reporter := &fakeReporter{}
	cleaner := &fakeCleaner{}
	coordinator := newTestCoordinator(t, Config{RunTimeout: 10 * time.Second}, reporter, cleaner)

	result := coordinator.Process(context.Background(), testClip("silent.wav", silentWAV(t)))

	if result.State != StateCleaned {
		t.Fatalf("Expected state %s, got %s (err: %v)", StateCleaned, result.State, result.Err)
	}

	events := reporter.reported()
	if len(events) != 1 {
		t.Fatalf("Expected exactly 1 reported event, got %d", len(events))
	}

	ev := events[0]
	if ev.HasSound {
		t.Errorf("Expected has_sound=false for silence")
	}
	if ev.IsKnocking {
		t.Errorf("Expected is_knocking=false for silence")
	}
	if ev.Confidence != 0 {
		t.Errorf("Expected zero confidence for silence, got %f", ev.Confidence)
	}
	if ev.Filename != "silent.wav" {
		t.Errorf("Expected filename silent.wav, got %s", ev.Filename)
	}

	if deletions := cleaner.deletions(); len(deletions) != 1 || deletions[0] != "silent.wav" {
		t.Errorf("Expected artifact deletion after reporting, got %v", deletions)
	}
}

func TestProcessKnockingClip(t *testing.T) {
	reporter := &fakeReporter{}
	cleaner := &fakeCleaner{}
	coordinator := newTestCoordinator(t, Config{RunTimeout: 10 * time.Second}, reporter, cleaner)

	result := coordinator.Process(context.Background(), testClip("knocks.wav", knockWAV(t)))

	if result.State != StateCleaned {
		t.Fatalf("Expected state %s, got %s (err: %v)", StateCleaned, result.State, result.Err)
	}

	events := reporter.reported()
	if len(events) != 1 {
		t.Fatalf("Expected exactly 1 reported event, got %d", len(events))
	}

	ev := events[0]
	if !ev.HasSound {
		t.Errorf("Expected has_sound=true for knock train")
	}
	if !ev.IsKnocking {
		t.Errorf("Expected is_knocking=true for evenly spaced knocks")
	}
	if ev.Confidence <= 0.8 {
		t.Errorf("Expected confidence above 0.8 for even spacing, got %f", ev.Confidence)
	}

	stats := coordinator.GetStats()
	if stats.KnocksDetected != 1 {
		t.Errorf("Expected 1 knock detection recorded, got %d", stats.KnocksDetected)
	}
}

func TestProcessCorruptClip(t *testing.T) {
	reporter := &fakeReporter{}
	cleaner := &fakeCleaner{}
	coordinator := newTestCoordinator(t, Config{RunTimeout: 10 * time.Second}, reporter, cleaner)

	result := coordinator.Process(context.Background(), testClip("corrupt.wav", []byte("not a wav file at all")))

	if result.State != StateFailed {
		t.Fatalf("Expected state %s, got %s", StateFailed, result.State)
	}

	if result.Err == nil {
		t.Fatalf("Expected decode error in result")
	}

	// No event may ever be produced from an undecodable clip
	if len(reporter.reported()) != 0 {
		t.Errorf("Expected no reported events for corrupt clip")
	}

	// The corrupt artifact is still cleaned up so it cannot wedge the queue
	if deletions := cleaner.deletions(); len(deletions) != 1 || deletions[0] != "corrupt.wav" {
		t.Errorf("Expected corrupt artifact cleanup, got %v", deletions)
	}

	stats := coordinator.GetStats()
	if stats.DecodeFailures != 1 {
		t.Errorf("Expected 1 decode failure recorded, got %d", stats.DecodeFailures)
	}
	if stats.RunsFailed != 1 {
		t.Errorf("Expected 1 failed run recorded, got %d", stats.RunsFailed)
	}
}

func TestProcessCleanupFailureKeepsReportedState(t *testing.T) {
	reporter := &fakeReporter{}
	cleaner := &fakeCleaner{err: fmt.Errorf("bucket unavailable")}
	coordinator := newTestCoordinator(t, Config{RunTimeout: 10 * time.Second}, reporter, cleaner)

	result := coordinator.Process(context.Background(), testClip("knocks.wav", knockWAV(t)))

	// Cleanup failure must not fail the run or revert the report
	if result.State != StateReported {
		t.Fatalf("Expected state %s after cleanup failure, got %s", StateReported, result.State)
	}

	if result.Err != nil {
		t.Errorf("Expected no run error for best-effort cleanup failure, got %v", result.Err)
	}

	// The event went out exactly once; no re-report
	if len(reporter.reported()) != 1 {
		t.Errorf("Expected exactly 1 reported event, got %d", len(reporter.reported()))
	}

	stats := coordinator.GetStats()
	if stats.RunsCompleted != 1 {
		t.Errorf("Expected run counted as completed, got %d", stats.RunsCompleted)
	}
	if stats.RunsFailed != 0 {
		t.Errorf("Expected no failed runs, got %d", stats.RunsFailed)
	}
}

func TestProcessReportingFailure(t *testing.T) {
	reporter := &fakeReporter{err: fmt.Errorf("collector unreachable")}
	cleaner := &fakeCleaner{}
	coordinator := newTestCoordinator(t, Config{RunTimeout: 10 * time.Second}, reporter, cleaner)

	result := coordinator.Process(context.Background(), testClip("knocks.wav", knockWAV(t)))

	if result.State != StateFailed {
		t.Fatalf("Expected state %s when reporting fails, got %s", StateFailed, result.State)
	}

	// Cleanup must not run when the event was never delivered
	if len(cleaner.deletions()) != 0 {
		t.Errorf("Expected no deletion without a successful report, got %v", cleaner.deletions())
	}
}

func TestProcessDeterministicClassification(t *testing.T) {
	reporter := &fakeReporter{}
	cleaner := &fakeCleaner{}
	coordinator := newTestCoordinator(t, Config{RunTimeout: 10 * time.Second}, reporter, cleaner)

	clip := testClip("knocks.wav", knockWAV(t))

	first := coordinator.Process(context.Background(), clip)
	second := coordinator.Process(context.Background(), clip)

	if first.State != StateCleaned || second.State != StateCleaned {
		t.Fatalf("Expected both runs to complete, got %s and %s", first.State, second.State)
	}

	events := reporter.reported()
	if len(events) != 2 {
		t.Fatalf("Expected 2 reported events, got %d", len(events))
	}

	// Reprocessing the same bytes yields the same classification
	a, b := events[0], events[1]
	if a.HasSound != b.HasSound || a.IsKnocking != b.IsKnocking || a.Confidence != b.Confidence {
		t.Errorf("Classification differs across identical runs: %+v vs %+v", a, b)
	}
}

func TestProcessExpiredContext(t *testing.T) {
	reporter := &fakeReporter{}
	cleaner := &fakeCleaner{}
	coordinator := newTestCoordinator(t, Config{RunTimeout: 10 * time.Second}, reporter, cleaner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := coordinator.Process(ctx, testClip("knocks.wav", knockWAV(t)))

	if result.State != StateFailed {
		t.Fatalf("Expected state %s for cancelled context, got %s", StateFailed, result.State)
	}

	// An aborted run never reports a partial result
	if len(reporter.reported()) != 0 {
		t.Errorf("Expected no reported events for aborted run")
	}
}

func TestProcessRunIDsUnique(t *testing.T) {
	reporter := &fakeReporter{}
	cleaner := &fakeCleaner{}
	coordinator := newTestCoordinator(t, Config{RunTimeout: 10 * time.Second}, reporter, cleaner)

	clip := testClip("silent.wav", silentWAV(t))

	first := coordinator.Process(context.Background(), clip)
	second := coordinator.Process(context.Background(), clip)

	if first.RunID == second.RunID {
		t.Errorf("Expected distinct run IDs, both were %s", first.RunID)
	}
}
