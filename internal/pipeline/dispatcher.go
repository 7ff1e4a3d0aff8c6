package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/willsarg/Sundai-LaundryAlert/internal/audio"
	"github.com/willsarg/Sundai-LaundryAlert/internal/metrics"
)

// ErrQueueFull is returned when a clip cannot be enqueued because the
// dispatch queue is at capacity.
var ErrQueueFull = errors.New("clip queue full")

// ErrStopped is returned when a clip is enqueued after Stop.
var ErrStopped = errors.New("dispatcher stopped")

// Dispatcher fans incoming clips out to a fixed pool of workers, each
// driving the coordinator for one clip at a time. Clips are independent;
// no ordering is guaranteed or assumed between them.
type Dispatcher struct {
	coordinator *Coordinator
	logger      *slog.Logger
	metrics     *metrics.Metrics

	clipChan chan Clip
	workers  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics and shutdown flag
	enqueued uint64
	rejected uint64
	stopped  bool
	mu       sync.RWMutex
}

// DispatcherStats represents dispatcher statistics
type DispatcherStats struct {
	Enqueued      uint64 `json:"enqueued"`
	Rejected      uint64 `json:"rejected"`
	QueueSize     int    `json:"queue_size"`
	QueueCapacity int    `json:"queue_capacity"`
	Workers       int    `json:"workers"`
}

// NewDispatcher creates a dispatcher with the given worker pool size and
// queue depth
func NewDispatcher(coordinator *Coordinator, workers, queueDepth int,
	logger *slog.Logger, m *metrics.Metrics) *Dispatcher {

	if workers < 1 {
		workers = 1
	}

	if queueDepth < 1 {
		queueDepth = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		coordinator: coordinator,
		logger:      logger,
		metrics:     m,
		clipChan:    make(chan Clip, queueDepth),
		workers:     workers,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker pool
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.logger.Info("Pipeline dispatcher started",
		slog.Int("workers", d.workers),
		slog.Int("queue_capacity", cap(d.clipChan)),
	)
}

// Stop drains the queue and waits for in-flight runs to finish. Enqueue
// calls made after Stop return ErrStopped.
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping pipeline dispatcher...")

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	close(d.clipChan)
	d.wg.Wait()
	d.cancel()

	stats := d.GetStats()
	d.logger.Info("Pipeline dispatcher stopped",
		slog.Uint64("clips_enqueued", stats.Enqueued),
		slog.Uint64("clips_rejected", stats.Rejected),
	)
}

// Enqueue submits a clip for processing without blocking. Returns
// ErrQueueFull when the queue is at capacity and ErrStopped after Stop.
func (d *Dispatcher) Enqueue(clip Clip) error {
	// The lock also orders the send against close(clipChan) in Stop.
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		d.rejected++
		d.logger.Warn("Dispatcher stopped, rejecting clip",
			slog.String("filename", clip.Filename),
		)
		return ErrStopped
	}

	select {
	case d.clipChan <- clip:
		d.enqueued++

		d.metrics.RecordClipReceived()
		d.metrics.SetQueueSize(len(d.clipChan))
		return nil
	default:
		d.rejected++

		d.logger.Warn("Clip queue full, rejecting clip",
			slog.String("filename", clip.Filename),
		)
		return ErrQueueFull
	}
}

// GetStats returns current dispatcher statistics
func (d *Dispatcher) GetStats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStats{
		Enqueued:      d.enqueued,
		Rejected:      d.rejected,
		QueueSize:     len(d.clipChan),
		QueueCapacity: cap(d.clipChan),
		Workers:       d.workers,
	}
}

// worker drains the clip queue into the coordinator
func (d *Dispatcher) worker(workerID int) {
	defer d.wg.Done()

	d.logger.Debug("Pipeline worker started", slog.Int("worker_id", workerID))

	for clip := range d.clipChan {
		d.metrics.SetQueueSize(len(d.clipChan))
		d.metrics.RunStarted()

		result := d.coordinator.Process(d.ctx, clip)

		d.metrics.RunFinished()
		d.observe(result)

		if result.Err != nil {
			d.logger.Debug("Run terminated with failure",
				slog.Int("worker_id", workerID),
				slog.String("run_id", result.RunID),
				slog.String("state", string(result.State)),
				slog.String("error", result.Err.Error()),
			)
		}
	}

	d.logger.Debug("Pipeline worker stopped", slog.Int("worker_id", workerID))
}

// observe records run outcome metrics
func (d *Dispatcher) observe(result Result) {
	switch result.State {
	case StateFailed:
		d.metrics.RecordClipFailed(result.Duration.Seconds())

		var decodeErr *audio.DecodeError
		if errors.As(result.Err, &decodeErr) {
			d.metrics.RecordDecodeError()
		}
	default:
		d.metrics.RecordClipProcessed(result.Duration.Seconds())

		if result.Event != nil {
			d.metrics.RecordClassification(result.Event.HasSound,
				result.Event.IsKnocking, result.Event.Confidence)
		}

		if result.State == StateReported {
			d.metrics.RecordCleanupFailure()
		}
	}
}
