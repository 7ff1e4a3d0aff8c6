package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the laundry alert service
type Metrics struct {
	// Clip pipeline metrics
	ClipsReceived  prometheus.Counter
	ClipsProcessed prometheus.Counter
	ClipsFailed    prometheus.Counter
	DecodeErrors   prometheus.Counter
	QueueSize      prometheus.Gauge
	ActiveRuns     prometheus.Gauge
	RunDuration    prometheus.Histogram

	// Classification metrics
	SoundDetected   prometheus.Counter
	KnocksDetected  prometheus.Counter
	KnockConfidence prometheus.Histogram

	// Cleanup metrics
	CleanupFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Clip pipeline metrics
		ClipsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "laundry_clips_received_total",
			Help: "Total number of audio clips accepted for processing",
		}),
		ClipsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "laundry_clips_processed_total",
			Help: "Total number of clips processed to a terminal reported state",
		}),
		ClipsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "laundry_clips_failed_total",
			Help: "Total number of clip runs that terminated in failure",
		}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "laundry_decode_errors_total",
			Help: "Total number of clips rejected as malformed audio",
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "laundry_clip_queue_size",
			Help: "Current number of clips in the dispatch queue",
		}),
		ActiveRuns: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "laundry_active_runs",
			Help: "Current number of in-flight pipeline runs",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "laundry_run_duration_seconds",
			Help:    "Duration of complete per-clip pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),

		// Classification metrics
		SoundDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "laundry_sound_detected_total",
			Help: "Total number of clips classified as containing sound",
		}),
		KnocksDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "laundry_knocks_detected_total",
			Help: "Total number of clips classified as knocking",
		}),
		KnockConfidence: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "laundry_knock_confidence",
			Help:    "Confidence scores of rhythm classification",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		// Cleanup metrics
		CleanupFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "laundry_cleanup_failures_total",
			Help: "Total number of best-effort artifact deletions that failed",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "laundry_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "laundry_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "laundry_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordClipReceived increments the clips received counter
func (m *Metrics) RecordClipReceived() {
	m.ClipsReceived.Inc()
}

// RecordClipProcessed records a successfully completed run
func (m *Metrics) RecordClipProcessed(durationSeconds float64) {
	m.ClipsProcessed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordClipFailed records a failed run
func (m *Metrics) RecordClipFailed(durationSeconds float64) {
	m.ClipsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordDecodeError increments the decode errors counter
func (m *Metrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}

// SetQueueSize sets the current dispatch queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// RunStarted increments the active runs gauge
func (m *Metrics) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunFinished decrements the active runs gauge
func (m *Metrics) RunFinished() {
	m.ActiveRuns.Dec()
}

// RecordClassification records the outcome of one classification
func (m *Metrics) RecordClassification(hasSound, isKnocking bool, confidence float64) {
	if hasSound {
		m.SoundDetected.Inc()
	}
	if isKnocking {
		m.KnocksDetected.Inc()
	}
	m.KnockConfidence.Observe(confidence)
}

// RecordCleanupFailure increments the cleanup failures counter
func (m *Metrics) RecordCleanupFailure() {
	m.CleanupFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
