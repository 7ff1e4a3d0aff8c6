package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/willsarg/Sundai-LaundryAlert/internal/config"
	"github.com/willsarg/Sundai-LaundryAlert/internal/metrics"
	"github.com/willsarg/Sundai-LaundryAlert/internal/pipeline"
	"github.com/willsarg/Sundai-LaundryAlert/internal/reporting"
	"github.com/willsarg/Sundai-LaundryAlert/internal/storage"
)

// HTTPServer provides the clip ingestion endpoint plus monitoring and
// management APIs
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	dispatcher  *pipeline.Dispatcher
	coordinator *pipeline.Coordinator
	reporter    *reporting.Client
	store       *storage.Client
	metrics     *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the ingest/API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, dispatcher *pipeline.Dispatcher,
	coordinator *pipeline.Coordinator, reporter *reporting.Client, store *storage.Client,
	m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:      logger,
		config:      cfg,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		reporter:    reporter,
		store:       store,
		metrics:     m,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Clip ingestion trigger
	mux.HandleFunc("/clips", h.withMetrics("/clips", h.handleClips))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Capture the status code written by the handler
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleClips implements the POST /clips ingestion trigger. It accepts a
// raw audio/wav body (or a multipart "file" field) plus filename and
// timestamp metadata and enqueues one pipeline run.
func (h *HTTPServer) handleClips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.config.Server.MaxClipSize))

	clip, err := h.parseClipRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.Enqueue(*clip); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) || errors.Is(err, pipeline.ErrStopped) {
			http.Error(w, "Clip queue unavailable, retry later", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Failed to enqueue clip", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Clip accepted",
		slog.String("filename", clip.Filename),
		slog.Time("captured_at", clip.CapturedAt),
		slog.Int("size_bytes", len(clip.Data)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "accepted",
		"filename": clip.Filename,
	})
}

// parseClipRequest extracts the clip bytes and metadata from an ingest
// request
func (h *HTTPServer) parseClipRequest(r *http.Request) (*pipeline.Clip, error) {
	var (
		data      []byte
		filename  string
		timestamp string
		err       error
	)

	contentType := r.Header.Get("Content-Type")
	if len(contentType) >= 19 && contentType[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(int64(h.config.Server.MaxClipSize)); err != nil {
			return nil, fmt.Errorf("failed to parse multipart form: %w", err)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing file field: %w", err)
		}
		defer file.Close()

		data, err = io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}

		filename = r.FormValue("filename")
		if filename == "" {
			filename = header.Filename
		}
		timestamp = r.FormValue("timestamp")
	} else {
		data, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}

		filename = r.URL.Query().Get("filename")
		timestamp = r.URL.Query().Get("timestamp")
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("empty clip body")
	}

	if filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	if timestamp == "" {
		return nil, fmt.Errorf("timestamp is required")
	}

	capturedAt, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: expected RFC3339", timestamp)
	}

	return &pipeline.Clip{
		Filename:   filename,
		CapturedAt: capturedAt,
		Data:       data,
	}, nil
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	dispatchStats := h.dispatcher.GetStats()
	coordStats := h.coordinator.GetStats()
	reportStats := h.reporter.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "laundry-alert-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"dispatcher": map[string]interface{}{
				"status":     "running",
				"queue_size": dispatchStats.QueueSize,
				"workers":    dispatchStats.Workers,
			},
			"pipeline": map[string]interface{}{
				"status":          "running",
				"runs_started":    coordStats.RunsStarted,
				"runs_completed":  coordStats.RunsCompleted,
				"runs_failed":     coordStats.RunsFailed,
				"decode_failures": coordStats.DecodeFailures,
			},
			"reporting": map[string]interface{}{
				"status":          "running",
				"total_requests":  reportStats.TotalRequests,
				"success_rate":    reportStats.SuccessRate,
				"active_requests": reportStats.ActiveRequests,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":          h.config.Server.Port,
			"bind_address":  h.config.Server.BindAddress,
			"max_clip_size": h.config.Server.MaxClipSize,
		},
		"pipeline": map[string]interface{}{
			"workers":         h.config.Pipeline.Workers,
			"queue_depth":     h.config.Pipeline.QueueDepth,
			"run_timeout":     h.config.Pipeline.RunTimeout,
			"classify_silent": h.config.Pipeline.ClassifySilent,
		},
		"energy": map[string]interface{}{
			"frame_duration": h.config.Energy.FrameDuration,
			"noise_floor":    h.config.Energy.NoiseFloor,
		},
		"peaks": map[string]interface{}{
			"envelope_resolution": h.config.Peaks.EnvelopeResolution,
			"threshold_factor":    h.config.Peaks.ThresholdFactor,
			"min_height":          h.config.Peaks.MinHeight,
			"refractory":          h.config.Peaks.Refractory,
		},
		"rhythm": map[string]interface{}{
			"min_peaks":       h.config.Rhythm.MinPeaks,
			"min_interval":    h.config.Rhythm.MinInterval,
			"max_interval":    h.config.Rhythm.MaxInterval,
			"max_interval_cv": h.config.Rhythm.MaxIntervalCV,
		},
		"reporting": map[string]interface{}{
			"endpoint":       h.config.Reporting.Endpoint,
			"timeout":        h.config.Reporting.Timeout,
			"max_retries":    h.config.Reporting.MaxRetries,
			"retry_backoff":  h.config.Reporting.RetryBackoff,
			"max_concurrent": h.config.Reporting.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"storage": map[string]interface{}{
			"bucket_url": h.config.Storage.BucketURL,
			"timeout":    h.config.Storage.Timeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":     uptime.String(),
		"timestamp":  time.Now().UTC(),
		"dispatcher": h.dispatcher.GetStats(),
		"pipeline":   h.coordinator.GetStats(),
		"reporting":  h.reporter.GetStats(),
		"storage":    h.store.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Laundry Alert Audio Classification Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"POST /clips":  "Submit a WAV clip for classification (filename and timestamp required)",
			"GET /":        "API documentation",
			"GET /health":  "Service health check",
			"GET /config":  "Get service configuration",
			"GET /stats":   "Get service statistics",
			"GET /metrics": "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
