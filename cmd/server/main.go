package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/willsarg/Sundai-LaundryAlert/internal/config"
	"github.com/willsarg/Sundai-LaundryAlert/internal/energy"
	"github.com/willsarg/Sundai-LaundryAlert/internal/ingest"
	"github.com/willsarg/Sundai-LaundryAlert/internal/metrics"
	"github.com/willsarg/Sundai-LaundryAlert/internal/peaks"
	"github.com/willsarg/Sundai-LaundryAlert/internal/pipeline"
	"github.com/willsarg/Sundai-LaundryAlert/internal/reporting"
	"github.com/willsarg/Sundai-LaundryAlert/internal/rhythm"
	"github.com/willsarg/Sundai-LaundryAlert/internal/server"
	"github.com/willsarg/Sundai-LaundryAlert/internal/storage"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "laundry-alert-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load .env for local development; secrets come from the environment
	// in deployment
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("pipeline_workers", cfg.Pipeline.Workers),
		slog.Int("queue_depth", cfg.Pipeline.QueueDepth),
		slog.Float64("noise_floor", cfg.Energy.NoiseFloor),
		slog.Float64("threshold_factor", cfg.Peaks.ThresholdFactor),
		slog.Int("min_peaks", cfg.Rhythm.MinPeaks),
		slog.String("reporting_endpoint", cfg.Reporting.Endpoint),
		slog.String("bucket_url", cfg.Storage.BucketURL),
		slog.Bool("mqtt_enabled", cfg.MQTT.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize analysis stages
	analyzer, err := energy.NewAnalyzer(cfg.Energy.GetFrameDuration(), cfg.Energy.NoiseFloor)
	if err != nil {
		logger.Error("Failed to create energy analyzer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	detector, err := peaks.NewDetector(cfg.Peaks.GetEnvelopeResolution(),
		cfg.Peaks.ThresholdFactor, cfg.Peaks.MinHeight, cfg.Peaks.GetRefractory())
	if err != nil {
		logger.Error("Failed to create peak detector", slog.String("error", err.Error()))
		os.Exit(1)
	}

	classifier, err := rhythm.NewClassifier(cfg.Rhythm.MinPeaks,
		cfg.Rhythm.GetMinInterval(), cfg.Rhythm.GetMaxInterval(), cfg.Rhythm.MaxIntervalCV)
	if err != nil {
		logger.Error("Failed to create rhythm classifier", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize reporting client
	reporter, err := reporting.NewClient(reporting.Config{
		Endpoint:      cfg.Reporting.Endpoint,
		APIKey:        cfg.Reporting.APIKey,
		Timeout:       cfg.Reporting.GetTimeoutDuration(),
		MaxRetries:    cfg.Reporting.MaxRetries,
		RetryBackoff:  cfg.Reporting.GetRetryBackoff(),
		MaxConcurrent: cfg.Reporting.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create reporting client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize source artifact store client
	store, err := storage.NewClient(cfg.Storage.BucketURL, cfg.Storage.GetTimeoutDuration())
	if err != nil {
		logger.Error("Failed to create storage client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize pipeline coordinator
	coordinator, err := pipeline.NewCoordinator(pipeline.Config{
		ClassifySilent: cfg.Pipeline.ClassifySilent,
		RunTimeout:     cfg.Pipeline.GetRunTimeoutDuration(),
	}, analyzer, detector, classifier, reporter, store, logger)
	if err != nil {
		logger.Error("Failed to create pipeline coordinator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Pipeline coordinator initialized",
		slog.Duration("run_timeout", cfg.Pipeline.GetRunTimeoutDuration()),
		slog.Bool("classify_silent", cfg.Pipeline.ClassifySilent),
	)

	// Initialize dispatcher with worker pool
	dispatcher := pipeline.NewDispatcher(coordinator, cfg.Pipeline.Workers,
		cfg.Pipeline.QueueDepth, logger, appMetrics)
	dispatcher.Start()
	logger.Info("Pipeline dispatcher started",
		slog.Int("workers", cfg.Pipeline.Workers),
		slog.Int("queue_depth", cfg.Pipeline.QueueDepth),
	)

	// Initialize HTTP ingest/API server
	httpServer := server.NewHTTPServer(cfg, logger, dispatcher, coordinator, reporter, store, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start MQTT notification subscriber (if enabled)
	var subscriber *ingest.Subscriber
	if cfg.MQTT.Enabled {
		subscriber = ingest.NewSubscriber(cfg.MQTT, store, dispatcher, logger)
		if err := subscriber.Start(); err != nil {
			logger.Error("Failed to start MQTT subscriber", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop MQTT subscriber first (stop accepting new notifications)
	if subscriber != nil {
		subscriber.Stop()
	}

	// Stop HTTP server (stop accepting new clips)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop dispatcher (drain queued clips and stop workers)
	dispatcher.Stop()

	// Close the reporting client
	reporter.Close()

	// Get final statistics
	coordStats := coordinator.GetStats()
	reportStats := reporter.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("runs_started", coordStats.RunsStarted),
		slog.Uint64("runs_completed", coordStats.RunsCompleted),
		slog.Uint64("runs_failed", coordStats.RunsFailed),
		slog.Uint64("decode_failures", coordStats.DecodeFailures),
		slog.Uint64("knocks_detected", coordStats.KnocksDetected),
		slog.Uint64("events_reported", reportStats.SuccessRequests),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
