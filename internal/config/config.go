package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Energy    EnergyConfig    `yaml:"energy"`
	Peaks     PeaksConfig     `yaml:"peaks"`
	Rhythm    RhythmConfig    `yaml:"rhythm"`
	Reporting ReportingConfig `yaml:"reporting"`
	Storage   StorageConfig   `yaml:"storage"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP ingest/API server configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	BindAddress string `yaml:"bind_address"`
	MaxClipSize int    `yaml:"max_clip_size"` // bytes
}

// PipelineConfig contains per-clip run and dispatch configuration
type PipelineConfig struct {
	Workers        int     `yaml:"workers"`
	QueueDepth     int     `yaml:"queue_depth"`
	RunTimeout     float64 `yaml:"run_timeout"`     // seconds
	ClassifySilent bool    `yaml:"classify_silent"` // run peak/rhythm stages even when no sound detected
}

// EnergyConfig contains loudness analysis parameters
type EnergyConfig struct {
	FrameDuration float64 `yaml:"frame_duration"` // seconds
	NoiseFloor    float64 `yaml:"noise_floor"`    // normalized RMS threshold
}

// PeaksConfig contains transient peak detection parameters
type PeaksConfig struct {
	EnvelopeResolution float64 `yaml:"envelope_resolution"` // seconds per envelope frame
	ThresholdFactor    float64 `yaml:"threshold_factor"`    // multiple of clip RMS
	MinHeight          float64 `yaml:"min_height"`          // absolute envelope floor
	Refractory         float64 `yaml:"refractory"`          // seconds
}

// RhythmConfig contains knock pattern classification parameters
type RhythmConfig struct {
	MinPeaks      int     `yaml:"min_peaks"`
	MinInterval   float64 `yaml:"min_interval"`    // seconds
	MaxInterval   float64 `yaml:"max_interval"`    // seconds
	MaxIntervalCV float64 `yaml:"max_interval_cv"` // coefficient of variation ceiling
}

// ReportingConfig contains event reporting endpoint configuration
type ReportingConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	RetryBackoff  float64 `yaml:"retry_backoff"` // seconds, base for exponential backoff
	MaxConcurrent int     `yaml:"max_concurrent"`
}

// StorageConfig contains source artifact store configuration
type StorageConfig struct {
	BucketURL string `yaml:"bucket_url"`
	Timeout   int    `yaml:"timeout"` // seconds
}

// MQTTConfig contains the optional MQTT clip notification subscription
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides fills secrets from the environment so they can stay
// out of the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REPORTING_API_KEY"); v != "" {
		c.Reporting.APIKey = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Energy.Validate(); err != nil {
		return fmt.Errorf("energy config: %w", err)
	}

	if err := c.Peaks.Validate(); err != nil {
		return fmt.Errorf("peaks config: %w", err)
	}

	if err := c.Rhythm.Validate(); err != nil {
		return fmt.Errorf("rhythm config: %w", err)
	}

	if err := c.Reporting.Validate(); err != nil {
		return fmt.Errorf("reporting config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.MaxClipSize < 1024 {
		return fmt.Errorf("max_clip_size must be at least 1024 bytes, got %d", s.MaxClipSize)
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", p.Workers)
	}

	if p.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be at least 1, got %d", p.QueueDepth)
	}

	if p.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive, got %f", p.RunTimeout)
	}

	return nil
}

// Validate validates energy analysis configuration
func (e *EnergyConfig) Validate() error {
	if e.FrameDuration < 0.005 || e.FrameDuration > 0.2 {
		return fmt.Errorf("frame_duration must be between 0.005 and 0.2 seconds, got %f", e.FrameDuration)
	}

	if e.NoiseFloor <= 0 || e.NoiseFloor >= 1 {
		return fmt.Errorf("noise_floor must be between 0 and 1 (exclusive), got %f", e.NoiseFloor)
	}

	return nil
}

// Validate validates peak detection configuration
func (p *PeaksConfig) Validate() error {
	if p.EnvelopeResolution < 0.001 || p.EnvelopeResolution > 0.1 {
		return fmt.Errorf("envelope_resolution must be between 0.001 and 0.1 seconds, got %f", p.EnvelopeResolution)
	}

	if p.ThresholdFactor <= 1 {
		return fmt.Errorf("threshold_factor must be greater than 1, got %f", p.ThresholdFactor)
	}

	if p.MinHeight <= 0 || p.MinHeight >= 1 {
		return fmt.Errorf("min_height must be between 0 and 1 (exclusive), got %f", p.MinHeight)
	}

	if p.Refractory <= 0 {
		return fmt.Errorf("refractory must be positive, got %f", p.Refractory)
	}

	return nil
}

// Validate validates rhythm classification configuration
func (r *RhythmConfig) Validate() error {
	if r.MinPeaks < 2 {
		return fmt.Errorf("min_peaks must be at least 2, got %d", r.MinPeaks)
	}

	if r.MinInterval <= 0 {
		return fmt.Errorf("min_interval must be positive, got %f", r.MinInterval)
	}

	if r.MaxInterval <= r.MinInterval {
		return fmt.Errorf("max_interval (%f) must be greater than min_interval (%f)",
			r.MaxInterval, r.MinInterval)
	}

	if r.MaxIntervalCV <= 0 || r.MaxIntervalCV >= 1 {
		return fmt.Errorf("max_interval_cv must be between 0 and 1 (exclusive), got %f", r.MaxIntervalCV)
	}

	return nil
}

// Validate validates reporting configuration
func (r *ReportingConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", r.MaxRetries)
	}

	if r.RetryBackoff <= 0 {
		return fmt.Errorf("retry_backoff must be positive, got %f", r.RetryBackoff)
	}

	if r.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", r.MaxConcurrent)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.BucketURL == "" {
		return fmt.Errorf("bucket_url cannot be empty")
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	return nil
}

// Validate validates MQTT configuration
func (m *MQTTConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Broker == "" {
		return fmt.Errorf("broker cannot be empty when MQTT is enabled")
	}

	if m.ClientID == "" {
		return fmt.Errorf("client_id cannot be empty when MQTT is enabled")
	}

	if m.Topic == "" {
		return fmt.Errorf("topic cannot be empty when MQTT is enabled")
	}

	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetRunTimeoutDuration returns the per-clip run timeout as a time.Duration
func (p *PipelineConfig) GetRunTimeoutDuration() time.Duration {
	return time.Duration(p.RunTimeout * float64(time.Second))
}

// GetFrameDuration returns the energy frame duration as a time.Duration
func (e *EnergyConfig) GetFrameDuration() time.Duration {
	return time.Duration(e.FrameDuration * float64(time.Second))
}

// GetEnvelopeResolution returns the envelope frame duration as a time.Duration
func (p *PeaksConfig) GetEnvelopeResolution() time.Duration {
	return time.Duration(p.EnvelopeResolution * float64(time.Second))
}

// GetRefractory returns the peak refractory interval as a time.Duration
func (p *PeaksConfig) GetRefractory() time.Duration {
	return time.Duration(p.Refractory * float64(time.Second))
}

// GetMinInterval returns the knock-rate band lower bound as a time.Duration
func (r *RhythmConfig) GetMinInterval() time.Duration {
	return time.Duration(r.MinInterval * float64(time.Second))
}

// GetMaxInterval returns the knock-rate band upper bound as a time.Duration
func (r *RhythmConfig) GetMaxInterval() time.Duration {
	return time.Duration(r.MaxInterval * float64(time.Second))
}

// GetTimeoutDuration returns the reporting timeout as a time.Duration
func (r *ReportingConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetRetryBackoff returns the reporting retry backoff base as a time.Duration
func (r *ReportingConfig) GetRetryBackoff() time.Duration {
	return time.Duration(r.RetryBackoff * float64(time.Second))
}

// GetTimeoutDuration returns the storage timeout as a time.Duration
func (s *StorageConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}
