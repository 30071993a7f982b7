package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Audio         AudioConfig         `yaml:"audio"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Stream        StreamConfig        `yaml:"stream"`
	Store         StoreConfig         `yaml:"store"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP API server configuration
type ServerConfig struct {
	Port            int      `yaml:"port"`
	Address         string   `yaml:"address"`
	ShutdownTimeout int      `yaml:"shutdown_timeout"` // seconds
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// TranscriptionConfig contains upstream transcription service configuration
type TranscriptionConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
	MaxRetries     int    `yaml:"max_retries"`
}

// AudioConfig contains audio processing parameters
type AudioConfig struct {
	SourceSampleRate int `yaml:"source_sample_rate"`
	TargetSampleRate int `yaml:"target_sample_rate"`
	Channels         int `yaml:"channels"`
	BitDepth         int `yaml:"bit_depth"`
	ReadBlockSamples int `yaml:"read_block_samples"`
}

// CatalogConfig points at the menu data files
type CatalogConfig struct {
	MenuPath      string `yaml:"menu_path"`
	ModifiersPath string `yaml:"modifiers_path"`
}

// IngestConfig contains ingestion driver configuration
type IngestConfig struct {
	// PaceMS is the delay between committed cart lines. Zero defers to
	// the driver's built-in default.
	PaceMS int `yaml:"pace_ms"`
}

// StreamConfig contains relay session management configuration
type StreamConfig struct {
	MaxSessions     int `yaml:"max_sessions"`
	SessionTimeout  int `yaml:"session_timeout"`  // seconds
	CleanupInterval int `yaml:"cleanup_interval"` // seconds
}

// StoreConfig contains transcription result store configuration
type StoreConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
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

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog config: %w", err)
	}

	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
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

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if !strings.HasPrefix(t.URL, "ws://") && !strings.HasPrefix(t.URL, "wss://") {
		return fmt.Errorf("url must use the ws or wss scheme, got '%s'", t.URL)
	}

	if t.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", t.ConnectTimeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SourceSampleRate < 1 {
		return fmt.Errorf("source_sample_rate must be positive, got %d", a.SourceSampleRate)
	}

	if a.TargetSampleRate < 1 {
		return fmt.Errorf("target_sample_rate must be positive, got %d", a.TargetSampleRate)
	}

	if a.SourceSampleRate < a.TargetSampleRate {
		return fmt.Errorf("source_sample_rate (%d) must be at least target_sample_rate (%d)",
			a.SourceSampleRate, a.TargetSampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.ReadBlockSamples < 256 {
		return fmt.Errorf("read_block_samples must be at least 256, got %d", a.ReadBlockSamples)
	}

	return nil
}

// Validate validates catalog configuration
func (c *CatalogConfig) Validate() error {
	if c.MenuPath == "" {
		return fmt.Errorf("menu_path cannot be empty")
	}

	// modifiers_path may be empty; products then fall back to no chain.
	return nil
}

// Validate validates ingest configuration
func (i *IngestConfig) Validate() error {
	if i.PaceMS < 0 {
		return fmt.Errorf("pace_ms cannot be negative, got %d", i.PaceMS)
	}

	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}

	if s.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", s.SessionTimeout)
	}

	if s.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", s.CleanupInterval)
	}

	return nil
}

// Validate validates store configuration
func (s *StoreConfig) Validate() error {
	if !s.InMemory && s.Dir == "" {
		return fmt.Errorf("dir cannot be empty unless in_memory is set")
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

// GetShutdownTimeoutDuration returns the shutdown timeout as a time.Duration
func (s *ServerConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetConnectTimeoutDuration returns the connect timeout as a time.Duration
func (t *TranscriptionConfig) GetConnectTimeoutDuration() time.Duration {
	return time.Duration(t.ConnectTimeout) * time.Second
}

// GetPaceDuration returns the inter-item pacing delay as a time.Duration
func (i *IngestConfig) GetPaceDuration() time.Duration {
	return time.Duration(i.PaceMS) * time.Millisecond
}

// GetSessionTimeoutDuration returns the session timeout as a time.Duration
func (s *StreamConfig) GetSessionTimeoutDuration() time.Duration {
	return time.Duration(s.SessionTimeout) * time.Second
}

// GetCleanupIntervalDuration returns the cleanup interval as a time.Duration
func (s *StreamConfig) GetCleanupIntervalDuration() time.Duration {
	return time.Duration(s.CleanupInterval) * time.Second
}
