package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "RIPPER_"

// Config represents the complete service configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Capture  CaptureConfig  `yaml:"capture"`
	Sinks    SinksConfig    `yaml:"sinks"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port        int      `yaml:"port"`
	Address     string   `yaml:"address"`
	APIKey      string   `yaml:"api_key"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// CaptureConfig contains stream capture parameters
type CaptureConfig struct {
	UserAgent            string `yaml:"user_agent"`
	ConnectTimeout       int    `yaml:"connect_timeout"`   // seconds
	MaxSegmentBytes      int    `yaml:"max_segment_bytes"` // larger tracks are dropped
	MinSegmentBytes      int    `yaml:"min_segment_bytes"`
	SkipFirstTrack       bool   `yaml:"skip_first_track"`
	AllowPrivateNetworks bool   `yaml:"allow_private_networks"`
}

// SinksConfig contains upload parameters shared by all sinks
type SinksConfig struct {
	UploadTimeout int     `yaml:"upload_timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	RetryBackoff  float64 `yaml:"retry_backoff"` // seconds
	DirectoryRoot string  `yaml:"directory_root"`
}

// ShutdownConfig contains graceful shutdown parameters
type ShutdownConfig struct {
	Timeout int `yaml:"timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used for any value the file omits
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
		},
		Storage: StorageConfig{
			DBPath: "data/ripper.db",
		},
		Capture: CaptureConfig{
			UserAgent:       "stream-subscription-api/1.0",
			ConnectTimeout:  10,
			MaxSegmentBytes: 64 << 20,
			MinSegmentBytes: 16 << 10,
			SkipFirstTrack:  true,
		},
		Sinks: SinksConfig{
			UploadTimeout: 120,
			MaxRetries:    3,
			MaxConcurrent: 10,
			RetryBackoff:  1,
			DirectoryRoot: "recordings",
		},
		Shutdown: ShutdownConfig{
			Timeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. A missing file at path is
// only an error when the path was given explicitly; with allowMissing the
// defaults are used.
func Load(path string, allowMissing bool) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case allowMissing && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides values from RIPPER_* variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strVars := map[string]*string{
		"HTTP_ADDRESS":   &c.HTTP.Address,
		"API_KEY":        &c.HTTP.APIKey,
		"DB_PATH":        &c.Storage.DBPath,
		"USER_AGENT":     &c.Capture.UserAgent,
		"DIRECTORY_ROOT": &c.Sinks.DirectoryRoot,
		"LOG_LEVEL":      &c.Logging.Level,
		"LOG_FORMAT":     &c.Logging.Format,
		"LOG_OUTPUT":     &c.Logging.Output,
	}
	for name, dst := range strVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"HTTP_PORT":         &c.HTTP.Port,
		"CONNECT_TIMEOUT":   &c.Capture.ConnectTimeout,
		"MAX_SEGMENT_BYTES": &c.Capture.MaxSegmentBytes,
		"UPLOAD_TIMEOUT":    &c.Sinks.UploadTimeout,
		"MAX_RETRIES":       &c.Sinks.MaxRetries,
		"SHUTDOWN_TIMEOUT":  &c.Shutdown.Timeout,
	}
	for name, dst := range intVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s must be an integer, got %q", EnvPrefix, name, v)
			}
			*dst = n
		}
	}

	if v, ok := lookup(EnvPrefix + "ALLOW_PRIVATE_NETWORKS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sALLOW_PRIVATE_NETWORKS must be a boolean, got %q", EnvPrefix, v)
		}
		c.Capture.AllowPrivateNetworks = b
	}

	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		c.HTTP.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.HTTP.CORSOrigins = append(c.HTTP.CORSOrigins, origin)
			}
		}
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Sinks.Validate(); err != nil {
		return fmt.Errorf("sinks config: %w", err)
	}

	if err := c.Shutdown.Validate(); err != nil {
		return fmt.Errorf("shutdown config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	for _, origin := range h.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("cors origin must be '*' or an http(s) origin, got '%s'", origin)
		}
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}
	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}

	if c.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", c.ConnectTimeout)
	}

	if c.MaxSegmentBytes < 1<<20 {
		return fmt.Errorf("max_segment_bytes must be at least 1 MiB, got %d", c.MaxSegmentBytes)
	}

	if c.MinSegmentBytes < 0 || c.MinSegmentBytes >= c.MaxSegmentBytes {
		return fmt.Errorf("min_segment_bytes (%d) must be between 0 and max_segment_bytes (%d)",
			c.MinSegmentBytes, c.MaxSegmentBytes)
	}

	return nil
}

// Validate validates sink configuration
func (s *SinksConfig) Validate() error {
	if s.UploadTimeout < 1 {
		return fmt.Errorf("upload_timeout must be at least 1 second, got %d", s.UploadTimeout)
	}

	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", s.MaxRetries)
	}

	if s.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", s.MaxConcurrent)
	}

	if s.RetryBackoff <= 0 {
		return fmt.Errorf("retry_backoff must be positive, got %f", s.RetryBackoff)
	}

	if s.DirectoryRoot == "" {
		return fmt.Errorf("directory_root cannot be empty")
	}

	return nil
}

// Validate validates shutdown configuration
func (s *ShutdownConfig) Validate() error {
	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
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

	// Anything other than stdout or stderr is a file path.
	return nil
}

// GetConnectTimeout returns the capture connect timeout as a time.Duration
func (c *CaptureConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetUploadTimeout returns the per-song upload timeout as a time.Duration
func (s *SinksConfig) GetUploadTimeout() time.Duration {
	return time.Duration(s.UploadTimeout) * time.Second
}

// GetRetryBackoff returns the first HTTP retry delay as a time.Duration
func (s *SinksConfig) GetRetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoff * float64(time.Second))
}

// GetTimeout returns the shutdown timeout as a time.Duration
func (s *ShutdownConfig) GetTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}
