package config

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	// maxUDPPayload is the largest payload an IPv4 UDP datagram can carry.
	// A smaller receive buffer would silently truncate datagrams.
	maxUDPPayload = 65507
	// maxBufferSize caps the receive buffer at 64 KiB
	maxBufferSize = 64 * 1024
)

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	HTTP     HTTPConfig     `yaml:"http"`
	Events   EventsConfig   `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains UDP server configuration
type ServerConfig struct {
	UDPPort       int     `yaml:"udp_port"`
	BindAddress   string  `yaml:"bind_address"`
	BufferSize    string  `yaml:"buffer_size"`    // human readable, e.g. "64KiB"
	ResponseRate  float64 `yaml:"response_rate"`  // responses per second, 0 = unlimited
	ResponseBurst int     `yaml:"response_burst"` // token bucket size
}

// RegistryConfig contains peer liveness tracking parameters
type RegistryConfig struct {
	InactiveTimeout int `yaml:"inactive_timeout"` // seconds
	SweepInterval   int `yaml:"sweep_interval"`   // milliseconds
	Shards          int `yaml:"shards"`
}

// HTTPConfig contains HTTP monitoring API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// EventsConfig controls where server events are delivered
type EventsConfig struct {
	HistorySize int  `yaml:"history_size"`
	Console     bool `yaml:"console"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			UDPPort:       8888,
			BindAddress:   "0.0.0.0",
			BufferSize:    "64KiB",
			ResponseRate:  0,
			ResponseBurst: 1,
		},
		Registry: RegistryConfig{
			InactiveTimeout: 600,
			SweepInterval:   1000,
			Shards:          1,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Events: EventsConfig{
			HistorySize: 256,
			Console:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if _, err := netip.ParseAddr(s.BindAddress); err != nil {
		return fmt.Errorf("bind_address must be an IP address, got '%s'", s.BindAddress)
	}

	size, err := s.GetBufferSize()
	if err != nil {
		return err
	}
	if size < maxUDPPayload || size > maxBufferSize {
		return fmt.Errorf("buffer_size must be between %d B and 64 KiB, got %s", maxUDPPayload, humanize.IBytes(uint64(size)))
	}

	if s.ResponseRate < 0 {
		return fmt.Errorf("response_rate cannot be negative, got %f", s.ResponseRate)
	}

	if s.ResponseRate > 0 && s.ResponseBurst < 1 {
		return fmt.Errorf("response_burst must be at least 1 when response_rate is set, got %d", s.ResponseBurst)
	}

	return nil
}

// Validate validates registry configuration
func (r *RegistryConfig) Validate() error {
	if r.InactiveTimeout < 1 {
		return fmt.Errorf("inactive_timeout must be at least 1 second, got %d", r.InactiveTimeout)
	}

	if r.SweepInterval < 10 {
		return fmt.Errorf("sweep_interval must be at least 10 milliseconds, got %d", r.SweepInterval)
	}

	if r.Shards < 1 || r.Shards > 256 {
		return fmt.Errorf("shards must be between 1 and 256, got %d", r.Shards)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates events configuration
func (e *EventsConfig) Validate() error {
	if e.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", e.HistorySize)
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

	// Anything other than stdout/stderr is treated as a file path

	return nil
}

// GetBufferSize parses the receive buffer size in bytes
func (s *ServerConfig) GetBufferSize() (int, error) {
	size, err := humanize.ParseBytes(s.BufferSize)
	if err != nil {
		return 0, fmt.Errorf("invalid buffer_size '%s': %w", s.BufferSize, err)
	}
	return int(size), nil
}

// GetInactiveTimeout returns the inactivity timeout as a time.Duration
func (r *RegistryConfig) GetInactiveTimeout() time.Duration {
	return time.Duration(r.InactiveTimeout) * time.Second
}

// SetInactiveTimeout stores d, which must be a whole number of seconds
func (r *RegistryConfig) SetInactiveTimeout(d time.Duration) error {
	if d%time.Second != 0 {
		return fmt.Errorf("inactive timeout must be a whole number of seconds, got %s", d)
	}
	r.InactiveTimeout = int(d / time.Second)
	return nil
}

// SetSweepInterval stores d, which must be a whole number of milliseconds
func (r *RegistryConfig) SetSweepInterval(d time.Duration) error {
	if d%time.Millisecond != 0 {
		return fmt.Errorf("sweep interval must be a whole number of milliseconds, got %s", d)
	}
	r.SweepInterval = int(d / time.Millisecond)
	return nil
}

// GetSweepInterval returns the sweep interval as a time.Duration
func (r *RegistryConfig) GetSweepInterval() time.Duration {
	return time.Duration(r.SweepInterval) * time.Millisecond
}
