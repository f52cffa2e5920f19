package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bridge configuration
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Audio     AudioConfig     `yaml:"audio"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Recording RecordingConfig `yaml:"recording"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SerialConfig contains USB CDC serial transport configuration
type SerialConfig struct {
	Port     string `yaml:"port"`
	Baudrate int    `yaml:"baudrate"`
}

// AudioConfig contains the fixed stream format parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// PlaybackConfig contains latency regulation parameters
type PlaybackConfig struct {
	// MaxBufferLatencyMS is the queued-latency threshold in milliseconds;
	// above it the receive backlog is flushed to realign with real time
	MaxBufferLatencyMS float64 `yaml:"max_buffer_latency_ms"`

	// SinkDepthFrames is the assumed total output buffer depth in frames.
	// Audio backends do not expose their real depth, so latency estimates
	// are computed against this value; tune it per platform if estimates
	// drift from what you hear.
	SinkDepthFrames int `yaml:"sink_depth_frames"`
}

// RecordingConfig contains WAV capture parameters
type RecordingConfig struct {
	Output          string  `yaml:"output"`
	DurationSeconds float64 `yaml:"duration_seconds"`
}

// HTTPConfig contains the monitoring API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is given; values match
// the ESP32 firmware defaults on the other end of the cable
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			Baudrate: 9216000,
		},
		Audio: AudioConfig{
			SampleRate: 48000,
			Channels:   1,
			BitDepth:   16,
		},
		Playback: PlaybackConfig{
			MaxBufferLatencyMS: 5.0,
			SinkDepthFrames:    240,
		},
		Recording: RecordingConfig{
			Output:          "capture.wav",
			DurationSeconds: 10,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
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

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Serial.Validate(); err != nil {
		return fmt.Errorf("serial config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates serial transport configuration
func (s *SerialConfig) Validate() error {
	if s.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}

	if s.Baudrate < 9600 {
		return fmt.Errorf("baudrate must be at least 9600, got %d", s.Baudrate)
	}

	return nil
}

// Validate validates audio format configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates playback regulation configuration
func (p *PlaybackConfig) Validate() error {
	if p.MaxBufferLatencyMS <= 0 {
		return fmt.Errorf("max_buffer_latency_ms must be positive, got %f", p.MaxBufferLatencyMS)
	}

	if p.SinkDepthFrames < 1 {
		return fmt.Errorf("sink_depth_frames must be at least 1, got %d", p.SinkDepthFrames)
	}

	return nil
}

// Validate validates recording configuration
func (r *RecordingConfig) Validate() error {
	if r.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	if r.DurationSeconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive, got %f", r.DurationSeconds)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("address cannot be empty when HTTP is enabled")
		}
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

// GetMaxBufferLatency returns the latency threshold as a time.Duration
func (p *PlaybackConfig) GetMaxBufferLatency() time.Duration {
	return time.Duration(p.MaxBufferLatencyMS * float64(time.Millisecond))
}

// GetDuration returns the recording duration as a time.Duration
func (r *RecordingConfig) GetDuration() time.Duration {
	return time.Duration(r.DurationSeconds * float64(time.Second))
}
