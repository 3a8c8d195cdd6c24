package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config holds runtime configuration for the media pipeline. Fields may be
// loaded from a JSON file and overridden by command-line flags.
type Config struct {
	Debug bool `json:"debug"`

	// Frame delivery
	FrameChannelCapacity int `json:"frame_channel_capacity"`

	// Video pacing
	FallbackRate     float64 `json:"fallback_rate"`
	MaxPlausibleRate float64 `json:"max_plausible_rate"`

	// Capture pacing
	CaptureRate     float64 `json:"capture_rate"`
	CaptureSkipRate float64 `json:"capture_skip_rate"`

	// Scaling
	MinScaledDim int `json:"min_scaled_dim"`

	// Failure policy
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
	RecoveryDelayMS        int `json:"recovery_delay_ms"`
	ErrorCooldownMS        int `json:"error_cooldown_ms"`

	// Session control
	SeekCooldownMS     int `json:"seek_cooldown_ms"`
	ReconcileThreshold int `json:"reconcile_threshold"`
	StopJoinTimeoutMS  int `json:"stop_join_timeout_ms"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:                  false,
		FrameChannelCapacity:   3,
		FallbackRate:           30,
		MaxPlausibleRate:       120,
		CaptureRate:            60,
		CaptureSkipRate:        30,
		MinScaledDim:           100,
		MaxConsecutiveFailures: 3,
		RecoveryDelayMS:        500,
		ErrorCooldownMS:        1000,
		SeekCooldownMS:         50,
		ReconcileThreshold:     1,
		StopJoinTimeoutMS:      1000,
	}
}

// Validate clamps values to safe ranges.
func (c *Config) Validate() error {
	if c.FrameChannelCapacity < 2 {
		c.FrameChannelCapacity = 2
	}
	if c.FrameChannelCapacity > 5 {
		c.FrameChannelCapacity = 5
	}
	if c.FallbackRate <= 0 {
		c.FallbackRate = 30
	}
	if c.MaxPlausibleRate < c.FallbackRate {
		c.MaxPlausibleRate = 120
	}
	if c.CaptureRate <= 0 {
		c.CaptureRate = 60
	}
	if c.CaptureSkipRate <= 0 || c.CaptureSkipRate > c.CaptureRate {
		c.CaptureSkipRate = 30
	}
	if c.MinScaledDim <= 0 {
		c.MinScaledDim = 100
	}
	if c.MaxConsecutiveFailures < 1 {
		c.MaxConsecutiveFailures = 3
	}
	if c.RecoveryDelayMS < 0 {
		c.RecoveryDelayMS = 500
	}
	if c.ErrorCooldownMS < 0 {
		c.ErrorCooldownMS = 1000
	}
	if c.SeekCooldownMS < 0 {
		c.SeekCooldownMS = 50
	}
	if c.ReconcileThreshold < 1 {
		c.ReconcileThreshold = 1
	}
	if c.StopJoinTimeoutMS < 100 {
		c.StopJoinTimeoutMS = 1000
	}
	return nil
}

// Duration accessors so callers do not multiply milliseconds in place.

func (c *Config) RecoveryDelay() time.Duration {
	return time.Duration(c.RecoveryDelayMS) * time.Millisecond
}

func (c *Config) ErrorCooldown() time.Duration {
	return time.Duration(c.ErrorCooldownMS) * time.Millisecond
}

func (c *Config) SeekCooldown() time.Duration {
	return time.Duration(c.SeekCooldownMS) * time.Millisecond
}

func (c *Config) StopJoinTimeout() time.Duration {
	return time.Duration(c.StopJoinTimeoutMS) * time.Millisecond
}

// Load reads configuration from the given JSON file path. A missing file
// yields DefaultConfig(). On JSON error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return cfg, err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
