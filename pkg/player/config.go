package player

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the playback manager configuration.
type Config struct {
	// MaxConcurrent caps the number of assets in state playing at once.
	MaxConcurrent int `json:"max_concurrent" toml:"max_concurrent"`
	// LoadTimeout bounds a single fetch+decode attempt.
	LoadTimeout time.Duration `json:"load_timeout" toml:"load_timeout"`
	// SampleRate the output device is opened at.
	SampleRate int `json:"sample_rate" toml:"sample_rate"`
	// SpeakerBuffer is the device buffer length.
	SpeakerBuffer time.Duration `json:"speaker_buffer" toml:"speaker_buffer"`
	// MasterVolume is the initial master volume in [0, 1].
	MasterVolume float64 `json:"master_volume" toml:"master_volume"`
	// ResampleQuality is beep's resampling quality (1..6) used when an
	// asset's sample rate differs from the device rate.
	ResampleQuality int `json:"resample_quality" toml:"resample_quality"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:   4,
		LoadTimeout:     10 * time.Second,
		SampleRate:      44100,
		SpeakerBuffer:   100 * time.Millisecond,
		MasterVolume:    1.0,
		ResampleQuality: 4,
	}
}

// LoadFromEnvironment overrides configuration values from FUAIM_*
// environment variables. Unparseable values are ignored.
func (c *Config) LoadFromEnvironment() {
	if val := os.Getenv("FUAIM_MAX_CONCURRENT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxConcurrent = n
		}
	}
	if val := os.Getenv("FUAIM_LOAD_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.LoadTimeout = d
		}
	}
	if val := os.Getenv("FUAIM_SAMPLE_RATE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.SampleRate = n
		}
	}
	if val := os.Getenv("FUAIM_SPEAKER_BUFFER"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.SpeakerBuffer = d
		}
	}
	if val := os.Getenv("FUAIM_MASTER_VOLUME"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MasterVolume = v
		}
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var problems []string

	if c.MaxConcurrent <= 0 {
		problems = append(problems, "max_concurrent must be > 0")
	}
	if c.LoadTimeout <= 0 {
		problems = append(problems, "load_timeout must be > 0")
	}
	if c.SampleRate <= 0 {
		problems = append(problems, "sample_rate must be > 0")
	}
	if c.SpeakerBuffer <= 0 {
		problems = append(problems, "speaker_buffer must be > 0")
	}
	if c.MasterVolume < 0 || c.MasterVolume > 1 {
		problems = append(problems, "master_volume must be between 0 and 1")
	}
	if c.ResampleQuality < 1 || c.ResampleQuality > 6 {
		problems = append(problems, "resample_quality must be between 1 and 6")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %v", problems)
	}
	return nil
}
