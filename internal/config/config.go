package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/teanglann/fuaim/pkg/player"
)

// Config is the application-level configuration: where the manifest and
// audio files live plus the playback settings.
type Config struct {
	// ManifestPath points at the audio manifest JSON document.
	ManifestPath string `toml:"manifest_path"`
	// BaseURL is the HTTP base assets are fetched relative to. Empty
	// means assets are read from the local AssetRoot instead.
	BaseURL string `toml:"base_url"`
	// AssetRoot is the local directory assets resolve against when no
	// BaseURL is set.
	AssetRoot string `toml:"asset_root"`
	// Origin is sent as the request origin for HTTP fetches.
	Origin string `toml:"origin"`

	// DiagnosticsDB is the optional sqlite file load events persist to.
	DiagnosticsDB string `toml:"diagnostics_db"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	Player player.Config `toml:"player"`
}

var ErrManifestPathNotSet = errors.New("FUAIM_MANIFEST is not set")

// LoadConfig builds the configuration from defaults, an optional
// fuaim.toml file and FUAIM_* environment variables, in that order of
// precedence. A .env file is honored when present.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Player:    *player.DefaultConfig(),
	}

	path := os.Getenv("FUAIM_CONFIG")
	if path == "" {
		path = "fuaim.toml"
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.loadEnvironment()
	cfg.Player.LoadFromEnvironment()

	if cfg.ManifestPath == "" {
		return nil, ErrManifestPathNotSet
	}
	if err := cfg.Player.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadEnvironment() {
	if v := os.Getenv("FUAIM_MANIFEST"); v != "" {
		c.ManifestPath = v
	}
	if v := os.Getenv("FUAIM_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("FUAIM_ASSET_ROOT"); v != "" {
		c.AssetRoot = v
	}
	if v := os.Getenv("FUAIM_ORIGIN"); v != "" {
		c.Origin = v
	}
	if v := os.Getenv("FUAIM_DIAGNOSTICS_DB"); v != "" {
		c.DiagnosticsDB = v
	}
	if v := os.Getenv("FUAIM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("FUAIM_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}
