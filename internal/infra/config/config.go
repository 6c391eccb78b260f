// Package config provides configuration loading from YAML files.
package config

import (
	"net/url"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Catalog backends.
const (
	CatalogHTTP   = "http"
	CatalogSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Audio   AudioConfig             `yaml:"audio"`
	Mix     MixConfig               `yaml:"mix"`
	Catalog CatalogConfig           `yaml:"catalog"`
	Source  SourceConfig            `yaml:"source"`
	Filters map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr       string      `yaml:"addr" default:":8080"`
	AdminToken string      `yaml:"admin_token" validate:"required"`
	Hooks      HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AudioConfig represents the deck renderer configuration.
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate" default:"44100" validate:"oneof=22050 32000 44100 48000"`
	FrameMs         int     `yaml:"frame_ms" default:"20" validate:"gte=5,lte=200"`
	ResampleQuality int     `yaml:"resample_quality" default:"4" validate:"gte=1,lte=6"`
	MasterGain      float64 `yaml:"master_gain" default:"1.0" validate:"gte=0,lte=2"`
	SettleMarginMs  int     `yaml:"settle_margin_ms" default:"200" validate:"gte=0,lte=5000"`
	FetchTimeoutSec int     `yaml:"fetch_timeout_sec" default:"30" validate:"gte=1"`
	MaxTrackMB      int     `yaml:"max_track_mb" default:"64" validate:"gte=1"`
}

// MixConfig represents the crossfade session defaults.
type MixConfig struct {
	IntervalSec  int     `yaml:"interval_sec" default:"70" validate:"gte=15,lte=180"`
	FadeSec      int     `yaml:"fade_sec" default:"10" validate:"gte=4,lte=20"`
	TargetEnergy float64 `yaml:"target_energy" default:"0.65" validate:"gte=0,lte=1"`
	RateMin      float64 `yaml:"rate_min" default:"0.85" validate:"gt=0,lte=1"`
	RateMax      float64 `yaml:"rate_max" default:"1.15" validate:"gte=1,lte=2"`
	DefaultBPM   float64 `yaml:"default_bpm" default:"120" validate:"gt=0"`
}

// CatalogConfig represents the track catalog backend configuration.
type CatalogConfig struct {
	Type       string `yaml:"type" default:"http" validate:"oneof=http sqlite"`
	BaseURL    string `yaml:"base_url" validate:"required_if=Type http"`
	TimeoutSec int    `yaml:"timeout_sec" default:"10" validate:"gte=1"`
	DBPath     string `yaml:"db_path" validate:"required_if=Type sqlite"`
	AudioDir   string `yaml:"audio_dir" default:"data/audio"`
}

// SourceConfig represents the track source selected at start.
type SourceConfig struct {
	Type     string         `yaml:"type" default:"playlist" validate:"oneof=playlist recommender"`
	Settings map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("CATALOG_BASE_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if c.Catalog.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Catalog.BaseURL); err != nil {
			return errors.Wrap(err, "invalid catalog base_url")
		}
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

// MixInterval returns the configured interval as a duration.
func (m MixConfig) MixInterval() time.Duration {
	return time.Duration(m.IntervalSec) * time.Second
}

// FadeDuration returns the configured fade as a duration.
func (m MixConfig) FadeDuration() time.Duration {
	return time.Duration(m.FadeSec) * time.Second
}

// SettleMargin returns the post-fade settle margin.
func (a AudioConfig) SettleMargin() time.Duration {
	return time.Duration(a.SettleMarginMs) * time.Millisecond
}

// FrameDuration returns the render frame length.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}

// FetchTimeout returns the per-track download timeout.
func (a AudioConfig) FetchTimeout() time.Duration {
	return time.Duration(a.FetchTimeoutSec) * time.Second
}

// MaxTrackBytes returns the maximum accepted track size in bytes.
func (a AudioConfig) MaxTrackBytes() int64 {
	return int64(a.MaxTrackMB) << 20
}

// Timeout returns the catalog request timeout.
func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
