// Package config handles configuration loading for the CytoBridge client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/cytobridge/client/internal/gating"
	"gopkg.in/yaml.v3"
)

// Config represents the client configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Service ServiceConfig `yaml:"service"`
	Session SessionConfig `yaml:"session"`
	Cache   CacheConfig   `yaml:"cache"`
	Render  RenderConfig  `yaml:"render"`
	History HistoryConfig `yaml:"history"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// ServiceConfig locates the gating service.
type ServiceConfig struct {
	BaseURL  string `yaml:"base_url"`
	GatePath string `yaml:"gate_path"`
	// TimeoutSeconds bounds one analysis request; 0 leaves it unbounded.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxUploadMB    int `yaml:"max_upload_mb"`
	MaxConcurrent  int `yaml:"max_concurrent"`
	QueueSize      int `yaml:"queue_size"`
}

// SessionConfig contains per-session defaults.
type SessionConfig struct {
	DefaultX          string `yaml:"default_x"`
	DefaultY          string `yaml:"default_y"`
	DefaultClusters   int    `yaml:"default_clusters"`
	DefaultAutoDetect *bool  `yaml:"default_auto_detect"`
	IdleTTLMinutes    int    `yaml:"idle_ttl_minutes"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	PlotSizeMB      int `yaml:"plot_size_mb"`
	PlotTTLMinutes  int `yaml:"plot_ttl_minutes"`
	SeriesCacheSize int `yaml:"series_cache_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	PointSize float64 `yaml:"point_size"`
	Opacity   float64 `yaml:"opacity"`
}

// HistoryConfig controls the run journal.
type HistoryConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads configuration from a YAML file. A missing file yields the
// default configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	auto := true
	history := true
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "CytoBridge",
		},
		Service: ServiceConfig{
			BaseURL:       "http://localhost:8000",
			GatePath:      "/api/v1/auto-gate",
			MaxUploadMB:   512,
			MaxConcurrent: 2,
			QueueSize:     32,
		},
		Session: SessionConfig{
			DefaultX:          gating.DefaultX,
			DefaultY:          gating.DefaultY,
			DefaultClusters:   gating.DefaultClusters,
			DefaultAutoDetect: &auto,
			IdleTTLMinutes:    60,
		},
		Cache: CacheConfig{
			PlotSizeMB:      128,
			PlotTTLMinutes:  10,
			SeriesCacheSize: 256,
		},
		Render: RenderConfig{
			Width:     800,
			Height:    600,
			PointSize: 2,
			Opacity:   0.7,
		},
		History: HistoryConfig{
			Enabled:       &history,
			Path:          "data/history.db",
			RetentionDays: 30,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}

	if cfg.Service.BaseURL == "" {
		cfg.Service.BaseURL = defaults.Service.BaseURL
	}
	if cfg.Service.GatePath == "" {
		cfg.Service.GatePath = defaults.Service.GatePath
	}
	if cfg.Service.MaxUploadMB == 0 {
		cfg.Service.MaxUploadMB = defaults.Service.MaxUploadMB
	}
	if cfg.Service.MaxConcurrent == 0 {
		cfg.Service.MaxConcurrent = defaults.Service.MaxConcurrent
	}
	if cfg.Service.QueueSize == 0 {
		cfg.Service.QueueSize = defaults.Service.QueueSize
	}

	if cfg.Session.DefaultX == "" {
		cfg.Session.DefaultX = defaults.Session.DefaultX
	}
	if cfg.Session.DefaultY == "" {
		cfg.Session.DefaultY = defaults.Session.DefaultY
	}
	if cfg.Session.DefaultClusters == 0 {
		cfg.Session.DefaultClusters = defaults.Session.DefaultClusters
	}
	if cfg.Session.DefaultAutoDetect == nil {
		cfg.Session.DefaultAutoDetect = defaults.Session.DefaultAutoDetect
	}
	if cfg.Session.IdleTTLMinutes == 0 {
		cfg.Session.IdleTTLMinutes = defaults.Session.IdleTTLMinutes
	}

	if cfg.Cache.PlotSizeMB == 0 {
		cfg.Cache.PlotSizeMB = defaults.Cache.PlotSizeMB
	}
	if cfg.Cache.PlotTTLMinutes == 0 {
		cfg.Cache.PlotTTLMinutes = defaults.Cache.PlotTTLMinutes
	}
	if cfg.Cache.SeriesCacheSize == 0 {
		cfg.Cache.SeriesCacheSize = defaults.Cache.SeriesCacheSize
	}

	if cfg.Render.Width == 0 {
		cfg.Render.Width = defaults.Render.Width
	}
	if cfg.Render.Height == 0 {
		cfg.Render.Height = defaults.Render.Height
	}
	if cfg.Render.PointSize == 0 {
		cfg.Render.PointSize = defaults.Render.PointSize
	}
	if cfg.Render.Opacity == 0 {
		cfg.Render.Opacity = defaults.Render.Opacity
	}

	if cfg.History.Enabled == nil {
		cfg.History.Enabled = defaults.History.Enabled
	}
	if cfg.History.Path == "" {
		cfg.History.Path = defaults.History.Path
	}
	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = defaults.History.RetentionDays
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service.base_url %q is not an absolute URL", c.Service.BaseURL)
	}
	if !gating.ValidClusterCount(c.Session.DefaultClusters) {
		return fmt.Errorf("session.default_clusters must be between %d and %d, got %d",
			gating.MinClusters, gating.MaxClusters, c.Session.DefaultClusters)
	}
	if c.Service.TimeoutSeconds < 0 {
		return fmt.Errorf("service.timeout_seconds must not be negative")
	}
	if c.Render.Opacity < 0 || c.Render.Opacity > 1 {
		return fmt.Errorf("render.opacity must be within [0, 1], got %g", c.Render.Opacity)
	}
	return nil
}

// DefaultSelection returns the selection new sessions start with.
func (c *Config) DefaultSelection() gating.Selection {
	auto := true
	if c.Session.DefaultAutoDetect != nil {
		auto = *c.Session.DefaultAutoDetect
	}
	return gating.Selection{
		X:            c.Session.DefaultX,
		Y:            c.Session.DefaultY,
		ClusterCount: c.Session.DefaultClusters,
		AutoDetect:   auto,
	}
}

// ServiceTimeout returns the per-request timeout for the gating service.
func (c *Config) ServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSeconds) * time.Second
}

// IdleTTL returns how long an unused session is kept.
func (c *Config) IdleTTL() time.Duration {
	return time.Duration(c.Session.IdleTTLMinutes) * time.Minute
}

// PlotTTL returns the lifetime of cached plots.
func (c *Config) PlotTTL() time.Duration {
	return time.Duration(c.Cache.PlotTTLMinutes) * time.Minute
}

// MaxUploadBytes returns the upload size limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Service.MaxUploadMB) << 20
}

// HistoryEnabled reports whether runs are journaled.
func (c *Config) HistoryEnabled() bool {
	return c.History.Enabled == nil || *c.History.Enabled
}
