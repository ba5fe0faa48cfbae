// Package config defines service configuration and its defaults.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and environment variables on top of New.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// SessionTTLMinutes is how long an idle session keeps its history.
	SessionTTLMinutes int `koanf:"session_ttl_minutes"`

	// SessionSweepSeconds is the interval of the expired-session sweeper.
	SessionSweepSeconds int `koanf:"session_sweep_seconds"`

	// CookieName names the session cookie.
	CookieName string `koanf:"cookie_name"`

	// CookieSecure marks the session cookie Secure (HTTPS only).
	CookieSecure bool `koanf:"cookie_secure"`

	// DedupeSize bounds the gesture id cache. Zero means unbounded.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxPathPoints caps the samples accepted for a single gesture.
	MaxPathPoints int `koanf:"max_path_points"`

	// DefaultSurfaceWidth and DefaultSurfaceHeight give the center used
	// before a client reports its canvas size.
	DefaultSurfaceWidth  float64 `koanf:"default_surface_width"`
	DefaultSurfaceHeight float64 `koanf:"default_surface_height"`

	// RequestTimeoutSeconds bounds non-streaming HTTP handlers.
	RequestTimeoutSeconds int `koanf:"request_timeout_seconds"`

	// Metrics naming. Exported series are <namespace>_<subsystem>_<prefix>_<name>.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	MetricsPrefix    string `koanf:"metrics_prefix"`

	// MetricsRefreshSeconds is the period of the system metrics poller.
	MetricsRefreshSeconds int `koanf:"metrics_refresh_seconds"`

	// MetricsLatencyBuckets overrides the HTTP latency histogram buckets
	// (seconds, strictly increasing).
	MetricsLatencyBuckets []float64 `koanf:"metrics_latency_buckets"`

	// MetricsLabels are constant labels added to every series.
	MetricsLabels map[string]string `koanf:"metrics_labels"`
}

// New creates a Config populated with defaults. The context is reserved
// for loaders that need it.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		SessionTTLMinutes:     30,
		SessionSweepSeconds:   60,
		CookieName:            "circle_session",
		CookieSecure:          false,
		DedupeSize:            50_000,
		MaxPathPoints:         20_000,
		DefaultSurfaceWidth:   1280,
		DefaultSurfaceHeight:  720,
		RequestTimeoutSeconds: 15,
		MetricsNamespace:      "circle",
		MetricsSubsystem:      "game",
		MetricsRefreshSeconds: 10,
	}
}

// SessionTTL returns the idle session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// SessionSweepInterval returns the sweeper period.
func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepSeconds) * time.Second
}

// MetricsRefreshInterval returns the system metrics polling period.
func (c *Config) MetricsRefreshInterval() time.Duration {
	return time.Duration(c.MetricsRefreshSeconds) * time.Second
}

// RequestTimeout returns the HTTP handler timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
