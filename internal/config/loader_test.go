package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/circle/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New(ctx))
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CIRCLE_ADDR", ":8080")
			_ = os.Setenv("CIRCLE_LOG_FORMAT", "json")
			_ = os.Setenv("CIRCLE_SESSION_TTL_MINUTES", "5")
			_ = os.Setenv("CIRCLE_COOKIE_SECURE", "true")
			_ = os.Setenv("CIRCLE_DEDUPE_SIZE", "1000")
			_ = os.Setenv("CIRCLE_DEFAULT_SURFACE_WIDTH", "800.5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.SessionTTLMinutes, convey.ShouldEqual, 5)
				convey.So(cfg.CookieSecure, convey.ShouldBeTrue)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 1000)
				convey.So(cfg.DefaultSurfaceWidth, convey.ShouldEqual, 800.5)
				convey.So(cfg.DefaultSurfaceHeight, convey.ShouldEqual, 720)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
log_level: debug
cookie_name: circle_dev
max_path_points: 5000
default_surface_width: 1920
default_surface_height: 1080
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CIRCLE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.CookieName, convey.ShouldEqual, "circle_dev")
				convey.So(cfg.MaxPathPoints, convey.ShouldEqual, 5000)
				convey.So(cfg.DefaultSurfaceWidth, convey.ShouldEqual, 1920)
				convey.So(cfg.DefaultSurfaceHeight, convey.ShouldEqual, 1080)
				convey.So(cfg.SessionTTLMinutes, convey.ShouldEqual, 30) // From defaults
			})
		})

		convey.Convey("When loading metrics settings from a YAML file", func() {
			tmpFile := createTempConfigFile(`
metrics_namespace: arcade
metrics_prefix: v2
metrics_refresh_seconds: 5
metrics_latency_buckets: [0.01, 0.1, 1]
metrics_labels:
  env: staging
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CIRCLE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then lists and maps are decoded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "arcade")
				convey.So(cfg.MetricsSubsystem, convey.ShouldEqual, "game") // From defaults
				convey.So(cfg.MetricsPrefix, convey.ShouldEqual, "v2")
				convey.So(cfg.MetricsRefreshInterval(), convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.MetricsLatencyBuckets, convey.ShouldResemble, []float64{0.01, 0.1, 1})
				convey.So(cfg.MetricsLabels, convey.ShouldResemble, map[string]string{"env": "staging"})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
session_ttl_minutes: 10
dedupe_size: 600
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CIRCLE_CONFIG", tmpFile)
			_ = os.Setenv("CIRCLE_ADDR", ":8080")
			_ = os.Setenv("CIRCLE_SESSION_TTL_MINUTES", "20")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")         // Overridden by env
				convey.So(cfg.SessionTTLMinutes, convey.ShouldEqual, 20) // Overridden by env
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 600)       // From file
				convey.So(cfg.MaxPathPoints, convey.ShouldEqual, 20_000) // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CIRCLE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("CIRCLE_CONFIG", "/non/existent/circle.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("CIRCLE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-positive TTL", func() {
			_ = os.Setenv("CIRCLE_SESSION_TTL_MINUTES", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("CIRCLE_MAX_PATH_POINTS", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, name := range []string{
		"CIRCLE_CONFIG",
		"CIRCLE_ADDR",
		"CIRCLE_LOG_LEVEL",
		"CIRCLE_LOG_FORMAT",
		"CIRCLE_SESSION_TTL_MINUTES",
		"CIRCLE_SESSION_SWEEP_SECONDS",
		"CIRCLE_COOKIE_NAME",
		"CIRCLE_COOKIE_SECURE",
		"CIRCLE_DEDUPE_SIZE",
		"CIRCLE_MAX_PATH_POINTS",
		"CIRCLE_DEFAULT_SURFACE_WIDTH",
		"CIRCLE_DEFAULT_SURFACE_HEIGHT",
		"CIRCLE_REQUEST_TIMEOUT_SECONDS",
		"CIRCLE_METRICS_NAMESPACE",
		"CIRCLE_METRICS_SUBSYSTEM",
		"CIRCLE_METRICS_PREFIX",
		"CIRCLE_METRICS_REFRESH_SECONDS",
	} {
		_ = os.Unsetenv(name)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "circle-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
