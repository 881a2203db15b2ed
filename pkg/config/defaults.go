package config

import (
	"strings"
	"time"

	"github.com/marmos91/staticd/internal/bytesize"
	"github.com/marmos91/staticd/pkg/api"
	"github.com/marmos91/staticd/pkg/dispatch"
	"github.com/marmos91/staticd/pkg/handler"
	"github.com/marmos91/staticd/pkg/server"
)

// DefaultMetricsPort is the Prometheus scrape port.
const DefaultMetricsPort = 9090

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyOriginDefaults(&cfg.Origin)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	cfg.API.ApplyDefaults()
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = server.DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = server.DefaultPort
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "static"
	}
	if cfg.DefaultDocument == "" {
		cfg.DefaultDocument = handler.DefaultDocument
	}
	if cfg.Workers == 0 {
		cfg.Workers = dispatch.DefaultWorkers
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = dispatch.DefaultQueueCapacity
	}
	if cfg.AdmissionTimeout == 0 {
		cfg.AdmissionTimeout = server.DefaultAdmissionTimeout
	}
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = bytesize.ByteSize(handler.DefaultReadBufferSize)
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = server.DefaultShutdownTimeout
	}
	// CacheEnabled stays nil when unset; IsCacheEnabled reports true.
}

func applyOriginDefaults(cfg *OriginConfig) {
	if cfg.Type == "" {
		cfg.Type = OriginDir
	}
	cfg.Type = strings.ToLower(cfg.Type)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cacheEnabled := true
	apiEnabled := true
	cfg := &Config{
		Server: ServerConfig{
			CacheEnabled:     &cacheEnabled,
			AdmissionTimeout: 5 * time.Second,
		},
		API: api.APIConfig{
			Enabled: &apiEnabled,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
