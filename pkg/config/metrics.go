package config

import (
	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/pkg/metrics"
)

// MetricsResult is what InitializeMetrics produced. Both fields are nil when
// metrics are disabled; components accept the nil ServerMetrics as "off".
type MetricsResult struct {
	Server        *metrics.HTTPServer
	ServerMetrics metrics.ServerMetrics
}

// InitializeMetrics creates the registry, the collectors and the scrape
// server when metrics are enabled.
//
// The Prometheus implementation registers itself from an init function, so
// the binary must import pkg/metrics/prometheus for collectors to exist.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		logger.Debug("Metrics collection disabled")
		return MetricsResult{}
	}

	metrics.InitRegistry()
	m := metrics.NewServerMetrics()
	if m == nil {
		logger.Warn("Metrics enabled but no implementation is registered")
	}

	return MetricsResult{
		Server:        metrics.NewHTTPServer(cfg.Server.Host, cfg.Metrics.Port),
		ServerMetrics: m,
	}
}
