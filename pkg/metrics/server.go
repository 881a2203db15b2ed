package metrics

import "time"

// Request status classes used as the "status" label.
const (
	StatusOK               = "200"
	StatusNotFound         = "404"
	StatusMethodNotAllowed = "405"
	StatusToggle           = "toggle"
	StatusMalformed        = "malformed"
	StatusError            = "error"
)

// ServerMetrics is everything the accept loop, the worker pool, the handler
// and the loader report. Each component declares the narrow subset it needs,
// and a ServerMetrics satisfies all of them.
type ServerMetrics interface {
	// RecordAccepted counts a connection admitted to the queue.
	RecordAccepted()

	// RecordRejected counts a connection dropped because the queue was full.
	RecordRejected()

	// RecordRequest counts one handled connection by status class.
	RecordRequest(status string, duration time.Duration)

	SetQueueDepth(depth int)
	SetBusyWorkers(busy int)
	SetActiveConnections(n int32)

	// RecordCacheLookup counts a slot lookup made while the gate is on.
	RecordCacheLookup(hit bool)
	RecordCacheEviction()
	SetCacheEnabled(enabled bool)

	// ObserveOriginRead records a read against the backing source.
	ObserveOriginRead(source string, bytes int, duration time.Duration, err error)

	RecordWorkerPanic()
}

// NewServerMetrics returns the Prometheus-backed ServerMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or if no
// implementation has registered itself. Pass the nil straight through to the
// components; they skip collection.
//
// Example usage:
//
//	metrics.InitRegistry()
//	m := metrics.NewServerMetrics()
//	pool := dispatch.NewPool(cfg, handle, m)
func NewServerMetrics() ServerMetrics {
	if !IsEnabled() || newPrometheusServerMetrics == nil {
		return nil
	}
	return newPrometheusServerMetrics()
}

// newPrometheusServerMetrics is set by pkg/metrics/prometheus.
// The indirection keeps this package free of implementation imports.
var newPrometheusServerMetrics func() ServerMetrics

// RegisterServerMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterServerMetricsConstructor(constructor func() ServerMetrics) {
	newPrometheusServerMetrics = constructor
}

// The nil-safe wrappers below accept any value with the matching method so
// components can hold narrow metrics interfaces. A nil m is a no-op.

// RecordAccepted is a nil-safe wrapper.
func RecordAccepted(m interface{ RecordAccepted() }) {
	if m != nil {
		m.RecordAccepted()
	}
}

// RecordRejected is a nil-safe wrapper.
func RecordRejected(m interface{ RecordRejected() }) {
	if m != nil {
		m.RecordRejected()
	}
}

// RecordRequest is a nil-safe wrapper.
//
// Example usage:
//
//	start := time.Now()
//	status := serve(conn)
//	metrics.RecordRequest(m, status, time.Since(start))
func RecordRequest(m interface {
	RecordRequest(status string, duration time.Duration)
}, status string, duration time.Duration) {
	if m != nil {
		m.RecordRequest(status, duration)
	}
}

// SetCacheEnabled is a nil-safe wrapper.
func SetCacheEnabled(m interface{ SetCacheEnabled(enabled bool) }, enabled bool) {
	if m != nil {
		m.SetCacheEnabled(enabled)
	}
}

// SetActiveConnections is a nil-safe wrapper.
func SetActiveConnections(m interface{ SetActiveConnections(n int32) }, n int32) {
	if m != nil {
		m.SetActiveConnections(n)
	}
}
