// Package prometheus implements metrics.ServerMetrics on top of the shared
// registry. Importing it (usually blank) registers the constructor.
package prometheus

import (
	"sync"
	"time"

	"github.com/marmos91/staticd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterServerMetricsConstructor(NewServerMetrics)
}

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
type serverMetrics struct {
	accepted          prometheus.Counter
	rejected          prometheus.Counter
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	queueDepth        prometheus.Gauge
	busyWorkers       prometheus.Gauge
	activeConnections prometheus.Gauge
	cacheLookups      *prometheus.CounterVec
	cacheEvictions    prometheus.Counter
	cacheEnabled      prometheus.Gauge
	originReads       *prometheus.CounterVec
	originDuration    *prometheus.HistogramVec
	originBytes       *prometheus.HistogramVec
	workerPanics      prometheus.Counter
}

var (
	instanceMu  sync.Mutex
	instanceReg *prometheus.Registry
	instance    *serverMetrics
)

// NewServerMetrics creates the collectors on the shared registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called). Repeated
// calls against the same registry return the same instance, since collectors
// can only be registered once.
func NewServerMetrics() metrics.ServerMetrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil && instanceReg == reg {
		return instance
	}

	f := promauto.With(reg)
	instance = &serverMetrics{
		accepted: f.NewCounter(prometheus.CounterOpts{
			Name: "staticd_connections_accepted_total",
			Help: "Connections admitted to the dispatch queue",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "staticd_connections_rejected_total",
			Help: "Connections closed because the dispatch queue stayed full",
		}),
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staticd_requests_total",
				Help: "Handled connections by status class",
			},
			[]string{"status"}, // 200, 404, 405, toggle, malformed, error
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "staticd_request_duration_milliseconds",
				Help: "Time from dequeue to connection close in milliseconds",
				Buckets: []float64{
					0.1,  // 100us - cache hits
					0.5,  // 500us
					1,    // 1ms
					5,    // 5ms - local disk reads
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms - remote origin reads
					500,  // 500ms
					1000, // 1s
				},
			},
			[]string{"status"},
		),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "staticd_queue_depth",
			Help: "Items currently waiting in the dispatch queue",
		}),
		busyWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "staticd_busy_workers",
			Help: "Workers currently handling a connection",
		}),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "staticd_active_connections",
			Help: "Connections accepted and not yet closed",
		}),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staticd_cache_lookups_total",
				Help: "Cache slot lookups by result",
			},
			[]string{"result"}, // hit, miss
		),
		cacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "staticd_cache_evictions_total",
			Help: "Entries pushed out of the single cache slot",
		}),
		cacheEnabled: f.NewGauge(prometheus.GaugeOpts{
			Name: "staticd_cache_enabled",
			Help: "1 when the cache gate is on, 0 otherwise",
		}),
		originReads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staticd_origin_reads_total",
				Help: "Reads against the file origin by source and outcome",
			},
			[]string{"source", "status"}, // status: success, error
		),
		originDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "staticd_origin_read_duration_milliseconds",
				Help:    "Duration of origin reads in milliseconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"source"},
		),
		originBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "staticd_origin_read_bytes",
				Help: "Distribution of bytes read from the origin",
				Buckets: []float64{
					1024,    // 1KB
					4096,    // 4KB
					32768,   // 32KB
					131072,  // 128KB
					1048576, // 1MB
					4194304, // 4MB
				},
			},
			[]string{"source"},
		),
		workerPanics: f.NewCounter(prometheus.CounterOpts{
			Name: "staticd_worker_panics_total",
			Help: "Handler panics recovered by the worker pool",
		}),
	}
	instanceReg = reg
	return instance
}

func (m *serverMetrics) RecordAccepted() {
	m.accepted.Inc()
}

func (m *serverMetrics) RecordRejected() {
	m.rejected.Inc()
}

func (m *serverMetrics) RecordRequest(status string, duration time.Duration) {
	m.requests.WithLabelValues(status).Inc()
	m.requestDuration.WithLabelValues(status).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *serverMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *serverMetrics) SetBusyWorkers(busy int) {
	m.busyWorkers.Set(float64(busy))
}

func (m *serverMetrics) SetActiveConnections(n int32) {
	m.activeConnections.Set(float64(n))
}

func (m *serverMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *serverMetrics) RecordCacheEviction() {
	m.cacheEvictions.Inc()
}

func (m *serverMetrics) SetCacheEnabled(enabled bool) {
	if enabled {
		m.cacheEnabled.Set(1)
		return
	}
	m.cacheEnabled.Set(0)
}

func (m *serverMetrics) ObserveOriginRead(source string, bytes int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.originReads.WithLabelValues(source, status).Inc()
	m.originDuration.WithLabelValues(source).Observe(float64(duration.Microseconds()) / 1000)
	if err == nil && bytes > 0 {
		m.originBytes.WithLabelValues(source).Observe(float64(bytes))
	}
}

func (m *serverMetrics) RecordWorkerPanic() {
	m.workerPanics.Inc()
}
