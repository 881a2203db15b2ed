package logger

import (
	"log/slog"
	"time"
)

// Field keys shared by every log statement in the server, the admin API and
// the load tester. Keep them stable: dashboards query on them.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Connection
	KeyConnectionID = "connection_id"
	KeyClientAddr   = "client_addr"
	KeyActive       = "active"

	// Request line
	KeyMethod = "method"
	KeyPath   = "path"
	KeyFile   = "file" // resolved key inside the static root
	KeyStatus = "status"
	KeySize   = "size"

	// Dispatch
	KeyWorkerID      = "worker_id"
	KeyWorkers       = "workers"
	KeyQueueDepth    = "queue_depth"
	KeyQueueCapacity = "queue_capacity"
	KeyTimeout       = "timeout"

	// Cache
	KeyCacheEnabled = "cache_enabled"
	KeyCacheHit     = "cache_hit"
	KeySource       = "source" // origin name: dir, s3

	// Outcome
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"
)

// ConnectionID returns an attr for the per-connection uuid.
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// ClientAddr returns an attr for the peer address.
func ClientAddr(addr string) slog.Attr {
	return slog.String(KeyClientAddr, addr)
}

// Method returns an attr for the request method.
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path returns an attr for the raw decoded request path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// File returns an attr for the resolved file key.
func File(key string) slog.Attr {
	return slog.String(KeyFile, key)
}

// Status returns an attr for an HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// Size returns an attr for a payload size in bytes.
func Size(n int) slog.Attr {
	return slog.Int(KeySize, n)
}

// WorkerID returns an attr for a worker index.
func WorkerID(id int) slog.Attr {
	return slog.Int(KeyWorkerID, id)
}

// QueueDepth returns an attr for the number of queued tasks.
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// CacheEnabled returns an attr for the cache gate state.
func CacheEnabled(on bool) slog.Attr {
	return slog.Bool(KeyCacheEnabled, on)
}

// CacheHit returns an attr for a cache lookup outcome.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// Source returns an attr for the origin name.
func Source(name string) slog.Attr {
	return slog.String(KeySource, name)
}

// DurationMs returns an attr for an elapsed time in milliseconds.
func DurationMs(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMs, float64(d.Microseconds())/1000.0)
}

// Err returns an attr for an error. A nil error yields an empty attr, which
// handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
