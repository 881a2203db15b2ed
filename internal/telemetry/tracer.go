package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. HTTP keys follow the OpenTelemetry semantic conventions
// loosely; the request line is all we ever see.
const (
	AttrClientIP     = "client.ip"
	AttrConnectionID = "connection.id"

	AttrHTTPMethod = "http.method"
	AttrHTTPPath   = "http.path"
	AttrHTTPStatus = "http.status"

	AttrCacheHit     = "cache.hit"
	AttrCacheEnabled = "cache.enabled"

	AttrOriginSource = "origin.source"
	AttrOriginKey    = "origin.key"
	AttrBucket       = "storage.bucket"
	AttrSize         = "file.size"
)

// Span names.
const (
	// SpanRequest covers one connection from dequeue to close.
	SpanRequest = "staticd.request"

	// SpanLoad covers the loader resolving a key through the cache gate.
	SpanLoad = "staticd.load"

	// SpanOriginRead covers a single read against the backing source.
	SpanOriginRead = "origin.read"
)

func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

func ConnectionID(id string) attribute.KeyValue {
	return attribute.String(AttrConnectionID, id)
}

func HTTPMethod(m string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, m)
}

func HTTPPath(p string) attribute.KeyValue {
	return attribute.String(AttrHTTPPath, p)
}

// HTTPStatus records the status class written back, e.g. "200" or "toggle".
func HTTPStatus(s string) attribute.KeyValue {
	return attribute.String(AttrHTTPStatus, s)
}

func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

func CacheEnabled(on bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheEnabled, on)
}

func OriginSource(name string) attribute.KeyValue {
	return attribute.String(AttrOriginSource, name)
}

func OriginKey(key string) attribute.KeyValue {
	return attribute.String(AttrOriginKey, key)
}

func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

func Size(n int) attribute.KeyValue {
	return attribute.Int(AttrSize, n)
}

// StartRequestSpan opens the root span for a connection.
func StartRequestSpan(ctx context.Context, connID, clientIP string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanRequest,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(ConnectionID(connID), ClientIP(clientIP)))
}

// StartLoadSpan opens a child span for a loader lookup.
func StartLoadSpan(ctx context.Context, key string, cacheEnabled bool) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanLoad,
		trace.WithAttributes(OriginKey(key), CacheEnabled(cacheEnabled)))
}

// StartOriginSpan opens a span for a source read.
func StartOriginSpan(ctx context.Context, source, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{OriginSource(source), OriginKey(key)}, attrs...)
	return StartSpan(ctx, SpanOriginRead,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(all...))
}
