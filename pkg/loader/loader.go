package loader

import (
	"context"
	"time"

	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/internal/telemetry"
	"github.com/marmos91/staticd/pkg/cache"
)

// Metrics receives loader observations. metrics.ServerMetrics satisfies it; a
// nil Metrics disables collection.
type Metrics interface {
	RecordCacheLookup(hit bool)
	ObserveOriginRead(source string, bytes int, duration time.Duration, err error)
}

// Result is the outcome of a successful Load.
type Result struct {
	Data     []byte
	CacheHit bool
}

// Loader reads files from a Source through the cache gate.
//
// With the gate on, the single slot is consulted first and refilled on a
// miss. With the gate off, the slot is neither read nor written. Flipping the
// gate never clears the slot, so an entry cached before an off/on cycle is
// served again even if the file changed in between.
type Loader struct {
	src     Source
	gate    *cache.Gate
	slot    *cache.Slot
	metrics Metrics
}

// New creates a loader. m may be nil.
func New(src Source, gate *cache.Gate, slot *cache.Slot, m Metrics) *Loader {
	return &Loader{src: src, gate: gate, slot: slot, metrics: m}
}

// Source returns the backing source.
func (l *Loader) Source() Source {
	return l.src
}

// Gate returns the shared cache gate.
func (l *Loader) Gate() *cache.Gate {
	return l.gate
}

// Slot returns the cache slot.
func (l *Loader) Slot() *cache.Slot {
	return l.slot
}

// Stat forwards to the source; the cache is never consulted for existence.
func (l *Loader) Stat(ctx context.Context, key string) (Info, error) {
	return l.src.Stat(ctx, key)
}

// Load returns the content of key.
func (l *Loader) Load(ctx context.Context, key string) (Result, error) {
	enabled := l.gate.Enabled()

	ctx, span := telemetry.StartLoadSpan(ctx, key, enabled)
	defer span.End()

	if !enabled {
		data, err := l.read(ctx, key)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: data}, nil
	}

	if data, ok := l.slot.Get(key); ok {
		l.recordLookup(ctx, true)
		logger.DebugCtx(ctx, "Cache hit", logger.KeyFile, key)
		return Result{Data: data, CacheHit: true}, nil
	}
	l.recordLookup(ctx, false)

	data, err := l.read(ctx, key)
	if err != nil {
		return Result{}, err
	}
	l.slot.Add(key, data)
	return Result{Data: data}, nil
}

func (l *Loader) recordLookup(ctx context.Context, hit bool) {
	telemetry.SetAttributes(ctx, telemetry.CacheHit(hit))
	if l.metrics != nil {
		l.metrics.RecordCacheLookup(hit)
	}
}

func (l *Loader) read(ctx context.Context, key string) ([]byte, error) {
	ctx, span := telemetry.StartOriginSpan(ctx, l.src.Name(), key)
	defer span.End()

	start := time.Now()
	data, err := l.src.Read(ctx, key)
	if l.metrics != nil {
		l.metrics.ObserveOriginRead(l.src.Name(), len(data), time.Since(start), err)
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	telemetry.SetAttributes(ctx, telemetry.Size(len(data)))
	return data, nil
}
