// Package cache holds the runtime cache switch and the single-entry file
// cache behind it.
package cache

import (
	"sync"

	"github.com/marmos91/staticd/pkg/metrics"
)

// GateObserver is notified every time the gate changes. metrics.ServerMetrics
// satisfies it.
type GateObserver interface {
	SetCacheEnabled(enabled bool)
}

// Gate is the process-wide cache on/off switch. One Gate is shared by the
// loader, the control route and the admin API.
type Gate struct {
	mu       sync.Mutex
	enabled  bool
	observer GateObserver
}

// NewGate creates a gate in the given state. observer may be nil.
func NewGate(enabled bool, observer GateObserver) *Gate {
	g := &Gate{enabled: enabled, observer: observer}
	g.notify(enabled)
	return g
}

// Enabled reports the current state.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Set forces the gate into the given state.
func (g *Gate) Set(enabled bool) {
	g.mu.Lock()
	g.enabled = enabled
	g.mu.Unlock()
	g.notify(enabled)
}

// Toggle flips the gate and returns the new state. Concurrent toggles are
// serialized; each one observes the result of the previous.
func (g *Gate) Toggle() bool {
	g.mu.Lock()
	g.enabled = !g.enabled
	now := g.enabled
	g.mu.Unlock()
	g.notify(now)
	return now
}

func (g *Gate) notify(enabled bool) {
	metrics.SetCacheEnabled(g.observer, enabled)
}
