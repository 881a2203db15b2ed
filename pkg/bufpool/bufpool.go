// Package bufpool hands out reusable byte slices for request reads.
//
// Every connection starts with a single bounded read of the request line. With
// T workers there are at most T such buffers live at once, so a small set of
// sync.Pool tiers is enough to make those reads allocation-free in steady
// state.
//
// # Tiers
//
//   - Request: the configured read buffer size (default 1KiB)
//   - Medium: 64KiB, for operators who raise read_buffer_size
//   - Large: 1MiB, the upper bound that is still pooled
//
// Anything larger is allocated directly and left to the GC.
//
// # Usage
//
//	buf := pool.Get(size)
//	defer pool.Put(buf)
package bufpool

import (
	"sync"
	"sync/atomic"
)

const (
	// DefaultRequestSize matches the default read_buffer_size.
	DefaultRequestSize = 1 << 10

	// DefaultMediumSize covers enlarged request buffers.
	DefaultMediumSize = 64 << 10

	// DefaultLargeSize is the largest pooled buffer.
	DefaultLargeSize = 1 << 20
)

// Config sizes the pool tiers. Zero values fall back to the defaults.
type Config struct {
	RequestSize int
	MediumSize  int
	LargeSize   int
}

// Stats counts pool traffic.
type Stats struct {
	Gets      uint64 `json:"gets"`
	Puts      uint64 `json:"puts"`
	Allocated uint64 `json:"allocated"`
	Oversized uint64 `json:"oversized"`
}

type tier struct {
	size int
	pool sync.Pool
}

// Pool is a tiered byte slice pool. It is safe for concurrent use.
type Pool struct {
	tiers [3]*tier

	gets      atomic.Uint64
	puts      atomic.Uint64
	allocated atomic.Uint64
	oversized atomic.Uint64
}

// NewPool creates a pool. A nil cfg uses the defaults.
func NewPool(cfg *Config) *Pool {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.RequestSize <= 0 {
		c.RequestSize = DefaultRequestSize
	}
	if c.MediumSize <= c.RequestSize {
		c.MediumSize = max(DefaultMediumSize, c.RequestSize*2)
	}
	if c.LargeSize <= c.MediumSize {
		c.LargeSize = max(DefaultLargeSize, c.MediumSize*2)
	}

	p := &Pool{}
	for i, size := range []int{c.RequestSize, c.MediumSize, c.LargeSize} {
		t := &tier{size: size}
		t.pool.New = func() any {
			p.allocated.Add(1)
			buf := make([]byte, t.size)
			return &buf
		}
		p.tiers[i] = t
	}
	return p
}

// Get returns a slice of length size backed by a pooled buffer when size fits
// a tier. Callers must hand it back with Put.
func (p *Pool) Get(size int) []byte {
	p.gets.Add(1)

	for _, t := range p.tiers {
		if size <= t.size {
			buf := *(t.pool.Get().(*[]byte))
			return buf[:size]
		}
	}

	p.oversized.Add(1)
	return make([]byte, size)
}

// Put returns buf to its tier. Buffers that did not come from a tier are
// dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}

	for _, t := range p.tiers {
		if cap(buf) == t.size {
			p.puts.Add(1)
			full := buf[:cap(buf)]
			t.pool.Put(&full)
			return
		}
	}
}

// Sizes returns the tier sizes, smallest first.
func (p *Pool) Sizes() []int {
	out := make([]int, len(p.tiers))
	for i, t := range p.tiers {
		out[i] = t.size
	}
	return out
}

// Stats returns the traffic counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Gets:      p.gets.Load(),
		Puts:      p.puts.Load(),
		Allocated: p.allocated.Load(),
		Oversized: p.oversized.Load(),
	}
}

var global = NewPool(nil)

// Get takes a buffer from the default pool.
func Get(size int) []byte {
	return global.Get(size)
}

// Put returns a buffer to the default pool.
func Put(buf []byte) {
	global.Put(buf)
}
