package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/staticd/internal/logger"
)

// ErrPoolStopped is returned by Submit once Stop has been called.
var ErrPoolStopped = errors.New("dispatch: pool stopped")

const (
	// DefaultWorkers is the pool size used when PoolConfig.Workers is unset.
	DefaultWorkers = 4

	// DefaultQueueCapacity is the queue bound used when PoolConfig.QueueCapacity is unset.
	DefaultQueueCapacity = 10
)

// PoolConfig sizes a Pool.
type PoolConfig struct {
	// Workers is the number of long-lived worker goroutines (T).
	Workers int

	// QueueCapacity is the bound of the dispatch queue (N).
	QueueCapacity int
}

// Metrics receives pool gauges and panic counts. A nil Metrics disables
// collection.
type Metrics interface {
	SetQueueDepth(depth int)
	SetBusyWorkers(busy int)
	RecordWorkerPanic()
}

// HandlerFunc processes one payload. It owns the payload for the duration of
// the call; no other worker ever sees it.
type HandlerFunc[T any] func(ctx context.Context, v T)

// PoolStats is a point-in-time snapshot of a Pool.
type PoolStats struct {
	Workers   int    `json:"workers"`
	Busy      int    `json:"busy"`
	Pending   int    `json:"pending"`
	Capacity  int    `json:"capacity"`
	Completed uint64 `json:"completed"`
	Panicked  uint64 `json:"panicked"`
}

// Pool runs a fixed number of workers draining a bounded Queue.
//
// Lifecycle:
//  1. NewPool creates the queue; nothing runs yet.
//  2. Start launches exactly Workers goroutines.
//  3. Submit admits work, waiting at most the given timeout for room.
//  4. Stop enqueues one stop signal per worker behind any queued work and
//     waits for every worker to exit.
//
// A panic inside the handler is recovered, logged and counted; the worker then
// goes back to the queue.
type Pool[T any] struct {
	cfg     PoolConfig
	queue   *Queue[Task[T]]
	handle  HandlerFunc[T]
	metrics Metrics

	wg        sync.WaitGroup
	stoppedCh chan struct{}

	mu      sync.Mutex
	started bool

	// admit guards stopping: Submit holds the read side while enqueuing so
	// no work can land behind the stop signals.
	admit    sync.RWMutex
	stopping bool

	// stopMu serializes Stop calls; stopsSent lets a timed-out Stop resume
	// without over-sending.
	stopMu    sync.Mutex
	stopsSent int

	busy      atomic.Int32
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// NewPool creates a pool that calls handle for every submitted payload.
func NewPool[T any](cfg PoolConfig, handle HandlerFunc[T], m Metrics) *Pool[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}

	return &Pool[T]{
		cfg:       cfg,
		queue:     NewQueue[Task[T]](cfg.QueueCapacity),
		handle:    handle,
		metrics:   m,
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the workers. Calling it again is a no-op.
//
// ctx is handed to the handler; it is not used to stop workers. Only Stop
// does that, so dequeued work always runs to completion.
func (p *Pool[T]) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	logger.Info("Starting worker pool",
		logger.KeyWorkers, p.cfg.Workers,
		logger.KeyQueueCapacity, p.queue.Cap())

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	go func() {
		p.wg.Wait()
		close(p.stoppedCh)
	}()
}

// Submit admits v, waiting up to timeout for queue space.
//
// Returns ErrQueueFull when the queue stays full for the whole timeout,
// ErrPoolStopped after Stop, or ctx.Err() if ctx ends the wait.
func (p *Pool[T]) Submit(ctx context.Context, v T, timeout time.Duration) error {
	p.admit.RLock()
	defer p.admit.RUnlock()

	if p.stopping {
		return ErrPoolStopped
	}

	if err := p.queue.Enqueue(ctx, Work(v), timeout); err != nil {
		return err
	}
	p.reportDepth()
	return nil
}

// Stop sends one stop signal per worker and waits for all of them to exit.
//
// Work queued before Stop is still handled because the signals go in behind
// it. If ctx ends first, Stop returns ctx.Err(); a later call picks up where
// it left off, sending only the signals that are still missing.
func (p *Pool[T]) Stop(ctx context.Context) error {
	p.admit.Lock()
	p.stopping = true
	p.admit.Unlock()

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	if p.stopsSent == 0 {
		logger.Info("Stopping worker pool", logger.KeyQueueDepth, p.queue.Len())
	}

	for p.stopsSent < p.cfg.Workers {
		if err := p.queue.Put(ctx, Stop[T]()); err != nil {
			return err
		}
		p.stopsSent++
	}

	select {
	case <-p.stoppedCh:
		logger.Info("Worker pool stopped",
			"completed", p.completed.Load(),
			"panicked", p.panicked.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once every worker has exited.
func (p *Pool[T]) Done() <-chan struct{} {
	return p.stoppedCh
}

func (p *Pool[T]) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger.Debug("Worker started", logger.WorkerID(id))

	for {
		task := p.queue.Dequeue()
		if task.IsStop() {
			logger.Debug("Worker received stop signal", logger.WorkerID(id))
			return
		}
		p.reportDepth()
		p.run(ctx, id, task.Payload())
	}
}

// run invokes the handler behind a recover boundary so one bad connection
// cannot take the worker down.
func (p *Pool[T]) run(ctx context.Context, id int, v T) {
	p.setBusy(p.busy.Add(1))
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.metrics != nil {
				p.metrics.RecordWorkerPanic()
			}
			logger.Error("Error in worker",
				logger.WorkerID(id),
				"panic", r,
				"stack", string(debug.Stack()))
		} else {
			p.completed.Add(1)
		}
		p.setBusy(p.busy.Add(-1))
	}()

	p.handle(ctx, v)
}

func (p *Pool[T]) setBusy(n int32) {
	if p.metrics != nil {
		p.metrics.SetBusyWorkers(int(n))
	}
}

func (p *Pool[T]) reportDepth() {
	if p.metrics != nil {
		p.metrics.SetQueueDepth(p.queue.Len())
	}
}

// Workers returns the configured pool size.
func (p *Pool[T]) Workers() int {
	return p.cfg.Workers
}

// Pending returns the number of queued tasks, stop signals included.
func (p *Pool[T]) Pending() int {
	return p.queue.Len()
}

// Capacity returns the queue bound.
func (p *Pool[T]) Capacity() int {
	return p.queue.Cap()
}

// Busy returns how many workers are inside the handler right now.
func (p *Pool[T]) Busy() int {
	return int(p.busy.Load())
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:   p.cfg.Workers,
		Busy:      p.Busy(),
		Pending:   p.queue.Len(),
		Capacity:  p.queue.Cap(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}
