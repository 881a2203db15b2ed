// Package server runs the accept loop in front of the worker pool and
// coordinates graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/pkg/dispatch"
	"github.com/marmos91/staticd/pkg/metrics"
)

var (
	// ErrServerClosed is returned by Serve when the server was already
	// started or stopped.
	ErrServerClosed = errors.New("server: closed")

	// ErrShutdownTimeout is wrapped by Serve when draining outlived
	// ShutdownTimeout and client connections had to be force-closed.
	ErrShutdownTimeout = errors.New("server: shutdown timeout exceeded")
)

const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 8080
	DefaultAdmissionTimeout = 5 * time.Second
	DefaultShutdownTimeout  = 30 * time.Second
)

// Config holds the listener, admission and shutdown settings.
type Config struct {
	// Host is the address to bind; empty binds every interface.
	Host string

	// Port is the TCP port. 0 picks a free port (see Addr).
	Port int

	// Pool sizes the worker pool and its queue.
	Pool dispatch.PoolConfig

	// AdmissionTimeout is how long the accept loop waits for queue space
	// before rejecting a connection.
	AdmissionTimeout time.Duration

	// ShutdownTimeout bounds the drain before open client connections are
	// force-closed.
	ShutdownTimeout time.Duration

	// MetricsLogInterval enables a periodic stats log line. 0 disables it.
	MetricsLogInterval time.Duration
}

// ConnHandler serves one connection and closes it.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// Metrics records accept-loop events and pool gauges. metrics.ServerMetrics
// satisfies it; nil disables collection.
type Metrics interface {
	dispatch.Metrics
	RecordAccepted()
	RecordRejected()
	SetActiveConnections(n int32)
}

// Stats is a point-in-time view of the server.
type Stats struct {
	State             State  `json:"state"`
	Address           string `json:"address"`
	Workers           int    `json:"workers"`
	BusyWorkers       int    `json:"busy_workers"`
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	ActiveConnections int32  `json:"active_connections"`
	Accepted          uint64 `json:"accepted"`
	Rejected          uint64 `json:"rejected"`
	Completed         uint64 `json:"completed"`
	Panicked          uint64 `json:"panicked"`
}

// client is the pool payload: the socket plus what the handler logs with.
type client struct {
	conn net.Conn
	id   string
	lc   *logger.LogContext
}

// Server owns the listener, the dispatch pool and connection tracking.
//
// Shutdown sequence:
//  1. Context cancellation or Stop closes the listener and aborts any
//     in-progress admission wait (that connection is rejected).
//  2. One stop signal per worker is queued behind the admitted work.
//  3. If draining outlives ShutdownTimeout, tracked client connections are
//     force-closed so blocked workers finish quickly.
//  4. Once every worker has consumed its stop signal the server is STOPPED.
//
// Thread safety:
// All exported methods are safe for concurrent use. Shutdown is guarded by
// sync.Once, so Stop may be called any number of times.
type Server struct {
	cfg     Config
	handler ConnHandler
	metrics Metrics
	pool    *dispatch.Pool[*client]

	state atomic.Int32

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady is closed once Serve has bound (or failed to bind).
	ListenerReady chan struct{}
	readyOnce     sync.Once

	shutdownOnce sync.Once
	shutdown     chan struct{}
	stopped      chan struct{}

	// admitCtx is cancelled at shutdown to cut an admission wait short.
	admitCtx    context.Context
	cancelAdmit context.CancelFunc

	// conns maps connection id to net.Conn for forced closure.
	conns     sync.Map
	connCount atomic.Int32

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// New creates a server in StateCreated. m may be nil.
func New(cfg Config, h ConnHandler, m Metrics) *Server {
	if cfg.AdmissionTimeout <= 0 {
		cfg.AdmissionTimeout = DefaultAdmissionTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	admitCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:           cfg,
		handler:       h,
		metrics:       m,
		ListenerReady: make(chan struct{}),
		shutdown:      make(chan struct{}),
		stopped:       make(chan struct{}),
		admitCtx:      admitCtx,
		cancelAdmit:   cancel,
	}

	var pm dispatch.Metrics
	if m != nil {
		pm = m
	}
	s.pool = dispatch.NewPool(cfg.Pool, s.handle, pm)
	return s
}

// Serve listens and runs the accept loop until ctx is cancelled or Stop is
// called, then drains. It returns nil after a clean drain.
func (s *Server) Serve(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateListening)) {
		return ErrServerClosed
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.state.Store(int32(StateStopped))
		s.markReady()
		s.shutdownOnce.Do(func() { close(s.shutdown) })
		close(s.stopped)
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// A Stop that ran before the listener was stored found nothing to close.
	s.listenerMu.Lock()
	s.listener = ln
	select {
	case <-s.shutdown:
		_ = ln.Close()
	default:
	}
	s.listenerMu.Unlock()
	s.markReady()

	logger.Info("Server started at http://"+ln.Addr().String(),
		logger.KeyWorkers, s.pool.Workers(),
		logger.KeyQueueCapacity, s.pool.Capacity(),
		logger.KeyTimeout, s.cfg.AdmissionTimeout)

	// Dequeued work runs to completion, so workers never see cancellation.
	s.pool.Start(context.WithoutCancel(ctx))

	go func() {
		select {
		case <-ctx.Done():
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.cfg.MetricsLogInterval > 0 {
		go s.logMetrics()
	}

	s.acceptLoop(ln)
	return s.drain()
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ListenerReady) })
}

// acceptLoop is the single producer. It returns once the listener is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	var backoff time.Duration

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				s.initiateShutdown()
				return
			}

			// Transient accept failure (e.g. EMFILE): back off like net/http.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, time.Second)
			}
			logger.Warn("Error accepting connection", logger.Err(err), "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.admit(nc)
	}
}

// admit gives nc exactly one outcome: queued for a worker, or closed.
func (s *Server) admit(nc net.Conn) {
	if tcp, ok := nc.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			logger.Debug("Failed to set TCP_NODELAY", logger.Err(err))
		}
	}

	c := &client{conn: nc, id: uuid.NewString()}
	c.lc = logger.NewLogContext(c.id, nc.RemoteAddr().String())
	active := s.track(c)

	logger.Debug("Connection accepted",
		logger.KeyConnectionID, c.id,
		logger.KeyClientAddr, c.lc.ClientAddr,
		logger.KeyActive, active)

	err := s.pool.Submit(s.admitCtx, c, s.cfg.AdmissionTimeout)
	if err == nil {
		s.accepted.Add(1)
		metrics.RecordAccepted(s.metrics)
		return
	}

	s.rejected.Add(1)
	metrics.RecordRejected(s.metrics)
	if errors.Is(err, dispatch.ErrQueueFull) {
		logger.Warn("Connection rejected: queue full",
			logger.KeyConnectionID, c.id,
			logger.KeyClientAddr, c.lc.ClientAddr,
			logger.KeyQueueDepth, s.pool.Pending())
	} else {
		logger.Info("Connection rejected: server shutting down",
			logger.KeyConnectionID, c.id,
			logger.KeyClientAddr, c.lc.ClientAddr)
	}
	s.release(c)
}

// handle is the pool's handler func.
func (s *Server) handle(ctx context.Context, c *client) {
	defer s.release(c)
	s.handler.ServeConn(logger.WithContext(ctx, c.lc), c.conn)
}

func (s *Server) track(c *client) int32 {
	s.conns.Store(c.id, c.conn)
	n := s.connCount.Add(1)
	metrics.SetActiveConnections(s.metrics, n)
	return n
}

// release closes and untracks c. Safe to call more than once.
func (s *Server) release(c *client) {
	_ = c.conn.Close()
	if _, loaded := s.conns.LoadAndDelete(c.id); !loaded {
		return
	}
	n := s.connCount.Add(-1)
	metrics.SetActiveConnections(s.metrics, n)
}

// initiateShutdown moves to DRAINING and stops intake. Idempotent.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateListening), int32(StateDraining))
		logger.Info("Server shutting down...",
			logger.KeyQueueDepth, s.pool.Pending(),
			logger.KeyActive, s.connCount.Load())

		close(s.shutdown)
		s.cancelAdmit()

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener", logger.Err(err))
			}
		}
		s.listenerMu.Unlock()
	})
}

// drain stops the pool, force-closing stuck clients after ShutdownTimeout.
func (s *Server) drain() error {
	s.initiateShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	err := s.pool.Stop(ctx)
	cancel()

	var result error
	if err != nil {
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded, forcing closure",
			logger.KeyActive, remaining,
			logger.KeyTimeout, s.cfg.ShutdownTimeout)
		closed := s.forceCloseConnections()
		result = fmt.Errorf("%w: %d connections force-closed", ErrShutdownTimeout, closed)

		// Workers still consume their stop signals before we report STOPPED.
		_ = s.pool.Stop(context.Background())
	}

	s.state.Store(int32(StateStopped))
	close(s.stopped)
	logger.Info("Server stopped.",
		"accepted", s.accepted.Load(),
		"rejected", s.rejected.Load())
	return result
}

func (s *Server) forceCloseConnections() int {
	closed := 0
	s.conns.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.Close(); err == nil {
				closed++
				logger.Debug("Force-closed connection", logger.KeyConnectionID, key)
			}
		}
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed connections", "count", closed)
	}
	return closed
}

// Stop begins shutdown and waits until the server is STOPPED or ctx ends.
// A server that was never started is marked stopped immediately.
func (s *Server) Stop(ctx context.Context) error {
	if s.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
		s.markReady()
		s.shutdownOnce.Do(func() { close(s.shutdown) })
		close(s.stopped)
		return nil
	}

	s.initiateShutdown()

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		logger.Warn("Shutdown wait cancelled",
			logger.KeyActive, s.connCount.Load(),
			logger.Err(ctx.Err()))
		return ctx.Err()
	}
}

// Done is closed once the server reaches StateStopped.
func (s *Server) Done() <-chan struct{} {
	return s.stopped
}

func (s *Server) logMetrics() {
	ticker := time.NewTicker(s.cfg.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			st := s.Stats()
			logger.Info("Server metrics",
				logger.KeyActive, st.ActiveConnections,
				logger.KeyQueueDepth, st.QueueDepth,
				"busy_workers", st.BusyWorkers,
				"accepted", st.Accepted,
				"rejected", st.Rejected,
				"completed", st.Completed)
		}
	}
}

// Addr blocks until the listener is bound and returns its address, or "" if
// binding failed.
func (s *Server) Addr() string {
	<-s.ListenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// State returns the lifecycle phase.
func (s *Server) State() State {
	return State(s.state.Load())
}

// QueueDepth returns the number of items waiting in the dispatch queue.
func (s *Server) QueueDepth() int {
	return s.pool.Pending()
}

// ActiveConnections returns accepted connections not yet closed.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Stats returns a snapshot of server and pool counters.
func (s *Server) Stats() Stats {
	ps := s.pool.Stats()

	var addr string
	s.listenerMu.RLock()
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	s.listenerMu.RUnlock()

	return Stats{
		State:             s.State(),
		Address:           addr,
		Workers:           ps.Workers,
		BusyWorkers:       ps.Busy,
		QueueDepth:        ps.Pending,
		QueueCapacity:     ps.Capacity,
		ActiveConnections: s.connCount.Load(),
		Accepted:          s.accepted.Load(),
		Rejected:          s.rejected.Load(),
		Completed:         ps.Completed,
		Panicked:          ps.Panicked,
	}
}
