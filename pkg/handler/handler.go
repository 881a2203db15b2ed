// Package handler serves one connection: it reads a single chunk, parses the
// request line, routes it and writes at most one response before closing.
package handler

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/internal/telemetry"
	"github.com/marmos91/staticd/pkg/bufpool"
	"github.com/marmos91/staticd/pkg/loader"
	"github.com/marmos91/staticd/pkg/metrics"
)

const (
	// DefaultToggleRoute flips the cache gate for any method.
	DefaultToggleRoute = "/toggle_cache"

	DefaultDocument       = "index.html"
	DefaultReadBufferSize = 1024
)

// Config controls routing and the request read.
type Config struct {
	// DefaultDocument is served for "/".
	DefaultDocument string

	// ReadBufferSize bounds the single read of the request.
	ReadBufferSize int

	// ToggleRoute is the control path that flips the cache gate.
	ToggleRoute string
}

func (c *Config) applyDefaults() {
	if c.DefaultDocument == "" {
		c.DefaultDocument = DefaultDocument
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.ToggleRoute == "" {
		c.ToggleRoute = DefaultToggleRoute
	}
}

// Metrics receives one observation per handled connection.
type Metrics interface {
	RecordRequest(status string, duration time.Duration)
}

// Handler is stateless apart from the shared loader and gate, so one
// instance serves every worker.
type Handler struct {
	cfg     Config
	loader  *loader.Loader
	bufs    *bufpool.Pool
	metrics Metrics
}

// New creates a handler. The cache gate is the loader's. m may be nil.
func New(l *loader.Loader, cfg Config, m Metrics) *Handler {
	cfg.applyDefaults()
	return &Handler{
		cfg:     cfg,
		loader:  l,
		bufs:    bufpool.NewPool(&bufpool.Config{RequestSize: cfg.ReadBufferSize}),
		metrics: m,
	}
}

// ServeConn handles conn to completion and always closes it.
//
// ctx should carry the connection's logger.LogContext; the handler adds the
// request line and trace identifiers to it.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) {
	start := time.Now()
	defer func() { _ = conn.Close() }()

	lc := logger.FromContext(ctx)
	var connID, client string
	if lc != nil {
		connID, client = lc.ConnectionID, lc.ClientAddr
	} else if addr := conn.RemoteAddr(); addr != nil {
		client = addr.String()
	}

	ctx, span := telemetry.StartRequestSpan(ctx, connID, client)
	defer span.End()
	if lc != nil {
		ctx = logger.WithContext(ctx, lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx)))
	}

	status := h.serve(ctx, conn)

	telemetry.SetAttributes(ctx, telemetry.HTTPStatus(status))
	metrics.RecordRequest(h.metrics, status, time.Since(start))
}

// serve does the work of ServeConn and returns the status class for metrics.
func (h *Handler) serve(ctx context.Context, conn net.Conn) string {
	buf := h.bufs.Get(h.cfg.ReadBufferSize)
	defer h.bufs.Put(buf)

	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			logger.ErrorCtx(ctx, "Error handling request", logger.Err(err))
			telemetry.RecordError(ctx, err)
			return metrics.StatusError
		}
		logger.DebugCtx(ctx, "Empty request, closing connection")
		return metrics.StatusMalformed
	}

	req, err := ParseRequestLine(buf[:n])
	if err != nil {
		logger.DebugCtx(ctx, "Malformed request, closing connection", logger.Err(err))
		return metrics.StatusMalformed
	}

	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithRequest(req.Method, req.Path))
	}
	telemetry.SetAttributes(ctx, telemetry.HTTPMethod(req.Method), telemetry.HTTPPath(req.Path))

	return h.route(ctx, conn, req)
}

func (h *Handler) route(ctx context.Context, conn net.Conn, req Request) string {
	if req.Path == h.cfg.ToggleRoute {
		enabled := h.loader.Gate().Toggle()
		logger.InfoCtx(ctx, "Cache toggled", logger.KeyCacheEnabled, enabled)
		return h.write(ctx, conn, CacheToggled(enabled), metrics.StatusToggle)
	}

	if req.Method != "GET" {
		logger.InfoCtx(ctx, "405 Method Not Allowed")
		return h.write(ctx, conn, MethodNotAllowed(), metrics.StatusMethodNotAllowed)
	}

	p := req.Path
	if p == "/" {
		p = "/" + h.cfg.DefaultDocument
	}

	key, ok := ResolvePath(p)
	if !ok {
		logger.InfoCtx(ctx, "404 Not Found", logger.KeyFile, p)
		return h.write(ctx, conn, NotFound(), metrics.StatusNotFound)
	}

	info, err := h.loader.Stat(ctx, key)
	if err != nil || info.IsDir {
		logger.InfoCtx(ctx, "404 Not Found", logger.KeyFile, key, logger.Err(err))
		return h.write(ctx, conn, NotFound(), metrics.StatusNotFound)
	}

	res, err := h.loader.Load(ctx, key)
	if err != nil {
		logger.ErrorCtx(ctx, "Error handling request", logger.KeyFile, key, logger.Err(err))
		telemetry.RecordError(ctx, err)
		return metrics.StatusError
	}

	status := h.write(ctx, conn, OK(res.Data), metrics.StatusOK)
	if status == metrics.StatusOK {
		logger.InfoCtx(ctx, "200 OK",
			logger.KeyFile, key,
			logger.KeySize, len(res.Data),
			logger.KeyCacheHit, res.CacheHit)
	}
	return status
}

// write sends resp in one Write call.
func (h *Handler) write(ctx context.Context, conn net.Conn, resp Response, status string) string {
	if _, err := conn.Write(resp.Encode()); err != nil {
		logger.ErrorCtx(ctx, "Error handling request", logger.Err(err))
		telemetry.RecordError(ctx, err)
		return metrics.StatusError
	}
	return status
}
