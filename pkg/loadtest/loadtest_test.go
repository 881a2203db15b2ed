package loadtest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/staticd/pkg/cache"
	"github.com/marmos91/staticd/pkg/dispatch"
	"github.com/marmos91/staticd/pkg/handler"
	"github.com/marmos91/staticd/pkg/loader"
	"github.com/marmos91/staticd/pkg/server"
)

// startStaticd runs a real server over a temp static root and returns its URL.
func startStaticd(t *testing.T, workers, queue int) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>load</h1>"), 0o644))

	src, err := loader.NewDirSource(dir)
	require.NoError(t, err)
	l := loader.New(src, cache.NewGate(true, nil), cache.NewSlot(nil), nil)

	srv := server.New(server.Config{
		Host:             "127.0.0.1",
		Pool:             dispatch.PoolConfig{Workers: workers, QueueCapacity: queue},
		AdmissionTimeout: time.Second,
		ShutdownTimeout:  5 * time.Second,
	}, handler.New(l, handler.Config{}, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	addr := srv.Addr()
	require.NotEmpty(t, addr)
	return "http://" + addr
}

// flakyServer closes the first drop connections without answering and
// serves a 200 to the rest.
func flakyServer(t *testing.T, drop int32) (string, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var seen atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := seen.Add(1)
			go func() {
				defer func() { _ = conn.Close() }()
				if n <= drop {
					return
				}
				_, _ = http.ReadRequest(bufio.NewReader(conn))
				_, _ = io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok")
			}()
		}
	}()
	return "http://" + ln.Addr().String(), &seen
}

func TestRun_AgainstServer(t *testing.T) {
	url := startStaticd(t, 2, 8)

	report, err := Run(context.Background(), Config{URL: url, Requests: 20, Concurrency: 4})
	require.NoError(t, err)

	assert.Equal(t, 20, report.Total)
	assert.Equal(t, 20, report.Success, "failed=%d rejected=%d", report.Failed, report.Rejected)
	assert.Len(t, report.ResponseTimes, 20)
	assert.Positive(t, report.AverageResponseTime())
	assert.Positive(t, report.Elapsed)
}

func TestRun_ToggleCacheBeforeRun(t *testing.T) {
	url := startStaticd(t, 1, 4)

	report, err := Run(context.Background(), Config{URL: url + "/", Requests: 2, ToggleCache: true})
	require.NoError(t, err)
	assert.Equal(t, "Cache is now disabled.", report.ToggleResponse)
	assert.Equal(t, 2, report.Success)
}

func TestToggleCache(t *testing.T) {
	url := startStaticd(t, 1, 4)

	text, err := ToggleCache(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "Cache is now disabled.", text)

	text, err = ToggleCache(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "Cache is now enabled.", text)
}

func TestRun_NonOKIsFailed(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	report, err := Run(context.Background(), Config{URL: ts.URL, Requests: 5, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Failed)
	assert.Zero(t, report.Success)
	assert.Empty(t, report.ResponseTimes)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRun_WithTransport(t *testing.T) {
	var calls atomic.Int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		assert.Equal(t, "staticd.invalid", r.URL.Host)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("ok")),
			Request:    r,
		}, nil
	})

	report, err := Run(context.Background(),
		Config{URL: "http://staticd.invalid", Requests: 6, Concurrency: 3},
		WithTransport(rt))
	require.NoError(t, err)
	assert.Equal(t, 6, report.Success)
	assert.Equal(t, int32(6), calls.Load())
}

func TestRun_DroppedConnectionIsRejected(t *testing.T) {
	url, _ := flakyServer(t, 1000)

	report, err := Run(context.Background(), Config{URL: url, Requests: 4, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Rejected)
}

func TestRun_RefusedIsRejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	report, err := Run(context.Background(), Config{URL: "http://" + addr, Requests: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rejected)
}

func TestRun_RetriesRejectedAttempts(t *testing.T) {
	url, seen := flakyServer(t, 2)

	report, err := Run(context.Background(),
		Config{URL: url, Requests: 1, Retries: 3},
		WithRetryInterval(time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Success)
	assert.Equal(t, 2, report.Retried)
	assert.Equal(t, int32(3), seen.Load())
}

func TestRun_FailModes(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	t.Run("Timeout", func(t *testing.T) {
		report, err := Run(context.Background(), Config{URL: slow.URL, Requests: 3, FailMode: FailTimeout})
		require.NoError(t, err)
		assert.Equal(t, 3, report.Failed)
	})

	t.Run("ConnectionErrorIsNotRetried", func(t *testing.T) {
		report, err := Run(context.Background(),
			Config{URL: slow.URL, Requests: 4, FailMode: FailConnectionError, Retries: 5},
			WithRetryInterval(time.Millisecond))
		require.NoError(t, err)
		assert.Equal(t, 4, report.Rejected)
		assert.Zero(t, report.Retried)
	})

	t.Run("RandomError", func(t *testing.T) {
		report, err := Run(context.Background(),
			Config{URL: slow.URL, Requests: 20, Concurrency: 5, FailMode: FailRandomError},
			WithRand(rand.New(rand.NewPCG(1, 2))))
		require.NoError(t, err)
		assert.Equal(t, 20, report.Total)
		assert.Equal(t, 20, report.Failed+report.Rejected)
		assert.Zero(t, report.Success)
	})
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := Run(context.Background(), Config{FailMode: "explode"})
	assert.ErrorContains(t, err, "unknown fail mode")

	_, err = Run(context.Background(), Config{Retries: -1})
	assert.Error(t, err)
}

func TestRun_CancelStopsSubmitting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, Config{Requests: 100, FailMode: FailConnectionError})
	require.NoError(t, err)
	assert.Less(t, report.Total, 100)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"Nil", nil, OutcomeSuccess},
		{"Refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), OutcomeRejected},
		{"Reset", fmt.Errorf("read: %w", syscall.ECONNRESET), OutcomeRejected},
		{"EOF", fmt.Errorf("Get: %w", io.EOF), OutcomeRejected},
		{"OpError", &net.OpError{Op: "dial", Err: errors.New("no route")}, OutcomeRejected},
		{"Deadline", fmt.Errorf("Get: %w", context.DeadlineExceeded), OutcomeFailed},
		{"NetTimeout", &net.OpError{Op: "read", Err: timeoutErr{}}, OutcomeFailed},
		{"Other", errors.New("bad URL"), OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
