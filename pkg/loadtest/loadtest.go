// Package loadtest drives concurrent GET requests at a running staticd
// instance and classifies each attempt as a success, a failure, or a
// rejection by the server's admission control.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/staticd/internal/logger"
)

// Failure modes simulate client-side problems.
const (
	FailNone            = ""
	FailTimeout         = "timeout"
	FailConnectionError = "connection_error"
	FailRandomError     = "random_error"
)

const (
	DefaultURL            = "http://127.0.0.1:8080"
	DefaultRequests       = 50
	DefaultConcurrency    = 10
	DefaultTimeout        = 30 * time.Second
	DefaultTimeoutFailure = time.Millisecond
)

var errSimulated = errors.New("simulated connection error")

// errRejected marks an attempt eligible for retry.
var errRejected = errors.New("rejected")

// Config controls one load-test run.
type Config struct {
	URL         string        `json:"url" yaml:"url"`
	Requests    int           `json:"requests" yaml:"requests"`
	Concurrency int           `json:"concurrency" yaml:"concurrency"`
	Delay       time.Duration `json:"delay" yaml:"delay"`
	FailMode    string        `json:"fail_mode,omitempty" yaml:"fail_mode,omitempty"`
	ToggleCache bool          `json:"toggle_cache" yaml:"toggle_cache"`

	// Timeout bounds a normal request.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// TimeoutFailure is the request timeout used by the timeout fail modes.
	TimeoutFailure time.Duration `json:"timeout_failure" yaml:"timeout_failure"`

	// Retries is how many times a rejected attempt is retried with
	// exponential backoff before it is counted.
	Retries int `json:"retries" yaml:"retries"`
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	c.URL = strings.TrimRight(c.URL, "/")
	if c.Requests <= 0 {
		c.Requests = DefaultRequests
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.TimeoutFailure <= 0 {
		c.TimeoutFailure = DefaultTimeoutFailure
	}
}

// Validate rejects unknown fail modes and negative values.
func (c *Config) Validate() error {
	switch c.FailMode {
	case FailNone, FailTimeout, FailConnectionError, FailRandomError:
	default:
		return fmt.Errorf("unknown fail mode %q (valid: %s, %s, %s)",
			c.FailMode, FailTimeout, FailConnectionError, FailRandomError)
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must not be negative")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	return nil
}

// Option customizes a run.
type Option func(*runner)

// WithTransport replaces the HTTP transport used for every request.
func WithTransport(rt http.RoundTripper) Option {
	return func(r *runner) { r.transport = rt }
}

// WithRand sets the source used by the random_error mode.
func WithRand(rng *rand.Rand) Option {
	return func(r *runner) { r.rng = rng }
}

// WithRetryInterval sets the first backoff interval between retries.
func WithRetryInterval(d time.Duration) Option {
	return func(r *runner) { r.retryInterval = d }
}

type runner struct {
	cfg           Config
	transport     http.RoundTripper
	normal        *http.Client
	short         *http.Client
	rng           *rand.Rand
	rngMu         sync.Mutex
	retryInterval time.Duration

	mu     sync.Mutex
	report *Report
}

// Run executes cfg.Requests GET requests against cfg.URL with at most
// cfg.Concurrency in flight. Cancelling ctx stops submitting new requests;
// in-flight ones complete or fail on their own.
func Run(ctx context.Context, cfg Config, opts ...Option) (*Report, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &runner{
		cfg:           cfg,
		retryInterval: 50 * time.Millisecond,
		report:        &Report{URL: cfg.URL, FailMode: cfg.FailMode},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.transport == nil {
		// The server closes every connection after one response.
		r.transport = &http.Transport{DisableKeepAlives: true, Proxy: http.ProxyFromEnvironment}
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r.normal = &http.Client{Transport: r.transport, Timeout: cfg.Timeout}
	r.short = &http.Client{Transport: r.transport, Timeout: cfg.TimeoutFailure}

	if cfg.ToggleCache {
		text, err := toggle(ctx, r.normal, cfg.URL)
		if err != nil {
			logger.Warn("Failed to toggle cache", logger.Err(err))
		} else {
			r.report.ToggleResponse = text
		}
	}

	start := time.Now()
	jobs := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				r.execute(ctx)
			}
		}()
	}

submit:
	for i := 0; i < cfg.Requests; i++ {
		select {
		case jobs <- struct{}{}:
		case <-ctx.Done():
			break submit
		}
		if cfg.Delay > 0 && i < cfg.Requests-1 {
			select {
			case <-time.After(cfg.Delay):
			case <-ctx.Done():
				break submit
			}
		}
	}
	close(jobs)
	wg.Wait()

	r.report.Elapsed = time.Since(start)
	return r.report, nil
}

func (r *runner) execute(ctx context.Context) {
	var (
		outcome Outcome
		elapsed time.Duration
		tries   int
	)

	op := func() error {
		tries++
		var simulated bool
		outcome, elapsed, simulated = r.attempt(ctx)
		if outcome != OutcomeRejected {
			return nil
		}
		if simulated {
			return backoff.Permanent(errSimulated)
		}
		return errRejected
	}

	if r.cfg.Retries == 0 {
		_ = op()
	} else {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = r.retryInterval
		b.MaxInterval = time.Second
		b.MaxElapsedTime = 0
		_ = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.Retries)), ctx))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.record(outcome, elapsed)
	r.report.Retried += tries - 1
}

// attempt makes a single request. simulated is true when the rejection was
// produced by the connection_error fail mode without touching the network.
func (r *runner) attempt(ctx context.Context) (outcome Outcome, elapsed time.Duration, simulated bool) {
	client := r.normal
	switch r.cfg.FailMode {
	case FailTimeout:
		client = r.short
	case FailConnectionError:
		return OutcomeRejected, 0, true
	case FailRandomError:
		if !r.coin() {
			return OutcomeRejected, 0, true
		}
		client = r.short
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL, nil)
	if err != nil {
		return OutcomeFailed, 0, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return Classify(err), 0, false
	}
	_, err = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	elapsed = time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return OutcomeFailed, 0, false
	}
	if err != nil {
		return Classify(err), 0, false
	}
	return OutcomeSuccess, elapsed, false
}

func (r *runner) coin() bool {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.IntN(2) == 0
}

// Classify maps a transport error to an outcome. Timeouts are failures;
// refused, reset or dropped connections are rejections, which is how the
// server turns away clients it has no queue space for.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return OutcomeFailed
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return OutcomeRejected
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return OutcomeRejected
	}
	return OutcomeFailed
}

// ToggleCache asks the server at baseURL to flip its cache and returns the
// response text.
func ToggleCache(ctx context.Context, baseURL string) (string, error) {
	client := &http.Client{
		Transport: &http.Transport{DisableKeepAlives: true},
		Timeout:   DefaultTimeout,
	}
	return toggle(ctx, client, strings.TrimRight(baseURL, "/"))
}

func toggle(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/toggle_cache", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("toggle cache: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("toggle cache: read response: %w", err)
	}
	return string(body), nil
}
