package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/staticd/pkg/cache"
	"github.com/marmos91/staticd/pkg/server"
)

type fakeServer struct{}

func (fakeServer) Stats() server.Stats {
	return server.Stats{State: server.StateListening, Workers: 2}
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestAPIServer_Lifecycle(t *testing.T) {
	enabled := true
	cfg := APIConfig{
		Enabled:      &enabled,
		Host:         "127.0.0.1",
		Port:         freePort(t),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  10 * time.Second,
	}
	srv := NewServer(cfg, Deps{Server: fakeServer{}, Gate: cache.NewGate(true, nil)})

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	addr := srv.Addr()
	if addr == "" {
		t.Fatal("Server failed to bind")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Server returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down in time")
	}

	// Stop after shutdown is a no-op.
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("Second Stop returned error: %v", err)
	}
}

func TestAPIServer_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()

	srv := NewServer(APIConfig{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}, Deps{})
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("Expected bind error")
	}
	if srv.Addr() != "" {
		t.Errorf("Expected empty address, got %q", srv.Addr())
	}
}

func TestAPIConfig_Defaults(t *testing.T) {
	var cfg APIConfig
	if !cfg.IsEnabled() {
		t.Error("API should be enabled by default")
	}
	cfg.ApplyDefaults()
	if cfg.Port != DefaultPort || cfg.Host != "127.0.0.1" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.ReadTimeout != 10*time.Second || cfg.WriteTimeout != 10*time.Second || cfg.IdleTimeout != 60*time.Second {
		t.Errorf("Unexpected timeout defaults: %+v", cfg)
	}

	disabled := false
	cfg.Enabled = &disabled
	if cfg.IsEnabled() {
		t.Error("Explicit false should disable the API")
	}
}

func TestRouter_Routes(t *testing.T) {
	gate := cache.NewGate(true, nil)
	var metricsHit atomic.Bool
	router := NewRouter(Deps{
		Server: fakeServer{},
		Gate:   gate,
		Slot:   cache.NewSlot(nil),
		Origin: "dir",
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metricsHit.Store(true)
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
	ts := httptest.NewServer(router)
	defer ts.Close()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/health/ready", http.StatusOK},
		{"GET", "/api/v1/status", http.StatusOK},
		{"GET", "/api/v1/cache", http.StatusOK},
		{"POST", "/api/v1/cache/toggle", http.StatusOK},
		{"GET", "/api/v1/cache/toggle", http.StatusMethodNotAllowed},
		{"GET", "/metrics", http.StatusOK},
		{"GET", "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}

	if gate.Enabled() {
		t.Error("POST /api/v1/cache/toggle should have disabled the shared gate")
	}
	if !metricsHit.Load() {
		t.Error("Expected /metrics to reach the metrics handler")
	}
}

func TestRouter_NoMetricsMount(t *testing.T) {
	ts := httptest.NewServer(NewRouter(Deps{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 without a metrics handler, got %d", resp.StatusCode)
	}
}

func TestRouter_RootRedirectsToHealth(t *testing.T) {
	ts := httptest.NewServer(NewRouter(Deps{}))
	defer ts.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusTemporaryRedirect || !strings.HasSuffix(resp.Header.Get("Location"), "/health") {
		t.Errorf("Expected redirect to /health, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}
