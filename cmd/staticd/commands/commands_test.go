package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/staticd/internal/cli/output"
	"github.com/marmos91/staticd/pkg/api"
	"github.com/marmos91/staticd/pkg/api/handlers"
	"github.com/marmos91/staticd/pkg/apiclient"
	"github.com/marmos91/staticd/pkg/cache"
	"github.com/marmos91/staticd/pkg/config"
	"github.com/marmos91/staticd/pkg/loadtest"
	"github.com/marmos91/staticd/pkg/server"
)

func TestExtractTimestamp(t *testing.T) {
	local := time.Date(2024, 1, 15, 10, 30, 45, 123_000_000, time.Local)

	tests := []struct {
		name string
		line string
		want time.Time
	}{
		{
			name: "text handler",
			line: "[2024-01-15 10:30:45.123] [INFO] Connection accepted client=127.0.0.1:5000",
			want: local,
		},
		{
			name: "json handler",
			line: `{"time":"2024-01-15T10:30:45.123Z","level":"INFO","msg":"Cache toggled"}`,
			want: time.Date(2024, 1, 15, 10, 30, 45, 123_000_000, time.UTC),
		},
		{name: "no timestamp", line: "panic: something"},
		{name: "malformed bracket", line: "[not a time] [INFO] x"},
		{name: "malformed json time", line: `{"time":"yesterday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTimestamp(tt.line)
			if tt.want.IsZero() {
				assert.True(t, got.IsZero())
				return
			}
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestTailLines(t *testing.T) {
	input := "one\ntwo\nthree\nfour\n"

	lines, err := tailLines(strings.NewReader(input), 2, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, lines)

	lines, err = tailLines(strings.NewReader(input), 10, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three", "four"}, lines)

	lines, err = tailLines(strings.NewReader(input), 0, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestTailLines_Since(t *testing.T) {
	input := strings.Join([]string{
		"[2024-01-15 09:00:00.000] [INFO] old",
		"[2024-01-15 11:00:00.000] [INFO] new",
		"    continuation without timestamp",
	}, "\n")
	since := time.Date(2024, 1, 15, 10, 0, 0, 0, time.Local)

	lines, err := tailLines(strings.NewReader(input), 100, since)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[2024-01-15 11:00:00.000] [INFO] new",
		"    continuation without timestamp",
	}, lines)
}

func TestShowLogs(t *testing.T) {
	file := filepath.Join(t.TempDir(), "staticd.log")
	require.NoError(t, os.WriteFile(file, []byte("a\nb\nc\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, showLogs(&buf, file, 2, time.Time{}))
	assert.Equal(t, "b\nc\n", buf.String())

	err := showLogs(&buf, filepath.Join(t.TempDir(), "missing.log"), 2, time.Time{})
	assert.Error(t, err)
}

func TestFollowLogs_StopsOnCancel(t *testing.T) {
	file := filepath.Join(t.TempDir(), "staticd.log")
	require.NoError(t, os.WriteFile(file, []byte("first\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	require.NoError(t, followLogs(ctx, &buf, file, 10, time.Time{}))
	assert.Equal(t, "first\n", buf.String())
}

// newStartFlags mirrors startCmd's flags on a fresh command so parsing in
// tests does not mark the real flags as changed.
func newStartFlags() *cobra.Command {
	cmd := &cobra.Command{Use: "start"}
	cmd.Flags().StringVar(&startHost, "host", "", "")
	cmd.Flags().IntVarP(&startPort, "port", "p", 0, "")
	cmd.Flags().StringVarP(&startStaticDir, "static-dir", "d", "", "")
	cmd.Flags().IntVarP(&startWorkers, "workers", "w", 0, "")
	cmd.Flags().IntVarP(&startQueueCapacity, "queue-capacity", "q", 0, "")
	cmd.Flags().BoolVar(&startNoCache, "no-cache", false, "")
	return cmd
}

func TestApplyStartFlags(t *testing.T) {
	cmd := newStartFlags()
	require.NoError(t, cmd.Flags().Parse([]string{"--port", "9000", "-w", "8", "--no-cache"}))

	cfg := config.GetDefaultConfig()
	applyStartFlags(cmd, cfg)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Server.Workers)
	assert.False(t, cfg.Server.IsCacheEnabled())

	// Untouched flags keep the configured values.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 10, cfg.Server.QueueCapacity)
	assert.Equal(t, "static", cfg.Server.StaticDir)
}

type fixedStats struct {
	stats server.Stats
}

func (f fixedStats) Stats() server.Stats { return f.stats }

func newTestAPIClient(t *testing.T, deps api.Deps) *apiclient.Client {
	t.Helper()
	ts := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(ts.Close)
	return apiclient.New(ts.URL).WithHTTPClient(ts.Client())
}

func TestQueryStatus(t *testing.T) {
	slot := cache.NewSlot(nil)
	slot.Add("static/index.html", []byte("hi"))

	client := newTestAPIClient(t, api.Deps{
		Server: fixedStats{stats: server.Stats{
			State:         server.StateListening,
			Address:       "127.0.0.1:8080",
			Workers:       4,
			BusyWorkers:   1,
			QueueCapacity: 10,
			Accepted:      12,
			Rejected:      2,
			Completed:     10,
		}},
		Gate:   cache.NewGate(true, nil),
		Slot:   slot,
		Origin: "dir:static",
	})

	status := queryStatus(context.Background(), client)
	assert.True(t, status.Running)
	assert.Equal(t, "listening", status.State)
	assert.Equal(t, "127.0.0.1:8080", status.Address)
	assert.Equal(t, "dir:static", status.Origin)
	assert.Equal(t, uint64(12), status.Accepted)
	assert.Equal(t, uint64(2), status.Rejected)
	assert.True(t, status.CacheEnabled)
	assert.Equal(t, "static/index.html", status.CachedFile)

	var buf bytes.Buffer
	require.NoError(t, output.NewPrinter(&buf, output.FormatTable, false).Print(status))
	assert.Contains(t, buf.String(), "1/4 busy")
	assert.Contains(t, buf.String(), "static/index.html")
}

func TestQueryStatus_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	status := queryStatus(context.Background(), apiclient.New(url))
	assert.False(t, status.Running)
	assert.Contains(t, status.Message, "not running")
	assert.Equal(t, [][]string{{"Status", "stopped"}, {"Message", status.Message}}, status.Rows())
}

func TestQueryStatus_ServerMissing(t *testing.T) {
	client := newTestAPIClient(t, api.Deps{})

	status := queryStatus(context.Background(), client)
	assert.True(t, status.Running)
	assert.Contains(t, status.Message, "server not initialized")
}

func TestCacheView_Rows(t *testing.T) {
	rows := cacheView{CacheStatus: handlers.CacheStatus{Enabled: false}}.Rows()
	assert.Equal(t, [][]string{
		{"Cache", "disabled"},
		{"Entries", "0"},
		{"Cached File", "-"},
	}, rows)
}

func TestLoadtestFlagAliases(t *testing.T) {
	cmd := &cobra.Command{Use: "loadtest"}
	var threads int
	var toggle bool
	cmd.Flags().IntVar(&threads, "concurrency", 1, "")
	cmd.Flags().BoolVar(&toggle, "toggle-cache", false, "")
	cmd.Flags().SetNormalizeFunc(loadtestFlagAliases)

	require.NoError(t, cmd.Flags().Parse([]string{"--threads", "7", "--toggle_cache"}))
	assert.Equal(t, 7, threads)
	assert.True(t, toggle)
}

func TestPrintLoadtestReport(t *testing.T) {
	report := &loadtest.Report{
		URL:            "http://127.0.0.1:8080",
		ToggleResponse: "Cache is now disabled.",
		Total:          3,
		Success:        2,
		Rejected:       1,
		ResponseTimes:  []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		Elapsed:        50 * time.Millisecond,
	}

	var buf bytes.Buffer
	require.NoError(t, printLoadtestReport(output.NewPrinter(&buf, output.FormatTable, false), report))
	out := buf.String()
	assert.Contains(t, out, "Target: http://127.0.0.1:8080")
	assert.Contains(t, out, "Cache toggle: Cache is now disabled.")
	assert.Contains(t, out, "Rejected")

	buf.Reset()
	require.NoError(t, printLoadtestReport(output.NewPrinter(&buf, output.FormatJSON, false), report))
	assert.NotContains(t, buf.String(), "Target:")
	assert.Contains(t, buf.String(), `"rejected": 1`)
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range GetRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "init", "status", "cache", "logs", "loadtest", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
