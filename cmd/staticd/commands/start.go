package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/internal/telemetry"
	"github.com/marmos91/staticd/pkg/api"
	"github.com/marmos91/staticd/pkg/cache"
	"github.com/marmos91/staticd/pkg/config"
	"github.com/marmos91/staticd/pkg/dispatch"
	"github.com/marmos91/staticd/pkg/handler"
	"github.com/marmos91/staticd/pkg/loader"
	"github.com/marmos91/staticd/pkg/metrics"
	"github.com/marmos91/staticd/pkg/server"
	"github.com/spf13/cobra"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/staticd/pkg/metrics/prometheus"
)

var (
	startHost          string
	startPort          int
	startStaticDir     string
	startWorkers       int
	startQueueCapacity int
	startNoCache       bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the staticd server",
	Long: `Start the staticd server in the foreground.

Flags override the configuration file and STATICD_* environment variables.
Stop the server with Ctrl+C (SIGINT) or SIGTERM: the listener closes, queued
connections are still served, and the process exits once every worker is done.

Examples:
  # Serve ./static on 127.0.0.1:8080 with defaults
  staticd start

  # Serve another directory with a larger pool
  staticd start --static-dir /srv/www --workers 16 --queue-capacity 64

  # Start with the cache off
  staticd start --no-cache

  # Start with environment variable overrides
  STATICD_LOGGING_LEVEL=DEBUG staticd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startHost, "host", "", "Listen address (overrides server.host)")
	startCmd.Flags().IntVarP(&startPort, "port", "p", 0, "Listen port (overrides server.port)")
	startCmd.Flags().StringVarP(&startStaticDir, "static-dir", "d", "", "Directory to serve (overrides server.static_dir)")
	startCmd.Flags().IntVarP(&startWorkers, "workers", "w", 0, "Worker count (overrides server.workers)")
	startCmd.Flags().IntVarP(&startQueueCapacity, "queue-capacity", "q", 0, "Dispatch queue bound (overrides server.queue_capacity)")
	startCmd.Flags().BoolVar(&startNoCache, "no-cache", false, "Start with the cache gate off")
}

// applyStartFlags copies explicitly set flags onto cfg.
func applyStartFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = startHost
	}
	if flags.Changed("port") {
		cfg.Server.Port = startPort
	}
	if flags.Changed("static-dir") {
		cfg.Server.StaticDir = startStaticDir
	}
	if flags.Changed("workers") {
		cfg.Server.Workers = startWorkers
	}
	if flags.Changed("queue-capacity") {
		cfg.Server.QueueCapacity = startQueueCapacity
	}
	if flags.Changed("no-cache") && startNoCache {
		off := false
		cfg.Server.CacheEnabled = &off
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	applyStartFlags(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "staticd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "staticd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	metricsResult := config.InitializeMetrics(cfg)
	m := metricsResult.ServerMetrics

	src, err := config.CreateSource(ctx, cfg)
	if err != nil {
		return err
	}

	gate := cache.NewGate(cfg.Server.IsCacheEnabled(), m)
	slot := cache.NewSlot(m)
	fileLoader := loader.New(src, gate, slot, m)

	h := handler.New(fileLoader, handler.Config{
		DefaultDocument: cfg.Server.DefaultDocument,
		ReadBufferSize:  cfg.Server.ReadBufferSize.Int(),
	}, m)

	srv := server.New(server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Pool: dispatch.PoolConfig{
			Workers:       cfg.Server.Workers,
			QueueCapacity: cfg.Server.QueueCapacity,
		},
		AdmissionTimeout:   cfg.Server.AdmissionTimeout,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
		MetricsLogInterval: cfg.Server.MetricsLogInterval,
	}, h, m)

	logger.Info("Server configured",
		logger.KeyWorkers, cfg.Server.Workers,
		logger.KeyQueueCapacity, cfg.Server.QueueCapacity,
		logger.KeyCacheEnabled, gate.Enabled(),
		"origin", cfg.Origin.Describe(cfg.Server.StaticDir))

	// Side servers live until the file server has drained.
	sideCtx, stopSide := context.WithCancel(context.Background())
	defer stopSide()
	var side sync.WaitGroup

	if metricsResult.Server != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		side.Add(1)
		go func() {
			defer side.Done()
			if err := metricsResult.Server.Start(sideCtx); err != nil {
				logger.Error("Metrics server error", logger.Err(err))
			}
		}()
	}

	if cfg.API.IsEnabled() {
		var metricsHandler http.Handler
		if metrics.IsEnabled() {
			metricsHandler = metrics.Handler()
		}
		apiServer := api.NewServer(cfg.API, api.Deps{
			Server:  srv,
			Gate:    gate,
			Slot:    slot,
			Origin:  cfg.Origin.Describe(cfg.Server.StaticDir),
			Metrics: metricsHandler,
		})
		side.Add(1)
		go func() {
			defer side.Done()
			if err := apiServer.Start(sideCtx); err != nil {
				logger.Error("API server error", logger.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	go func() {
		if addr := srv.Addr(); addr != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Server started at http://%s\n", addr)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		serveErr = <-serverDone

	case serveErr = <-serverDone:
		signal.Stop(sigChan)
	}

	stopSide()
	side.Wait()

	if serveErr != nil {
		if errors.Is(serveErr, server.ErrShutdownTimeout) {
			logger.Warn("Server stopped after forcing connections closed", logger.Err(serveErr))
		} else {
			logger.Error("Server error", logger.Err(serveErr))
		}
		return serveErr
	}
	return nil
}
