package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/aleotx/client"
	"github.com/brojonat/aleotx/service/config"
	"github.com/brojonat/aleotx/service/historystore"
	"github.com/brojonat/aleotx/service/metrics"
	natspkg "github.com/brojonat/aleotx/service/nats"
	"github.com/brojonat/aleotx/service/temporal"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry
	logger.Info("Prometheus metrics collector initialized")

	// Start metrics HTTP server
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Open the history backend. Over postgres or redis the worker and the
	// server prepend into the same slot atomically and read it back on every
	// query, so each sees the other's entries. The file backend is local to
	// one host.
	store, err := historystore.Open(ctx, cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to open history", "backend", cfg.HistoryBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if store.Backend == config.HistoryBackendFile {
		logger.Warn("worker is using the file history backend, entries are not shared with the server")
	}

	ledger := client.NewLedgerClient(cfg.LedgerRPCURL, cfg.LedgerRPS, nil, logger).WithRecorder(metricsCollector)

	var signer client.Signer
	var status client.StatusSource = client.NewLedgerStatusSource(ledger)
	if cfg.WalletBridgeURL != "" {
		bridge := client.NewWalletBridge(cfg.WalletBridgeURL, nil, logger)
		signer = bridge
		status = bridge
	} else {
		logger.Warn("WALLET_BRIDGE_URL not set, submissions will be rejected")
	}

	// Initialize NATS publisher (optional)
	var notifier client.Notifier
	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		notifier = natspkg.Notifier{Publisher: natsPublisher.WithRecorder(metricsCollector)}
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	pipeline := client.NewPipeline(client.PipelineOptions{
		Builder:       client.NewBuilder(cfg.TreasuryAddress, logger),
		Signer:        signer,
		Status:        status,
		History:       store.History,
		Recorder:      metricsCollector,
		Notifier:      notifier,
		Poller:        cfg.PollerConfig(),
		Retry:         cfg.RetryConfig(),
		ExplorerURL:   cfg.ExplorerURL,
		CallerAddress: cfg.CallerAddress,
		Logger:        logger,
	})

	// Initialize Temporal worker
	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Pipeline:          pipeline,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"ledger_rpc", cfg.LedgerRPCURL,
		"history_backend", store.Backend,
		"temporal_host", cfg.TemporalHost,
		"temporal_namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		logger.Info("starting temporal worker")
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Stop worker gracefully
		logger.Info("stopping temporal worker")
		worker.Stop()
		logger.Info("temporal worker stopped")

		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
