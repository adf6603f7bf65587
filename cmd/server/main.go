package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brojonat/aleotx/client"
	"github.com/brojonat/aleotx/service/config"
	"github.com/brojonat/aleotx/service/historystore"
	"github.com/brojonat/aleotx/service/metrics"
	natspkg "github.com/brojonat/aleotx/service/nats"
	"github.com/brojonat/aleotx/service/server"
	"github.com/brojonat/aleotx/service/temporal"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"history_backend", cfg.HistoryBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Open the history backend
	store, err := historystore.Open(ctx, cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to open history", "backend", cfg.HistoryBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	metricsCollector.RecordHistorySize("server", store.History.Len())

	// Ledger RPC client
	ledger := client.NewLedgerClient(cfg.LedgerRPCURL, cfg.LedgerRPS, nil, logger).WithRecorder(metricsCollector)
	logger.Info("initialized ledger client", "url", cfg.LedgerRPCURL, "rps", cfg.LedgerRPS)

	// The wallet bridge signs and reports status. Without it the server can
	// still read the ledger but every submission reports wallet_not_connected.
	var signer client.Signer
	var status client.StatusSource = client.NewLedgerStatusSource(ledger)
	if cfg.WalletBridgeURL != "" {
		bridge := client.NewWalletBridge(cfg.WalletBridgeURL, nil, logger)
		signer = bridge
		status = bridge
		logger.Info("using wallet bridge", "url", cfg.WalletBridgeURL)
	} else {
		logger.Warn("WALLET_BRIDGE_URL not set, submissions will be rejected")
	}

	// NATS publisher and SSE stream (optional)
	var notifier client.Notifier
	var ssePublisher *server.SSEPublisher
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		notifier = natspkg.Notifier{Publisher: publisher.WithRecorder(metricsCollector)}

		ssePublisher, err = server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create SSE publisher", "error", err)
			os.Exit(1)
		}
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

	// Temporal client for async operations. The server stays up without it
	// and answers synchronous submissions only.
	var dispatcher temporal.Dispatcher
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		logger.Warn("temporal unavailable, async operations disabled", "error", err)
	} else {
		defer temporalClient.Close()
		dispatcher = temporalClient
	}

	httpServer := server.New(cfg.ServerAddr, cfg, pipeline, dispatcher, ledger, ssePublisher, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"ledger_rpc", cfg.LedgerRPCURL,
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
		"async", dispatcher != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
