package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/aleotx/client"
	"github.com/brojonat/aleotx/service/config"
	"github.com/brojonat/aleotx/service/metrics"
	"github.com/brojonat/aleotx/service/temporal"
)

// Server represents the HTTP server for the transaction service.
type Server struct {
	addr         string
	cfg          *config.Config
	pipeline     *client.Pipeline
	dispatcher   temporal.Dispatcher
	ledger       *client.LedgerClient
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The pipeline runs synchronous operations and owns the history.
// The dispatcher is optional - if nil, async operations are rejected.
// The ledger is optional - if nil, ledger endpoints return 503.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, pipeline *client.Pipeline, dispatcher temporal.Dispatcher, ledger *client.LedgerClient, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:         addr,
		cfg:          cfg,
		pipeline:     pipeline,
		dispatcher:   dispatcher,
		ledger:       ledger,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Handler builds the routed handler, including CORS and request metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	retry := client.RetryConfig{}
	if s.cfg != nil {
		retry = s.cfg.RetryConfig()
	}

	// Operation routes
	s.handle(mux, "POST /api/v1/operations", handleSubmitOperation(s.pipeline, s.dispatcher, retry, s.metrics, s.logger))
	s.handle(mux, "GET /api/v1/operations/{workflow_id}", handleGetOperation(s.dispatcher, s.logger))

	// History routes
	s.handle(mux, "GET /api/v1/history", handleListHistory(s.pipeline.History(), s.logger))
	s.handle(mux, "DELETE /api/v1/history", handleClearHistory(s.pipeline.History(), s.metrics, s.logger))

	// Ledger routes
	s.handle(mux, "GET /api/v1/ledger/height", handleLedgerHeight(s.ledger, s.logger))
	s.handle(mux, "GET /api/v1/ledger/transactions/{id}", handleLedgerTransaction(s.ledger, s.logger))

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/operations/{kind}", handleStreamOperations(s.ssePublisher, s.logger))
		mux.Handle("GET /api/v1/stream/operations", handleStreamOperations(s.ssePublisher, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	if s.metrics != nil {
		h = metrics.HTTPMetricsMiddleware(s.metrics, "")(h)
	}
	mux.Handle(pattern, h)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	// Synchronous submissions wait for confirmation.
	writeTimeout := 15 * time.Second
	if s.cfg != nil {
		if budget := time.Duration(s.cfg.MaxRetries*s.cfg.PollMaxAttempts) * s.cfg.PollInterval; budget > 0 {
			writeTimeout += budget
		}
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr, "write_timeout", writeTimeout)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	// Then shutdown HTTP server
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
