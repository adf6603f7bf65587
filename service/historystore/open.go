// Package historystore opens the configured history backend.
package historystore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/aleotx/client"
	"github.com/brojonat/aleotx/service/cache"
	"github.com/brojonat/aleotx/service/config"
	"github.com/brojonat/aleotx/service/db"
)

// Handle is an open history together with the connection backing it.
type Handle struct {
	History *client.History
	Backend string
	// Store is set for the postgres backend.
	Store *db.Store

	closers []func()
}

// Close releases the backend connection.
func (h *Handle) Close() {
	for _, c := range h.closers {
		c()
	}
}

// Open builds the persister selected by cfg.HistoryBackend and loads the
// history from it. The recorder may be nil.
func Open(ctx context.Context, cfg *config.Config, recorder db.QueryRecorder, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handle{Backend: cfg.HistoryBackend}
	var persister client.Persister

	switch cfg.HistoryBackend {
	case config.HistoryBackendFile:
		persister = client.NewFilePersister(cfg.HistoryFile)

	case config.HistoryBackendPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, pool.Close)

		store := db.NewStore(pool)
		if recorder != nil {
			store.WithRecorder(recorder)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			h.Close()
			return nil, err
		}
		h.Store = store
		persister = store.HistoryPersister(cfg.HistorySlot)

	case config.HistoryBackendRedis:
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, func() { rdb.Close() })
		persister = cache.NewHistoryPersister(rdb, cfg.HistorySlot)

	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}

	h.History = client.NewHistory(ctx, persister, cfg.HistoryCap, logger)
	logger.Info("history opened",
		"backend", h.Backend,
		"entries", h.History.Len(),
		"cap", h.History.Cap(),
	)
	return h, nil
}
