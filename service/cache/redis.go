package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/brojonat/aleotx/client"
)

// Connect parses a redis:// URL, opens a client and verifies it with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// HistoryPersister stores a client.History as one JSON value under a key.
type HistoryPersister struct {
	client *redis.Client
	key    string
}

var _ client.SharedPersister = (*HistoryPersister)(nil)

// maxPrependRetries bounds optimistic retries when another writer changes the
// key between WATCH and EXEC.
const maxPrependRetries = 10

// NewHistoryPersister creates a persister writing to key.
func NewHistoryPersister(rdb *redis.Client, key string) *HistoryPersister {
	return &HistoryPersister{client: rdb, key: key}
}

// Load implements client.Persister. A missing key yields no entries.
func (p *HistoryPersister) Load(ctx context.Context) ([]client.HistoryEntry, error) {
	val, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.key, err)
	}

	var entries []client.HistoryEntry
	if err := json.Unmarshal(val, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p.key, err)
	}
	return entries, nil
}

// Save implements client.Persister. The value never expires.
func (p *HistoryPersister) Save(ctx context.Context, entries []client.HistoryEntry) error {
	if entries == nil {
		entries = []client.HistoryEntry{}
	}
	val, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", p.key, err)
	}
	if err := p.client.Set(ctx, p.key, val, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", p.key, err)
	}
	return nil
}

// Prepend implements client.SharedPersister. The key is watched while the
// list is read and rewritten, and the update is retried if another writer
// got there first.
func (p *HistoryPersister) Prepend(ctx context.Context, entry client.HistoryEntry, capacity int) error {
	txf := func(tx *redis.Tx) error {
		var entries []client.HistoryEntry
		val, err := tx.Get(ctx, p.key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("failed to read %s: %w", p.key, err)
		default:
			if err := json.Unmarshal(val, &entries); err != nil {
				return fmt.Errorf("failed to decode %s: %w", p.key, err)
			}
		}

		next, added := client.PrependEntry(entries, entry, capacity)
		if !added {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", p.key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, p.key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxPrependRetries; i++ {
		err := p.client.Watch(ctx, txf, p.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to prepend to %s: %w", p.key, err)
		}
		return nil
	}
	return fmt.Errorf("failed to prepend to %s: too much contention", p.key)
}

// Delete removes the key.
func (p *HistoryPersister) Delete(ctx context.Context) error {
	return p.client.Del(ctx, p.key).Err()
}
