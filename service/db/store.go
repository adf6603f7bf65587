package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/aleotx/client"
)

// Schema creates the history slot table. Each slot holds one JSON list of
// history entries, most recent first.
const Schema = `
CREATE TABLE IF NOT EXISTS history_slots (
	slot       TEXT PRIMARY KEY,
	entries    JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// QueryRecorder receives database query measurements.
type QueryRecorder interface {
	RecordDBQuery(operation, table string, duration float64, err error)
}

// Store provides database operations for the service.
type Store struct {
	pool     *pgxpool.Pool
	recorder QueryRecorder
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// WithRecorder attaches a query recorder and returns s.
func (s *Store) WithRecorder(r QueryRecorder) *Store {
	s.recorder = r
	return s
}

// EnsureSchema creates the tables the store needs if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// HistorySlot is the stored state of one history slot.
type HistorySlot struct {
	Slot      string
	Entries   []client.HistoryEntry
	UpdatedAt time.Time
}

// GetHistorySlot returns the entries stored under slot. A slot that was never
// written yields an empty HistorySlot and no error.
func (s *Store) GetHistorySlot(ctx context.Context, slot string) (_ *HistorySlot, err error) {
	defer s.observe("get_history_slot", time.Now(), &err)

	var (
		raw       []byte
		updatedAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx,
		`SELECT entries, updated_at FROM history_slots WHERE slot = $1`, slot,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &HistorySlot{Slot: slot}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history slot %q: %w", slot, err)
	}

	var entries []client.HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history slot %q: %w", slot, err)
	}

	return &HistorySlot{Slot: slot, Entries: entries, UpdatedAt: timeFromPgTimestamptz(updatedAt)}, nil
}

// PutHistorySlot replaces the entries stored under slot.
func (s *Store) PutHistorySlot(ctx context.Context, slot string, entries []client.HistoryEntry) (err error) {
	defer s.observe("put_history_slot", time.Now(), &err)

	if entries == nil {
		entries = []client.HistoryEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode history slot %q: %w", slot, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO history_slots (slot, entries, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (slot) DO UPDATE
		SET entries = EXCLUDED.entries, updated_at = EXCLUDED.updated_at`,
		slot, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to write history slot %q: %w", slot, err)
	}
	return nil
}

// PrependHistoryEntry adds entry to the front of slot, trimmed to capacity,
// unless an entry with its ID is already stored. The row is locked for the
// read-modify-write so concurrent writers never lose each other's entries.
func (s *Store) PrependHistoryEntry(ctx context.Context, slot string, entry client.HistoryEntry, capacity int) (err error) {
	defer s.observe("prepend_history_entry", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Make sure there is a row to lock.
	if _, err = tx.Exec(ctx,
		`INSERT INTO history_slots (slot) VALUES ($1) ON CONFLICT (slot) DO NOTHING`, slot,
	); err != nil {
		return fmt.Errorf("failed to create history slot %q: %w", slot, err)
	}

	var raw []byte
	if err = tx.QueryRow(ctx,
		`SELECT entries FROM history_slots WHERE slot = $1 FOR UPDATE`, slot,
	).Scan(&raw); err != nil {
		return fmt.Errorf("failed to lock history slot %q: %w", slot, err)
	}

	var entries []client.HistoryEntry
	if err = json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("failed to decode history slot %q: %w", slot, err)
	}
	next, added := client.PrependEntry(entries, entry, capacity)
	if !added {
		return nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode history slot %q: %w", slot, err)
	}
	if _, err = tx.Exec(ctx,
		`UPDATE history_slots SET entries = $2::jsonb, updated_at = now() WHERE slot = $1`,
		slot, string(data),
	); err != nil {
		return fmt.Errorf("failed to write history slot %q: %w", slot, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit history slot %q: %w", slot, err)
	}
	return nil
}

// DeleteHistorySlot removes slot entirely.
func (s *Store) DeleteHistorySlot(ctx context.Context, slot string) (err error) {
	defer s.observe("delete_history_slot", time.Now(), &err)

	if _, err = s.pool.Exec(ctx, `DELETE FROM history_slots WHERE slot = $1`, slot); err != nil {
		return fmt.Errorf("failed to delete history slot %q: %w", slot, err)
	}
	return nil
}

// HistoryPersister returns a client.SharedPersister backed by slot.
func (s *Store) HistoryPersister(slot string) *HistoryPersister {
	return &HistoryPersister{store: s, slot: slot}
}

// HistoryPersister stores a client.History in one history_slots row.
type HistoryPersister struct {
	store *Store
	slot  string
}

var _ client.SharedPersister = (*HistoryPersister)(nil)

// Load implements client.Persister.
func (p *HistoryPersister) Load(ctx context.Context) ([]client.HistoryEntry, error) {
	hs, err := p.store.GetHistorySlot(ctx, p.slot)
	if err != nil {
		return nil, err
	}
	return hs.Entries, nil
}

// Save implements client.Persister.
func (p *HistoryPersister) Save(ctx context.Context, entries []client.HistoryEntry) error {
	return p.store.PutHistorySlot(ctx, p.slot, entries)
}

// Prepend implements client.SharedPersister.
func (p *HistoryPersister) Prepend(ctx context.Context, entry client.HistoryEntry, capacity int) error {
	return p.store.PrependHistoryEntry(ctx, p.slot, entry, capacity)
}

func (s *Store) observe(operation string, start time.Time, errp *error) {
	if s.recorder != nil {
		s.recorder.RecordDBQuery(operation, "history_slots", time.Since(start).Seconds(), *errp)
	}
}

func timeFromPgTimestamptz(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
