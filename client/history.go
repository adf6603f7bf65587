package client

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryCap is the number of entries kept when no cap is given.
const DefaultHistoryCap = 100

// HistoryEntry is one archived operation outcome.
type HistoryEntry struct {
	ID   string        `json:"id"`
	Kind OperationKind `json:"kind"`
	SubmissionResult
	RecipientAddress string         `json:"recipient_address,omitempty"`
	AmountBaseUnits  uint64         `json:"amount_base_units,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	// CreatedAt is in epoch milliseconds.
	CreatedAt    int64  `json:"created_at"`
	ExplorerLink string `json:"explorer_link,omitempty"`
}

// CreatedTime returns CreatedAt as a time.Time.
func (e HistoryEntry) CreatedTime() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// HistoryQuery filters History.Query. Zero fields do not filter. StartTime
// and EndTime are inclusive epoch milliseconds.
type HistoryQuery struct {
	Kind      OperationKind
	StartTime int64
	EndTime   int64
	Limit     int
}

// Persister stores the whole history list in one slot.
type Persister interface {
	Load(ctx context.Context) ([]HistoryEntry, error)
	Save(ctx context.Context, entries []HistoryEntry) error
}

// SharedPersister is a Persister whose slot other processes write too.
// Prepend must apply PrependEntry to the stored list atomically, so
// concurrent writers never drop each other's entries.
type SharedPersister interface {
	Persister
	Prepend(ctx context.Context, entry HistoryEntry, capacity int) error
}

// PrependEntry returns entries with entry in front, trimmed to capacity.
// When an entry with the same ID is already present entries is returned
// unchanged and added is false.
func PrependEntry(entries []HistoryEntry, entry HistoryEntry, capacity int) (next []HistoryEntry, added bool) {
	for _, e := range entries {
		if e.ID == entry.ID {
			return entries, false
		}
	}
	next = make([]HistoryEntry, 0, min(len(entries)+1, capacity))
	next = append(next, entry)
	for _, e := range entries {
		if len(next) == capacity {
			break
		}
		next = append(next, e)
	}
	return next, true
}

// History is a capped, most-recent-first log of operation outcomes. Record,
// Query and Clear are serialized; persistence failures are logged and
// otherwise ignored.
//
// Over a SharedPersister the stored slot is the source of truth: Record
// prepends through it and Query and Clear read and write it directly. The
// local copy only serves reads while the backend is unreachable.
type History struct {
	mu        sync.Mutex
	entries   []HistoryEntry
	cap       int
	persister Persister
	shared    SharedPersister
	logger    *slog.Logger
	now       func() time.Time
}

// NewHistory creates a history and loads any previously persisted entries.
// A nil persister keeps the history in memory only.
func NewHistory(ctx context.Context, persister Persister, capacity int, logger *slog.Logger) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	h := &History{
		cap:       capacity,
		persister: persister,
		logger:    logger,
		now:       time.Now,
	}
	h.shared, _ = persister.(SharedPersister)

	if persister != nil {
		entries, err := persister.Load(ctx)
		if err != nil {
			logger.Warn("failed to load history, starting empty", "error", err)
		} else {
			if len(entries) > capacity {
				entries = entries[:capacity]
			}
			h.entries = entries
		}
	}

	return h
}

// Record prepends entry, evicts the oldest entries beyond the cap and
// persists the list. Missing ID and CreatedAt are filled in. An entry whose
// ID is already stored is not added again. The stored entry is returned.
func (h *History) Record(ctx context.Context, entry HistoryEntry) HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = h.now().UnixMilli()
	}

	if h.shared != nil {
		if err := h.shared.Prepend(ctx, entry, h.cap); err != nil {
			h.logger.Warn("failed to persist history entry", "error", err, "id", entry.ID)
			h.entries, _ = PrependEntry(h.entries, entry, h.cap)
		} else {
			h.refreshLocked(ctx)
		}
		return h.findLocked(entry)
	}

	next, added := PrependEntry(h.entries, entry, h.cap)
	if !added {
		return h.findLocked(entry)
	}
	h.entries = next
	h.persistLocked(ctx)
	return entry
}

// Query returns the entries matching q, most recent first.
func (h *History) Query(ctx context.Context, q HistoryQuery) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.shared != nil {
		h.refreshLocked(ctx)
	}

	out := make([]HistoryEntry, 0, len(h.entries))
	for _, e := range h.entries {
		if q.Kind != "" && e.Kind != q.Kind {
			continue
		}
		if q.StartTime != 0 && e.CreatedAt < q.StartTime {
			continue
		}
		if q.EndTime != 0 && e.CreatedAt > q.EndTime {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Len returns the number of entries as of the last read or write. It does
// not go to a shared backend.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Cap returns the maximum number of stored entries.
func (h *History) Cap() int {
	return h.cap
}

// Clear removes every entry and persists the empty list. Over a shared
// backend this clears the slot for every process.
func (h *History) Clear(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = nil
	h.persistLocked(ctx)
}

// refreshLocked replaces the local copy with the stored slot. On error the
// local copy is kept.
func (h *History) refreshLocked(ctx context.Context) {
	entries, err := h.shared.Load(ctx)
	if err != nil {
		h.logger.Warn("failed to load history", "error", err)
		return
	}
	if len(entries) > h.cap {
		entries = entries[:h.cap]
	}
	h.entries = entries
}

// findLocked returns the stored entry with entry's ID, or entry itself when
// it has already been evicted.
func (h *History) findLocked(entry HistoryEntry) HistoryEntry {
	for _, e := range h.entries {
		if e.ID == entry.ID {
			return e
		}
	}
	return entry
}

func (h *History) persistLocked(ctx context.Context) {
	if h.persister == nil {
		return
	}
	snapshot := make([]HistoryEntry, len(h.entries))
	copy(snapshot, h.entries)
	if err := h.persister.Save(ctx, snapshot); err != nil {
		h.logger.Warn("failed to persist history", "error", err, "entries", len(snapshot))
	}
}
