package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersister records every save.
type memPersister struct {
	mu      sync.Mutex
	stored  []HistoryEntry
	saves   int
	loadErr error
	saveErr error
}

func (m *memPersister) Load(ctx context.Context) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]HistoryEntry(nil), m.stored...), nil
}

func (m *memPersister) Save(ctx context.Context, entries []HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.stored = append([]HistoryEntry(nil), entries...)
	return nil
}

func entryFor(kind OperationKind, createdAt int64, id string) HistoryEntry {
	return HistoryEntry{
		ID:               id,
		Kind:             kind,
		CreatedAt:        createdAt,
		SubmissionResult: SubmissionResult{ProvisionalID: "req-" + id, State: StateConfirmed},
	}
}

func TestHistory_CapEvictsOldest(t *testing.T) {
	const capacity = 10
	p := &memPersister{}
	h := NewHistory(context.Background(), p, capacity, nil)

	for i := 0; i < capacity+5; i++ {
		h.Record(context.Background(), entryFor(OpTransfer, int64(1000+i), fmt.Sprintf("%02d", i)))
	}

	entries := h.Query(context.Background(), HistoryQuery{})
	require.Len(t, entries, capacity)
	for i, e := range entries {
		// Most recent first: 14, 13, ..., 05.
		assert.Equal(t, fmt.Sprintf("%02d", capacity+4-i), e.ID)
	}
	assert.Len(t, p.stored, capacity)
	assert.Equal(t, capacity+5, p.saves)
}

func TestHistory_RecordFillsDefaults(t *testing.T) {
	h := NewHistory(context.Background(), nil, 0, nil)
	h.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	stored := h.Record(context.Background(), HistoryEntry{Kind: OpSwap})
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, int64(1_700_000_000_000), stored.CreatedAt)
	assert.Equal(t, DefaultHistoryCap, h.Cap())
	assert.Equal(t, 1, h.Len())
}

func TestHistory_Query(t *testing.T) {
	h := NewHistory(context.Background(), nil, 50, nil)
	h.Record(context.Background(), entryFor(OpTransfer, 100, "a"))
	h.Record(context.Background(), entryFor(OpSwap, 200, "b"))
	h.Record(context.Background(), entryFor(OpTransfer, 300, "c"))
	h.Record(context.Background(), entryFor(OpSupply, 400, "d"))
	h.Record(context.Background(), entryFor(OpTransfer, 500, "e"))

	ids := func(entries []HistoryEntry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}

	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, ids(h.Query(context.Background(), HistoryQuery{})))
	assert.Equal(t, []string{"e", "c", "a"}, ids(h.Query(context.Background(), HistoryQuery{Kind: OpTransfer})))
	assert.Equal(t, []string{"d", "c", "b"}, ids(h.Query(context.Background(), HistoryQuery{StartTime: 200, EndTime: 400})))
	assert.Equal(t, []string{"e", "c"}, ids(h.Query(context.Background(), HistoryQuery{Kind: OpTransfer, StartTime: 300})))
	assert.Equal(t, []string{"e", "d"}, ids(h.Query(context.Background(), HistoryQuery{Limit: 2})))
	assert.Empty(t, h.Query(context.Background(), HistoryQuery{Kind: OpDeploy}))

	// Query never mutates.
	assert.Equal(t, 5, h.Len())
}

func TestHistory_Clear(t *testing.T) {
	p := &memPersister{}
	h := NewHistory(context.Background(), p, 5, nil)
	h.Record(context.Background(), entryFor(OpTransfer, 1, "a"))

	h.Clear(context.Background())
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, p.stored)
	assert.Equal(t, 2, p.saves)
}

func TestHistory_LoadsPersistedState(t *testing.T) {
	p := &memPersister{stored: []HistoryEntry{entryFor(OpSwap, 2, "b"), entryFor(OpSwap, 1, "a")}}
	h := NewHistory(context.Background(), p, 5, nil)

	entries := h.Query(context.Background(), HistoryQuery{})
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
}

func TestHistory_LoadTruncatesToCap(t *testing.T) {
	p := &memPersister{stored: []HistoryEntry{entryFor(OpSwap, 3, "c"), entryFor(OpSwap, 2, "b"), entryFor(OpSwap, 1, "a")}}
	h := NewHistory(context.Background(), p, 2, nil)
	assert.Equal(t, 2, h.Len())
}

func TestHistory_LoadFailureStartsEmpty(t *testing.T) {
	p := &memPersister{loadErr: errors.New("corrupt")}
	h := NewHistory(context.Background(), p, 5, nil)
	assert.Equal(t, 0, h.Len())
}

func TestHistory_SaveFailureIsSwallowed(t *testing.T) {
	p := &memPersister{saveErr: errors.New("disk full")}
	h := NewHistory(context.Background(), p, 5, nil)

	assert.NotPanics(t, func() {
		h.Record(context.Background(), entryFor(OpTransfer, 1, "a"))
	})
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 1, p.saves)
}

func TestHistory_ConcurrentRecords(t *testing.T) {
	p := &memPersister{}
	h := NewHistory(context.Background(), p, 1000, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Record(context.Background(), entryFor(OpTransfer, int64(i+1), fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, h.Len())
	assert.Len(t, p.stored, 50)
}

func TestHistory_FilePersisterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")
	fp := NewFilePersister(path)

	h := NewHistory(context.Background(), fp, 3, nil)
	h.Record(context.Background(), entryFor(OpTransfer, 1, "a"))
	h.Record(context.Background(), entryFor(OpSwap, 2, "b"))

	reopened := NewHistory(context.Background(), NewFilePersister(path), 3, nil)
	entries := reopened.Query(context.Background(), HistoryQuery{})
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, OpSwap, entries[0].Kind)
	assert.Equal(t, StateConfirmed, entries[0].State)
	assert.Equal(t, "req-b", entries[0].ProvisionalID)

	reopened.Clear(context.Background())
	empty, err := NewFilePersister(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFilePersister_MissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	entries, err := NewFilePersister(filepath.Join(dir, "absent.json")).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, entries)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	_, err = NewFilePersister(corrupt).Load(context.Background())
	assert.Error(t, err)

	h := NewHistory(context.Background(), NewFilePersister(corrupt), 5, nil)
	assert.Equal(t, 0, h.Len())
}

func TestHistory_DuplicateIDIsRecordedOnce(t *testing.T) {
	p := &memPersister{}
	h := NewHistory(context.Background(), p, 5, nil)

	first := h.Record(context.Background(), entryFor(OpTransfer, 1, "wf-1/run-1"))
	retry := entryFor(OpTransfer, 2, "wf-1/run-1")
	got := h.Record(context.Background(), retry)

	assert.Equal(t, first, got)
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 1, p.saves)
}

func TestHistory_SharedSlotKeepsBothWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	fp := NewFilePersister(path)

	// Both open before either writes, like a server and worker at startup.
	worker := NewHistory(context.Background(), fp, 10, nil)
	server := NewHistory(context.Background(), fp, 10, nil)

	worker.Record(context.Background(), entryFor(OpTransfer, 1, "async-1"))
	server.Record(context.Background(), entryFor(OpSwap, 2, "sync-1"))

	ids := func(entries []HistoryEntry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}

	assert.Equal(t, []string{"sync-1", "async-1"}, ids(server.Query(context.Background(), HistoryQuery{})))
	assert.Equal(t, []string{"sync-1", "async-1"}, ids(worker.Query(context.Background(), HistoryQuery{})))

	stored, err := fp.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sync-1", "async-1"}, ids(stored))

	server.Clear(context.Background())
	assert.Empty(t, worker.Query(context.Background(), HistoryQuery{}))
}

func TestHistory_SharedSlotConcurrentWriters(t *testing.T) {
	fp := NewFilePersister(filepath.Join(t.TempDir(), "history.json"))
	a := NewHistory(context.Background(), fp, 100, nil)
	b := NewHistory(context.Background(), fp, 100, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			a.Record(context.Background(), entryFor(OpTransfer, int64(i+1), fmt.Sprint("a-", i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			b.Record(context.Background(), entryFor(OpSwap, int64(i+1), fmt.Sprint("b-", i)))
		}(i)
	}
	wg.Wait()

	stored, err := fp.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 40)
}

func TestPrependEntry(t *testing.T) {
	entries := []HistoryEntry{entryFor(OpSwap, 2, "b"), entryFor(OpSwap, 1, "a")}

	next, added := PrependEntry(entries, entryFor(OpTransfer, 3, "c"), 2)
	require.True(t, added)
	require.Len(t, next, 2)
	assert.Equal(t, "c", next[0].ID)
	assert.Equal(t, "b", next[1].ID)

	same, added := PrependEntry(entries, entryFor(OpTransfer, 9, "a"), 2)
	assert.False(t, added)
	assert.Equal(t, entries, same)
}

func TestFilePersister_PrependReplacesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	fp := NewFilePersister(path)
	require.NoError(t, fp.Prepend(context.Background(), entryFor(OpTransfer, 1, "a"), 5))

	stored, err := fp.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "a", stored[0].ID)
}
