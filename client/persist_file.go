package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FilePersister keeps the history list as a JSON array in a single file.
// Prepend is atomic among users of the same FilePersister only; processes
// sharing a slot need the postgres or redis persister.
type FilePersister struct {
	mu   sync.Mutex
	path string
}

// NewFilePersister returns a persister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load reads the stored list. A missing file is an empty history.
func (p *FilePersister) Load(ctx context.Context) ([]HistoryEntry, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptHistory, err)
	}
	return entries, nil
}

var errCorruptHistory = errors.New("failed to parse history file")

// Prepend adds entry to the stored list unless its ID is already there. A
// corrupt file is replaced, the same as a fresh history.
func (p *FilePersister) Prepend(ctx context.Context, entry HistoryEntry, capacity int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.Load(ctx)
	if err != nil && !errors.Is(err, errCorruptHistory) {
		return err
	}
	next, added := PrependEntry(entries, entry, capacity)
	if !added {
		return nil
	}
	return p.write(next)
}

// Save replaces the stored list. The file is written to a temporary path
// and renamed so a crash never leaves a partial array behind.
func (p *FilePersister) Save(ctx context.Context, entries []HistoryEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(entries)
}

func (p *FilePersister) write(entries []HistoryEntry) error {
	if entries == nil {
		entries = []HistoryEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}
