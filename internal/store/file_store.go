package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/engerrors"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// FileStore is the file-based reference SignalStore of spec.md §4.3: one
// JSON file per (namespace, strategy, symbol) record, written via
// write-to-temp + fsync + rename so a crash mid-write never leaves a
// corrupt or partially-written file in place.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore roots the store at root, creating it if necessary. Records
// live at <root>/signal/<strategy>/<symbol>.json (active) and
// <root>/schedule/<strategy>/<symbol>.json (scheduled).
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("store: root path must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: failed to create root %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(namespace, strategyName, symbol string) string {
	return filepath.Join(s.root, namespace, strategyName, symbol+".json")
}

func (s *FileStore) read(path string) (*signal.Signal, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
	}
	var sig signal.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
	}
	return &sig, nil
}

// write atomically persists sig at path, or deletes the file when sig is
// nil. Atomicity: write to a sibling temp file, fsync it, then rename over
// the target — rename is atomic on the same filesystem, so readers never
// observe a partially-written record.
func (s *FileStore) write(path string, sig *signal.Signal) error {
	if sig == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
		}
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
	}

	data, err := json.Marshal(sig)
	if err != nil {
		return engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
	}
	if err := tmp.Close(); err != nil {
		return engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return engerrors.New(engerrors.OpPersist, path, engerrors.KindPersistenceError, err)
	}
	return nil
}

func (s *FileStore) ReadActive(_ context.Context, strategyName, symbol string) (*signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(s.path("signal", strategyName, symbol))
}

func (s *FileStore) WriteActive(_ context.Context, strategyName, symbol string, sig *signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(s.path("signal", strategyName, symbol), sig)
}

func (s *FileStore) ReadScheduled(_ context.Context, strategyName, symbol string) (*signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(s.path("schedule", strategyName, symbol))
}

func (s *FileStore) WriteScheduled(_ context.Context, strategyName, symbol string, sig *signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(s.path("schedule", strategyName, symbol), sig)
}
