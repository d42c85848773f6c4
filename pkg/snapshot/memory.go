package snapshot

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps snapshots in process memory. It serves tests and
// single-process runs that don't need resume-after-crash.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (s *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.RunID] = snap
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, runID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[runID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: run=%s", ErrNotFound, runID)
	}
	return snap, nil
}

func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, runID)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
