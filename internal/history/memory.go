package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps snapshots in process memory, for local/dev use.
type MemoryBackend struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{snaps: make(map[string]Snapshot)}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Load(_ context.Context, userID string) (Snapshot, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.snaps[userID]
	if !ok {
		return Snapshot{}, false, nil
	}
	return cloneSnapshot(snap), true, nil
}

func (b *MemoryBackend) Save(_ context.Context, snap Snapshot) error {
	if snap.UserID == "" {
		return ErrEmptyUserID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snaps[snap.UserID] = cloneSnapshot(snap)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.snaps, userID)
	return nil
}

func (b *MemoryBackend) List(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.snaps))
	for id := range b.snaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *MemoryBackend) Close() error { return nil }

func cloneSnapshot(snap Snapshot) Snapshot {
	out := snap
	out.Turns = make([]Turn, len(snap.Turns))
	copy(out.Turns, snap.Turns)
	return out
}
