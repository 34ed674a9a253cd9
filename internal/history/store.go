package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/linerelay/internal/observability"
)

const (
	DefaultLimit = 10

	flushParallelism = 8
)

// Store keeps a bounded, most-recent-last window of turns per user and
// persists it through a Backend.
//
// The store mutex guards the map only. Each entry has its own mutex, held
// across load, mutation and flush of that user, so different users never
// contend on anything but the map lookup.
type Store struct {
	backend      Backend
	limit        int
	logger       *slog.Logger
	metrics      *observability.Metrics
	now          func() time.Time
	writeThrough bool

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu         sync.Mutex
	turns      []Turn
	lastActive time.Time
	loaded     bool
	evicted    bool
	dirty      bool
}

type Option func(*Store)

// WithLimit sets the maximum turns kept per user. Values below 1 are ignored.
func WithLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWriteThrough flushes the user's snapshot after every Append.
func WithWriteThrough(enabled bool) Option {
	return func(s *Store) { s.writeThrough = enabled }
}

func NewStore(backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		backend: backend,
		limit:   DefaultLimit,
		logger:  slog.Default(),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Limit() int { return s.limit }

func (s *Store) BackendName() string { return s.backend.Name() }

// Active returns the number of histories currently held in memory.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Append adds turns to the user's history as one unit and trims the oldest
// surplus. Missing ids and timestamps are filled in. Persistence failures
// under write-through are logged; the in-memory update always stands.
func (s *Store) Append(ctx context.Context, userID string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	e := s.acquire(ctx, userID)
	defer e.mu.Unlock()

	now := s.now().UTC()
	for _, t := range turns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = now
		}
		e.turns = append(e.turns, t)
	}
	e.turns = trim(e.turns, s.limit)
	e.lastActive = now
	e.dirty = true

	if s.writeThrough {
		if err := s.flushLocked(ctx, userID, e); err != nil {
			s.logger.Warn("history write-through failed", "user_id", userID, "error", err)
		}
	}
}

// Get returns a copy of the user's turns, oldest first. Unknown users get an
// empty, non-nil slice.
func (s *Store) Get(ctx context.Context, userID string) []Turn {
	e := s.acquire(ctx, userID)
	defer e.mu.Unlock()

	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// Flush writes the user's current history to the backend, overwriting the
// previous snapshot. Users not held in memory are a no-op.
func (s *Store) Flush(ctx context.Context, userID string) error {
	s.mu.Lock()
	e, ok := s.entries[userID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted || !e.loaded {
		return nil
	}
	return s.flushLocked(ctx, userID, e)
}

// FlushAll writes every history with unsaved changes. Every failed user is
// logged; the returned error is the first failure.
func (s *Store) FlushAll(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(flushParallelism)
	for userID, e := range s.snapshotEntries() {
		g.Go(func() error {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.evicted || !e.loaded || !e.dirty {
				return nil
			}
			if err := s.flushLocked(ctx, userID, e); err != nil {
				s.logger.Warn("history flush failed", "user_id", userID, "backend", s.backend.Name(), "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// EvictIdle flushes and drops every history whose last activity is older
// than idle. A history whose flush fails stays in memory for the next pass.
// It returns the number of histories dropped.
func (s *Store) EvictIdle(ctx context.Context, idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	evicted := 0
	for userID, e := range s.snapshotEntries() {
		if s.evictIfIdle(ctx, userID, e, cutoff) {
			evicted++
		}
	}
	if evicted > 0 {
		s.metrics.ObserveEvictions(evicted)
		s.metrics.SetActiveHistories(s.Active())
	}
	return evicted
}

// Clear drops the user's history from memory and deletes its snapshot.
// The entry lock is held across the delete, so a concurrent Get or Append
// waits and then starts from an empty history instead of reloading the
// snapshot being removed.
func (s *Store) Clear(ctx context.Context, userID string) error {
	e, created := s.lockForClear(userID)
	defer e.mu.Unlock()

	if err := s.backend.Delete(ctx, userID); err != nil {
		if created {
			s.dropLocked(userID, e)
		}
		return fmt.Errorf("delete history %s: %w", userID, err)
	}
	s.dropLocked(userID, e)
	s.metrics.SetActiveHistories(s.Active())
	return nil
}

// lockForClear returns the user's entry locked without loading it. A missing
// entry is registered as an empty placeholder so loads queue behind the clear.
func (s *Store) lockForClear(userID string) (*entry, bool) {
	for {
		s.mu.Lock()
		e, ok := s.entries[userID]
		if !ok {
			e = &entry{loaded: true}
			s.entries[userID] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		return e, !ok
	}
}

// Users lists the user ids with a persisted snapshot. Histories that exist
// only in memory are not included until they are flushed.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	ids, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list histories: %w", err)
	}
	return ids, nil
}

// Close flushes pending changes and closes the backend.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.FlushAll(ctx)
	if err := s.backend.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("close history backend: %w", err)
	}
	return flushErr
}

// acquire returns the user's entry locked and loaded, creating it if needed.
func (s *Store) acquire(ctx context.Context, userID string) *entry {
	for {
		s.mu.Lock()
		e, ok := s.entries[userID]
		if !ok {
			e = &entry{}
			s.entries[userID] = e
		}
		active := len(s.entries)
		s.mu.Unlock()
		if !ok {
			s.metrics.SetActiveHistories(active)
		}

		e.mu.Lock()
		if e.evicted {
			// Lost a race with eviction; the snapshot on the backend is now current.
			e.mu.Unlock()
			continue
		}
		if !e.loaded {
			s.loadLocked(ctx, userID, e)
		}
		return e
	}
}

func (s *Store) loadLocked(ctx context.Context, userID string, e *entry) {
	e.loaded = true
	e.lastActive = s.now().UTC()

	snap, ok, err := s.backend.Load(ctx, userID)
	s.metrics.ObservePersist("load", err)
	if err != nil {
		s.logger.Error("history load failed; starting empty", "user_id", userID, "backend", s.backend.Name(), "error", err)
		return
	}
	if !ok {
		return
	}
	e.turns = trim(snap.Turns, s.limit)
	if len(e.turns) < len(snap.Turns) {
		// The bound was lowered since the snapshot was written.
		e.dirty = true
	}
}

func (s *Store) flushLocked(ctx context.Context, userID string, e *entry) error {
	turns := make([]Turn, len(e.turns))
	copy(turns, e.turns)
	err := s.backend.Save(ctx, Snapshot{
		UserID:     userID,
		LastActive: e.lastActive,
		Turns:      turns,
	})
	s.metrics.ObservePersist("save", err)
	if err != nil {
		return fmt.Errorf("flush history %s: %w", userID, err)
	}
	e.dirty = false
	return nil
}

func (s *Store) evictIfIdle(ctx context.Context, userID string, e *entry, cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted || !e.loaded || e.lastActive.After(cutoff) {
		return false
	}
	if e.dirty {
		if err := s.flushLocked(ctx, userID, e); err != nil {
			s.logger.Warn("history eviction deferred", "user_id", userID, "error", err)
			return false
		}
	}
	s.dropLocked(userID, e)
	return true
}

// dropLocked marks e dead and removes it from the map. Callers hold e.mu.
func (s *Store) dropLocked(userID string, e *entry) {
	e.evicted = true
	e.turns = nil
	s.mu.Lock()
	if s.entries[userID] == e {
		delete(s.entries, userID)
	}
	s.mu.Unlock()
}

func (s *Store) snapshotEntries() map[string]*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// trim keeps the last limit turns in a fresh backing array.
func trim(turns []Turn, limit int) []Turn {
	if len(turns) <= limit {
		return turns
	}
	out := make([]Turn, limit)
	copy(out, turns[len(turns)-limit:])
	return out
}
