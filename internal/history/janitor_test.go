package history

import (
	"context"
	"testing"
	"time"

	"github.com/antoniostano/linerelay/internal/observability"
)

func TestJanitorEvictsIdleHistories(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewStore(backend, WithLogger(observability.DiscardLogger()))
	s.Append(context.Background(), "u1", userTurn("hello"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 10*time.Millisecond, 30*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	if s.Active() != 0 {
		t.Fatalf("Active() = %d, want 0", s.Active())
	}
	if _, ok, _ := backend.Load(context.Background(), "u1"); !ok {
		t.Fatalf("evicted history was not persisted")
	}
}

func TestStartSnapshotsEmptyScheduleDisabled(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	stop, err := s.StartSnapshots("  ")
	if err != nil {
		t.Fatalf("StartSnapshots() error = %v", err)
	}
	stop()
}

func TestStartSnapshotsRejectsBadSchedule(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	if _, err := s.StartSnapshots("every now and then"); err == nil {
		t.Fatalf("StartSnapshots() error = nil, want parse error")
	}
}

func TestStartSnapshotsFlushesDirtyHistories(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewStore(backend, WithLogger(observability.DiscardLogger()))
	s.Append(context.Background(), "u1", userTurn("hello"))

	stop, err := s.StartSnapshots("@every 1s")
	if err != nil {
		t.Fatalf("StartSnapshots() error = %v", err)
	}
	defer stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := backend.Load(context.Background(), "u1"); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("snapshot was not written within 3s")
}
