package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleSnapshot(userID string) Snapshot {
	ts := time.Date(2025, 3, 1, 9, 30, 15, 123456000, time.UTC)
	return Snapshot{
		UserID:     userID,
		LastActive: ts,
		Turns: []Turn{
			{ID: "t1", Role: RoleUser, Content: "こんにちは", Timestamp: ts},
			{ID: "t2", Role: RoleAssistant, Content: "Hi!\nHow can I help?", Timestamp: ts.Add(time.Second)},
			{ID: "t3", Role: RoleUser, Content: ImagePlaceholder, Timestamp: ts.Add(2 * time.Second)},
		},
	}
}

// exerciseBackend checks the contract every backend must satisfy.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := b.Load(ctx, "missing"); err != nil || ok {
		t.Fatalf("Load(missing) = ok %v, err %v; want false, nil", ok, err)
	}

	want := sampleSnapshot("U1234/with?odd&chars")
	if err := b.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok, err := b.Load(ctx, want.UserID)
	if err != nil || !ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
	if got.UserID != want.UserID {
		t.Fatalf("UserID = %q, want %q", got.UserID, want.UserID)
	}
	if len(got.Turns) != len(want.Turns) {
		t.Fatalf("len(Turns) = %d, want %d", len(got.Turns), len(want.Turns))
	}
	for i := range want.Turns {
		g, w := got.Turns[i], want.Turns[i]
		if g.ID != w.ID || g.Role != w.Role || g.Content != w.Content || !g.Timestamp.Equal(w.Timestamp) {
			t.Fatalf("turn %d = %+v, want %+v", i, g, w)
		}
	}

	// Save overwrites.
	shorter := want
	shorter.Turns = want.Turns[:1]
	if err := b.Save(ctx, shorter); err != nil {
		t.Fatalf("Save(overwrite) error = %v", err)
	}
	got, _, _ = b.Load(ctx, want.UserID)
	if len(got.Turns) != 1 {
		t.Fatalf("len(Turns) after overwrite = %d, want 1", len(got.Turns))
	}

	if err := b.Save(ctx, sampleSnapshot("U0")); err != nil {
		t.Fatalf("Save(U0) error = %v", err)
	}
	ids, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "U0" || ids[1] != want.UserID {
		t.Fatalf("List() = %v, want [U0 %s]", ids, want.UserID)
	}

	if err := b.Delete(ctx, "U0"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := b.Delete(ctx, "U0"); err != nil {
		t.Fatalf("Delete() of missing user error = %v", err)
	}
	if _, ok, _ := b.Load(ctx, "U0"); ok {
		t.Fatalf("Load() after Delete found snapshot")
	}

	if err := b.Save(ctx, Snapshot{}); err == nil {
		t.Fatalf("Save(empty user) error = nil, want error")
	}
}

func TestMemoryBackendContract(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend())
}

func TestFileBackendContract(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	exerciseBackend(t, b)
}

func TestFileBackendWritesEscapedNamesAndNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	if err := b.Save(context.Background(), sampleSnapshot("../escape")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want 1", len(entries))
	}
	name := entries[0].Name()
	if strings.Contains(name, "/") || name != "..%2Fescape.json" {
		t.Fatalf("file name = %q, want %q", name, "..%2Fescape.json")
	}
}

func TestFileBackendRejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "U1.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := b.Load(context.Background(), "U1"); err == nil {
		t.Fatalf("Load() error = nil, want decode error")
	}
}

func TestStoreStartsEmptyWhenSnapshotIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "U1.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := newTestStore(b, 3, newFakeClock())
	if got := s.Get(context.Background(), "U1"); len(got) != 0 {
		t.Fatalf("Get() = %v, want empty", contents(got))
	}
}

func TestSQLiteBackendContract(t *testing.T) {
	b, err := NewSQLiteBackend(context.Background(), filepath.Join(t.TempDir(), "db", "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}
	defer b.Close()
	exerciseBackend(t, b)
}

func TestPostgresBackendContract(t *testing.T) {
	url := os.Getenv("LINERELAY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LINERELAY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	b, err := NewPostgresBackend(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresBackend() error = %v", err)
	}
	defer b.Close()
	if _, err := b.pool.Exec(ctx, `TRUNCATE chat_histories`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseBackend(t, b)
}

func TestNewBackendSelectsKind(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		kind    string
		want    string
		wantErr bool
	}{
		{kind: "", want: "file"},
		{kind: "file", want: "file"},
		{kind: "MEMORY", want: "memory"},
		{kind: "sqlite", want: "sqlite"},
		{kind: "postgres", wantErr: true},
		{kind: "redis", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			dir := t.TempDir()
			b, err := NewBackend(ctx, BackendConfig{
				Kind:       tc.kind,
				Dir:        filepath.Join(dir, "files"),
				SQLitePath: filepath.Join(dir, "h.db"),
			})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewBackend(%q) error = nil, want error", tc.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend(%q) error = %v", tc.kind, err)
			}
			defer b.Close()
			if b.Name() != tc.want {
				t.Fatalf("Name() = %q, want %q", b.Name(), tc.want)
			}
		})
	}
}
