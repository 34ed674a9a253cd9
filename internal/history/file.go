package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	fileDocumentVersion = 1
	fileExt             = ".json"
)

// FileBackend stores one JSON document per user in a directory. The file name
// is the query-escaped user id, so arbitrary ids map to safe names.
type FileBackend struct {
	dir string
}

type fileDocument struct {
	Version    int       `json:"version"`
	UserID     string    `json:"user_id"`
	LastActive time.Time `json:"last_active"`
	Turns      []Turn    `json:"turns"`
}

func NewFileBackend(dir string) (*FileBackend, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("history dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) Name() string { return "file" }

func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) path(userID string) string {
	return filepath.Join(b.dir, url.QueryEscape(userID)+fileExt)
}

func (b *FileBackend) Load(_ context.Context, userID string) (Snapshot, bool, error) {
	if userID == "" {
		return Snapshot{}, false, ErrEmptyUserID
	}
	raw, err := os.ReadFile(b.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read history %s: %w", userID, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode history %s: %w", userID, err)
	}
	if doc.Version > fileDocumentVersion {
		return Snapshot{}, false, fmt.Errorf("history %s has unsupported version %d", userID, doc.Version)
	}
	if doc.Turns == nil {
		doc.Turns = []Turn{}
	}
	return Snapshot{UserID: userID, LastActive: doc.LastActive, Turns: doc.Turns}, true, nil
}

// Save replaces the user's document atomically via a temp file and rename.
func (b *FileBackend) Save(_ context.Context, snap Snapshot) error {
	if snap.UserID == "" {
		return ErrEmptyUserID
	}
	turns := snap.Turns
	if turns == nil {
		turns = []Turn{}
	}
	raw, err := json.MarshalIndent(fileDocument{
		Version:    fileDocumentVersion,
		UserID:     snap.UserID,
		LastActive: snap.LastActive,
		Turns:      turns,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history %s: %w", snap.UserID, err)
	}

	tmp, err := os.CreateTemp(b.dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write history %s: %w", snap.UserID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync history %s: %w", snap.UserID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history %s: %w", snap.UserID, err)
	}
	if err := os.Rename(tmpName, b.path(snap.UserID)); err != nil {
		return fmt.Errorf("replace history %s: %w", snap.UserID, err)
	}
	return nil
}

func (b *FileBackend) Delete(_ context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if err := os.Remove(b.path(userID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete history %s: %w", userID, err)
	}
	return nil
}

func (b *FileBackend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list history dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := url.QueryUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *FileBackend) Close() error { return nil }
