package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend stores snapshots in a single-file SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS chat_histories (
		user_id TEXT PRIMARY KEY,
		last_active TEXT NOT NULL,
		turns TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) Load(ctx context.Context, userID string) (Snapshot, bool, error) {
	var lastActive, rawTurns string
	err := b.db.QueryRowContext(ctx,
		`SELECT last_active, turns FROM chat_histories WHERE user_id = ?`, userID,
	).Scan(&lastActive, &rawTurns)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("query history %s: %w", userID, err)
	}
	return decodeRow(userID, lastActive, []byte(rawTurns))
}

func (b *SQLiteBackend) Save(ctx context.Context, snap Snapshot) error {
	if snap.UserID == "" {
		return ErrEmptyUserID
	}
	raw, err := encodeTurns(snap.Turns)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO chat_histories (user_id, last_active, turns, updated_at)
		 VALUES (?, ?, ?, unixepoch())
		 ON CONFLICT(user_id) DO UPDATE SET
		   last_active = excluded.last_active,
		   turns = excluded.turns,
		   updated_at = excluded.updated_at`,
		snap.UserID, snap.LastActive.UTC().Format(time.RFC3339Nano), string(raw),
	)
	if err != nil {
		return fmt.Errorf("save history %s: %w", snap.UserID, err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, userID string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM chat_histories WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete history %s: %w", userID, err)
	}
	return nil
}

func (b *SQLiteBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT user_id FROM chat_histories ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list histories: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return ids, nil
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

func encodeTurns(turns []Turn) ([]byte, error) {
	if turns == nil {
		turns = []Turn{}
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("encode turns: %w", err)
	}
	return raw, nil
}

func decodeRow(userID, lastActive string, rawTurns []byte) (Snapshot, bool, error) {
	snap := Snapshot{UserID: userID, Turns: []Turn{}}
	if err := json.Unmarshal(rawTurns, &snap.Turns); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode history %s: %w", userID, err)
	}
	if lastActive != "" {
		t, err := time.Parse(time.RFC3339Nano, lastActive)
		if err != nil {
			return Snapshot{}, false, fmt.Errorf("parse last_active for %s: %w", userID, err)
		}
		snap.LastActive = t
	}
	return snap, true, nil
}
