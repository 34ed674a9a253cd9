package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores snapshots in PostgreSQL so several relay instances
// can share histories.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresBackend{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_histories (
			user_id TEXT PRIMARY KEY,
			last_active TIMESTAMPTZ NOT NULL,
			turns JSONB NOT NULL DEFAULT '[]'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_histories_last_active ON chat_histories (last_active);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Load(ctx context.Context, userID string) (Snapshot, bool, error) {
	var (
		lastActive time.Time
		rawTurns   []byte
	)
	err := b.pool.QueryRow(ctx,
		`SELECT last_active, turns FROM chat_histories WHERE user_id=$1`, userID,
	).Scan(&lastActive, &rawTurns)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("query history %s: %w", userID, err)
	}
	snap, ok, err := decodeRow(userID, "", rawTurns)
	if err != nil {
		return Snapshot{}, false, err
	}
	snap.LastActive = lastActive.UTC()
	return snap, ok, nil
}

func (b *PostgresBackend) Save(ctx context.Context, snap Snapshot) error {
	if snap.UserID == "" {
		return ErrEmptyUserID
	}
	raw, err := encodeTurns(snap.Turns)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx,
		`INSERT INTO chat_histories (user_id, last_active, turns, updated_at)
		 VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   last_active = EXCLUDED.last_active,
		   turns = EXCLUDED.turns,
		   updated_at = EXCLUDED.updated_at`,
		snap.UserID,
		snap.LastActive,
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("save history %s: %w", snap.UserID, err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, userID string) error {
	if _, err := b.pool.Exec(ctx, `DELETE FROM chat_histories WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete history %s: %w", userID, err)
	}
	return nil
}

func (b *PostgresBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT user_id FROM chat_histories ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list histories: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect history rows: %w", err)
	}
	return ids, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
