package history

import (
	"context"
	"fmt"
	"strings"
)

type BackendConfig struct {
	Kind        string
	Dir         string
	SQLitePath  string
	DatabaseURL string
}

// NewBackend creates the snapshot backend named by cfg.Kind. An empty kind
// selects the file backend.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "file":
		return NewFileBackend(cfg.Dir)
	case "sqlite":
		return NewSQLiteBackend(ctx, cfg.SQLitePath)
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("postgres history backend requires a database url")
		}
		return NewPostgresBackend(ctx, cfg.DatabaseURL)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Kind)
	}
}
