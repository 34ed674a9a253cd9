package history

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ImagePlaceholder stands in for an image in the text history.
const ImagePlaceholder = "[User sent an image]"

// Turn is a single user or assistant message. It is immutable once appended.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the persisted form of one user's history.
type Snapshot struct {
	UserID     string    `json:"user_id"`
	LastActive time.Time `json:"last_active"`
	Turns      []Turn    `json:"turns"`
}

var ErrEmptyUserID = errors.New("history: empty user id")

// Backend persists snapshots. Load reports ok=false when no snapshot exists.
type Backend interface {
	Name() string
	Load(ctx context.Context, userID string) (Snapshot, bool, error)
	Save(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}
