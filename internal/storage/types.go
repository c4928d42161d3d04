package storage

import (
	"context"
	"time"

	"postbot/internal/post"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres only; 0 means pgxpool default
}

// UserStatus is the registration state of a bot user.
type UserStatus string

const (
	UserNone                 UserStatus = "NONE"
	UserTokenVerified        UserStatus = "TOKEN_VERIFIED"
	UserSubscriptionVerified UserStatus = "SUBSCRIPTION_VERIFIED"
	UserConfirmed            UserStatus = "CONFIRMED"
)

// Store is the persistence API used by the draft composer, the broadcast
// dispatcher and the admin commands.
type Store interface {
	// ActiveDraft returns the admin's draft or post.ErrNotFound.
	ActiveDraft(ctx context.Context, adminID int64) (*post.Post, error)
	// CreateDraft cancels any draft of adminID and inserts a new one, atomically.
	CreateDraft(ctx context.Context, adminID int64, p post.Payload, now time.Time) (*post.Post, error)
	// UpdateDraft replaces the payload of a post still in draft, else post.ErrNotDraft.
	UpdateDraft(ctx context.Context, id int64, p post.Payload, now time.Time) error
	// CancelDraft moves a draft to canceled; false when it was not a draft.
	CancelDraft(ctx context.Context, id int64, now time.Time) (bool, error)
	GetPost(ctx context.Context, id int64) (*post.Post, error)
	// MarkSent records the outcome in one statement guarded by status = draft.
	MarkSent(ctx context.Context, id int64, at time.Time, success, failed int) error
	ListStaleDrafts(ctx context.Context, updatedBefore time.Time) ([]*post.Post, error)
	ListRecent(ctx context.Context, limit int) ([]*post.Post, error)

	ListConfirmedRecipientIDs(ctx context.Context) ([]int64, error)
	UpsertUser(ctx context.Context, tgID int64, username string, status UserStatus, now time.Time) error

	Close() error
}
