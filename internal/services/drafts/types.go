package drafts

import (
	"context"
	"errors"
	"time"

	"postbot/internal/post"
)

var (
	// ErrBroadcastInFlight rejects changes to a draft that is being sent.
	ErrBroadcastInFlight = errors.New("draft is being broadcast")
	ErrEmptyDraft        = errors.New("draft is empty")
	// ErrDraftChanged means the caller referred to a draft that was superseded.
	ErrDraftChanged = errors.New("draft was replaced")
)

// Event types published on the bus.
const (
	EventCreated          = "draft.created"
	EventUpdated          = "draft.updated"
	EventCanceled         = "draft.canceled"
	EventReadBackMismatch = "draft.readback_mismatch"
)

const (
	NoticeAlbum = "Albums are not supported. Send the media one item at a time."

	noticeDocumentAttached = "📎 Document attached: %s"
	noticeDocumentReplaced = "📎 Document replaced: %s"
)

type Repository interface {
	ActiveDraft(ctx context.Context, adminID int64) (*post.Post, error)
	CreateDraft(ctx context.Context, adminID int64, p post.Payload, now time.Time) (*post.Post, error)
	UpdateDraft(ctx context.Context, id int64, p post.Payload, now time.Time) error
	CancelDraft(ctx context.Context, id int64, now time.Time) (bool, error)
	GetPost(ctx context.Context, id int64) (*post.Post, error)
	ListStaleDrafts(ctx context.Context, updatedBefore time.Time) ([]*post.Post, error)
}

type RecipientSource interface {
	ListConfirmedRecipientIDs(ctx context.Context) ([]int64, error)
}

type Config struct {
	// ExpireAfter cancels drafts untouched for this long. Zero disables expiry.
	ExpireAfter time.Duration
}

// Result is the outcome of ApplyFragment.
type Result struct {
	Post    *post.Post
	Change  post.Change
	Created bool
	// Notice is a short message for the admin, empty when throttled or when
	// there is nothing to say.
	Notice string
}

// Snapshot is a frozen draft together with the recipients it goes to.
type Snapshot struct {
	Post       *post.Post
	Recipients []int64
}

// DraftEvent is the payload of every draft.* event.
type DraftEvent struct {
	PostID  int64  `json:"post_id"`
	AdminID int64  `json:"admin_id"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}
