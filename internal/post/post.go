// Package post holds the broadcast post model: the draft payload an admin
// composes, the post lifecycle and the fragment merge rules.
package post

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by stores when a post does not exist.
	ErrNotFound = errors.New("post not found")
	// ErrUnsupportedContent rejects fragments the composer cannot represent.
	ErrUnsupportedContent = errors.New("unsupported content kind")
	// ErrAlbumNotSupported rejects parts of a media group.
	ErrAlbumNotSupported = errors.New("albums are not supported")
	// ErrInvalidTransition guards the one-way status machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotDraft is returned by guarded writes when the post already left draft.
	ErrNotDraft = errors.New("post is no longer a draft")
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusCanceled Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool { return s == StatusSent || s == StatusCanceled }

// CanTransition reports whether s may move to next. Only draft moves.
func (s Status) CanTransition(next Status) bool {
	return s == StatusDraft && next.Terminal()
}

// Post is a persisted broadcast post.
type Post struct {
	ID        int64
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    Status
	Payload   Payload

	SentAt      *time.Time
	SentSuccess int
	SentFailed  int
}

// IsEmpty reports whether the post has nothing to render.
func (p *Post) IsEmpty() bool {
	return p == nil || p.Payload.IsEmpty()
}

// Transition moves the in-memory post to next, enforcing the one-way rule.
func (p *Post) Transition(next Status, at time.Time) error {
	if !p.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = at
	if next == StatusSent {
		t := at
		p.SentAt = &t
	}
	return nil
}

func (p *Post) String() string {
	if p == nil {
		return "<nil post>"
	}
	return fmt.Sprintf("post#%d(%s by %d)", p.ID, p.Status, p.CreatedBy)
}
