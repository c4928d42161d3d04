package drafts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/throttle"
	logx "postbot/pkg/logx"
	"postbot/pkg/mutex"
)

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithBus(b eventbus.Bus) Option {
	return func(s *Service) {
		if b != nil {
			s.bus = b
		}
	}
}

type Service struct {
	repo       Repository
	recipients RecipientSource
	gates      throttle.Gates
	bus        eventbus.Bus
	log        logx.Logger
	now        func() time.Time

	locks mutex.KeyedMutex[int64]

	mu     sync.Mutex
	cfg    Config
	frozen map[int64]int64 // admin id -> post id
}

func New(cfg Config, repo Repository, recipients RecipientSource, gates throttle.Gates, log logx.Logger, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		recipients: recipients,
		gates:      gates,
		bus:        eventbus.Nop{},
		log:        log.With(logx.String("comp", "drafts")),
		now:        time.Now,
		cfg:        cfg,
		frozen:     map[int64]int64{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply swaps the runtime config.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// EnsureDraft returns the admin's draft, creating an empty one if there is none.
func (s *Service) EnsureDraft(ctx context.Context, adminID int64) (*post.Post, error) {
	s.locks.Lock(adminID)
	defer s.locks.Unlock(adminID)
	p, _, err := s.ensureLocked(ctx, adminID)
	return p, err
}

func (s *Service) ensureLocked(ctx context.Context, adminID int64) (*post.Post, bool, error) {
	p, err := s.repo.ActiveDraft(ctx, adminID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, post.ErrNotFound) {
		return nil, false, fmt.Errorf("load draft: %w", err)
	}
	p, err = s.repo.CreateDraft(ctx, adminID, post.Payload{}, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("create draft: %w", err)
	}
	s.log.Info("draft created", logx.Int64("admin_id", adminID), logx.Int64("post_id", p.ID))
	s.publish(EventCreated, DraftEvent{PostID: p.ID, AdminID: adminID})
	return p, true, nil
}

// NewDraft starts a fresh empty draft, canceling the current one.
func (s *Service) NewDraft(ctx context.Context, adminID int64) (*post.Post, error) {
	s.locks.Lock(adminID)
	defer s.locks.Unlock(adminID)
	if s.isFrozen(adminID) {
		return nil, ErrBroadcastInFlight
	}

	prev, err := s.repo.ActiveDraft(ctx, adminID)
	if err != nil && !errors.Is(err, post.ErrNotFound) {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	p, err := s.repo.CreateDraft(ctx, adminID, post.Payload{}, s.now())
	if err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	if prev != nil {
		s.log.Info("draft superseded", logx.Int64("admin_id", adminID), logx.Int64("post_id", prev.ID), logx.Int64("new_post_id", p.ID))
		s.publish(EventCanceled, DraftEvent{PostID: prev.ID, AdminID: adminID, Reason: "superseded"})
	}
	s.publish(EventCreated, DraftEvent{PostID: p.ID, AdminID: adminID})
	return p, nil
}

// ApplyFragment merges f into the admin's draft and persists it.
//
// Album parts fail with post.ErrAlbumNotSupported and leave the draft alone;
// Result.Notice then carries the album warning for the first part of a burst
// only. Other unsupported content fails with post.ErrUnsupportedContent before
// any draft is created.
func (s *Service) ApplyFragment(ctx context.Context, adminID, chatID int64, f post.Fragment) (Result, error) {
	if f.MediaGroupID != "" {
		var res Result
		if s.gates.Album == nil || s.gates.Album.Allow(chatID, f.MediaGroupID) {
			res.Notice = NoticeAlbum
		}
		s.log.Debug("album part rejected", logx.Int64("admin_id", adminID), logx.String("group", f.MediaGroupID), logx.Bool("warned", res.Notice != ""))
		return res, post.ErrAlbumNotSupported
	}
	if _, _, err := (post.Payload{}).Apply(f); err != nil {
		return Result{}, err
	}

	s.locks.Lock(adminID)
	defer s.locks.Unlock(adminID)
	if s.isFrozen(adminID) {
		return Result{}, ErrBroadcastInFlight
	}

	p, created, err := s.ensureLocked(ctx, adminID)
	if err != nil {
		return Result{}, err
	}
	next, change, err := p.Payload.Apply(f)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	if err := s.repo.UpdateDraft(ctx, p.ID, next, now); err != nil {
		return Result{}, fmt.Errorf("update draft %d: %w", p.ID, err)
	}
	p.Payload = next
	p.UpdatedAt = now
	s.verifyWrite(ctx, p)

	s.log.Debug("draft updated",
		logx.Int64("admin_id", adminID),
		logx.Int64("post_id", p.ID),
		logx.String("fragment", string(f.Kind)),
	)
	s.publish(EventUpdated, DraftEvent{PostID: p.ID, AdminID: adminID, Reason: string(f.Kind)})

	res := Result{Post: p, Change: change, Created: created}
	if change != post.ChangeNone && (s.gates.DocumentNotice == nil || s.gates.DocumentNotice.Allow(chatID, adminID)) {
		res.Notice = documentNotice(change, next.Document)
	}
	return res, nil
}

func documentNotice(c post.Change, d *post.Document) string {
	switch c {
	case post.ChangeDocumentAttached:
		return fmt.Sprintf(noticeDocumentAttached, d.DisplayName())
	case post.ChangeDocumentReplaced:
		return fmt.Sprintf(noticeDocumentReplaced, d.DisplayName())
	}
	return ""
}

// verifyWrite re-reads p and reports a disagreement. It never fails the caller.
func (s *Service) verifyWrite(ctx context.Context, want *post.Post) {
	got, err := s.repo.GetPost(ctx, want.ID)
	if err != nil {
		s.log.Error("draft read-back failed", logx.Int64("post_id", want.ID), logx.Err(err))
		s.publish(EventReadBackMismatch, DraftEvent{PostID: want.ID, AdminID: want.CreatedBy, Error: err.Error()})
		return
	}
	if got.Status == post.StatusDraft && got.Payload.Equal(want.Payload) {
		return
	}
	s.log.Error("draft read-back mismatch",
		logx.Int64("post_id", want.ID),
		logx.String("status", string(got.Status)),
		logx.Any("want", want.Payload),
		logx.Any("got", got.Payload),
	)
	s.publish(EventReadBackMismatch, DraftEvent{PostID: want.ID, AdminID: want.CreatedBy, Reason: string(got.Status)})
}

// CancelDraft cancels the admin's draft. It reports false when there was none.
func (s *Service) CancelDraft(ctx context.Context, adminID int64) (bool, error) {
	s.locks.Lock(adminID)
	defer s.locks.Unlock(adminID)
	if s.isFrozen(adminID) {
		return false, ErrBroadcastInFlight
	}
	p, err := s.repo.ActiveDraft(ctx, adminID)
	if errors.Is(err, post.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load draft: %w", err)
	}
	return s.cancelLocked(ctx, p, "admin")
}

func (s *Service) cancelLocked(ctx context.Context, p *post.Post, reason string) (bool, error) {
	ok, err := s.repo.CancelDraft(ctx, p.ID, s.now())
	if err != nil {
		return false, fmt.Errorf("cancel draft %d: %w", p.ID, err)
	}
	if ok {
		s.log.Info("draft canceled", logx.Int64("admin_id", p.CreatedBy), logx.Int64("post_id", p.ID), logx.String("reason", reason))
		s.publish(EventCanceled, DraftEvent{PostID: p.ID, AdminID: p.CreatedBy, Reason: reason})
	}
	return ok, nil
}

// IsEmpty reports whether p has no text, media or document.
func (s *Service) IsEmpty(p *post.Post) bool { return p.IsEmpty() }

// ActiveDraft returns the admin's draft; ok is false when there is none.
func (s *Service) ActiveDraft(ctx context.Context, adminID int64) (p *post.Post, ok bool, err error) {
	p, err = s.repo.ActiveDraft(ctx, adminID)
	if errors.Is(err, post.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Finalize freezes the admin's draft for sending and snapshots the
// recipients. A non-zero postID must match the current draft. The caller
// must Release the admin once the broadcast ends.
func (s *Service) Finalize(ctx context.Context, adminID, postID int64) (Snapshot, error) {
	s.locks.Lock(adminID)
	defer s.locks.Unlock(adminID)
	if s.isFrozen(adminID) {
		return Snapshot{}, ErrBroadcastInFlight
	}
	p, err := s.repo.ActiveDraft(ctx, adminID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load draft: %w", err)
	}
	if postID != 0 && p.ID != postID {
		return Snapshot{}, ErrDraftChanged
	}
	if p.IsEmpty() {
		return Snapshot{}, ErrEmptyDraft
	}
	ids, err := s.recipients.ListConfirmedRecipientIDs(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list recipients: %w", err)
	}

	s.mu.Lock()
	s.frozen[adminID] = p.ID
	s.mu.Unlock()
	s.log.Info("draft finalized", logx.Int64("admin_id", adminID), logx.Int64("post_id", p.ID), logx.Int("recipients", len(ids)))
	return Snapshot{Post: p, Recipients: ids}, nil
}

// Release unfreezes the admin's draft.
func (s *Service) Release(adminID int64) {
	s.mu.Lock()
	delete(s.frozen, adminID)
	s.mu.Unlock()
}

func (s *Service) isFrozen(adminID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.frozen[adminID]
	return ok
}

func (s *Service) publish(typ string, data DraftEvent) {
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}
