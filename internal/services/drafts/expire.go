package drafts

import (
	"context"
	"fmt"

	"postbot/internal/post"
	logx "postbot/pkg/logx"
)

// ExpireStale cancels drafts not touched within Config.ExpireAfter and
// returns how many were canceled. Frozen drafts are skipped.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	ttl := s.config().ExpireAfter
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-ttl)
	stale, err := s.repo.ListStaleDrafts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale drafts: %w", err)
	}

	n := 0
	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ok, err := s.expireOne(ctx, p.CreatedBy, p.ID, cutoff.UnixMilli())
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		s.log.Info("stale drafts expired", logx.Int("count", n), logx.Duration("expire_after", ttl))
	}
	return n, nil
}

func (s *Service) expireOne(ctx context.Context, adminID, postID, cutoffMS int64) (bool, error) {
	s.locks.Lock(adminID)
	defer s.locks.Unlock(adminID)
	if s.isFrozen(adminID) {
		return false, nil
	}
	// The draft may have been touched since it was listed.
	cur, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return false, fmt.Errorf("reload draft %d: %w", postID, err)
	}
	if cur.Status != post.StatusDraft || cur.UpdatedAt.UnixMilli() >= cutoffMS {
		return false, nil
	}
	return s.cancelLocked(ctx, cur, "expired")
}
