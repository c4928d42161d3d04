package broadcast

import (
	"slices"
	"time"
)

const (
	defaultStatusMax = 200
	defaultStatusTTL = 24 * time.Hour
)

// pruneStatus forgets finished runs older than StatusTTL, then the oldest
// finished runs while more than StatusMax are tracked. Running entries are
// never dropped.
func (s *Service) pruneStatus(now time.Time) {
	cfg, _ := s.snapshot()
	limit := cfg.StatusMax
	if limit <= 0 {
		limit = defaultStatusMax
	}
	ttl := cfg.StatusTTL
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	var finished []string
	for id, st := range s.status {
		switch {
		case st == nil, !st.Running && now.Sub(st.DoneAt) > ttl:
			delete(s.status, id)
		case !st.Running:
			finished = append(finished, id)
		}
	}
	excess := len(s.status) - limit
	if excess <= 0 {
		return
	}
	slices.SortFunc(finished, func(a, b string) int {
		return s.status[a].DoneAt.Compare(s.status[b].DoneAt)
	})
	for _, id := range finished[:min(excess, len(finished))] {
		delete(s.status, id)
	}
}
