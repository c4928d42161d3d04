package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/render"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

const finalizeTimeout = 15 * time.Second

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSleep(fn SleepFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.sleep = fn
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

func WithRunIDs(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(cfg Config, repo Repository, sender transport.Sender, log logx.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		sender:   sender,
		bus:      eventbus.Nop{},
		log:      log.With(logx.String("comp", "broadcast")),
		now:      time.Now,
		sleep:    sleepCtx,
		newID:    uuid.NewString,
		inflight: map[int64]string{},
		status:   map[string]*RunStatus{},
	}
	for _, o := range opts {
		o(s)
	}
	s.Apply(cfg)
	return s
}

// Apply swaps pacing and retry settings. Runs already in flight keep theirs.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s.cfg = cfg
	s.limiter = nil
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// Broadcast sends p to recipients and marks it sent with the final counts.
//
// Per-recipient failures are counted, never returned. The returned error is
// ErrAlreadyProcessed, ErrEmptyPost, or the infrastructure failure that
// aborted the run; in the last case the post stays a draft.
func (s *Service) Broadcast(ctx context.Context, p *post.Post, recipients []int64) (Result, error) {
	if p == nil {
		return Result{}, errors.New("broadcast: nil post")
	}
	runID := s.newID()
	if !s.claim(p.ID, runID) {
		return Result{}, fmt.Errorf("%w: post %d is being sent", ErrAlreadyProcessed, p.ID)
	}
	defer s.unclaim(p.ID)

	cur, err := s.repo.GetPost(ctx, p.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load post %d: %w", p.ID, err)
	}
	if cur.Status != post.StatusDraft {
		return Result{}, fmt.Errorf("%w: post %d is %s", ErrAlreadyProcessed, p.ID, cur.Status)
	}
	ops := render.ResolvePost(p)
	if len(ops) == 0 {
		return Result{}, ErrEmptyPost
	}

	cfg, lim := s.snapshot()
	res := Result{RunID: runID, PostID: p.ID, Total: len(recipients), StartedAt: s.now()}
	s.trackStart(res)
	log := s.log.With(logx.String("run", runID), logx.Int64("post_id", p.ID))
	log.Info("broadcast started",
		logx.Int("total", res.Total),
		logx.Int("workers", cfg.Workers),
		logx.Duration("send_delay", cfg.SendDelay),
		logx.Int("retry_max", cfg.RetryMax),
	)
	s.publish(EventStarted, RunEvent{RunID: runID, PostID: p.ID, Total: res.Total})

	r := &run{
		id:     runID,
		postID: p.ID,
		total:  res.Total,
		ops:    ops,
		cfg:    cfg,
		sender: &retrySender{
			next:      s.sender,
			retryMax:  cfg.RetryMax,
			sendDelay: cfg.SendDelay,
			limiter:   lim,
			sleep:     s.sleep,
			log:       log,
		},
		svc: s,
		log: log,
	}
	success, failed, runErr := r.execute(ctx, recipients)
	res.Success, res.Failed = success, failed

	if runErr != nil {
		res.FinishedAt = s.now()
		s.trackDone(runID, runErr)
		log.Error("broadcast aborted",
			logx.Int("success", success),
			logx.Int("failed", failed),
			logx.Int("total", res.Total),
			logx.Err(runErr),
		)
		s.publish(EventAborted, RunEvent{RunID: runID, PostID: p.ID, Total: res.Total, Success: success, Failed: failed, Error: runErr.Error()})
		return res, fmt.Errorf("broadcast of post %d aborted after %d of %d: %w", p.ID, success+failed, res.Total, runErr)
	}

	// Counts are committed even if the caller is shutting down.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	res.FinishedAt = s.now()
	if err := s.repo.MarkSent(fctx, p.ID, res.FinishedAt, success, failed); err != nil {
		if errors.Is(err, post.ErrNotDraft) {
			err = fmt.Errorf("%w: post %d changed during the run", ErrAlreadyProcessed, p.ID)
		}
		s.trackDone(runID, err)
		log.Error("broadcast finalize failed", logx.Err(err))
		s.publish(EventAborted, RunEvent{RunID: runID, PostID: p.ID, Total: res.Total, Success: success, Failed: failed, Error: err.Error()})
		return res, err
	}

	s.trackDone(runID, nil)
	fields := []logx.Field{
		logx.Int("total", res.Total),
		logx.Int("success", success),
		logx.Int("failed", failed),
		logx.Duration("dur", res.FinishedAt.Sub(res.StartedAt)),
	}
	if failed > 0 {
		log.Warn("broadcast finished with failures", fields...)
	} else {
		log.Info("broadcast finished", fields...)
	}
	s.publish(EventFinished, RunEvent{RunID: runID, PostID: p.ID, Total: res.Total, Success: success, Failed: failed})
	return res, nil
}

func (s *Service) claim(postID int64, runID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[postID]; busy {
		return false
	}
	s.inflight[postID] = runID
	return true
}

func (s *Service) unclaim(postID int64) {
	s.inflightMu.Lock()
	delete(s.inflight, postID)
	s.inflightMu.Unlock()
}

// InFlight returns the ids of posts currently being sent.
func (s *Service) InFlight() []int64 {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	out := make([]int64, 0, len(s.inflight))
	for id := range s.inflight {
		out = append(out, id)
	}
	return out
}

func (s *Service) publish(typ string, data any) {
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
