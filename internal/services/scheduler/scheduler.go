package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "postbot/pkg/logx"
)

var ErrNotStarted = errors.New("scheduler not started")

type Config struct {
	Timezone       string // IANA name; empty means local
	DefaultTimeout time.Duration
	HistorySize    int
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Skipped  bool
	Error    string
}

type job struct {
	name    string
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) error
	entry   cron.EntryID
	running atomic.Bool
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
	jobs   map[string]*job

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*job{},
	}
}

// ParseSpec validates a cron spec with the parser the service uses.
func (s *Service) ParseSpec(spec string) error {
	_, err := s.parser.Parse(strings.TrimSpace(spec))
	return err
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("scheduler timezone %q: %w", tz, err)
		}
		loc = l
	}
	s.ctx = ctx
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, j := range s.jobs {
		if err := s.scheduleLocked(j); err != nil {
			s.log.Warn("job not scheduled", logx.String("name", j.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.jobs)), logx.String("tz", loc.String()))
	return nil
}

// Stop halts the cron loop and waits for running jobs or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
	}
	s.log.Info("scheduler stopped")
}

// AddCron registers fn under name, replacing an existing job of that name.
// Jobs added before Start are scheduled when it runs.
func (s *Service) AddCron(name, spec string, timeout time.Duration, fn func(ctx context.Context) error) error {
	name, spec = strings.TrimSpace(name), strings.TrimSpace(spec)
	if name == "" || fn == nil {
		return errors.New("scheduler: name and job are required")
	}
	if err := s.ParseSpec(spec); err != nil {
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[name]; ok {
		if old.spec == spec && old.timeout == timeout {
			old.run = fn
			return nil
		}
		if s.c != nil {
			s.c.Remove(old.entry)
		}
	}
	j := &job{name: name, spec: spec, timeout: timeout, run: fn}
	s.jobs[name] = j
	if s.c == nil {
		return nil
	}
	return s.scheduleLocked(j)
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	delete(s.jobs, name)
	if s.c != nil {
		s.c.Remove(j.entry)
	}
	return true
}

func (s *Service) scheduleLocked(j *job) error {
	id, err := s.c.AddJob(j.spec, cron.FuncJob(func() { s.runJob(j) }))
	if err != nil {
		return err
	}
	j.entry = id
	return nil
}

// RunNow executes the named job synchronously, outside its schedule.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.runJob(j)
}

func (s *Service) runJob(j *job) (err error) {
	started := time.Now()
	if !j.running.CompareAndSwap(false, true) {
		s.log.Debug("job still running; skipped", logx.String("name", j.name))
		s.record(HistoryItem{Name: j.name, Started: started, Skipped: true})
		return nil
	}
	defer j.running.Store(false)

	s.mu.Lock()
	parent := s.ctx
	run := j.run
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, j.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", j.name, r)
		}
		item := HistoryItem{Name: j.name, Started: started, Duration: time.Since(started)}
		if err != nil {
			item.Error = err.Error()
			s.log.Warn("job failed", logx.String("name", j.name), logx.Duration("took", item.Duration), logx.Err(err))
		} else {
			s.log.Debug("job done", logx.String("name", j.name), logx.Duration("took", item.Duration))
		}
		s.record(item)
	}()
	return run(ctx)
}

func (s *Service) record(item HistoryItem) {
	max := s.cfg.HistorySize
	if max <= 0 {
		max = 50
	}
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if n := len(s.history) - max; n > 0 {
		s.history = append([]HistoryItem(nil), s.history[n:]...)
	}
}

// History returns the most recent runs, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// Jobs returns the registered job names with their specs.
func (s *Service) Jobs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.jobs))
	for name, j := range s.jobs {
		out[name] = j.spec
	}
	return out
}
