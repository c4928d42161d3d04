package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postbot/internal/eventbus"
	"postbot/internal/post"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

var (
	// ErrAlreadyProcessed: the post left draft, or another run is sending it.
	ErrAlreadyProcessed = errors.New("post already processed")
	// ErrEmptyPost: the post renders to no messages.
	ErrEmptyPost = errors.New("post has nothing to send")
)

const (
	DefaultRetryMax = 2

	EventStarted  = "broadcast.started"
	EventProgress = "broadcast.progress"
	EventFinished = "broadcast.finished"
	EventAborted  = "broadcast.aborted"
)

type Config struct {
	// SendDelay paces recipients and is the floor for retry backoff.
	SendDelay time.Duration
	// BatchLogEvery emits progress every n-th recipient. Zero disables it.
	BatchLogEvery int
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
	// Workers > 1 enables concurrent delivery.
	Workers int
	// RatePerSec caps outbound calls across all workers. Zero disables it.
	RatePerSec float64

	StatusTTL time.Duration
	StatusMax int
}

type Repository interface {
	GetPost(ctx context.Context, id int64) (*post.Post, error)
	MarkSent(ctx context.Context, id int64, at time.Time, success, failed int) error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Result is the committed outcome of one run.
type Result struct {
	RunID      string
	PostID     int64
	Total      int
	Success    int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunStatus is the live view of a run.
type RunStatus struct {
	RunID     string
	PostID    int64
	Total     int
	Processed int
	Success   int
	Failed    int
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
	Err       string
}

type ProgressEvent struct {
	RunID     string `json:"run_id"`
	PostID    int64  `json:"post_id"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

type RunEvent struct {
	RunID   string `json:"run_id"`
	PostID  int64  `json:"post_id"`
	Total   int    `json:"total"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	repo    Repository
	sender  transport.Sender
	bus     eventbus.Bus
	log     logx.Logger
	limiter *rate.Limiter

	now   func() time.Time
	sleep SleepFunc
	newID func() string

	inflightMu sync.Mutex
	inflight   map[int64]string // post id -> run id

	statusMu sync.RWMutex
	status   map[string]*RunStatus
}
