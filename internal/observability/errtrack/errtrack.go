// Package errtrack forwards failures that need an operator's attention to
// Sentry. Without a DSN every Reporter method is a no-op.
package errtrack

import (
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

type Config struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// Reporter receives errors and recovered panics.
type Reporter interface {
	CaptureError(err error, tags map[string]string)
	CapturePanic(name string, recovered any, stack []byte)
	Flush(timeout time.Duration) bool
}

type Nop struct{}

func (Nop) CaptureError(error, map[string]string) {}
func (Nop) CapturePanic(string, any, []byte)      {}
func (Nop) Flush(time.Duration) bool              { return true }

// Sentry reports through its own hub, so tests and the process-global hub
// never share state.
type Sentry struct {
	hub *sentry.Hub
}

// New returns Nop for an empty DSN and a Sentry reporter otherwise.
func New(cfg Config) (Reporter, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return Nop{}, nil
	}
	return newSentry(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  cfg.SampleRate,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			// Telegram users are not Sentry users.
			event.User = sentry.User{}
			return event
		},
	})
}

func newSentry(opts sentry.ClientOptions) (*Sentry, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (s *Sentry) CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

func (s *Sentry) CapturePanic(name string, recovered any, stack []byte) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTag("goroutine", name)
		scope.SetExtra("stack", string(stack))
		s.hub.Recover(recovered)
	})
}

func (s *Sentry) Flush(timeout time.Duration) bool { return s.hub.Flush(timeout) }
