package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func TestNotifierStates(t *testing.T) {
	rec := &recorder{}
	n := Notifier{notify: rec.notify}
	_, err := n.Ready()
	require.NoError(t, err)
	_, _ = n.Status("sending post 4")
	_, _ = n.Stopping()
	assert.Equal(t, []string{"READY=1", "STATUS=sending post 4", "STOPPING=1"}, rec.all())
}

func TestWatchdogDisabled(t *testing.T) {
	rec := &recorder{}
	n := Notifier{notify: rec.notify, watchdog: func() (time.Duration, error) { return 0, nil }}
	require.NoError(t, n.Watchdog(context.Background()))
	assert.Empty(t, rec.all())
}

func TestWatchdogPings(t *testing.T) {
	rec := &recorder{}
	n := Notifier{notify: rec.notify, watchdog: func() (time.Duration, error) { return 10 * time.Millisecond, nil }}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Watchdog(ctx) }()

	require.Eventually(t, func() bool { return len(rec.all()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "WATCHDOG=1", rec.all()[0])
}
