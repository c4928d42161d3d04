package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "postbot/pkg/logx"
)

func TestAddCronValidatesAndReplaces(t *testing.T) {
	s := New(Config{}, logx.Nop())
	noop := func(context.Context) error { return nil }

	require.Error(t, s.AddCron("bad", "not a spec", 0, noop))
	require.Error(t, s.AddCron("", "* * * * *", 0, noop))

	require.NoError(t, s.AddCron("sweep", "*/15 * * * *", 0, noop))
	require.NoError(t, s.AddCron("sweep", "@every 1h", 0, noop))
	assert.Equal(t, map[string]string{"sweep": "@every 1h"}, s.Jobs())

	assert.True(t, s.Remove("sweep"))
	assert.False(t, s.Remove("sweep"))
}

func TestRunNowRecordsHistory(t *testing.T) {
	s := New(Config{HistorySize: 2, DefaultTimeout: time.Second}, logx.Nop())
	boom := errors.New("boom")
	var calls atomic.Int32
	require.NoError(t, s.AddCron("job", "@every 1h", 0, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		if calls.Add(1) == 2 {
			return boom
		}
		return nil
	}))

	require.NoError(t, s.RunNow("job"))
	require.ErrorIs(t, s.RunNow("job"), boom)
	require.NoError(t, s.RunNow("job"))
	require.Error(t, s.RunNow("missing"))

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, "boom", h[0].Error)
	assert.Empty(t, h[1].Error)
}

func TestRunNowRecoversPanic(t *testing.T) {
	s := New(Config{}, logx.Nop())
	require.NoError(t, s.AddCron("p", "@every 1h", 0, func(context.Context) error { panic("x") }))
	err := s.RunNow("p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in job p")
}

func TestOverlapIsSkipped(t *testing.T) {
	s := New(Config{}, logx.Nop())
	release := make(chan struct{})
	entered := make(chan struct{})
	require.NoError(t, s.AddCron("slow", "@every 1h", 0, func(context.Context) error {
		close(entered)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow("slow") }()
	<-entered
	require.NoError(t, s.RunNow("slow"))
	close(release)
	require.NoError(t, <-done)

	h := s.History()
	require.Len(t, h, 2)
	assert.True(t, h[0].Skipped)
}

func TestStartStop(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	require.NoError(t, s.AddCron("j", "@every 1h", 0, func(context.Context) error { return nil }))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	bad := New(Config{Timezone: "Mars/Olympus"}, logx.Nop())
	assert.Error(t, bad.Start(context.Background()))
}
