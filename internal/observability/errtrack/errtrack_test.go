package errtrack

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutDSNIsNop(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, r)
	r.CaptureError(errors.New("x"), nil)
	assert.True(t, r.Flush(time.Millisecond))
}

func TestSentryCapturesTagsAndPanics(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	r, err := newSentry(sentry.ClientOptions{
		BeforeSend: func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)

	r.CaptureError(errors.New("broadcast aborted"), map[string]string{"post_id": "7"})
	r.CapturePanic("broadcast.post-7", "boom", []byte("stack"))
	r.CaptureError(nil, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, "7", events[0].Tags["post_id"])
	assert.Equal(t, "broadcast.post-7", events[1].Tags["goroutine"])
	assert.Equal(t, sentry.LevelFatal, events[1].Level)
}
