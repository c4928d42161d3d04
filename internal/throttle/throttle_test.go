package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func TestShouldNotifyWindow(t *testing.T) {
	t.Parallel()
	clk := newClock()
	th := New(WithClock(clk.Now))

	assert.True(t, th.ShouldNotify("k", 10*time.Second))
	assert.False(t, th.ShouldNotify("k", 10*time.Second))

	clk.Advance(9 * time.Second)
	assert.False(t, th.ShouldNotify("k", 10*time.Second), "still inside window")

	clk.Advance(time.Second)
	assert.True(t, th.ShouldNotify("k", 10*time.Second), "window elapsed at exactly ttl")
}

func TestShouldNotifyNonPositiveTTLAlwaysAllows(t *testing.T) {
	t.Parallel()
	th := New()
	for i := 0; i < 3; i++ {
		require.True(t, th.ShouldNotify("k", 0))
	}
	assert.Zero(t, th.Len())
}

func TestLazyPruneRemovesExpiredEntries(t *testing.T) {
	t.Parallel()
	clk := newClock()
	th := New(WithClock(clk.Now))
	th.ShouldNotify("a", time.Second)
	th.ShouldNotify("b", time.Minute)
	require.Equal(t, 2, th.Len())

	clk.Advance(2 * time.Second)
	th.ShouldNotify("c", time.Second)
	assert.Equal(t, 2, th.Len(), "a is pruned, b is kept")
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	t.Parallel()
	clk := newClock()
	th := New(WithClock(clk.Now), WithMaxEntries(2))
	th.ShouldNotify("a", time.Hour)
	clk.Advance(time.Millisecond)
	th.ShouldNotify("b", time.Hour)
	clk.Advance(time.Millisecond)
	th.ShouldNotify("c", time.Hour)

	assert.Equal(t, 2, th.Len())
	assert.True(t, th.ShouldNotify("a", time.Hour), "a was evicted")
}

func TestGatesAreDisjointNamespaces(t *testing.T) {
	t.Parallel()
	clk := newClock()
	th := New(WithClock(clk.Now))
	g := NewGates(th, 0, 0)

	assert.Equal(t, DefaultAlbumTTL, g.Album.TTL())
	assert.Equal(t, DefaultDocumentNoticeTTL, g.DocumentNotice.TTL())

	assert.True(t, g.Album.Allow(int64(1), "grp"))
	assert.True(t, g.DocumentNotice.Allow(int64(1), "grp"), "same parts, other namespace")
	assert.False(t, g.Album.Allow(int64(1), "grp"))

	clk.Advance(6 * time.Second)
	assert.True(t, g.DocumentNotice.Allow(int64(1), "grp"), "5s window elapsed")
	assert.False(t, g.Album.Allow(int64(1), "grp"), "10s window still active")
}

func TestGateSetTTL(t *testing.T) {
	t.Parallel()
	clk := newClock()
	g := New(WithClock(clk.Now)).Gate("x", time.Minute)
	require.True(t, g.Allow(1))
	g.SetTTL(time.Second)
	clk.Advance(2 * time.Second)
	assert.True(t, g.Allow(1))
}

func TestConcurrentFirstCallerWins(t *testing.T) {
	t.Parallel()
	th := New()
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if th.ShouldNotify("burst", time.Minute) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, allowed.Load())
}
