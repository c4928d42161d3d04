package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "postbot/pkg/logx"
)

func TestMemBusFanOutAndDrop(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: "x"})
	b.Publish(Event{Type: "y"})

	got := <-a
	assert.Equal(t, "x", got.Type)
	assert.False(t, got.Time.IsZero())
	assert.Equal(t, "x", (<-c).Type)
	assert.Equal(t, "y", (<-c).Type)
	assert.EqualValues(t, 1, b.Dropped())

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())
	b.Publish(Event{Type: "z"})
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestNATSBridgeForwards(t *testing.T) {
	pub := &fakePublisher{}
	br := newNATSBridge(pub, ".bots.", logx.Nop())
	assert.Equal(t, "bots.broadcast.finished", br.Subject("broadcast.finished"))

	bus := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- br.Run(ctx, bus) }()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	bus.Publish(Event{Type: "draft.created", Data: map[string]int64{"post_id": 7}})
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	m := pub.msgs[0]
	assert.Equal(t, "bots.draft.created", m.Subject)
	assert.Equal(t, "draft.created", m.Header.Get("Event-Type"))
	var decoded struct {
		Type string           `json:"type"`
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(m.Data, &decoded))
	assert.Equal(t, int64(7), decoded.Data["post_id"])
}

func TestNATSBridgeDefaultPrefix(t *testing.T) {
	br := newNATSBridge(&fakePublisher{}, "", logx.Nop())
	assert.Equal(t, "postbot.x", br.Subject("x"))
	assert.NoError(t, br.Close())
}
