// Package transporttest provides a recording transport.Sender for tests.
package transporttest

import (
	"context"
	"sync"

	"postbot/internal/transport"
)

// Call is one recorded send.
type Call struct {
	Method string
	To     transport.ChatTarget
	Text   string
	File   transport.File
	Opt    transport.SendOptions
}

// FailFunc decides the outcome of a send. attempt counts calls per chat, from 1.
type FailFunc func(method string, chatID int64, attempt int) error

// Recorder records every call and fails them according to Fail.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	attempts map[int64]int
	nextID   int

	Fail FailFunc
}

func NewRecorder(fail FailFunc) *Recorder {
	return &Recorder{attempts: map[int64]int{}, Fail: fail}
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Attempts returns how many sends were tried for chatID.
func (r *Recorder) Attempts(chatID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[chatID]
}

func (r *Recorder) record(ctx context.Context, c Call) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	r.mu.Lock()
	r.attempts[c.To.ChatID]++
	attempt := r.attempts[c.To.ChatID]
	r.calls = append(r.calls, c)
	r.nextID++
	id := r.nextID
	fail := r.Fail
	r.mu.Unlock()

	if fail != nil {
		if err := fail(c.Method, c.To.ChatID, attempt); err != nil {
			return transport.MessageRef{}, err
		}
	}
	return transport.MessageRef{ChatID: c.To.ChatID, ThreadID: c.To.ThreadID, MessageID: id}, nil
}

func opts(o *transport.SendOptions) transport.SendOptions {
	if o == nil {
		return transport.SendOptions{}
	}
	return *o
}

func (r *Recorder) SendText(ctx context.Context, to transport.ChatTarget, text string, o *transport.SendOptions) (transport.MessageRef, error) {
	return r.record(ctx, Call{Method: "text", To: to, Text: text, Opt: opts(o)})
}

func (r *Recorder) SendPhoto(ctx context.Context, to transport.ChatTarget, f transport.File, o *transport.SendOptions) (transport.MessageRef, error) {
	return r.record(ctx, Call{Method: "photo", To: to, Text: f.Caption, File: f, Opt: opts(o)})
}

func (r *Recorder) SendVideo(ctx context.Context, to transport.ChatTarget, f transport.File, o *transport.SendOptions) (transport.MessageRef, error) {
	return r.record(ctx, Call{Method: "video", To: to, Text: f.Caption, File: f, Opt: opts(o)})
}

func (r *Recorder) SendAnimation(ctx context.Context, to transport.ChatTarget, f transport.File, o *transport.SendOptions) (transport.MessageRef, error) {
	return r.record(ctx, Call{Method: "animation", To: to, Text: f.Caption, File: f, Opt: opts(o)})
}

func (r *Recorder) SendDocument(ctx context.Context, to transport.ChatTarget, f transport.File, o *transport.SendOptions) (transport.MessageRef, error) {
	return r.record(ctx, Call{Method: "document", To: to, Text: f.Caption, File: f, Opt: opts(o)})
}

var _ transport.Sender = (*Recorder)(nil)
