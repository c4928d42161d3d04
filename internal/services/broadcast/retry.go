package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

var errWorkerPanic = errors.New("broadcast worker panicked")

// minNetworkBackoff applies when no send delay is configured.
const minNetworkBackoff = 100 * time.Millisecond

// retrySender retries rate-limited and network failures of single sends, so
// a recipient never receives the main message twice because its document
// failed. The retry budget is per recipient: forRecipient hands out a copy
// whose retries are shared by every message sent to that recipient.
type retrySender struct {
	next      transport.Sender
	retryMax  int
	sendDelay time.Duration
	limiter   *rate.Limiter
	sleep     SleepFunc
	log       logx.Logger

	left     int
	attempts int
}

func (r *retrySender) forRecipient() *retrySender {
	cp := *r
	cp.left = r.retryMax
	cp.attempts = 0
	return &cp
}

// wait applies the global rate limit. A wait that would outlive the context
// deadline is reported as context.DeadlineExceeded.
func (r *retrySender) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	err := r.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: rate limit wait: %v", context.DeadlineExceeded, err)
}

func (r *retrySender) backoff(err error) time.Duration {
	switch transport.KindOf(err) {
	case transport.FailureRateLimited:
		return max(transport.RetryAfterOf(err), r.sendDelay)
	case transport.FailureNetwork:
		if r.sendDelay > 0 {
			return r.sendDelay
		}
		return minNetworkBackoff
	}
	return 0
}

func (r *retrySender) do(ctx context.Context, to transport.ChatTarget, method string, send func() (transport.MessageRef, error)) (transport.MessageRef, error) {
	for {
		if err := r.wait(ctx); err != nil {
			return transport.MessageRef{}, err
		}
		r.attempts++
		ref, err := send()
		if err == nil {
			return ref, nil
		}
		if !transport.KindOf(err).Retryable() || r.left <= 0 {
			return ref, err
		}
		r.left--
		delay := r.backoff(err)
		r.log.Debug("broadcast send retry scheduled",
			logx.Int64("chat_id", to.ChatID),
			logx.String("method", method),
			logx.Int("attempt", r.attempts+1),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return transport.MessageRef{}, err
		}
	}
}

func (r *retrySender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return r.do(ctx, to, "text", func() (transport.MessageRef, error) { return r.next.SendText(ctx, to, text, opt) })
}

func (r *retrySender) SendPhoto(ctx context.Context, to transport.ChatTarget, f transport.File, opt *transport.SendOptions) (transport.MessageRef, error) {
	return r.do(ctx, to, "photo", func() (transport.MessageRef, error) { return r.next.SendPhoto(ctx, to, f, opt) })
}

func (r *retrySender) SendVideo(ctx context.Context, to transport.ChatTarget, f transport.File, opt *transport.SendOptions) (transport.MessageRef, error) {
	return r.do(ctx, to, "video", func() (transport.MessageRef, error) { return r.next.SendVideo(ctx, to, f, opt) })
}

func (r *retrySender) SendAnimation(ctx context.Context, to transport.ChatTarget, f transport.File, opt *transport.SendOptions) (transport.MessageRef, error) {
	return r.do(ctx, to, "animation", func() (transport.MessageRef, error) { return r.next.SendAnimation(ctx, to, f, opt) })
}

func (r *retrySender) SendDocument(ctx context.Context, to transport.ChatTarget, f transport.File, opt *transport.SendOptions) (transport.MessageRef, error) {
	return r.do(ctx, to, "document", func() (transport.MessageRef, error) { return r.next.SendDocument(ctx, to, f, opt) })
}
