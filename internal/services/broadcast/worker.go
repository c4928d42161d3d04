package broadcast

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"postbot/internal/render"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type run struct {
	id     string
	postID int64
	total  int
	ops    []render.Op
	cfg    Config
	sender *retrySender
	svc    *Service
	log    logx.Logger

	processed atomic.Int64
	success   atomic.Int64
	failed    atomic.Int64
}

// execute delivers to every recipient and returns the counts. A non-nil error
// means the run was aborted.
func (r *run) execute(parent context.Context, recipients []int64) (int, int, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	workers := r.cfg.Workers
	if workers > len(recipients) {
		workers = len(recipients)
	}

	queue := make(chan int64)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	abort := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("panic in broadcast worker", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
					abort(errWorkerPanic)
				}
			}()
			for chatID := range queue {
				if err := r.deliver(ctx, chatID); err != nil {
					abort(err)
					return
				}
			}
		}()
	}

feed:
	for _, id := range recipients {
		select {
		case <-ctx.Done():
			break feed
		case queue <- id:
		}
	}
	close(queue)
	wg.Wait()

	if firstErr == nil {
		if err := parent.Err(); err != nil {
			firstErr = err
		}
	}
	return int(r.success.Load()), int(r.failed.Load()), firstErr
}

// deliver sends the post to one recipient, records the outcome and paces.
func (r *run) deliver(ctx context.Context, chatID int64) error {
	err := render.Execute(ctx, r.sender.forRecipient(), transport.ChatTarget{ChatID: chatID}, r.ops, render.Options{})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if transport.IsContextDone(err) {
			return err
		}
		kind := transport.KindOf(err)
		if kind == transport.FailureUnknown {
			return err
		}
		r.failed.Add(1)
		r.log.Warn("broadcast send failed", logx.Int64("chat_id", chatID), logx.String("kind", kind.String()), logx.Err(err))
	} else {
		r.success.Add(1)
	}

	n := int(r.processed.Add(1))
	r.svc.trackProgress(r.id, n, int(r.success.Load()), int(r.failed.Load()))
	if every := r.cfg.BatchLogEvery; every > 0 && n%every == 0 {
		r.log.Info("broadcast progress", logx.Int("processed", n), logx.Int("total", r.total))
		r.svc.publish(EventProgress, ProgressEvent{RunID: r.id, PostID: r.postID, Processed: n, Total: r.total})
	}
	return r.svc.sleep(ctx, r.cfg.SendDelay)
}
