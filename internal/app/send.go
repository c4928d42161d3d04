package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"postbot/internal/services/broadcast"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// startBroadcast freezes the draft and sends it in the background. The
// admin gets one message when it starts and one with the final counts.
func (a *App) startBroadcast(ctx context.Context, admin, postID int64, to kit.ChatTarget) {
	snap, err := a.drafts.Finalize(ctx, admin, postID)
	if err != nil {
		a.replyDraftErr(ctx, to, "finalize", err)
		return
	}
	p := snap.Post
	a.reply(ctx, to, fmt.Sprintf("🚀 Broadcast of post #%d started: %d recipients.", p.ID, len(snap.Recipients)))

	a.sup.Go("broadcast.post-"+strconv.FormatInt(p.ID, 10), func(c context.Context) error {
		defer a.drafts.Release(admin)
		res, err := a.bcast.Broadcast(c, p, snap.Recipients)

		// The outcome is reported even while shutting down.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(c), 10*time.Second)
		defer cancel()
		switch {
		case err == nil:
			a.reply(rctx, to, fmt.Sprintf("✅ Post #%d delivered: %d sent, %d failed, %d total.", p.ID, res.Success, res.Failed, res.Total))
		case errors.Is(err, broadcast.ErrAlreadyProcessed):
			a.reply(rctx, to, fmt.Sprintf("Post #%d was already sent.", p.ID))
		default:
			if !kit.IsContextDone(err) {
				a.reporter.CaptureError(err, map[string]string{"post_id": strconv.FormatInt(p.ID, 10), "phase": "broadcast"})
			}
			a.log.Error("broadcast aborted", logx.Int64("post_id", p.ID), logx.Err(err))
			a.reply(rctx, to, fmt.Sprintf("⚠️ Broadcast of post #%d aborted: %v\nThe post is still a draft.", p.ID, err))
		}
		// Broadcast failures never take the app down.
		return nil
	})
}
