package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/post"
	"postbot/internal/render"
	"postbot/internal/services/drafts"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

const handlerTimeout = 30 * time.Second

// dispatchLoop handles updates one at a time, so an admin's messages are
// merged in the order they arrived.
func (a *App) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up := <-a.updates:
			a.handleUpdate(ctx, up)
		}
	}
}

func (a *App) handleUpdate(parent context.Context, up kit.Update) {
	ctx, cancel := context.WithTimeout(parent, handlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("update handler panicked", logx.String("kind", string(up.Kind)), logx.Any("panic", r))
			a.reporter.CaptureError(fmt.Errorf("update handler panic: %v", r), map[string]string{"kind": string(up.Kind)})
		}
	}()
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			a.handleMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			a.handleCallback(ctx, up.Callback)
		}
	}
}

func (a *App) isAdmin(id int64) bool { return a.cfgm.Get().IsAdmin(id) }

func (a *App) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := a.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		a.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (a *App) send(ctx context.Context, to kit.ChatTarget, m tgui.Message) {
	if _, err := m.Send(ctx, a.adapter, to); err != nil {
		a.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (a *App) handleMessage(ctx context.Context, m *kit.Message) {
	to := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	if m.IsGroup || !a.isAdmin(m.FromID) {
		a.log.Debug("message ignored", logx.Int64("from_id", m.FromID), logx.Bool("group", m.IsGroup))
		return
	}
	if m.Attachment == nil && strings.HasPrefix(m.Text, "/") {
		a.handleCommand(ctx, m, to)
		return
	}
	a.handleContent(ctx, m, to)
}

// commandName returns "post" for "/post@SomeBot extra".
func commandName(text string) string {
	f := strings.Fields(text)
	if len(f) == 0 {
		return ""
	}
	name := strings.TrimPrefix(f[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

func (a *App) handleCommand(ctx context.Context, m *kit.Message, to kit.ChatTarget) {
	admin := m.FromID
	switch commandName(m.Text) {
	case "start", "help":
		a.reply(ctx, to, msgHelp)
	case "post", "new":
		if _, err := a.drafts.NewDraft(ctx, admin); err != nil {
			a.replyDraftErr(ctx, to, "new draft", err)
			return
		}
		a.reply(ctx, to, msgNewDraft)
	case "preview":
		a.preview(ctx, admin, to)
	case "cancel":
		a.cancelDraft(ctx, admin, to)
	case "posts":
		posts, err := a.store.ListRecent(ctx, 10)
		if err != nil {
			a.log.Error("list recent posts failed", logx.Err(err))
			a.reply(ctx, to, msgSaveFailed)
			return
		}
		a.send(ctx, to, recentPosts(posts))
	default:
		a.reply(ctx, to, msgUnknownCmd)
	}
}

func (a *App) handleContent(ctx context.Context, m *kit.Message, to kit.ChatTarget) {
	f := post.FragmentFromMessage(m)
	res, err := a.drafts.ApplyFragment(ctx, m.FromID, m.ChatID, f)
	switch {
	case errors.Is(err, post.ErrAlbumNotSupported):
		if res.Notice != "" {
			a.reply(ctx, to, res.Notice)
		}
		return
	case errors.Is(err, post.ErrUnsupportedContent):
		detail := f.Detail
		if detail == "" {
			detail = "empty message"
		}
		a.reply(ctx, to, fmt.Sprintf(msgUnsupportedFm, detail))
		return
	case err != nil:
		a.replyDraftErr(ctx, to, "apply fragment", err)
		return
	}

	text := fmt.Sprintf("✅ Saved to draft #%d.", res.Post.ID)
	if res.Notice != "" {
		text += "\n" + res.Notice
	}
	kb := tgui.NewInline().Row(tgui.Btn("👁 Preview", tgui.Data(cbNS, actPreview, strconv.FormatInt(res.Post.ID, 10))))
	if _, err := a.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true, ReplyMarkupAdapter: kb.Markup()}); err != nil {
		a.log.Warn("ack failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (a *App) replyDraftErr(ctx context.Context, to kit.ChatTarget, op string, err error) {
	switch {
	case errors.Is(err, drafts.ErrBroadcastInFlight):
		a.reply(ctx, to, msgInFlight)
	case errors.Is(err, drafts.ErrEmptyDraft):
		a.reply(ctx, to, msgEmpty)
	case errors.Is(err, drafts.ErrDraftChanged), errors.Is(err, post.ErrNotFound), errors.Is(err, post.ErrNotDraft):
		a.reply(ctx, to, msgStale)
	default:
		a.log.Error("draft operation failed", logx.String("op", op), logx.Int64("chat_id", to.ChatID), logx.Err(err))
		a.reply(ctx, to, msgSaveFailed)
	}
}

// preview renders the draft exactly as recipients would get it, followed by
// a summary with the send keyboard.
func (a *App) preview(ctx context.Context, admin int64, to kit.ChatTarget) {
	p, ok, err := a.drafts.ActiveDraft(ctx, admin)
	if err != nil {
		a.replyDraftErr(ctx, to, "preview", err)
		return
	}
	if !ok {
		a.reply(ctx, to, msgNoDraft)
		return
	}
	ops := render.WithPlaceholder(render.ResolvePost(p), render.Placeholder)
	if err := render.Execute(ctx, a.adapter, to, ops, render.Options{}); err != nil {
		a.log.Warn("preview render failed", logx.Int64("post_id", p.ID), logx.Err(err))
	}
	ids, err := a.store.ListConfirmedRecipientIDs(ctx)
	if err != nil {
		a.log.Warn("count recipients failed", logx.Err(err))
	}
	a.send(ctx, to, draftSummary(p, len(ids)))
}

func (a *App) cancelDraft(ctx context.Context, admin int64, to kit.ChatTarget) {
	ok, err := a.drafts.CancelDraft(ctx, admin)
	if err != nil {
		a.replyDraftErr(ctx, to, "cancel", err)
		return
	}
	if !ok {
		a.reply(ctx, to, msgNoDraft)
		return
	}
	a.reply(ctx, to, msgCanceled)
}

func (a *App) handleCallback(ctx context.Context, cb *kit.Callback) {
	to := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	answer := func(text string) {
		if err := a.adapter.AnswerCallback(ctx, cb.ID, text); err != nil {
			a.log.Debug("answer callback failed", logx.Err(err))
		}
	}
	data, ok := tgui.ParseData(cb.Data)
	if !ok || data.NS != cbNS {
		answer("")
		return
	}
	if !a.isAdmin(cb.FromID) {
		answer(msgNotAllowed)
		return
	}
	postID, _ := strconv.ParseInt(data.Payload, 10, 64)

	switch data.Action {
	case actPreview:
		answer("")
		a.preview(ctx, cb.FromID, to)
	case actSend:
		answer("")
		a.startBroadcast(ctx, cb.FromID, postID, to)
	case actClear:
		answer("")
		if _, err := a.drafts.NewDraft(ctx, cb.FromID); err != nil {
			a.replyDraftErr(ctx, to, "clear", err)
			return
		}
		a.reply(ctx, to, msgCleared)
	case actCancel:
		answer("")
		a.cancelDraft(ctx, cb.FromID, to)
	default:
		answer(msgUnknownCmd)
	}
}
