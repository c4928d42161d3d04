package app

import (
	"context"
	"fmt"
	"strconv"

	"postbot/internal/post"
	kit "postbot/internal/transport"
	"postbot/pkg/tgui"
)

const (
	cbNS = "post"

	actPreview = "preview"
	actSend    = "send"
	actClear   = "clear"
	actCancel  = "cancel"
)

const (
	msgHelp = "Compose a post by sending messages here:\n" +
		"• text sets the body\n" +
		"• a photo, video or GIF sets the media (its caption, or the text, goes under it)\n" +
		"• a document is attached and sent after the main message\n\n" +
		"/post starts a new draft\n" +
		"/preview shows the draft with send buttons\n" +
		"/cancel discards the draft\n" +
		"/posts lists recent posts"
	msgNewDraft      = "📝 New draft started. Send the content of the post."
	msgNoDraft       = "There is no active draft. Send content or use /post."
	msgCanceled      = "🗑 Draft discarded."
	msgCleared       = "🧹 Draft cleared."
	msgInFlight      = "This draft is being sent. Wait for the broadcast to finish."
	msgEmpty         = "Nothing to send: the draft is empty."
	msgStale         = "This draft is no longer active. Open /preview again."
	msgSaveFailed    = "Could not save the draft. Try again."
	msgUnknownCmd    = "Unknown command. See /help."
	msgNotAllowed    = "Not allowed."
	msgNoPosts       = "No posts yet."
	msgUnsupportedFm = "This kind of message cannot be part of a post (%s). Send text, a photo, a video, a GIF or a document."
)

type menuSetter interface {
	SetCommands(ctx context.Context, cmds []kit.BotCommand) error
}

func menuCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "post", Description: "Start a new draft"},
		{Command: "preview", Description: "Preview the draft"},
		{Command: "cancel", Description: "Discard the draft"},
		{Command: "posts", Description: "Recent posts"},
		{Command: "help", Description: "How to compose a post"},
	}
}

func postKeyboard(postID int64) *tgui.Inline {
	id := strconv.FormatInt(postID, 10)
	return tgui.NewInline().
		Row(tgui.Btn("🚀 Send", tgui.Data(cbNS, actSend, id)), tgui.Btn("👁 Preview", tgui.Data(cbNS, actPreview, id))).
		Row(tgui.Btn("🧹 Clear", tgui.Data(cbNS, actClear, id)), tgui.Btn("🗑 Cancel", tgui.Data(cbNS, actCancel, id)))
}

func draftSummary(p *post.Post, recipients int) tgui.Message {
	b := tgui.New().Title("📝", fmt.Sprintf("Draft #%d", p.ID))
	main := "empty"
	switch m := p.Payload.Main().(type) {
	case post.TextMain:
		main = "text"
	case post.MediaMain:
		main = string(m.Kind)
	}
	b.KV("Main", main)
	if d := p.Payload.Document; d != nil {
		b.KV("Document", d.DisplayName())
	}
	b.KV("Recipients", strconv.Itoa(recipients))
	return b.Inline(postKeyboard(p.ID)).Build()
}

func recentPosts(posts []*post.Post) tgui.Message {
	if len(posts) == 0 {
		return tgui.New().Line(msgNoPosts).Build()
	}
	b := tgui.New().Title("🗂", "Recent posts")
	for _, p := range posts {
		line := fmt.Sprintf("#%d %s · %s", p.ID, p.Status, p.CreatedAt.UTC().Format("2006-01-02 15:04"))
		if p.Status == post.StatusSent {
			line += fmt.Sprintf(" · ✅ %d ❌ %d", p.SentSuccess, p.SentFailed)
		}
		if t := p.Payload.Text; t != nil && t.Body != "" {
			line += " · " + tgui.TruncRunes(t.Body, 40)
		}
		b.Line(line)
	}
	return b.Build()
}
