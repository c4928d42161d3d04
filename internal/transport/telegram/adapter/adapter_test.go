package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	kit "postbot/internal/transport"
)

func TestClassifyErr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		err   error
		kind  kit.FailureKind
		after time.Duration
	}{
		{name: "blocked", err: &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, kind: kit.FailureForbidden},
		{name: "chat not found", err: &tele.Error{Code: 400, Description: "Bad Request: chat not found"}, kind: kit.FailureNotFound},
		{name: "bad request", err: &tele.Error{Code: 400, Description: "Bad Request: wrong file identifier"}, kind: kit.FailureBadRequest},
		{name: "flood", err: tele.FloodError{RetryAfter: 7}, kind: kit.FailureRateLimited, after: 7 * time.Second},
		{name: "unknown description", err: errors.New("telegram: Forbidden: user is deactivated (403)"), kind: kit.FailureForbidden},
		{name: "gateway", err: errors.New("telegram: Bad Gateway (502)"), kind: kit.FailureNetwork},
		{name: "transport", err: fmt.Errorf("telebot: %w", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: errors.New("connection reset")}), kind: kit.FailureNetwork},
		{name: "unauthorized", err: &tele.Error{Code: 401, Description: "Unauthorized"}, kind: kit.FailureUnknown},
		{name: "opaque", err: errors.New("boom"), kind: kit.FailureUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.kind, kit.KindOf(got))
			assert.Equal(t, tt.after, kit.RetryAfterOf(got))
		})
	}

	assert.NoError(t, classifyErr(nil))
	assert.ErrorIs(t, classifyErr(context.Canceled), context.Canceled)
	assert.Equal(t, kit.FailureUnknown, kit.KindOf(classifyErr(context.Canceled)))
}

func TestMapMessage(t *testing.T) {
	t.Parallel()
	chat := &tele.Chat{ID: 42, Type: tele.ChatPrivate}
	sender := &tele.User{ID: 7, Username: "admin"}

	m := mapMessage(&tele.Message{
		ID: 1, Chat: chat, Sender: sender, Caption: "look",
		Animation: &tele.Animation{File: tele.File{FileID: "gif1"}, FileName: "a.mp4"},
		Document:  &tele.Document{File: tele.File{FileID: "doc1"}, FileName: "a.mp4"},
	})
	require.NotNil(t, m)
	assert.Equal(t, int64(42), m.ChatID)
	assert.Equal(t, int64(7), m.FromID)
	assert.False(t, m.IsGroup)
	require.NotNil(t, m.Attachment)
	assert.Equal(t, kit.AttachAnimation, m.Attachment.Kind)
	assert.Equal(t, "gif1", m.Attachment.FileRef)

	m = mapMessage(&tele.Message{Chat: chat, Document: &tele.Document{File: tele.File{FileID: "d"}, FileName: "rules.pdf"}})
	assert.Equal(t, kit.AttachDocument, m.Attachment.Kind)
	assert.Equal(t, "rules.pdf", m.Attachment.FileName)

	m = mapMessage(&tele.Message{Chat: chat, Photo: &tele.Photo{File: tele.File{FileID: "p"}}, AlbumID: "g1"})
	assert.Equal(t, kit.AttachPhoto, m.Attachment.Kind)
	assert.Equal(t, "g1", m.AlbumID)

	m = mapMessage(&tele.Message{Chat: chat, Sticker: &tele.Sticker{}})
	assert.Equal(t, kit.AttachOther, m.Attachment.Kind)
	assert.Equal(t, "sticker", m.Attachment.Detail)

	m = mapMessage(&tele.Message{Chat: chat, Text: "hi"})
	assert.Nil(t, m.Attachment)
	assert.Equal(t, "hi", m.Text)

	assert.Nil(t, mapMessage(nil))
	assert.Nil(t, mapMessage(&tele.Message{}))
}

func TestEntitiesRoundTrip(t *testing.T) {
	t.Parallel()
	in := []kit.Entity{
		{Type: "bold", Offset: 0, Length: 4},
		{Type: "text_link", Offset: 5, Length: 3, URL: "https://example.org"},
		{Type: "text_mention", Offset: 9, Length: 2, UserID: 99},
		{Type: "pre", Offset: 12, Length: 5, Language: "go"},
	}
	assert.Equal(t, in, fromTeleEntities(toTeleEntities(in)))
	assert.Nil(t, toTeleEntities(nil))
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"short"}, splitTelegramText("short", 10, ""))

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	assert.Equal(t, []string{strings.Repeat("a", 8), strings.Repeat("b", 8)}, splitTelegramText(long, 10, ""))

	html := "aaaa<b>bold</b>"
	parts := splitTelegramText(html, 6, "HTML")
	assert.Equal(t, "aaaa", parts[0])
	assert.Equal(t, html, strings.Join(parts, ""))
}

func TestCommandsHashStable(t *testing.T) {
	t.Parallel()
	a := []kit.BotCommand{{Command: "post", Description: "new"}}
	b := []kit.BotCommand{{Command: "post", Description: "new"}}
	assert.Equal(t, commandsHash(a), commandsHash(b))
	assert.NotEqual(t, commandsHash(a), commandsHash(append(b, kit.BotCommand{Command: "help"})))
}
