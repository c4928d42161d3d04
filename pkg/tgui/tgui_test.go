package tgui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "postbot/internal/transport"
	"postbot/internal/transport/transporttest"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()
	d := Data("post", "send", "42")
	assert.Equal(t, "post:send:42", d)
	cb, ok := ParseData(d)
	require.True(t, ok)
	assert.Equal(t, Callback{NS: "post", Action: "send", Payload: "42"}, cb)

	cb, ok = ParseData(Data("post", "preview", ""))
	require.True(t, ok)
	assert.Empty(t, cb.Payload)

	_, ok = ParseData("garbage")
	assert.False(t, ok)
	_, ok = ParseData(":x")
	assert.False(t, ok)

	assert.NoError(t, CheckData(d))
	assert.ErrorIs(t, CheckData(string(make([]byte, MaxCallbackDataLen+1))), ErrCallbackDataTooLong)
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "héllo", TruncRunes("héllo", 5))
	assert.Equal(t, "hé…", TruncRunes("héllo", 2))
	assert.Equal(t, "", TruncRunes("x", 0))
}

func TestBuilderEscapesAndSends(t *testing.T) {
	t.Parallel()
	kb := NewInline().Row(Btn("Send", "post:send:1"))
	msg := New().Title("📝", "Draft <1>").KV("Recipients", "3 & more").Line("a<b").Inline(kb).Build()

	assert.Equal(t, "📝 <b>Draft &lt;1&gt;</b>\n• <b>Recipients</b>: 3 &amp; more\na&lt;b", msg.Text)
	assert.Equal(t, "HTML", msg.Opt.ParseMode)
	assert.True(t, msg.Opt.DisablePreview)
	assert.Same(t, kb.Markup(), msg.Opt.ReplyMarkupAdapter)
	assert.Len(t, kb.Rows(), 1)

	rec := transporttest.NewRecorder(nil)
	_, err := msg.Send(context.Background(), rec, kit.ChatTarget{ChatID: 9})
	require.NoError(t, err)
	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, msg.Text, calls[0].Text)
}
