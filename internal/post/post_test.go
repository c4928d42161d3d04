package post

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/transport"
)

func bold(off, n int) []Entity { return []Entity{{Type: "bold", Offset: off, Length: n}} }

func TestApplySequences(t *testing.T) {
	t.Parallel()
	text := Fragment{Kind: FragmentText, Text: "hello", Entities: bold(0, 5)}
	photo := Fragment{Kind: FragmentPhoto, FileRef: "ph1"}
	captioned := Fragment{Kind: FragmentVideo, FileRef: "vid1", Caption: "own"}
	doc := Fragment{Kind: FragmentDocument, FileRef: "doc1", FileName: "a.pdf"}

	tests := []struct {
		name string
		seq  []Fragment
		want MainContent
		doc  string
	}{
		{name: "text only", seq: []Fragment{text}, want: TextMain{Body: "hello", Entities: bold(0, 5)}},
		{name: "photo borrows text caption", seq: []Fragment{text, photo},
			want: MediaMain{Kind: MediaPhoto, FileRef: "ph1", Caption: "hello", Entities: bold(0, 5)}},
		{name: "own caption wins", seq: []Fragment{text, captioned},
			want: MediaMain{Kind: MediaVideo, FileRef: "vid1", Caption: "own"}},
		{name: "text after media replaces it", seq: []Fragment{photo, text},
			want: TextMain{Body: "hello", Entities: bold(0, 5)}},
		{name: "latest media wins", seq: []Fragment{photo, captioned},
			want: MediaMain{Kind: MediaVideo, FileRef: "vid1", Caption: "own"}},
		{name: "document is additive", seq: []Fragment{text, doc, photo},
			want: MediaMain{Kind: MediaPhoto, FileRef: "ph1", Caption: "hello", Entities: bold(0, 5)}, doc: "doc1"},
		{name: "document only", seq: []Fragment{doc}, want: nil, doc: "doc1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var p Payload
			for _, f := range tt.seq {
				var err error
				p, _, err = p.Apply(f)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, p.Main())
			if tt.doc != "" {
				require.NotNil(t, p.Document)
				assert.Equal(t, tt.doc, p.Document.FileRef)
			}
			assert.False(t, p.IsEmpty())
		})
	}
}

func TestApplyDocumentChange(t *testing.T) {
	t.Parallel()
	var p Payload
	p, ch, err := p.Apply(Fragment{Kind: FragmentDocument, FileRef: "d1"})
	require.NoError(t, err)
	assert.Equal(t, ChangeDocumentAttached, ch)

	p, ch, err = p.Apply(Fragment{Kind: FragmentDocument, FileRef: "d2", FileName: "b.zip"})
	require.NoError(t, err)
	assert.Equal(t, ChangeDocumentReplaced, ch)
	assert.Equal(t, "b.zip", p.Document.DisplayName())
}

func TestApplyRejections(t *testing.T) {
	t.Parallel()
	base, _, err := Payload{}.Apply(Fragment{Kind: FragmentText, Text: "keep"})
	require.NoError(t, err)

	_, _, err = base.Apply(Fragment{Kind: FragmentPhoto, FileRef: "x", MediaGroupID: "g1"})
	assert.ErrorIs(t, err, ErrAlbumNotSupported)

	_, _, err = base.Apply(Fragment{Kind: FragmentUnsupported, Detail: "sticker"})
	assert.ErrorIs(t, err, ErrUnsupportedContent)
	assert.Contains(t, err.Error(), "sticker")

	_, _, err = base.Apply(Fragment{Kind: FragmentText, Text: "  "})
	assert.ErrorIs(t, err, ErrUnsupportedContent)

	assert.Equal(t, "keep", base.Text.Body, "rejected fragments leave the payload untouched")
}

func TestPayloadEmptyAndEqual(t *testing.T) {
	t.Parallel()
	assert.True(t, Payload{}.IsEmpty())
	assert.True(t, Payload{Text: &Text{}}.IsEmpty())
	assert.True(t, Payload{Media: &Media{Kind: MediaPhoto}}.IsEmpty())

	a := Payload{Text: &Text{Body: "x", Entities: []Entity{}}}
	b := Payload{Text: &Text{Body: "x"}}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(Payload{}))
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()
	assert.True(t, StatusDraft.CanTransition(StatusSent))
	assert.True(t, StatusDraft.CanTransition(StatusCanceled))
	assert.False(t, StatusDraft.CanTransition(StatusDraft))
	assert.False(t, StatusSent.CanTransition(StatusCanceled))
	assert.False(t, StatusCanceled.CanTransition(StatusSent))

	p := &Post{ID: 1, Status: StatusDraft}
	at := time.Unix(100, 0)
	require.NoError(t, p.Transition(StatusSent, at))
	require.NotNil(t, p.SentAt)
	assert.Equal(t, at, *p.SentAt)
	assert.ErrorIs(t, p.Transition(StatusCanceled, at), ErrInvalidTransition)
}

func TestFragmentFromMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  *transport.Message
		want FragmentKind
	}{
		{name: "text", msg: &transport.Message{Text: "hi"}, want: FragmentText},
		{name: "photo", msg: &transport.Message{Attachment: &transport.Attachment{Kind: transport.AttachPhoto, FileRef: "p"}}, want: FragmentPhoto},
		{name: "animation", msg: &transport.Message{Attachment: &transport.Attachment{Kind: transport.AttachAnimation, FileRef: "a"}}, want: FragmentAnimation},
		{name: "document", msg: &transport.Message{Attachment: &transport.Attachment{Kind: transport.AttachDocument, FileRef: "d"}}, want: FragmentDocument},
		{name: "sticker", msg: &transport.Message{Attachment: &transport.Attachment{Kind: transport.AttachOther, Detail: "sticker"}}, want: FragmentUnsupported},
		{name: "empty", msg: &transport.Message{}, want: FragmentUnsupported},
		{name: "nil", msg: nil, want: FragmentUnsupported},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FragmentFromMessage(tt.msg).Kind)
		})
	}

	f := FragmentFromMessage(&transport.Message{AlbumID: "g", Caption: "c",
		Attachment: &transport.Attachment{Kind: transport.AttachPhoto, FileRef: "p"}})
	assert.Equal(t, "g", f.MediaGroupID)
	assert.Equal(t, "c", f.Caption)
}
