// Package render turns a post payload into an ordered list of send operations
// and executes them against a transport.
package render

import (
	"context"
	"fmt"

	"postbot/internal/post"
	"postbot/internal/transport"
)

type OpKind string

const (
	OpText      OpKind = "text"
	OpPhoto     OpKind = "photo"
	OpVideo     OpKind = "video"
	OpAnimation OpKind = "animation"
	OpDocument  OpKind = "document"
)

// Op is one transport call. Text is the message text for OpText and the
// caption for every other kind.
type Op struct {
	Kind     OpKind
	Text     string
	Entities []transport.Entity
	FileRef  string
	FileName string
}

// Placeholder is shown when previewing a draft that has nothing to render.
const Placeholder = "The draft is empty. Send text, a photo, a video, a GIF or a document."

// Resolve maps a payload to its send operations: the main content first,
// then the document as a separate delivery. An empty payload yields no ops.
func Resolve(p post.Payload) []Op {
	ops := make([]Op, 0, 2)
	switch m := p.Main().(type) {
	case post.MediaMain:
		ops = append(ops, Op{Kind: mediaOp(m.Kind), FileRef: m.FileRef, Text: m.Caption, Entities: m.Entities})
	case post.TextMain:
		ops = append(ops, Op{Kind: OpText, Text: m.Body, Entities: m.Entities})
	}
	if d := p.Document; d != nil && d.FileRef != "" {
		ops = append(ops, Op{Kind: OpDocument, FileRef: d.FileRef, FileName: d.FileName, Text: d.Caption, Entities: d.CaptionEntities})
	}
	return ops
}

// ResolvePost is Resolve for a nil-safe post.
func ResolvePost(p *post.Post) []Op {
	if p == nil {
		return nil
	}
	return Resolve(p.Payload)
}

// WithPlaceholder substitutes a single text op when ops is empty.
func WithPlaceholder(ops []Op, text string) []Op {
	if len(ops) > 0 {
		return ops
	}
	return []Op{{Kind: OpText, Text: text}}
}

func mediaOp(k post.MediaKind) OpKind {
	switch k {
	case post.MediaVideo:
		return OpVideo
	case post.MediaAnimation:
		return OpAnimation
	default:
		return OpPhoto
	}
}

// DocumentFallbackText is sent instead of a document the platform refused.
func DocumentFallbackText(fileName string) string {
	if fileName == "" {
		fileName = "document"
	}
	return "📎 " + fileName
}

// Options apply to an Execute call.
type Options struct {
	// ReplyMarkup is attached to the last delivered message (adapter-specific).
	ReplyMarkup any
}

// Execute sends ops in order to one chat. A document op rejected with a bad
// request is replaced by a text naming the file; every other failure stops
// execution and is returned as is, so callers can classify it.
func Execute(ctx context.Context, s transport.Sender, to transport.ChatTarget, ops []Op, opt Options) error {
	for i, op := range ops {
		so := &transport.SendOptions{Entities: op.Entities}
		if i == len(ops)-1 && opt.ReplyMarkup != nil {
			so.ReplyMarkupAdapter = opt.ReplyMarkup
		}
		err := send(ctx, s, to, op, so)
		if err != nil && op.Kind == OpDocument && transport.KindOf(err) == transport.FailureBadRequest {
			fb := &transport.SendOptions{DisablePreview: true, ReplyMarkupAdapter: so.ReplyMarkupAdapter}
			_, err = s.SendText(ctx, to, DocumentFallbackText(op.FileName), fb)
		}
		if err != nil {
			return fmt.Errorf("%s op: %w", op.Kind, err)
		}
	}
	return nil
}

func send(ctx context.Context, s transport.Sender, to transport.ChatTarget, op Op, so *transport.SendOptions) error {
	f := transport.File{Ref: op.FileRef, Name: op.FileName, Caption: op.Text, Entities: op.Entities}
	var err error
	switch op.Kind {
	case OpText:
		_, err = s.SendText(ctx, to, op.Text, so)
	case OpPhoto:
		_, err = s.SendPhoto(ctx, to, f, so)
	case OpVideo:
		_, err = s.SendVideo(ctx, to, f, so)
	case OpAnimation:
		_, err = s.SendAnimation(ctx, to, f, so)
	case OpDocument:
		_, err = s.SendDocument(ctx, to, f, so)
	default:
		err = fmt.Errorf("unknown op kind %q", op.Kind)
	}
	return err
}
