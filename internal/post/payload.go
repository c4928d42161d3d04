package post

import (
	"reflect"
	"strings"

	"postbot/internal/transport"
)

type Entity = transport.Entity

type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
)

func (k MediaKind) Valid() bool {
	return k == MediaPhoto || k == MediaVideo || k == MediaAnimation
}

// Text is the stored main text of a draft.
type Text struct {
	Body     string   `json:"body"`
	Entities []Entity `json:"entities,omitempty"`
}

// Media is the main visual of a draft. An empty Caption means "none".
type Media struct {
	Kind            MediaKind `json:"kind"`
	FileRef         string    `json:"file_ref"`
	Caption         string    `json:"caption,omitempty"`
	CaptionEntities []Entity  `json:"caption_entities,omitempty"`
}

// Document is an attachment delivered after the main content.
type Document struct {
	FileRef         string   `json:"file_ref"`
	FileName        string   `json:"file_name,omitempty"`
	Caption         string   `json:"caption,omitempty"`
	CaptionEntities []Entity `json:"caption_entities,omitempty"`
}

// DisplayName is the name shown in notices and fallbacks.
func (d *Document) DisplayName() string {
	if d == nil {
		return ""
	}
	if n := strings.TrimSpace(d.FileName); n != "" {
		return n
	}
	return "document"
}

// Payload is the composable content of a post.
//
// Text and Media are slots: applying media keeps the stored text, which then
// serves as caption fallback; applying text drops the media so the latest
// main fragment is what renders. Document is independent of both.
type Payload struct {
	Text     *Text     `json:"text,omitempty"`
	Media    *Media    `json:"media,omitempty"`
	Document *Document `json:"document,omitempty"`
}

// MainContent is the resolved main content of a payload: TextMain, MediaMain or nil.
type MainContent interface {
	isMainContent()
}

type TextMain struct {
	Body     string
	Entities []Entity
}

type MediaMain struct {
	Kind     MediaKind
	FileRef  string
	Caption  string
	Entities []Entity
}

func (TextMain) isMainContent()  {}
func (MediaMain) isMainContent() {}

// Main resolves what renders as the first delivery. Media wins over text;
// a media without its own caption borrows the stored text and its entities.
func (p Payload) Main() MainContent {
	if m := p.Media; m != nil && m.FileRef != "" {
		mm := MediaMain{Kind: m.Kind, FileRef: m.FileRef, Caption: m.Caption, Entities: m.CaptionEntities}
		if mm.Caption == "" && p.Text != nil {
			mm.Caption = p.Text.Body
			mm.Entities = p.Text.Entities
		}
		return mm
	}
	if t := p.Text; t != nil && t.Body != "" {
		return TextMain{Body: t.Body, Entities: t.Entities}
	}
	return nil
}

// IsEmpty reports whether nothing would render.
func (p Payload) IsEmpty() bool {
	return p.Main() == nil && (p.Document == nil || p.Document.FileRef == "")
}

func (p Payload) Equal(o Payload) bool {
	return reflect.DeepEqual(p.normalized(), o.normalized())
}

// normalized drops empty entity slices so a nil/empty round trip compares equal.
func (p Payload) normalized() Payload {
	out := Payload{}
	if p.Text != nil {
		t := *p.Text
		if len(t.Entities) == 0 {
			t.Entities = nil
		}
		out.Text = &t
	}
	if p.Media != nil {
		m := *p.Media
		if len(m.CaptionEntities) == 0 {
			m.CaptionEntities = nil
		}
		out.Media = &m
	}
	if p.Document != nil {
		d := *p.Document
		if len(d.CaptionEntities) == 0 {
			d.CaptionEntities = nil
		}
		out.Document = &d
	}
	return out
}
