package post

import (
	"fmt"
	"strings"

	"postbot/internal/transport"
)

type FragmentKind string

const (
	FragmentText        FragmentKind = "text"
	FragmentPhoto       FragmentKind = "photo"
	FragmentVideo       FragmentKind = "video"
	FragmentAnimation   FragmentKind = "animation"
	FragmentDocument    FragmentKind = "document"
	FragmentUnsupported FragmentKind = "unsupported"
)

// Fragment is one inbound admin message reduced to what the composer needs.
type Fragment struct {
	Kind     FragmentKind
	Text     string
	Entities []Entity

	FileRef         string
	FileName        string
	Caption         string
	CaptionEntities []Entity

	// MediaGroupID is set for album parts.
	MediaGroupID string
	// Detail names the unsupported kind ("sticker", "voice", ...).
	Detail string
}

// FragmentFromMessage classifies an inbound message.
func FragmentFromMessage(m *transport.Message) Fragment {
	if m == nil {
		return Fragment{Kind: FragmentUnsupported}
	}
	f := Fragment{
		MediaGroupID:    m.AlbumID,
		Caption:         m.Caption,
		CaptionEntities: m.CaptionEntities,
	}
	if a := m.Attachment; a != nil {
		f.FileRef = a.FileRef
		f.FileName = a.FileName
		switch a.Kind {
		case transport.AttachPhoto:
			f.Kind = FragmentPhoto
		case transport.AttachVideo:
			f.Kind = FragmentVideo
		case transport.AttachAnimation:
			f.Kind = FragmentAnimation
		case transport.AttachDocument:
			f.Kind = FragmentDocument
		default:
			f.Kind = FragmentUnsupported
			f.Detail = a.Detail
		}
		return f
	}
	if m.Text != "" {
		f.Kind = FragmentText
		f.Text = m.Text
		f.Entities = m.Entities
		return f
	}
	f.Kind = FragmentUnsupported
	return f
}

func (k FragmentKind) mediaKind() (MediaKind, bool) {
	switch k {
	case FragmentPhoto:
		return MediaPhoto, true
	case FragmentVideo:
		return MediaVideo, true
	case FragmentAnimation:
		return MediaAnimation, true
	}
	return "", false
}

// Change describes a side effect of Apply worth telling the admin about.
type Change int

const (
	ChangeNone Change = iota
	ChangeDocumentAttached
	ChangeDocumentReplaced
)

// Apply merges f into p and returns the new payload. p is not modified.
func (p Payload) Apply(f Fragment) (Payload, Change, error) {
	if f.MediaGroupID != "" {
		return p, ChangeNone, ErrAlbumNotSupported
	}
	out := p
	switch f.Kind {
	case FragmentText:
		if strings.TrimSpace(f.Text) == "" {
			return p, ChangeNone, fmt.Errorf("%w: empty text", ErrUnsupportedContent)
		}
		out.Text = &Text{Body: f.Text, Entities: cloneEntities(f.Entities)}
		out.Media = nil
		return out, ChangeNone, nil

	case FragmentPhoto, FragmentVideo, FragmentAnimation:
		kind, _ := f.Kind.mediaKind()
		if f.FileRef == "" {
			return p, ChangeNone, fmt.Errorf("%w: %s without file", ErrUnsupportedContent, f.Kind)
		}
		out.Media = &Media{
			Kind:            kind,
			FileRef:         f.FileRef,
			Caption:         f.Caption,
			CaptionEntities: cloneEntities(f.CaptionEntities),
		}
		return out, ChangeNone, nil

	case FragmentDocument:
		if f.FileRef == "" {
			return p, ChangeNone, fmt.Errorf("%w: document without file", ErrUnsupportedContent)
		}
		change := ChangeDocumentAttached
		if p.Document != nil {
			change = ChangeDocumentReplaced
		}
		out.Document = &Document{
			FileRef:         f.FileRef,
			FileName:        f.FileName,
			Caption:         f.Caption,
			CaptionEntities: cloneEntities(f.CaptionEntities),
		}
		return out, change, nil
	}

	if f.Detail != "" {
		return p, ChangeNone, fmt.Errorf("%w: %s", ErrUnsupportedContent, f.Detail)
	}
	return p, ChangeNone, ErrUnsupportedContent
}

func cloneEntities(in []Entity) []Entity {
	if len(in) == 0 {
		return nil
	}
	return append([]Entity(nil), in...)
}
