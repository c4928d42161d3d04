package adapter

import (
	"encoding/json"

	tele "gopkg.in/telebot.v4"

	kit "postbot/internal/transport"
)

// mapMessage converts an inbound telebot message. Animation is checked
// before document: GIF messages carry both fields.
func mapMessage(m *tele.Message) *kit.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	out := &kit.Message{
		ID:              m.ID,
		ChatID:          m.Chat.ID,
		ThreadID:        m.ThreadID,
		IsGroup:         m.Chat.Type != tele.ChatPrivate,
		Text:            m.Text,
		Entities:        fromTeleEntities(m.Entities),
		Caption:         m.Caption,
		CaptionEntities: fromTeleEntities(m.CaptionEntities),
		AlbumID:         m.AlbumID,
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
	}

	switch {
	case m.Photo != nil:
		out.Attachment = &kit.Attachment{Kind: kit.AttachPhoto, FileRef: m.Photo.FileID}
	case m.Video != nil:
		out.Attachment = &kit.Attachment{Kind: kit.AttachVideo, FileRef: m.Video.FileID, FileName: m.Video.FileName}
	case m.Animation != nil:
		out.Attachment = &kit.Attachment{Kind: kit.AttachAnimation, FileRef: m.Animation.FileID, FileName: m.Animation.FileName}
	case m.Document != nil:
		out.Attachment = &kit.Attachment{Kind: kit.AttachDocument, FileRef: m.Document.FileID, FileName: m.Document.FileName}
	default:
		if detail := unsupportedKind(m); detail != "" {
			out.Attachment = &kit.Attachment{Kind: kit.AttachOther, Detail: detail}
		}
	}
	return out
}

func unsupportedKind(m *tele.Message) string {
	switch {
	case m.Sticker != nil:
		return "sticker"
	case m.Voice != nil:
		return "voice"
	case m.Audio != nil:
		return "audio"
	case m.VideoNote != nil:
		return "video_note"
	case m.Location != nil:
		return "location"
	case m.Venue != nil:
		return "venue"
	case m.Contact != nil:
		return "contact"
	case m.Poll != nil:
		return "poll"
	case m.Dice != nil:
		return "dice"
	}
	return ""
}

// wireEntity mirrors the Bot API JSON shape of a message entity so the
// conversion does not depend on telebot's Go field names.
type wireEntity struct {
	Type          string    `json:"type"`
	Offset        int       `json:"offset"`
	Length        int       `json:"length"`
	URL           string    `json:"url,omitempty"`
	User          *wireUser `json:"user,omitempty"`
	Language      string    `json:"language,omitempty"`
	CustomEmojiID string    `json:"custom_emoji_id,omitempty"`
}

type wireUser struct {
	ID int64 `json:"id"`
}

func fromTeleEntities(in tele.Entities) []kit.Entity {
	if len(in) == 0 {
		return nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	var wire []wireEntity
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil
	}
	out := make([]kit.Entity, 0, len(wire))
	for _, w := range wire {
		e := kit.Entity{Type: w.Type, Offset: w.Offset, Length: w.Length, URL: w.URL, Language: w.Language, CustomEmojiID: w.CustomEmojiID}
		if w.User != nil {
			e.UserID = w.User.ID
		}
		out = append(out, e)
	}
	return out
}

func toTeleEntities(in []kit.Entity) tele.Entities {
	if len(in) == 0 {
		return nil
	}
	wire := make([]wireEntity, 0, len(in))
	for _, e := range in {
		w := wireEntity{Type: e.Type, Offset: e.Offset, Length: e.Length, URL: e.URL, Language: e.Language, CustomEmojiID: e.CustomEmojiID}
		if e.UserID != 0 {
			w.User = &wireUser{ID: e.UserID}
		}
		wire = append(wire, w)
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return nil
	}
	var out tele.Entities
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
