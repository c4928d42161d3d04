package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Entity is a Telegram message entity (bold, link, mention, ...), kept verbatim.
type Entity struct {
	Type          string `json:"type"`
	Offset        int    `json:"offset"`
	Length        int    `json:"length"`
	URL           string `json:"url,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	Language      string `json:"language,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

type AttachmentKind string

const (
	AttachPhoto     AttachmentKind = "photo"
	AttachVideo     AttachmentKind = "video"
	AttachAnimation AttachmentKind = "animation"
	AttachDocument  AttachmentKind = "document"
	// AttachOther covers anything the bot cannot compose with (stickers, voice, polls, ...).
	AttachOther AttachmentKind = "other"
)

// Attachment is the file part of an inbound message. FileRef is the opaque
// platform file id; it is reusable for sends without re-upload.
type Attachment struct {
	Kind     AttachmentKind
	FileRef  string
	FileName string
	// Detail names the unsupported kind for AttachOther ("sticker", "voice", ...).
	Detail string
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	IsGroup      bool

	Text     string
	Entities []Entity

	Caption         string
	CaptionEntities []Entity

	Attachment *Attachment
	// AlbumID is the media group id shared by album parts ("" otherwise).
	AlbumID string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Entities apply to the text, or to the caption for media sends.
	Entities           []Entity
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// File references an already-uploaded platform file.
type File struct {
	Ref      string
	Name     string
	Caption  string
	Entities []Entity
}

// Sender delivers the content kinds a draft can render to.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, f File, opt *SendOptions) (MessageRef, error)
	SendVideo(ctx context.Context, to ChatTarget, f File, opt *SendOptions) (MessageRef, error)
	SendAnimation(ctx context.Context, to ChatTarget, f File, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, f File, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand is one entry of the client-side command menu.
type BotCommand struct {
	Command     string
	Description string
}
