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

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool

	// ReplyTo references the message this one replies to (nil if none).
	// Commands like /setad use it to capture the ad content.
	ReplyTo *MessageRef
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

// BotCommand is an entry in the platform's command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish the command
// list for client-side autocomplete (Telegram setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// ChatTarget is a delivery destination: a chat, optionally narrowed to a
// forum topic thread inside it. It is comparable and usable as a map key.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// MessageRef identifies a concrete message inside a chat.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Sender delivers new text messages.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Forwarder re-delivers an existing message to a target, preserving the
// platform's forwarding semantics (attribution to the original sender).
// This is the only send primitive the campaign engine uses.
type Forwarder interface {
	Forward(ctx context.Context, to ChatTarget, src MessageRef) error
}

// Editor edits a previously sent message in place.
type Editor interface {
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
}

// Resolver turns a human-given identifier (numeric chat ID, @handle,
// t.me link, thread link) into a ChatTarget without a full entity lookup.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (ChatTarget, error)
}

// Client is the full messaging capability consumed by the bot. The campaign
// engine and monitor depend only on the narrow slices above; Client exists
// for wiring and for the membership glue commands.
type Client interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	Sender
	Forwarder
	Editor
	Resolver
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	Join(ctx context.Context, identifier string) error
	Leave(ctx context.Context, t ChatTarget) error
}
