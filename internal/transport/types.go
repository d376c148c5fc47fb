// Package transport abstracts the chat platform delivering triggers and
// receiving replies. The pipeline never talks to telebot directly.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateReaction UpdateKind = "reaction"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Reaction *Reaction
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	ReplyToID    int
	ReplyToText  string
	IsGroup      bool
}

// Reaction is an emoji added to an existing message. The reacted
// message's text rides along when the platform provides it.
type Reaction struct {
	MessageID   int
	ChatID      int64
	FromID      int64
	Emoji       string
	MessageText string
}

type ChatTarget struct {
	ChatID  int64
	ReplyTo int // reply to this message id; 0 = plain send
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound half of an Adapter. Components that only
// deliver text (the notifier, the router's replies) depend on this.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
