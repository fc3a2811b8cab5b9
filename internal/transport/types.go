package transport

import (
	"context"
	"errors"
)

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

// User is the platform view of a chat member.
type User struct {
	ID       int64
	Name     string
	Username string
	IsBot    bool
}

// DisplayName returns the best human-readable label for u.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return "@" + u.Username
	default:
		return "user"
	}
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
	From     User
	Text     string
	IsGroup  bool

	// ReplyTo is the author of the message this one replies to (nil if none).
	ReplyTo *User
}

type Callback struct {
	ID        string
	From      User
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

// Target returns the chat the referenced message lives in.
func (r MessageRef) Target() ChatTarget {
	return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID}
}

// Button is an inline control attached to a sent message. Pressing it
// produces a Callback update carrying Data.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Keyboard rows are attached to the first chunk only.
	Keyboard [][]Button
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Directory resolves chats and chat members before delivery.
type Directory interface {
	// ResolveChat fails with ErrNotFound or ErrForbidden when the bot cannot
	// post into the chat.
	ResolveChat(ctx context.Context, to ChatTarget) error
	// ResolveUser looks up a member of chatID. It fails with ErrNotFound when
	// the user is not (or no longer) reachable there.
	ResolveUser(ctx context.Context, chatID int64, userID int64) (User, error)
}

// Channel is the full delivery surface used by the engine.
type Channel interface {
	Adapter
	Directory
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// Adapter errors are wrapped around one of these so callers can classify
// failures without importing a platform SDK.
var (
	ErrNotFound  = errors.New("transport: not found")
	ErrForbidden = errors.New("transport: forbidden")
	ErrTransport = errors.New("transport: failure")
)
