package delivery

import (
	"errors"
	"time"

	kit "remindbot/internal/transport"
)

// Config controls the dispatcher.
type Config struct {
	// RatePerSec bounds outbound sends across the whole process.
	RatePerSec int
	// SendTimeout bounds a single resolve or send call.
	SendTimeout time.Duration
	HistorySize int
}

// Status is the classified result of one delivery attempt.
type Status string

const (
	Delivered             Status = "delivered"
	ChannelUnavailable    Status = "channel_unavailable"
	RecipientUnresolvable Status = "recipient_unresolvable"
	TransportError        Status = "transport_error"
)

var (
	ErrChannelUnavailable    = errors.New("delivery: channel unavailable")
	ErrRecipientUnresolvable = errors.New("delivery: recipient unresolvable")
	ErrTransport             = errors.New("delivery: transport error")
)

// Envelope is one payload to publish.
//
// Compose, when set, renders the payload after the recipient is resolved so
// the text can address the recipient by name. Otherwise Text and Options
// are sent unchanged.
type Envelope struct {
	Kind        string // "reminder", "poll", "poll.results", ...
	Channel     kit.ChatTarget
	RecipientID int64 // 0 when the payload has no single addressee
	Text        string
	Options     *kit.SendOptions
	Compose     func(recipient kit.User) (string, *kit.SendOptions)
}

// Outcome reports what happened to an Envelope. Err is nil only when
// Status is Delivered.
type Outcome struct {
	Status    Status
	Err       error
	Ref       kit.MessageRef
	Recipient kit.User
}

func (o Outcome) OK() bool { return o.Status == Delivered }

type HistoryItem struct {
	At     time.Time
	Kind   string
	ChatID int64
	Status Status
	Err    string
}

// DeliveryEvent is emitted on the event bus for each attempt.
// Keep it small; Data may be logged/serialized by subscribers.
type DeliveryEvent struct {
	Kind     string    `json:"kind"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Status   Status    `json:"status"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
