package poll

import (
	"context"
	"time"

	"remindbot/internal/delivery"
	kit "remindbot/internal/transport"
	"remindbot/internal/votes"
)

// Kind distinguishes polls by how their options were chosen.
type Kind string

const (
	General Kind = "general"
	Quick   Kind = "quick"
)

const (
	MinOptions = 2
	MaxOptions = 10

	MinMinutes = 10
	MaxMinutes = 1440
)

// SystemVotesPerSymbol is the marker vote the vote board places on every
// symbol when a poll opens. It is excluded from results.
const SystemVotesPerSymbol = votes.Seed

// VoteAction prefixes vote callback data: "vote|<poll id>|<option index>".
const VoteAction = "vote"

// NumberSymbols label general poll options in input order.
var NumberSymbols = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}

const (
	YesSymbol = "✅"
	NoSymbol  = "❌"
)

var medals = []string{"🥇", "🥈", "🥉"}

type Option struct {
	Label  string
	Symbol string
}

// Poll is an open or closed poll. Message references the published card.
type Poll struct {
	ID        string
	Question  string
	Options   []Option
	Kind      Kind
	Creator   kit.User
	Channel   kit.ChatTarget
	Duration  time.Duration
	Message   kit.MessageRef
	CreatedAt time.Time
}

// ClosesAt is when the poll stops accepting votes.
func (p Poll) ClosesAt() time.Time { return p.CreatedAt.Add(p.Duration) }

func (p Poll) Symbols() []string {
	out := make([]string, len(p.Options))
	for i, o := range p.Options {
		out[i] = o.Symbol
	}
	return out
}

type Result struct {
	Option
	Votes   int
	Percent float64
	Rank    int
	Medal   string
}

type Results struct {
	Poll   Poll
	Total  int
	Ranked []Result
}

// Config bounds poll durations in minutes.
type Config struct {
	MinMinutes int
	MaxMinutes int
}

// Publisher sends and edits poll cards.
type Publisher interface {
	Deliver(ctx context.Context, env delivery.Envelope) delivery.Outcome
	Edit(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
}

// VoteResult reports the effect of one vote signal.
type VoteResult struct {
	Option Option
	Added  bool
}

// Event is published on the event bus for poll lifecycle transitions.
type Event struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	ChatID  int64  `json:"chat_id"`
	Options int    `json:"options"`
	Total   int    `json:"total,omitempty"`
	Winner  string `json:"winner,omitempty"`
}
