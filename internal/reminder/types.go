package reminder

import (
	"context"
	"time"

	"remindbot/internal/delivery"
	kit "remindbot/internal/transport"
)

// Reminder is a single-fire notification for one target user.
//
// A group reminder has a creator different from its target. For self
// reminders Creator and Target are the same user.
type Reminder struct {
	ID        string
	Target    kit.User
	Creator   kit.User
	Channel   kit.ChatTarget
	Message   string
	CreatedAt time.Time
	Duration  time.Duration
	IsGroup   bool
}

// DueAt is the instant the reminder fires.
func (r Reminder) DueAt() time.Time { return r.CreatedAt.Add(r.Duration) }

// TimeLeft returns the time left at now, never negative.
func (r Reminder) TimeLeft(now time.Time) time.Duration {
	left := r.Duration - now.Sub(r.CreatedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Role selects a listing view.
type Role int

const (
	// RoleTarget lists reminders that will notify the user.
	RoleTarget Role = iota
	// RoleCreator lists group reminders the user set for others.
	RoleCreator
)

func (r Role) String() string {
	if r == RoleCreator {
		return "creator"
	}
	return "target"
}

// Active is a listing row.
type Active struct {
	Reminder
	Remaining time.Duration
}

// Config bounds accepted durations. Zero values and values outside
// [MinDuration, MaxDuration] fall back to those limits.
type Config struct {
	MinDuration time.Duration
	MaxDuration time.Duration
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Pending int
	Group   int
}

// Deliverer hands fired reminders to the delivery layer.
type Deliverer interface {
	Deliver(ctx context.Context, env delivery.Envelope) delivery.Outcome
}

// Event is published on the event bus for each lifecycle transition.
// Keep it small; Data may be logged/serialized by subscribers.
type Event struct {
	ID        string          `json:"id"`
	TargetID  int64           `json:"target_id"`
	CreatorID int64           `json:"creator_id"`
	ChatID    int64           `json:"chat_id"`
	Group     bool            `json:"group,omitempty"`
	Status    delivery.Status `json:"status,omitempty"`
}
