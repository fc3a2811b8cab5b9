// Package fake is an in-memory transport.Channel for tests.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	kit "remindbot/internal/transport"
)

type Sent struct {
	To   kit.ChatTarget
	Text string
	Opt  *kit.SendOptions
	Ref  kit.MessageRef
}

type Edit struct {
	Ref  kit.MessageRef
	Text string
	Opt  *kit.SendOptions
}

// Channel records sends and resolves chats and users from in-memory tables.
// Chats are reachable unless listed in ChatErr. Users resolve from Members;
// when Members is nil every user id resolves.
type Channel struct {
	mu sync.Mutex

	ChatErr map[int64]error
	Members map[int64]kit.User
	SendErr error
	Panic   bool

	sent    []Sent
	edits   []Edit
	answers []string
	nextID  int
	notify  chan struct{}
}

func New() *Channel {
	return &Channel{ChatErr: map[int64]error{}, notify: make(chan struct{}, 1024)}
}

// AddMember registers u as reachable. It switches the channel into
// explicit-membership mode.
func (c *Channel) AddMember(u kit.User) {
	c.mu.Lock()
	if c.Members == nil {
		c.Members = map[int64]kit.User{}
	}
	c.Members[u.ID] = u
	c.mu.Unlock()
}

func (c *Channel) SetChatErr(chatID int64, err error) {
	c.mu.Lock()
	c.ChatErr[chatID] = err
	c.mu.Unlock()
}

func (c *Channel) SetSendErr(err error) {
	c.mu.Lock()
	c.SendErr = err
	c.mu.Unlock()
}

func (c *Channel) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (c *Channel) Stop(ctx context.Context) error                         { return nil }

func (c *Channel) ResolveChat(ctx context.Context, to kit.ChatTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Panic {
		panic("fake: resolve chat")
	}
	return c.ChatErr[to.ChatID]
}

func (c *Channel) ResolveUser(ctx context.Context, chatID int64, userID int64) (kit.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Members == nil {
		return kit.User{ID: userID, Name: fmt.Sprintf("user%d", userID)}, nil
	}
	u, ok := c.Members[userID]
	if !ok {
		return kit.User{}, fmt.Errorf("member %d: %w", userID, kit.ErrNotFound)
	}
	return u, nil
}

func (c *Channel) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	if c.SendErr != nil {
		err := c.SendErr
		c.mu.Unlock()
		return kit.MessageRef{}, err
	}
	c.nextID++
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: c.nextID}
	c.sent = append(c.sent, Sent{To: to, Text: text, Opt: opt, Ref: ref})
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return ref, nil
}

func (c *Channel) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.edits = append(c.edits, Edit{Ref: ref, Text: text, Opt: opt})
	return nil
}

func (c *Channel) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	c.mu.Lock()
	c.answers = append(c.answers, text)
	c.mu.Unlock()
	return nil
}

func (c *Channel) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

func (c *Channel) Edits() []Edit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Edit(nil), c.edits...)
}

func (c *Channel) Answers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.answers...)
}

// WaitSent blocks until at least n messages were sent or timeout elapses.
func (c *Channel) WaitSent(n int, timeout time.Duration) []Sent {
	deadline := time.After(timeout)
	for {
		if s := c.Sent(); len(s) >= n {
			return s
		}
		select {
		case <-c.notify:
		case <-deadline:
			return c.Sent()
		}
	}
}
