package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"remindbot/internal/clock"
	"remindbot/internal/delivery"
	"remindbot/internal/eventbus"
	"remindbot/internal/poll"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/fake"
	"remindbot/internal/votes"
	logx "remindbot/pkg/logx"

	"github.com/stretchr/testify/require"
)

var (
	alice = kit.User{ID: 1, Name: "Alice"}
	bob   = kit.User{ID: 2, Name: "Bob"}
	group = int64(-100)
)

type harness struct {
	r     *Router
	ch    *fake.Channel
	clk   *clock.Manual
	rem   *reminder.Manager
	polls *poll.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ch := fake.New()
	bus := eventbus.New()
	d := delivery.New(delivery.Config{RatePerSec: 1000, SendTimeout: time.Second}, ch, logx.Nop(), bus, nil)
	rem := reminder.New(reminder.Config{}, clk, d, logx.Nop(), bus, nil)
	board, err := votes.New(16, clk, logx.Nop())
	require.NoError(t, err)
	polls := poll.New(poll.Config{}, clk, d, board, logx.Nop(), bus, nil)
	t.Cleanup(func() {
		rem.StopAll()
		polls.StopAll()
	})
	r := New(Config{Workers: 1, Timeout: time.Second}, ch, rem, polls, logx.Nop(), nil)
	return &harness{r: r, ch: ch, clk: clk, rem: rem, polls: polls}
}

func (h *harness) send(t *testing.T, from kit.User, text string, isGroup bool, replyTo *kit.User) {
	t.Helper()
	job := h.r.route(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 10, ChatID: group, From: from, Text: text, IsGroup: isGroup, ReplyTo: replyTo,
	}})
	require.NotNil(t, job, "command %q was not routed", text)
	job()
}

func (h *harness) press(t *testing.T, from kit.User, data string) string {
	t.Helper()
	job := h.r.route(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", From: from, ChatID: group, Data: data,
	}})
	require.NotNil(t, job)
	job()
	answers := h.ch.Answers()
	require.NotEmpty(t, answers)
	return answers[len(answers)-1]
}

func (h *harness) lastText(t *testing.T) string {
	t.Helper()
	sent := h.ch.Sent()
	require.NotEmpty(t, sent)
	return sent[len(sent)-1].Text
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, name, rest string
		ok             bool
	}{
		{"/remind 5m tea", "remind", "5m tea", true},
		{"/Remind@remind_bot  5m  don't forget", "remind", "5m  don't forget", true},
		{"/help", "help", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			name, rest, ok := splitCommand(tt.in)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.name, name)
			require.Equal(t, tt.rest, rest)
		})
	}
}

func TestSplitTimeSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, spec, rest string
	}{
		{"5m tea", "5m", "tea"},
		{"10 minutes call mom", "10 minutes", "call mom"},
		{"45 apples to buy", "45", "apples to buy"},
		{"2 Hours nap", "2 Hours", "nap"},
		{"", "", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			spec, rest := splitTimeSpec(tt.in)
			require.Equal(t, tt.spec, spec)
			require.Equal(t, tt.rest, rest)
		})
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	require.Equal(t, "group_reminders", sanitizeTelegramCommand("Group-Reminders"))
	require.Equal(t, "cmd_1st", sanitizeTelegramCommand("1st"))
	require.Equal(t, "", sanitizeTelegramCommand("!!"))
	require.Len(t, sanitizeTelegramCommand(strings.Repeat("a", 40)), 32)
}

func TestMenuSkipsAliases(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	menu := menuCommands(h.r.Commands())
	names := make([]string, 0, len(menu))
	for _, c := range menu {
		names = append(names, c.Command)
	}
	require.Equal(t, []string{"remind", "reminduser", "reminders", "groupreminders", "cancel", "poll", "quickpoll", "help"}, names)
}

func TestRemindSchedulesAndConfirms(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(t, alice, "/remind 10 minutes call mom", false, nil)
	require.Contains(t, h.lastText(t), "Reminder Set")
	require.Contains(t, h.lastText(t), "call mom")

	active := h.rem.ListActive(alice.ID, reminder.RoleTarget)
	require.Len(t, active, 1)
	require.Equal(t, 10*time.Minute, active[0].Duration)

	h.clk.Advance(10 * time.Minute)
	require.Contains(t, h.lastText(t), "⏰")
}

func TestRemindRejectionsAreShown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bad time", "/remind soon tea", "Invalid time format"},
		{"too short", "/remind 5s tea", "❌"},
		{"no message", "/remind 5m", "reminder message"},
		{"usage", "/remind", "Usage"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.send(t, alice, tt.text, false, nil)
			require.Contains(t, h.lastText(t), tt.want)
			require.Empty(t, h.rem.ListActive(alice.ID, reminder.RoleTarget))
		})
	}
}

func TestRemindUser(t *testing.T) {
	t.Parallel()

	t.Run("by reply", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.send(t, alice, "/reminduser 1h standup", true, &bob)
		require.Contains(t, h.lastText(t), "Group Reminder Set")
		require.Len(t, h.rem.ListActive(bob.ID, reminder.RoleTarget), 1)
		require.Len(t, h.rem.ListActive(alice.ID, reminder.RoleCreator), 1)
	})

	t.Run("by id", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.ch.AddMember(bob)
		h.send(t, alice, "/reminduser 2 30m review", true, nil)
		got := h.rem.ListActive(bob.ID, reminder.RoleTarget)
		require.Len(t, got, 1)
		require.Equal(t, "Bob", got[0].Target.Name)
	})

	t.Run("unknown member", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.ch.AddMember(bob)
		h.send(t, alice, "/reminduser 99 30m review", true, nil)
		require.Contains(t, h.lastText(t), "find that user in this chat")
	})

	t.Run("private chat", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.send(t, alice, "/reminduser 2 30m review", false, nil)
		require.Contains(t, h.lastText(t), "group chats")
	})

	t.Run("self", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.send(t, alice, "/reminduser 1 30m review", true, nil)
		require.Contains(t, h.lastText(t), "/remind")
		require.Empty(t, h.rem.ListActive(alice.ID, reminder.RoleTarget))
	})
}

func TestListAndCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(t, alice, "/reminders", false, nil)
	require.Contains(t, h.lastText(t), "no active reminders")

	h.send(t, alice, "/remind 5m tea", false, nil)
	id := h.rem.ListActive(alice.ID, reminder.RoleTarget)[0].ID

	h.send(t, alice, "/reminders", false, nil)
	require.Contains(t, h.lastText(t), id)

	h.send(t, bob, "/cancel "+id, true, nil)
	require.Contains(t, h.lastText(t), "You can only cancel")

	h.send(t, alice, "/cancel "+strings.ToUpper(id), false, nil)
	require.Contains(t, h.lastText(t), "Reminder Cancelled")
	require.Empty(t, h.rem.ListActive(alice.ID, reminder.RoleTarget))

	h.send(t, alice, "/cancel "+id, false, nil)
	require.Contains(t, h.lastText(t), "No active reminder")
}

func TestPollVoteAndClose(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(t, alice, "/poll Lunch? | Pizza, Sushi | 15", true, nil)
	card := h.ch.Sent()[0]
	require.Contains(t, card.Text, "Lunch?")
	require.NotNil(t, card.Opt)
	require.Len(t, card.Opt.Keyboard[0], 2)
	data := card.Opt.Keyboard[0][1].Data

	require.Contains(t, h.press(t, alice, data), "You voted for")
	require.Contains(t, h.press(t, bob, data), "You voted for")
	require.Contains(t, h.press(t, bob, data), "Vote removed")

	h.clk.Advance(15 * time.Minute)
	require.Contains(t, h.lastText(t), "Sushi")
	require.Equal(t, "This poll is closed.", h.press(t, alice, data))
}

func TestPollUsesDefaultDuration(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.send(t, alice, "/quickpoll Ship it?", true, nil)
	require.Equal(t, 1, h.polls.Open())

	h.clk.Advance(59 * time.Minute)
	require.Equal(t, 1, h.polls.Open())
	h.clk.Advance(time.Minute)
	require.Equal(t, 0, h.polls.Open())
}

func TestPollRejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		want string
	}{
		{"/poll Lunch? | Pizza", "at least 2 options"},
		{"/poll Lunch? | Pizza, pizza", "more than once"},
		{"/poll Lunch? | Pizza, Sushi | 5", "between 10 and 1440"},
		{"/poll Lunch? | Pizza, Sushi | soon", "whole number"},
		{"/poll Lunch?", "Usage"},
		{"/quickpoll", "Usage"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.send(t, alice, tt.text, true, nil)
			require.Contains(t, h.lastText(t), tt.want)
			require.Equal(t, 0, h.polls.Open())
		})
	}
}

func TestMalformedVoteIsAnsweredQuietly(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.Equal(t, "", h.press(t, alice, "vote|nope"))
	require.Equal(t, "This poll is closed.", h.press(t, alice, "vote|gone|0"))
	require.Empty(t, h.ch.Sent())
}

func TestIgnoresForeignTraffic(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	require.Nil(t, h.r.route(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: group, From: alice, Text: "hi"}}))
	require.Nil(t, h.r.route(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: group, From: alice, Text: "/weather"}}))
	require.Nil(t, h.r.route(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: group, From: kit.User{ID: 5, IsBot: true}, Text: "/help"}}))
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.send(t, alice, "/start", false, nil)
	text := h.lastText(t)
	for _, c := range h.r.Commands() {
		require.Contains(t, text, c.Description)
	}
}

func TestRunDispatchesUntilClosed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	updates := make(chan kit.Update, 1)
	done := make(chan error, 1)
	go func() { done <- h.r.Run(context.Background(), updates) }()

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: group, From: alice, Text: "/help"}}
	require.Len(t, h.ch.WaitSent(1, 2*time.Second), 1)

	close(updates)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
