package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"remindbot/internal/apperr"
	"remindbot/internal/poll"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

func (r *Router) builtin() []Command {
	return []Command{
		{Name: "remind", Description: "Set a reminder for yourself", Usage: "/remind <time> <message>", Handle: r.handleRemind},
		{Name: "reminduser", Description: "Set a reminder for someone in this group", Usage: "/reminduser <user_id|reply> <time> <message>", Handle: r.handleRemindUser},
		{Name: "reminders", Description: "List your active reminders", Usage: "/reminders", Handle: r.handleListMine},
		{Name: "groupreminders", Description: "List reminders you set for others", Usage: "/groupreminders", Handle: r.handleListSet},
		{Name: "cancel", Description: "Cancel a reminder by id", Usage: "/cancel <id>", Handle: r.handleCancel},
		{Name: "poll", Description: "Start a timed poll", Usage: "/poll <question> | <opt1, opt2, ...> | [minutes]", Handle: r.handlePoll},
		{Name: "quickpoll", Description: "Start a yes/no poll", Usage: "/quickpoll <question> | [minutes]", Handle: r.handleQuickPoll},
		{Name: "help", Aliases: []string{"start"}, Description: "Show available commands", Usage: "/help", Handle: r.handleHelp},
	}
}

func (r *Router) reply(ctx context.Context, req *Request, msg tgui.Message) error {
	_, err := msg.Send(ctx, r.ad, req.Chat)
	return err
}

func (r *Router) usage(ctx context.Context, req *Request) error {
	r.mu.RLock()
	cmd := r.index[req.Command]
	r.mu.RUnlock()
	b := tgui.New().Title("ℹ️", "Usage")
	if cmd != nil {
		b.HTML(tgui.Code(cmd.Usage))
	}
	return r.reply(ctx, req, b.Build())
}

func (r *Router) handleRemind(ctx context.Context, req *Request) error {
	spec, msg := splitTimeSpec(req.Args)
	if spec == "" {
		return r.usage(ctx, req)
	}
	rem, err := r.reminders.CreateSelf(ctx, req.From, req.Chat, spec, msg)
	if err != nil {
		return err
	}
	return r.reply(ctx, req, reminder.ConfirmationCard(rem))
}

func (r *Router) handleRemindUser(ctx context.Context, req *Request) error {
	if !req.IsGroup {
		return apperr.Invalid(apperr.InvalidTarget, "Reminders for other users only work in group chats.")
	}
	if req.Args == "" {
		return r.usage(ctx, req)
	}

	rest := req.Args
	var target kit.User
	if req.ReplyTo != nil {
		target = *req.ReplyTo
	} else {
		var raw string
		raw, rest = cutWord(rest)
		t, err := r.resolveTarget(ctx, req.Chat.ChatID, raw)
		if err != nil {
			return err
		}
		target = t
	}

	spec, msg := splitTimeSpec(rest)
	if spec == "" {
		return r.usage(ctx, req)
	}
	rem, err := r.reminders.Create(ctx, req.From, target, req.Chat, spec, msg)
	if err != nil {
		return err
	}
	return r.reply(ctx, req, reminder.ConfirmationCard(rem))
}

// resolveTarget accepts a numeric user id. When the adapter can look up
// chat members the user must belong to the chat.
func (r *Router) resolveTarget(ctx context.Context, chatID int64, raw string) (kit.User, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return kit.User{}, apperr.Invalid(apperr.InvalidTarget, "Reply to the user's message or give their numeric user id.")
	}
	dir, ok := r.ad.(kit.Directory)
	if !ok {
		return kit.User{ID: id}, nil
	}
	u, err := dir.ResolveUser(ctx, chatID, id)
	switch {
	case errors.Is(err, kit.ErrNotFound):
		return kit.User{}, apperr.Invalid(apperr.InvalidTarget, "I couldn't find that user in this chat.")
	case err != nil:
		return kit.User{}, fmt.Errorf("resolve user %d: %w", id, err)
	}
	return u, nil
}

func (r *Router) handleListMine(ctx context.Context, req *Request) error {
	items := r.reminders.ListActive(req.From.ID, reminder.RoleTarget)
	return r.reply(ctx, req, reminder.ListCard(items, reminder.RoleTarget))
}

func (r *Router) handleListSet(ctx context.Context, req *Request) error {
	items := r.reminders.ListActive(req.From.ID, reminder.RoleCreator)
	return r.reply(ctx, req, reminder.ListCard(items, reminder.RoleCreator))
}

func (r *Router) handleCancel(ctx context.Context, req *Request) error {
	id, _ := cutWord(req.Args)
	if id == "" {
		return r.usage(ctx, req)
	}
	if err := r.reminders.Cancel(ctx, req.From.ID, id); err != nil {
		return err
	}
	msg := tgui.New().
		Title("🗑️", "Reminder Cancelled").
		Field("🆔", "ID", tgui.Code(strings.ToLower(id))).
		Build()
	return r.reply(ctx, req, msg)
}

func (r *Router) pollMinutes(raw string) (int, error) {
	if raw == "" {
		return r.config().PollMinutes, nil
	}
	return poll.ParseMinutes(raw)
}

func (r *Router) handlePoll(ctx context.Context, req *Request) error {
	parts := splitPipes(req.Args, 3)
	if len(parts) < 2 {
		return r.usage(ctx, req)
	}
	raw := ""
	if len(parts) == 3 {
		raw = parts[2]
	}
	minutes, err := r.pollMinutes(raw)
	if err != nil {
		return err
	}
	p, err := r.polls.CreatePoll(ctx, req.From, req.Chat, parts[0], parts[1], minutes)
	if err != nil {
		return err
	}
	req.Logger.Info("poll started", logx.String("poll_id", p.ID), logx.Int("options", len(p.Options)))
	return nil
}

func (r *Router) handleQuickPoll(ctx context.Context, req *Request) error {
	parts := splitPipes(req.Args, 2)
	if parts[0] == "" {
		return r.usage(ctx, req)
	}
	raw := ""
	if len(parts) == 2 {
		raw = parts[1]
	}
	minutes, err := r.pollMinutes(raw)
	if err != nil {
		return err
	}
	p, err := r.polls.CreateQuickPoll(ctx, req.From, req.Chat, parts[0], minutes)
	if err != nil {
		return err
	}
	req.Logger.Info("quick poll started", logx.String("poll_id", p.ID))
	return nil
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	return r.reply(ctx, req, helpCard(r.Commands()))
}

// handleVote answers a vote button press. Stale or malformed presses get a
// short answer and are otherwise ignored.
func (r *Router) handleVote(ctx context.Context, req *Request) error {
	cbID := req.Update.Callback.ID
	_, args, err := tgui.ParseData(req.Args, 2)
	if err != nil {
		return r.ad.AnswerCallback(ctx, cbID, "")
	}
	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return r.ad.AnswerCallback(ctx, cbID, "")
	}

	res, err := r.polls.Vote(args[0], idx, req.From.ID)
	switch {
	case errors.Is(err, poll.ErrClosed):
		return r.ad.AnswerCallback(ctx, cbID, "This poll is closed.")
	case errors.Is(err, poll.ErrUnknownOption):
		return r.ad.AnswerCallback(ctx, cbID, "Unknown option.")
	case err != nil:
		return err
	}

	label := res.Option.Symbol + " " + res.Option.Label
	text := "You voted for " + label + "."
	if !res.Added {
		text = "Vote removed from " + label + "."
	}
	return r.ad.AnswerCallback(ctx, cbID, text)
}
