package adapter

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// ResolveChat checks that the bot can still see the chat. Successful
// lookups are cached for Config.ResolveTTL.
func (a *Adapter) ResolveChat(ctx context.Context, to kit.ChatTarget) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := a.chats.Get(to.ChatID); ok {
		return nil
	}
	if _, err := a.bot.ChatByID(to.ChatID); err != nil {
		a.log.Debug("chat lookup failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		return wrapErr("getChat", err)
	}
	a.chats.Add(to.ChatID, struct{}{})
	return nil
}

// ResolveUser returns the chat member userID. Members that left or were
// removed resolve as kit.ErrNotFound.
func (a *Adapter) ResolveUser(ctx context.Context, chatID int64, userID int64) (kit.User, error) {
	if err := ctx.Err(); err != nil {
		return kit.User{}, err
	}
	// In a private chat the chat is the user.
	if chatID == userID {
		c, err := a.bot.ChatByID(chatID)
		if err != nil {
			return kit.User{}, wrapErr("getChat", err)
		}
		return kit.User{ID: userID, Name: joinName(c.FirstName, c.LastName), Username: c.Username}, nil
	}

	m, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return kit.User{}, wrapErr("getChatMember", err)
	}
	if m.Role == tele.Left || m.Role == tele.Kicked {
		return kit.User{}, fmt.Errorf("member %d of chat %d is %s: %w", userID, chatID, m.Role, kit.ErrNotFound)
	}
	if m.User == nil {
		return kit.User{ID: userID}, nil
	}
	return mapUser(m.User), nil
}

var (
	_ kit.Channel            = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)
