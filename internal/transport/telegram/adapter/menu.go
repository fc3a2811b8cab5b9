package adapter

import (
	"context"
	"hash/fnv"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Bot API limits for setMyCommands.
const (
	maxMenuCommands    = 100
	maxMenuDescription = 256
)

// UpdateMenuCommands publishes the command menu. The API is only called when
// the list changed since the last successful publish.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	menu := menuFrom(cmds)

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	sum := menuHash(menu)
	if sum == a.menuHash {
		return nil
	}
	if err := a.bot.SetCommands(menu); err != nil {
		return wrapErr("setMyCommands", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(menu)))
	return nil
}

func menuFrom(cmds []kit.BotCommand) []tele.Command {
	menu := make([]tele.Command, 0, min(len(cmds), maxMenuCommands))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if r := []rune(d); len(r) > maxMenuDescription {
			d = string(r[:maxMenuDescription])
		}
		menu = append(menu, tele.Command{Text: c.Command, Description: d})
		if len(menu) == maxMenuCommands {
			break
		}
	}
	return menu
}

func menuHash(menu []tele.Command) uint64 {
	h := fnv.New64a()
	for _, c := range menu {
		h.Write([]byte(c.Text))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
