package commands

import (
	"strconv"

	"remindbot/internal/poll"
	"remindbot/pkg/tgui"
)

func helpCard(cmds []Command) tgui.Message {
	b := tgui.New().Title("📚", "Commands")
	for _, c := range cmds {
		b.HTML(tgui.JoinH(" — ", tgui.Code(c.Usage), tgui.Esc(c.Description)))
	}
	return b.Blank().
		Line("Time examples: 30s, 5m, 2h, 1d, \"10 minutes\" or a plain number of minutes.").
		Line("Polls run between " + strconv.Itoa(poll.MinMinutes) + " and " + strconv.Itoa(poll.MaxMinutes) + " minutes.").
		Build()
}
