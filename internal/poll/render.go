package poll

import (
	"fmt"
	"strconv"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

const barWidth = 10

// PollCard renders the published poll with one vote button per option.
func PollCard(p Poll) (tgui.Message, error) {
	buttons := make([]kit.Button, 0, len(p.Options))
	for i, o := range p.Options {
		data, err := tgui.Data(VoteAction, p.ID, strconv.Itoa(i))
		if err != nil {
			return tgui.Message{}, fmt.Errorf("poll: vote button: %w", err)
		}
		text := o.Symbol
		if p.Kind == Quick {
			text = o.Symbol + " " + o.Label
		}
		buttons = append(buttons, tgui.Btn(text, data))
	}
	return body(p).
		Blank().
		HTML(tgui.I(fmt.Sprintf("Tap a button to vote. Closes in %s.", reminder.FormatRemaining(p.Duration)))).
		Inline(tgui.NewInline().Grid(5, buttons...)).
		Build(), nil
}

// ClosedCard replaces the poll card once voting ends. It has no buttons.
func ClosedCard(p Poll) tgui.Message {
	return body(p).Blank().Line("🔒 Voting has ended. Results are below.").Build()
}

func body(p Poll) *tgui.Builder {
	title := "Poll"
	emoji := "📊"
	if p.Kind == Quick {
		title = "Quick Poll"
		emoji = "⚡"
	}
	b := tgui.New().
		Title(emoji, title).
		HTML(tgui.B(p.Question)).
		Blank()
	for _, o := range p.Options {
		b.Line(o.Symbol + " " + o.Label)
	}
	return b
}

// ResultsCard renders ranked results with progress bars.
func ResultsCard(r Results) tgui.Message {
	b := tgui.New().
		Title("📊", "Poll Results").
		HTML(tgui.B(r.Poll.Question)).
		Blank()
	if r.Total == 0 {
		for _, res := range r.Ranked {
			b.Line(res.Symbol + " " + res.Label + ": 0 votes")
		}
		return b.Blank().Line("No votes were cast.").Build()
	}
	for _, res := range r.Ranked {
		prefix := res.Medal
		if prefix == "" {
			prefix = fmt.Sprintf("%d.", res.Rank)
		}
		b.Line(fmt.Sprintf("%s %s %s: %s (%s)", prefix, res.Symbol, res.Label, plural(res.Votes, "vote"), formatPercent(res.Percent)))
		b.HTML(tgui.Code(tgui.Bar(res.Percent, barWidth)))
	}
	return b.Blank().Field("🗳", "Total", tgui.Esc(plural(r.Total, "vote"))).Build()
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
