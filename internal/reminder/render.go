package reminder

import (
	"fmt"

	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

// ListLimit caps the number of rows a listing shows.
const ListLimit = 10

// DeliveredCard renders the message posted when r fires. target is the
// resolved recipient; when it carries no id the stored target is used.
func DeliveredCard(r Reminder, target kit.User) tgui.Message {
	if target.ID == 0 {
		target = r.Target
	}
	b := tgui.New().
		Title("⏰", "Reminder").
		Line(r.Message).
		Blank().
		Field("👤", "For", mention(target))
	if r.IsGroup {
		b.Field("👨‍💼", "Set by", mention(r.Creator))
	}
	return b.Build()
}

// ConfirmationCard renders the reply sent after a reminder is scheduled.
func ConfirmationCard(r Reminder) tgui.Message {
	if !r.IsGroup {
		return tgui.New().
			Title("✅", "Reminder Set").
			Line(r.Message).
			Blank().
			Field("⏱️", "Time", tgui.Esc(FormatRemaining(r.Duration))).
			Field("🆔", "ID", tgui.Code(r.ID)).
			Build()
	}
	return tgui.New().
		Title("✅", "Group Reminder Set").
		Line(r.Message).
		Blank().
		Field("👤", "For", mention(r.Target)).
		Field("⏱️", "Time", tgui.Esc(FormatRemaining(r.Duration))).
		Field("📍", "Channel", tgui.Esc("this chat")).
		Field("👨‍💼", "Set by", mention(r.Creator)).
		Field("🆔", "ID", tgui.Code(r.ID)).
		Build()
}

// ListCard renders up to ListLimit rows of a listing.
func ListCard(items []Active, role Role) tgui.Message {
	title := "Your Reminders"
	empty := "You have no active reminders."
	if role == RoleCreator {
		title = "Reminders You Set for Others"
		empty = "You haven't set any reminders for others."
	}

	b := tgui.New().Title("📋", title)
	if len(items) == 0 {
		return b.Line(empty).Build()
	}
	shown := items
	if len(shown) > ListLimit {
		shown = shown[:ListLimit]
	}
	for i, it := range shown {
		b.Blank()
		b.HTML(tgui.JoinH(" ",
			tgui.B(fmt.Sprintf("%d.", i+1)),
			tgui.Esc(tgui.TruncRunes(it.Message, 80)),
		))
		switch {
		case role == RoleCreator:
			b.Field("👤", "For", mention(it.Target))
		case it.IsGroup:
			b.Field("👨‍💼", "Set by", mention(it.Creator))
		}
		b.Field("⏱️", "In", tgui.Esc(FormatRemaining(it.Remaining)))
		b.Field("🆔", "ID", tgui.Code(it.ID))
	}
	if extra := len(items) - len(shown); extra > 0 {
		b.Blank().Line(fmt.Sprintf("…and %d more.", extra))
	}
	return b.Build()
}

func mention(u kit.User) tgui.H {
	name := u.Name
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	return tgui.Mention(name, u.ID)
}
