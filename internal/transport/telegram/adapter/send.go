package adapter

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// textLimit stays under Telegram's 4096 rune cap to leave room for entities.
const textLimit = 4000

// splitText cuts s into chunks of at most limit runes. Cuts prefer a newline
// in the last two thirds of the window; in HTML mode a cut never lands inside
// a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, string(tele.ModeHTML))

	var out []string
	for len(rs) > 0 {
		if len(rs) <= limit {
			out = append(out, string(rs))
			break
		}
		cut := newlineCut(rs[:limit], limit/3)
		if html {
			cut = tagSafeCut(rs[:cut], cut)
		}
		out = append(out, strings.TrimRight(string(rs[:cut]), "\n"))
		rs = rs[cut:]
		for len(rs) > 0 && rs[0] == '\n' {
			rs = rs[1:]
		}
	}
	return out
}

// newlineCut returns the index just past the last newline in w that leaves
// at least floor runes before it, or len(w) when there is none.
func newlineCut(w []rune, floor int) int {
	for i := len(w) - 1; i >= floor; i-- {
		if w[i] == '\n' {
			return i + 1
		}
	}
	return len(w)
}

// tagSafeCut moves the cut back to the start of a tag left open in w.
func tagSafeCut(w []rune, cut int) int {
	for i := len(w) - 1; i > 1; i-- {
		switch w[i] {
		case '>':
			return cut
		case '<':
			return i
		}
	}
	return cut
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions, withKeyboard bool) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
	if withKeyboard {
		so.ReplyMarkup = replyMarkup(opt.Keyboard)
	}
	return so
}

// sendChunks posts each chunk as a new message. The keyboard goes on the
// first one only.
func (a *Adapter) sendChunks(ctx context.Context, to kit.ChatTarget, chunks []string, opt *kit.SendOptions, keyboard bool) (kit.MessageRef, error) {
	var first kit.MessageRef
	chat := &tele.Chat{ID: to.ChatID}
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOptions(to, opt, keyboard && i == 0))
		if err != nil {
			return first, wrapErr("sendMessage", err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	return a.sendChunks(ctx, to, splitText(text, textLimit, opt.ParseMode), opt, true)
}

// EditText replaces the message text. Overflow beyond one message is sent
// as follow-ups.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	to := kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}
	chunks := splitText(text, textLimit, opt.ParseMode)

	// Without markup Telegram drops the inline keyboard.
	so := sendOptions(to, opt, true)
	so.ThreadID = 0
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if _, err := a.bot.Edit(m, chunks[0], so); err != nil {
		return wrapErr("editMessageText", err)
	}
	_, err := a.sendChunks(ctx, to, chunks[1:], opt, false)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapErr("answerCallbackQuery", a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text}))
}

// replyMarkup converts keyboard rows into telebot inline markup.
func replyMarkup(rows [][]kit.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	out := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.Btn{Text: b.Text, Data: b.Data})
		}
		out = append(out, rm.Row(btns...))
	}
	rm.Inline(out...)
	return rm
}
