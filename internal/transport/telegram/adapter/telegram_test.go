package adapter

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	require.Equal(t, []string{"short"}, splitText("short", 10, ""))

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	chunks := splitText(long, 10, "")
	require.Equal(t, []string{strings.Repeat("a", 8), strings.Repeat("b", 8)}, chunks)

	html := "abcdef<b>bold</b>"
	chunks = splitText(html, 8, "HTML")
	require.Equal(t, "abcdef", chunks[0])
	require.True(t, strings.HasPrefix(chunks[1], "<b>"))
	require.Equal(t, html, strings.Join(chunks, ""))
}

func TestMenuFrom(t *testing.T) {
	t.Parallel()
	menu := menuFrom([]kit.BotCommand{
		{Command: "remind", Description: "Remind yourself"},
		{Command: ""},
		{Command: "poll"},
	})
	require.Equal(t, []tele.Command{
		{Text: "remind", Description: "Remind yourself"},
		{Text: "poll", Description: "poll"},
	}, menu)
	require.Equal(t, menuHash(menu), menuHash(menuFrom([]kit.BotCommand{{Command: "remind", Description: "Remind yourself"}, {Command: "poll"}})))
	require.NotEqual(t, menuHash(menu), menuHash(menu[:1]))

	long := make([]kit.BotCommand, 150)
	for i := range long {
		long[i] = kit.BotCommand{Command: "c", Description: strings.Repeat("é", 300)}
	}
	menu = menuFrom(long)
	require.Len(t, menu, maxMenuCommands)
	require.Len(t, []rune(menu[0].Description), maxMenuDescription)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"blocked", &tele.Error{Code: 403, Description: "Forbidden: bot was kicked from the group chat"}, kit.ErrForbidden},
		{"chat missing", &tele.Error{Code: 400, Description: "Bad Request: chat not found"}, kit.ErrNotFound},
		{"member missing", &tele.Error{Code: 400, Description: "Bad Request: PARTICIPANT_ID_INVALID"}, kit.ErrNotFound},
		{"no rights", &tele.Error{Code: 400, Description: "Bad Request: not enough rights to send text messages to the chat"}, kit.ErrForbidden},
		{"flood", &tele.Error{Code: 429, Description: "Too Many Requests: retry after 5"}, kit.ErrTransport},
		{"network", errors.New("dial tcp: i/o timeout"), kit.ErrTransport},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := wrapErr("sendMessage", tt.err)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, tt.err)
		})
	}
	require.NoError(t, wrapErr("x", nil))
}

func TestReplyMarkup(t *testing.T) {
	t.Parallel()
	require.Nil(t, replyMarkup(nil))

	rm := replyMarkup([][]kit.Button{
		{{Text: "1️⃣", Data: "vote|ab|0"}, {Text: "2️⃣", Data: "vote|ab|1"}},
		{{Text: "3️⃣", Data: "vote|ab|2"}},
	})
	require.Len(t, rm.InlineKeyboard, 2)
	require.Len(t, rm.InlineKeyboard[0], 2)
	require.Equal(t, "vote|ab|1", rm.InlineKeyboard[0][1].Data)
}

func TestMessageUpdate(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:     5,
		Text:   "/reminduser 10m hi",
		Chat:   &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender: &tele.User{ID: 1, FirstName: "Ana", LastName: "Lee", Username: "ana"},
		ReplyTo: &tele.Message{
			ID:     4,
			Sender: &tele.User{ID: 2, FirstName: "Bo", IsBot: true},
		},
	}
	up, ok := messageUpdate(m)
	require.True(t, ok)
	require.Equal(t, kit.UpdateMessage, up.Kind)
	require.True(t, up.Message.IsGroup)
	require.Equal(t, "Ana Lee", up.Message.From.Name)
	require.NotNil(t, up.Message.ReplyTo)
	require.True(t, up.Message.ReplyTo.IsBot)

	// Topic root replies are not targets.
	m.ThreadID = 4
	up, _ = messageUpdate(m)
	require.Nil(t, up.Message.ReplyTo)

	_, ok = messageUpdate(&tele.Message{Chat: &tele.Chat{ID: 1}})
	require.False(t, ok)
}

func TestCallbackUpdate(t *testing.T) {
	t.Parallel()
	up, ok := callbackUpdate(&tele.Callback{
		ID:      "cb1",
		Data:    "vote|ab12cd34|1",
		Sender:  &tele.User{ID: 9},
		Message: &tele.Message{ID: 3, Chat: &tele.Chat{ID: -5}},
	})
	require.True(t, ok)
	require.Equal(t, int64(9), up.Callback.From.ID)
	require.Equal(t, 3, up.Callback.MessageID)
	require.Equal(t, "vote|ab12cd34|1", up.Callback.Data)

	_, ok = callbackUpdate(&tele.Callback{ID: "x"})
	require.False(t, ok)
}
