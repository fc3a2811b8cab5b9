package tgui

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// H is HTML that is already safe for ParseMode HTML.
type H string

func (h H) String() string { return string(h) }

// Esc escapes plain text.
func Esc(s string) H { return H(html.EscapeString(s)) }

func tag(name, text string) H {
	return H("<" + name + ">" + html.EscapeString(text) + "</" + name + ">")
}

func B(s string) H    { return tag("b", s) }
func I(s string) H    { return tag("i", s) }
func Code(s string) H { return tag("code", s) }

// Mention links the user by ID, which notifies them in chats they belong
// to. A blank name falls back to "user <id>".
func Mention(name string, userID int64) H {
	if strings.TrimSpace(name) == "" {
		name = "user " + strconv.FormatInt(userID, 10)
	}
	return H(fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, html.EscapeString(name)))
}

// JoinH joins parts with sep, skipping blank ones.
func JoinH(sep string, parts ...H) H {
	var sb strings.Builder
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(string(p))
	}
	return H(sb.String())
}
