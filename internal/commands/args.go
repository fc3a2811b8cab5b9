package commands

import (
	"math/rand"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

// newReqID returns a short request id: base36 time, sequence and two random chars.
func newReqID() string {
	n := ridSeq.Add(1)
	return base36(time.Now().UnixNano()) + "-" + base36(int64(n)) + randSuffix(2)
}

func randSuffix(n int) string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alpha[rand.Intn(len(alpha))])
	}
	return b.String()
}

func base36(v int64) string {
	const chars = "0123456789abcdefghijklmnopqrstuvwxyz"
	if v < 0 {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var out [32]byte
	i := len(out)
	for v > 0 {
		i--
		out[i] = chars[v%36]
		v /= 36
	}
	return string(out[i:])
}

// splitCommand parses "/name@bot rest". ok is false for non-commands.
// The remainder keeps its original spacing and quotes.
func splitCommand(text string) (name, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	word, rest := cutWord(text[1:])
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", "", false
	}
	return word, rest, true
}

// cutWord splits off the first whitespace-separated word of s.
func cutWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, isSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }

var unitWordRe = regexp.MustCompile(`^(?i)(s|sec|second|seconds|m|min|minute|minutes|h|hr|hour|hours|d|day|days)$`)

// splitTimeSpec takes the time argument off the front of s. A number
// followed by a unit word ("10 minutes") counts as one argument.
func splitTimeSpec(s string) (spec, rest string) {
	first, rest := cutWord(s)
	if first == "" || !allDigits(first) {
		return first, rest
	}
	second, after := cutWord(rest)
	if unitWordRe.MatchString(second) {
		return first + " " + second, after
	}
	return first, rest
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// splitPipes splits s on "|" into at most n trimmed parts.
func splitPipes(s string, n int) []string {
	parts := strings.SplitN(s, "|", n)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
