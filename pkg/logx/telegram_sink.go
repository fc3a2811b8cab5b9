package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "remindbot/internal/transport"
)

const (
	opsQueueSize  = 256
	opsMaxMessage = 3500
	opsMaxValue   = 600
	opsMaxStack   = 900
)

// botTokenRe matches Telegram bot tokens, which leak into transport errors
// through request URLs.
var botTokenRe = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)

type opsItem struct {
	to  kit.ChatTarget
	msg string
}

// opsSink is a zerolog.LevelWriter that forwards formatted lines to a chat.
// Writes never block: lines over the rate limit or queue capacity are dropped.
type opsSink struct {
	sender kit.Adapter
	queue  chan opsItem

	mu       sync.Mutex
	to       kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func newOpsSink(sender kit.Adapter) *opsSink {
	return &opsSink{sender: sender, queue: make(chan opsItem, opsQueueSize), done: make(chan struct{})}
}

func (o *opsSink) configure(cfg TelegramConfig) {
	rps := max(1, cfg.RatePerSec)
	o.mu.Lock()
	o.to = kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	o.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	o.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	o.mu.Unlock()

	if cfg.Enabled && o.sender != nil {
		o.startOnce.Do(o.start)
	}
}

func (o *opsSink) start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	go func() {
		defer close(o.done)
		for {
			select {
			case <-ctx.Done():
				return
			case it := <-o.queue:
				_, _ = o.sender.SendText(ctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
			}
		}
	}()
}

func (o *opsSink) stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
		<-o.done
	}
}

func (o *opsSink) Write(p []byte) (int, error) { return o.WriteLevel(zerolog.InfoLevel, p) }

func (o *opsSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	o.mu.Lock()
	to, minLevel, lim := o.to, o.minLevel, o.limiter
	o.mu.Unlock()

	if o.sender == nil || to.ChatID == 0 || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	msg := formatTelegramJSON(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case o.queue <- opsItem{to: to, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatTelegramJSON renders a zerolog JSON line as
// "[LEVEL] message" followed by "- key=value" lines in key order, with the
// stack last. Bot tokens are masked.
func formatTelegramJSON(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return truncate(redact(raw), opsMaxMessage)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, "stack":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=" + truncate(fmt.Sprint(m[k]), opsMaxValue))
	}
	if st, ok := m["stack"]; ok {
		b.WriteString("\n- stack=\n" + truncate(fmt.Sprint(st), opsMaxStack))
	}
	return truncate(redact(b.String()), opsMaxMessage)
}

func redact(s string) string {
	return botTokenRe.ReplaceAllString(s, "<redacted>")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
