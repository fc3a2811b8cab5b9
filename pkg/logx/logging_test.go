package logx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"remindbot/internal/transport/fake"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		require.Equal(t, want, parseLevel(in, zerolog.InfoLevel), in)
	}
}

func TestZeroAndNop(t *testing.T) {
	t.Parallel()
	var l Logger
	require.True(t, l.IsZero())
	require.False(t, Nop().IsZero())
	require.False(t, l.With(String("k", "v")).IsZero())
	// Must not panic.
	l.Info("ignored", Err(errors.New("x")))
}

func TestFileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}}, nil)

	log.With(String("comp", "reminder")).Info("reminder created", String("id", "abc12345"), Duration("in", time.Minute))
	log.Trace("below level")
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	require.Contains(t, out, `"message":"reminder created"`)
	require.Contains(t, out, `"comp":"reminder"`)
	require.Contains(t, out, `"id":"abc12345"`)
	require.NotContains(t, out, "below level")
	require.Equal(t, 1, strings.Count(out, "\n"))
}

func TestTelegramSinkFiltersAndRateLimits(t *testing.T) {
	ch := fake.New()
	svc, log := New(Config{
		Level: "debug",
		Telegram: TelegramConfig{
			Enabled:    true,
			ChatID:     -500,
			ThreadID:   3,
			MinLevel:   "warn",
			RatePerSec: 1,
		},
	}, ch)

	log.Info("too quiet")
	log.Warn("delivery dropped", String("id", "r1"))
	log.Error("over the limit")

	sent := ch.WaitSent(1, 2*time.Second)
	require.NoError(t, svc.Close())

	require.Len(t, ch.Sent(), 1)
	require.Equal(t, int64(-500), sent[0].To.ChatID)
	require.Equal(t, 3, sent[0].To.ThreadID)
	require.True(t, strings.HasPrefix(sent[0].Text, "[WARN] delivery dropped"))
	require.Contains(t, sent[0].Text, "- id=r1")
	require.NotContains(t, sent[0].Text, "over the limit")
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	got := formatTelegramJSON([]byte(`{"level":"error","time":"t","message":"boom","stack":"trace"}`))
	require.Equal(t, "[ERROR] boom\n- stack=\ntrace", got)

	require.Equal(t, "plain text", formatTelegramJSON([]byte("  plain text \n")))
	require.Len(t, formatTelegramJSON([]byte(strings.Repeat("x", 5000))), 3500)
}

func TestFormatTelegramJSONMasksTokensAndSortsKeys(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","message":"send failed","url":"https://api.telegram.org/bot123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw/sendMessage","comp":"delivery"}`
	got := formatTelegramJSON([]byte(line))
	require.NotContains(t, got, "AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw")
	require.Contains(t, got, "bot<redacted>/sendMessage")
	require.Less(t, strings.Index(got, "- comp="), strings.Index(got, "- url="))
}
