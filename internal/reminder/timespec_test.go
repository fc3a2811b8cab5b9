package reminder

import (
	"testing"
	"time"

	"remindbot/internal/apperr"

	"github.com/stretchr/testify/require"
)

func TestParseTimeSpecValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
		{"30s", 30 * time.Second},
		{"1d", 24 * time.Hour},
		{"120", 2 * time.Hour},
		{"3 hours", 3 * time.Hour},
		{"10 minutes", 10 * time.Minute},
		{"2 days", 48 * time.Hour},
		{"  45 SEC ", 45 * time.Second},
		{"1hr", time.Hour},
		{"10080", 7 * 24 * time.Hour},
		{"+10", 10 * time.Minute},
		{"0s", 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimeSpec(tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimeSpecInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"abc", "5x", "", "0", "20000", "-5m", "1.5h", "5 m s", "++10", "+", "+5m", "+0"} {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			_, err := ParseTimeSpec(raw)
			require.Error(t, err)
			require.Equal(t, apperr.InvalidTimeFormat, apperr.KindOf(err))
		})
	}
}

func TestParseTimeSpecHugeNumberIsOutOfRange(t *testing.T) {
	t.Parallel()
	_, err := ParseTimeSpec("99999999999999999999999d")
	require.Equal(t, apperr.DurationOutOfRange, apperr.KindOf(err))
}

func TestValidateDurationBounds(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateDuration(10*time.Second))
	require.NoError(t, ValidateDuration(604800*time.Second))

	short := ValidateDuration(9 * time.Second)
	long := ValidateDuration(604801 * time.Second)
	require.Equal(t, apperr.DurationOutOfRange, apperr.KindOf(short))
	require.Equal(t, apperr.DurationOutOfRange, apperr.KindOf(long))
	require.NotEqual(t, short.Error(), long.Error(), "too-short and too-long must be distinguishable")

	_, err := ParseAndValidate("5s")
	require.Contains(t, err.Error(), "too short")
	_, err = ParseAndValidate("8d")
	require.Contains(t, err.Error(), "too long")
}

func TestFormatRemaining(t *testing.T) {
	t.Parallel()
	tests := []struct {
		secs int
		want string
	}{
		{0, "0s"},
		{30, "30s"},
		{300, "5m"},
		{3600, "1h"},
		{7200, "2h"},
		{7500, "2h 5m"},
		{86400, "1d"},
		{90000, "1d 1h"},
		{604800, "7d"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatRemaining(time.Duration(tt.secs)*time.Second), "secs=%d", tt.secs)
	}
	require.Equal(t, "0s", FormatRemaining(-time.Minute))
}
