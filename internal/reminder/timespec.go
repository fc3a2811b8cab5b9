package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/apperr"
)

const (
	MinDuration = 10 * time.Second
	MaxDuration = 7 * 24 * time.Hour

	// Bare integers are minutes within this range.
	minBareMinutes = 1
	maxBareMinutes = 10080
)

var timeSpecRe = regexp.MustCompile(`^(\d+)\s*(s|sec|second|seconds|m|min|minute|minutes|h|hr|hour|hours|d|day|days)$`)

var unitSeconds = map[string]uint64{
	"s": 1, "sec": 1, "second": 1, "seconds": 1,
	"m": 60, "min": 60, "minute": 60, "minutes": 60,
	"h": 3600, "hr": 3600, "hour": 3600, "hours": 3600,
	"d": 86400, "day": 86400, "days": 86400,
}

// ParseTimeSpec converts user input like "5m", "2 hours" or "45" (minutes)
// into a duration. It does not apply the reminder bounds; see ValidateDuration.
func ParseTimeSpec(raw string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))

	if m := timeSpecRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseUint(m[1], 10, 64)
		unit := unitSeconds[m[2]]
		// Anything that does not fit a Duration is far beyond the upper bound.
		if err != nil || n > uint64(MaxDuration/time.Second)*2/unit {
			return 0, apperr.Invalid(apperr.DurationOutOfRange, "Reminder time is too long. Maximum is %s.", FormatRemaining(MaxDuration))
		}
		return time.Duration(n*unit) * time.Second, nil
	}

	// A bare number may carry an explicit plus sign ("+10").
	if bare := strings.TrimPrefix(s, "+"); isDigits(bare) {
		if n, err := strconv.Atoi(bare); err == nil && n >= minBareMinutes && n <= maxBareMinutes {
			return time.Duration(n) * time.Minute, nil
		}
	}

	return 0, apperr.Invalid(apperr.InvalidTimeFormat,
		"Invalid time format %q. Use e.g. 30s, 5m, 2h, 1d, \"10 minutes\", or a plain number of minutes.", strings.TrimSpace(raw))
}

// ValidateDuration enforces the reminder bounds (10 seconds to 7 days inclusive).
func ValidateDuration(d time.Duration) error {
	return validateBounds(d, MinDuration, MaxDuration)
}

func validateBounds(d, min, max time.Duration) error {
	switch {
	case d < min:
		return apperr.Invalid(apperr.DurationOutOfRange, "Reminder time is too short. Minimum is %s.", FormatRemaining(min))
	case d > max:
		return apperr.Invalid(apperr.DurationOutOfRange, "Reminder time is too long. Maximum is %s.", FormatRemaining(max))
	default:
		return nil
	}
}

// ParseAndValidate is ParseTimeSpec followed by ValidateDuration.
func ParseAndValidate(raw string) (time.Duration, error) {
	d, err := ParseTimeSpec(raw)
	if err != nil {
		return 0, err
	}
	if err := ValidateDuration(d); err != nil {
		return 0, err
	}
	return d, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FormatRemaining renders d with the two most significant units:
// "45s", "12m", "2h 5m", "2h", "3d 4h", "3d". Sub-second parts are dropped.
func FormatRemaining(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		h, m := secs/3600, (secs%3600)/60
		if m > 0 {
			return fmt.Sprintf("%dh %dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	default:
		days, h := secs/86400, (secs%86400)/3600
		if h > 0 {
			return fmt.Sprintf("%dd %dh", days, h)
		}
		return fmt.Sprintf("%dd", days)
	}
}
