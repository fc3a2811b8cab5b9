package tgui

import (
	"math"
	"strings"
)

// TruncRunes cuts s to n runes and marks the cut with "…".
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}

// Bar draws a width-cell meter for pct, clamped to [0,100]. Width defaults
// to 10.
func Bar(pct float64, width int) string {
	if width <= 0 {
		width = 10
	}
	pct = math.Max(0, math.Min(100, pct))
	filled := int(math.Round(pct / 100 * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
