package poll

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"remindbot/internal/apperr"
)

// ParseOptions splits comma-separated labels, dropping blanks. It requires
// 2 to 10 distinct labels (case-insensitive).
func ParseOptions(raw string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		label := strings.TrimSpace(part)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if seen[key] {
			return nil, apperr.Invalid(apperr.DuplicateOptions, "Option %q appears more than once.", label)
		}
		seen[key] = true
		out = append(out, label)
	}
	switch {
	case len(out) < MinOptions:
		return nil, apperr.Invalid(apperr.TooFewOptions, "A poll needs at least %d options.", MinOptions)
	case len(out) > MaxOptions:
		return nil, apperr.Invalid(apperr.TooManyOptions, "A poll can have at most %d options.", MaxOptions)
	}
	return out, nil
}

// ParseMinutes reads a poll duration given in whole minutes.
func ParseMinutes(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperr.Invalid(apperr.InvalidTimeFormat, "Poll duration must be a whole number of minutes.")
	}
	return n, nil
}

func validateMinutes(n, min, max int) error {
	if n < min || n > max {
		return apperr.Invalid(apperr.DurationOutOfRange, "Poll duration must be between %d and %d minutes.", min, max)
	}
	return nil
}

// Tally turns raw per-symbol counts into ranked results. Raw counts include
// the system vote, which is subtracted (never below zero). Ties keep the
// option order and medals go only to top-three options with votes.
func Tally(p Poll, counts map[string]int) Results {
	ranked := make([]Result, len(p.Options))
	total := 0
	for i, o := range p.Options {
		v := counts[o.Symbol] - SystemVotesPerSymbol
		if v < 0 {
			v = 0
		}
		ranked[i] = Result{Option: o, Votes: v}
		total += v
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Votes > ranked[j].Votes })
	for i := range ranked {
		ranked[i].Rank = i + 1
		if total > 0 {
			ranked[i].Percent = float64(ranked[i].Votes) * 100 / float64(total)
		}
		if i < len(medals) && ranked[i].Votes > 0 {
			ranked[i].Medal = medals[i]
		}
	}
	return Results{Poll: p, Total: total, Ranked: ranked}
}

// Winner returns the top option label, or "" when nobody voted.
func (r Results) Winner() string {
	if r.Total == 0 || len(r.Ranked) == 0 {
		return ""
	}
	return r.Ranked[0].Label
}

func formatPercent(p float64) string {
	s := strconv.FormatFloat(p, 'f', 1, 64)
	return fmt.Sprintf("%s%%", strings.TrimSuffix(s, ".0"))
}
