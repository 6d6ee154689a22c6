package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeRe = regexp.MustCompile(`^(\d+|an?|one)\s*(seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|wks?|w|months?|mos?|years?|yrs?|y)\s+ago$`)

var idioms = map[string]time.Duration{
	"just now":           0,
	"now":                0,
	"today":              0,
	"moments ago":        0,
	"a moment ago":       0,
	"a few seconds ago":  -10 * time.Second,
	"a few minutes ago":  -3 * time.Minute,
	"about an hour ago":  -time.Hour,
	"yesterday":          -24 * time.Hour,
	"last week":          -7 * 24 * time.Hour,
	"a few hours ago":    -3 * time.Hour,
	"about a minute ago": -time.Minute,
}

// maxRelativeAge bounds "N units ago"; larger ages are treated as
// unparsable rather than overflowing time.Duration.
const maxRelativeAge = 100 * 365 * 24 * time.Hour

var leadingFiller = []string{"about ", "approximately ", "around ", "updated ", "published ", "posted "}

// Resolve converts a relative timestamp such as "3 hours ago" or "yesterday"
// into an instant relative to ref. Unknown text returns (ref, false); the
// boolean, not the returned time, says whether the text was understood,
// since "today" and "just now" legitimately resolve to ref.
func Resolve(text string, ref time.Time) (time.Time, bool) {
	s := normalizeRelative(text)
	if s == "" {
		return ref, false
	}
	if d, ok := idioms[s]; ok {
		return ref.Add(d), true
	}

	// Fillers go after the idiom lookup so "about an hour ago" stays an idiom.
	for _, f := range leadingFiller {
		s = strings.TrimPrefix(s, f)
	}
	if d, ok := idioms[s]; ok {
		return ref.Add(d), true
	}

	m := relativeRe.FindStringSubmatch(s)
	if m == nil {
		return ref, false
	}
	n := 1
	if m[1] != "a" && m[1] != "an" && m[1] != "one" {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return ref, false
		}
		n = v
	}

	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "mo"):
		if n > 100*12 {
			return ref, false
		}
		return ref.AddDate(0, -n, 0), true
	case strings.HasPrefix(unit, "y"):
		if n > 100 {
			return ref, false
		}
		return ref.AddDate(-n, 0, 0), true
	}

	var step time.Duration
	switch {
	case strings.HasPrefix(unit, "s"):
		step = time.Second
	case strings.HasPrefix(unit, "m"):
		step = time.Minute
	case strings.HasPrefix(unit, "h"):
		step = time.Hour
	case strings.HasPrefix(unit, "d"):
		step = 24 * time.Hour
	case strings.HasPrefix(unit, "w"):
		step = 7 * 24 * time.Hour
	default:
		return ref, false
	}
	if int64(n) > int64(maxRelativeAge/step) {
		return ref, false
	}
	return ref.Add(-time.Duration(n) * step), true
}

// IsRelative reports whether text is a relative timestamp Resolve understands.
func IsRelative(text string) bool {
	_, ok := Resolve(text, time.Time{})
	return ok
}

func normalizeRelative(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.Trim(s, ".,;:·•|()[] ")
	return strings.Join(strings.Fields(s), " ")
}
