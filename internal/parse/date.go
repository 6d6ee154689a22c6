package parse

import (
	"regexp"
	"strings"
	"time"
)

// absoluteLayouts are tried in order against date text pulled from markup.
var absoluteLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Jan 2, 2006 3:04 PM MST",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 at 3:04 PM MST",
	"Jan 2, 2006 at 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
	"Jan. 2, 2006",
	"Monday, January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02.01.2006 15:04",
	"02.01.2006",
	"01/02/2006 3:04 PM",
	"01/02/2006",
	"1/2/2006",
}

// ParseDate interprets either a relative timestamp or one of the absolute
// date layouts seen on financial news listings.
func ParseDate(text string, ref time.Time) (time.Time, bool) {
	s := strings.TrimSpace(strings.Join(strings.Fields(text), " "))
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := Resolve(s, ref); ok {
		return t, true
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "Updated "), " ET")
	s = strings.Replace(s, "Sept.", "Sep.", 1)
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var dateShapes = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`),
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.? \d{1,2}, \d{4}(?: (?:at )?\d{1,2}:\d{2} [AP]M)?`),
	regexp.MustCompile(`\d{1,2} (?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{4}`),
	regexp.MustCompile(`(?i)\b(?:\d+|an?)\s*(?:seconds?|mins?|minutes?|hours?|hrs?|days?|weeks?|months?|years?)\s+ago\b`),
	regexp.MustCompile(`(?i)\b(?:just now|yesterday|a few minutes ago|about an hour ago)\b`),
}

// ScanDate looks for the first date-shaped substring in raw markup. It is the
// last resort when no date selector matched. The matched text is returned so
// callers can keep relative phrases.
func ScanDate(markup string, ref time.Time) (time.Time, string, bool) {
	for _, re := range dateShapes {
		for _, m := range re.FindAllString(markup, 4) {
			if t, ok := ParseDate(m, ref); ok {
				return t, m, true
			}
		}
	}
	return time.Time{}, "", false
}
