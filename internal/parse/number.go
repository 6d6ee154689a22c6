// Package parse turns scraped text into numbers and instants. Failures are
// values, not errors: scraped markup is unparsable often enough that callers
// treat it as a normal outcome.
package parse

import (
	"strconv"
	"strings"
)

// Num is a parsed number. The zero value is Unparsable.
type Num struct {
	Float float64
	Valid bool
}

// Unparsable is returned when text holds no usable number.
var Unparsable = Num{}

// Ptr returns a pointer to the value, or nil when unparsable.
func (n Num) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float
	return &v
}

var signNormalizer = strings.NewReplacer(
	"\u2212", "-", // minus sign
	"\u2012", "-", // figure dash
	"\u00a0", "", // no-break space
	"\u202f", "", // narrow no-break space
	"'", "", // Swiss thousands separator
)

// Number parses a price, change or percentage string in either decimal-point
// or decimal-comma notation. "23,43" and "23.43" both yield 23.43, and
// "1,234.56" yields 1234.56.
func Number(raw string) Num {
	s := strings.TrimSpace(signNormalizer.Replace(raw))
	if s == "" {
		return Unparsable
	}

	hasComma := strings.Contains(s, ",")
	hasPeriod := strings.Contains(s, ".")
	switch {
	case hasComma && hasPeriod:
		s = strings.ReplaceAll(s, ",", "")
	case hasComma && strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}

	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return Unparsable
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Unparsable
	}
	return Num{Float: f, Valid: true}
}

// Range parses "low - high" text such as a day range. Each side is parsed
// independently so one bad half does not discard the other. Text without a
// separator yields two Unparsable values.
func Range(raw string) (low, high Num) {
	l, r, ok := splitRange(raw)
	if !ok {
		return Unparsable, Unparsable
	}
	return Number(l), Number(r)
}

func splitRange(raw string) (string, string, bool) {
	s := strings.TrimSpace(signNormalizer.Replace(raw))
	if s == "" {
		return "", "", false
	}
	for _, sep := range []string{" - ", " – ", " — ", "–", "—"} {
		if l, r, ok := strings.Cut(s, sep); ok {
			return l, r, true
		}
	}
	// A leading hyphen is a sign, so start looking after the first rune.
	if i := strings.Index(s[1:], "-"); i >= 0 {
		return s[:i+1], s[i+2:], true
	}
	return "", "", false
}
