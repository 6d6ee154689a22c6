package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/market-ingest/internal/model"
)

// Fingerprint is the dedup identity of a content item: title, URL and
// published date, each folded to lower-case ASCII-ish letters and digits,
// concatenated.
func Fingerprint(title, url, published string) string {
	var b strings.Builder
	for _, part := range []string{title, url, published} {
		fold(&b, part)
	}
	return b.String()
}

// ItemFingerprint fingerprints a content item using its UTC calendar date.
func ItemFingerprint(item model.ContentItem) string {
	return Fingerprint(item.Title, item.URL, item.PublishedDate())
}

func fold(b *strings.Builder, s string) {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
}
