package source

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is a loaded document as seen by candidates.
type Page struct {
	URL string
	Doc *goquery.Document
	Raw string
}

// Candidate is one strategy for reading a field. It returns "" when it
// cannot find anything.
type Candidate func(p *Page) string

// Selector reads the trimmed text of the first element matching sel.
func Selector(sel string) Candidate {
	return func(p *Page) string {
		if p.Doc == nil {
			return ""
		}
		return cleanText(p.Doc.Find(sel).First().Text())
	}
}

// Attr reads attribute attr of the first element matching sel.
func Attr(sel, attr string) Candidate {
	return func(p *Page) string {
		if p.Doc == nil {
			return ""
		}
		v, _ := p.Doc.Find(sel).First().Attr(attr)
		return strings.TrimSpace(v)
	}
}

// Pattern runs expr over the raw markup and returns its first capture group.
// It panics at construction if expr does not compile.
func Pattern(expr string) Candidate {
	re := regexp.MustCompile(expr)
	return func(p *Page) string {
		m := re.FindStringSubmatch(p.Raw)
		if len(m) < 2 {
			return ""
		}
		return strings.TrimSpace(m[1])
	}
}

// First returns the first non-empty candidate result and its index, or
// ("", -1).
func First(p *Page, candidates []Candidate) (string, int) {
	for i, c := range candidates {
		if v := c(p); v != "" {
			return v, i
		}
	}
	return "", -1
}

var spaceRe = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
