package source

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/parse"
)

// ItemRules describes where related headlines live on a page.
type ItemRules struct {
	// Containers are tried in order; the first selector that yields at
	// least one item wins.
	Containers []string
	// Link selects the anchor inside a container. Defaults to "a[href]".
	Link string
	// Title selects the headline text. Empty uses the link text.
	Title string
	// Dates are tried in order before falling back to scanning the
	// container markup.
	Dates  []string
	Author string
}

// dateAttrs are read from a date element before its text.
var dateAttrs = []string{"datetime", "title", "data-timestamp", "data-est"}

const minTitleLen = 8

// ExtractItems collects up to max related items from p, newest first.
func ExtractItems(p *Page, rules ItemRules, sourceID string, ref time.Time, max int) []model.ContentItem {
	if p.Doc == nil || max <= 0 {
		return nil
	}
	linkSel := rules.Link
	if linkSel == "" {
		linkSel = "a[href]"
	}

	var items []model.ContentItem
	for _, container := range rules.Containers {
		seen := make(map[string]bool)
		var found []model.ContentItem
		p.Doc.Find(container).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			item, ok := readItem(p.URL, s, rules, linkSel, sourceID, ref)
			if !ok || seen[item.URL] {
				return true
			}
			seen[item.URL] = true
			found = append(found, item)
			return len(found) < max
		})
		if len(found) > 0 {
			items = found
			break
		}
	}

	SortItems(items)
	return items
}

// SortItems orders items by PublishedAt descending. Undated items sort last.
func SortItems(items []model.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
}

func readItem(base string, s *goquery.Selection, rules ItemRules, linkSel, sourceID string, ref time.Time) (model.ContentItem, bool) {
	link := s
	if !s.Is("a") {
		link = s.Find(linkSel).First()
	}
	href, _ := link.Attr("href")
	abs := resolveURL(base, href)
	if abs == "" {
		return model.ContentItem{}, false
	}

	title := cleanText(link.Text())
	if rules.Title != "" {
		if t := cleanText(s.Find(rules.Title).First().Text()); t != "" {
			title = t
		}
	}
	if len(title) < minTitleLen {
		return model.ContentItem{}, false
	}

	item := model.ContentItem{Title: title, URL: abs, SourceID: sourceID}
	if rules.Author != "" {
		item.Author = cleanText(s.Find(rules.Author).First().Text())
	}

	if at, text, ok := itemDate(s, rules.Dates, ref); ok {
		item.PublishedAt = at
		if parse.IsRelative(text) {
			item.RelativeTimeText = text
		}
	}
	return item, true
}

// itemDate tries each date selector's attributes then text, then scans the
// container markup for anything date-shaped.
func itemDate(s *goquery.Selection, selectors []string, ref time.Time) (time.Time, string, bool) {
	for _, sel := range selectors {
		el := s.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		for _, attr := range dateAttrs {
			v, ok := el.Attr(attr)
			if !ok {
				continue
			}
			v = strings.TrimSpace(v)
			if t, ok := epoch(v); ok {
				return t, v, true
			}
			if t, ok := parse.ParseDate(v, ref); ok {
				return t, v, true
			}
		}
		text := cleanText(el.Text())
		if t, ok := parse.ParseDate(text, ref); ok {
			return t, text, true
		}
	}

	html, err := goquery.OuterHtml(s)
	if err != nil {
		return time.Time{}, "", false
	}
	return parse.ScanDate(html, ref)
}

// epoch accepts Unix seconds or milliseconds.
func epoch(v string) (time.Time, bool) {
	if len(v) != 10 && len(v) != 13 {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if len(v) == 13 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if b, err := url.Parse(base); err == nil && base != "" {
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}
