package source

import (
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-ingest/internal/model"
)

// ParseFeed reads up to max items from an RSS or Atom document.
func ParseFeed(raw, sourceID string, max int) ([]model.ContentItem, error) {
	feed, err := gofeed.NewParser().ParseString(strings.TrimSpace(raw))
	if err != nil {
		return nil, eris.Wrap(err, "source: parse feed")
	}

	seen := make(map[string]bool)
	out := make([]model.ContentItem, 0, max)
	for _, it := range feed.Items {
		if len(out) >= max {
			break
		}
		link := strings.TrimSpace(it.Link)
		title := cleanText(it.Title)
		if link == "" || title == "" || seen[link] {
			continue
		}
		seen[link] = true

		item := model.ContentItem{Title: title, URL: link, SourceID: sourceID}
		if it.PublishedParsed != nil {
			item.PublishedAt = it.PublishedParsed.UTC()
		} else if it.UpdatedParsed != nil {
			item.PublishedAt = it.UpdatedParsed.UTC()
		}
		if len(it.Authors) > 0 && it.Authors[0] != nil {
			item.Author = strings.TrimSpace(it.Authors[0].Name)
		}
		out = append(out, item)
	}

	SortItems(out)
	return out, nil
}
