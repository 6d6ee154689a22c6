package model

import "time"

// ContentItem is a news article or post discovered on a source page.
type ContentItem struct {
	Title            string    `json:"title" yaml:"title"`
	URL              string    `json:"url" yaml:"url"`
	PublishedAt      time.Time `json:"published_at" yaml:"published_at"`
	RelativeTimeText string    `json:"relative_time_text,omitempty" yaml:"relative_time_text,omitempty"`
	Author           string    `json:"author,omitempty" yaml:"author,omitempty"`
	SourceID         string    `json:"source_id" yaml:"source_id"`
}

// PublishedDate is the UTC calendar date used in the item's fingerprint.
// Items without a timestamp return "".
func (c ContentItem) PublishedDate() string {
	if c.PublishedAt.IsZero() {
		return ""
	}
	return c.PublishedAt.UTC().Format("2006-01-02")
}
