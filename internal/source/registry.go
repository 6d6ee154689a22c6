package source

import (
	"sort"

	"github.com/rotisserie/eris"
)

// ErrUnknownSource is returned by New for an unregistered ID.
var ErrUnknownSource = eris.New("source: unknown source")

var registry = map[string]func() Definition{
	"yahoo":       yahoo,
	"marketwatch": marketwatch,
	"cnbc":        cnbc,
	"investing":   investing,
	"google":      google,
}

// DefaultIDs is the source list used when none is configured.
var DefaultIDs = []string{"yahoo", "marketwatch", "cnbc", "investing", "google"}

// New returns the extractor registered under id.
func New(id string, opts Options) (Extractor, error) {
	def, ok := registry[id]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownSource, "source: %q", id)
	}
	return NewPage(def(), opts), nil
}

// Info describes a registered source.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	FeedURL string `json:"feed_url,omitempty"`
}

// IDs returns the registered source IDs, sorted.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List describes every registered source, sorted by ID.
func List() []Info {
	out := make([]Info, 0, len(registry))
	for _, id := range IDs() {
		d := registry[id]()
		out = append(out, Info{ID: d.ID, Name: d.Name, URL: d.URL, FeedURL: d.FeedURL})
	}
	return out
}
