package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/stealth"
)

// fakeSession serves canned documents by URL.
type fakeSession struct {
	docs    map[string]stealth.Document
	navErr  error
	clicked []string
}

func (f *fakeSession) Navigate(_ context.Context, url string, _ time.Duration) (stealth.Document, error) {
	if f.navErr != nil {
		return nil, f.navErr
	}
	d, ok := f.docs[url]
	if !ok {
		return nil, eris.Errorf("no document for %s", url)
	}
	return d, nil
}

func (f *fakeSession) Wait(context.Context, time.Duration, time.Duration) error { return nil }
func (f *fakeSession) Profile() stealth.Profile                                 { return stealth.Profile{} }
func (f *fakeSession) Close() error                                             { return nil }

// clickDoc records consent clicks.
type clickDoc struct {
	stealth.Document
	sess  *fakeSession
	allow string
}

func (d *clickDoc) Click(_ context.Context, sel string, _ time.Duration) error {
	d.sess.clicked = append(d.sess.clicked, sel)
	if sel == d.allow {
		return nil
	}
	return eris.New("not found")
}

var fixedNow = time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC)

func testOpts() Options {
	return Options{Now: func() time.Time { return fixedNow }}
}

func TestExtract_NavigationFailed(t *testing.T) {
	t.Parallel()

	e := NewPage(Definition{ID: "x", URL: "https://x.test/"}, testOpts())
	r := e.Extract(context.Background(), &fakeSession{navErr: eris.New("dial tcp: refused")})

	assert.Equal(t, "x", r.SourceID)
	assert.Equal(t, model.ErrorNavigationFailed, r.Error)
	assert.Contains(t, r.ErrorDetail, "refused")
	assert.Nil(t, r.Value)
	assert.Nil(t, r.Range)
	assert.Equal(t, fixedNow, r.ObservedAt)
}

func TestExtract_NavigationTimeout(t *testing.T) {
	t.Parallel()

	e := NewPage(Definition{ID: "x", URL: "https://x.test/"}, testOpts())
	r := e.Extract(context.Background(), &fakeSession{navErr: eris.Wrap(context.DeadlineExceeded, "navigate")})
	assert.Equal(t, model.ErrorTimeout, r.Error)
}

func TestExtract_AllFields(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<div class="px">18,42</div>
		<div class="chg">+0.35</div>
		<div class="pct">(+1.94%)</div>
		<div class="prev">18.07</div>
		<div class="open">17.90</div>
		<div class="range">17.85 - 19.10</div>
		<article><a href="/n/1">VIX rises into the close</a><time datetime="2026-10-16T14:00:00Z"></time></article>
		<article><a href="/n/2">Stocks open lower on jobs data</a><time>yesterday</time></article>
	</body></html>`
	sess := &fakeSession{}
	sess.docs = map[string]stealth.Document{
		"https://x.test/q": &clickDoc{Document: stealth.NewStaticDocument("https://x.test/q", html), sess: sess, allow: "#accept"},
	}
	def := Definition{
		ID:             "x",
		URL:            "https://x.test/q",
		Consent:        []string{"#reject", "#accept", "#never"},
		Value:          []Candidate{Selector(".missing"), Selector(".px")},
		ChangeAbsolute: []Candidate{Selector(".chg")},
		ChangePercent:  []Candidate{Selector(".pct")},
		PreviousClose:  []Candidate{Selector(".prev")},
		Open:           []Candidate{Selector(".open")},
		Range:          []Candidate{Selector(".range")},
		Items:          ItemRules{Containers: []string{"article"}, Dates: []string{"time"}},
	}

	r := NewPage(def, testOpts()).Extract(context.Background(), sess)
	require.True(t, r.Succeeded(), r.ErrorDetail)
	assert.Equal(t, model.ErrorNone, r.Error)
	assert.InDelta(t, 18.42, *r.Value, 1e-9)
	assert.InDelta(t, 0.35, *r.ChangeAbsolute, 1e-9)
	assert.InDelta(t, 1.94, *r.ChangePercent, 1e-9)
	assert.InDelta(t, 18.07, *r.PreviousClose, 1e-9)
	assert.InDelta(t, 17.90, *r.Open, 1e-9)
	require.NotNil(t, r.Range)
	assert.InDelta(t, 17.85, *r.Range.Low, 1e-9)
	assert.InDelta(t, 19.10, *r.Range.High, 1e-9)

	require.Len(t, r.RelatedItems, 2)
	assert.Equal(t, "https://x.test/n/1", r.RelatedItems[0].URL)
	assert.Equal(t, "yesterday", r.RelatedItems[1].RelativeTimeText)
	assert.Equal(t, []string{"#reject", "#accept"}, sess.clicked)
}

func TestExtract_RangeFromLowHigh(t *testing.T) {
	t.Parallel()

	html := `<html><body><b>20.1</b><i class="lo">19.5</i></body></html>`
	sess := &fakeSession{docs: map[string]stealth.Document{"u": stealth.NewStaticDocument("u", html)}}
	def := Definition{
		ID: "x", URL: "u",
		Value: []Candidate{Selector("b")},
		Range: []Candidate{Selector(".range")},
		Low:   []Candidate{Selector(".lo")},
		High:  []Candidate{Selector(".hi")},
	}
	r := NewPage(def, testOpts()).Extract(context.Background(), sess)
	require.NotNil(t, r.Range)
	assert.InDelta(t, 19.5, *r.Range.Low, 1e-9)
	assert.Nil(t, r.Range.High)
}

func TestExtract_MissingValueIsPartial(t *testing.T) {
	t.Parallel()

	html := `<html><body><div class="chg">-0.20</div></body></html>`
	sess := &fakeSession{docs: map[string]stealth.Document{"u": stealth.NewStaticDocument("u", html)}}
	def := Definition{ID: "x", URL: "u", Value: []Candidate{Selector(".px")}, ChangeAbsolute: []Candidate{Selector(".chg")}}

	r := NewPage(def, testOpts()).Extract(context.Background(), sess)
	assert.Equal(t, model.ErrorPartialExtraction, r.Error)
	assert.Nil(t, r.Value)
	require.NotNil(t, r.ChangeAbsolute)
	assert.InDelta(t, -0.20, *r.ChangeAbsolute, 1e-9)
	assert.Nil(t, r.Range)
}

func TestExtract_PanicKeepsFields(t *testing.T) {
	t.Parallel()

	html := `<html><body><div class="px">21.3</div></body></html>`
	sess := &fakeSession{docs: map[string]stealth.Document{"u": stealth.NewStaticDocument("u", html)}}
	boom := func(*Page) string { panic("selector engine exploded") }
	def := Definition{
		ID: "x", URL: "u",
		Value:         []Candidate{Selector(".px")},
		ChangePercent: []Candidate{boom},
	}

	var r model.SourceReading
	require.NotPanics(t, func() {
		r = NewPage(def, testOpts()).Extract(context.Background(), sess)
	})
	assert.Equal(t, model.ErrorPartialExtraction, r.Error)
	assert.Contains(t, r.ErrorDetail, "selector engine exploded")
	require.NotNil(t, r.Value)
	assert.InDelta(t, 21.3, *r.Value, 1e-9)
}

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>VIX headlines</title>
<item><title>Older story about volatility</title><link>https://news.test/old</link><pubDate>Wed, 14 Oct 2026 09:00:00 +0000</pubDate></item>
<item><title>Newer story about volatility</title><link>https://news.test/new</link><pubDate>Fri, 16 Oct 2026 09:00:00 +0000</pubDate></item>
<item><title>Newer story about volatility</title><link>https://news.test/new</link><pubDate>Fri, 16 Oct 2026 09:00:00 +0000</pubDate></item>
</channel></rss>`

func TestExtract_FeedFallback(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{docs: map[string]stealth.Document{
		"u":    stealth.NewStaticDocument("u", `<html><body><b>20.0</b></body></html>`),
		"feed": stealth.NewStaticDocument("feed", rssFixture),
	}}
	def := Definition{
		ID: "x", URL: "u", FeedURL: "feed",
		Value: []Candidate{Selector("b")},
		Items: ItemRules{Containers: []string{"article"}},
	}

	r := NewPage(def, testOpts()).Extract(context.Background(), sess)
	assert.Equal(t, model.ErrorNone, r.Error)
	require.Len(t, r.RelatedItems, 2)
	assert.Equal(t, "https://news.test/new", r.RelatedItems[0].URL)
	assert.Equal(t, "x", r.RelatedItems[0].SourceID)
}

func TestParseFeed_Invalid(t *testing.T) {
	t.Parallel()

	_, err := ParseFeed("<html>not a feed</html>", "x", 5)
	assert.Error(t, err)
}

const yahooFixture = `<!doctype html><html><head><title>^VIX</title></head><body>
<section data-testid="quote-price">
  <fin-streamer data-symbol="^VIX" data-field="regularMarketPrice" data-value="18.42">18.42</fin-streamer>
  <fin-streamer data-symbol="^VIX" data-field="regularMarketChange" data-value="-0.55">-0.55</fin-streamer>
  <fin-streamer data-symbol="^VIX" data-field="regularMarketChangePercent" data-value="-2.90">(-2.90%)</fin-streamer>
</section>
<ul>
  <li><fin-streamer data-field="regularMarketPreviousClose">18.97</fin-streamer></li>
  <li><fin-streamer data-field="regularMarketOpen">18.80</fin-streamer></li>
  <li><fin-streamer data-field="regularMarketDayRange">18.10 - 19.25</fin-streamer></li>
</ul>
<section data-testid="storyitem"><a href="/news/vix-falls.html"><h3>VIX falls as earnings reassure</h3></a><div class="publishing"><span class="provider">Reuters</span> • 2 hours ago</div></section>
<section data-testid="storyitem"><a href="/news/fed.html"><h3>Fed officials signal patience</h3></a><div class="publishing">Bloomberg • 5 hours ago</div></section>
</body></html>`

func TestYahoo_OverHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(yahooFixture))
	}))
	defer srv.Close()

	ex, err := New("yahoo", Options{URL: srv.URL + "/quote/%5EVIX/", Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	assert.Equal(t, "yahoo", ex.ID())

	sess, err := stealth.NewHTTPOpener(stealth.HTTPOptions{}).Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	r := ex.Extract(context.Background(), sess)
	require.Equal(t, model.ErrorNone, r.Error, r.ErrorDetail)
	assert.InDelta(t, 18.42, *r.Value, 1e-9)
	assert.InDelta(t, -0.55, *r.ChangeAbsolute, 1e-9)
	assert.InDelta(t, -2.90, *r.ChangePercent, 1e-9)
	assert.InDelta(t, 18.97, *r.PreviousClose, 1e-9)
	assert.InDelta(t, 18.80, *r.Open, 1e-9)
	require.NotNil(t, r.Range)
	assert.InDelta(t, 18.10, *r.Range.Low, 1e-9)
	assert.InDelta(t, 19.25, *r.Range.High, 1e-9)

	require.Len(t, r.RelatedItems, 2)
	assert.Equal(t, "VIX falls as earnings reassure", r.RelatedItems[0].Title)
	assert.Equal(t, srv.URL+"/news/vix-falls.html", r.RelatedItems[0].URL)
	assert.True(t, fixedNow.Add(-2*time.Hour).Equal(r.RelatedItems[0].PublishedAt))
	assert.Equal(t, "Reuters", r.RelatedItems[0].Author)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"cnbc", "google", "investing", "marketwatch", "yahoo"}, IDs())
	assert.ElementsMatch(t, DefaultIDs, IDs())

	_, err := New("bloomberg", Options{})
	assert.ErrorIs(t, err, ErrUnknownSource)

	for _, info := range List() {
		assert.NotEmpty(t, info.URL, info.ID)
		assert.NotEmpty(t, info.Name, info.ID)
	}
}

func TestDefinitions_SelectorsCompile(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	require.NoError(t, err)
	p := &Page{Doc: doc}
	for _, id := range IDs() {
		def := registry[id]()
		for _, list := range [][]Candidate{def.Value, def.ChangeAbsolute, def.ChangePercent, def.PreviousClose, def.Open, def.Range, def.Low, def.High} {
			assert.NotPanics(t, func() { First(p, list) }, id)
		}
		assert.NotPanics(t, func() { ExtractItems(p, def.Items, id, fixedNow, 5) }, id)
	}
}
