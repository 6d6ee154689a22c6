// Package source holds one extractor per market data site. Each extractor
// navigates a stealth session to its page and reads the quote and related
// headlines through ordered candidate lists.
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/parse"
	"github.com/sells-group/market-ingest/internal/stealth"
)

// Extractor reads one source. Extract never returns an error; failures are
// recorded on the reading.
type Extractor interface {
	ID() string
	URL() string
	Extract(ctx context.Context, sess stealth.Session) model.SourceReading
}

// Options tunes a page extractor. Zero values fall back to defaults.
type Options struct {
	NavTimeout     time.Duration
	ConsentTimeout time.Duration
	DelayMin       time.Duration
	DelayMax       time.Duration
	MaxItems       int
	// URL and FeedURL override the built-in addresses.
	URL     string
	FeedURL string
	Now     func() time.Time
}

const (
	DefaultNavTimeout     = 20 * time.Second
	DefaultConsentTimeout = 2 * time.Second
	DefaultMaxItems       = 10
)

func (o Options) withDefaults() Options {
	if o.NavTimeout <= 0 {
		o.NavTimeout = DefaultNavTimeout
	}
	if o.ConsentTimeout <= 0 {
		o.ConsentTimeout = DefaultConsentTimeout
	}
	if o.DelayMax < o.DelayMin {
		o.DelayMax = o.DelayMin
	}
	if o.MaxItems <= 0 {
		o.MaxItems = DefaultMaxItems
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Definition is the static description of a page source.
type Definition struct {
	ID      string
	URL     string
	FeedURL string
	Name    string
	// Consent selectors are clicked in order until one succeeds.
	Consent []string

	Value          []Candidate
	ChangeAbsolute []Candidate
	ChangePercent  []Candidate
	PreviousClose  []Candidate
	Open           []Candidate
	// Range reads "low - high" text. Low and High are used when it yields
	// nothing.
	Range []Candidate
	Low   []Candidate
	High  []Candidate

	Items ItemRules
}

// PageExtractor runs a Definition against a session.
type PageExtractor struct {
	def  Definition
	opts Options
}

// NewPage creates an extractor for def.
func NewPage(def Definition, opts Options) *PageExtractor {
	opts = opts.withDefaults()
	if opts.URL != "" {
		def.URL = opts.URL
	}
	if opts.FeedURL != "" {
		def.FeedURL = opts.FeedURL
	}
	return &PageExtractor{def: def, opts: opts}
}

func (e *PageExtractor) ID() string  { return e.def.ID }
func (e *PageExtractor) URL() string { return e.def.URL }

// Extract navigates to the source page and reads every field it can.
func (e *PageExtractor) Extract(ctx context.Context, sess stealth.Session) (r model.SourceReading) {
	log := zap.L().With(zap.String("source", e.def.ID))
	start := e.opts.Now()

	doc, err := sess.Navigate(ctx, e.def.URL, e.opts.NavTimeout)
	if err != nil {
		kind := model.ErrorNavigationFailed
		if isTimeout(ctx, err) {
			kind = model.ErrorTimeout
		}
		log.Debug("source: navigation failed", zap.Error(err), zap.String("kind", string(kind)))
		return model.FailedReading(e.def.ID, kind, err.Error(), start)
	}

	r = model.SourceReading{SourceID: e.def.ID, ObservedAt: start}
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn("source: extraction panicked", zap.Any("panic", rec))
			r.Error = model.ErrorPartialExtraction
			r.ErrorDetail = fmt.Sprintf("panic: %v", rec)
		}
	}()

	e.dismissConsent(ctx, doc)

	if err := sess.Wait(ctx, e.opts.DelayMin, e.opts.DelayMax); err != nil {
		log.Debug("source: delay interrupted", zap.Error(err))
	}

	page, err := load(ctx, doc)
	if err != nil {
		r.Error = model.ErrorPartialExtraction
		r.ErrorDetail = err.Error()
		return r
	}

	r.Value = number(page, e.def.Value)
	r.ChangeAbsolute = number(page, e.def.ChangeAbsolute)
	r.ChangePercent = number(page, e.def.ChangePercent)
	r.PreviousClose = number(page, e.def.PreviousClose)
	r.Open = number(page, e.def.Open)
	r.Range = e.readRange(page)

	r.RelatedItems = ExtractItems(page, e.def.Items, e.def.ID, start, e.opts.MaxItems)
	if len(r.RelatedItems) == 0 && e.def.FeedURL != "" {
		r.RelatedItems = e.feedItems(ctx, sess)
	}

	if r.Value == nil {
		r.Error = model.ErrorPartialExtraction
		r.ErrorDetail = "value not found"
	}

	log.Debug("source: extracted",
		zap.Bool("has_value", r.Value != nil),
		zap.Int("items", len(r.RelatedItems)),
	)
	return r
}

// dismissConsent clicks the first consent button it finds. Failures are
// ignored.
func (e *PageExtractor) dismissConsent(ctx context.Context, doc stealth.Document) {
	if len(e.def.Consent) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, e.opts.ConsentTimeout)
	defer cancel()

	per := e.opts.ConsentTimeout / time.Duration(len(e.def.Consent))
	for _, sel := range e.def.Consent {
		err := doc.Click(cctx, sel, per)
		if err == nil {
			zap.L().Debug("source: consent dismissed", zap.String("source", e.def.ID), zap.String("selector", sel))
			return
		}
		if errors.Is(err, stealth.ErrNotInteractive) || cctx.Err() != nil {
			return
		}
	}
}

func (e *PageExtractor) readRange(p *Page) *model.Range {
	var lo, hi parse.Num
	if text, _ := First(p, e.def.Range); text != "" {
		lo, hi = parse.Range(text)
	}
	if !lo.Valid && !hi.Valid {
		lo = parseCandidates(p, e.def.Low)
		hi = parseCandidates(p, e.def.High)
	}
	if !lo.Valid && !hi.Valid {
		return nil
	}
	return &model.Range{Low: lo.Ptr(), High: hi.Ptr()}
}

func (e *PageExtractor) feedItems(ctx context.Context, sess stealth.Session) []model.ContentItem {
	doc, err := sess.Navigate(ctx, e.def.FeedURL, e.opts.NavTimeout)
	if err != nil {
		zap.L().Debug("source: feed fetch failed", zap.String("source", e.def.ID), zap.Error(err))
		return nil
	}
	raw, err := doc.Raw(ctx)
	if err != nil {
		return nil
	}
	items, err := ParseFeed(raw, e.def.ID, e.opts.MaxItems)
	if err != nil {
		zap.L().Debug("source: feed parse failed", zap.String("source", e.def.ID), zap.Error(err))
		return nil
	}
	return items
}

func load(ctx context.Context, doc stealth.Document) (*Page, error) {
	raw, err := doc.Raw(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "source: read page")
	}
	snap, err := doc.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "source: snapshot page")
	}
	return &Page{URL: doc.URL(), Doc: snap, Raw: raw}, nil
}

func parseCandidates(p *Page, candidates []Candidate) parse.Num {
	text, _ := First(p, candidates)
	if text == "" {
		return parse.Unparsable
	}
	return parse.Number(text)
}

func number(p *Page, candidates []Candidate) *float64 {
	n := parseCandidates(p, candidates)
	if !n.Valid || math.IsNaN(n.Float) || math.IsInf(n.Float, 0) {
		return nil
	}
	return n.Ptr()
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
