// Package pipeline runs one ingestion cycle: scrape every source, reduce the
// readings to a consensus and pass newly seen content items through the
// dedup store.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/market-ingest/internal/consensus"
	"github.com/sells-group/market-ingest/internal/dedup"
	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/source"
)

// Config is the per-cycle input.
type Config struct {
	Sources                  []string
	PerSourceTimeout         time.Duration
	MaxRelatedItemsPerSource int
	DedupCapacity            int
}

// Runner fans extraction out across sources. *scrape.Orchestrator
// satisfies it.
type Runner interface {
	RunAll(ctx context.Context, extractors []source.Extractor, timeout time.Duration) ([]model.SourceReading, model.ScrapeMetrics)
}

// ExtractorFactory builds the extractor for a source ID.
type ExtractorFactory func(id string, opts source.Options) (source.Extractor, error)

// Pipeline holds the collaborators shared across cycles. Cycles must not
// overlap; the dedup store is mutated without coordination between them.
type Pipeline struct {
	runner     Runner
	seen       *dedup.Store
	policy     consensus.Policy
	sourceOpts source.Options
	extractor  ExtractorFactory
	nowFunc    func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPolicy sets the consensus policy.
func WithPolicy(p consensus.Policy) Option {
	return func(pl *Pipeline) { pl.policy = p }
}

// WithSourceOptions sets the options every extractor is built with.
// MaxItems is overridden per cycle from Config.
func WithSourceOptions(o source.Options) Option {
	return func(pl *Pipeline) { pl.sourceOpts = o }
}

// WithExtractorFactory replaces the built-in source registry.
func WithExtractorFactory(f ExtractorFactory) Option {
	return func(pl *Pipeline) { pl.extractor = f }
}

// New creates a Pipeline.
func New(runner Runner, seen *dedup.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		runner:    runner,
		seen:      seen,
		policy:    consensus.DefaultPolicy(),
		extractor: source.New,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunIngestionCycle runs one cycle and returns the consensus and the items
// not delivered before. It never fails; with no usable source the result
// has SampleCount 0.
func (p *Pipeline) RunIngestionCycle(ctx context.Context, cfg Config) (model.ConsensusResult, []model.ContentItem) {
	c := p.Run(ctx, cfg)
	return c.Result, c.NewItems
}

// Run executes one cycle and returns its full envelope.
func (p *Pipeline) Run(ctx context.Context, cfg Config) *model.Cycle {
	cycle := &model.Cycle{
		ID:        uuid.NewString(),
		StartedAt: p.nowFunc().UTC(),
	}
	log := zap.L().With(zap.String("cycle", cycle.ID))
	log.Info("pipeline: starting cycle", zap.Strings("sources", cfg.Sources))

	extractors := p.buildExtractors(cfg, log)

	phase := p.nowFunc()
	readings, metrics := p.runner.RunAll(ctx, extractors, cfg.PerSourceTimeout)
	cycle.Metrics = metrics
	log.Info("pipeline: phase complete",
		zap.String("phase", "scrape"),
		zap.Int64("duration_ms", p.nowFunc().Sub(phase).Milliseconds()),
		zap.Int("successes", metrics.Successes),
		zap.Int("failures", metrics.Failures),
	)

	cycle.Result = p.policy.Reduce(readings)
	if !cycle.Result.HasConsensus() {
		log.Warn("pipeline: no source produced a value")
	}

	cycle.NewItems = p.dedupItems(readings, cfg.DedupCapacity, log)
	cycle.FinishedAt = p.nowFunc().UTC()

	log.Info("pipeline: cycle complete",
		zap.Float64("consensus", cycle.Result.ConsensusValue),
		zap.Int("sample_count", cycle.Result.SampleCount),
		zap.String("reliability", string(cycle.Result.Reliability)),
		zap.Int("new_items", len(cycle.NewItems)),
		zap.Int64("duration_ms", cycle.Duration().Milliseconds()),
	)
	return cycle
}

func (p *Pipeline) buildExtractors(cfg Config, log *zap.Logger) []source.Extractor {
	opts := p.sourceOpts
	if cfg.MaxRelatedItemsPerSource > 0 {
		opts.MaxItems = cfg.MaxRelatedItemsPerSource
	}

	var out []source.Extractor
	seen := make(map[string]bool, len(cfg.Sources))
	for _, id := range cfg.Sources {
		if seen[id] {
			continue
		}
		seen[id] = true
		ex, err := p.extractor(id, opts)
		if err != nil {
			log.Warn("pipeline: skipping source", zap.String("source", id), zap.Error(err))
			continue
		}
		out = append(out, ex)
	}
	return out
}

// dedupItems checks items one at a time after the batch and persists the
// store once if it has unsaved changes, including ones left over from an
// earlier failed persist. Persist failures are logged; memory stays
// authoritative.
func (p *Pipeline) dedupItems(readings []model.SourceReading, capacity int, log *zap.Logger) []model.ContentItem {
	fresh := make([]model.ContentItem, 0)
	if p.seen == nil {
		for _, r := range readings {
			if r.Succeeded() {
				fresh = append(fresh, r.RelatedItems...)
			}
		}
		return fresh
	}
	if capacity > 0 && capacity != p.seen.Capacity() {
		p.seen.Resize(capacity)
	}

	for _, r := range readings {
		if !r.Succeeded() {
			continue
		}
		for _, item := range r.RelatedItems {
			fp := dedup.ItemFingerprint(item)
			if fp == "" || !p.seen.IsNew(fp) {
				continue
			}
			p.seen.MarkSeen(fp)
			fresh = append(fresh, item)
		}
	}

	if !p.seen.Dirty() {
		return fresh
	}
	if err := p.seen.Persist(); err != nil {
		log.Warn("pipeline: persist dedup store",
			zap.String("error_kind", string(model.ErrorStorageFault)),
			zap.Error(err),
		)
	}
	return fresh
}
