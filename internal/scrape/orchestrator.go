// Package scrape fans extraction out across sources, one session per
// source, and gathers every outcome into a batch with timing metrics.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/monitoring"
	"github.com/sells-group/market-ingest/internal/resilience"
	"github.com/sells-group/market-ingest/internal/source"
	"github.com/sells-group/market-ingest/internal/stealth"
)

// DefaultTimeout bounds one source when RunAll is given no timeout.
const DefaultTimeout = 45 * time.Second

// Orchestrator runs extractors concurrently. It holds no per-cycle state
// and may be reused across cycles.
type Orchestrator struct {
	opener      stealth.Opener
	breakers    *resilience.Breakers
	concurrency int
	nowFunc     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBreakers skips sources whose breaker is open and feeds every outcome
// back into it.
func WithBreakers(b *resilience.Breakers) Option {
	return func(o *Orchestrator) { o.breakers = b }
}

// WithConcurrency caps how many sources run at once. Zero means all.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// New returns an Orchestrator that opens sessions with opener.
func New(opener stealth.Opener, opts ...Option) *Orchestrator {
	o := &Orchestrator{opener: opener, nowFunc: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunAll extracts from every source and returns one reading per source in
// input order. It returns once each source has finished or exceeded
// timeout; a slow or failing source never affects its siblings.
func (o *Orchestrator) RunAll(ctx context.Context, extractors []source.Extractor, timeout time.Duration) ([]model.SourceReading, model.ScrapeMetrics) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var (
		mu       sync.Mutex
		readings = make([]model.SourceReading, len(extractors))
		metrics  = model.NewScrapeMetrics()
	)

	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	for i, ex := range extractors {
		g.Go(func() error {
			start := o.nowFunc()
			r := o.runOne(ctx, ex, timeout)
			latency := o.nowFunc().Sub(start)

			logSource(r, latency)

			mu.Lock()
			readings[i] = r
			metrics.Record(r, latency)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	monitoring.LogSummary(monitoring.Summarize(metrics))
	return readings, metrics
}

func (o *Orchestrator) runOne(ctx context.Context, ex source.Extractor, timeout time.Duration) model.SourceReading {
	var breaker *resilience.Breaker
	if o.breakers != nil {
		breaker = o.breakers.Get(ex.ID())
		if err := breaker.Allow(); err != nil {
			return model.FailedReading(ex.ID(), model.ErrorNavigationFailed, "circuit open", o.nowFunc().UTC())
		}
	}

	r := o.extract(ctx, ex, timeout)
	if breaker != nil {
		breaker.Record(r.Succeeded())
	}
	return r
}

// extract owns the session for one source. The session is closed on every
// path, including the timeout path where Extract is still running.
func (o *Orchestrator) extract(ctx context.Context, ex source.Extractor, timeout time.Duration) model.SourceReading {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := o.opener.Open(tctx)
	if err != nil {
		return o.failure(tctx, ex.ID(), fmt.Sprintf("open session: %v", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			zap.L().Debug("scrape: close session", zap.String("source", ex.ID()), zap.Error(err))
		}
	}()

	done := make(chan model.SourceReading, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- model.FailedReading(ex.ID(), model.ErrorNavigationFailed, fmt.Sprintf("panic: %v", rec), o.nowFunc().UTC())
			}
		}()
		done <- ex.Extract(tctx, sess)
	}()

	select {
	case r := <-done:
		return r
	case <-tctx.Done():
		// Closing aborts the in-flight navigation; the reading it may
		// still produce is dropped.
		_ = sess.Close()
		return o.failure(tctx, ex.ID(), "")
	}
}

func (o *Orchestrator) failure(ctx context.Context, id, detail string) model.SourceReading {
	kind := model.ErrorNavigationFailed
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = model.ErrorTimeout
		if detail == "" {
			detail = "source exceeded timeout"
		}
	} else if detail == "" && ctx.Err() != nil {
		detail = ctx.Err().Error()
	}
	return model.FailedReading(id, kind, detail, o.nowFunc().UTC())
}

func logSource(r model.SourceReading, latency time.Duration) {
	fields := []zap.Field{
		zap.String("source", r.SourceID),
		zap.Int64("latency_ms", latency.Milliseconds()),
	}
	switch {
	case r.Error == model.ErrorNone:
		zap.L().Debug("scrape: source ok", append(fields, zap.Float64p("value", r.Value))...)
	case r.Succeeded():
		zap.L().Info("scrape: source degraded", append(fields,
			zap.String("error", string(r.Error)),
			zap.String("detail", r.ErrorDetail),
		)...)
	default:
		zap.L().Warn("scrape: source failed", append(fields,
			zap.String("error", string(r.Error)),
			zap.String("detail", r.ErrorDetail),
		)...)
	}
}
