package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-ingest/internal/config"
	"github.com/sells-group/market-ingest/internal/consensus"
	"github.com/sells-group/market-ingest/internal/dedup"
	"github.com/sells-group/market-ingest/internal/pipeline"
	"github.com/sells-group/market-ingest/internal/resilience"
	"github.com/sells-group/market-ingest/internal/scrape"
	"github.com/sells-group/market-ingest/internal/source"
	"github.com/sells-group/market-ingest/internal/stealth"
	"github.com/sells-group/market-ingest/internal/store"
)

// ingestEnv bundles everything a cycle needs. Store may be nil when the
// database could not be opened; cycles still run.
type ingestEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Opener   stealth.Opener
	Breakers *resilience.Breakers
	Seen     *dedup.Store
}

// Close releases resources held by the environment.
func (e *ingestEnv) Close() {
	if c, ok := e.Opener.(io.Closer); ok {
		if err := c.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initIngest validates config for mode and builds the cycle environment.
// Callers should defer env.Close().
func initIngest(ctx context.Context, mode string) (*ingestEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	opener, err := stealth.NewOpener(stealthOptions(cfg))
	if err != nil {
		return nil, eris.Wrap(err, "init stealth")
	}

	seen, err := dedup.Open(cfg.Ingest.DedupPath, cfg.Ingest.DedupCapacity)
	if err != nil {
		zap.L().Warn("dedup store unreadable, starting empty",
			zap.String("path", cfg.Ingest.DedupPath),
			zap.String("error_kind", "storage_fault"),
			zap.Error(err),
		)
	}

	policy, err := consensusPolicy(cfg.Consensus)
	if err != nil {
		return nil, err
	}

	var orchOpts []scrape.Option
	if cfg.Ingest.Concurrency > 0 {
		orchOpts = append(orchOpts, scrape.WithConcurrency(cfg.Ingest.Concurrency))
	}
	var breakers *resilience.Breakers
	if cfg.Breaker.Enabled {
		breakers = resilience.NewBreakers(resilience.BreakerConfig{
			Threshold: cfg.Breaker.Threshold,
			Cooldown:  time.Duration(cfg.Breaker.CooldownSecs) * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				zap.L().Warn("source breaker changed state",
					zap.String("source", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
		orchOpts = append(orchOpts, scrape.WithBreakers(breakers))
	}

	p := pipeline.New(
		scrape.New(opener, orchOpts...),
		seen,
		pipeline.WithPolicy(policy),
		pipeline.WithSourceOptions(sourceOptions(cfg)),
	)

	env := &ingestEnv{Pipeline: p, Opener: opener, Breakers: breakers, Seen: seen}

	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("store unavailable, cycles will not be persisted", zap.Error(err))
		return env, nil
	}
	env.Store = st
	return env, nil
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if cfg.Store.Driver == store.DriverSQLite && dsn != "" && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, eris.Wrap(err, "create store directory")
		}
	}

	st, err := store.Open(ctx, cfg.Store.Driver, dsn, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func stealthOptions(c *config.Config) stealth.Options {
	return stealth.Options{
		Driver: c.Stealth.Driver,
		Profile: stealth.ProfileOptions{
			UserAgents:     c.Stealth.UserAgents,
			AcceptLanguage: c.Stealth.AcceptLanguage,
		},
		ControlURL: c.Stealth.ControlURL,
		Bin:        c.Stealth.Bin,
		Headless:   c.Stealth.Headless,
	}
}

func sourceOptions(c *config.Config) source.Options {
	return source.Options{
		NavTimeout:     time.Duration(c.Ingest.NavTimeoutSecs) * time.Second,
		ConsentTimeout: time.Duration(c.Ingest.ConsentTimeoutMs) * time.Millisecond,
		DelayMin:       time.Duration(c.Stealth.DelayMinMs) * time.Millisecond,
		DelayMax:       time.Duration(c.Stealth.DelayMaxMs) * time.Millisecond,
		MaxItems:       c.Ingest.MaxItems,
	}
}

func consensusPolicy(c config.ConsensusConfig) (consensus.Policy, error) {
	p := consensus.Policy{AgreementFraction: c.AgreementFraction}
	for _, b := range c.Bands {
		p.Bands = append(p.Bands, consensus.Band{Name: b.Name, Upper: b.Upper})
	}
	if err := p.Validate(); err != nil {
		return consensus.Policy{}, eris.Wrap(err, "consensus bands")
	}
	return p, nil
}

func pipelineConfig(c *config.Config, sources []string) pipeline.Config {
	if len(sources) == 0 {
		sources = c.Ingest.Sources
	}
	return pipeline.Config{
		Sources:                  sources,
		PerSourceTimeout:         c.Ingest.Timeout(),
		MaxRelatedItemsPerSource: c.Ingest.MaxItems,
		DedupCapacity:            c.Ingest.DedupCapacity,
	}
}
