// Package store persists completed ingestion cycles and the content items
// they delivered.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-ingest/internal/dedup"
	"github.com/sells-group/market-ingest/internal/model"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a cycle does not exist.
var ErrNotFound = eris.New("store: not found")

// DefaultListLimit caps ListCycles when no limit is given.
const DefaultListLimit = 50

// CycleSummary is the flat row kept per cycle for listing and monitoring.
type CycleSummary struct {
	ID             string            `json:"id" yaml:"id"`
	StartedAt      time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time         `json:"finished_at" yaml:"finished_at"`
	ConsensusValue float64           `json:"consensus_value" yaml:"consensus_value"`
	SampleCount    int               `json:"sample_count" yaml:"sample_count"`
	Reliability    model.Reliability `json:"reliability" yaml:"reliability"`
	Band           string            `json:"band,omitempty" yaml:"band,omitempty"`
	SpreadRange    float64           `json:"spread_range" yaml:"spread_range"`
	SuccessRate    float64           `json:"success_rate" yaml:"success_rate"`
	NewItems       int               `json:"new_items" yaml:"new_items"`
}

// Summarize flattens a cycle into its summary row.
func Summarize(c *model.Cycle) CycleSummary {
	return CycleSummary{
		ID:             c.ID,
		StartedAt:      c.StartedAt.UTC(),
		FinishedAt:     c.FinishedAt.UTC(),
		ConsensusValue: c.Result.ConsensusValue,
		SampleCount:    c.Result.SampleCount,
		Reliability:    c.Result.Reliability,
		Band:           c.Result.Band,
		SpreadRange:    c.Result.Spread.Range,
		SuccessRate:    c.Metrics.SuccessRate(),
		NewItems:       len(c.NewItems),
	}
}

// Store defines the persistence interface for ingestion cycles.
type Store interface {
	// SaveCycle writes the cycle and its new items. Saving the same cycle
	// again replaces its row; items already stored are skipped.
	SaveCycle(ctx context.Context, c *model.Cycle) error
	GetCycle(ctx context.Context, id string) (*model.Cycle, error)
	// ListCycles returns the most recent cycles first.
	ListCycles(ctx context.Context, limit int) ([]CycleSummary, error)
	CountItems(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the store named by driver.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

type itemRow struct {
	Fingerprint string
	SourceID    string
	Title       string
	URL         string
	PublishedAt *time.Time
	Author      string
}

func itemRows(items []model.ContentItem) []itemRow {
	rows := make([]itemRow, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		fp := dedup.ItemFingerprint(it)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		var published *time.Time
		if !it.PublishedAt.IsZero() {
			t := it.PublishedAt.UTC()
			published = &t
		}
		rows = append(rows, itemRow{
			Fingerprint: fp,
			SourceID:    it.SourceID,
			Title:       it.Title,
			URL:         it.URL,
			PublishedAt: published,
			Author:      it.Author,
		})
	}
	return rows
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
