package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/resilience"
	"github.com/sells-group/market-ingest/internal/store"
)

// MetricsSnapshot holds a point-in-time view of ingestion health.
type MetricsSnapshot struct {
	Cycles           int     `json:"cycles"`
	ZeroSampleCycles int     `json:"zero_sample_cycles"`
	ZeroSampleRate   float64 `json:"zero_sample_rate"`
	HighReliability  int     `json:"high_reliability_cycles"`
	MeanSuccessRate  float64 `json:"mean_success_rate"`
	MeanSampleCount  float64 `json:"mean_sample_count"`
	NewItems         int     `json:"new_items"`

	LastCycleID        string    `json:"last_cycle_id,omitempty"`
	LastCycleAt        time.Time `json:"last_cycle_at,omitempty"`
	LastConsensusValue float64   `json:"last_consensus_value"`

	Breakers []resilience.BreakerStatus `json:"breakers,omitempty"`

	LookbackCycles int       `json:"lookback_cycles"`
	CollectedAt    time.Time `json:"collected_at"`
}

// CycleLister is the part of store.Store the collector reads.
type CycleLister interface {
	ListCycles(ctx context.Context, limit int) ([]store.CycleSummary, error)
}

// Collector gathers metrics from stored cycles and live breakers.
type Collector struct {
	cycles   CycleLister
	breakers *resilience.Breakers
}

// NewCollector creates a new metrics collector. breakers may be nil.
func NewCollector(cycles CycleLister, breakers *resilience.Breakers) *Collector {
	return &Collector{cycles: cycles, breakers: breakers}
}

// Collect reduces the most recent lookback cycles into a snapshot.
func (c *Collector) Collect(ctx context.Context, lookback int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackCycles: lookback,
		CollectedAt:    time.Now().UTC(),
	}

	cycles, err := c.cycles.ListCycles(ctx, lookback)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list cycles")
	}

	snap.Cycles = len(cycles)
	var successRate, samples float64
	for _, cy := range cycles {
		if cy.SampleCount == 0 {
			snap.ZeroSampleCycles++
		}
		if cy.Reliability == model.ReliabilityHigh {
			snap.HighReliability++
		}
		successRate += cy.SuccessRate
		samples += float64(cy.SampleCount)
		snap.NewItems += cy.NewItems
	}
	if snap.Cycles > 0 {
		n := float64(snap.Cycles)
		snap.MeanSuccessRate = successRate / n
		snap.MeanSampleCount = samples / n
		snap.ZeroSampleRate = float64(snap.ZeroSampleCycles) / n

		// ListCycles returns newest first.
		snap.LastCycleID = cycles[0].ID
		snap.LastCycleAt = cycles[0].StartedAt
		snap.LastConsensusValue = cycles[0].ConsensusValue
	}

	if c.breakers != nil {
		snap.Breakers = c.breakers.Snapshot()
	}
	return snap, nil
}
