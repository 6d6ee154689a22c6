package model

import "time"

// Cycle is everything one ingestion run produced, handed to collaborators
// for persistence and delivery.
type Cycle struct {
	ID         string          `json:"id" yaml:"id"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
	Result     ConsensusResult `json:"result" yaml:"result"`
	NewItems   []ContentItem   `json:"new_items" yaml:"new_items"`
	Metrics    ScrapeMetrics   `json:"metrics" yaml:"metrics"`
	Summary    string          `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Duration is the wall time of the cycle.
func (c Cycle) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}
