package model

// Reliability grades how much a consensus value can be trusted.
type Reliability string

const (
	ReliabilityLow    Reliability = "LOW"
	ReliabilityMedium Reliability = "MEDIUM"
	ReliabilityHigh   Reliability = "HIGH"
)

// Spread describes how far apart the contributing sources were.
type Spread struct {
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Range float64 `json:"range" yaml:"range"`
}

// ConsensusResult is the reconciled value for one cycle. SampleCount == 0
// means no source produced a value; callers branch on it.
type ConsensusResult struct {
	ConsensusValue float64         `json:"consensus_value" yaml:"consensus_value"`
	SampleCount    int             `json:"sample_count" yaml:"sample_count"`
	Spread         Spread          `json:"spread" yaml:"spread"`
	Reliability    Reliability     `json:"reliability" yaml:"reliability"`
	Band           string          `json:"band,omitempty" yaml:"band,omitempty"`
	PerSource      []SourceReading `json:"per_source" yaml:"per_source"`
}

// HasConsensus reports whether at least one source contributed a value.
func (r ConsensusResult) HasConsensus() bool {
	return r.SampleCount > 0
}
