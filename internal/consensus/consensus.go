// Package consensus reduces per-source readings to one value with a spread
// and a reliability grade.
package consensus

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-ingest/internal/model"
)

// DefaultAgreementFraction is the largest range, as a fraction of the mean,
// at which two or more sources count as agreeing.
const DefaultAgreementFraction = 0.05

// Band labels the consensus value. Bands are ordered by Upper; a value
// falls in the first band whose Upper exceeds it. A zero Upper on the last
// band means it has no upper bound.
type Band struct {
	Name  string  `json:"name" yaml:"name" mapstructure:"name"`
	Upper float64 `json:"upper" yaml:"upper" mapstructure:"upper"`
}

// Policy holds the tunable parts of the reduction.
type Policy struct {
	AgreementFraction float64
	Bands             []Band
}

// DefaultPolicy has the default agreement fraction and no bands.
func DefaultPolicy() Policy {
	return Policy{AgreementFraction: DefaultAgreementFraction}
}

// Validate checks that bands are named and strictly ascending.
func (p Policy) Validate() error {
	if p.AgreementFraction < 0 || math.IsNaN(p.AgreementFraction) {
		return eris.Errorf("consensus: agreement fraction %v must be >= 0", p.AgreementFraction)
	}
	for i, b := range p.Bands {
		if b.Name == "" {
			return eris.Errorf("consensus: band %d has no name", i)
		}
		last := i == len(p.Bands)-1
		if b.Upper == 0 && last {
			continue
		}
		if i > 0 && b.Upper <= p.Bands[i-1].Upper {
			return eris.Errorf("consensus: band %q upper %v not above %v", b.Name, b.Upper, p.Bands[i-1].Upper)
		}
	}
	return nil
}

// Reduce computes the consensus over readings with a usable value. It never
// fails: with no usable values it returns SampleCount 0 and LOW.
func (p Policy) Reduce(readings []model.SourceReading) model.ConsensusResult {
	res := model.ConsensusResult{
		Reliability: model.ReliabilityLow,
		PerSource:   append([]model.SourceReading(nil), readings...),
	}

	var values []float64
	for _, r := range readings {
		if r.Value == nil || math.IsNaN(*r.Value) || math.IsInf(*r.Value, 0) {
			continue
		}
		values = append(values, *r.Value)
	}
	if len(values) == 0 {
		return res
	}

	lo, hi, sum := values[0], values[0], 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	mean := sum / float64(len(values))

	res.ConsensusValue = mean
	res.SampleCount = len(values)
	res.Spread = model.Spread{Min: lo, Max: hi, Range: hi - lo}

	fraction := p.AgreementFraction
	if fraction <= 0 {
		fraction = DefaultAgreementFraction
	}
	switch {
	case len(values) >= 2 && res.Spread.Range < fraction*math.Abs(mean):
		res.Reliability = model.ReliabilityHigh
	case len(values) >= 2:
		res.Reliability = model.ReliabilityMedium
	}

	res.Band = p.BandFor(mean)
	return res
}

// BandFor returns the label for v, or "" when no band covers it.
func (p Policy) BandFor(v float64) string {
	for i, b := range p.Bands {
		if v < b.Upper || (b.Upper == 0 && i == len(p.Bands)-1) {
			return b.Name
		}
	}
	return ""
}
