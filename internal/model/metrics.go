package model

import "time"

// ScrapeMetrics summarises one orchestration batch.
type ScrapeMetrics struct {
	TotalAttempts      int                  `json:"total_attempts" yaml:"total_attempts"`
	Successes          int                  `json:"successes" yaml:"successes"`
	Failures           int                  `json:"failures" yaml:"failures"`
	PerSourceLatencyMs map[string]int64     `json:"per_source_latency_ms" yaml:"per_source_latency_ms"`
	PerSourceError     map[string]ErrorKind `json:"per_source_error" yaml:"per_source_error"`
}

// NewScrapeMetrics returns metrics with initialised maps.
func NewScrapeMetrics() ScrapeMetrics {
	return ScrapeMetrics{
		PerSourceLatencyMs: make(map[string]int64),
		PerSourceError:     make(map[string]ErrorKind),
	}
}

// Record adds one source outcome.
func (m *ScrapeMetrics) Record(r SourceReading, latency time.Duration) {
	if m.PerSourceLatencyMs == nil {
		m.PerSourceLatencyMs = make(map[string]int64)
	}
	if m.PerSourceError == nil {
		m.PerSourceError = make(map[string]ErrorKind)
	}
	m.TotalAttempts++
	m.PerSourceLatencyMs[r.SourceID] = latency.Milliseconds()
	m.PerSourceError[r.SourceID] = r.Error
	if r.Succeeded() {
		m.Successes++
	} else {
		m.Failures++
	}
}

// SuccessRate is successes over attempts, 0 when nothing ran.
func (m ScrapeMetrics) SuccessRate() float64 {
	if m.TotalAttempts == 0 {
		return 0
	}
	return float64(m.Successes) / float64(m.TotalAttempts)
}

// AvgSuccessLatencyMs averages latency over successful sources only.
func (m ScrapeMetrics) AvgSuccessLatencyMs() float64 {
	var total int64
	var n int
	for id, ms := range m.PerSourceLatencyMs {
		if m.PerSourceError[id].Failed() {
			continue
		}
		total += ms
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}
