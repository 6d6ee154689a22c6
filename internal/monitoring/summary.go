// Package monitoring reports on scrape batches and on the health of recent
// cycles.
package monitoring

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/market-ingest/internal/model"
)

// Summary is the loggable digest of one scrape batch.
type Summary struct {
	TotalAttempts       int               `json:"total_attempts"`
	Successes           int               `json:"successes"`
	Failures            int               `json:"failures"`
	SuccessRate         float64           `json:"success_rate"`
	AvgSuccessLatencyMs float64           `json:"avg_success_latency_ms"`
	SlowestSource       string            `json:"slowest_source,omitempty"`
	SlowestLatencyMs    int64             `json:"slowest_latency_ms,omitempty"`
	Degraded            map[string]string `json:"degraded,omitempty"`
}

// Summarize digests batch metrics.
func Summarize(m model.ScrapeMetrics) Summary {
	s := Summary{
		TotalAttempts:       m.TotalAttempts,
		Successes:           m.Successes,
		Failures:            m.Failures,
		SuccessRate:         m.SuccessRate(),
		AvgSuccessLatencyMs: m.AvgSuccessLatencyMs(),
	}

	ids := make([]string, 0, len(m.PerSourceLatencyMs))
	for id := range m.PerSourceLatencyMs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if ms := m.PerSourceLatencyMs[id]; ms > s.SlowestLatencyMs {
			s.SlowestSource, s.SlowestLatencyMs = id, ms
		}
	}

	for id, kind := range m.PerSourceError {
		if kind == model.ErrorNone {
			continue
		}
		if s.Degraded == nil {
			s.Degraded = make(map[string]string)
		}
		s.Degraded[id] = string(kind)
	}
	return s
}

// LogSummary writes the digest at info, or warn when nothing succeeded.
func LogSummary(s Summary) {
	fields := []zap.Field{
		zap.Int("attempts", s.TotalAttempts),
		zap.Int("successes", s.Successes),
		zap.Int("failures", s.Failures),
		zap.Float64("success_rate", s.SuccessRate),
		zap.Float64("avg_success_latency_ms", s.AvgSuccessLatencyMs),
	}
	if s.SlowestSource != "" {
		fields = append(fields,
			zap.String("slowest_source", s.SlowestSource),
			zap.Int64("slowest_latency_ms", s.SlowestLatencyMs),
		)
	}
	if len(s.Degraded) > 0 {
		fields = append(fields, zap.Any("degraded", s.Degraded))
	}

	if s.TotalAttempts > 0 && s.Successes == 0 {
		zap.L().Warn("monitoring: scrape batch had no successes", fields...)
		return
	}
	zap.L().Info("monitoring: scrape batch complete", fields...)
}
