package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/market-ingest/internal/model"
)

func TestSummarize(t *testing.T) {
	m := model.NewScrapeMetrics()
	v := 20.0
	m.Record(model.SourceReading{SourceID: "yahoo", Value: &v}, 800*time.Millisecond)
	m.Record(model.SourceReading{SourceID: "cnbc", Error: model.ErrorPartialExtraction}, 1200*time.Millisecond)
	m.Record(model.FailedReading("google", model.ErrorTimeout, "", time.Time{}), 45*time.Second)

	s := Summarize(m)
	assert.Equal(t, 3, s.TotalAttempts)
	assert.Equal(t, 2, s.Successes)
	assert.Equal(t, 1, s.Failures)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, 1000, s.AvgSuccessLatencyMs, 1e-9)
	assert.Equal(t, "google", s.SlowestSource)
	assert.Equal(t, int64(45000), s.SlowestLatencyMs)
	assert.Equal(t, map[string]string{"cnbc": "partial_extraction", "google": "timeout"}, s.Degraded)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(model.NewScrapeMetrics())
	assert.Equal(t, 0, s.TotalAttempts)
	assert.Zero(t, s.SuccessRate)
	assert.Nil(t, s.Degraded)

	assert.NotPanics(t, func() { LogSummary(s) })
}
