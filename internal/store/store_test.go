package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-ingest/internal/model"
)

func ptr(v float64) *float64 { return &v }

func testCycle(id string, started time.Time) *model.Cycle {
	metrics := model.NewScrapeMetrics()
	metrics.Record(model.SourceReading{SourceID: "yahoo", Value: ptr(20.1)}, 900*time.Millisecond)
	metrics.Record(model.SourceReading{SourceID: "cnbc", Value: ptr(19.9)}, 1200*time.Millisecond)
	metrics.Record(model.FailedReading("google", model.ErrorNavigationFailed, "dns", started), 50*time.Millisecond)

	return &model.Cycle{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Result: model.ConsensusResult{
			ConsensusValue: 20.0,
			SampleCount:    2,
			Spread:         model.Spread{Min: 19.9, Max: 20.1, Range: 0.2},
			Reliability:    model.ReliabilityHigh,
			Band:           "normal",
		},
		NewItems: []model.ContentItem{
			{Title: "Volatility eases into the close", URL: "https://finance.example/a", PublishedAt: started.Add(-time.Hour), SourceID: "yahoo"},
			{Title: "Options traders trim hedges", URL: "https://finance.example/b", SourceID: "cnbc", Author: "J. Doe"},
		},
		Metrics: metrics,
	}
}

func TestSummarize(t *testing.T) {
	c := testCycle("c1", time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC))
	sum := Summarize(c)

	assert.Equal(t, "c1", sum.ID)
	assert.Equal(t, 2, sum.SampleCount)
	assert.Equal(t, model.ReliabilityHigh, sum.Reliability)
	assert.InDelta(t, 2.0/3.0, sum.SuccessRate, 1e-9)
	assert.Equal(t, 2, sum.NewItems)
	assert.Equal(t, 0.2, sum.SpreadRange)
}

func TestItemRows_DedupAndNullDate(t *testing.T) {
	items := []model.ContentItem{
		{Title: "Same", URL: "https://x.test/1", SourceID: "a"},
		{Title: "same!", URL: "https://x.test/1", SourceID: "b"},
		{Title: "Dated", URL: "https://x.test/2", PublishedAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)},
	}
	rows := itemRows(items)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].PublishedAt)
	require.NotNil(t, rows[1].PublishedAt)
	assert.Equal(t, "datedhttpsxtest220261016", rows[1].Fingerprint)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, clampLimit(0))
	assert.Equal(t, 5, clampLimit(5))
}
