package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *clock) {
	clk := &clock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	b := NewBreaker("cnbc", BreakerConfig{Threshold: threshold, Cooldown: cooldown})
	b.nowFunc = clk.Now
	return b, clk
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for range 2 {
		require.NoError(t, b.Allow())
		b.Record(false)
	}
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 2, b.Failures())

	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreaker_SuccessResets(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.Record(false)
	b.Record(false)
	b.Record(true)
	assert.Equal(t, 0, b.Failures())
	b.Record(false)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clk := newTestBreaker(1, time.Minute)

	b.Record(false)
	require.ErrorIs(t, b.Allow(), ErrOpen)

	clk.Advance(time.Minute)
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Allow())
	assert.ErrorIs(t, b.Allow(), ErrOpen, "only one probe while half-open")

	b.Record(true)
	assert.Equal(t, Closed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clk := newTestBreaker(1, time.Minute)

	b.Record(false)
	clk.Advance(2 * time.Minute)
	require.NoError(t, b.Allow())
	b.Record(false)

	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreaker_OnStateChange(t *testing.T) {
	var got []string
	b := NewBreaker("yahoo", BreakerConfig{
		Threshold: 1,
		OnStateChange: func(name string, from, to State) {
			got = append(got, name+":"+from.String()+"->"+to.String())
		},
	})
	b.Record(false)
	assert.Equal(t, []string{"yahoo:closed->open"}, got)
}

func TestBreakers_GetAndSnapshot(t *testing.T) {
	bs := NewBreakers(BreakerConfig{Threshold: 1})

	a := bs.Get("yahoo")
	assert.Same(t, a, bs.Get("yahoo"))
	bs.Get("cnbc").Record(false)

	snap := bs.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, BreakerStatus{Name: "cnbc", State: "open", Failures: 1}, snap[0])
	assert.Equal(t, BreakerStatus{Name: "yahoo", State: "closed", Failures: 0}, snap[1])
}

func TestBreakers_ConcurrentGet(t *testing.T) {
	bs := NewBreakers(BreakerConfig{})
	var wg sync.WaitGroup
	seen := make([]*Breaker, 16)
	for i := range seen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen[i] = bs.Get("google")
		}()
	}
	wg.Wait()
	for _, b := range seen {
		assert.Same(t, seen[0], b)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
