package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-ingest/internal/config"
)

// Checker evaluates the latest ingest cycles on a timer and fires alerts.
// Window alerts fire once per new cycle; a tick with no new cycle can only
// raise the stale ingestion alert.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	lastCycleID string
}

// NewChecker creates a cycle checker. Run must not be called concurrently.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run checks the recent cycle window every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	every := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if every <= 0 {
		every = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: watching ingest cycles",
		zap.Duration("every", every),
		zap.Int("window_cycles", c.window()),
	)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: cycle watch stopped", zap.String("last_cycle_id", c.lastCycleID))
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check evaluates the cycle window once and returns the number of alerts
// raised.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.window())
	if err != nil {
		log.Error("monitoring: failed to read recent cycles", zap.Error(err))
		return 0
	}
	if snap.Cycles == 0 {
		log.Debug("monitoring: no cycles recorded yet")
		return 0
	}
	fresh := snap.LastCycleID != c.lastCycleID
	c.lastCycleID = snap.LastCycleID

	alerts := c.alerter.Evaluate(snap)
	if !fresh {
		alerts = staleOnly(alerts)
		if len(alerts) == 0 {
			log.Debug("monitoring: no new cycle since last check", zap.String("cycle_id", snap.LastCycleID))
			return 0
		}
	}
	if len(alerts) == 0 {
		log.Debug("monitoring: cycle window healthy",
			zap.String("cycle_id", snap.LastCycleID),
			zap.Int("cycles", snap.Cycles),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: cycle window raised alerts",
		zap.String("cycle_id", snap.LastCycleID),
		zap.Int("cycles", snap.Cycles),
		zap.Float64("zero_sample_rate", snap.ZeroSampleRate),
		zap.Int("alerts", len(alerts)),
		zap.Int("sent", sent),
	)
	return len(alerts)
}

func (c *Checker) window() int {
	if c.cfg.LookbackCycles <= 0 {
		return 20
	}
	return c.cfg.LookbackCycles
}

func staleOnly(alerts []Alert) []Alert {
	var out []Alert
	for _, a := range alerts {
		if a.Type == AlertStaleIngestion {
			out = append(out, a)
		}
	}
	return out
}
