package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-ingest/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLowSuccessRate AlertType = "low_success_rate"
	AlertNoConsensus    AlertType = "no_consensus"
	AlertSourceTripped  AlertType = "source_tripped"
	AlertStaleIngestion AlertType = "stale_ingestion"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Rate alerts need at least MinCycles cycles in the window.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	minCycles := a.cfg.MinCycles
	if minCycles <= 0 {
		minCycles = 3
	}
	enough := snap.Cycles >= minCycles

	if enough && a.cfg.SuccessRateThreshold > 0 && snap.MeanSuccessRate < a.cfg.SuccessRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertLowSuccessRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Mean source success rate %.1f%% is below threshold %.1f%% over the last %d cycles",
				snap.MeanSuccessRate*100, a.cfg.SuccessRateThreshold*100, snap.Cycles,
			),
			Details: map[string]any{
				"mean_success_rate": snap.MeanSuccessRate,
				"threshold":         a.cfg.SuccessRateThreshold,
				"cycles":            snap.Cycles,
			},
			Timestamp: now,
		})
	}

	if enough && a.cfg.ZeroSampleRateThreshold > 0 && snap.ZeroSampleRate > a.cfg.ZeroSampleRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertNoConsensus,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d of the last %d cycles produced no consensus (%.1f%% > %.1f%%)",
				snap.ZeroSampleCycles, snap.Cycles, snap.ZeroSampleRate*100, a.cfg.ZeroSampleRateThreshold*100,
			),
			Details: map[string]any{
				"zero_sample_cycles": snap.ZeroSampleCycles,
				"zero_sample_rate":   snap.ZeroSampleRate,
				"threshold":          a.cfg.ZeroSampleRateThreshold,
			},
			Timestamp: now,
		})
	}

	var tripped []string
	for _, b := range snap.Breakers {
		if b.State != "closed" {
			tripped = append(tripped, b.Name)
		}
	}
	if len(tripped) > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertSourceTripped,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d source(s) skipped by circuit breaker: %v", len(tripped), tripped),
			Details:   map[string]any{"sources": tripped},
			Timestamp: now,
		})
	}

	if a.cfg.CheckIntervalSecs > 0 && !snap.LastCycleAt.IsZero() {
		// Stale once several check intervals pass without a cycle.
		limit := 4 * time.Duration(a.cfg.CheckIntervalSecs) * time.Second
		if age := snap.CollectedAt.Sub(snap.LastCycleAt); age > limit {
			alerts = append(alerts, Alert{
				Type:     AlertStaleIngestion,
				Severity: "medium",
				Message:  fmt.Sprintf("Last cycle %s ran %s ago", snap.LastCycleID, age.Round(time.Second)),
				Details: map[string]any{
					"last_cycle_id": snap.LastCycleID,
					"age_secs":      int64(age.Seconds()),
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
