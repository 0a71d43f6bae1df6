package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertIncompleteRate      AlertType = "incomplete_rate"
	AlertProviderFailureRate AlertType = "provider_failure_rate"
	AlertProviderFailing     AlertType = "provider_failing"
)

// minSamples is the number of finished calls required before a rate alert
// can fire.
const minSamples = 5

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
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.IncompleteRateThreshold > 0 && snap.ConsensusTotal >= minSamples &&
		snap.IncompleteRate > a.cfg.IncompleteRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertIncompleteRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Incomplete consensus rate %.1f%% exceeds threshold %.1f%% (%d of %d in last %dh)",
				snap.IncompleteRate*100, a.cfg.IncompleteRateThreshold*100,
				snap.ConsensusIncomplete, snap.ConsensusTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"incomplete_rate": snap.IncompleteRate,
				"threshold":       a.cfg.IncompleteRateThreshold,
				"incomplete":      snap.ConsensusIncomplete,
				"total":           snap.ConsensusTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.FailureRateThreshold > 0 && snap.ProviderCalls >= minSamples &&
		snap.ProviderFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertProviderFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Provider failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d calls in last %dh)",
				snap.ProviderFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.ProviderFailures, snap.ProviderCalls, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.ProviderFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.ProviderFailures,
				"calls":        snap.ProviderCalls,
			},
			Timestamp: now,
		})
	}

	if a.cfg.ProviderFailureCount > 0 {
		names := make([]string, 0, len(snap.FailuresBySource))
		for name := range snap.FailuresBySource {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			n := snap.FailuresBySource[name]
			if n < a.cfg.ProviderFailureCount {
				continue
			}
			alerts = append(alerts, Alert{
				Type:     AlertProviderFailing,
				Severity: "high",
				Message:  fmt.Sprintf("Provider %s failed %d time(s) in last %dh", name, n, snap.LookbackHours),
				Details: map[string]any{
					"provider": name,
					"failures": n,
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
