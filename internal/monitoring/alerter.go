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

	"github.com/leadsignal/signals-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDLQBacklog     AlertType = "dlq_backlog"
	AlertBudgetPressure AlertType = "budget_pressure"
	AlertIngestStalled  AlertType = "ingest_stalled"
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
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Parked observations piling up means replays are failing or nobody is
	// running them.
	if a.cfg.DLQDepthThreshold > 0 && snap.DLQDepth >= a.cfg.DLQDepthThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDLQBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"Dead letter queue depth %d exceeds threshold %d",
				snap.DLQDepth, a.cfg.DLQDepthThreshold,
			),
			Details: map[string]any{
				"dlq_depth": snap.DLQDepth,
				"threshold": a.cfg.DLQDepthThreshold,
			},
			Timestamp: now,
		})
	}

	// Provider budgets near their daily ceiling.
	if a.cfg.BudgetUsedThreshold > 0 {
		for provider, used := range snap.BudgetUsed {
			remaining, ok := snap.BudgetRemaining[provider]
			if !ok || remaining < 0 {
				continue // unlimited
			}
			total := used + remaining
			if total == 0 {
				continue
			}
			fraction := float64(used) / float64(total)
			if fraction >= a.cfg.BudgetUsedThreshold {
				alerts = append(alerts, Alert{
					Type:     AlertBudgetPressure,
					Severity: "medium",
					Message: fmt.Sprintf(
						"Provider %s has used %.0f%% of its daily call budget (%d of %d)",
						provider, fraction*100, used, total,
					),
					Details: map[string]any{
						"provider":  provider,
						"used":      used,
						"remaining": remaining,
					},
					Timestamp: now,
				})
			}
		}
	}

	// Companies with zero active postings across the board usually means the
	// provider sync stopped, not that every role got filled at once.
	if snap.Companies > 0 && snap.ActivePostings == 0 {
		alerts = append(alerts, Alert{
			Type:     AlertIngestStalled,
			Severity: "high",
			Message: fmt.Sprintf(
				"No active postings across %d companies",
				snap.Companies,
			),
			Details: map[string]any{
				"companies":         snap.Companies,
				"inactive_postings": snap.InactivePostings,
			},
			Timestamp: now,
		})
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
