package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStructureChanged AlertType = "structure_changed"
	AlertSourceBroken     AlertType = "source_broken"
	AlertStageFailed      AlertType = "stage_failed"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a HealthSnapshot and sends alerts via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks the snapshot and returns any alerts. Broken sources are
// high severity once their count reaches the configured threshold.
func (a *Alerter) Evaluate(snap *HealthSnapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	if len(snap.FormatChanged) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStructureChanged,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d source(s) changed format and need new parsing rules: %s",
				len(snap.FormatChanged), strings.Join(snap.FormatChanged, ", "),
			),
			Details:   map[string]any{"sources": snap.FormatChanged},
			Timestamp: now,
		})
	}

	if len(snap.Broken) > 0 {
		severity := "medium"
		if a.cfg.FailedSourcesAlert > 0 && len(snap.Broken) >= a.cfg.FailedSourcesAlert {
			severity = "high"
		}
		alerts = append(alerts, Alert{
			Type:     AlertSourceBroken,
			Severity: severity,
			Message: fmt.Sprintf(
				"%d source(s) broken (%d active of %d registered)",
				len(snap.Broken), snap.Sources.Active, snap.Sources.Total,
			),
			Details: map[string]any{
				"sources": snap.Broken,
				"issues":  snap.Sources.Issues,
			},
			Timestamp: now,
		})
	}

	for _, f := range snap.FailedStages {
		alerts = append(alerts, Alert{
			Type:     AlertStageFailed,
			Severity: "high",
			Message:  fmt.Sprintf("stage %s failed in last %dh: %s", f.Stage, snap.LookbackHours, f.Error),
			Details: map[string]any{
				"run_id":     f.RunID,
				"stage":      f.Stage,
				"started_at": f.StartedAt,
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
