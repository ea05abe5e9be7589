package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/registry"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailedSourcesAlert: 3})

	snap := &HealthSnapshot{
		Sources:       registry.Health{Total: 12, Active: 12},
		StageRuns:     5,
		StagePartial:  1,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_StructureChanged(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailedSourcesAlert: 3})

	snap := &HealthSnapshot{
		FormatChanged: []string{"hk-gld-1a2b3c", "sg-gebiz-4d5e6f"},
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStructureChanged, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "hk-gld-1a2b3c, sg-gebiz-4d5e6f")
}

func TestAlerter_Evaluate_SourceBrokenSeverity(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailedSourcesAlert: 3})

	tests := []struct {
		name     string
		broken   []string
		severity string
	}{
		{"below threshold", []string{"a", "b"}, "medium"},
		{"at threshold", []string{"a", "b", "c"}, "high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &HealthSnapshot{
				Sources:       registry.Health{Total: 10, Active: 10 - len(tt.broken), Failing: len(tt.broken)},
				Broken:        tt.broken,
				LookbackHours: 24,
			}
			alerts := a.Evaluate(snap)
			require.Len(t, alerts, 1)
			assert.Equal(t, AlertSourceBroken, alerts[0].Type)
			assert.Equal(t, tt.severity, alerts[0].Severity)
		})
	}
}

func TestAlerter_Evaluate_StageFailed(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	a.now = func() time.Time { return time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC) }

	snap := &HealthSnapshot{
		FailedStages: []FailedStage{
			{RunID: "r1", Stage: "ingest", Error: "store: database is locked"},
			{RunID: "r2", Stage: "digest", Error: "digest: save"},
		},
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertStageFailed, alerts[0].Type)
	assert.Equal(t, "stage ingest failed in last 24h: store: database is locked", alerts[0].Message)
	assert.Equal(t, "r2", alerts[1].Details["run_id"])
	assert.Equal(t, time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), alerts[1].Timestamp)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertSourceBroken, Severity: "high", Message: "test alert 1"},
		{Type: AlertStageFailed, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertSourceBroken, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertStageFailed, Message: "test"}})
	assert.Equal(t, 0, sent)
}
