package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/model"
)

func sampleDigest() *model.Digest {
	days := 2
	closes := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	return &model.Digest{
		ID:        "d-1",
		Date:      "2026-03-02",
		Subject:   "HK+SG Tender Daily Digest · 2026-03-02 · 1 Priority tender",
		Narrative: "One strong events tender.",
		Sections: []model.DigestSection{{
			Jurisdiction: model.JurisdictionHK,
			Entries: []model.DigestEntry{{
				Rank:          1,
				TenderID:      "hk-1",
				Title:         "Mid-Autumn Lantern Carnival",
				Agency:        "LCSD",
				Jurisdiction:  model.JurisdictionHK,
				TenderRef:     "LCSD/2026/17",
				Label:         model.LabelPriority,
				OverallScore:  0.82,
				ClosingDate:   &closes,
				DaysRemaining: &days,
				Budget:        "HK$1,200,000",
				Rationale:     "Core events work for a known agency.",
				Actions:       Actions(model.LabelPriority),
			}},
		}},
		Stats: model.DigestStats{
			NewTendersTotal: 3,
			HKCount:         2,
			SGCount:         1,
			SourcesActive:   4,
			SourcesFailed:   1,
			SourceIssues:    []string{"hk-down: broken"},
		},
	}
}

func TestKafkaSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaSink{w: w, topic: "tender-digests"}

	require.NoError(t, k.Publish(context.Background(), sampleDigest()))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "2026-03-02", string(msg.Key))

	var got model.Digest
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "hk-1", got.Sections[0].Entries[0].TenderID)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "subject", msg.Headers[0].Key)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteError(t *testing.T) {
	k := &KafkaSink{w: &fakeWriter{err: errors.New("leader not available")}, topic: "tender-digests"}
	err := k.Publish(context.Background(), sampleDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tender-digests")
}

func TestNewKafkaSink(t *testing.T) {
	_, err := NewKafkaSink(config.KafkaConfig{DigestTopic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	k, err := NewKafkaSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}, DigestTopic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "kafka", k.Name())
}

func TestWebhookSink(t *testing.T) {
	var got model.Digest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookSink(srv.URL).Publish(context.Background(), sampleDigest()))
	assert.Equal(t, "2026-03-02", got.Date)
}

func fastWebhookSink(url string) *WebhookSink {
	s := NewWebhookSink(url)
	s.retry.InitialBackoff = time.Millisecond
	s.retry.MaxBackoff = 5 * time.Millisecond
	return s
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := fastWebhookSink(srv.URL).Publish(context.Background(), sampleDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookSink_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := fastWebhookSink(srv.URL).Publish(context.Background(), sampleDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookSink_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, fastWebhookSink(srv.URL).Publish(context.Background(), sampleDigest()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestBuildSinks(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		want    []string
		wantErr string
	}{
		{
			name: "none",
			cfg:  config.Config{},
		},
		{
			name: "stdout and webhook",
			cfg:  config.Config{Digest: config.DigestConfig{Sinks: []string{"stdout", "webhook"}, WebhookURL: "https://hooks.example.com/d"}},
			want: []string{"stdout", "webhook"},
		},
		{
			name: "kafka",
			cfg: config.Config{
				Digest: config.DigestConfig{Sinks: []string{"kafka"}},
				Kafka:  config.KafkaConfig{Brokers: []string{"localhost:9092"}, DigestTopic: "tender-digests"},
			},
			want: []string{"kafka"},
		},
		{
			name:    "webhook without url",
			cfg:     config.Config{Digest: config.DigestConfig{Sinks: []string{"webhook"}}},
			wantErr: "webhook_url",
		},
		{
			name:    "unknown",
			cfg:     config.Config{Digest: config.DigestConfig{Sinks: []string{"email"}}},
			wantErr: `unknown sink "email"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks, closeAll, err := BuildSinks(&tt.cfg, &bytes.Buffer{})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			var names []string
			for _, s := range sinks {
				names = append(names, s.Name())
			}
			assert.Equal(t, tt.want, names)
			assert.NoError(t, closeAll())
		})
	}
}

func TestRender(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	d := sampleDigest()
	d.ClosingSoon = d.Sections[0].Entries

	var buf bytes.Buffer
	require.NoError(t, NewWriterSink(&buf).Publish(context.Background(), d))
	out := buf.String()

	assert.Contains(t, out, d.Subject)
	assert.Contains(t, out, " 1. [Priority 0.82] Mid-Autumn Lantern Carnival")
	assert.Contains(t, out, "LCSD · LCSD/2026/17 · closes 2026-03-04 (2 days) · HK$1,200,000")
	assert.Contains(t, out, "Closing soon")
	assert.Contains(t, out, "New tenders (24h): 3 (HK 2, SG 1)")
	assert.Contains(t, out, "! hk-down: broken")
}
