package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/model"
)

var defaultSpecs = config.ScheduleConfig{
	Timezone:  "Asia/Hong_Kong",
	Discovery: "0 2 * * 1",
	Ingestion: "0 3 * * *",
	Feedback:  "0 5 * * 0",
	Threshold: "30 5 * * *",
}

func TestNewScheduler(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	e := NewEngine(newTestStore(t), reg)
	hkt := time.FixedZone("HKT", 8*3600)

	t.Run("registers every job", func(t *testing.T) {
		s, err := NewScheduler(e, defaultSpecs, hkt)
		require.NoError(t, err)
		assert.Len(t, s.Entries(), 4)
	})

	t.Run("empty spec disables a job", func(t *testing.T) {
		cfg := defaultSpecs
		cfg.Threshold = ""
		s, err := NewScheduler(e, cfg, hkt)
		require.NoError(t, err)
		assert.Len(t, s.Entries(), 3)
	})

	t.Run("bad spec", func(t *testing.T) {
		cfg := defaultSpecs
		cfg.Discovery = "every monday"
		_, err := NewScheduler(e, cfg, hkt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "discovery spec")
	})
}

func TestScheduler_ChainJobRunsMonitor(t *testing.T) {
	runs := newRuns()
	e := NewEngine(newTestStore(t), chainRegistry(t, runs))
	mon := &mockMonitor{}
	mon.On("Check", mock.Anything).Return(nil).Once()

	s, err := NewScheduler(e, defaultSpecs, time.UTC, WithMonitor(mon))
	require.NoError(t, err)
	s.chainJob(context.Background())

	assert.Equal(t, 1, runs[StageDigest].calls)
	assert.Equal(t, 0, runs[StageDiscovery].calls)
	mon.AssertExpectations(t)
}

func TestScheduler_ThresholdJob(t *testing.T) {
	tests := []struct {
		name  string
		due   bool
		calls int
	}{
		{"enough new decisions", true, 1},
		{"not yet", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &countingRun{}
			reg, err := NewRegistry(NewStage(StageFeedback, Weekly, time.UTC, run.run).
				WithDue(func(context.Context, time.Time) (bool, error) { return tt.due, nil }))
			require.NoError(t, err)

			s, err := NewScheduler(NewEngine(newTestStore(t), reg), defaultSpecs, time.UTC)
			require.NoError(t, err)
			s.thresholdJob(context.Background())
			assert.Equal(t, tt.calls, run.calls)
		})
	}
}

func TestScheduler_StartStops(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	s, err := NewScheduler(NewEngine(newTestStore(t), reg), defaultSpecs, time.UTC)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler.Start did not return after cancel")
	}
}

func TestScheduler_CancelAbortsRunningStage(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	var sawCancel atomic.Bool
	reg, err := NewRegistry(NewStage(StageDiscovery, Weekly, time.UTC, func(ctx context.Context) (*model.StageResult, error) {
		once.Do(func() { close(started) })
		select {
		case <-ctx.Done():
			sawCancel.Store(true)
			return nil, ctx.Err()
		case <-time.After(30 * time.Second):
			return &model.StageResult{}, nil
		}
	}))
	require.NoError(t, err)

	s, err := NewScheduler(NewEngine(newTestStore(t), reg), config.ScheduleConfig{Discovery: "@every 1s"}, time.UTC)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("discovery job never fired")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Scheduler.Start waited for the stage to finish on its own")
	}
	assert.True(t, sawCancel.Load())
}
