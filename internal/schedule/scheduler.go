package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/monitoring"
)

// Monitor is checked after each daily chain run.
type Monitor interface {
	Check(ctx context.Context) []monitoring.Alert
}

// Scheduler fires stages on cron specs in the configured timezone.
type Scheduler struct {
	cron    *cron.Cron
	engine  *Engine
	monitor Monitor
	base    context.Context
	log     *zap.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMonitor runs a health check after every daily chain.
func WithMonitor(m Monitor) SchedulerOption {
	return func(s *Scheduler) { s.monitor = m }
}

// NewScheduler registers discovery, the daily chain, the weekly feedback
// run and the daily feedback threshold check. A job still running when its
// next tick arrives is skipped.
func NewScheduler(e *Engine, cfg config.ScheduleConfig, loc *time.Location, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		engine: e,
		base:   context.Background(),
		log:    zap.L().With(zap.String("component", "scheduler")),
	}
	for _, o := range opts {
		o(s)
	}
	cl := cronLogger{s.log.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context)
	}{
		{"discovery", cfg.Discovery, s.stageJob(StageDiscovery)},
		{"daily_chain", cfg.Ingestion, s.chainJob},
		{"feedback", cfg.Feedback, s.stageJob(StageFeedback)},
		{"feedback_threshold", cfg.Threshold, s.thresholdJob},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		run := j.run
		if _, err := s.cron.AddFunc(j.spec, func() { run(s.base) }); err != nil {
			return nil, eris.Wrapf(err, "schedule: parse %s spec %q", j.name, j.spec)
		}
	}
	return s, nil
}

// Start runs the scheduler until ctx is cancelled. Jobs run under ctx, so
// cancelling it also aborts a running stage; Start returns once running
// jobs have wound down.
func (s *Scheduler) Start(ctx context.Context) {
	s.base = ctx
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Entries returns the registered cron entries.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) stageJob(name string) func(ctx context.Context) {
	return func(ctx context.Context) {
		if _, ok := s.engine.registry.Get(name); !ok {
			return
		}
		if _, err := s.engine.RunStage(ctx, name); err != nil {
			s.log.Error("scheduled stage failed", zap.String("stage", name), zap.Error(err))
		}
	}
}

func (s *Scheduler) chainJob(ctx context.Context) {
	if _, err := s.engine.RunChain(ctx); err != nil {
		s.log.Error("daily chain stopped", zap.Error(err))
	}
	if s.monitor != nil && ctx.Err() == nil {
		s.monitor.Check(ctx)
	}
}

// thresholdJob runs feedback early when enough new decisions have arrived.
func (s *Scheduler) thresholdJob(ctx context.Context) {
	st, ok := s.engine.registry.Get(StageFeedback)
	if !ok {
		return
	}
	last, err := s.engine.store.LastSuccess(ctx, StageFeedback)
	if err != nil {
		s.log.Error("feedback threshold check failed", zap.Error(err))
		return
	}
	due, err := st.ShouldRun(ctx, s.engine.now(), last)
	if err != nil {
		s.log.Error("feedback threshold check failed", zap.Error(err))
		return
	}
	if !due {
		return
	}
	s.stageJob(StageFeedback)(ctx)
}

// cronLogger routes cron's logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
