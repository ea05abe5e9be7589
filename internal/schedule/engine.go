package schedule

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/digest"
	"github.com/sells-group/tender-intel/internal/discovery"
	"github.com/sells-group/tender-intel/internal/feedback"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

// Stage names for the pipeline.
const (
	StageDiscovery = discovery.StageName
	StageIngest    = "ingest"
	StageNormalize = "normalize"
	StageDedup     = "dedup"
	StageEvaluate  = "evaluate"
	StageDigest    = digest.StageName
	StageFeedback  = feedback.StageName
)

// DailyChain is the order the daily stages run in. A failure stops the
// stages after it.
var DailyChain = []string{StageIngest, StageNormalize, StageDedup, StageEvaluate, StageDigest}

// Summary reports what one engine pass did.
type Summary struct {
	Ran     []string          `json:"ran"`
	NotDue  []string          `json:"not_due,omitempty"`
	Skipped []string          `json:"skipped,omitempty"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// OK reports whether nothing failed.
func (s *Summary) OK() bool { return len(s.Failed) == 0 }

func (s *Summary) fail(stage string, err error) {
	if s.Failed == nil {
		s.Failed = make(map[string]string)
	}
	s.Failed[stage] = err.Error()
}

// Engine executes stages and records them in the stage run log.
type Engine struct {
	store    store.Store
	registry *Registry
	now      func() time.Time
	log      *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine over the registry.
func NewEngine(st store.Store, reg *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    st,
		registry: reg,
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "schedule")),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunStage executes one stage unconditionally, recording start, completion
// or failure.
func (e *Engine) RunStage(ctx context.Context, name string) (*model.StageResult, error) {
	s, ok := e.registry.Get(name)
	if !ok {
		return nil, eris.Errorf("schedule: unknown stage %q", name)
	}
	return e.execute(ctx, s)
}

func (e *Engine) execute(ctx context.Context, s Stage) (*model.StageResult, error) {
	log := e.log.With(zap.String("stage", s.Name()))
	run, err := e.store.StartRun(ctx, s.Name())
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: start %s", s.Name())
	}
	start := time.Now()
	log.Info("stage started", zap.String("run_id", run.ID))

	result, runErr := s.Run(ctx)
	if runErr != nil {
		if err := e.store.FailRun(context.WithoutCancel(ctx), run.ID, runErr); err != nil {
			log.Error("failed to record stage failure", zap.Error(err))
		}
		log.Error("stage failed", zap.Error(runErr), zap.Duration("elapsed", time.Since(start)))
		return nil, eris.Wrapf(runErr, "schedule: %s", s.Name())
	}
	if result == nil {
		result = &model.StageResult{}
	}
	if err := e.store.CompleteRun(ctx, run.ID, result); err != nil {
		return result, eris.Wrapf(err, "schedule: complete %s", s.Name())
	}
	log.Info("stage complete",
		zap.String("status", string(result.Status())),
		zap.Int("items_processed", result.ItemsProcessed),
		zap.Int("new_items", result.NewItems),
		zap.Int("failures", result.Failures),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// RunChain runs the daily chain once, stopping at the first failed stage.
func (e *Engine) RunChain(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	for i, name := range DailyChain {
		if _, ok := e.registry.Get(name); !ok {
			continue
		}
		if _, err := e.RunStage(ctx, name); err != nil {
			sum.fail(name, err)
			sum.Skipped = append(sum.Skipped, e.remainingChain(i+1)...)
			return sum, err
		}
		sum.Ran = append(sum.Ran, name)
	}
	return sum, nil
}

// RunDue is the catch-up runner: every registered stage whose cadence says
// it is owed a run is executed in registry order. Failures outside the
// daily chain are isolated; a failure inside it skips the chain stages
// after it.
func (e *Engine) RunDue(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	now := e.now()
	chainBroken := false

	for _, s := range e.registry.Stages() {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "schedule: cancelled")
		}
		name := s.Name()
		inChain := slices.Contains(DailyChain, name)
		if inChain && chainBroken {
			sum.Skipped = append(sum.Skipped, name)
			continue
		}

		last, err := e.store.LastSuccess(ctx, name)
		if err != nil {
			return sum, eris.Wrapf(err, "schedule: last success for %s", name)
		}
		due, err := s.ShouldRun(ctx, now, last)
		if err != nil {
			return sum, eris.Wrapf(err, "schedule: due check for %s", name)
		}
		if !due {
			sum.NotDue = append(sum.NotDue, name)
			continue
		}

		if _, err := e.execute(ctx, s); err != nil {
			sum.fail(name, err)
			if inChain {
				chainBroken = true
			}
			continue
		}
		sum.Ran = append(sum.Ran, name)
	}

	e.log.Info("catch-up pass complete",
		zap.Strings("ran", sum.Ran),
		zap.Strings("not_due", sum.NotDue),
		zap.Strings("skipped", sum.Skipped),
		zap.Int("failed", len(sum.Failed)),
	)
	return sum, nil
}

func (e *Engine) remainingChain(from int) []string {
	var out []string
	for _, name := range DailyChain[from:] {
		if _, ok := e.registry.Get(name); ok {
			out = append(out, name)
		}
	}
	return out
}
