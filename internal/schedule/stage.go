// Package schedule runs pipeline stages on their cadences and records every
// execution in the stage run log.
package schedule

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/model"
)

// Cadence is how often a stage is owed a run.
type Cadence string

const (
	Daily  Cadence = "daily"
	Weekly Cadence = "weekly"
)

// Stage is one schedulable unit of the pipeline.
type Stage interface {
	Name() string
	Cadence() Cadence
	// ShouldRun reports whether the stage is due given its last successful
	// run, which is nil when it has never succeeded.
	ShouldRun(ctx context.Context, now time.Time, lastSuccess *model.StageRun) (bool, error)
	Run(ctx context.Context) (*model.StageResult, error)
}

// RunFunc executes a stage.
type RunFunc func(ctx context.Context) (*model.StageResult, error)

// DueFunc overrides the cadence check.
type DueFunc func(ctx context.Context, now time.Time) (bool, error)

// FuncStage adapts a function to the Stage interface.
type FuncStage struct {
	name    string
	cadence Cadence
	loc     *time.Location
	run     RunFunc
	due     DueFunc
}

// NewStage creates a stage that is due by calendar day (daily) or after
// seven days (weekly) in loc.
func NewStage(name string, cadence Cadence, loc *time.Location, run RunFunc) *FuncStage {
	if loc == nil {
		loc = time.UTC
	}
	return &FuncStage{name: name, cadence: cadence, loc: loc, run: run}
}

// WithDue replaces the cadence check with a custom one.
func (s *FuncStage) WithDue(due DueFunc) *FuncStage {
	s.due = due
	return s
}

func (s *FuncStage) Name() string     { return s.name }
func (s *FuncStage) Cadence() Cadence { return s.cadence }

func (s *FuncStage) ShouldRun(ctx context.Context, now time.Time, lastSuccess *model.StageRun) (bool, error) {
	if s.due != nil {
		return s.due(ctx, now)
	}
	if lastSuccess == nil {
		return true, nil
	}
	last := lastSuccess.StartedAt
	switch s.cadence {
	case Weekly:
		return now.Sub(last) >= 7*24*time.Hour, nil
	default:
		return model.CivilDate(last.In(s.loc)).Before(model.CivilDate(now.In(s.loc))), nil
	}
}

func (s *FuncStage) Run(ctx context.Context) (*model.StageResult, error) {
	return s.run(ctx)
}

// Registry holds stages in execution order.
type Registry struct {
	stages []Stage
	byName map[string]Stage
}

// NewRegistry creates a registry from stages in order.
func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{byName: make(map[string]Stage, len(stages))}
	for _, s := range stages {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a stage. Names must be unique.
func (r *Registry) Register(s Stage) error {
	if _, ok := r.byName[s.Name()]; ok {
		return eris.Errorf("schedule: stage %q registered twice", s.Name())
	}
	r.stages = append(r.stages, s)
	r.byName[s.Name()] = s
	return nil
}

// Get returns the named stage.
func (r *Registry) Get(name string) (Stage, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Stages returns every stage in order.
func (r *Registry) Stages() []Stage {
	return r.stages
}
