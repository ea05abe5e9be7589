package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/registry"
	"github.com/sells-group/tender-intel/internal/store"
)

// FailedStage is a stage run that ended in failure inside the window.
type FailedStage struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	StartedAt time.Time `json:"started_at"`
}

// HealthSnapshot holds a point-in-time view of source and stage health.
type HealthSnapshot struct {
	// Registry.
	Sources       registry.Health `json:"sources"`
	Broken        []string        `json:"broken,omitempty"`
	FormatChanged []string        `json:"format_changed,omitempty"`

	// Stage run log (within lookback window).
	StageRuns    int           `json:"stage_runs"`
	StagePartial int           `json:"stage_partial"`
	FailedStages []FailedStage `json:"failed_stages,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers health from the registry and the stage run log.
type Collector struct {
	store store.Store
	now   func() time.Time
}

// NewCollector creates a new health collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*HealthSnapshot, error) {
	now := c.now().UTC()
	snap := &HealthSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	health, err := registry.HealthSummary(ctx, c.store)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: source health")
	}
	snap.Sources = *health

	sources, err := c.store.ListSources(ctx, store.SourceFilter{
		Statuses: []model.SourceStatus{model.SourceBroken, model.SourceFormatChanged},
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list failing sources")
	}
	for _, src := range sources {
		switch src.Status {
		case model.SourceBroken:
			snap.Broken = append(snap.Broken, src.ID)
		case model.SourceFormatChanged:
			snap.FormatChanged = append(snap.FormatChanged, src.ID)
		}
	}

	runs, err := c.store.ListRuns(ctx, now.Add(-time.Duration(lookbackHours)*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	snap.StageRuns = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.StagePartial:
			snap.StagePartial++
		case model.StageFailed:
			snap.FailedStages = append(snap.FailedStages, FailedStage{
				RunID:     r.ID,
				Stage:     r.Stage,
				Error:     r.Error,
				StartedAt: r.StartedAt,
			})
		}
	}

	return snap, nil
}
