package evaluate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		name    string
		overall float64
		scale   float64
		want    model.Label
	}{
		{"priority", 0.70, 1, model.LabelPriority},
		{"consider upper", 0.699, 1, model.LabelConsider},
		{"consider", 0.50, 1, model.LabelConsider},
		{"partner band", 0.49, 1, model.LabelPartnerOnly},
		{"partner floor", 0.35, 1, model.LabelPartnerOnly},
		{"ignore", 0.349, 1, model.LabelIgnore},
		{"low scale forces partner", 0.90, 0.49, model.LabelPartnerOnly},
		{"scale at gate keeps label", 0.90, 0.5, model.LabelPriority},
		{"low scale never lifts ignore", 0.20, 0, model.LabelIgnore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.overall, tt.scale))
		})
	}
}

// priorityTender has a stated budget above the top tier, a known agency, a
// full category match, and 20 days to close.
func priorityTender() *model.Tender {
	return &model.Tender{
		ID:           "tdr_priority",
		Jurisdiction: model.JurisdictionHK,
		OwnerType:    model.OwnerGovernment,
		Title:        "Provision of Services for Lunar New Year Celebration",
		Agency:       "Tourism Commission",
		Categories:   []string{model.CategoryEvents},
		NoticeType:   model.NoticeOpenTender,
		ClosingDate:  closingIn(20),
		BudgetMax:    ptrFloat64(800_000),
		Currency:     "HKD",
		BudgetSource: model.BudgetStated,
	}
}

func TestCompute_Priority(t *testing.T) {
	s := Compute(priorityTender(), DefaultProfile(), evalNow)

	assert.InDelta(t, 0.80, s.CapabilityFit, 1e-9)
	assert.InDelta(t, 0.742, s.BusinessPotential, 1e-9)
	assert.InDelta(t, 0.774, s.Overall, 1e-9)
	assert.Equal(t, model.LabelPriority, s.Label)

	assert.Equal(t, 1.0, s.BusinessSignals[SignalBudget])
	assert.Equal(t, 0.0, s.BusinessSignals[SignalBudgetProxy])
	assert.Equal(t, 0.4, s.BusinessSignals[SignalStrategicBeachhead])
	assert.Equal(t, 1.0, s.CapabilitySignals[SignalDeliveryScale])
}

func TestCompute_LowValue(t *testing.T) {
	tdr := &model.Tender{
		ID:           "tdr_low",
		Jurisdiction: model.JurisdictionHK,
		OwnerType:    model.OwnerGovernment,
		Title:        "Provision of Outreach Services for Elderly Centres",
		Agency:       "Islands District Office",
		Categories:   []string{model.CategorySocial},
		NoticeType:   model.NoticeUnknown,
		ClosingDate:  closingIn(3),
		BudgetSource: model.BudgetUnknown,
	}
	s := Compute(tdr, DefaultProfile(), evalNow)

	assert.NotEqual(t, model.LabelPriority, s.Label)
	assert.Less(t, s.Overall, 0.5)
	assert.InDelta(t, 0.30, s.CapabilityFit, 1e-9)
	assert.InDelta(t, 0.358, s.Overall, 1e-9)
	assert.Equal(t, 0.5, s.BusinessSignals[SignalBudgetProxy])
}

func TestCompute_OversizedIsPartnerOnly(t *testing.T) {
	tdr := priorityTender()
	tdr.RequiredFTE = ptrFloat64(24)

	s := Compute(tdr, DefaultProfile(), evalNow)
	assert.Equal(t, 0.0, s.CapabilitySignals[SignalDeliveryScale])
	assert.GreaterOrEqual(t, s.Overall, PartnerOnlyThreshold)
	assert.Equal(t, model.LabelPartnerOnly, s.Label)
}

func TestCompute_UnstatedBudgetIsPenalised(t *testing.T) {
	stated := priorityTender()
	unstated := priorityTender()
	unstated.BudgetMax = nil
	unstated.BudgetSource = model.BudgetUnknown
	unstated.Agency = "Highways Department"
	unstated.Title = "Framework contract for digital campaign"
	stated.Title = unstated.Title
	stated.Agency = unstated.Agency

	p := DefaultProfile()
	s1 := Compute(stated, p, evalNow)
	s2 := Compute(unstated, p, evalNow)
	assert.Less(t, s2.BusinessPotential, s1.BusinessPotential)
	assert.LessOrEqual(t, s2.BusinessPotential, 1.0)
}

func TestTemplateRationale(t *testing.T) {
	p := DefaultProfile()
	s := Compute(priorityTender(), p, evalNow)
	got := TemplateRationale(s, p.Weights)

	assert.Contains(t, got, "Scored Priority (overall 0.77")
	assert.Contains(t, got, "Strongest signals: category match with our competencies and the stated budget.")
	assert.Contains(t, got, "Main concern: overlap with our track record (0.00).")
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedTender(t *testing.T, st store.Store, tdr *model.Tender, canonical bool, status model.EvaluationStatus) {
	t.Helper()
	tdr.IsCanonical = canonical
	if !canonical {
		tdr.CanonicalTenderID = "tdr_priority"
	}
	tdr.EvaluationStatus = status
	tdr.Status = model.TenderOpen
	tdr.MappingVersion = "v1.2"
	tdr.FirstSeenAt = evalNow.UTC()
	tdr.LastSeenAt = evalNow.UTC()
	tdr.SourceID = "src"
	_, err := st.UpsertTender(context.Background(), tdr)
	require.NoError(t, err)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	seedTender(t, st, priorityTender(), true, model.EvalPending)
	dup := priorityTender()
	dup.ID = "tdr_dup"
	seedTender(t, st, dup, false, model.EvalPending)
	done := priorityTender()
	done.ID = "tdr_done"
	seedTender(t, st, done, true, model.EvalScored)
	again := priorityTender()
	again.ID = "tdr_again"
	again.Title = "Pilot roadshow"
	seedTender(t, st, again, true, model.EvalReEvaluate)

	r := &mockReasoner{}
	r.On("Available").Return(true)
	r.On("Model").Return("claude-test")
	r.On("Rationale", mock.Anything, mock.Anything).
		Return("Strong category and budget fit; no track record keywords.", nil)

	e := New(st, config.EvaluateConfig{Concurrency: 2, Rationale: true}, time.FixedZone("HKT", 8*3600),
		WithReasoner(r), WithClock(func() time.Time { return evalNow }))
	res, err := e.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", res.ProfileVersion)
	assert.Equal(t, 2, res.Evaluated)
	assert.Empty(t, res.Errors)
	r.AssertNumberOfCalls(t, "Rationale", 2)

	tdr, err := st.GetTender(ctx, "tdr_priority")
	require.NoError(t, err)
	assert.Equal(t, model.EvalScored, tdr.EvaluationStatus)
	assert.Equal(t, model.LabelPriority, tdr.Label)
	require.NotNil(t, tdr.OverallScore)
	assert.InDelta(t, 0.774, *tdr.OverallScore, 1e-9)
	assert.Equal(t, "1.0.0", tdr.ProfileVersion)

	ev, err := st.LatestEvaluation(ctx, "tdr_priority")
	require.NoError(t, err)
	assert.Equal(t, "claude-test", ev.ModelUsed)
	assert.Equal(t, "Strong category and budget fit; no track record keywords.", ev.Rationale)
	assert.Equal(t, DefaultWeights(), ev.Weights)

	dupAfter, err := st.GetTender(ctx, "tdr_dup")
	require.NoError(t, err)
	assert.Equal(t, model.EvalPending, dupAfter.EvaluationStatus)

	profile, err := st.ActiveProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", profile.Version)
}

func TestRun_RationaleFallbackAndErrors(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	seedTender(t, st, priorityTender(), true, model.EvalPending)
	untitled := priorityTender()
	untitled.ID = "tdr_untitled"
	untitled.Title = ""
	seedTender(t, st, untitled, true, model.EvalPending)

	r := &mockReasoner{}
	r.On("Available").Return(true)
	r.On("Rationale", mock.Anything, mock.Anything).Return("", errors.New("llm: breaker open"))

	e := New(st, config.EvaluateConfig{Rationale: true}, time.UTC,
		WithReasoner(r), WithClock(func() time.Time { return evalNow }))
	res, err := e.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Evaluated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "tdr_untitled", res.Errors[0].TenderID)

	ev, err := st.LatestEvaluation(ctx, "tdr_priority")
	require.NoError(t, err)
	assert.Equal(t, "deterministic", ev.ModelUsed)
	assert.Contains(t, ev.Rationale, "Scored Priority")
}

func TestRun_RationaleDisabled(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedTender(t, st, priorityTender(), true, model.EvalPending)

	r := &mockReasoner{}
	e := New(st, config.EvaluateConfig{Rationale: false}, time.UTC,
		WithReasoner(r), WithClock(func() time.Time { return evalNow }))
	res, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	r.AssertNotCalled(t, "Rationale", mock.Anything, mock.Anything)
}
