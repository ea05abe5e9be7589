// Package evaluate scores canonical tenders against the active profile and
// assigns a decision label.
package evaluate

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/llm"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

// Label thresholds on the overall score.
const (
	PriorityThreshold    = 0.70
	ConsiderThreshold    = 0.50
	PartnerOnlyThreshold = 0.35
	// ScaleGate is the delivery-scale score below which a tender can only be
	// pursued with a partner.
	ScaleGate = 0.5
)

// Label assigns the decision bucket. It depends on nothing but its inputs.
func Label(overall, deliveryScale float64) model.Label {
	if overall < PartnerOnlyThreshold {
		return model.LabelIgnore
	}
	if deliveryScale < ScaleGate {
		return model.LabelPartnerOnly
	}
	switch {
	case overall >= PriorityThreshold:
		return model.LabelPriority
	case overall >= ConsiderThreshold:
		return model.LabelConsider
	default:
		return model.LabelPartnerOnly
	}
}

// Score is the deterministic part of an evaluation.
type Score struct {
	CapabilityFit     float64
	BusinessPotential float64
	Overall           float64
	Label             model.Label
	CapabilitySignals map[string]float64
	BusinessSignals   map[string]float64
}

// Compute scores a tender against a profile. now decides days to close and
// should carry the pipeline's timezone.
func Compute(t *model.Tender, p *model.Profile, now time.Time) Score {
	w := p.Weights

	capSignals := map[string]float64{
		SignalCategoryMatch:     scoreCategoryMatch(t.Categories, p),
		SignalAgencyFamiliarity: scoreAgencyFamiliarity(t.Agency, p),
		SignalDeliveryScale:     scoreDeliveryScale(EstimateFTE(t), p.MaxDeliveryFTE),
		SignalKeywordOverlap:    scoreKeywordOverlap(t.Title, t.Description, p.TrackRecordKeywords),
		SignalGeographicFit:     scoreGeographicFit(t.Jurisdiction, p),
	}
	capability := capSignals[SignalCategoryMatch]*w.Capability.CategoryMatch +
		capSignals[SignalAgencyFamiliarity]*w.Capability.AgencyFamiliarity +
		capSignals[SignalDeliveryScale]*w.Capability.DeliveryScale +
		capSignals[SignalKeywordOverlap]*w.Capability.KeywordOverlap +
		capSignals[SignalGeographicFit]*w.Capability.GeographicFit
	if sum := w.Capability.Sum(); sum > 0 {
		capability /= sum
	}

	bizSignals := map[string]float64{
		SignalBudget:              0,
		SignalBudgetProxy:         0,
		SignalStrategicBeachhead:  scoreStrategicBeachhead(t.Agency, p),
		SignalCategoryGrowth:      scoreCategoryGrowth(t.Categories, p),
		SignalTimeToDeadline:      scoreTimeToDeadline(t, now),
		SignalRecurrencePotential: scoreRecurrencePotential(t.Title),
	}
	if budgetStated(t) {
		bizSignals[SignalBudget] = scoreBudget(t)
	} else {
		bizSignals[SignalBudgetProxy] = scoreBudgetProxy(t)
	}
	business := bizSignals[SignalBudget]*w.Business.Budget +
		bizSignals[SignalBudgetProxy]*w.Business.BudgetProxy +
		bizSignals[SignalStrategicBeachhead]*w.Business.StrategicBeachhead +
		bizSignals[SignalCategoryGrowth]*w.Business.CategoryGrowth +
		bizSignals[SignalTimeToDeadline]*w.Business.TimeToDeadline +
		bizSignals[SignalRecurrencePotential]*w.Business.RecurrencePotential
	// Only a stated budget reaches the full-information mass, so an unstated
	// budget costs the difference between the two budget weights.
	if full := w.Business.FullInformation(); full > 0 {
		business /= full
	}

	capability = round3(clamp01(capability))
	business = round3(clamp01(business))
	overall := capability*w.Overall.Capability + business*w.Overall.Business
	if sum := w.Overall.Capability + w.Overall.Business; sum > 0 {
		overall /= sum
	}
	overall = round3(clamp01(overall))

	return Score{
		CapabilityFit:     capability,
		BusinessPotential: business,
		Overall:           overall,
		Label:             Label(overall, capSignals[SignalDeliveryScale]),
		CapabilitySignals: roundAll(capSignals),
		BusinessSignals:   roundAll(bizSignals),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func roundAll(m map[string]float64) map[string]float64 {
	for k, v := range m {
		m[k] = round3(v)
	}
	return m
}

// Reasoner narrates already-computed scores.
type Reasoner interface {
	Available() bool
	Model() string
	Rationale(ctx context.Context, in llm.RationaleInput) (string, error)
}

// TenderError records a tender that could not be evaluated.
type TenderError struct {
	TenderID string `json:"tender_id"`
	Error    string `json:"error"`
}

// Result summarises an evaluation sweep.
type Result struct {
	ProfileVersion string              `json:"profile_version"`
	Evaluated      int                 `json:"evaluated"`
	Labels         map[model.Label]int `json:"labels"`
	Errors         []TenderError       `json:"errors,omitempty"`
}

// deterministicModel marks evaluations whose rationale came from the template.
const deterministicModel = "deterministic"

// Evaluator runs the scoring sweep.
type Evaluator struct {
	store       store.Store
	reasoner    Reasoner
	rationale   bool
	concurrency int
	loc         *time.Location
	now         func() time.Time
	log         *zap.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithReasoner enables model-written rationales.
func WithReasoner(r Reasoner) Option {
	return func(e *Evaluator) { e.reasoner = r }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New creates an Evaluator. loc is the timezone deadlines are counted in.
func New(st store.Store, cfg config.EvaluateConfig, loc *time.Location, opts ...Option) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	e := &Evaluator{
		store:       st,
		rationale:   cfg.Rationale,
		concurrency: cfg.Concurrency,
		loc:         loc,
		now:         time.Now,
		log:         zap.L().With(zap.String("component", "evaluate")),
	}
	if e.concurrency <= 0 {
		e.concurrency = 4
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every canonical tender awaiting a score. The profile is read
// once and used unchanged for the whole sweep. A failing tender is recorded
// in the result and the sweep carries on.
func (e *Evaluator) Run(ctx context.Context) (*Result, error) {
	profile, err := LoadProfile(ctx, e.store)
	if err != nil {
		return nil, err
	}
	tenders, err := e.store.ListTenders(ctx, store.TenderFilter{
		CanonicalOnly:      true,
		EvaluationStatuses: []model.EvaluationStatus{model.EvalPending, model.EvalReEvaluate},
	})
	if err != nil {
		return nil, eris.Wrap(err, "evaluate: list tenders")
	}

	res := &Result{ProfileVersion: profile.Version, Labels: make(map[model.Label]int)}
	var mu sync.Mutex
	now := e.now().In(e.loc)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range tenders {
		t := &tenders[i]
		g.Go(func() error {
			ev, err := e.Evaluate(gctx, t, profile, now)
			if err == nil {
				err = e.store.SaveEvaluation(gctx, ev)
			}
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.log.Warn("evaluation failed", zap.String("tender_id", t.ID), zap.Error(err))
				res.Errors = append(res.Errors, TenderError{TenderID: t.ID, Error: err.Error()})
				return nil
			}
			res.Evaluated++
			res.Labels[ev.Label]++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "evaluate: run")
	}

	e.log.Info("evaluation complete",
		zap.String("profile_version", profile.Version),
		zap.Int("tenders", len(tenders)),
		zap.Int("evaluated", res.Evaluated),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// Evaluate scores one tender and writes its rationale.
func (e *Evaluator) Evaluate(ctx context.Context, t *model.Tender, p *model.Profile, now time.Time) (*model.Evaluation, error) {
	if t.Title == "" {
		return nil, eris.Errorf("evaluate: tender %s has no title", t.ID)
	}
	s := Compute(t, p, now)

	ev := &model.Evaluation{
		TenderID:          t.ID,
		CapabilityFit:     s.CapabilityFit,
		BusinessPotential: s.BusinessPotential,
		OverallScore:      s.Overall,
		Label:             s.Label,
		CapabilitySignals: s.CapabilitySignals,
		BusinessSignals:   s.BusinessSignals,
		Weights:           p.Weights,
		ProfileVersion:    p.Version,
		ModelUsed:         deterministicModel,
		EvaluatedAt:       e.now().UTC(),
	}

	if e.rationale && e.reasoner != nil && e.reasoner.Available() {
		text, err := e.reasoner.Rationale(ctx, llm.RationaleInput{
			Title:             t.Title,
			Agency:            t.Agency,
			Categories:        t.Categories,
			Label:             s.Label,
			CapabilityFit:     s.CapabilityFit,
			BusinessPotential: s.BusinessPotential,
			OverallScore:      s.Overall,
			CapabilitySignals: s.CapabilitySignals,
			BusinessSignals:   s.BusinessSignals,
		})
		if err == nil && text != "" {
			ev.Rationale = text
			ev.ModelUsed = e.reasoner.Model()
			return ev, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Debug("rationale fallback", zap.String("tender_id", t.ID), zap.Error(err))
	}
	ev.Rationale = TemplateRationale(s, p.Weights)
	return ev, nil
}
