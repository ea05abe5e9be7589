// Package feedback compares human decisions with the labels tenders carried
// and turns systematic misses into profile change proposals.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/evaluate"
	"github.com/sells-group/tender-intel/internal/llm"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

// StageName is the stage run log key for calibration runs.
const StageName = "feedback"

const (
	defaultWindowDays = 90
	defaultThreshold  = 10
	defaultReEvalDays = 30
	weeklyCadence     = 7 * 24 * time.Hour
)

// ErrNotProposed is returned when approving or rejecting a recommendation
// that has already been decided.
var ErrNotProposed = eris.New("feedback: recommendation already decided")

// Reasoner proposes calibration changes from aggregated decisions.
type Reasoner interface {
	Available() bool
	Recommendations(ctx context.Context, in llm.CalibrationInput) (*llm.CalibrationOutput, error)
}

// Learner runs the calibration loop and applies approved changes.
type Learner struct {
	store      store.Store
	reasoner   Reasoner
	windowDays int
	threshold  int
	reEvalDays int
	now        func() time.Time
	log        *zap.Logger
}

// Option configures a Learner.
type Option func(*Learner)

// WithReasoner enables language-model analysis.
func WithReasoner(r Reasoner) Option {
	return func(l *Learner) { l.reasoner = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Learner) { l.now = now }
}

// New creates a Learner.
func New(st store.Store, cfg config.FeedbackConfig, opts ...Option) *Learner {
	l := &Learner{
		store:      st,
		windowDays: cfg.WindowDays,
		threshold:  cfg.DecisionThreshold,
		reEvalDays: cfg.ReEvaluateSinceDays,
		now:        time.Now,
		log:        zap.L().With(zap.String("component", "feedback")),
	}
	if l.windowDays <= 0 {
		l.windowDays = defaultWindowDays
	}
	if l.threshold <= 0 {
		l.threshold = defaultThreshold
	}
	if l.reEvalDays <= 0 {
		l.reEvalDays = defaultReEvalDays
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Due reports whether a calibration run is owed: a week has passed since the
// last successful run, or enough new decisions have arrived since it.
func (l *Learner) Due(ctx context.Context, now time.Time) (bool, error) {
	last, err := l.store.LastSuccess(ctx, StageName)
	if err != nil {
		return false, eris.Wrap(err, "feedback: last run")
	}
	if last == nil {
		return true, nil
	}
	if now.Sub(last.StartedAt) >= weeklyCadence {
		return true, nil
	}
	n, err := l.store.CountDecisionsSince(ctx, last.StartedAt)
	if err != nil {
		return false, eris.Wrap(err, "feedback: count new decisions")
	}
	return n >= l.threshold, nil
}

// Run analyses the decision window and stores a calibration report with
// proposed recommendations. Nothing is applied to the profile.
func (l *Learner) Run(ctx context.Context) (*model.CalibrationReport, error) {
	now := l.now().UTC()
	since := now.AddDate(0, 0, -l.windowDays)

	profile, err := evaluate.LoadProfile(ctx, l.store)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: load profile")
	}
	records, err := l.store.ListDecisionRecords(ctx, since)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: list decisions")
	}

	acc := Accuracy(records)
	agg := Aggregate(records, profile)
	report := &model.CalibrationReport{
		ProfileVersion: profile.Version,
		WindowStart:    since,
		WindowEnd:      now,
		Accuracy:       acc,
		CreatedAt:      now,
	}

	source := "heuristics"
	if out := l.ask(ctx, profile, acc, agg); out != nil {
		source = "reasoner"
		report.Summary = out.Summary
		report.Recommendations = l.filter(out.Recommendations, profile)
	} else {
		report.Recommendations = Heuristics(agg, profile, l.windowDays)
		report.Summary = summarize(acc, agg, since, len(report.Recommendations))
	}
	for i := range report.Recommendations {
		rec := &report.Recommendations[i]
		rec.Status = model.RecProposed
		rec.ProfileVersion = profile.Version
		rec.CreatedAt = now
		if rec.Type == model.RecWeightAdjustment && rec.CurrentValue == nil {
			if v, ok := WeightValue(profile.Weights, rec.Target); ok {
				rec.CurrentValue = &v
			}
		}
	}
	report.NoChangesNeeded = len(report.Recommendations) == 0

	if err := l.store.SaveReport(ctx, report); err != nil {
		return nil, eris.Wrap(err, "feedback: save report")
	}
	l.log.Info("calibration report stored",
		zap.String("report_id", report.ID),
		zap.String("profile_version", profile.Version),
		zap.String("source", source),
		zap.Int("decisions", len(records)),
		zap.Float64("precision", acc.Precision),
		zap.Float64("recall", acc.Recall),
		zap.Int("recommendations", len(report.Recommendations)),
	)
	return report, nil
}

// ask returns nil whenever the deterministic path should be used instead.
func (l *Learner) ask(ctx context.Context, p *model.Profile, acc model.Accuracy, agg Aggregates) *llm.CalibrationOutput {
	if l.reasoner == nil || !l.reasoner.Available() || agg.Decisions == 0 {
		return nil
	}
	out, err := l.reasoner.Recommendations(ctx, llm.CalibrationInput{
		ProfileVersion:      p.Version,
		Weights:             p.Weights,
		KnownAgencies:       p.KnownAgencies,
		TrackRecordKeywords: p.TrackRecordKeywords,
		Accuracy:            acc,
		Aggregates:          agg,
	})
	if err != nil {
		l.log.Warn("reasoner calibration failed, using heuristics", zap.Error(err))
		return nil
	}
	return out
}

// filter drops reasoner proposals that could not be applied.
func (l *Learner) filter(recs []model.Recommendation, p *model.Profile) []model.Recommendation {
	out := make([]model.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if err := CheckRecommendation(&rec, p); err != nil {
			l.log.Info("dropping recommendation",
				zap.String("type", string(rec.Type)),
				zap.String("target", rec.Target),
				zap.Error(err),
			)
			continue
		}
		rec.Target = strings.TrimSpace(rec.Target)
		out = append(out, rec)
	}
	return rankRecommendations(out)
}

func summarize(acc model.Accuracy, agg Aggregates, since time.Time, recs int) string {
	if agg.Decisions == 0 {
		return fmt.Sprintf("No decisions recorded since %s; the profile is unchanged.", since.Format("2006-01-02"))
	}
	s := fmt.Sprintf("Reviewed %d decisions on %d tenders since %s. Precision %.2f, recall %.2f (F1 %.2f).",
		agg.Decisions, agg.Tenders, since.Format("2006-01-02"), acc.Precision, acc.Recall, acc.F1)
	if recs == 0 {
		return s + " Scores look well calibrated; no changes proposed."
	}
	return s + fmt.Sprintf(" %d changes proposed for review.", recs)
}

// ApprovalResult describes a newly activated profile.
type ApprovalResult struct {
	Profile    *model.Profile
	ReEvaluate int
}

// Approve applies one proposed recommendation to the active profile, saves
// the result as a new version, and flags recently seen tenders for
// re-evaluation under it.
func (l *Learner) Approve(ctx context.Context, id, approver string) (*ApprovalResult, error) {
	rec, err := l.proposed(ctx, id)
	if err != nil {
		return nil, err
	}
	current, err := evaluate.LoadProfile(ctx, l.store)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: load profile")
	}
	if rec.ProfileVersion != "" && rec.ProfileVersion != current.Version {
		l.log.Info("applying recommendation to a newer profile",
			zap.String("recommendation_id", id),
			zap.String("proposed_for", rec.ProfileVersion),
			zap.String("active", current.Version),
		)
	}

	next, err := ApplyRecommendation(current, rec)
	if err != nil {
		return nil, err
	}
	now := l.now().UTC()
	next.ApprovedBy = approver
	next.CreatedAt = now
	if err := ValidateProfile(next); err != nil {
		return nil, err
	}
	if err := l.store.SaveProfile(ctx, next); err != nil {
		return nil, eris.Wrap(err, "feedback: save profile")
	}
	if err := l.store.UpdateRecommendationStatus(ctx, id, model.RecApproved, approver, now); err != nil {
		return nil, eris.Wrap(err, "feedback: mark approved")
	}

	cutoff := now.AddDate(0, 0, -l.reEvalDays)
	n, err := l.store.MarkForReevaluation(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: flag re-evaluation")
	}
	l.log.Info("recommendation approved",
		zap.String("recommendation_id", id),
		zap.String("profile_version", next.Version),
		zap.String("approved_by", approver),
		zap.Int("re_evaluate", n),
	)
	return &ApprovalResult{Profile: next, ReEvaluate: n}, nil
}

// Reject closes a proposed recommendation without touching the profile.
func (l *Learner) Reject(ctx context.Context, id, approver string) error {
	if _, err := l.proposed(ctx, id); err != nil {
		return err
	}
	if err := l.store.UpdateRecommendationStatus(ctx, id, model.RecRejected, approver, l.now().UTC()); err != nil {
		return eris.Wrap(err, "feedback: mark rejected")
	}
	l.log.Info("recommendation rejected", zap.String("recommendation_id", id), zap.String("rejected_by", approver))
	return nil
}

func (l *Learner) proposed(ctx context.Context, id string) (*model.Recommendation, error) {
	rec, err := l.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "feedback: get recommendation %s", id)
	}
	if rec.Status != model.RecProposed {
		return nil, eris.Wrapf(ErrNotProposed, "feedback: recommendation %s is %s", id, rec.Status)
	}
	return rec, nil
}
