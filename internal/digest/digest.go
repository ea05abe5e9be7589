// Package digest compiles the daily shortlist of scored tenders, records what
// it surfaced, and hands the result to the configured delivery sinks.
package digest

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/llm"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/registry"
	"github.com/sells-group/tender-intel/internal/store"
)

// StageName is the stage run log key for digest runs.
const StageName = "digest"

const (
	defaultTopN            = 10
	defaultResurfaceDays   = 7
	defaultClosingSoonDays = 7
	newTenderWindow        = 24 * time.Hour
)

// Reasoner writes the digest overview.
type Reasoner interface {
	Available() bool
	Narrative(ctx context.Context, in llm.NarrativeInput) (string, error)
}

// SinkError records a delivery that failed.
type SinkError struct {
	Sink  string `json:"sink"`
	Error string `json:"error"`
}

// Result is what a digest run produced.
type Result struct {
	Digest    *model.Digest `json:"digest"`
	Delivered []string      `json:"delivered,omitempty"`
	Failed    []SinkError   `json:"failed,omitempty"`
}

// Compiler builds and publishes the daily digest.
type Compiler struct {
	store           store.Store
	reasoner        Reasoner
	sinks           []Sink
	topN            int
	resurfaceDays   int
	closingSoonDays int
	loc             *time.Location
	now             func() time.Time
	log             *zap.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithReasoner enables model-written narratives.
func WithReasoner(r Reasoner) Option {
	return func(c *Compiler) { c.reasoner = r }
}

// WithSinks sets where compiled digests are delivered.
func WithSinks(sinks ...Sink) Option {
	return func(c *Compiler) { c.sinks = append(c.sinks, sinks...) }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) { c.now = now }
}

// New creates a Compiler. loc fixes the digest date and deadline counting.
func New(st store.Store, cfg config.DigestConfig, loc *time.Location, opts ...Option) *Compiler {
	if loc == nil {
		loc = time.UTC
	}
	c := &Compiler{
		store:           st,
		topN:            cfg.TopN,
		resurfaceDays:   cfg.ResurfaceDays,
		closingSoonDays: cfg.ClosingSoonDays,
		loc:             loc,
		now:             time.Now,
		log:             zap.L().With(zap.String("component", "digest")),
	}
	if c.topN <= 0 {
		c.topN = defaultTopN
	}
	if c.resurfaceDays <= 0 {
		c.resurfaceDays = defaultResurfaceDays
	}
	if c.closingSoonDays <= 0 {
		c.closingSoonDays = defaultClosingSoonDays
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run compiles today's digest, stores it, marks its tenders as surfaced and
// publishes it. A failing sink is reported in the result; the digest is
// already persisted by then.
func (c *Compiler) Run(ctx context.Context) (*Result, error) {
	d, err := c.Compile(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveDigest(ctx, d); err != nil {
		return nil, eris.Wrap(err, "digest: save")
	}
	if err := c.store.RecordSurfaced(ctx, d.Date, d.TenderIDs(), d.GeneratedAt); err != nil {
		return nil, eris.Wrap(err, "digest: record surfaced")
	}

	res := &Result{Digest: d}
	for _, s := range c.sinks {
		if err := s.Publish(ctx, d); err != nil {
			c.log.Warn("digest delivery failed", zap.String("sink", s.Name()), zap.Error(err))
			res.Failed = append(res.Failed, SinkError{Sink: s.Name(), Error: err.Error()})
			continue
		}
		res.Delivered = append(res.Delivered, s.Name())
	}

	c.log.Info("digest published",
		zap.String("date", d.Date),
		zap.Int("tenders", len(d.TenderIDs())),
		zap.Int("priority", d.PriorityCount()),
		zap.Strings("delivered", res.Delivered),
		zap.Int("failed_sinks", len(res.Failed)),
	)
	return res, nil
}

type candidate struct {
	tender      model.Tender
	days        int
	hasClosing  bool
	closingSoon bool
}

// Compile builds the digest without persisting or publishing it.
func (c *Compiler) Compile(ctx context.Context) (*model.Digest, error) {
	now := c.now().In(c.loc)
	d := &model.Digest{
		Date:        now.Format("2006-01-02"),
		GeneratedAt: now.UTC(),
	}

	cands, err := c.candidates(ctx, now)
	if err != nil {
		return nil, err
	}

	byJurisdiction := make(map[model.Jurisdiction][]candidate)
	var soon []candidate
	for _, cd := range cands {
		byJurisdiction[cd.tender.Jurisdiction] = append(byJurisdiction[cd.tender.Jurisdiction], cd)
		if cd.closingSoon {
			soon = append(soon, cd)
		}
	}

	for _, j := range jurisdictionOrder(byJurisdiction) {
		group := byJurisdiction[j]
		sortByRank(group)
		if len(group) > c.topN {
			group = group[:c.topN]
		}
		sec := model.DigestSection{Jurisdiction: j}
		for i := range group {
			e, err := c.entry(ctx, &group[i], i+1)
			if err != nil {
				return nil, err
			}
			sec.Entries = append(sec.Entries, e)
		}
		d.Sections = append(d.Sections, sec)
	}

	sort.SliceStable(soon, func(i, k int) bool {
		if soon[i].days != soon[k].days {
			return soon[i].days < soon[k].days
		}
		return soon[i].tender.ID < soon[k].tender.ID
	})
	if len(soon) > c.topN {
		soon = soon[:c.topN]
	}
	for i := range soon {
		e, err := c.entry(ctx, &soon[i], i+1)
		if err != nil {
			return nil, err
		}
		d.ClosingSoon = append(d.ClosingSoon, e)
	}

	if err := c.fillStats(ctx, d, now); err != nil {
		return nil, err
	}
	d.Subject = Subject(d.Date, d.PriorityCount())
	d.Narrative = c.narrative(ctx, d)
	return d, nil
}

// candidates lists scored canonical tenders still open for bidding. Ignore
// labels never appear. A tender surfaced within the resurface window is held
// back unless it is now closing soon.
func (c *Compiler) candidates(ctx context.Context, now time.Time) ([]candidate, error) {
	tenders, err := c.store.ListTenders(ctx, store.TenderFilter{
		CanonicalOnly:      true,
		Statuses:           []model.TenderStatus{model.TenderOpen, model.TenderUnknownClosing},
		EvaluationStatuses: []model.EvaluationStatus{model.EvalScored},
	})
	if err != nil {
		return nil, eris.Wrap(err, "digest: list tenders")
	}
	surfaced, err := c.store.SurfacedSince(ctx, now.AddDate(0, 0, -c.resurfaceDays))
	if err != nil {
		return nil, eris.Wrap(err, "digest: surfaced tenders")
	}

	var out []candidate
	for _, t := range tenders {
		if t.Label == "" || t.Label == model.LabelIgnore {
			continue
		}
		cd := candidate{tender: t}
		cd.days, cd.hasClosing = t.DaysToClose(now)
		if cd.hasClosing && cd.days < 0 {
			continue
		}
		cd.closingSoon = cd.hasClosing && cd.days <= c.closingSoonDays
		if surfaced[t.ID] && !cd.closingSoon {
			continue
		}
		out = append(out, cd)
	}
	return out, nil
}

// jurisdictionOrder puts HK and SG first, then anything else alphabetically.
func jurisdictionOrder(groups map[model.Jurisdiction][]candidate) []model.Jurisdiction {
	var order []model.Jurisdiction
	for _, j := range []model.Jurisdiction{model.JurisdictionHK, model.JurisdictionSG} {
		if len(groups[j]) > 0 {
			order = append(order, j)
		}
	}
	var rest []model.Jurisdiction
	for j := range groups {
		if j != model.JurisdictionHK && j != model.JurisdictionSG {
			rest = append(rest, j)
		}
	}
	sort.Slice(rest, func(i, k int) bool { return rest[i] < rest[k] })
	return append(order, rest...)
}

// sortByRank orders by overall score, then nearest deadline (tenders without
// one last), then id.
func sortByRank(group []candidate) {
	sort.SliceStable(group, func(i, k int) bool {
		a, b := group[i], group[k]
		sa, sb := score(&a.tender), score(&b.tender)
		if sa != sb {
			return sa > sb
		}
		if a.hasClosing != b.hasClosing {
			return a.hasClosing
		}
		if a.hasClosing && a.days != b.days {
			return a.days < b.days
		}
		return a.tender.ID < b.tender.ID
	})
}

func score(t *model.Tender) float64 {
	if t.OverallScore == nil {
		return 0
	}
	return *t.OverallScore
}

func (c *Compiler) entry(ctx context.Context, cd *candidate, rank int) (model.DigestEntry, error) {
	t := &cd.tender
	e := model.DigestEntry{
		Rank:         rank,
		TenderID:     t.ID,
		Title:        t.Title,
		Agency:       t.Agency,
		Jurisdiction: t.Jurisdiction,
		TenderRef:    t.TenderRef,
		Label:        t.Label,
		OverallScore: score(t),
		ClosingDate:  t.ClosingDate,
		Budget:       BudgetDisplay(t),
		SourceURL:    t.SourceURL,
		Categories:   t.Categories,
		Actions:      Actions(t.Label),
	}
	if cd.hasClosing {
		days := cd.days
		e.DaysRemaining = &days
	}

	ev, err := c.store.LatestEvaluation(ctx, t.ID)
	switch {
	case err == nil:
		e.Rationale = ev.Rationale
	case eris.Is(err, store.ErrNotFound):
	default:
		return e, eris.Wrapf(err, "digest: evaluation for %s", t.ID)
	}
	return e, nil
}

// Actions lists the follow-ups offered for a label. Priority tenders can
// also be assigned straight to a team.
func Actions(label model.Label) []model.DigestAction {
	actions := []model.DigestAction{
		model.ActionTrack,
		model.ActionIgnore,
		model.ActionPartnerOnly,
		model.ActionNotForUs,
	}
	if label == model.LabelPriority {
		actions = append(actions, model.ActionAssignToTeam)
	}
	return actions
}

func (c *Compiler) fillStats(ctx context.Context, d *model.Digest, now time.Time) error {
	since := now.Add(-newTenderWindow)
	fresh, err := c.store.ListTenders(ctx, store.TenderFilter{CanonicalOnly: true, FirstSeenSince: &since})
	if err != nil {
		return eris.Wrap(err, "digest: list new tenders")
	}
	d.Stats.NewTendersTotal = len(fresh)
	for _, t := range fresh {
		switch t.Jurisdiction {
		case model.JurisdictionHK:
			d.Stats.HKCount++
		case model.JurisdictionSG:
			d.Stats.SGCount++
		}
	}

	h, err := registry.HealthSummary(ctx, c.store)
	if err != nil {
		return eris.Wrap(err, "digest: source health")
	}
	d.Stats.SourcesActive = h.Active
	d.Stats.SourcesFailed = h.Failing
	d.Stats.SourceIssues = h.Issues
	return nil
}

func (c *Compiler) narrative(ctx context.Context, d *model.Digest) string {
	if c.reasoner == nil || !c.reasoner.Available() {
		return TemplateNarrative(d)
	}
	in := llm.NarrativeInput{
		Date:          d.Date,
		SourcesActive: d.Stats.SourcesActive,
		SourcesFailed: d.Stats.SourcesFailed,
		Issues:        d.Stats.SourceIssues,
	}
	for _, s := range d.Sections {
		in.Entries = append(in.Entries, s.Entries...)
	}
	text, err := c.reasoner.Narrative(ctx, in)
	if err != nil || text == "" {
		c.log.Warn("narrative fell back to template", zap.Error(err))
		return TemplateNarrative(d)
	}
	return text
}
