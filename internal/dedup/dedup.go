// Package dedup collapses notices of the same tender published by more than
// one source into a single canonical record.
package dedup

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/normalize"
	"github.com/sells-group/tender-intel/internal/store"
)

// Defaults applied when the config leaves a knob unset.
const (
	DefaultTitleThreshold       = 0.85
	DefaultClosingToleranceDays = 2
	DefaultLookbackDays         = 60
)

// Result reports what one pass did.
type Result struct {
	Compared        int `json:"compared"`
	Clusters        int `json:"clusters"`
	MarkedDuplicate int `json:"marked_duplicate"`
}

// Deduplicator links duplicate tenders to a canonical one.
type Deduplicator struct {
	store     store.Store
	threshold float64
	tolerance time.Duration
	lookback  time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) { d.now = now }
}

// New creates a Deduplicator.
func New(st store.Store, cfg config.DedupConfig, opts ...Option) *Deduplicator {
	threshold := cfg.TitleThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultTitleThreshold
	}
	tolerance := cfg.ClosingToleranceDays
	if tolerance < 0 {
		tolerance = DefaultClosingToleranceDays
	}
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	d := &Deduplicator{
		store:     st,
		threshold: threshold,
		tolerance: time.Duration(tolerance) * 24 * time.Hour,
		lookback:  time.Duration(lookback) * 24 * time.Hour,
		now:       time.Now,
		log:       zap.L().With(zap.String("component", "dedup")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Match reports whether two tenders describe the same procurement. A shared
// natural reference is enough on its own; otherwise the titles must be
// similar, the agencies equal, and the closing dates close together.
func (d *Deduplicator) Match(a, b *model.Tender) bool {
	if a.Jurisdiction != b.Jurisdiction {
		return false
	}
	if !a.RefSynthetic && !b.RefSynthetic {
		ra, rb := normalize.NormaliseRef(a.TenderRef), normalize.NormaliseRef(b.TenderRef)
		if ra != "" && ra == rb {
			return true
		}
	}

	agency := NormalizeAgency(a.Agency)
	if agency == "" || agency != NormalizeAgency(b.Agency) {
		return false
	}
	if !d.closingWithinTolerance(a.ClosingDate, b.ClosingDate) {
		return false
	}
	return TitleSimilarity(a.Title, b.Title) >= d.threshold
}

func (d *Deduplicator) closingWithinTolerance(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	diff := a.Sub(*b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= d.tolerance
}

// Run compares canonical tenders first seen inside the lookback window and
// rewrites canonical links for every cluster with more than one member.
// Running it twice over the same data changes nothing the second time.
func (d *Deduplicator) Run(ctx context.Context) (*Result, error) {
	since := d.now().Add(-d.lookback)
	tenders, err := d.store.ListTenders(ctx, store.TenderFilter{FirstSeenSince: &since})
	if err != nil {
		return nil, eris.Wrap(err, "dedup: list tenders")
	}
	sources, err := d.store.ListSources(ctx, store.SourceFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "dedup: list sources")
	}
	reliability := make(map[string]float64, len(sources))
	for _, s := range sources {
		reliability[s.ID] = s.ReliabilityScore
	}

	res := &Result{}
	uf := newUnionFind(len(tenders))
	index := make(map[string]int, len(tenders))
	for i := range tenders {
		index[tenders[i].ID] = i
	}
	// Earlier passes already linked some tenders; keep those links so a
	// demoted canonical takes its duplicates along.
	for i := range tenders {
		if j, ok := index[tenders[i].CanonicalTenderID]; ok && !tenders[i].IsCanonical {
			uf.union(i, j)
		}
	}

	blocks := make(map[model.Jurisdiction][]int)
	for i := range tenders {
		if tenders[i].IsCanonical {
			blocks[tenders[i].Jurisdiction] = append(blocks[tenders[i].Jurisdiction], i)
		}
	}
	for _, block := range blocks {
		for x := 0; x < len(block); x++ {
			for y := x + 1; y < len(block); y++ {
				i, j := block[x], block[y]
				res.Compared++
				if uf.find(i) == uf.find(j) {
					continue
				}
				if d.Match(&tenders[i], &tenders[j]) {
					uf.union(i, j)
				}
			}
		}
	}

	for _, members := range uf.groups() {
		if len(members) < 2 {
			continue
		}
		res.Clusters++
		marked, err := d.apply(ctx, tenders, members, reliability)
		if err != nil {
			return nil, err
		}
		res.MarkedDuplicate += marked
	}

	d.log.Info("dedup complete",
		zap.Int("tenders", len(tenders)),
		zap.Int("compared", res.Compared),
		zap.Int("clusters", res.Clusters),
		zap.Int("marked_duplicate", res.MarkedDuplicate),
	)
	return res, nil
}

// apply writes the canonical choice for one cluster and returns how many
// tenders were newly marked as duplicates.
func (d *Deduplicator) apply(ctx context.Context, tenders []model.Tender, members []int, reliability map[string]float64) (int, error) {
	canon := ChooseCanonical(tenders, members, reliability)
	canonical := &tenders[canon]

	refSet := make(map[string]bool)
	for _, m := range members {
		for _, ref := range tenders[m].SourceReferences {
			refSet[ref] = true
		}
	}
	refs := make([]string, 0, len(refSet))
	for ref := range refSet {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	if !canonical.IsCanonical || canonical.CanonicalTenderID != "" || !slices.Equal(canonical.SourceReferences, refs) {
		if err := d.store.UpdateCanonical(ctx, canonical.ID, "", refs); err != nil {
			return 0, eris.Wrapf(err, "dedup: promote %s", canonical.ID)
		}
	}

	marked := 0
	for _, m := range members {
		if m == canon {
			continue
		}
		t := &tenders[m]
		if !t.IsCanonical && t.CanonicalTenderID == canonical.ID {
			continue
		}
		if err := d.store.UpdateCanonical(ctx, t.ID, canonical.ID, nil); err != nil {
			return 0, eris.Wrapf(err, "dedup: link %s", t.ID)
		}
		if t.IsCanonical {
			marked++
		}
		d.log.Debug("tender linked",
			zap.String("tender_id", t.ID),
			zap.String("canonical_tender_id", canonical.ID),
		)
	}
	return marked, nil
}

// ChooseCanonical picks the member from the most reliable source, then the
// earliest seen, then the smallest id.
func ChooseCanonical(tenders []model.Tender, members []int, reliability map[string]float64) int {
	best := members[0]
	for _, m := range members[1:] {
		a, b := &tenders[m], &tenders[best]
		ra, rb := reliability[a.SourceID], reliability[b.SourceID]
		switch {
		case ra != rb:
			if ra > rb {
				best = m
			}
		case !a.FirstSeenAt.Equal(b.FirstSeenAt):
			if a.FirstSeenAt.Before(b.FirstSeenAt) {
				best = m
			}
		case a.ID < b.ID:
			best = m
		}
	}
	return best
}
