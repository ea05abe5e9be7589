// Package normalize turns raw captures into canonical tender records.
package normalize

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

// MappingVersion identifies the field mapping rules applied to a tender.
const MappingVersion = "v1.2"

const (
	maxDescription   = 500
	defaultBatchSize = 500
	workers          = 8
)

// SkipReason explains why a capture produced no tender.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipMissingTitle  SkipReason = "missing_title"
	SkipUnknownSource SkipReason = "unknown_source"
)

// Classifier is the optional category fallback used when the deterministic
// cascade finds nothing.
type Classifier interface {
	Available() bool
	Classify(ctx context.Context, text string, vocabulary []string) ([]string, error)
}

// Result summarises one normalisation sweep.
type Result struct {
	Processed int                `json:"processed"`
	Created   int                `json:"created"`
	Updated   int                `json:"updated"`
	Skipped   map[SkipReason]int `json:"skipped"`
	Failed    int                `json:"failed"`
	Closed    int                `json:"closed"`
}

// Normalizer maps captures to tenders.
type Normalizer struct {
	store      store.Store
	classifier Classifier
	loc        *time.Location
	now        func() time.Time
	batchSize  int
	log        *zap.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClassifier enables the classifier fallback for unclassified tenders.
func WithClassifier(c Classifier) Option {
	return func(n *Normalizer) { n.classifier = c }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithBatchSize sets how many pending captures are read per batch.
func WithBatchSize(size int) Option {
	return func(n *Normalizer) {
		if size > 0 {
			n.batchSize = size
		}
	}
}

// New creates a Normalizer. Dates and statuses are resolved in loc, which
// defaults to UTC when nil.
func New(st store.Store, loc *time.Location, opts ...Option) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	n := &Normalizer{
		store:     st,
		loc:       loc,
		now:       time.Now,
		batchSize: defaultBatchSize,
		log:       zap.L().With(zap.String("component", "normalize")),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize maps one capture to a tender. It has no side effects and gives
// the same tender for the same inputs.
func (n *Normalizer) Normalize(src *model.Source, c *model.RawCapture, now time.Time) (*model.Tender, SkipReason) {
	if src == nil {
		return nil, SkipUnknownSource
	}
	title := cleanText(c.Field(model.FieldTitle))
	if title == "" {
		return nil, SkipMissingTitle
	}
	description := truncateRunes(cleanText(c.Field(model.FieldDescription)), maxDescription)

	t := &model.Tender{
		ID:               TenderID(c.SourceID, c.ItemGUID),
		SourceID:         c.SourceID,
		SourceReferences: []string{c.SourceID},
		RawCaptureID:     c.ID,
		SourceURL:        firstNonEmpty(c.Field(model.FieldLink), c.ItemURL),
		Jurisdiction:     src.Jurisdiction,
		OwnerType:        src.OwnerType,
		Title:            title,
		Agency:           firstNonEmpty(cleanText(c.Field(model.FieldAgency)), src.Organisation, src.Name),
		Description:      description,
		RawCategory:      strings.TrimSpace(c.Field(model.FieldCategory)),
		IsCanonical:      true,
		EvaluationStatus: model.EvalPending,
		MappingVersion:   MappingVersion,
		FirstSeenAt:      c.CapturedAt.UTC(),
		LastSeenAt:       now.UTC(),
	}

	if ref := strings.TrimSpace(c.Field(model.FieldTenderRef)); ref != "" {
		t.TenderRef = ref
	} else if ref := ExtractRef(src.ParsingNotes, title, description); ref != "" {
		t.TenderRef = ref
	} else {
		t.TenderRef = SyntheticRef(c.SourceID, title)
		t.RefSynthetic = true
	}

	if d, ok := ParseDate(c.Field(model.FieldPublishDate), n.loc); ok {
		t.PublishDate = &d
	} else {
		d := model.CivilDate(c.CapturedAt.In(n.loc))
		t.PublishDate = &d
		t.PublishDateEstimated = true
	}
	if d, ok := ParseDate(c.Field(model.FieldClosingDate), n.loc); ok {
		t.ClosingDate = &d
	}
	t.Status = StatusFor(t.ClosingDate, model.CivilDate(now.In(n.loc)))

	t.Categories = Categorize(src.DefaultCategories, t.RawCategory, title, description)
	t.NoticeType = InferNoticeType(title, t.RawCategory)

	t.Currency = DefaultCurrency(src.Jurisdiction)
	t.BudgetSource = model.BudgetUnknown
	if b, ok := ParseBudget(c.Field(model.FieldBudget), src.Jurisdiction); ok {
		t.BudgetMin, t.BudgetMax = b.Min, b.Max
		t.Currency = b.Currency
		t.BudgetSource = model.BudgetStated
	}
	if cur := strings.ToUpper(strings.TrimSpace(c.Field(model.FieldCurrency))); len(cur) == 3 {
		t.Currency = cur
	}

	if raw := strings.TrimSpace(c.Field(model.FieldRequiredFTE)); raw != "" {
		if fte, err := strconv.ParseFloat(raw, 64); err == nil && fte > 0 {
			t.RequiredFTE = &fte
		}
	}
	return t, SkipNone
}

// StatusFor derives the tender status from the closing date and today's
// civil date.
func StatusFor(closing *time.Time, today time.Time) model.TenderStatus {
	if closing == nil {
		return model.TenderUnknownClosing
	}
	if closing.Before(today) {
		return model.TenderClosed
	}
	return model.TenderOpen
}

// Run normalises every pending capture and closes tenders whose closing
// date has passed.
func (n *Normalizer) Run(ctx context.Context) (*Result, error) {
	res := &Result{Skipped: make(map[SkipReason]int)}
	sources := make(map[string]*model.Source)

	for {
		batch, err := n.store.ListPendingCaptures(ctx, n.batchSize)
		if err != nil {
			return res, eris.Wrap(err, "normalize: list pending captures")
		}
		if len(batch) == 0 {
			break
		}
		if err := n.loadSources(ctx, batch, sources); err != nil {
			return res, err
		}

		done, err := n.processBatch(ctx, batch, sources, res)
		if err != nil {
			return res, err
		}
		if err := n.store.MarkNormalised(ctx, done); err != nil {
			return res, eris.Wrap(err, "normalize: mark normalised")
		}
		if len(done) == 0 || len(batch) < n.batchSize {
			break
		}
	}

	closed, err := n.store.CloseExpired(ctx, model.CivilDate(n.now().In(n.loc)))
	if err != nil {
		return res, eris.Wrap(err, "normalize: close expired")
	}
	res.Closed = closed

	n.log.Info("normalisation complete",
		zap.Int("processed", res.Processed),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
		zap.Int("closed", res.Closed),
		zap.Any("skipped", res.Skipped),
	)
	return res, nil
}

func (n *Normalizer) loadSources(ctx context.Context, batch []model.RawCapture, cache map[string]*model.Source) error {
	for i := range batch {
		id := batch[i].SourceID
		if _, ok := cache[id]; ok {
			continue
		}
		src, err := n.store.GetSource(ctx, id)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				cache[id] = nil
				continue
			}
			return eris.Wrapf(err, "normalize: load source %s", id)
		}
		cache[id] = src
	}
	return nil
}

// processBatch upserts tenders concurrently and returns the ids of captures
// that are finished with, skipped ones included. Captures whose upsert
// failed stay pending for the next run.
func (n *Normalizer) processBatch(ctx context.Context, batch []model.RawCapture, sources map[string]*model.Source, res *Result) ([]string, error) {
	now := n.now()
	var (
		mu   sync.Mutex
		done []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range batch {
		c := &batch[i]
		g.Go(func() error {
			t, reason := n.Normalize(sources[c.SourceID], c, now)
			if reason != SkipNone {
				mu.Lock()
				res.Processed++
				res.Skipped[reason]++
				done = append(done, c.ID)
				mu.Unlock()
				n.log.Debug("capture skipped",
					zap.String("capture_id", c.ID),
					zap.String("source_id", c.SourceID),
					zap.String("reason", string(reason)),
				)
				return nil
			}

			n.classify(gctx, t)

			created, err := n.store.UpsertTender(gctx, t)
			mu.Lock()
			defer mu.Unlock()
			res.Processed++
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res.Failed++
				n.log.Warn("upsert tender failed",
					zap.String("tender_id", t.ID),
					zap.String("capture_id", c.ID),
					zap.Error(err),
				)
				return nil
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
			done = append(done, c.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return done, eris.Wrap(err, "normalize: process batch")
	}
	return done, nil
}

// classify asks the classifier for tags when the deterministic cascade fell
// through to "other". Any failure keeps "other".
func (n *Normalizer) classify(ctx context.Context, t *model.Tender) {
	if n.classifier == nil || !Unclassified(t.Categories) || !n.classifier.Available() {
		return
	}
	tags, err := n.classifier.Classify(ctx, t.Title+"\n"+t.Description, vocabulary())
	if err != nil {
		n.log.Debug("classifier fallback failed", zap.String("tender_id", t.ID), zap.Error(err))
		return
	}
	if len(tags) > 0 {
		t.Categories = tags
	}
}

func vocabulary() []string {
	out := make([]string, 0, len(model.Categories))
	for _, c := range model.Categories {
		if c != model.CategoryOther {
			out = append(out, c)
		}
	}
	return out
}

// cleanText strips markup and collapses whitespace.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
