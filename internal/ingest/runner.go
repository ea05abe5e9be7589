package ingest

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tender-intel/internal/archive"
	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

// FieldExtractor recovers fields from a payload the deterministic handlers
// could not read.
type FieldExtractor interface {
	Available() bool
	ExtractFields(ctx context.Context, text string) (map[string]string, error)
}

// SourceResult is the outcome for one source.
type SourceResult struct {
	SourceID   string            `json:"source_id"`
	Family     model.Family      `json:"family"`
	Status     model.FetchStatus `json:"status"`
	Detail     string            `json:"detail,omitempty"`
	Rows       int               `json:"rows"`
	New        int               `json:"new"`
	Duplicates int               `json:"duplicates"`
	Recovered  int               `json:"recovered,omitempty"`
	Broken     bool              `json:"broken,omitempty"`
}

// RunResult summarises an ingestion run.
type RunResult struct {
	Sources     []SourceResult `json:"sources"`
	NewCaptures int            `json:"new_captures"`
	Duplicates  int            `json:"duplicates"`
	Failed      int            `json:"failed"`
}

// Runner drives the handlers over the registry.
type Runner struct {
	store           store.Store
	handlers        map[model.Family]Handler
	archive         archive.Archiver
	extractor       FieldExtractor
	brokenAfter     int
	escalate        bool
	hostConcurrency int
	now             func() time.Time
	log             *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithArchive stores every new payload in a.
func WithArchive(a archive.Archiver) RunnerOption {
	return func(r *Runner) { r.archive = a }
}

// WithExtractor enables field recovery for captures without a title.
func WithExtractor(e FieldExtractor) RunnerOption {
	return func(r *Runner) { r.extractor = e }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner with one handler per family.
func NewRunner(st store.Store, handlers []Handler, ingestCfg config.IngestConfig, fetchCfg config.FetchConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:           st,
		handlers:        make(map[model.Family]Handler, len(handlers)),
		brokenAfter:     ingestCfg.BrokenAfter,
		escalate:        ingestCfg.EscalateToLLM,
		hostConcurrency: fetchCfg.HostConcurrency,
		now:             time.Now,
		log:             zap.L().With(zap.String("component", "ingest")),
	}
	if r.brokenAfter <= 0 {
		r.brokenAfter = 3
	}
	if r.hostConcurrency <= 0 {
		r.hostConcurrency = 4
	}
	for _, h := range handlers {
		r.handlers[h.Family()] = h
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run ingests every ingestable source. Families run concurrently; within a
// family sources are grouped by host, hosts run concurrently and sources on
// one host run one after another. A failing source never stops the run.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	sources, err := r.store.ListSources(ctx, store.SourceFilter{
		Statuses: []model.SourceStatus{model.SourceActive, model.SourcePendingValidation},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: list sources")
	}

	byFamily := make(map[model.Family][]model.Source)
	for _, src := range sources {
		if !src.Ingestable() {
			continue
		}
		fam := src.SourceType.Family()
		byFamily[fam] = append(byFamily[fam], src)
	}

	var (
		mu      sync.Mutex
		results []SourceResult
	)
	collect := func(sr SourceResult) {
		mu.Lock()
		results = append(results, sr)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fam := range model.Families {
		srcs := byFamily[fam]
		if len(srcs) == 0 {
			continue
		}
		h, ok := r.handlers[fam]
		if !ok {
			r.log.Warn("no handler for family", zap.String("family", string(fam)), zap.Int("sources", len(srcs)))
			continue
		}
		g.Go(func() error {
			return r.runFamily(gctx, h, srcs, collect)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "ingest: run")
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SourceID < results[j].SourceID })
	res := &RunResult{Sources: results}
	for _, sr := range results {
		res.NewCaptures += sr.New
		res.Duplicates += sr.Duplicates
		if sr.Status == model.FetchError || sr.Status == model.FetchParseError {
			res.Failed++
		}
	}
	r.log.Info("ingestion complete",
		zap.Int("sources", len(results)),
		zap.Int("new_captures", res.NewCaptures),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (r *Runner) runFamily(ctx context.Context, h Handler, sources []model.Source, collect func(SourceResult)) error {
	byHost := make(map[string][]model.Source)
	var hosts []string
	for _, src := range sources {
		host := hostOf(src.FetchURL)
		if _, ok := byHost[host]; !ok {
			hosts = append(hosts, host)
		}
		byHost[host] = append(byHost[host], src)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.hostConcurrency)
	for _, host := range hosts {
		srcs := byHost[host]
		g.Go(func() error {
			for i := range srcs {
				if err := gctx.Err(); err != nil {
					return err
				}
				sr, err := r.ingestSource(gctx, h, &srcs[i])
				if err != nil {
					return err
				}
				collect(sr)
			}
			return nil
		})
	}
	return g.Wait()
}

// ingestSource fetches one source and records its health. Only store
// failures and cancellation are returned as errors.
func (r *Runner) ingestSource(ctx context.Context, h Handler, src *model.Source) (SourceResult, error) {
	log := r.log.With(zap.String("source_id", src.ID), zap.String("family", string(h.Family())))
	sr := SourceResult{SourceID: src.ID, Family: h.Family()}

	known, err := r.store.KnownGUIDs(ctx, src.ID)
	if err != nil {
		return sr, eris.Wrapf(err, "ingest: known guids for %s", src.ID)
	}

	start := time.Now()
	out, fetchErr := h.Fetch(ctx, src, known)
	if fetchErr != nil && ctx.Err() != nil {
		return sr, ctx.Err()
	}

	switch {
	case fetchErr != nil:
		sr.Status = StatusOf(fetchErr)
		sr.Detail = fetchErr.Error()
		log.Warn("source fetch failed", zap.String("status", string(sr.Status)), zap.Error(fetchErr))
	case out.StructureChanged:
		sr.Status = model.FetchStructureChanged
		sr.Detail = out.Detail
		sr.Rows = out.Rows
		log.Warn("source structure changed", zap.String("detail", out.Detail))
	default:
		sr.Status = model.FetchOK
		sr.Rows = out.Rows
		if err := r.persist(ctx, src, out.Captures, known, &sr, log); err != nil {
			return sr, err
		}
	}

	updated, err := r.store.RecordSourceHealth(ctx, model.SourceHealth{
		SourceID:  src.ID,
		Status:    sr.Status,
		Detail:    sr.Detail,
		RowCount:  sr.Rows,
		CheckedAt: r.now(),
	})
	if err != nil {
		return sr, eris.Wrapf(err, "ingest: record health for %s", src.ID)
	}

	if next, detail := r.nextStatus(updated, sr); next != "" && next != updated.Status {
		if err := r.store.SetSourceStatus(ctx, src.ID, next, detail); err != nil {
			return sr, eris.Wrapf(err, "ingest: set status for %s", src.ID)
		}
		sr.Broken = next == model.SourceBroken
		log.Info("source status changed", zap.String("from", string(updated.Status)), zap.String("to", string(next)))
	}

	log.Debug("source ingested",
		zap.String("status", string(sr.Status)),
		zap.Int("rows", sr.Rows),
		zap.Int("new", sr.New),
		zap.Duration("elapsed", time.Since(start)),
	)
	return sr, nil
}

// nextStatus decides the registry status after a fetch.
func (r *Runner) nextStatus(src *model.Source, sr SourceResult) (model.SourceStatus, string) {
	switch sr.Status {
	case model.FetchOK:
		if src.Status == model.SourcePendingValidation {
			return model.SourceActive, ""
		}
	case model.FetchStructureChanged:
		return model.SourceFormatChanged, sr.Detail
	case model.FetchError, model.FetchParseError:
		if src.ConsecutiveFailures >= r.brokenAfter {
			return model.SourceBroken, fmt.Sprintf("%d consecutive failures: %s", src.ConsecutiveFailures, sr.Detail)
		}
	}
	return "", ""
}

// persist drops known captures, recovers missing fields, inserts and
// archives the rest.
func (r *Runner) persist(ctx context.Context, src *model.Source, captures []model.RawCapture, known map[string]bool, sr *SourceResult, log *zap.Logger) error {
	fresh := make([]model.RawCapture, 0, len(captures))
	for _, c := range captures {
		if known[c.ItemGUID] {
			sr.Duplicates++
			continue
		}
		known[c.ItemGUID] = true
		fresh = append(fresh, c)
	}

	for i := range fresh {
		if r.recoverFields(ctx, &fresh[i], log) {
			sr.Recovered++
		}
	}

	n, err := r.store.InsertCaptures(ctx, fresh)
	if err != nil {
		return eris.Wrapf(err, "ingest: insert captures for %s", src.ID)
	}
	sr.New = n
	sr.Duplicates += len(fresh) - n

	if r.archive != nil {
		for _, c := range fresh {
			if err := r.archive.Put(ctx, c.SourceID, c.ItemGUID, []byte(c.Payload), contentType(c.RawFormat)); err != nil {
				log.Warn("archive payload failed", zap.String("item_guid", c.ItemGUID), zap.Error(err))
			}
		}
	}
	return nil
}

// recoverFields asks the extractor for fields when the handler found no title.
// The capture stays as it was when the extractor is off or fails.
func (r *Runner) recoverFields(ctx context.Context, c *model.RawCapture, log *zap.Logger) bool {
	if !r.escalate || r.extractor == nil || c.Field(model.FieldTitle) != "" || !r.extractor.Available() {
		return false
	}
	fields, err := r.extractor.ExtractFields(ctx, c.Payload)
	if err != nil {
		log.Debug("field recovery failed", zap.String("item_guid", c.ItemGUID), zap.Error(err))
		return false
	}
	if c.Fields == nil {
		c.Fields = make(map[string]string)
	}
	for k, v := range fields {
		if c.Fields[k] == "" {
			c.Fields[k] = v
		}
	}
	return c.Field(model.FieldTitle) != ""
}

func contentType(f model.RawFormat) string {
	switch f {
	case model.RawRSS, model.RawXML:
		return "application/xml"
	case model.RawHTML:
		return "text/html; charset=utf-8"
	case model.RawCSV, model.RawJSON:
		return "application/json"
	}
	return ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.ToLower(u.Hostname())
}
