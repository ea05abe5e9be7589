// Package discovery crawls hub pages for new tender feeds and listings,
// hands them to validation, and re-probes sources that have gone broken.
package discovery

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/fetcher"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/registry"
	"github.com/sells-group/tender-intel/internal/store"
	"github.com/sells-group/tender-intel/internal/validate"
)

// StageName is the stage run log key for discovery runs.
const StageName = "discovery"

const defaultMaxPerHub = 50

// Validator checks candidates, re-probes broken sources and re-validates
// sources whose format changed.
type Validator interface {
	Validate(ctx context.Context, c validate.Candidate) (*validate.Result, error)
	Revalidate(ctx context.Context, src *model.Source) (*validate.Result, error)
	Probe(ctx context.Context, src *model.Source) (bool, error)
}

// Report summarises one discovery run.
type Report struct {
	HubsCrawled     int                  `json:"hubs_crawled"`
	CandidatesFound int                  `json:"candidates_found"`
	NewCandidates   int                  `json:"new_candidates"`
	Registered      []string             `json:"registered"`
	FormatChanged   []string             `json:"format_changed,omitempty"`
	Rejected        []validate.Rejection `json:"rejected"`
	Reactivated     []string             `json:"reactivated"`
	StillBroken     []string             `json:"still_broken"`
	StillChanged    []string             `json:"still_format_changed,omitempty"`
	Errors          []string             `json:"errors,omitempty"`
}

// StageResult converts the report for the stage run log.
func (r *Report) StageResult() *model.StageResult {
	return &model.StageResult{
		ItemsProcessed: r.NewCandidates + len(r.Reactivated) + len(r.StillBroken) + len(r.StillChanged),
		NewItems:       len(r.Registered),
		Failures:       len(r.Errors),
		Detail: map[string]any{
			"hubs_crawled":     r.HubsCrawled,
			"candidates_found": r.CandidatesFound,
			"rejected":         len(r.Rejected),
			"reactivated":      len(r.Reactivated),
			"still_broken":     len(r.StillBroken),
			"still_changed":    len(r.StillChanged),
		},
	}
}

// Discoverer runs the weekly discovery pass.
type Discoverer struct {
	fetcher   fetcher.Fetcher
	store     store.Store
	validator Validator
	hubs      []config.Hub
	blocklist []string
	maxPerHub int
	log       *zap.Logger
}

// New creates a Discoverer over the configured hubs.
func New(f fetcher.Fetcher, st store.Store, v Validator, cfg config.DiscoveryConfig) *Discoverer {
	maxPerHub := cfg.MaxPerHub
	if maxPerHub <= 0 {
		maxPerHub = defaultMaxPerHub
	}
	return &Discoverer{
		fetcher:   f,
		store:     st,
		validator: v,
		hubs:      cfg.Hubs,
		blocklist: cfg.HostBlocklist,
		maxPerHub: maxPerHub,
		log:       zap.L().With(zap.String("component", "discovery")),
	}
}

// Run crawls every hub, validates links not yet in the registry, then
// re-probes broken sources and re-validates format_changed ones. A failing hub is recorded and skipped. Only
// store failures abort the run.
func (d *Discoverer) Run(ctx context.Context) (*Report, error) {
	sources, err := d.store.ListSources(ctx, store.SourceFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "discovery: list sources")
	}
	known := make(map[string]bool, len(sources))
	for _, src := range sources {
		if norm, err := registry.NormalizeURL(src.FetchURL); err == nil {
			known[norm] = true
		}
	}

	report := &Report{}
	for _, hub := range d.hubs {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "discovery: cancelled")
		}
		if err := d.crawlHub(ctx, hub, known, report); err != nil {
			return report, err
		}
	}

	if err := d.reprobe(ctx, report); err != nil {
		return report, err
	}

	d.log.Info("discovery complete",
		zap.Int("hubs", report.HubsCrawled),
		zap.Int("candidates", report.CandidatesFound),
		zap.Int("new", report.NewCandidates),
		zap.Int("registered", len(report.Registered)),
		zap.Int("rejected", len(report.Rejected)),
		zap.Int("reactivated", len(report.Reactivated)),
		zap.Int("still_broken", len(report.StillBroken)),
		zap.Int("still_changed", len(report.StillChanged)),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (d *Discoverer) crawlHub(ctx context.Context, hub config.Hub, known map[string]bool, report *Report) error {
	log := d.log.With(zap.String("hub", hub.URL))

	resp, err := d.fetcher.Get(ctx, hub.URL)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("hub %s: %v", hub.URL, err))
		log.Warn("hub fetch failed", zap.Error(err))
		return nil
	}
	if !resp.OK() {
		report.Errors = append(report.Errors, fmt.Sprintf("hub %s: HTTP %d", hub.URL, resp.StatusCode))
		log.Warn("hub returned error status", zap.Int("status", resp.StatusCode))
		return nil
	}

	links, err := ExtractLinks(resp.Body, resp.URL, hub.Keywords, d.blocklist)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("hub %s: %v", hub.URL, err))
		return nil
	}
	report.HubsCrawled++
	report.CandidatesFound += len(links)

	checked := 0
	for _, link := range links {
		if known[link.URL] {
			continue
		}
		if checked >= d.maxPerHub {
			log.Info("hub candidate cap reached", zap.Int("cap", d.maxPerHub))
			break
		}
		checked++
		known[link.URL] = true
		report.NewCandidates++

		res, err := d.validator.Validate(ctx, validate.Candidate{
			URL:          link.URL,
			Name:         link.Text,
			Organisation: hub.Organisation,
			Jurisdiction: jurisdictionHint(hub),
			HubURL:       hub.URL,
		})
		if err != nil {
			return eris.Wrapf(err, "discovery: validate %s", link.URL)
		}
		switch res.Outcome {
		case validate.OutcomeRegistered:
			report.Registered = append(report.Registered, res.Source.ID)
		case validate.OutcomeFormatChanged:
			report.FormatChanged = append(report.FormatChanged, res.Source.ID)
		case validate.OutcomeReactivated:
			report.Reactivated = append(report.Reactivated, res.Source.ID)
		case validate.OutcomeRejected:
			report.Rejected = append(report.Rejected, *res.Rejection)
		}
	}
	log.Debug("hub crawled", zap.Int("links", len(links)), zap.Int("validated", checked))
	return nil
}

// reprobe gives every broken source one more fetch and every format_changed
// source a fresh validation. Sources flagged during this run's crawl wait
// for the next run.
func (d *Discoverer) reprobe(ctx context.Context, report *Report) error {
	flagged, err := d.store.ListSources(ctx, store.SourceFilter{
		Statuses: []model.SourceStatus{model.SourceBroken, model.SourceFormatChanged},
	})
	if err != nil {
		return eris.Wrap(err, "discovery: list flagged sources")
	}
	for i := range flagged {
		src := &flagged[i]
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "discovery: cancelled")
		}
		if slices.Contains(report.FormatChanged, src.ID) {
			continue
		}
		if src.Status == model.SourceFormatChanged {
			res, err := d.validator.Revalidate(ctx, src)
			if err != nil {
				return eris.Wrapf(err, "discovery: revalidate %s", src.ID)
			}
			if res.Outcome == validate.OutcomeReactivated {
				report.Reactivated = append(report.Reactivated, src.ID)
			} else {
				report.StillChanged = append(report.StillChanged, src.ID)
			}
			continue
		}
		ok, err := d.validator.Probe(ctx, src)
		if err != nil {
			return eris.Wrapf(err, "discovery: probe %s", src.ID)
		}
		if ok {
			report.Reactivated = append(report.Reactivated, src.ID)
		} else {
			report.StillBroken = append(report.StillBroken, src.ID)
		}
	}
	return nil
}

func jurisdictionHint(h config.Hub) model.Jurisdiction {
	switch strings.ToUpper(strings.TrimSpace(h.Jurisdiction)) {
	case "HK":
		return model.JurisdictionHK
	case "SG":
		return model.JurisdictionSG
	case "GLOBAL":
		return model.JurisdictionGlobal
	}
	return ""
}
