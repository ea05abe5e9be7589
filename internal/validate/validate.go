// Package validate turns a discovered URL into a registry entry or a
// structured rejection.
package validate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/fetcher"
	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/registry"
	"github.com/sells-group/tender-intel/internal/store"
)

// Reason is why a candidate was rejected. Rejections are terminal until the
// URL is discovered again.
type Reason string

const (
	ReasonInvalidURL        Reason = "invalid_url"
	ReasonUnreachable       Reason = "unreachable"
	ReasonAuthRequired      Reason = "auth_required"
	ReasonDisallowed        Reason = "disallowed"
	ReasonBlocked           Reason = "blocked"
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonNotRelevant       Reason = "not_relevant"
)

// Rejection explains a failed validation.
type Rejection struct {
	URL    string `json:"url"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Outcome is what validation did with a candidate.
type Outcome string

const (
	OutcomeRegistered    Outcome = "registered"
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomeFormatChanged Outcome = "format_changed"
	OutcomeReactivated   Outcome = "reactivated"
	OutcomeRejected      Outcome = "rejected"
)

// Candidate is a URL proposed for the registry, with whatever the hub page
// told us about it.
type Candidate struct {
	URL          string             `json:"url"`
	Name         string             `json:"name,omitempty"`
	Organisation string             `json:"organisation,omitempty"`
	Jurisdiction model.Jurisdiction `json:"jurisdiction,omitempty"`
	HubURL       string             `json:"hub_url,omitempty"`
}

// Result is the validation outcome for one candidate.
type Result struct {
	Outcome   Outcome       `json:"outcome"`
	Source    *model.Source `json:"source,omitempty"`
	Rejection *Rejection    `json:"rejection,omitempty"`
}

// Classifier settles relevance when the vocabulary check is inconclusive.
type Classifier interface {
	Available() bool
	IsTenderSource(ctx context.Context, sample string) (bool, error)
}

const defaultReliability = 0.5

// Validator checks candidates and registers the ones that pass.
type Validator struct {
	fetcher    fetcher.Fetcher
	store      store.Store
	classifier Classifier
	userAgent  string
	now        func() time.Time
	log        *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithClassifier enables the model fallback for relevance.
func WithClassifier(c Classifier) Option {
	return func(v *Validator) { v.classifier = c }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// New creates a Validator. userAgent is the agent robots.txt rules are
// matched against.
func New(f fetcher.Fetcher, st store.Store, userAgent string, opts ...Option) *Validator {
	if userAgent == "" {
		userAgent = "5ML-TenderIntel/1.0"
	}
	v := &Validator{
		fetcher:   f,
		store:     st,
		userAgent: userAgent,
		now:       time.Now,
		log:       zap.L().With(zap.String("component", "validate")),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func reject(u string, reason Reason, detail string) *Result {
	return &Result{Outcome: OutcomeRejected, Rejection: &Rejection{URL: u, Reason: reason, Detail: detail}}
}

// inspection is what the checks learned about a URL that passed them.
type inspection struct {
	norm   string
	body   []byte
	format model.SourceType
	rules  *model.ScrapeRules
}

// Validate runs reachability, crawl permission, block detection, format
// sniffing and relevance checks in that order, then registers the source.
// Re-validating a registered source records a format change, or returns a
// format_changed source to active when it passes again. The returned error
// is reserved for store failures.
func (v *Validator) Validate(ctx context.Context, c Candidate) (*Result, error) {
	in, rej, err := v.inspect(ctx, c.URL)
	if err != nil || rej != nil {
		return rej, err
	}
	norm := in.norm
	log := v.log.With(zap.String("url", norm))

	host := hostOf(norm)
	j := c.Jurisdiction
	if j == "" {
		j = InferJurisdiction(host)
	}
	id, err := registry.SourceID(j, norm)
	if err != nil {
		return reject(norm, ReasonInvalidURL, err.Error()), nil
	}

	existing, err := v.store.GetSource(ctx, id)
	switch {
	case err == nil:
		return v.revalidate(ctx, existing, in, log)
	case !eris.Is(err, store.ErrNotFound):
		return nil, eris.Wrapf(err, "validate: load source %s", id)
	}

	isHTML := in.format == model.SourceHTML
	name := c.Name
	if name == "" && isHTML {
		name = pageTitle(in.body)
	}
	if name == "" {
		name = host
	}
	src := &model.Source{
		ID:               id,
		Name:             name,
		Organisation:     c.Organisation,
		Jurisdiction:     j,
		OwnerType:        InferOwner(host, c.Organisation),
		SourceType:       in.format,
		AccessLevel:      model.AccessPublic,
		FetchURL:         norm,
		ScrapeRules:      in.rules,
		ReliabilityScore: defaultReliability,
		Status:           model.SourceActive,
	}
	if c.HubURL != "" {
		src.ParsingNotes = "discovered on " + c.HubURL
	}
	if err := registry.ValidateSource(src); err != nil {
		return reject(norm, ReasonUnsupportedFormat, err.Error()), nil
	}
	if err := v.store.UpsertSource(ctx, src); err != nil {
		return nil, eris.Wrapf(err, "validate: register %s", id)
	}
	log.Info("source registered",
		zap.String("source_id", id),
		zap.String("source_type", string(in.format)),
		zap.String("owner_type", string(src.OwnerType)),
	)
	return &Result{Outcome: OutcomeRegistered, Source: src}, nil
}

// Revalidate re-runs the checks against a registered source, keeping its
// identity. Discovery uses it for sources ingestion flagged format_changed.
func (v *Validator) Revalidate(ctx context.Context, src *model.Source) (*Result, error) {
	in, rej, err := v.inspect(ctx, src.FetchURL)
	if err != nil || rej != nil {
		return rej, err
	}
	return v.revalidate(ctx, src, in, v.log.With(zap.String("url", in.norm)))
}

// inspect fetches raw and runs every check. Exactly one of the inspection
// and the rejection is non-nil unless a store failure is returned.
func (v *Validator) inspect(ctx context.Context, raw string) (*inspection, *Result, error) {
	norm, err := registry.NormalizeURL(raw)
	if err != nil {
		return nil, reject(raw, ReasonInvalidURL, err.Error()), nil
	}

	resp, err := v.fetcher.Get(ctx, norm)
	if err != nil {
		return nil, reject(norm, ReasonUnreachable, err.Error()), nil
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if b := DetectBlock(resp); b != BlockNone {
			return nil, reject(norm, ReasonBlocked, string(b)), nil
		}
		return nil, reject(norm, ReasonAuthRequired, fmt.Sprintf("HTTP %d", resp.StatusCode)), nil
	case !resp.OK():
		return nil, reject(norm, ReasonUnreachable, fmt.Sprintf("HTTP %d", resp.StatusCode)), nil
	}

	allowed, err := v.robotsAllowed(ctx, norm)
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		return nil, reject(norm, ReasonDisallowed, "robots.txt disallows "+v.userAgent), nil
	}

	if b := DetectBlock(resp); b != BlockNone {
		return nil, reject(norm, ReasonBlocked, string(b)), nil
	}

	format := SniffFormat(resp)
	if format == "" {
		return nil, reject(norm, ReasonUnsupportedFormat, "content type "+orUnknown(resp.MediaType())), nil
	}

	isHTML := format == model.SourceHTML
	if ok, detail := v.relevant(ctx, sampleText(resp.Body, isHTML)); !ok {
		return nil, reject(norm, ReasonNotRelevant, detail), nil
	}

	var rules *model.ScrapeRules
	if isHTML {
		if rules = GuessScrapeRules(resp.Body); rules == nil {
			return nil, reject(norm, ReasonUnsupportedFormat, "html page has no repeating rows with links"), nil
		}
	}
	return &inspection{norm: norm, body: resp.Body, format: format, rules: rules}, nil, nil
}

// revalidate compares a fresh inspection with a registered source. A new
// format is recorded as format_changed; a format_changed source whose format
// holds gets the fresh rules and goes back to active. Otherwise nothing is
// written.
func (v *Validator) revalidate(ctx context.Context, src *model.Source, in *inspection, log *zap.Logger) (*Result, error) {
	var outcome Outcome
	switch {
	case src.SourceType != in.format:
		src.LastStatusDetail = fmt.Sprintf("format changed from %s to %s", src.SourceType, in.format)
		src.SourceType = in.format
		src.Status = model.SourceFormatChanged
		outcome = OutcomeFormatChanged
	case src.Status == model.SourceFormatChanged:
		src.LastStatusDetail = "revalidated with refreshed rules"
		src.Status = model.SourceActive
		outcome = OutcomeReactivated
	default:
		return &Result{Outcome: OutcomeUnchanged, Source: src}, nil
	}
	src.ScrapeRules = in.rules
	if err := v.store.UpsertSource(ctx, src); err != nil {
		return nil, eris.Wrapf(err, "validate: update %s", src.ID)
	}
	if outcome == OutcomeFormatChanged {
		log.Warn("source format changed", zap.String("source_id", src.ID), zap.String("detail", src.LastStatusDetail))
	} else {
		log.Info("format_changed source reactivated", zap.String("source_id", src.ID))
	}
	return &Result{Outcome: outcome, Source: src}, nil
}

// relevant applies the vocabulary check, deferring to the classifier when
// only a single term matched.
func (v *Validator) relevant(ctx context.Context, sample string) (bool, string) {
	hits := VocabularyHits(sample)
	switch {
	case hits >= relevantHits:
		return true, ""
	case hits == 0:
		return false, "no tender vocabulary found"
	}
	if v.classifier == nil || !v.classifier.Available() {
		return false, "tender vocabulary inconclusive"
	}
	ok, err := v.classifier.IsTenderSource(ctx, truncateRunes(sample, maxSampleRunes))
	if err != nil {
		v.log.Warn("relevance classifier failed", zap.Error(err))
		return false, "tender vocabulary inconclusive"
	}
	if !ok {
		return false, "classifier judged page not a tender source"
	}
	return true, ""
}

// Probe re-checks a broken source. A reachable, unblocked response brings
// it back to active; anything else refreshes its health detail.
func (v *Validator) Probe(ctx context.Context, src *model.Source) (bool, error) {
	health := model.SourceHealth{
		SourceID:  src.ID,
		Status:    model.FetchOK,
		RowCount:  src.LastRowCount,
		CheckedAt: v.now().UTC(),
	}
	resp, err := v.fetcher.Get(ctx, src.FetchURL)
	switch {
	case err != nil:
		health.Status, health.Detail = model.FetchError, err.Error()
	case !resp.OK():
		health.Status, health.Detail = model.FetchError, fmt.Sprintf("HTTP %d", resp.StatusCode)
	case DetectBlock(resp) != BlockNone:
		health.Status, health.Detail = model.FetchError, "blocked: "+string(DetectBlock(resp))
	}

	if _, err := v.store.RecordSourceHealth(ctx, health); err != nil {
		return false, eris.Wrapf(err, "validate: record probe for %s", src.ID)
	}
	if health.Status != model.FetchOK {
		return false, nil
	}
	if err := v.store.SetSourceStatus(ctx, src.ID, model.SourceActive, "reactivated by discovery probe"); err != nil {
		return false, eris.Wrapf(err, "validate: reactivate %s", src.ID)
	}
	v.log.Info("broken source reactivated", zap.String("source_id", src.ID))
	return true, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
