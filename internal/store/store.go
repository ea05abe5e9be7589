package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/model"
)

// ErrNotFound is returned (wrapped) when a keyed lookup matches nothing.
var ErrNotFound = eris.New("store: not found")

// SourceFilter specifies criteria for listing registry entries.
type SourceFilter struct {
	Statuses     []model.SourceStatus `json:"statuses,omitempty"`
	Jurisdiction model.Jurisdiction   `json:"jurisdiction,omitempty"`
	SourceType   model.SourceType     `json:"source_type,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
}

// TenderFilter specifies criteria for listing tenders.
type TenderFilter struct {
	Jurisdiction       model.Jurisdiction       `json:"jurisdiction,omitempty"`
	Statuses           []model.TenderStatus     `json:"statuses,omitempty"`
	EvaluationStatuses []model.EvaluationStatus `json:"evaluation_statuses,omitempty"`
	CanonicalOnly      bool                     `json:"canonical_only,omitempty"`
	FirstSeenSince     *time.Time               `json:"first_seen_since,omitempty"`
	Limit              int                      `json:"limit,omitempty"`
}

// Store defines the persistence interface for the tender pipeline.
type Store interface {
	// Source registry. Entries are never deleted, only deprecated.
	UpsertSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id string) (*model.Source, error)
	ListSources(ctx context.Context, filter SourceFilter) ([]model.Source, error)
	RecordSourceHealth(ctx context.Context, h model.SourceHealth) (*model.Source, error)
	SetSourceStatus(ctx context.Context, id string, status model.SourceStatus, detail string) error

	// Raw captures
	KnownGUIDs(ctx context.Context, sourceID string) (map[string]bool, error)
	InsertCaptures(ctx context.Context, captures []model.RawCapture) (int, error)
	ListPendingCaptures(ctx context.Context, limit int) ([]model.RawCapture, error)
	MarkNormalised(ctx context.Context, ids []string) error

	// Tenders
	UpsertTender(ctx context.Context, t *model.Tender) (bool, error)
	GetTender(ctx context.Context, id string) (*model.Tender, error)
	ListTenders(ctx context.Context, filter TenderFilter) ([]model.Tender, error)
	UpdateCanonical(ctx context.Context, id, canonicalID string, refs []string) error
	CloseExpired(ctx context.Context, today time.Time) (int, error)
	SaveEvaluation(ctx context.Context, ev *model.Evaluation) error
	LatestEvaluation(ctx context.Context, tenderID string) (*model.Evaluation, error)
	MarkForReevaluation(ctx context.Context, since time.Time) (int, error)

	// Digest surfacing
	RecordSurfaced(ctx context.Context, digestDate string, ids []string, at time.Time) error
	SurfacedSince(ctx context.Context, since time.Time) (map[string]bool, error)
	SaveDigest(ctx context.Context, d *model.Digest) error
	LatestDigest(ctx context.Context) (*model.Digest, error)

	// Decision log (append-only)
	InsertDecision(ctx context.Context, d *model.Decision) error
	ListDecisionRecords(ctx context.Context, since time.Time) ([]model.DecisionRecord, error)
	CountDecisionsSince(ctx context.Context, since time.Time) (int, error)

	// Profiles and calibration
	ActiveProfile(ctx context.Context) (*model.Profile, error)
	SaveProfile(ctx context.Context, p *model.Profile) error
	SaveReport(ctx context.Context, r *model.CalibrationReport) error
	LatestReport(ctx context.Context) (*model.CalibrationReport, error)
	GetRecommendation(ctx context.Context, id string) (*model.Recommendation, error)
	ListRecommendations(ctx context.Context, status model.RecommendationStatus) ([]model.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, id string, status model.RecommendationStatus, decidedBy string, at time.Time) error

	// Stage run log
	StartRun(ctx context.Context, stage string) (*model.StageRun, error)
	CompleteRun(ctx context.Context, id string, result *model.StageResult) error
	FailRun(ctx context.Context, id string, runErr error) error
	LastSuccess(ctx context.Context, stage string) (*model.StageRun, error)
	ListRuns(ctx context.Context, since time.Time) ([]model.StageRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ApplyHealth folds one fetch outcome into a source's health fields.
// Transport and parse failures count towards the broken threshold; a
// structure change leaves the previous row count in place so the next run
// can still compare against it.
func ApplyHealth(src *model.Source, h model.SourceHealth) {
	checked := h.CheckedAt.UTC()
	src.LastCheckedAt = &checked
	src.LastStatus = h.Status
	src.LastStatusDetail = h.Detail
	switch h.Status {
	case model.FetchOK:
		src.ConsecutiveFailures = 0
		src.LastRowCount = h.RowCount
	case model.FetchError, model.FetchParseError:
		src.ConsecutiveFailures++
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

type scannable interface {
	Scan(dest ...any) error
}

const sourceColumns = `data, status, created_at, updated_at`

func scanSource(row scannable) (*model.Source, error) {
	var (
		data      []byte
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&data, &status, &createdAt, &updatedAt); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: scan source")
	}
	var src model.Source
	if err := json.Unmarshal(data, &src); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal source")
	}
	src.Status = model.SourceStatus(status)
	src.CreatedAt = createdAt
	src.UpdatedAt = updatedAt
	return &src, nil
}

const captureColumns = `id, source_id, item_guid, item_url, raw_format, payload, fields, captured_at, normalised`

func scanCapture(row scannable) (*model.RawCapture, error) {
	var (
		c      model.RawCapture
		format string
		fields []byte
	)
	if err := row.Scan(&c.ID, &c.SourceID, &c.ItemGUID, &c.ItemURL, &format, &c.Payload, &fields, &c.CapturedAt, &c.Normalised); err != nil {
		return nil, eris.Wrap(err, "store: scan capture")
	}
	c.RawFormat = model.RawFormat(format)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &c.Fields); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal capture fields")
		}
	}
	return &c, nil
}

const tenderColumns = `data, status, is_canonical, canonical_tender_id, source_references,
	evaluation_status, label, capability_fit, business_potential, overall_score,
	profile_version, evaluated_at, first_seen_at, last_seen_at`

// scanTender reads the stored document and overlays the columns that later
// stages mutate in place.
func scanTender(row scannable) (*model.Tender, error) {
	var (
		data        []byte
		status      string
		isCanonical bool
		canonicalID string
		refs        []byte
		evalStatus  string
		label       string
		capability  *float64
		business    *float64
		overall     *float64
		profileVer  string
		evaluatedAt *time.Time
		firstSeen   time.Time
		lastSeen    time.Time
	)
	err := row.Scan(&data, &status, &isCanonical, &canonicalID, &refs,
		&evalStatus, &label, &capability, &business, &overall,
		&profileVer, &evaluatedAt, &firstSeen, &lastSeen)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: scan tender")
	}

	var t model.Tender
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal tender")
	}
	t.Status = model.TenderStatus(status)
	t.IsCanonical = isCanonical
	t.CanonicalTenderID = canonicalID
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &t.SourceReferences); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal source references")
		}
	}
	t.EvaluationStatus = model.EvaluationStatus(evalStatus)
	t.Label = model.Label(label)
	t.CapabilityFit = capability
	t.BusinessPotential = business
	t.OverallScore = overall
	t.ProfileVersion = profileVer
	t.EvaluatedAt = evaluatedAt
	t.FirstSeenAt = firstSeen
	t.LastSeenAt = lastSeen
	return &t, nil
}

// tenderArgs returns the write-side column values in tenderWriteColumns order.
func tenderArgs(t *model.Tender) ([]any, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal tender")
	}
	refs, err := json.Marshal(t.SourceReferences)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal source references")
	}
	var closing *time.Time
	if t.ClosingDate != nil {
		c := t.ClosingDate.UTC()
		closing = &c
	}
	return []any{
		t.ID, t.SourceID, string(t.Jurisdiction), string(t.Status), closing,
		t.IsCanonical, t.CanonicalTenderID, string(refs), string(t.EvaluationStatus),
		t.MappingVersion, t.FirstSeenAt.UTC(), t.LastSeenAt.UTC(), string(data),
	}, nil
}

const tenderWriteColumns = `tender_id, source_id, jurisdiction, status, closing_date,
	is_canonical, canonical_tender_id, source_references, evaluation_status,
	mapping_version, first_seen_at, last_seen_at, data`

func scanStageRun(row scannable) (*model.StageRun, error) {
	var (
		r      model.StageRun
		status string
		result []byte
		errMsg *string
	)
	if err := row.Scan(&r.ID, &r.Stage, &status, &r.StartedAt, &r.CompletedAt, &r.DurationMS, &result, &errMsg); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: scan stage run")
	}
	r.Status = model.StageRunStatus(status)
	if errMsg != nil {
		r.Error = *errMsg
	}
	if len(result) > 0 {
		r.Result = &model.StageResult{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal stage result")
		}
	}
	return &r, nil
}

const stageRunColumns = `id, stage, status, started_at, completed_at, duration_ms, result, error`

func scanRecommendation(row scannable) (*model.Recommendation, error) {
	var (
		data      []byte
		status    string
		decidedBy string
		decidedAt *time.Time
	)
	if err := row.Scan(&data, &status, &decidedBy, &decidedAt); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: scan recommendation")
	}
	var rec model.Recommendation
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal recommendation")
	}
	rec.Status = model.RecommendationStatus(status)
	rec.DecidedBy = decidedBy
	rec.DecidedAt = decidedAt
	return &rec, nil
}

const recommendationColumns = `data, status, decided_by, decided_at`

func scanDecisionRecord(row scannable) (*model.DecisionRecord, error) {
	var (
		rec    model.DecisionRecord
		action string
		label  string
		data   []byte
	)
	err := row.Scan(&rec.ID, &rec.TenderID, &action, &rec.Notes, &rec.Stage, &rec.DecidedBy,
		&rec.DecidedAt, &label, &rec.OverallScore, &data)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan decision")
	}
	rec.Action = model.DecisionAction(action)
	rec.Label = model.Label(label)
	var t model.Tender
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal decision tender")
	}
	rec.Title = t.Title
	rec.Agency = t.Agency
	rec.Jurisdiction = t.Jurisdiction
	rec.Categories = t.Categories
	return &rec, nil
}

func unmarshalDoc[T any](data []byte, what string) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal %s", what)
	}
	return &v, nil
}

func statusStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
