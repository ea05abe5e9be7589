package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/db"
	"github.com/sells-group/tender-intel/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest paths of the daily run.
var preparedStatements = map[string]string{
	"known_guids":     `SELECT item_guid FROM raw_captures WHERE source_id = $1`,
	"get_source":      `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`,
	"get_tender":      `SELECT ` + tenderColumns + ` FROM tenders WHERE tender_id = $1`,
	"tender_exists":   `SELECT EXISTS (SELECT 1 FROM tenders WHERE tender_id = $1)`,
	"active_profile":  `SELECT data FROM profiles ORDER BY seq DESC LIMIT 1`,
	"surfaced_since":  `SELECT DISTINCT tender_id FROM surfaced_tenders WHERE surfaced_at >= $1`,
	"count_decisions": `SELECT COUNT(*) FROM decisions WHERE decided_at >= $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id           TEXT PRIMARY KEY,
	jurisdiction TEXT NOT NULL,
	source_type  TEXT NOT NULL,
	status       TEXT NOT NULL,
	fetch_url    TEXT NOT NULL,
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS raw_captures (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_id   TEXT NOT NULL,
	item_guid   TEXT NOT NULL,
	item_url    TEXT NOT NULL DEFAULT '',
	raw_format  TEXT NOT NULL,
	payload     TEXT NOT NULL,
	fields      JSONB,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	normalised  BOOLEAN NOT NULL DEFAULT false,
	UNIQUE (source_id, item_guid)
);

CREATE TABLE IF NOT EXISTS tenders (
	tender_id           TEXT PRIMARY KEY,
	source_id           TEXT NOT NULL,
	jurisdiction        TEXT NOT NULL,
	status              TEXT NOT NULL,
	closing_date        TIMESTAMPTZ,
	is_canonical        BOOLEAN NOT NULL DEFAULT true,
	canonical_tender_id TEXT NOT NULL DEFAULT '',
	source_references   JSONB NOT NULL DEFAULT '[]',
	evaluation_status   TEXT NOT NULL DEFAULT 'pending',
	label               TEXT NOT NULL DEFAULT '',
	capability_fit      DOUBLE PRECISION,
	business_potential  DOUBLE PRECISION,
	overall_score       DOUBLE PRECISION,
	profile_version     TEXT NOT NULL DEFAULT '',
	evaluated_at        TIMESTAMPTZ,
	mapping_version     TEXT NOT NULL,
	first_seen_at       TIMESTAMPTZ NOT NULL,
	last_seen_at        TIMESTAMPTZ NOT NULL,
	data                JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluations (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tender_id       TEXT NOT NULL REFERENCES tenders(tender_id),
	profile_version TEXT NOT NULL,
	label           TEXT NOT NULL,
	overall_score   DOUBLE PRECISION NOT NULL,
	data            JSONB NOT NULL,
	evaluated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS decisions (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tender_id     TEXT NOT NULL REFERENCES tenders(tender_id),
	action        TEXT NOT NULL,
	notes         TEXT NOT NULL DEFAULT '',
	stage         TEXT NOT NULL DEFAULT '',
	decided_by    TEXT NOT NULL DEFAULT '',
	decided_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	label         TEXT NOT NULL DEFAULT '',
	overall_score DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS profiles (
	seq        BIGSERIAL PRIMARY KEY,
	version    TEXT NOT NULL UNIQUE,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS calibration_reports (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	profile_version TEXT NOT NULL,
	data            JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recommendations (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	report_id  TEXT NOT NULL REFERENCES calibration_reports(id),
	status     TEXT NOT NULL DEFAULT 'proposed',
	decided_by TEXT NOT NULL DEFAULT '',
	decided_at TIMESTAMPTZ,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stage_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	stage        TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	result       JSONB,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS digests (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	digest_date  TEXT NOT NULL UNIQUE,
	data         JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS surfaced_tenders (
	tender_id   TEXT NOT NULL,
	digest_date TEXT NOT NULL,
	surfaced_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tender_id, digest_date)
);

CREATE INDEX IF NOT EXISTS idx_sources_status ON sources(status);
CREATE INDEX IF NOT EXISTS idx_raw_captures_pending ON raw_captures(captured_at) WHERE NOT normalised;
CREATE INDEX IF NOT EXISTS idx_tenders_eval ON tenders(evaluation_status) WHERE is_canonical;
CREATE INDEX IF NOT EXISTS idx_tenders_first_seen ON tenders(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_evaluations_tender ON evaluations(tender_id, evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decisions(decided_at);
CREATE INDEX IF NOT EXISTS idx_recommendations_report ON recommendations(report_id);
CREATE INDEX IF NOT EXISTS idx_stage_runs_stage ON stage_runs(stage, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_surfaced_at ON surfaced_tenders(surfaced_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Sources ---

func (s *PostgresStore) UpsertSource(ctx context.Context, src *model.Source) error {
	now := time.Now().UTC()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now

	data, err := json.Marshal(src)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sources (id, jurisdiction, source_type, status, fetch_url, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   jurisdiction = EXCLUDED.jurisdiction,
		   source_type = EXCLUDED.source_type,
		   status = EXCLUDED.status,
		   fetch_url = EXCLUDED.fetch_url,
		   data = EXCLUDED.data,
		   updated_at = EXCLUDED.updated_at`,
		src.ID, string(src.Jurisdiction), string(src.SourceType), string(src.Status), src.FetchURL,
		data, src.CreatedAt.UTC(), now,
	)
	return eris.Wrapf(err, "postgres: upsert source %s", src.ID)
}

func (s *PostgresStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %s", id)
	}
	return src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context, filter SourceFilter) ([]model.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE true`
	args := []any{}
	argIdx := 1

	if len(filter.Statuses) > 0 {
		query += fmt.Sprintf(` AND status = ANY($%d)`, argIdx)
		args = append(args, statusStrings(filter.Statuses))
		argIdx++
	}
	if filter.Jurisdiction != "" {
		query += fmt.Sprintf(` AND jurisdiction = $%d`, argIdx)
		args = append(args, string(filter.Jurisdiction))
		argIdx++
	}
	if filter.SourceType != "" {
		query += fmt.Sprintf(` AND source_type = $%d`, argIdx)
		args = append(args, string(filter.SourceType))
		argIdx++
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) RecordSourceHealth(ctx context.Context, h model.SourceHealth) (*model.Source, error) {
	src, err := s.GetSource(ctx, h.SourceID)
	if err != nil {
		return nil, err
	}
	ApplyHealth(src, h)
	if err := s.UpsertSource(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *PostgresStore) SetSourceStatus(ctx context.Context, id string, status model.SourceStatus, detail string) error {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	src.Status = status
	if detail != "" {
		src.LastStatusDetail = detail
	}
	return s.UpsertSource(ctx, src)
}

// --- Raw captures ---

func (s *PostgresStore) KnownGUIDs(ctx context.Context, sourceID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT item_guid FROM raw_captures WHERE source_id = $1`, sourceID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: known guids for %s", sourceID)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, eris.Wrap(err, "postgres: scan guid")
		}
		known[guid] = true
	}
	return known, eris.Wrap(rows.Err(), "postgres: known guids iterate")
}

// InsertCaptures bulk-loads captures through COPY; rows whose
// (source_id, item_guid) already exist are left untouched.
func (s *PostgresStore) InsertCaptures(ctx context.Context, captures []model.RawCapture) (int, error) {
	rows := make([][]any, 0, len(captures))
	for i := range captures {
		c := &captures[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		fields, err := json.Marshal(c.Fields)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal capture fields")
		}
		rows = append(rows, []any{
			c.ID, c.SourceID, c.ItemGUID, c.ItemURL, string(c.RawFormat), c.Payload,
			fields, c.CapturedAt.UTC(), false,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "raw_captures",
		Columns:      []string{"id", "source_id", "item_guid", "item_url", "raw_format", "payload", "fields", "captured_at", "normalised"},
		ConflictKeys: []string{"source_id", "item_guid"},
		DoNothing:    true,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert captures")
	}
	return int(n), nil
}

func (s *PostgresStore) ListPendingCaptures(ctx context.Context, limit int) ([]model.RawCapture, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+captureColumns+` FROM raw_captures WHERE NOT normalised
		 ORDER BY captured_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending captures")
	}
	defer rows.Close()

	var out []model.RawCapture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list pending captures iterate")
}

func (s *PostgresStore) MarkNormalised(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE raw_captures SET normalised = true WHERE id = ANY($1)`, ids)
	return eris.Wrap(err, "postgres: mark normalised")
}

// --- Tenders ---

func (s *PostgresStore) UpsertTender(ctx context.Context, t *model.Tender) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenders WHERE tender_id = $1)`, t.ID,
	).Scan(&exists); err != nil {
		return false, eris.Wrapf(err, "postgres: check tender %s", t.ID)
	}

	args, err := tenderArgs(t)
	if err != nil {
		return false, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tenders (`+tenderWriteColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (tender_id) DO UPDATE SET
		   source_id = EXCLUDED.source_id,
		   jurisdiction = EXCLUDED.jurisdiction,
		   status = EXCLUDED.status,
		   closing_date = EXCLUDED.closing_date,
		   mapping_version = EXCLUDED.mapping_version,
		   last_seen_at = EXCLUDED.last_seen_at,
		   data = EXCLUDED.data`,
		args...,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert tender %s", t.ID)
	}
	return !exists, nil
}

func (s *PostgresStore) GetTender(ctx context.Context, id string) (*model.Tender, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenderColumns+` FROM tenders WHERE tender_id = $1`, id)
	t, err := scanTender(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get tender %s", id)
	}
	return t, nil
}

func (s *PostgresStore) ListTenders(ctx context.Context, filter TenderFilter) ([]model.Tender, error) {
	query := `SELECT ` + tenderColumns + ` FROM tenders WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Jurisdiction != "" {
		query += fmt.Sprintf(` AND jurisdiction = $%d`, argIdx)
		args = append(args, string(filter.Jurisdiction))
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		query += fmt.Sprintf(` AND status = ANY($%d)`, argIdx)
		args = append(args, statusStrings(filter.Statuses))
		argIdx++
	}
	if len(filter.EvaluationStatuses) > 0 {
		query += fmt.Sprintf(` AND evaluation_status = ANY($%d)`, argIdx)
		args = append(args, statusStrings(filter.EvaluationStatuses))
		argIdx++
	}
	if filter.CanonicalOnly {
		query += ` AND is_canonical`
	}
	if filter.FirstSeenSince != nil {
		query += fmt.Sprintf(` AND first_seen_at >= $%d`, argIdx)
		args = append(args, filter.FirstSeenSince.UTC())
		argIdx++
	}
	query += ` ORDER BY first_seen_at, tender_id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tenders")
	}
	defer rows.Close()

	var out []model.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list tenders iterate")
}

func (s *PostgresStore) UpdateCanonical(ctx context.Context, id, canonicalID string, refs []string) error {
	isCanonical := canonicalID == ""
	var (
		query string
		args  []any
	)
	if refs == nil {
		query = `UPDATE tenders SET is_canonical = $1, canonical_tender_id = $2 WHERE tender_id = $3`
		args = []any{isCanonical, canonicalID, id}
	} else {
		refsJSON, err := json.Marshal(refs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal source references")
		}
		query = `UPDATE tenders SET is_canonical = $1, canonical_tender_id = $2, source_references = $3 WHERE tender_id = $4`
		args = []any{isCanonical, canonicalID, refsJSON, id}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update canonical %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "tender %s", id)
	}
	return nil
}

func (s *PostgresStore) CloseExpired(ctx context.Context, today time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenders SET status = $1 WHERE status = $2 AND closing_date IS NOT NULL AND closing_date < $3`,
		string(model.TenderClosed), string(model.TenderOpen), today.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: close expired tenders")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveEvaluation(ctx context.Context, ev *model.Evaluation) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evaluation")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin evaluation tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	at := ev.EvaluatedAt.UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO evaluations (id, tender_id, profile_version, label, overall_score, data, evaluated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.TenderID, ev.ProfileVersion, string(ev.Label), ev.OverallScore, data, at,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert evaluation for %s", ev.TenderID)
	}
	tag, err := tx.Exec(ctx,
		`UPDATE tenders SET evaluation_status = $1, label = $2, capability_fit = $3, business_potential = $4,
		   overall_score = $5, profile_version = $6, evaluated_at = $7
		 WHERE tender_id = $8`,
		string(model.EvalScored), string(ev.Label), ev.CapabilityFit, ev.BusinessPotential,
		ev.OverallScore, ev.ProfileVersion, at, ev.TenderID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update tender scores %s", ev.TenderID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "tender %s", ev.TenderID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit evaluation")
}

func (s *PostgresStore) LatestEvaluation(ctx context.Context, tenderID string) (*model.Evaluation, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM evaluations WHERE tender_id = $1 ORDER BY evaluated_at DESC LIMIT 1`, tenderID,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: evaluation for %s", tenderID)
		}
		return nil, eris.Wrapf(err, "postgres: latest evaluation %s", tenderID)
	}
	return unmarshalDoc[model.Evaluation](data, "evaluation")
}

func (s *PostgresStore) MarkForReevaluation(ctx context.Context, since time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenders SET evaluation_status = $1
		 WHERE is_canonical AND evaluation_status = $2 AND last_seen_at >= $3`,
		string(model.EvalReEvaluate), string(model.EvalScored), since.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: mark for re-evaluation")
	}
	return int(tag.RowsAffected()), nil
}

// --- Digests ---

func (s *PostgresStore) RecordSurfaced(ctx context.Context, digestDate string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO surfaced_tenders (tender_id, digest_date, surfaced_at)
		 SELECT unnest($1::text[]), $2, $3
		 ON CONFLICT (tender_id, digest_date) DO NOTHING`,
		ids, digestDate, at.UTC())
	return eris.Wrap(err, "postgres: record surfaced")
}

func (s *PostgresStore) SurfacedSince(ctx context.Context, since time.Time) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT tender_id FROM surfaced_tenders WHERE surfaced_at >= $1`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: surfaced since")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan surfaced")
		}
		out[id] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: surfaced iterate")
}

func (s *PostgresStore) SaveDigest(ctx context.Context, d *model.Digest) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal digest")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO digests (id, digest_date, data, generated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (digest_date) DO UPDATE SET data = EXCLUDED.data, generated_at = EXCLUDED.generated_at`,
		d.ID, d.Date, data, d.GeneratedAt.UTC())
	return eris.Wrapf(err, "postgres: save digest %s", d.Date)
}

func (s *PostgresStore) LatestDigest(ctx context.Context) (*model.Digest, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM digests ORDER BY digest_date DESC, generated_at DESC LIMIT 1`,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrap(ErrNotFound, "postgres: latest digest")
		}
		return nil, eris.Wrap(err, "postgres: latest digest")
	}
	return unmarshalDoc[model.Digest](data, "digest")
}

// --- Decisions ---

func (s *PostgresStore) InsertDecision(ctx context.Context, d *model.Decision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO decisions (id, tender_id, action, notes, stage, decided_by, decided_at, label, overall_score)
		 SELECT $1, tender_id, $2, $3, $4, $5, $6, label, COALESCE(overall_score, 0)
		 FROM tenders WHERE tender_id = $7`,
		d.ID, string(d.Action), d.Notes, d.Stage, d.DecidedBy, d.DecidedAt.UTC(), d.TenderID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert decision for %s", d.TenderID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "tender %s", d.TenderID)
	}
	return nil
}

func (s *PostgresStore) ListDecisionRecords(ctx context.Context, since time.Time) ([]model.DecisionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.id, d.tender_id, d.action, d.notes, d.stage, d.decided_by, d.decided_at,
		        d.label, d.overall_score, t.data
		 FROM decisions d JOIN tenders t ON t.tender_id = d.tender_id
		 WHERE d.decided_at >= $1
		 ORDER BY d.decided_at, d.id`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		rec, err := scanDecisionRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func (s *PostgresStore) CountDecisionsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM decisions WHERE decided_at >= $1`, since.UTC()).Scan(&n)
	return n, eris.Wrap(err, "postgres: count decisions")
}

// --- Profiles and calibration ---

func (s *PostgresStore) ActiveProfile(ctx context.Context) (*model.Profile, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM profiles ORDER BY seq DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrap(ErrNotFound, "postgres: active profile")
		}
		return nil, eris.Wrap(err, "postgres: active profile")
	}
	return unmarshalDoc[model.Profile](data, "profile")
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p *model.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (version, data, created_at) VALUES ($1, $2, $3)`,
		p.Version, data, p.CreatedAt.UTC())
	return eris.Wrapf(err, "postgres: save profile %s", p.Version)
}

func (s *PostgresStore) SaveReport(ctx context.Context, r *model.CalibrationReport) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	head := *r
	head.Recommendations = nil
	data, err := json.Marshal(head)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin report tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO calibration_reports (id, profile_version, data, created_at) VALUES ($1, $2, $3, $4)`,
		r.ID, r.ProfileVersion, data, r.CreatedAt.UTC(),
	); err != nil {
		return eris.Wrap(err, "postgres: insert report")
	}
	for i := range r.Recommendations {
		rec := &r.Recommendations[i]
		prepareRecommendation(rec, r)
		recData, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal recommendation")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO recommendations (id, report_id, status, decided_by, data, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, r.ID, string(rec.Status), rec.DecidedBy, recData, rec.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "postgres: insert recommendation %s", rec.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit report")
}

func (s *PostgresStore) LatestReport(ctx context.Context) (*model.CalibrationReport, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM calibration_reports ORDER BY created_at DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrap(ErrNotFound, "postgres: latest report")
		}
		return nil, eris.Wrap(err, "postgres: latest report")
	}
	r, err := unmarshalDoc[model.CalibrationReport](data, "report")
	if err != nil {
		return nil, err
	}
	recs, err := s.queryRecommendations(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE report_id = $1 ORDER BY created_at, id`, r.ID)
	if err != nil {
		return nil, err
	}
	r.Recommendations = recs
	return r, nil
}

func (s *PostgresStore) GetRecommendation(ctx context.Context, id string) (*model.Recommendation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recommendationColumns+` FROM recommendations WHERE id = $1`, id)
	rec, err := scanRecommendation(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get recommendation %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListRecommendations(ctx context.Context, status model.RecommendationStatus) ([]model.Recommendation, error) {
	if status == "" {
		return s.queryRecommendations(ctx,
			`SELECT `+recommendationColumns+` FROM recommendations ORDER BY created_at DESC, id`)
	}
	return s.queryRecommendations(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE status = $1 ORDER BY created_at DESC, id`,
		string(status))
}

func (s *PostgresStore) queryRecommendations(ctx context.Context, query string, args ...any) ([]model.Recommendation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recommendations")
	}
	defer rows.Close()

	var out []model.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list recommendations iterate")
}

func (s *PostgresStore) UpdateRecommendationStatus(ctx context.Context, id string, status model.RecommendationStatus, decidedBy string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET status = $1, decided_by = $2, decided_at = $3 WHERE id = $4`,
		string(status), decidedBy, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update recommendation %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "recommendation %s", id)
	}
	return nil
}

// --- Stage run log ---

func (s *PostgresStore) StartRun(ctx context.Context, stage string) (*model.StageRun, error) {
	run := &model.StageRun{
		ID:        uuid.New().String(),
		Stage:     stage,
		Status:    model.StageRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stage_runs (id, stage, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Stage, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: start run for %s", stage)
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id string, result *model.StageResult) error {
	status := model.StageSuccess
	var resultJSON []byte
	if result != nil {
		status = result.Status()
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal stage result")
		}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE stage_runs SET status = $1, completed_at = now(),
		   duration_ms = (EXTRACT(EPOCH FROM (now() - started_at)) * 1000)::bigint, result = $2
		 WHERE id = $3`,
		string(status), resultJSON, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "stage run %s", id)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, id string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE stage_runs SET status = $1, completed_at = now(),
		   duration_ms = (EXTRACT(EPOCH FROM (now() - started_at)) * 1000)::bigint, error = $2
		 WHERE id = $3`,
		string(model.StageFailed), msg, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "stage run %s", id)
	}
	return nil
}

func (s *PostgresStore) LastSuccess(ctx context.Context, stage string) (*model.StageRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stageRunColumns+` FROM stage_runs
		 WHERE stage = $1 AND status IN ($2, $3)
		 ORDER BY started_at DESC LIMIT 1`,
		stage, string(model.StageSuccess), string(model.StagePartial))
	run, err := scanStageRun(row)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: last success for %s", stage)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, since time.Time) ([]model.StageRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stageRunColumns+` FROM stage_runs WHERE started_at >= $1 ORDER BY started_at DESC`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.StageRun
	for rows.Next() {
		run, err := scanStageRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
