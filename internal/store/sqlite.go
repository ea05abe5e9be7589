package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tender-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// A single writer avoids SQLITE_BUSY under the concurrent ingestion fan-out.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id           TEXT PRIMARY KEY,
	jurisdiction TEXT NOT NULL,
	source_type  TEXT NOT NULL,
	status       TEXT NOT NULL,
	fetch_url    TEXT NOT NULL,
	data         TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_captures (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL,
	item_guid   TEXT NOT NULL,
	item_url    TEXT NOT NULL DEFAULT '',
	raw_format  TEXT NOT NULL,
	payload     TEXT NOT NULL,
	fields      TEXT,
	captured_at DATETIME NOT NULL,
	normalised  INTEGER NOT NULL DEFAULT 0,
	UNIQUE (source_id, item_guid)
);

CREATE TABLE IF NOT EXISTS tenders (
	tender_id           TEXT PRIMARY KEY,
	source_id           TEXT NOT NULL,
	jurisdiction        TEXT NOT NULL,
	status              TEXT NOT NULL,
	closing_date        DATETIME,
	is_canonical        INTEGER NOT NULL DEFAULT 1,
	canonical_tender_id TEXT NOT NULL DEFAULT '',
	source_references   TEXT NOT NULL DEFAULT '[]',
	evaluation_status   TEXT NOT NULL DEFAULT 'pending',
	label               TEXT NOT NULL DEFAULT '',
	capability_fit      REAL,
	business_potential  REAL,
	overall_score       REAL,
	profile_version     TEXT NOT NULL DEFAULT '',
	evaluated_at        DATETIME,
	mapping_version     TEXT NOT NULL,
	first_seen_at       DATETIME NOT NULL,
	last_seen_at        DATETIME NOT NULL,
	data                TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluations (
	id              TEXT PRIMARY KEY,
	tender_id       TEXT NOT NULL REFERENCES tenders(tender_id),
	profile_version TEXT NOT NULL,
	label           TEXT NOT NULL,
	overall_score   REAL NOT NULL,
	data            TEXT NOT NULL,
	evaluated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id            TEXT PRIMARY KEY,
	tender_id     TEXT NOT NULL REFERENCES tenders(tender_id),
	action        TEXT NOT NULL,
	notes         TEXT NOT NULL DEFAULT '',
	stage         TEXT NOT NULL DEFAULT '',
	decided_by    TEXT NOT NULL DEFAULT '',
	decided_at    DATETIME NOT NULL,
	label         TEXT NOT NULL DEFAULT '',
	overall_score REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS profiles (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	version    TEXT NOT NULL UNIQUE,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS calibration_reports (
	id              TEXT PRIMARY KEY,
	profile_version TEXT NOT NULL,
	data            TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS recommendations (
	id         TEXT PRIMARY KEY,
	report_id  TEXT NOT NULL REFERENCES calibration_reports(id),
	status     TEXT NOT NULL DEFAULT 'proposed',
	decided_by TEXT NOT NULL DEFAULT '',
	decided_at DATETIME,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stage_runs (
	id           TEXT PRIMARY KEY,
	stage        TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	result       TEXT,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS digests (
	id           TEXT PRIMARY KEY,
	digest_date  TEXT NOT NULL UNIQUE,
	data         TEXT NOT NULL,
	generated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS surfaced_tenders (
	tender_id   TEXT NOT NULL,
	digest_date TEXT NOT NULL,
	surfaced_at DATETIME NOT NULL,
	PRIMARY KEY (tender_id, digest_date)
);

CREATE INDEX IF NOT EXISTS idx_sources_status ON sources(status);
CREATE INDEX IF NOT EXISTS idx_raw_captures_pending ON raw_captures(normalised, captured_at);
CREATE INDEX IF NOT EXISTS idx_tenders_eval ON tenders(evaluation_status, is_canonical);
CREATE INDEX IF NOT EXISTS idx_tenders_first_seen ON tenders(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_evaluations_tender ON evaluations(tender_id, evaluated_at);
CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decisions(decided_at);
CREATE INDEX IF NOT EXISTS idx_recommendations_report ON recommendations(report_id);
CREATE INDEX IF NOT EXISTS idx_stage_runs_stage ON stage_runs(stage, started_at);
CREATE INDEX IF NOT EXISTS idx_surfaced_at ON surfaced_tenders(surfaced_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sources ---

func (s *SQLiteStore) UpsertSource(ctx context.Context, src *model.Source) error {
	now := time.Now().UTC()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now

	data, err := json.Marshal(src)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal source")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sources (id, jurisdiction, source_type, status, fetch_url, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   jurisdiction = excluded.jurisdiction,
		   source_type = excluded.source_type,
		   status = excluded.status,
		   fetch_url = excluded.fetch_url,
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		src.ID, string(src.Jurisdiction), string(src.SourceType), string(src.Status), src.FetchURL,
		string(data), src.CreatedAt.UTC(), now,
	)
	return eris.Wrapf(err, "sqlite: upsert source %s", src.ID)
}

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", id)
	}
	return src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context, filter SourceFilter) ([]model.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE 1=1`
	var args []any

	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + sqlitePlaceholders(len(filter.Statuses)) + `)`
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.Jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, string(filter.Jurisdiction))
	}
	if filter.SourceType != "" {
		query += ` AND source_type = ?`
		args = append(args, string(filter.SourceType))
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) RecordSourceHealth(ctx context.Context, h model.SourceHealth) (*model.Source, error) {
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

func (s *SQLiteStore) SetSourceStatus(ctx context.Context, id string, status model.SourceStatus, detail string) error {
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

func (s *SQLiteStore) KnownGUIDs(ctx context.Context, sourceID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_guid FROM raw_captures WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: known guids for %s", sourceID)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan guid")
		}
		known[guid] = true
	}
	return known, eris.Wrap(rows.Err(), "sqlite: known guids iterate")
}

func (s *SQLiteStore) InsertCaptures(ctx context.Context, captures []model.RawCapture) (int, error) {
	if len(captures) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin capture tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_captures (`+captureColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(source_id, item_guid) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare capture insert")
	}
	defer stmt.Close()

	inserted := 0
	for i := range captures {
		c := &captures[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		fields, err := json.Marshal(c.Fields)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal capture fields")
		}
		res, err := stmt.ExecContext(ctx, c.ID, c.SourceID, c.ItemGUID, c.ItemURL, string(c.RawFormat),
			c.Payload, string(fields), c.CapturedAt.UTC())
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert capture %s/%s", c.SourceID, c.ItemGUID)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit captures")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListPendingCaptures(ctx context.Context, limit int) ([]model.RawCapture, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+captureColumns+` FROM raw_captures WHERE normalised = 0
		 ORDER BY captured_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending captures")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list pending captures iterate")
}

func (s *SQLiteStore) MarkNormalised(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE raw_captures SET normalised = 1 WHERE id IN (`+sqlitePlaceholders(len(ids))+`)`, args...)
	return eris.Wrap(err, "sqlite: mark normalised")
}

// --- Tenders ---

func (s *SQLiteStore) UpsertTender(ctx context.Context, t *model.Tender) (bool, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenders WHERE tender_id = ?`, t.ID).Scan(&exists); err != nil {
		return false, eris.Wrapf(err, "sqlite: check tender %s", t.ID)
	}

	args, err := tenderArgs(t)
	if err != nil {
		return false, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenders (`+tenderWriteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tender_id) DO UPDATE SET
		   source_id = excluded.source_id,
		   jurisdiction = excluded.jurisdiction,
		   status = excluded.status,
		   closing_date = excluded.closing_date,
		   mapping_version = excluded.mapping_version,
		   last_seen_at = excluded.last_seen_at,
		   data = excluded.data`,
		args...,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert tender %s", t.ID)
	}
	return exists == 0, nil
}

func (s *SQLiteStore) GetTender(ctx context.Context, id string) (*model.Tender, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenderColumns+` FROM tenders WHERE tender_id = ?`, id)
	t, err := scanTender(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get tender %s", id)
	}
	return t, nil
}

func (s *SQLiteStore) ListTenders(ctx context.Context, filter TenderFilter) ([]model.Tender, error) {
	query := `SELECT ` + tenderColumns + ` FROM tenders WHERE 1=1`
	var args []any

	if filter.Jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, string(filter.Jurisdiction))
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + sqlitePlaceholders(len(filter.Statuses)) + `)`
		for _, st := range statusStrings(filter.Statuses) {
			args = append(args, st)
		}
	}
	if len(filter.EvaluationStatuses) > 0 {
		query += ` AND evaluation_status IN (` + sqlitePlaceholders(len(filter.EvaluationStatuses)) + `)`
		for _, st := range statusStrings(filter.EvaluationStatuses) {
			args = append(args, st)
		}
	}
	if filter.CanonicalOnly {
		query += ` AND is_canonical = 1`
	}
	if filter.FirstSeenSince != nil {
		query += ` AND first_seen_at >= ?`
		args = append(args, filter.FirstSeenSince.UTC())
	}
	query += ` ORDER BY first_seen_at, tender_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tenders")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list tenders iterate")
}

func (s *SQLiteStore) UpdateCanonical(ctx context.Context, id, canonicalID string, refs []string) error {
	isCanonical := canonicalID == ""
	var (
		res sql.Result
		err error
	)
	if refs == nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tenders SET is_canonical = ?, canonical_tender_id = ? WHERE tender_id = ?`,
			isCanonical, canonicalID, id)
	} else {
		refsJSON, merr := json.Marshal(refs)
		if merr != nil {
			return eris.Wrap(merr, "sqlite: marshal source references")
		}
		res, err = s.db.ExecContext(ctx,
			`UPDATE tenders SET is_canonical = ?, canonical_tender_id = ?, source_references = ? WHERE tender_id = ?`,
			isCanonical, canonicalID, string(refsJSON), id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update canonical %s", id)
	}
	return checkRowsAffected(res, "tender", id)
}

func (s *SQLiteStore) CloseExpired(ctx context.Context, today time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenders SET status = ? WHERE status = ? AND closing_date IS NOT NULL AND closing_date < ?`,
		string(model.TenderClosed), string(model.TenderOpen), today.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: close expired tenders")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveEvaluation(ctx context.Context, ev *model.Evaluation) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evaluation")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin evaluation tx")
	}
	defer tx.Rollback() //nolint:errcheck

	at := ev.EvaluatedAt.UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO evaluations (id, tender_id, profile_version, label, overall_score, data, evaluated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TenderID, ev.ProfileVersion, string(ev.Label), ev.OverallScore, string(data), at,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert evaluation for %s", ev.TenderID)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE tenders SET evaluation_status = ?, label = ?, capability_fit = ?, business_potential = ?,
		   overall_score = ?, profile_version = ?, evaluated_at = ?
		 WHERE tender_id = ?`,
		string(model.EvalScored), string(ev.Label), ev.CapabilityFit, ev.BusinessPotential,
		ev.OverallScore, ev.ProfileVersion, at, ev.TenderID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update tender scores %s", ev.TenderID)
	}
	if err := checkRowsAffected(res, "tender", ev.TenderID); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit evaluation")
}

func (s *SQLiteStore) LatestEvaluation(ctx context.Context, tenderID string) (*model.Evaluation, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM evaluations WHERE tender_id = ? ORDER BY evaluated_at DESC LIMIT 1`, tenderID,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: evaluation for %s", tenderID)
		}
		return nil, eris.Wrapf(err, "sqlite: latest evaluation %s", tenderID)
	}
	return unmarshalDoc[model.Evaluation](data, "evaluation")
}

func (s *SQLiteStore) MarkForReevaluation(ctx context.Context, since time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenders SET evaluation_status = ?
		 WHERE is_canonical = 1 AND evaluation_status = ? AND last_seen_at >= ?`,
		string(model.EvalReEvaluate), string(model.EvalScored), since.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: mark for re-evaluation")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- Digests ---

func (s *SQLiteStore) RecordSurfaced(ctx context.Context, digestDate string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin surfaced tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO surfaced_tenders (tender_id, digest_date, surfaced_at) VALUES (?, ?, ?)
			 ON CONFLICT(tender_id, digest_date) DO NOTHING`,
			id, digestDate, at.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: record surfaced %s", id)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit surfaced")
}

func (s *SQLiteStore) SurfacedSince(ctx context.Context, since time.Time) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tender_id FROM surfaced_tenders WHERE surfaced_at >= ?`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: surfaced since")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan surfaced")
		}
		out[id] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: surfaced iterate")
}

func (s *SQLiteStore) SaveDigest(ctx context.Context, d *model.Digest) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal digest")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO digests (id, digest_date, data, generated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(digest_date) DO UPDATE SET data = excluded.data, generated_at = excluded.generated_at`,
		d.ID, d.Date, string(data), d.GeneratedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save digest %s", d.Date)
}

func (s *SQLiteStore) LatestDigest(ctx context.Context) (*model.Digest, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM digests ORDER BY digest_date DESC, generated_at DESC LIMIT 1`,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrap(ErrNotFound, "sqlite: latest digest")
		}
		return nil, eris.Wrap(err, "sqlite: latest digest")
	}
	return unmarshalDoc[model.Digest](data, "digest")
}

// --- Decisions ---

func (s *SQLiteStore) InsertDecision(ctx context.Context, d *model.Decision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	// The label and score the tender carried at decision time are frozen
	// into the log so later re-scoring cannot rewrite history.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, tender_id, action, notes, stage, decided_by, decided_at, label, overall_score)
		 SELECT ?, tender_id, ?, ?, ?, ?, ?, label, COALESCE(overall_score, 0)
		 FROM tenders WHERE tender_id = ?`,
		d.ID, string(d.Action), d.Notes, d.Stage, d.DecidedBy, d.DecidedAt.UTC(), d.TenderID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert decision for %s", d.TenderID)
	}
	return checkRowsAffected(res, "tender", d.TenderID)
}

func (s *SQLiteStore) ListDecisionRecords(ctx context.Context, since time.Time) ([]model.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.tender_id, d.action, d.notes, d.stage, d.decided_by, d.decided_at,
		        d.label, d.overall_score, t.data
		 FROM decisions d JOIN tenders t ON t.tender_id = d.tender_id
		 WHERE d.decided_at >= ?
		 ORDER BY d.decided_at, d.id`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

func (s *SQLiteStore) CountDecisionsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions WHERE decided_at >= ?`, since.UTC()).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count decisions")
}

// --- Profiles and calibration ---

func (s *SQLiteStore) ActiveProfile(ctx context.Context) (*model.Profile, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM profiles ORDER BY seq DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrap(ErrNotFound, "sqlite: active profile")
		}
		return nil, eris.Wrap(err, "sqlite: active profile")
	}
	return unmarshalDoc[model.Profile](data, "profile")
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, p *model.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (version, data, created_at) VALUES (?, ?, ?)`,
		p.Version, string(data), p.CreatedAt.UTC())
	return eris.Wrapf(err, "sqlite: save profile %s", p.Version)
}

func (s *SQLiteStore) SaveReport(ctx context.Context, r *model.CalibrationReport) error {
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
		return eris.Wrap(err, "sqlite: marshal report")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin report tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO calibration_reports (id, profile_version, data, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.ProfileVersion, string(data), r.CreatedAt.UTC(),
	); err != nil {
		return eris.Wrap(err, "sqlite: insert report")
	}
	for i := range r.Recommendations {
		rec := &r.Recommendations[i]
		prepareRecommendation(rec, r)
		recData, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal recommendation")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recommendations (id, report_id, status, decided_by, decided_at, data, created_at)
			 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
			rec.ID, r.ID, string(rec.Status), rec.DecidedBy, string(recData), rec.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert recommendation %s", rec.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit report")
}

func (s *SQLiteStore) LatestReport(ctx context.Context) (*model.CalibrationReport, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM calibration_reports ORDER BY created_at DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrap(ErrNotFound, "sqlite: latest report")
		}
		return nil, eris.Wrap(err, "sqlite: latest report")
	}
	r, err := unmarshalDoc[model.CalibrationReport](data, "report")
	if err != nil {
		return nil, err
	}
	recs, err := s.queryRecommendations(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE report_id = ? ORDER BY created_at, id`, r.ID)
	if err != nil {
		return nil, err
	}
	r.Recommendations = recs
	return r, nil
}

func (s *SQLiteStore) GetRecommendation(ctx context.Context, id string) (*model.Recommendation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recommendationColumns+` FROM recommendations WHERE id = ?`, id)
	rec, err := scanRecommendation(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get recommendation %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecommendations(ctx context.Context, status model.RecommendationStatus) ([]model.Recommendation, error) {
	if status == "" {
		return s.queryRecommendations(ctx,
			`SELECT `+recommendationColumns+` FROM recommendations ORDER BY created_at DESC, id`)
	}
	return s.queryRecommendations(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE status = ? ORDER BY created_at DESC, id`,
		string(status))
}

func (s *SQLiteStore) queryRecommendations(ctx context.Context, query string, args ...any) ([]model.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recommendations")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list recommendations iterate")
}

func (s *SQLiteStore) UpdateRecommendationStatus(ctx context.Context, id string, status model.RecommendationStatus, decidedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET status = ?, decided_by = ?, decided_at = ? WHERE id = ?`,
		string(status), decidedBy, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update recommendation %s", id)
	}
	return checkRowsAffected(res, "recommendation", id)
}

// --- Stage run log ---

func (s *SQLiteStore) StartRun(ctx context.Context, stage string) (*model.StageRun, error) {
	run := &model.StageRun{
		ID:        uuid.New().String(),
		Stage:     stage,
		Status:    model.StageRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Stage, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: start run for %s", stage)
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, result *model.StageResult) error {
	status := model.StageSuccess
	var resultJSON []byte
	if result != nil {
		status = result.Status()
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal stage result")
		}
	}
	return s.finishRun(ctx, id, status, resultJSON, nil)
}

func (s *SQLiteStore) FailRun(ctx context.Context, id string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.finishRun(ctx, id, model.StageFailed, nil, &msg)
}

func (s *SQLiteStore) finishRun(ctx context.Context, id string, status model.StageRunStatus, result []byte, errMsg *string) error {
	var started time.Time
	if err := s.db.QueryRowContext(ctx, `SELECT started_at FROM stage_runs WHERE id = ?`, id).Scan(&started); err != nil {
		if isNoRows(err) {
			return eris.Wrapf(ErrNotFound, "sqlite: stage run %s", id)
		}
		return eris.Wrapf(err, "sqlite: load stage run %s", id)
	}
	now := time.Now().UTC()
	var resultArg any
	if result != nil {
		resultArg = string(result)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE stage_runs SET status = ?, completed_at = ?, duration_ms = ?, result = ?, error = ? WHERE id = ?`,
		string(status), now, now.Sub(started).Milliseconds(), resultArg, errMsg, id)
	return eris.Wrapf(err, "sqlite: finish stage run %s", id)
}

func (s *SQLiteStore) LastSuccess(ctx context.Context, stage string) (*model.StageRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stageRunColumns+` FROM stage_runs
		 WHERE stage = ? AND status IN (?, ?)
		 ORDER BY started_at DESC LIMIT 1`,
		stage, string(model.StageSuccess), string(model.StagePartial))
	run, err := scanStageRun(row)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last success for %s", stage)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, since time.Time) ([]model.StageRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stageRunColumns+` FROM stage_runs WHERE started_at >= ? ORDER BY started_at DESC`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func sqlitePlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func prepareRecommendation(rec *model.Recommendation, r *model.CalibrationReport) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.ReportID = r.ID
	if rec.Status == "" {
		rec.Status = model.RecProposed
	}
	if rec.ProfileVersion == "" {
		rec.ProfileVersion = r.ProfileVersion
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.CreatedAt
	}
}
