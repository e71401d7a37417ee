// Package store implements the persistent record store for studies.
//
// It uses SQLite with an FTS5 full-text index over title, summary,
// description, conditions, and keywords. Every study row carries the
// verbatim payload it was ingested from plus a set of flattened columns
// derived by project(); the FTS index is kept in sync by triggers, so
// readers never observe a row whose index entry lags its columns.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var (
	// ErrNotFound is returned by Get when no study has the given id.
	ErrNotFound = errors.New("store: study not found")

	// ErrEmptyQuery is returned by FullTextSearch for blank queries.
	ErrEmptyQuery = errors.New("store: empty search query")
)

// Store is the durable, queryable home of every study the system has
// seen. Single-writer: upserts and backfill writes are serialized so a
// reader never races a half-applied projection.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or opens) the study database under dataDir, applies
// pragmas, and runs migrations.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "trials.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle so the session manager can share the
// same database file and transaction scope.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS studies (
			nct_id                  TEXT PRIMARY KEY,
			payload                 TEXT NOT NULL,
			title                   TEXT NOT NULL DEFAULT '',
			status                  TEXT NOT NULL DEFAULT '',
			phase                   TEXT NOT NULL DEFAULT '',
			study_type              TEXT NOT NULL DEFAULT '',
			enrollment              INTEGER,
			start_date              TEXT NOT NULL DEFAULT '',
			completion_date         TEXT NOT NULL DEFAULT '',
			primary_completion_date TEXT NOT NULL DEFAULT '',
			lead_sponsor            TEXT NOT NULL DEFAULT '',
			sponsor_class           TEXT NOT NULL DEFAULT '',
			allocation              TEXT NOT NULL DEFAULT '',
			intervention_model      TEXT NOT NULL DEFAULT '',
			primary_purpose         TEXT NOT NULL DEFAULT '',
			masking                 TEXT NOT NULL DEFAULT '',
			sex                     TEXT NOT NULL DEFAULT '',
			min_age_months          INTEGER,
			max_age_months          INTEGER,
			age_groups              TEXT NOT NULL DEFAULT 'null',
			healthy_volunteers      INTEGER,
			has_results             INTEGER NOT NULL DEFAULT 0,
			fda_regulated_drug      INTEGER,
			fda_regulated_device    INTEGER,
			has_oversight           INTEGER NOT NULL DEFAULT 0,
			keywords                TEXT NOT NULL DEFAULT 'null',
			conditions              TEXT NOT NULL DEFAULT 'null',
			locations               TEXT NOT NULL DEFAULT 'null',
			brief_summary           TEXT NOT NULL DEFAULT '',
			detailed_description    TEXT NOT NULL DEFAULT '',
			projection_version      INTEGER NOT NULL DEFAULT 0,
			created_at              TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at              TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_studies_status  ON studies(status);
		CREATE INDEX IF NOT EXISTS idx_studies_phase   ON studies(phase);
		CREATE INDEX IF NOT EXISTS idx_studies_sponsor ON studies(sponsor_class);
		CREATE INDEX IF NOT EXISTS idx_studies_proj    ON studies(projection_version);

		CREATE VIRTUAL TABLE IF NOT EXISTS studies_fts USING fts5(
			title,
			brief_summary,
			detailed_description,
			conditions,
			keywords,
			content='studies',
			content_rowid='rowid'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS triggers keep the index in lockstep with every row write.
	// Created once; the insert trigger's presence implies all three.
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='studies_fts_insert'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER studies_fts_insert AFTER INSERT ON studies BEGIN
				INSERT INTO studies_fts(rowid, title, brief_summary, detailed_description, conditions, keywords)
				VALUES (new.rowid, new.title, new.brief_summary, new.detailed_description, new.conditions, new.keywords);
			END;

			CREATE TRIGGER studies_fts_delete AFTER DELETE ON studies BEGIN
				INSERT INTO studies_fts(studies_fts, rowid, title, brief_summary, detailed_description, conditions, keywords)
				VALUES ('delete', old.rowid, old.title, old.brief_summary, old.detailed_description, old.conditions, old.keywords);
			END;

			CREATE TRIGGER studies_fts_update AFTER UPDATE ON studies BEGIN
				INSERT INTO studies_fts(studies_fts, rowid, title, brief_summary, detailed_description, conditions, keywords)
				VALUES ('delete', old.rowid, old.title, old.brief_summary, old.detailed_description, old.conditions, old.keywords);
				INSERT INTO studies_fts(rowid, title, brief_summary, detailed_description, conditions, keywords)
				VALUES (new.rowid, new.title, new.brief_summary, new.detailed_description, new.conditions, new.keywords);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

// Upsert inserts or replaces one study, keyed by its NCT id. The
// flattened columns and FTS entry are recomputed from the payload in
// the same statement, so there is no caller-visible intermediate state.
// Upserting the same payload twice is a no-op beyond updated_at.
func (s *Store) Upsert(payload []byte) error {
	rec, err := project(payload)
	if err != nil {
		return fmt.Errorf("store: upsert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeProjected(rec)
}

// writeProjected persists an already-projected record. Callers hold mu.
func (s *Store) writeProjected(rec *Record) error {
	_, err := s.db.Exec(`
		INSERT INTO studies (
			nct_id, payload, title, status, phase, study_type, enrollment,
			start_date, completion_date, primary_completion_date,
			lead_sponsor, sponsor_class, allocation, intervention_model,
			primary_purpose, masking, sex, min_age_months, max_age_months,
			age_groups, healthy_volunteers, has_results,
			fda_regulated_drug, fda_regulated_device, has_oversight,
			keywords, conditions, locations,
			brief_summary, detailed_description, projection_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(nct_id) DO UPDATE SET
			payload                 = excluded.payload,
			title                   = excluded.title,
			status                  = excluded.status,
			phase                   = excluded.phase,
			study_type              = excluded.study_type,
			enrollment              = excluded.enrollment,
			start_date              = excluded.start_date,
			completion_date         = excluded.completion_date,
			primary_completion_date = excluded.primary_completion_date,
			lead_sponsor            = excluded.lead_sponsor,
			sponsor_class           = excluded.sponsor_class,
			allocation              = excluded.allocation,
			intervention_model      = excluded.intervention_model,
			primary_purpose         = excluded.primary_purpose,
			masking                 = excluded.masking,
			sex                     = excluded.sex,
			min_age_months          = excluded.min_age_months,
			max_age_months          = excluded.max_age_months,
			age_groups              = excluded.age_groups,
			healthy_volunteers      = excluded.healthy_volunteers,
			has_results             = excluded.has_results,
			fda_regulated_drug      = excluded.fda_regulated_drug,
			fda_regulated_device    = excluded.fda_regulated_device,
			has_oversight           = excluded.has_oversight,
			keywords                = excluded.keywords,
			conditions              = excluded.conditions,
			locations               = excluded.locations,
			brief_summary           = excluded.brief_summary,
			detailed_description    = excluded.detailed_description,
			projection_version      = excluded.projection_version,
			updated_at              = datetime('now')`,
		rec.NCTID, string(rec.Payload), rec.Title, rec.Status, rec.Phase,
		rec.StudyType, nullableInt(rec.Enrollment),
		rec.StartDate, rec.CompletionDate, rec.PrimaryCompletionDate,
		rec.LeadSponsor, rec.SponsorClass, rec.Allocation,
		rec.InterventionModel, rec.PrimaryPurpose, rec.Masking, rec.Sex,
		nullableInt(rec.MinAgeMonths), nullableInt(rec.MaxAgeMonths),
		jsonText(rec.AgeGroups), nullableBool(rec.HealthyVolunteers),
		rec.HasResults,
		nullableBool(rec.FDARegulatedDrug), nullableBool(rec.FDARegulatedDevice),
		rec.HasOversight,
		jsonText(rec.Keywords), jsonText(rec.Conditions), jsonText(rec.Locations),
		rec.BriefSummary, rec.DetailedDescription, rec.ProjectionVersion,
	)
	if err != nil {
		return fmt.Errorf("store: write study %s: %w", rec.NCTID, err)
	}
	return nil
}

const recordColumns = `
	nct_id, payload, title, status, phase, study_type, enrollment,
	start_date, completion_date, primary_completion_date,
	lead_sponsor, sponsor_class, allocation, intervention_model,
	primary_purpose, masking, sex, min_age_months, max_age_months,
	age_groups, healthy_volunteers, has_results,
	fda_regulated_drug, fda_regulated_device, has_oversight,
	keywords, conditions, locations,
	brief_summary, detailed_description, projection_version,
	created_at, updated_at`

// Get retrieves one study by NCT id. Returns ErrNotFound when absent.
func (s *Store) Get(nctID string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT `+recordColumns+` FROM studies WHERE nct_id = ?`, nctID,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", nctID, err)
	}
	return rec, nil
}

// FullTextSearch returns up to limit study ids ranked by FTS5 bm25
// relevance. A blank query is a caller error, not "match everything".
func (s *Store) FullTextSearch(query string, limit int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT st.nct_id
		FROM studies_fts
		JOIN studies st ON st.rowid = studies_fts.rowid
		WHERE studies_fts MATCH ?
		ORDER BY studies_fts.rank
		LIMIT ?`,
		sanitizeFTS(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: full-text search: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored studies.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM studies").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// BackfillResult reports what a backfill pass touched.
type BackfillResult struct {
	Scanned    int
	Updated    int
	Skipped    int
	SkippedIDs []string
}

// Backfill re-projects every stored study whose flattened fields are
// stale with respect to the current projection. Each study is an
// independent write, so the pass is safe to re-run and safe alongside
// readers. Unparsable payloads are skipped and reported, never fatal.
func (s *Store) Backfill() (*BackfillResult, error) {
	rows, err := s.db.Query(
		`SELECT nct_id, payload FROM studies WHERE projection_version < ?`,
		projectionVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("store: backfill scan: %w", err)
	}

	type stale struct {
		id      string
		payload string
	}
	var pending []stale
	for rows.Next() {
		var st stale
		if err := rows.Scan(&st.id, &st.payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: backfill scan: %w", err)
		}
		pending = append(pending, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("store: backfill scan: %w", err)
	}
	rows.Close()

	result := &BackfillResult{Scanned: len(pending)}
	for _, st := range pending {
		rec, err := project([]byte(st.payload))
		if err != nil {
			result.Skipped++
			result.SkippedIDs = append(result.SkippedIDs, st.id)
			continue
		}

		s.mu.Lock()
		err = s.writeProjected(rec)
		s.mu.Unlock()
		if err != nil {
			return result, err
		}
		result.Updated++
	}
	return result, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                     Record
		payload                 string
		enrollment, minA, maxA  sql.NullInt64
		healthy, fdaDrug, fdaDe sql.NullBool
		ageGroups, keywords     string
		conditions, locations   string
	)
	if err := row.Scan(
		&rec.NCTID, &payload, &rec.Title, &rec.Status, &rec.Phase,
		&rec.StudyType, &enrollment,
		&rec.StartDate, &rec.CompletionDate, &rec.PrimaryCompletionDate,
		&rec.LeadSponsor, &rec.SponsorClass, &rec.Allocation,
		&rec.InterventionModel, &rec.PrimaryPurpose, &rec.Masking, &rec.Sex,
		&minA, &maxA, &ageGroups, &healthy, &rec.HasResults,
		&fdaDrug, &fdaDe, &rec.HasOversight,
		&keywords, &conditions, &locations,
		&rec.BriefSummary, &rec.DetailedDescription, &rec.ProjectionVersion,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Payload = []byte(payload)
	rec.Enrollment = intPtr(enrollment)
	rec.MinAgeMonths = intPtr(minA)
	rec.MaxAgeMonths = intPtr(maxA)
	rec.HealthyVolunteers = boolPtr(healthy)
	rec.FDARegulatedDrug = boolPtr(fdaDrug)
	rec.FDARegulatedDevice = boolPtr(fdaDe)

	for _, col := range []struct {
		name string
		raw  string
		dest any
	}{
		{"age_groups", ageGroups, &rec.AgeGroups},
		{"keywords", keywords, &rec.Keywords},
		{"conditions", conditions, &rec.Conditions},
		{"locations", locations, &rec.Locations},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("decoding %s for %s: %w", col.name, rec.NCTID, err)
		}
	}

	return &rec, nil
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "heart failure" → `"heart" "failure"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.Trim(w, `"`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}

// Truncate shortens a string to max length with ellipsis.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
