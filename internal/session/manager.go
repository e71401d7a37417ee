// Package session maps opaque session tokens to mutable sets of study
// identifiers, letting callers refine a search snapshot without
// re-querying the registry.
//
// Sessions live in the same SQLite database as the record store:
// the manager owns its own table but resolves identifiers through the
// store. A session transitions Created → Refined any number of times;
// each refinement replaces the id set in place (no history).
package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/trialscope/trialscope/internal/store"
)

// ErrNotFound is returned for unknown session tokens. Callers must
// render it as a distinguishable "session not found" outcome, separate
// from a session that resolves to zero records.
var ErrNotFound = errors.New("session: not found")

// Manager persists sessions and resolves their id sets to records.
type Manager struct {
	db     *sql.DB
	store  *store.Store
	logger *logrus.Logger
}

// Session is the stored state of one search session.
type Session struct {
	Token          string
	Params         map[string]string
	StudyIDs       []string
	CreatedAt      string
	LastAccessedAt string
}

// NewManager creates a session manager on the store's database and
// ensures the sessions table exists.
func NewManager(st *store.Store, logger *logrus.Logger) (*Manager, error) {
	m := &Manager{db: st.DB(), store: st, logger: logger}
	if err := m.migrate(); err != nil {
		return nil, fmt.Errorf("session: migration: %w", err)
	}
	return m, nil
}

func (m *Manager) migrate() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			token            TEXT PRIMARY KEY,
			params           TEXT NOT NULL DEFAULT '{}',
			study_ids        TEXT NOT NULL DEFAULT '[]',
			created_at       TEXT NOT NULL DEFAULT (datetime('now')),
			last_accessed_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`)
	return err
}

// Create persists a new session holding params and the initial id set,
// returning its generated token.
func (m *Manager) Create(params map[string]string, ids []string) (string, error) {
	token := uuid.NewString()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("session: marshal params: %w", err)
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("session: marshal ids: %w", err)
	}

	if _, err := m.db.Exec(
		`INSERT INTO sessions (token, params, study_ids) VALUES (?, ?, ?)`,
		token, string(paramsJSON), string(idsJSON),
	); err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}
	return token, nil
}

// Get returns the stored session for token, or ErrNotFound.
func (m *Manager) Get(token string) (*Session, error) {
	row := m.db.QueryRow(
		`SELECT token, params, study_ids, created_at, last_accessed_at
		 FROM sessions WHERE token = ?`, token,
	)

	var (
		sess               Session
		paramsJSON, idsStr string
	)
	err := row.Scan(&sess.Token, &paramsJSON, &idsStr, &sess.CreatedAt, &sess.LastAccessedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}

	if err := json.Unmarshal([]byte(paramsJSON), &sess.Params); err != nil {
		return nil, fmt.Errorf("session: parse params for %s: %w", token, err)
	}
	if err := json.Unmarshal([]byte(idsStr), &sess.StudyIDs); err != nil {
		return nil, fmt.Errorf("session: parse ids for %s: %w", token, err)
	}
	return &sess, nil
}

// Resolve fetches the full record for every id in the session's current
// set and touches the last-accessed timestamp. Ids that no longer
// resolve are skipped with a warning — that shouldn't happen, but it
// must not crash a session when it does.
func (m *Manager) Resolve(token string) ([]store.Record, error) {
	sess, err := m.Get(token)
	if err != nil {
		return nil, err
	}

	records := make([]store.Record, 0, len(sess.StudyIDs))
	for _, id := range sess.StudyIDs {
		rec, err := m.store.Get(id)
		if errors.Is(err, store.ErrNotFound) {
			m.logger.WithFields(logrus.Fields{
				"token": token,
				"id":    id,
			}).Warn("Session id no longer resolves, skipping")
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if _, err := m.db.Exec(
		`UPDATE sessions SET last_accessed_at = datetime('now') WHERE token = ?`, token,
	); err != nil {
		return nil, fmt.Errorf("session: touch: %w", err)
	}
	return records, nil
}

// Refine atomically replaces the session's id set. The previous set is
// discarded, not versioned.
func (m *Manager) Refine(token string, ids []string) error {
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("session: marshal ids: %w", err)
	}

	res, err := m.db.Exec(
		`UPDATE sessions SET study_ids = ?, last_accessed_at = datetime('now') WHERE token = ?`,
		string(idsJSON), token,
	)
	if err != nil {
		return fmt.Errorf("session: refine: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of ids currently held by the session.
func (m *Manager) Count(token string) (int, error) {
	sess, err := m.Get(token)
	if err != nil {
		return 0, err
	}
	return len(sess.StudyIDs), nil
}
