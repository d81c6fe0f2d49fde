package store

// #region imports
import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/charter"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS charters (
	system_id     TEXT NOT NULL,
	version       INTEGER NOT NULL,
	charter_json  TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (system_id, version)
);

CREATE TABLE IF NOT EXISTS active_charters (
	system_id     TEXT PRIMARY KEY,
	version       INTEGER NOT NULL,
	FOREIGN KEY (system_id, version) REFERENCES charters(system_id, version)
);

CREATE TABLE IF NOT EXISTS cycle_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id      TEXT NOT NULL,
	system_id     TEXT NOT NULL,
	verdict       TEXT NOT NULL,
	failure_class TEXT NOT NULL DEFAULT 'none',
	record_json   TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	ended_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycle_records_system
ON cycle_records(system_id, id);

CREATE TABLE IF NOT EXISTS strategy_outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	system_id     TEXT NOT NULL,
	cycle_id      TEXT NOT NULL,
	template_id   TEXT NOT NULL,
	severity      TEXT NOT NULL,
	probability   REAL NOT NULL,
	accepted      INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_strategy_outcomes_lookup
ON strategy_outcomes(system_id, template_id);

CREATE TABLE IF NOT EXISTS decision_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id      TEXT NOT NULL,
	system_id     TEXT NOT NULL,
	stage         TEXT NOT NULL,
	decision      TEXT NOT NULL,
	reason        TEXT,
	detail_json   TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region errors

// ErrCycleActive means a cycle already holds the per-system lease.
var ErrCycleActive = errors.New("cycle already active for system")

// ErrNotFound means the requested row does not exist.
var ErrNotFound = errors.New("not found")

// #endregion

// #region store-struct

// Store persists charters, cycle records, and strategy outcomes in SQLite,
// and arbitrates the per-system cycle lease that makes cycles single-writer.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	leases map[string]string // systemID → lease token
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, leases: make(map[string]string)}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. audit).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region leases

// AcquireLease takes the per-system cycle lease, failing with ErrCycleActive
// when another cycle holds it. The returned token must be passed back to
// ReleaseLease and to CommitCharter during the cycle.
func (s *Store) AcquireLease(systemID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.leases[systemID]; held {
		return "", ErrCycleActive
	}
	token := uuid.New().String()
	s.leases[systemID] = token
	return token, nil
}

// ReleaseLease returns the lease. Releasing with a stale token is a no-op.
func (s *Store) ReleaseLease(systemID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leases[systemID] == token {
		delete(s.leases, systemID)
	}
}

// LeaseHeld reports whether a cycle currently holds the system's lease.
func (s *Store) LeaseHeld(systemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.leases[systemID]
	return ok
}

// leaseAllows reports whether a charter commit with the given token is legal:
// either no cycle is running, or the caller is the running cycle itself.
func (s *Store) leaseAllows(systemID, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.leases[systemID]
	return !ok || held == token
}

// #endregion leases

// #region charters

// EnsureCharter returns the active charter for a system, seeding the given
// default as version 1 when the system has never been seen.
func (s *Store) EnsureCharter(systemID string, def charter.Charter) (charter.Charter, error) {
	ch, err := s.ActiveCharter(systemID)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return charter.Charter{}, err
	}
	if err := def.Validate(); err != nil {
		return charter.Charter{}, fmt.Errorf("seed charter: %w", err)
	}
	if err := s.insertCharter(def); err != nil {
		return charter.Charter{}, err
	}
	return def, nil
}

// ActiveCharter reads the currently active charter for a system.
func (s *Store) ActiveCharter(systemID string) (charter.Charter, error) {
	var chJSON string
	err := s.db.QueryRow(
		`SELECT c.charter_json
		 FROM active_charters a JOIN charters c
		   ON c.system_id = a.system_id AND c.version = a.version
		 WHERE a.system_id = ?`, systemID,
	).Scan(&chJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return charter.Charter{}, ErrNotFound
	}
	if err != nil {
		return charter.Charter{}, fmt.Errorf("active charter %s: %w", systemID, err)
	}

	var ch charter.Charter
	if err := json.Unmarshal([]byte(chJSON), &ch); err != nil {
		return charter.Charter{}, fmt.Errorf("unmarshal charter: %w", err)
	}
	return ch, nil
}

// CommitCharter atomically appends a charter version and swaps the active
// pointer. Commits are rejected while another cycle's lease is held; a
// running cycle may commit with its own token, and token "" is an
// operator-side commit legal only between cycles.
func (s *Store) CommitCharter(ch charter.Charter, token string) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("commit charter: %w", err)
	}
	if !s.leaseAllows(ch.SystemID, token) {
		return ErrCycleActive
	}
	return s.insertCharter(ch)
}

func (s *Store) insertCharter(ch charter.Charter) error {
	chJSON, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal charter: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO charters (system_id, version, charter_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		ch.SystemID, ch.Version, string(chJSON), ch.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert charter: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_charters (system_id, version) VALUES (?, ?)
		 ON CONFLICT(system_id) DO UPDATE SET version = excluded.version`,
		ch.SystemID, ch.Version,
	)
	if err != nil {
		return fmt.Errorf("set active charter: %w", err)
	}

	return tx.Commit()
}

// CharterVersions lists the most recent charter versions for a system.
func (s *Store) CharterVersions(systemID string, limit int) ([]charter.Charter, error) {
	rows, err := s.db.Query(
		`SELECT charter_json FROM charters
		 WHERE system_id = ? ORDER BY version DESC LIMIT ?`, systemID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list charters: %w", err)
	}
	defer rows.Close()

	var out []charter.Charter
	for rows.Next() {
		var chJSON string
		if err := rows.Scan(&chJSON); err != nil {
			return nil, fmt.Errorf("scan charter: %w", err)
		}
		var ch charter.Charter
		if err := json.Unmarshal([]byte(chJSON), &ch); err != nil {
			return nil, fmt.Errorf("unmarshal charter: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// #endregion charters

// #region cycle-records

// CycleRow is one persisted cycle record. RecordJSON is the full audit
// trail marshaled by the cycle package; the row columns exist for queries.
type CycleRow struct {
	CycleID      string
	SystemID     string
	Verdict      string
	FailureClass string
	RecordJSON   string
	StartedAt    time.Time
	EndedAt      time.Time
}

// AppendCycleRecord appends one immutable cycle record.
func (s *Store) AppendCycleRecord(row CycleRow) error {
	_, err := s.db.Exec(
		`INSERT INTO cycle_records (cycle_id, system_id, verdict, failure_class, record_json, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.CycleID, row.SystemID, row.Verdict, row.FailureClass, row.RecordJSON,
		row.StartedAt.Format(time.RFC3339Nano), row.EndedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append cycle record: %w", err)
	}
	return nil
}

// LatestCycleRecord returns the most recent cycle record for a system, or
// ErrNotFound when the system has no completed cycles.
func (s *Store) LatestCycleRecord(systemID string) (CycleRow, error) {
	rows, err := s.ListCycleRecords(systemID, 1)
	if err != nil {
		return CycleRow{}, err
	}
	if len(rows) == 0 {
		return CycleRow{}, ErrNotFound
	}
	return rows[0], nil
}

// ListCycleRecords returns the most recent cycle records for a system.
func (s *Store) ListCycleRecords(systemID string, limit int) ([]CycleRow, error) {
	rows, err := s.db.Query(
		`SELECT cycle_id, system_id, verdict, failure_class, record_json, started_at, ended_at
		 FROM cycle_records WHERE system_id = ? ORDER BY id DESC LIMIT ?`, systemID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list cycle records: %w", err)
	}
	defer rows.Close()

	var out []CycleRow
	for rows.Next() {
		var row CycleRow
		var startedStr, endedStr string
		if err := rows.Scan(&row.CycleID, &row.SystemID, &row.Verdict, &row.FailureClass,
			&row.RecordJSON, &startedStr, &endedStr); err != nil {
			return nil, fmt.Errorf("scan cycle record: %w", err)
		}
		row.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
		row.EndedAt, _ = time.Parse(time.RFC3339Nano, endedStr)
		out = append(out, row)
	}
	return out, rows.Err()
}

// #endregion cycle-records

// #region strategy-outcomes

// OutcomeRow is a single strategy outcome for the read-only history.
type OutcomeRow struct {
	SystemID    string
	CycleID     string
	TemplateID  string
	Severity    string
	Probability float64
	Accepted    bool
	CreatedAt   time.Time
}

// RecordStrategyOutcome appends one strategy outcome row.
func (s *Store) RecordStrategyOutcome(row OutcomeRow) error {
	accepted := 0
	if row.Accepted {
		accepted = 1
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO strategy_outcomes (system_id, cycle_id, template_id, severity, probability, accepted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.SystemID, row.CycleID, row.TemplateID, row.Severity, row.Probability,
		accepted, row.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record strategy outcome: %w", err)
	}
	return nil
}

// TemplateSuccessRate returns the decay-weighted historical success rate of
// a template for one system and the number of outcomes behind it. Outcomes
// decay with a 7-day half-life so ancient successes do not dominate.
func (s *Store) TemplateSuccessRate(systemID, templateID string) (float64, int, error) {
	rows, err := s.db.Query(
		`SELECT accepted, created_at FROM strategy_outcomes
		 WHERE system_id = ? AND template_id = ?`, systemID, templateID,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("template success rate: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	halfLife := 7.0 * 24.0 // hours

	var weightedSum, totalWeight float64
	var n int
	for rows.Next() {
		var accepted int
		var createdAtStr string
		if err := rows.Scan(&accepted, &createdAtStr); err != nil {
			return 0, 0, fmt.Errorf("scan outcome: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			continue
		}
		weight := math.Exp(-math.Ln2 * now.Sub(createdAt).Hours() / halfLife)
		weightedSum += float64(accepted) * weight
		totalWeight += weight
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if n == 0 || totalWeight == 0 {
		return 0, 0, nil
	}
	return weightedSum / totalWeight, n, nil
}

// #endregion strategy-outcomes
