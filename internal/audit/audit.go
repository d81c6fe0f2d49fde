// Package audit appends stage-level decisions to the decision log so every
// cycle's reasoning can be reconstructed after the fact.
package audit

// #region imports
import (
	"database/sql"
	"fmt"
	"time"
)

// #endregion

// #region types

// Entry is one recorded decision: which stage of which cycle decided what,
// and why. DetailJSON carries stage-specific structure (scores, candidate
// lists, step outcomes) as opaque JSON.
type Entry struct {
	CycleID    string    `json:"cycle_id"`
	SystemID   string    `json:"system_id"`
	Stage      string    `json:"stage"`
	Decision   string    `json:"decision"`
	Reason     string    `json:"reason,omitempty"`
	DetailJSON string    `json:"detail_json,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// #endregion

// #region log-decision

// LogDecision appends one entry to the decision log.
func LogDecision(db *sql.DB, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(
		`INSERT INTO decision_log (cycle_id, system_id, stage, decision, reason, detail_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.CycleID, e.SystemID, e.Stage, e.Decision, e.Reason, e.DetailJSON,
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion

// #region list-decisions

// ListDecisions returns the decision log for one cycle in insertion order.
func ListDecisions(db *sql.DB, cycleID string) ([]Entry, error) {
	rows, err := db.Query(
		`SELECT cycle_id, system_id, stage, decision, reason, detail_json, created_at
		 FROM decision_log WHERE cycle_id = ? ORDER BY id ASC`, cycleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var createdStr string
		if err := rows.Scan(&e.CycleID, &e.SystemID, &e.Stage, &e.Decision,
			&e.Reason, &e.DetailJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion
