// Package db provides the SQLite cycle-metrics store for psyche.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CycleRecord summarizes one orchestrator cycle.
type CycleRecord struct {
	Cycle       int     `json:"cycle"`
	StartedAt   string  `json:"started_at"`
	EndedAt     string  `json:"ended_at"`
	Action      string  `json:"action"`
	TaskID      string  `json:"task_id,omitempty"`
	Result      string  `json:"result,omitempty"`
	Audited     bool    `json:"audited"`
	Findings    int     `json:"findings"`
	Escalations int     `json:"escalations"`
	CostUSD     float64 `json:"cost_usd"`
	DurationMS  int64   `json:"duration_ms"`
}

// Event is a timeline entry attached to a cycle.
type Event struct {
	Cycle    int
	Type     string
	Message  string
	DataJSON string
}

// Store provides persistence for cycle metrics.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RecordCycle inserts or replaces a cycle summary row.
func (s *Store) RecordCycle(ctx context.Context, rec CycleRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO cycles(cycle, started_at, ended_at, action, task_id, result, audited, findings, escalations, cost_usd, duration_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Cycle, rec.StartedAt, rec.EndedAt, rec.Action, nullableString(rec.TaskID), nullableString(rec.Result),
		boolInt(rec.Audited), rec.Findings, rec.Escalations, rec.CostUSD, rec.DurationMS)
	if err != nil {
		return fmt.Errorf("record cycle %d: %w", rec.Cycle, err)
	}
	return nil
}

// InsertEvent appends a timeline event.
func (s *Store) InsertEvent(ctx context.Context, ev Event) error {
	ts := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `INSERT INTO events(cycle, ts, type, message, data_json) VALUES(?, ?, ?, ?, ?)`,
		ev.Cycle, ts, ev.Type, ev.Message, nullableString(ev.DataJSON))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListCycles returns up to limit of the most recent cycle summaries, newest
// first.
func (s *Store) ListCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT cycle, started_at, ended_at, action, task_id, result, audited, findings, escalations, cost_usd, duration_ms
		FROM cycles ORDER BY cycle DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var taskID, result sql.NullString
		var audited int
		if err := rows.Scan(&rec.Cycle, &rec.StartedAt, &rec.EndedAt, &rec.Action, &taskID, &result,
			&audited, &rec.Findings, &rec.Escalations, &rec.CostUSD, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		rec.TaskID = taskID.String
		rec.Result = result.String
		rec.Audited = audited != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keepLast cycle rows and their events.
func (s *Store) Prune(ctx context.Context, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin prune: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE cycle NOT IN (SELECT cycle FROM cycles ORDER BY cycle DESC LIMIT ?)`, keepLast); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prune events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cycles WHERE cycle NOT IN (SELECT cycle FROM cycles ORDER BY cycle DESC LIMIT ?)`, keepLast); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prune cycles: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prune: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
