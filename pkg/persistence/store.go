// Package persistence provides SQLite-based storage for execution history.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"conductor/pkg/logx"
	"conductor/pkg/plan"
)

// Store persists plan and step execution history. A Store is created once at
// startup and injected into the components that need it; callers that do not
// want history pass nil and the orchestrator skips recording.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if necessary) the history database at dbPath and
// ensures the schema is current.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("History database opened: %s", dbPath)

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// PlanRecord is one recorded plan execution.
type PlanRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	PlanName   string    `json:"plan_name"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	Steps      int       `json:"steps"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// StepRecord is one recorded step result within a plan execution.
type StepRecord struct {
	ID           int64    `json:"id"`
	PlanExecID   int64    `json:"plan_exec_id"`
	StepID       string   `json:"step_id"`
	Status       string   `json:"status"`
	Summary      string   `json:"summary"`
	Notes        string   `json:"notes,omitempty"`
	TouchedPaths []string `json:"touched_paths,omitempty"`
	LogRef       string   `json:"log_ref,omitempty"`
}

// RecordPlan stores one completed plan execution and its step results in a
// single transaction. Returns the plan execution row ID.
func (s *Store) RecordPlan(ctx context.Context, sessionID, planName, mode string, result *plan.PlanExecutionResult, startedAt time.Time, duration time.Duration) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO plan_executions (session_id, plan_name, mode, status, steps, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, planName, mode, string(result.Status),
		len(result.Results), duration.Milliseconds(), startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert plan execution: %w", err)
	}

	execID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get plan execution id: %w", err)
	}

	for i := range result.Results {
		sr := &result.Results[i]
		paths, err := json.Marshal(sr.TouchedPaths)
		if err != nil {
			return 0, fmt.Errorf("failed to encode touched paths for step %s: %w", sr.StepID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO step_results (plan_exec_id, step_id, status, summary, notes, touched_paths, log_ref)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			execID, sr.StepID, string(sr.Status),
			plan.TruncateSummary(sr.Summary), sr.Notes, string(paths), sr.LogRef,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert step result %s: %w", sr.StepID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit plan execution: %w", err)
	}
	return execID, nil
}

// RecentPlans returns the most recent plan executions, newest first.
func (s *Store) RecentPlans(ctx context.Context, limit int) ([]PlanRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, plan_name, mode, status, steps, duration_ms, started_at
		 FROM plan_executions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []PlanRecord
	for rows.Next() {
		var r PlanRecord
		var startedAt string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.PlanName, &r.Mode, &r.Status, &r.Steps, &r.DurationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan execution: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339, startedAt); perr == nil {
			r.StartedAt = t
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plan executions: %w", err)
	}
	return records, nil
}

// StepsForPlan returns the step results recorded for one plan execution, in
// insertion order.
func (s *Store) StepsForPlan(ctx context.Context, planExecID int64) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plan_exec_id, step_id, status, summary, notes, touched_paths, log_ref
		 FROM step_results WHERE plan_exec_id = ? ORDER BY id ASC`, planExecID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []StepRecord
	for rows.Next() {
		var r StepRecord
		var paths string
		if err := rows.Scan(&r.ID, &r.PlanExecID, &r.StepID, &r.Status, &r.Summary, &r.Notes, &paths, &r.LogRef); err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		if paths != "" && paths != "null" {
			if err := json.Unmarshal([]byte(paths), &r.TouchedPaths); err != nil {
				return nil, fmt.Errorf("failed to decode touched paths for step %s: %w", r.StepID, err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate step results: %w", err)
	}
	return records, nil
}
