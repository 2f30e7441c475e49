package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"scrub/internal/pipeline"
)

// RunStore persists run summaries and their per-row outcome logs.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// RunRecord is the stored form of one pipeline execution.
type RunRecord struct {
	ID         string                  `json:"id"`
	JobID      string                  `json:"jobId"`
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt time.Time               `json:"finishedAt"`
	Status     string                  `json:"status"`
	Error      string                  `json:"error,omitempty"`
	Total      int                     `json:"total"`
	Accepted   int                     `json:"accepted"`
	Duplicates int                     `json:"duplicates"`
	Rejected   int                     `json:"rejected"`
	Reasons    map[pipeline.Reason]int `json:"reasons"`
}

// SaveSummary persists a finalized summary: the run row plus every
// per-row outcome, in one transaction.
func (s *RunStore) SaveSummary(jobID string, sum *pipeline.Summary) error {
	reasons, _ := json.Marshal(sum.Rejected)

	tx, err := s.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (id, job_id, started_at, finished_at, status, error,
		 total, accepted, duplicates, rejected, rejected_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, jobID, sum.StartedAt, sum.FinishedAt, sum.Status, sum.Error,
		sum.Total, sum.Accepted, sum.Duplicates, sum.RejectedTotal(), string(reasons),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO run_rows (run_id, row_num, disposition, reason, detail, record_id, duplicate_of)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range sum.Rows {
		if _, err := stmt.Exec(
			sum.RunID, row.RowNum, string(row.Disposition), string(row.Reason),
			row.Detail, row.RecordID, row.DuplicateOf,
		); err != nil {
			return fmt.Errorf("insert outcome row %d: %w", row.RowNum, err)
		}
	}

	return tx.Commit()
}

// GetRun loads one stored run summary.
func (s *RunStore) GetRun(id string) (*RunRecord, error) {
	run := &RunRecord{}
	var reasons string
	err := s.db.conn.QueryRow(
		`SELECT id, job_id, started_at, finished_at, status, error,
		 total, accepted, duplicates, rejected, rejected_json
		 FROM runs WHERE id = ?`, id,
	).Scan(
		&run.ID, &run.JobID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Error,
		&run.Total, &run.Accepted, &run.Duplicates, &run.Rejected, &reasons,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(reasons), &run.Reasons)
	return run, nil
}

// ListRuns returns the most recent runs for a job, newest first. An
// empty jobID lists runs across all jobs.
func (s *RunStore) ListRuns(jobID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, job_id, started_at, finished_at, status, error,
	 total, accepted, duplicates, rejected, rejected_json
	 FROM runs`
	args := []any{}
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var reasons string
		if err := rows.Scan(
			&run.ID, &run.JobID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.Error,
			&run.Total, &run.Accepted, &run.Duplicates, &run.Rejected, &reasons,
		); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(reasons), &run.Reasons)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListOutcomes returns the per-row outcome log of a run in row order.
func (s *RunStore) ListOutcomes(runID string) ([]pipeline.RowOutcome, error) {
	rows, err := s.db.conn.Query(
		`SELECT row_num, disposition, reason, detail, record_id, duplicate_of
		 FROM run_rows WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []pipeline.RowOutcome
	for rows.Next() {
		var o pipeline.RowOutcome
		var disposition, reason string
		if err := rows.Scan(&o.RowNum, &disposition, &reason, &o.Detail, &o.RecordID, &o.DuplicateOf); err != nil {
			return nil, err
		}
		o.Disposition = pipeline.Disposition(disposition)
		o.Reason = pipeline.Reason(reason)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
