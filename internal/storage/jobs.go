package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scrub/internal/pipeline"
)

// JobStore implements persistence for cleaning job definitions.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// ── Job CRUD ───────────────────────────────────────────────

func (s *JobStore) CreateJob(job *pipeline.Job) error {
	now := time.Now()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.TriggerType == "" {
		job.TriggerType = pipeline.TriggerManual
	}

	readerCfg, _ := json.Marshal(job.ReaderConfig)
	pipelineCfg, _ := json.Marshal(job.Pipeline)

	_, err := s.db.conn.Exec(
		`INSERT INTO jobs (id, name, reader_type, reader_config, pipeline_config,
		 trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.ReaderType, string(readerCfg), string(pipelineCfg),
		job.TriggerType, job.TriggerConfig, job.Enabled,
		job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *JobStore) GetJob(id string) (*pipeline.Job, error) {
	job := &pipeline.Job{}
	var readerCfg, pipelineCfg string

	err := s.db.conn.QueryRow(
		`SELECT id, name, reader_type, reader_config, pipeline_config,
		 trigger_type, trigger_config, enabled,
		 last_run_at, last_status, last_error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	).Scan(
		&job.ID, &job.Name, &job.ReaderType, &readerCfg, &pipelineCfg,
		&job.TriggerType, &job.TriggerConfig, &job.Enabled,
		&job.LastRunAt, &job.LastStatus, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(readerCfg), &job.ReaderConfig)
	json.Unmarshal([]byte(pipelineCfg), &job.Pipeline)
	return job, nil
}

func (s *JobStore) ListJobs() ([]pipeline.Job, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, name, reader_type, reader_config, pipeline_config,
		 trigger_type, trigger_config, enabled,
		 last_run_at, last_status, last_error, created_at, updated_at
		 FROM jobs ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []pipeline.Job
	for rows.Next() {
		var job pipeline.Job
		var readerCfg, pipelineCfg string
		if err := rows.Scan(
			&job.ID, &job.Name, &job.ReaderType, &readerCfg, &pipelineCfg,
			&job.TriggerType, &job.TriggerConfig, &job.Enabled,
			&job.LastRunAt, &job.LastStatus, &job.LastError,
			&job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(readerCfg), &job.ReaderConfig)
		json.Unmarshal([]byte(pipelineCfg), &job.Pipeline)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListEnabledTriggeredJobs returns enabled jobs with a schedule or
// file-watch trigger; used to rebuild watchers.
func (s *JobStore) ListEnabledTriggeredJobs() ([]pipeline.Job, error) {
	jobs, err := s.ListJobs()
	if err != nil {
		return nil, err
	}
	var out []pipeline.Job
	for _, j := range jobs {
		if j.Enabled && (j.TriggerType == pipeline.TriggerSchedule || j.TriggerType == pipeline.TriggerFileWatch) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *JobStore) UpdateJob(job *pipeline.Job) error {
	job.UpdatedAt = time.Now()
	readerCfg, _ := json.Marshal(job.ReaderConfig)
	pipelineCfg, _ := json.Marshal(job.Pipeline)

	_, err := s.db.conn.Exec(
		`UPDATE jobs SET name=?, reader_type=?, reader_config=?, pipeline_config=?,
		 trigger_type=?, trigger_config=?, enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.ReaderType, string(readerCfg), string(pipelineCfg),
		job.TriggerType, job.TriggerConfig, job.Enabled,
		job.UpdatedAt, job.ID,
	)
	return err
}

func (s *JobStore) UpdateJobStatus(id, status, errMsg string) error {
	_, err := s.db.conn.Exec(
		`UPDATE jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		time.Now(), status, errMsg, time.Now(), id,
	)
	return err
}

func (s *JobStore) DeleteJob(id string) error {
	// Keep runs and records; only the definition goes. Audit trails
	// outlive their jobs.
	_, err := s.db.conn.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	return err
}
