package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"scrub/internal/pipeline"
)

// ── Clean-record destination ───────────────────────────────
// CleanStore is the built-in pipeline.Destination: committed records
// land in the records table. Each commit is one INSERT inside its own
// transaction, so a record is either fully visible or not there at
// all. The UNIQUE index on identity_key backs the in-memory dedup
// index at the storage level.

// CleanStore writes destination records into the records table.
type CleanStore struct {
	db *DB
}

// NewCleanStore creates a new CleanStore.
func NewCleanStore(db *DB) *CleanStore {
	return &CleanStore{db: db}
}

// Commit implements pipeline.Destination. Structural refusals (the
// identity key already stored, an unserializable payload) wrap
// pipeline.ErrDestinationRejected; everything else is transient and
// retryable.
func (s *CleanStore) Commit(ctx context.Context, rec *pipeline.DestinationRecord) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("%w: encode fields: %v", pipeline.ErrDestinationRejected, err)
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (id, identity_key, run_id, row_num, fields_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.IdentityKey, rec.RunID, rec.RowNum, string(fields), time.Now(),
	); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %v", pipeline.ErrDestinationRejected, err)
		}
		return fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SeedIndex loads identity key → record id for every stored record.
// Feeding this into the writer is what makes reruns idempotent: every
// previously committed row resolves to Duplicate.
func (s *CleanStore) SeedIndex(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT identity_key, id FROM records`)
	if err != nil {
		return nil, fmt.Errorf("seed index: %w", err)
	}
	defer rows.Close()

	index := make(map[string]string)
	for rows.Next() {
		var key, id string
		if err := rows.Scan(&key, &id); err != nil {
			return nil, err
		}
		index[key] = id
	}
	return index, rows.Err()
}

// CountRecords reports how many clean records are stored.
func (s *CleanStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

// GetRecord loads one committed record by id.
func (s *CleanStore) GetRecord(ctx context.Context, id string) (*pipeline.DestinationRecord, error) {
	rec := &pipeline.DestinationRecord{}
	var fields string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id, identity_key, run_id, row_num, fields_json FROM records WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.IdentityKey, &rec.RunID, &rec.RowNum, &fields)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	json.Unmarshal([]byte(fields), &rec.Fields)
	return rec, nil
}

// isConstraintViolation detects schema-level refusals from the sqlite
// driver. These are permanent for the record; retrying cannot help.
func isConstraintViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "CHECK constraint")
}
