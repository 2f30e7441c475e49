package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ── Record Assembler & Writer ──────────────────────────────
// The supervised end of the pipeline. A normalized row either fails
// the required-field gate, computes its identity key and turns out to
// be a duplicate, or is committed to the destination atomically. The
// dedup index is only advanced after a confirmed write, so a failed
// commit never burns an identity key.

// ErrDestinationRejected is the sentinel destinations wrap when a
// record is refused structurally (constraint violation, invalid
// payload). Structural rejections are never retried.
var ErrDestinationRejected = errors.New("destination rejected record")

// ErrDestinationUnreachable is returned by the writer when the retry
// budget for a transient failure is exhausted. The orchestrator treats
// it as fatal for the run.
var ErrDestinationUnreachable = errors.New("destination unreachable")

// Destination is the output collaborator. Commit must be atomic per
// call: the record lands whole or not at all.
type Destination interface {
	Commit(ctx context.Context, rec *DestinationRecord) error
}

// DestinationRecord is the committed representation of an accepted
// row.
type DestinationRecord struct {
	ID          string         `json:"id"`
	RunID       string         `json:"runId"`
	RowNum      int            `json:"rowNum"`
	IdentityKey string         `json:"identityKey"`
	Fields      map[string]any `json:"fields"`
}

// Writer drives the per-row commit state machine against a shared
// dedup index.
type Writer struct {
	dest     Destination
	required []string
	identity []string
	retry    RetryPolicy
	log      zerolog.Logger

	// mu serializes the check → write → index-update critical section.
	// Upstream stages may run in parallel; commits never do.
	mu    sync.Mutex
	index map[string]string // identity key → committed record id
}

// NewWriter builds a Writer for one run. seed pre-loads the dedup
// index with identity keys already present at the destination, which
// is what makes reruns idempotent; pass nil for a fresh destination.
func NewWriter(cfg *Config, dest Destination, seed map[string]string, log zerolog.Logger) *Writer {
	index := make(map[string]string, len(seed))
	for k, v := range seed {
		index[k] = v
	}
	return &Writer{
		dest:     dest,
		required: cfg.Required,
		identity: cfg.Identity,
		retry:    cfg.retry(),
		log:      log.With().Str("component", "writer").Logger(),
		index:    index,
	}
}

// IndexSize reports how many identity keys the dedup index holds.
func (w *Writer) IndexSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.index)
}

// Assemble runs the state machine for one normalized row and returns
// its outcome. Only ErrDestinationUnreachable is returned as an error;
// every data-shaped failure is an outcome, not an error.
func (w *Writer) Assemble(ctx context.Context, runID string, rec *CandidateRecord) (RowOutcome, error) {
	out := RowOutcome{RowNum: rec.RowNum}

	// Required-field gate. Absent fields reject as missing; invalid
	// fields reject with their own validation reason so the summary
	// says what was actually wrong.
	for _, field := range w.required {
		f, ok := rec.Fields[field]
		if !ok || f.State == FieldAbsent {
			out.Disposition = DispositionRejected
			out.Reason = ReasonMissingRequired
			out.Detail = field
			return out, nil
		}
		if f.State == FieldInvalid {
			out.Disposition = DispositionRejected
			out.Reason = f.Reason
			out.Detail = field
			return out, nil
		}
	}

	if rec.Violation != "" {
		out.Disposition = DispositionRejected
		out.Reason = rec.Violation
		return out, nil
	}

	key := identityKey(rec, w.identity)

	// Critical section: duplicate check, commit, index update. Held
	// across the write so first-write-wins survives any upstream
	// parallelism.
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.index[key]; ok {
		out.Disposition = DispositionDuplicate
		out.DuplicateOf = existing
		w.log.Debug().Int("row", rec.RowNum).Str("of", existing).Msg("duplicate identity")
		return out, nil
	}

	dr := &DestinationRecord{
		ID:          uuid.New().String(),
		RunID:       runID,
		RowNum:      rec.RowNum,
		IdentityKey: key,
		Fields:      make(map[string]any, len(rec.Fields)),
	}
	for name, f := range rec.Fields {
		if f.State == FieldValid {
			dr.Fields[name] = f.Value
		}
	}

	if err := w.commit(ctx, dr); err != nil {
		if errors.Is(err, ErrDestinationRejected) {
			out.Disposition = DispositionRejected
			out.Reason = ReasonDestinationRejected
			out.Detail = err.Error()
			return out, nil
		}
		// Retry budget exhausted: the row rejects and the run dies.
		out.Disposition = DispositionRejected
		out.Reason = ReasonWriteFailed
		out.Detail = err.Error()
		return out, fmt.Errorf("%w: %v", ErrDestinationUnreachable, err)
	}

	// The key is marked used only now, after the confirmed write.
	w.index[key] = dr.ID
	out.Disposition = DispositionAccepted
	out.RecordID = dr.ID
	return out, nil
}

// commit writes one record, retrying transient failures with
// exponential backoff. Structural rejections return immediately.
func (w *Writer) commit(ctx context.Context, rec *DestinationRecord) error {
	var lastErr error
	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		err := w.dest.Commit(ctx, rec)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrDestinationRejected) {
			return err
		}
		lastErr = err
		w.log.Warn().Int("row", rec.RowNum).Int("attempt", attempt).Err(err).Msg("transient commit failure")

		if attempt == w.retry.MaxAttempts {
			break
		}
		backoff := time.Duration(w.retry.BackoffBase) << (attempt - 1)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			// A row aborted mid-retry is write-failed, never partially
			// written; the destination honored per-call atomicity.
			return fmt.Errorf("cancelled during retry: %w", ctx.Err())
		}
	}
	return fmt.Errorf("after %d attempts: %w", w.retry.MaxAttempts, lastErr)
}

// identityKey digests the ordered identity field values. Values are
// length-prefixed before hashing so ("ab","c") and ("a","bc") can
// never collide.
func identityKey(rec *CandidateRecord, fields []string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, name := range fields {
		s, _ := asString(rec.Fields[name].Value)
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}
