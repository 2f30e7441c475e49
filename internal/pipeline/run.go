package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ── Orchestrator ───────────────────────────────────────────
// Drives rows through extract → normalize → assemble and produces the
// run summary. One bad row never aborts a run; only an unreachable
// destination or a broken source stream does, and then with the cause
// reported and everything already committed left intact.

// Disposition is the terminal state of one row.
type Disposition string

const (
	DispositionAccepted  Disposition = "accepted"
	DispositionRejected  Disposition = "rejected"
	DispositionDuplicate Disposition = "duplicate"
)

// Run status values.
const (
	StatusSuccess = "success"
	StatusAborted = "aborted"
)

// RowOutcome is the audit-trail entry for one processed row.
type RowOutcome struct {
	RowNum      int         `json:"rowNum"`
	Disposition Disposition `json:"disposition"`
	Reason      Reason      `json:"reason,omitempty"`
	Detail      string      `json:"detail,omitempty"`      // offending field or error text
	RecordID    string      `json:"recordId,omitempty"`    // set when accepted
	DuplicateOf string      `json:"duplicateOf,omitempty"` // earlier record id when duplicate
}

// Summary is the finalized report of one pipeline execution. It is
// appended to while the run is live and immutable once Run returns.
type Summary struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Status     string         `json:"status"` // "success" | "aborted"
	Error      string         `json:"error,omitempty"`
	Total      int            `json:"total"`
	Accepted   int            `json:"accepted"`
	Duplicates int            `json:"duplicates"`
	Rejected   map[Reason]int `json:"rejected"`
	Rows       []RowOutcome   `json:"rows"`
}

// RejectedTotal sums the rejection counts across all reason codes.
func (s *Summary) RejectedTotal() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

func (s *Summary) record(out RowOutcome) {
	s.Total++
	switch out.Disposition {
	case DispositionAccepted:
		s.Accepted++
	case DispositionDuplicate:
		s.Duplicates++
	case DispositionRejected:
		s.Rejected[out.Reason]++
	}
	s.Rows = append(s.Rows, out)
}

// Runner is one configured pipeline, ready to process row sources.
type Runner struct {
	extractor  *Extractor
	normalizer *Normalizer
	writer     *Writer
	workers    int
	log        zerolog.Logger
}

// New validates the config and compiles a Runner. seed pre-loads the
// dedup index from the destination (see NewWriter). dest may be nil
// only for preview use; Run requires a destination.
func New(cfg *Config, dest Destination, seed map[string]string, log zerolog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	normalizer, err := NewNormalizer(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{
		extractor:  NewExtractor(cfg),
		normalizer: normalizer,
		writer:     NewWriter(cfg, dest, seed, log),
		workers:    cfg.Workers,
		log:        log.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Run processes every row of src and returns the finalized summary.
// The summary is returned even on a fatal abort, carrying everything
// processed up to the failure.
func (r *Runner) Run(ctx context.Context, src RowSource) (*Summary, error) {
	sum := &Summary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Rejected:  make(map[Reason]int),
	}
	r.log.Info().Str("run", sum.RunID).Int("workers", r.workers).Msg("run started")

	var err error
	if r.workers > 1 {
		err = r.runParallel(ctx, sum, src)
	} else {
		err = r.runSequential(ctx, sum, src)
	}

	sum.FinishedAt = time.Now()
	if err != nil {
		sum.Status = StatusAborted
		sum.Error = err.Error()
		r.log.Error().Str("run", sum.RunID).Err(err).Msg("run aborted")
		return sum, err
	}
	sum.Status = StatusSuccess
	r.log.Info().
		Str("run", sum.RunID).
		Int("total", sum.Total).
		Int("accepted", sum.Accepted).
		Int("duplicates", sum.Duplicates).
		Int("rejected", sum.RejectedTotal()).
		Msg("run finished")
	return sum, nil
}

// Preview runs the pure stages only (extract + normalize) over up to
// maxRows rows. Nothing is committed and the dedup index is untouched.
func (r *Runner) Preview(ctx context.Context, src RowSource, maxRows int) ([]CandidateRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rows, errCh := src.Rows(ctx)
	var recs []CandidateRecord
	for sr := range rows {
		if sr.Err != nil {
			recs = append(recs, CandidateRecord{RowNum: sr.Row.Num, Violation: ReasonUnreadableRow})
			continue
		}
		recs = append(recs, r.normalizer.Normalize(r.extractor.Extract(sr.Row)))
		if maxRows > 0 && len(recs) >= maxRows {
			cancel()
			break
		}
	}
	select {
	case err := <-errCh:
		if err != nil {
			return recs, fmt.Errorf("read: %w", err)
		}
	default:
	}
	return recs, nil
}

// runSequential is the default single-lane mode: one row at a time,
// input order, no shared state beyond the writer.
func (r *Runner) runSequential(ctx context.Context, sum *Summary, src RowSource) error {
	rows, errCh := src.Rows(ctx)
	for sr := range rows {
		out, err := r.processRow(ctx, sum.RunID, sr)
		sum.record(out)
		if err != nil {
			return err
		}
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

// staged carries a row through the worker pool with its input
// position, so assembly can re-establish input order.
type staged struct {
	seq int
	sr  SourceRow
	rec *CandidateRecord // nil when sr.Err is set
}

// runParallel fans the pure stages out over r.workers goroutines and
// funnels results through an input-order resequencer into the writer.
// Duplicate resolution therefore behaves identically to sequential
// mode: first row in input order wins.
func (r *Runner) runParallel(ctx context.Context, sum *Summary, src RowSource) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan staged)
	results := make(chan staged, r.workers)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(in)
		rows, errCh := src.Rows(gctx)
		seq := 0
		for sr := range rows {
			select {
			case in <- staged{seq: seq, sr: sr}:
			case <-gctx.Done():
				return gctx.Err()
			}
			seq++
		}
		return <-errCh
	})

	var workers sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for st := range in {
				if st.sr.Err == nil {
					rec := r.normalizer.Normalize(r.extractor.Extract(st.sr.Row))
					st.rec = &rec
				}
				select {
				case results <- st:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// Resequencer: buffer out-of-order results until the next input
	// position arrives, then assemble strictly in order.
	pending := make(map[int]staged)
	next := 0
	var fatal error
	for st := range results {
		pending[st.seq] = st
		for {
			n, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if fatal != nil {
				continue // draining after abort
			}
			var out RowOutcome
			var err error
			if n.sr.Err != nil {
				out = unreadableOutcome(n.sr)
			} else {
				out, err = r.writer.Assemble(ctx, sum.RunID, n.rec)
			}
			sum.record(out)
			if err != nil {
				fatal = err
				cancel()
			}
		}
	}

	if err := g.Wait(); fatal == nil && err != nil && !errors.Is(err, context.Canceled) {
		fatal = fmt.Errorf("read: %w", err)
	}
	return fatal
}

// processRow runs all three stages for one row in the calling
// goroutine.
func (r *Runner) processRow(ctx context.Context, runID string, sr SourceRow) (RowOutcome, error) {
	if sr.Err != nil {
		return unreadableOutcome(sr), nil
	}
	rec := r.normalizer.Normalize(r.extractor.Extract(sr.Row))
	return r.writer.Assemble(ctx, runID, &rec)
}

func unreadableOutcome(sr SourceRow) RowOutcome {
	return RowOutcome{
		RowNum:      sr.Row.Num,
		Disposition: DispositionRejected,
		Reason:      ReasonUnreadableRow,
		Detail:      sr.Err.Error(),
	}
}
