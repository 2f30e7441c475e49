package pipeline

import "context"

// ── Row model ──────────────────────────────────────────────
// Common intermediate shapes flowing through the pipeline.
// Readers emit RawRows, the extractor turns them into FieldSets,
// the normalizer turns those into CandidateRecords.

// RawRow is one row as produced by a reader: column label → untyped
// scalar (string, float64, bool or nil). Num is the 1-based position
// of the row in its source, kept for the audit trail.
type RawRow struct {
	Num    int            `json:"num"`
	Values map[string]any `json:"values"`
}

// SourceRow is the unit a reader streams: either a readable row or a
// row-level structural failure (short line, broken encoding). A set
// Err never aborts the stream; stream-level failures travel on the
// reader's error channel instead.
type SourceRow struct {
	Row RawRow
	Err error
}

// RowSource is the contract input collaborators implement.
// Implementations live in pipeline/readers — one file per reader type.
type RowSource interface {
	// Rows streams rows lazily. The row channel is closed when the
	// source is exhausted or ctx is cancelled. Stream-level errors are
	// sent on the error channel (buffered size 1).
	Rows(ctx context.Context) (<-chan SourceRow, <-chan error)
}

// Candidate is one extracted field value plus its provenance.
type Candidate struct {
	Value  any    `json:"value"`
	Column string `json:"column"` // source column the value came from
	Raw    any    `json:"raw"`    // value before extraction coercion
}

// FieldSet holds the candidates extracted from a single row, keyed by
// target field name. A field the extractor could not produce is simply
// missing from the map; it becomes an explicit Absent during
// normalization, never a default value.
type FieldSet struct {
	RowNum int                  `json:"rowNum"`
	Fields map[string]Candidate `json:"fields"`
}

// FieldState classifies a field after normalization.
type FieldState string

const (
	FieldValid   FieldState = "valid"
	FieldInvalid FieldState = "invalid"
	FieldAbsent  FieldState = "absent"
)

// NormalizedField is one field after the rule chain ran: the canonical
// value, its state, and (when invalid) the configured reason code.
// Column and Raw carry the extraction provenance through to the audit
// trail.
type NormalizedField struct {
	Name   string     `json:"name"`
	Value  any        `json:"value,omitempty"`
	State  FieldState `json:"state"`
	Reason Reason     `json:"reason,omitempty"`
	Column string     `json:"column,omitempty"`
	Raw    any        `json:"raw,omitempty"`
}

// CandidateRecord is a fully normalized row awaiting assembly. Fields
// holds one entry per configured target field, absent ones included.
// Violation is set when a cross-field check failed for the row.
type CandidateRecord struct {
	RowNum    int                        `json:"rowNum"`
	Fields    map[string]NormalizedField `json:"fields"`
	Violation Reason                     `json:"violation,omitempty"`
}

// Valid reports whether the named field normalized to a valid value.
func (r *CandidateRecord) Valid(name string) bool {
	f, ok := r.Fields[name]
	return ok && f.State == FieldValid
}
