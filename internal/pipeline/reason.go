package pipeline

// ── Reason codes ───────────────────────────────────────────
// Every rejected or duplicate row carries a stable, enumerable reason
// code so runs can be audited and aggregated. Validation and
// cross-check reasons come from the job config (MALFORMED_DATE,
// EMPTY_NAME, ...); the codes below are produced by the pipeline
// itself.

// Reason identifies why a row was rejected. Conventionally
// UPPER_SNAKE_CASE so summaries group cleanly.
type Reason string

const (
	// ReasonUnreadableRow marks rows the reader could not parse into
	// a column map at all.
	ReasonUnreadableRow Reason = "UNREADABLE_ROW"

	// ReasonMissingRequired marks rows where a required field was
	// absent after extraction. Invalid required fields reject with
	// their own validation reason instead.
	ReasonMissingRequired Reason = "MISSING_REQUIRED"

	// ReasonWriteFailed marks rows whose destination commit kept
	// failing transiently until the retry budget ran out. The run
	// aborts after emitting this outcome.
	ReasonWriteFailed Reason = "WRITE_FAILED"

	// ReasonDestinationRejected marks rows the destination refused
	// structurally (constraint violation, oversized payload). Never
	// retried.
	ReasonDestinationRejected Reason = "DESTINATION_REJECTED"
)
