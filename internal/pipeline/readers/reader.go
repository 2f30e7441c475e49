package readers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"scrub/internal/pipeline"
)

// ── Reader ──────────────────────────────────────────────────
// A Reader turns an external data shape into a lazy stream of raw
// rows. Implementations live in this package — one file per reader
// type — and register themselves at init, so a job config resolves
// its reader by name.
//
// Pattern: Airbyte connector protocol (spec → discover → read).

// Config is an opaque configuration map parsed per reader type.
type Config map[string]any

// ConfigField describes a single configuration input for a reader.
// The CLI and MCP listings render help text from this spec.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "select" | "number" | "password" | "file"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // for "select" type
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// Spec describes a reader type: its label and config fields.
type Spec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Reader is the interface every row reader must implement.
type Reader interface {
	// Spec returns metadata about this reader type.
	Spec() Spec

	// Discover samples the source and returns its column labels.
	Discover(ctx context.Context, cfg Config) ([]string, error)

	// Rows streams rows lazily. The row channel is closed when the
	// source is exhausted or ctx is cancelled. Row-level structural
	// failures travel inside SourceRow; stream-level errors are sent
	// on the error channel (buffered size 1).
	Rows(ctx context.Context, cfg Config) (<-chan pipeline.SourceRow, <-chan error)
}

// ── Reader Registry ────────────────────────────────────────
// Compile-time registration via init() in each reader file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Reader{}
)

// Register registers a reader by its spec type. Called from init() in
// each reader implementation file.
func Register(r Reader) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[r.Spec().Type] = r
}

// Get returns a registered reader by type, or an error if not found.
func Get(typ string) (Reader, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown reader type: %q", typ)
	}
	return r, nil
}

// List returns the specs of all registered readers.
func List() []Spec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]Spec, 0, len(registry))
	for _, r := range registry {
		specs = append(specs, r.Spec())
	}
	return specs
}

// Open binds a registered reader to a config, yielding the RowSource
// the pipeline consumes.
func Open(typ string, cfg Config) (pipeline.RowSource, error) {
	r, err := Get(typ)
	if err != nil {
		return nil, err
	}
	return &boundReader{reader: r, cfg: cfg}, nil
}

type boundReader struct {
	reader Reader
	cfg    Config
}

func (b *boundReader) Rows(ctx context.Context) (<-chan pipeline.SourceRow, <-chan error) {
	return b.reader.Rows(ctx, b.cfg)
}

// ── Shared value inference ─────────────────────────────────

// nullMarkers are the strings legacy exports use for "no value".
var nullMarkers = map[string]bool{
	"":     true,
	"null": true,
	"n/a":  true,
	"na":   true,
	"none": true,
	"-":    true,
}

// inferValue maps a raw cell string onto the pipeline's scalar model:
// nil for null markers, float64 for numbers, bool for booleans, string
// otherwise.
func inferValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if nullMarkers[strings.ToLower(trimmed)] {
		return nil
	}

	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}

	switch strings.ToLower(trimmed) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}

	return s
}
