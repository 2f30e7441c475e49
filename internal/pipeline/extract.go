package pipeline

import (
	"strconv"
	"strings"
	"time"
)

// ── Field Extractor ────────────────────────────────────────
// Pulls the configured target fields out of a RawRow. Extraction is a
// pure function of (row, config): no side effects, identical output
// for identical input. A value that cannot be coerced is simply not a
// candidate — absence is decided here, rejection is decided later by
// validation.

// ExtractFunc coerces one raw scalar into a candidate value. A false
// return means the value does not yield a candidate (blank, wrong
// shape) and the next configured source is tried.
type ExtractFunc func(raw any) (any, bool)

// extractors is the built-in registry, keyed by the names a Config
// references. Populated once; never mutated after init.
var extractors = map[string]ExtractFunc{
	"text":   extractText,
	"number": extractNumber,
	"date":   extractDate,
	"bool":   extractBool,
}

// ExtractorNames returns the registered extractor names, for the CLI
// and MCP listings.
func ExtractorNames() []string {
	names := make([]string, 0, len(extractors))
	for n := range extractors {
		names = append(names, n)
	}
	return names
}

// Extractor applies a validated field map to raw rows.
type Extractor struct {
	fields map[string][]FieldSource
}

// NewExtractor builds an Extractor from a config that already passed
// Validate.
func NewExtractor(cfg *Config) *Extractor {
	return &Extractor{fields: cfg.Fields}
}

// Extract produces the candidate field set for one row. For each
// target field the configured sources are tried in order; the first
// extractor that yields a value wins. Fields with no winning source
// are left out of the set entirely.
func (e *Extractor) Extract(row RawRow) FieldSet {
	fs := FieldSet{RowNum: row.Num, Fields: make(map[string]Candidate, len(e.fields))}
	for field, srcs := range e.fields {
		for _, src := range srcs {
			raw, ok := row.Values[src.Column]
			if !ok || raw == nil {
				continue
			}
			v, ok := extractors[src.Extractor](raw)
			if !ok {
				continue
			}
			fs.Fields[field] = Candidate{Value: v, Column: src.Column, Raw: raw}
			break
		}
	}
	return fs
}

// ── Built-in extractors ────────────────────────────────────

func extractText(raw any) (any, bool) {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return nil, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	return s, true
}

func extractNumber(raw any) (any, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// dateLayouts are the input shapes the pipeline understands, tried in
// order. Legacy exports mix US slashed dates, spelled-out dates, and
// the occasional already-clean ISO value.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006/01/02",
	"02-01-2006",
	"2 January 2006",
}

// parseFlexibleDate tries each known layout against the trimmed input.
func parseFlexibleDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractDate keeps the trimmed original string as the candidate when
// it parses under any known layout. Canonicalization to ISO happens in
// the rule chain (the date_iso transform) so the raw shape survives
// into the audit trail.
func extractDate(raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if _, ok := parseFlexibleDate(s); !ok {
		return nil, false
	}
	return s, true
}

func extractBool(raw any) (any, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
		return nil, false
	case float64:
		return v != 0, true
	default:
		return nil, false
	}
}

// asString coerces a candidate value for the string-oriented
// transforms and validators. Numbers format without a trailing zero
// fraction so "1001" round-trips even when a reader inferred it
// numeric.
func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}
