package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// ── Rules ──────────────────────────────────────────────────
// The building blocks of the normalization engine. Transforms are pure
// value→value corrections; validators are terminal pass/fail
// predicates. Both are declared by name in a Config and compiled once
// at startup, so a typo is a startup error and never a mid-run
// surprise.

// Transform is one compiled correction step.
type Transform func(v any) any

// Validator is one compiled terminal predicate.
type Validator func(v any) bool

// CrossCheck is one compiled whole-row predicate. It receives the
// normalized fields of the row and reports whether the row is
// consistent.
type CrossCheck func(fields map[string]NormalizedField) bool

type transformBuilder func(args map[string]any) (Transform, error)
type validatorBuilder func(args map[string]any) (Validator, error)
type crossCheckBuilder func(spec CrossCheckSpec) (CrossCheck, error)

var transformBuilders = map[string]transformBuilder{
	"trim":            buildTrim,
	"collapse_spaces": buildCollapseSpaces,
	"uppercase":       buildUppercase,
	"lowercase":       buildLowercase,
	"title_case":      buildTitleCase,
	"map_values":      buildMapValues,
	"date_iso":        buildDateISO,
	"strip":           buildStrip,
	"truncate":        buildTruncate,
}

var validatorBuilders = map[string]validatorBuilder{
	"not_empty":    buildNotEmpty,
	"matches":      buildMatches,
	"iso_date":     buildISODate,
	"in_set":       buildInSet,
	"max_len":      buildMaxLen,
	"number_range": buildNumberRange,
}

var crossCheckBuilders = map[string]crossCheckBuilder{
	"date_not_before": buildDateNotBefore,
	"fields_differ":   buildFieldsDiffer,
	"requires":        buildRequires,
}

// TransformNames returns the registered transform names.
func TransformNames() []string {
	names := make([]string, 0, len(transformBuilders))
	for n := range transformBuilders {
		names = append(names, n)
	}
	return names
}

// ValidatorNames returns the registered validator names.
func ValidatorNames() []string {
	names := make([]string, 0, len(validatorBuilders))
	for n := range validatorBuilders {
		names = append(names, n)
	}
	return names
}

// CrossCheckNames returns the registered cross-check names.
func CrossCheckNames() []string {
	names := make([]string, 0, len(crossCheckBuilders))
	for n := range crossCheckBuilders {
		names = append(names, n)
	}
	return names
}

func buildTransform(spec TransformSpec) (Transform, error) {
	b, ok := transformBuilders[spec.Name]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q", spec.Name)
	}
	t, err := b(spec.Args)
	if err != nil {
		return nil, fmt.Errorf("transform %q: %w", spec.Name, err)
	}
	return t, nil
}

func buildValidator(spec ValidatorSpec) (Validator, error) {
	b, ok := validatorBuilders[spec.Name]
	if !ok {
		return nil, fmt.Errorf("unknown validator %q", spec.Name)
	}
	v, err := b(spec.Args)
	if err != nil {
		return nil, fmt.Errorf("validator %q: %w", spec.Name, err)
	}
	return v, nil
}

func buildCrossCheck(spec CrossCheckSpec) (CrossCheck, error) {
	b, ok := crossCheckBuilders[spec.Name]
	if !ok {
		return nil, fmt.Errorf("unknown cross check %q", spec.Name)
	}
	cc, err := b(spec)
	if err != nil {
		return nil, fmt.Errorf("cross check %q: %w", spec.Name, err)
	}
	return cc, nil
}

// ── Transform builders ─────────────────────────────────────
// String transforms pass non-string values through untouched; a
// number reaching "uppercase" is not an error, it is just not work.

func stringTransform(f func(string) string) Transform {
	return func(v any) any {
		if s, ok := v.(string); ok {
			return f(s)
		}
		return v
	}
}

func buildTrim(map[string]any) (Transform, error) {
	return stringTransform(strings.TrimSpace), nil
}

var multiSpace = regexp.MustCompile(`\s+`)

func buildCollapseSpaces(map[string]any) (Transform, error) {
	return stringTransform(func(s string) string {
		return multiSpace.ReplaceAllString(s, " ")
	}), nil
}

func buildUppercase(map[string]any) (Transform, error) {
	return stringTransform(strings.ToUpper), nil
}

func buildLowercase(map[string]any) (Transform, error) {
	return stringTransform(strings.ToLower), nil
}

// buildTitleCase capitalizes each word: "john doe" → "John Doe",
// "MICHAEL BROWN" → "Michael Brown". Words split on spaces and
// hyphens so "mary-jane o brien" keeps its hyphenation.
func buildTitleCase(map[string]any) (Transform, error) {
	return stringTransform(titleCase), nil
}

func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startWord := true
	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '\'':
			startWord = true
			b.WriteRune(r)
		case startWord:
			b.WriteString(strings.ToUpper(string(r)))
			startWord = false
		default:
			b.WriteString(strings.ToLower(string(r)))
		}
	}
	return b.String()
}

// buildMapValues is the correction-table transform: exact matches on
// the (trimmed) value are replaced, everything else passes through.
// This is where recurring data-entry errors ("N YC" → "New York") are
// fixed before validation ever sees them.
func buildMapValues(args map[string]any) (Transform, error) {
	raw, ok := args["mapping"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("map_values requires a non-empty mapping")
	}
	table := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("map_values mapping for %q is not a string", k)
		}
		table[k] = s
	}
	return stringTransform(func(s string) string {
		if corrected, ok := table[strings.TrimSpace(s)]; ok {
			return corrected
		}
		return s
	}), nil
}

// buildDateISO canonicalizes any recognized date shape to YYYY-MM-DD.
// Unrecognized values pass through unchanged and are left for the
// validator to reject with the configured reason.
func buildDateISO(map[string]any) (Transform, error) {
	return stringTransform(func(s string) string {
		if t, ok := parseFlexibleDate(s); ok {
			return t.Format("2006-01-02")
		}
		return s
	}), nil
}

func buildStrip(args map[string]any) (Transform, error) {
	cutset, ok := args["cutset"].(string)
	if !ok || cutset == "" {
		return nil, fmt.Errorf("strip requires a cutset")
	}
	return stringTransform(func(s string) string {
		return strings.Map(func(r rune) rune {
			if strings.ContainsRune(cutset, r) {
				return -1
			}
			return r
		}, s)
	}), nil
}

func buildTruncate(args map[string]any) (Transform, error) {
	n, ok := intArg(args, "length")
	if !ok || n <= 0 {
		return nil, fmt.Errorf("truncate requires a positive length")
	}
	return stringTransform(func(s string) string {
		if len(s) > n {
			return s[:n]
		}
		return s
	}), nil
}

// ── Validator builders ─────────────────────────────────────

func buildNotEmpty(map[string]any) (Validator, error) {
	return func(v any) bool {
		s, ok := asString(v)
		return ok && strings.TrimSpace(s) != ""
	}, nil
}

func buildMatches(args map[string]any) (Validator, error) {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return nil, fmt.Errorf("matches requires a pattern")
	}
	// Anchor so a partial hit inside junk never validates.
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") {
		pattern += "$"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("matches: %w", err)
	}
	return func(v any) bool {
		s, ok := v.(string)
		return ok && re.MatchString(s)
	}, nil
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func buildISODate(map[string]any) (Validator, error) {
	return func(v any) bool {
		s, ok := v.(string)
		if !ok || !isoDate.MatchString(s) {
			return false
		}
		_, parses := parseFlexibleDate(s)
		return parses
	}, nil
}

func buildInSet(args map[string]any) (Validator, error) {
	raw, ok := args["values"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("in_set requires a non-empty values list")
	}
	set := make(map[string]bool, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("in_set values must be strings")
		}
		set[s] = true
	}
	return func(v any) bool {
		s, ok := v.(string)
		return ok && set[s]
	}, nil
}

func buildMaxLen(args map[string]any) (Validator, error) {
	n, ok := intArg(args, "length")
	if !ok || n <= 0 {
		return nil, fmt.Errorf("max_len requires a positive length")
	}
	return func(v any) bool {
		s, ok := asString(v)
		return ok && len(s) <= n
	}, nil
}

func buildNumberRange(args map[string]any) (Validator, error) {
	min, minOK := floatArg(args, "min")
	max, maxOK := floatArg(args, "max")
	if !minOK && !maxOK {
		return nil, fmt.Errorf("number_range requires min and/or max")
	}
	return func(v any) bool {
		f, ok := v.(float64)
		if !ok {
			return false
		}
		if minOK && f < min {
			return false
		}
		if maxOK && f > max {
			return false
		}
		return true
	}, nil
}

// ── Cross-check builders ───────────────────────────────────
// Cross checks only see fields that normalized to valid; a check over
// a field that is absent or invalid passes vacuously — the field's own
// status already tells the row's story.

// buildDateNotBefore enforces fields[1] ≥ fields[0] on two ISO dates.
func buildDateNotBefore(spec CrossCheckSpec) (CrossCheck, error) {
	if len(spec.Fields) != 2 {
		return nil, fmt.Errorf("date_not_before requires exactly two fields")
	}
	earlier, later := spec.Fields[0], spec.Fields[1]
	return func(fields map[string]NormalizedField) bool {
		a, aOK := validString(fields, earlier)
		b, bOK := validString(fields, later)
		if !aOK || !bOK {
			return true
		}
		// ISO dates compare correctly as strings.
		return b >= a
	}, nil
}

func buildFieldsDiffer(spec CrossCheckSpec) (CrossCheck, error) {
	if len(spec.Fields) != 2 {
		return nil, fmt.Errorf("fields_differ requires exactly two fields")
	}
	first, second := spec.Fields[0], spec.Fields[1]
	return func(fields map[string]NormalizedField) bool {
		a, aOK := validString(fields, first)
		b, bOK := validString(fields, second)
		if !aOK || !bOK {
			return true
		}
		return a != b
	}, nil
}

// buildRequires fails the row when the first field is valid but any of
// the remaining fields is not ("a discount code requires an order
// reference").
func buildRequires(spec CrossCheckSpec) (CrossCheck, error) {
	if len(spec.Fields) < 2 {
		return nil, fmt.Errorf("requires needs a trigger field and at least one dependent")
	}
	trigger, deps := spec.Fields[0], spec.Fields[1:]
	return func(fields map[string]NormalizedField) bool {
		if f, ok := fields[trigger]; !ok || f.State != FieldValid {
			return true
		}
		for _, d := range deps {
			if f, ok := fields[d]; !ok || f.State != FieldValid {
				return false
			}
		}
		return true
	}, nil
}

func validString(fields map[string]NormalizedField, name string) (string, bool) {
	f, ok := fields[name]
	if !ok || f.State != FieldValid {
		return "", false
	}
	s, ok := f.Value.(string)
	return s, ok
}

// ── Arg helpers ────────────────────────────────────────────
// JSON decodes numbers as float64, YAML as int; accept both.

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
