package pipeline_test

import (
	"testing"

	"scrub/internal/pipeline"
)

// ─────────────────────────────────────────────────────────────
// Rule chain tests — run through the Normalizer so transforms
// and validators execute exactly as configured.
// ─────────────────────────────────────────────────────────────

// normalizeOne builds a single-field pipeline around the given rule set
// and runs one candidate value through it.
func normalizeOne(t *testing.T, rs pipeline.RuleSet, value any) pipeline.NormalizedField {
	t.Helper()
	cfg := &pipeline.Config{
		Fields:   map[string][]pipeline.FieldSource{"f": {{Column: "f", Extractor: "text"}}},
		Rules:    map[string]pipeline.RuleSet{"f": rs},
		Required: []string{"f"},
		Identity: []string{"f"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config did not validate: %v", err)
	}
	n, err := pipeline.NewNormalizer(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rec := n.Normalize(pipeline.FieldSet{RowNum: 1, Fields: map[string]pipeline.Candidate{
		"f": {Value: value, Column: "f", Raw: value},
	}})
	return rec.Fields["f"]
}

func TestRules_OrderMatters(t *testing.T) {
	// trim → uppercase → matches: the raw value only validates because
	// the transforms ran first, in declared order.
	rs := pipeline.RuleSet{
		Transforms: []pipeline.TransformSpec{
			{Name: "trim"},
			{Name: "uppercase"},
		},
		Validator: pipeline.ValidatorSpec{
			Name:   "matches",
			Args:   map[string]any{"pattern": `[A-Z]{1,2}\d[A-Z\d]? \d[A-Z]{2}`},
			Reason: "BAD_POSTCODE",
		},
	}

	f := normalizeOne(t, rs, "  SW1A 1aa ")
	if f.State != pipeline.FieldValid {
		t.Fatalf("expected valid, got %s (%s)", f.State, f.Reason)
	}
	if f.Value != "SW1A 1AA" {
		t.Errorf("expected canonical SW1A 1AA, got %v", f.Value)
	}

	// Without the transforms the same raw value fails.
	rs.Transforms = nil
	f = normalizeOne(t, rs, "  SW1A 1aa ")
	if f.State != pipeline.FieldInvalid || f.Reason != "BAD_POSTCODE" {
		t.Errorf("expected BAD_POSTCODE rejection, got %s (%s)", f.State, f.Reason)
	}
}

func TestRules_TitleCase(t *testing.T) {
	rs := pipeline.RuleSet{
		Transforms: []pipeline.TransformSpec{{Name: "trim"}, {Name: "collapse_spaces"}, {Name: "title_case"}},
		Validator:  pipeline.ValidatorSpec{Name: "not_empty", Reason: "EMPTY_NAME"},
	}

	cases := map[string]string{
		"john   doe":      "John Doe",
		"MICHAEL BROWN":   "Michael Brown",
		"mary-jane smith": "Mary-Jane Smith",
		"o'brien":         "O'Brien",
	}
	for in, want := range cases {
		f := normalizeOne(t, rs, in)
		if f.Value != want {
			t.Errorf("title_case(%q) = %v, want %q", in, f.Value, want)
		}
	}
}

func TestRules_MapValuesCorrectionTable(t *testing.T) {
	rs := pipeline.RuleSet{
		Transforms: []pipeline.TransformSpec{
			{Name: "trim"},
			{Name: "map_values", Args: map[string]any{"mapping": map[string]any{
				"N YC":  "New York",
				"LA":    "Los Angeles",
				"S.F.":  "San Francisco",
			}}},
		},
		Validator: pipeline.ValidatorSpec{Name: "not_empty", Reason: "EMPTY_CITY"},
	}

	if f := normalizeOne(t, rs, " N YC "); f.Value != "New York" {
		t.Errorf("expected correction to New York, got %v", f.Value)
	}
	if f := normalizeOne(t, rs, "Chicago"); f.Value != "Chicago" {
		t.Errorf("unmapped value should pass through, got %v", f.Value)
	}
}

func TestRules_DateISO(t *testing.T) {
	rs := pipeline.RuleSet{
		Transforms: []pipeline.TransformSpec{{Name: "date_iso"}},
		Validator:  pipeline.ValidatorSpec{Name: "iso_date", Reason: "MALFORMED_DATE"},
	}

	for in, want := range map[string]string{
		"01/15/2024":       "2024-01-15",
		"January 15, 2024": "2024-01-15",
		"2024-01-15":       "2024-01-15",
	} {
		f := normalizeOne(t, rs, in)
		if f.State != pipeline.FieldValid || f.Value != want {
			t.Errorf("date_iso(%q) = %v (%s), want %q valid", in, f.Value, f.State, want)
		}
	}

	f := normalizeOne(t, rs, "15/45/9999")
	if f.State != pipeline.FieldInvalid || f.Reason != "MALFORMED_DATE" {
		t.Errorf("expected MALFORMED_DATE, got %s (%s)", f.State, f.Reason)
	}
}

func TestRules_NumberRange(t *testing.T) {
	rs := pipeline.RuleSet{
		Validator: pipeline.ValidatorSpec{
			Name:   "number_range",
			Args:   map[string]any{"min": 0, "max": 100},
			Reason: "OUT_OF_RANGE",
		},
	}

	if f := normalizeOne(t, rs, 42.0); f.State != pipeline.FieldValid {
		t.Errorf("42 should be in range, got %s", f.State)
	}
	if f := normalizeOne(t, rs, 101.0); f.State != pipeline.FieldInvalid {
		t.Errorf("101 should be out of range, got %s", f.State)
	}
	if f := normalizeOne(t, rs, "42"); f.State != pipeline.FieldInvalid {
		t.Errorf("non-number should fail number_range, got %s", f.State)
	}
}

func TestRules_InSetAndMaxLen(t *testing.T) {
	inSet := pipeline.RuleSet{
		Validator: pipeline.ValidatorSpec{
			Name:   "in_set",
			Args:   map[string]any{"values": []any{"new", "active", "closed"}},
			Reason: "BAD_STATUS",
		},
	}
	if f := normalizeOne(t, inSet, "active"); f.State != pipeline.FieldValid {
		t.Errorf("active should be in set, got %s", f.State)
	}
	if f := normalizeOne(t, inSet, "Active"); f.State != pipeline.FieldInvalid {
		t.Errorf("in_set is exact-match, got %s", f.State)
	}

	maxLen := pipeline.RuleSet{
		Transforms: []pipeline.TransformSpec{{Name: "truncate", Args: map[string]any{"length": 5}}},
		Validator:  pipeline.ValidatorSpec{Name: "max_len", Args: map[string]any{"length": 5}, Reason: "TOO_LONG"},
	}
	f := normalizeOne(t, maxLen, "abcdefgh")
	if f.State != pipeline.FieldValid || f.Value != "abcde" {
		t.Errorf("truncate+max_len: got %v (%s)", f.Value, f.State)
	}
}

func TestRules_MatchesIsAnchored(t *testing.T) {
	rs := pipeline.RuleSet{
		Validator: pipeline.ValidatorSpec{
			Name:   "matches",
			Args:   map[string]any{"pattern": `\d{4}`},
			Reason: "BAD_CODE",
		},
	}
	if f := normalizeOne(t, rs, "1234"); f.State != pipeline.FieldValid {
		t.Errorf("exact match should validate, got %s", f.State)
	}
	if f := normalizeOne(t, rs, "x1234y"); f.State != pipeline.FieldInvalid {
		t.Error("partial hit inside junk must not validate")
	}
}

func TestRules_UnknownNamesFailValidate(t *testing.T) {
	cfg := &pipeline.Config{
		Fields: map[string][]pipeline.FieldSource{"f": {{Column: "f", Extractor: "text"}}},
		Rules: map[string]pipeline.RuleSet{"f": {
			Transforms: []pipeline.TransformSpec{{Name: "sparkle"}},
			Validator:  pipeline.ValidatorSpec{Name: "not_empty", Reason: "X"},
		}},
		Required: []string{"f"},
		Identity: []string{"f"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown transform name should fail Validate")
	}
}
