package pipeline_test

import (
	"testing"

	"scrub/internal/pipeline"
)

// ─────────────────────────────────────────────────────────────
// Field Extractor tests
// ─────────────────────────────────────────────────────────────

func extractorConfig() *pipeline.Config {
	return &pipeline.Config{
		Fields: map[string][]pipeline.FieldSource{
			"name": {
				{Column: "full_name", Extractor: "text"},
				{Column: "name", Extractor: "text"},
			},
			"amount": {{Column: "amount", Extractor: "number"}},
			"signup": {{Column: "signup_date", Extractor: "date"}},
			"active": {{Column: "active", Extractor: "bool"}},
		},
		Required: []string{"name"},
		Identity: []string{"name"},
	}
}

func TestExtract_FirstSourceWins(t *testing.T) {
	e := pipeline.NewExtractor(extractorConfig())

	fs := e.Extract(pipeline.RawRow{Num: 1, Values: map[string]any{
		"full_name": "john doe",
		"name":      "ignored",
	}})

	c, ok := fs.Fields["name"]
	if !ok {
		t.Fatal("expected a name candidate")
	}
	if c.Value != "john doe" {
		t.Errorf("expected first source to win, got %v", c.Value)
	}
	if c.Column != "full_name" {
		t.Errorf("expected provenance column full_name, got %q", c.Column)
	}
}

func TestExtract_FallsBackToLaterSource(t *testing.T) {
	e := pipeline.NewExtractor(extractorConfig())

	// full_name is nil, so the second source supplies the value.
	fs := e.Extract(pipeline.RawRow{Num: 1, Values: map[string]any{
		"full_name": nil,
		"name":      "jane",
	}})

	if c := fs.Fields["name"]; c.Value != "jane" || c.Column != "name" {
		t.Errorf("expected fallback to name column, got %+v", c)
	}
}

func TestExtract_AbsentStaysAbsent(t *testing.T) {
	e := pipeline.NewExtractor(extractorConfig())

	fs := e.Extract(pipeline.RawRow{Num: 1, Values: map[string]any{
		"amount": "not a number",
	}})

	if _, ok := fs.Fields["amount"]; ok {
		t.Error("uncoercible number should not produce a candidate")
	}
	if _, ok := fs.Fields["name"]; ok {
		t.Error("missing column should not produce a candidate")
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := pipeline.NewExtractor(extractorConfig())
	row := pipeline.RawRow{Num: 7, Values: map[string]any{
		"full_name":   "ann",
		"amount":      42.5,
		"signup_date": "01/15/2024",
		"active":      "yes",
	}}

	a := e.Extract(row)
	b := e.Extract(row)
	if len(a.Fields) != len(b.Fields) {
		t.Fatalf("repeat extraction differed: %d vs %d fields", len(a.Fields), len(b.Fields))
	}
	for k, v := range a.Fields {
		if b.Fields[k] != v {
			t.Errorf("field %q differed across runs: %+v vs %+v", k, v, b.Fields[k])
		}
	}
}

func TestExtract_NumberCoercion(t *testing.T) {
	e := pipeline.NewExtractor(extractorConfig())

	fs := e.Extract(pipeline.RawRow{Num: 1, Values: map[string]any{"amount": " 19.99 "}})
	if c := fs.Fields["amount"]; c.Value != 19.99 {
		t.Errorf("expected 19.99, got %v", c.Value)
	}
}

func TestExtract_DateKeepsOriginalShape(t *testing.T) {
	e := pipeline.NewExtractor(extractorConfig())

	cases := []struct {
		in   string
		want string // candidate keeps the trimmed input shape
	}{
		{"2024-03-01", "2024-03-01"},
		{"03/01/2024", "03/01/2024"},
		{"  March 1, 2024 ", "March 1, 2024"},
	}
	for _, tc := range cases {
		fs := e.Extract(pipeline.RawRow{Num: 1, Values: map[string]any{"signup_date": tc.in}})
		c, ok := fs.Fields["signup"]
		if !ok {
			t.Errorf("date %q: expected a candidate", tc.in)
			continue
		}
		if c.Value != tc.want {
			t.Errorf("date %q: got %v, want %v", tc.in, c.Value, tc.want)
		}
	}

	fs := e.Extract(pipeline.RawRow{Num: 1, Values: map[string]any{"signup_date": "not a date"}})
	if _, ok := fs.Fields["signup"]; ok {
		t.Error("unparseable date should not produce a candidate")
	}
}

func TestExtract_BoolForms(t *testing.T) {
	e := pipeline.NewExtractor(extractorConfig())

	for in, want := range map[any]bool{
		"yes": true, "No": false, "1": true, "0": false, true: true,
	} {
		fs := e.Extract(pipeline.RawRow{Num: 1, Values: map[string]any{"active": in}})
		c, ok := fs.Fields["active"]
		if !ok {
			t.Errorf("bool %v: expected a candidate", in)
			continue
		}
		if c.Value != want {
			t.Errorf("bool %v: got %v, want %v", in, c.Value, want)
		}
	}
}

func TestExtract_BlankTextIsAbsent(t *testing.T) {
	e := pipeline.NewExtractor(extractorConfig())

	fs := e.Extract(pipeline.RawRow{Num: 1, Values: map[string]any{"full_name": "   "}})
	if _, ok := fs.Fields["name"]; ok {
		t.Error("whitespace-only text should not produce a candidate")
	}
}
