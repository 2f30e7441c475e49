package pipeline_test

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"scrub/internal/pipeline"
)

// ─────────────────────────────────────────────────────────────
// Config validation tests — the startup gate.
// ─────────────────────────────────────────────────────────────

func validConfig() *pipeline.Config {
	return &pipeline.Config{
		Fields: map[string][]pipeline.FieldSource{
			"name":  {{Column: "name", Extractor: "text"}},
			"email": {{Column: "email", Extractor: "text"}},
		},
		Rules: map[string]pipeline.RuleSet{
			"name": {
				Transforms: []pipeline.TransformSpec{{Name: "trim"}},
				Validator:  pipeline.ValidatorSpec{Name: "not_empty", Reason: "EMPTY_NAME"},
			},
		},
		Required: []string{"name", "email"},
		Identity: []string{"name", "email"},
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestConfigValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*pipeline.Config)
	}{
		{"no fields", func(c *pipeline.Config) { c.Fields = nil }},
		{"unknown extractor", func(c *pipeline.Config) {
			c.Fields["name"] = []pipeline.FieldSource{{Column: "name", Extractor: "telepathy"}}
		}},
		{"source without column", func(c *pipeline.Config) {
			c.Fields["name"] = []pipeline.FieldSource{{Extractor: "text"}}
		}},
		{"rules for unextractable field", func(c *pipeline.Config) {
			c.Rules["phantom"] = pipeline.RuleSet{Validator: pipeline.ValidatorSpec{Name: "not_empty", Reason: "X"}}
		}},
		{"validator without reason", func(c *pipeline.Config) {
			c.Rules["name"] = pipeline.RuleSet{Validator: pipeline.ValidatorSpec{Name: "not_empty"}}
		}},
		{"unknown validator", func(c *pipeline.Config) {
			c.Rules["name"] = pipeline.RuleSet{Validator: pipeline.ValidatorSpec{Name: "vibes", Reason: "X"}}
		}},
		{"required not extractable", func(c *pipeline.Config) { c.Required = append(c.Required, "phantom") }},
		{"no identity", func(c *pipeline.Config) { c.Identity = nil }},
		{"identity not required", func(c *pipeline.Config) {
			c.Required = []string{"name"}
			c.Identity = []string{"name", "email"}
		}},
		{"cross check without reason", func(c *pipeline.Config) {
			c.CrossChecks = []pipeline.CrossCheckSpec{{Name: "fields_differ", Fields: []string{"name", "email"}}}
		}},
		{"cross check over unknown field", func(c *pipeline.Config) {
			c.CrossChecks = []pipeline.CrossCheckSpec{{Name: "fields_differ", Fields: []string{"name", "phantom"}, Reason: "X"}}
		}},
		{"negative workers", func(c *pipeline.Config) { c.Workers = -1 }},
		{"negative retry", func(c *pipeline.Config) { c.Retry.MaxAttempts = -1 }},
	}

	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected Validate to fail", tc.name)
		}
	}
}

func TestDuration_JSONRoundTrip(t *testing.T) {
	var p pipeline.RetryPolicy
	if err := json.Unmarshal([]byte(`{"maxAttempts":5,"backoffBase":"250ms"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if time.Duration(p.BackoffBase) != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", time.Duration(p.BackoffBase))
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back pipeline.RetryPolicy
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if back.BackoffBase != p.BackoffBase {
		t.Errorf("duration did not round-trip: %v vs %v", back.BackoffBase, p.BackoffBase)
	}
}

func TestDuration_YAML(t *testing.T) {
	var p pipeline.RetryPolicy
	if err := yaml.Unmarshal([]byte("maxAttempts: 4\nbackoffBase: 1s\n"), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if time.Duration(p.BackoffBase) != time.Second {
		t.Errorf("expected 1s, got %v", time.Duration(p.BackoffBase))
	}
}

func TestConfig_YAMLDecode(t *testing.T) {
	src := `
fields:
  name:
    - column: full_name
      extractor: text
rules:
  name:
    transforms:
      - name: trim
      - name: title_case
    validator:
      name: not_empty
      reason: EMPTY_NAME
required: [name]
identity: [name]
workers: 4
`
	var cfg pipeline.Config
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Workers)
	}
	if len(cfg.Rules["name"].Transforms) != 2 {
		t.Errorf("expected 2 transforms, got %d", len(cfg.Rules["name"].Transforms))
	}
}
