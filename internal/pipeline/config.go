package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Configuration ──────────────────────────────────────────
// A Config is the declarative description of one cleaning pipeline:
// where each target field comes from, which rules normalize and
// validate it, which fields gate a row, and how duplicates are keyed.
// Configs are plain data (JSON/YAML friendly) resolved against the
// built-in extractor/transform/validator registries; unknown names
// fail Validate before any row is read.

// FieldSource names one place a target field may be extracted from.
// Sources for a field are tried in order; the first extractor that
// produces a value wins.
type FieldSource struct {
	Column    string `json:"column" yaml:"column"`
	Extractor string `json:"extractor" yaml:"extractor"` // "text" | "number" | "date" | "bool"
}

// TransformSpec is one declarative transform step.
type TransformSpec struct {
	Name string         `json:"name" yaml:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// ValidatorSpec is the terminal validation step for a field. Reason is
// the enumerable code a failing value rejects with.
type ValidatorSpec struct {
	Name   string         `json:"name" yaml:"name"`
	Args   map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	Reason Reason         `json:"reason" yaml:"reason"`
}

// RuleSet is the ordered rule chain for one target field: transforms
// run first, in declared order, then exactly one validator. Correction
// and validation are separate steps on purpose; a config cannot place
// the validator anywhere but last.
type RuleSet struct {
	Transforms []TransformSpec `json:"transforms,omitempty" yaml:"transforms,omitempty"`
	Validator  ValidatorSpec   `json:"validator" yaml:"validator"`
}

// CrossCheckSpec is a whole-row consistency rule evaluated after every
// single-field validation for the row has completed.
type CrossCheckSpec struct {
	Name   string         `json:"name" yaml:"name"`
	Fields []string       `json:"fields" yaml:"fields"`
	Args   map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	Reason Reason         `json:"reason" yaml:"reason"`
}

// Duration is a time.Duration that (un)marshals as a human-readable
// string ("250ms") in JSON and YAML config, while still accepting raw
// nanosecond numbers.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x))
		return nil
	case string:
		dur, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("parse duration: %w", err)
		}
		*d = Duration(dur)
		return nil
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration: %w", err)
		}
		*d = Duration(dur)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// RetryPolicy bounds destination commit retries on transient failures.
type RetryPolicy struct {
	MaxAttempts int      `json:"maxAttempts" yaml:"maxAttempts"`
	BackoffBase Duration `json:"backoffBase" yaml:"backoffBase"`
}

// Config is the full declarative pipeline configuration.
type Config struct {
	// Fields maps each target field to its ordered extraction sources.
	Fields map[string][]FieldSource `json:"fields" yaml:"fields"`

	// Rules maps a target field to its rule chain. A field without an
	// entry passes through extraction untouched and is valid whenever
	// it is present.
	Rules map[string]RuleSet `json:"rules,omitempty" yaml:"rules,omitempty"`

	// CrossChecks run per row after single-field validation.
	CrossChecks []CrossCheckSpec `json:"crossChecks,omitempty" yaml:"crossChecks,omitempty"`

	// Required lists fields that must be valid for a row to be written.
	Required []string `json:"required" yaml:"required"`

	// Identity lists the fields combined, in order, into the dedup key.
	Identity []string `json:"identity" yaml:"identity"`

	Retry RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`

	// Workers sets the parallelism of the pure stages (extract +
	// normalize). 0 or 1 means fully sequential. Assembly is always
	// serialized in input order regardless.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// Defaults applied by Validate.
const (
	defaultMaxAttempts = 3
	defaultBackoffBase = Duration(250 * time.Millisecond)
)

// Validate checks the config for internal contradictions and resolves
// every declarative name against the registries. It is the startup
// gate: a config that passes cannot fail on name resolution mid-run.
func (c *Config) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("config: no fields declared")
	}

	for field, srcs := range c.Fields {
		if len(srcs) == 0 {
			return fmt.Errorf("config: field %q has no sources", field)
		}
		for i, src := range srcs {
			if src.Column == "" {
				return fmt.Errorf("config: field %q source %d has no column", field, i)
			}
			if _, ok := extractors[src.Extractor]; !ok {
				return fmt.Errorf("config: field %q source %d: unknown extractor %q", field, i, src.Extractor)
			}
		}
	}

	for field, rs := range c.Rules {
		if _, ok := c.Fields[field]; !ok {
			return fmt.Errorf("config: rules declared for unextractable field %q", field)
		}
		for _, ts := range rs.Transforms {
			if _, err := buildTransform(ts); err != nil {
				return fmt.Errorf("config: field %q: %w", field, err)
			}
		}
		if rs.Validator.Name == "" {
			return fmt.Errorf("config: field %q has transforms but no validator", field)
		}
		if rs.Validator.Reason == "" {
			return fmt.Errorf("config: field %q validator %q has no reason code", field, rs.Validator.Name)
		}
		if _, err := buildValidator(rs.Validator); err != nil {
			return fmt.Errorf("config: field %q: %w", field, err)
		}
	}

	for i, cc := range c.CrossChecks {
		if cc.Reason == "" {
			return fmt.Errorf("config: cross check %d (%s) has no reason code", i, cc.Name)
		}
		for _, f := range cc.Fields {
			if _, ok := c.Fields[f]; !ok {
				return fmt.Errorf("config: cross check %q references unextractable field %q", cc.Name, f)
			}
		}
		if _, err := buildCrossCheck(cc); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	required := make(map[string]bool, len(c.Required))
	for _, f := range c.Required {
		if _, ok := c.Fields[f]; !ok {
			return fmt.Errorf("config: required field %q is not extractable", f)
		}
		required[f] = true
	}

	if len(c.Identity) == 0 {
		return fmt.Errorf("config: no identity fields declared")
	}
	for _, f := range c.Identity {
		if _, ok := c.Fields[f]; !ok {
			return fmt.Errorf("config: identity field %q is not extractable", f)
		}
		// Identity is only computable from valid fields, so every
		// identity field must also gate the row.
		if !required[f] {
			return fmt.Errorf("config: identity field %q must be listed in required", f)
		}
	}

	if c.Retry.MaxAttempts < 0 || c.Retry.BackoffBase < 0 {
		return fmt.Errorf("config: negative retry policy")
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: negative worker count")
	}
	return nil
}

// retry returns the policy with defaults filled in.
func (c *Config) retry() RetryPolicy {
	p := c.Retry
	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BackoffBase == 0 {
		p.BackoffBase = defaultBackoffBase
	}
	return p
}
