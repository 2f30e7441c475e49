package pipeline

// ── Normalization/Validation Engine ────────────────────────
// Runs each candidate field through its compiled rule chain: ordered
// transforms first, then the single terminal validator. Absent fields
// skip the chain entirely and stay absent — absence and invalidity are
// different terminal states with different downstream meaning. Once
// every field has settled, the cross-field checks run over the row.
//
// The engine holds no per-row state; it is safe to call from multiple
// workers.

type compiledRules struct {
	transforms []Transform
	validate   Validator
	reason     Reason
}

type compiledCross struct {
	check  CrossCheck
	reason Reason
}

// Normalizer applies a compiled rule table to candidate field sets.
type Normalizer struct {
	fields map[string][]FieldSource
	rules  map[string]compiledRules
	cross  []compiledCross
}

// NewNormalizer compiles the rule table of a config that already
// passed Validate. Compile errors here would mean Validate was
// skipped, so they surface as errors rather than panics.
func NewNormalizer(cfg *Config) (*Normalizer, error) {
	n := &Normalizer{
		fields: cfg.Fields,
		rules:  make(map[string]compiledRules, len(cfg.Rules)),
	}
	for field, rs := range cfg.Rules {
		cr := compiledRules{reason: rs.Validator.Reason}
		for _, ts := range rs.Transforms {
			t, err := buildTransform(ts)
			if err != nil {
				return nil, err
			}
			cr.transforms = append(cr.transforms, t)
		}
		v, err := buildValidator(rs.Validator)
		if err != nil {
			return nil, err
		}
		cr.validate = v
		n.rules[field] = cr
	}
	for _, cc := range cfg.CrossChecks {
		check, err := buildCrossCheck(cc)
		if err != nil {
			return nil, err
		}
		n.cross = append(n.cross, compiledCross{check: check, reason: cc.Reason})
	}
	return n, nil
}

// Normalize turns one candidate field set into a candidate record.
// Every configured target field gets an entry, absent ones included,
// so the audit trail always shows the full field picture of a row.
func (n *Normalizer) Normalize(fs FieldSet) CandidateRecord {
	rec := CandidateRecord{
		RowNum: fs.RowNum,
		Fields: make(map[string]NormalizedField, len(n.fields)),
	}

	for field := range n.fields {
		cand, present := fs.Fields[field]
		if !present {
			rec.Fields[field] = NormalizedField{Name: field, State: FieldAbsent}
			continue
		}
		rec.Fields[field] = n.normalizeField(field, cand)
	}

	// Cross-field consistency, evaluated only after every field has a
	// terminal state. First failing check wins; one violation already
	// rejects the row.
	for _, cc := range n.cross {
		if !cc.check(rec.Fields) {
			rec.Violation = cc.reason
			break
		}
	}
	return rec
}

func (n *Normalizer) normalizeField(field string, cand Candidate) NormalizedField {
	nf := NormalizedField{
		Name:   field,
		Value:  cand.Value,
		Column: cand.Column,
		Raw:    cand.Raw,
	}

	cr, hasRules := n.rules[field]
	if !hasRules {
		// No rule chain: presence is validity.
		nf.State = FieldValid
		return nf
	}

	// Ordered corrections, each feeding the next.
	for _, t := range cr.transforms {
		nf.Value = t(nf.Value)
	}

	// Terminal validation.
	if cr.validate(nf.Value) {
		nf.State = FieldValid
	} else {
		nf.State = FieldInvalid
		nf.Reason = cr.reason
	}
	return nf
}
