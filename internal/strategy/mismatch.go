package strategy

import "github.com/rendis/stratagem/pkg/schema"

// Mismatch reports one combine step whose two inputs resolve to different
// record types.
type Mismatch struct {
	StepID        string `json:"step_id"`
	PrimaryType   string `json:"primary_type"`
	SecondaryType string `json:"secondary_type"`
}

// DetectTypeMismatch checks every combine step: its two inputs' effective
// record types must match. All mismatched pairs are collected, not just the
// first, so the UI can flag every offending group simultaneously.
func DetectTypeMismatch(st *schema.Strategy) []Mismatch {
	var out []Mismatch
	for _, id := range st.Order {
		step := st.Steps[id]
		if step == nil || step.Kind() != schema.StepKindCombine {
			continue
		}
		pt := EffectiveRecordType(st, step.PrimaryInput)
		sct := EffectiveRecordType(st, step.SecondaryInput)
		if pt != "" && sct != "" && pt != sct {
			out = append(out, Mismatch{StepID: id, PrimaryType: pt, SecondaryType: sct})
		}
	}
	return out
}

// EffectiveRecordType resolves the record type a step produces. Steps with
// no explicit record type inherit from their primary input chain (transforms
// and combines pass the type through). Returns "" when the type cannot be
// resolved, including on cyclic references.
func EffectiveRecordType(st *schema.Strategy, id string) string {
	seen := map[string]bool{}
	for id != "" && !seen[id] {
		seen[id] = true
		step := st.Step(id)
		if step == nil {
			return ""
		}
		if step.RecordType != "" {
			return step.RecordType
		}
		id = step.Input()
	}
	return ""
}
