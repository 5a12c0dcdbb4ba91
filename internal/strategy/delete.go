package strategy

import "github.com/rendis/stratagem/pkg/schema"

// Delete removes a step and cascades to a fixed point. References to removed
// steps are cleared, not cascade-deleted, except where the clearing leaves a
// required input dangling:
//
//   - a transform step's sole input is required; losing it removes the
//     transform itself, and the removal propagates
//   - a combine step survives losing either (or both) of its inputs; the
//     corresponding reference is cleared and the step stays
//   - search steps have no inputs and are never orphaned
//
// The cascade is an explicit fixed-point loop over the step set, not
// per-kind recursion: kind is a derived classification, re-read on each pass
// against the current (already partially cleared) state.
//
// Returns the ids of every removed step in insertion order.
func Delete(st *schema.Strategy, id string) []string {
	if st == nil || st.Step(id) == nil {
		return nil
	}

	removed := map[string]bool{id: true}

	for changed := true; changed; {
		changed = false
		for _, sid := range st.Order {
			step := st.Steps[sid]
			if step == nil || removed[sid] {
				continue
			}

			wasTransform := step.Kind() == schema.StepKindTransform

			cleared := false
			if step.PrimaryInput != "" && removed[step.PrimaryInput] {
				step.PrimaryInput = ""
				cleared = true
			}
			if step.SecondaryInput != "" && removed[step.SecondaryInput] {
				step.SecondaryInput = ""
				cleared = true
			}

			if cleared && wasTransform && step.PrimaryInput == "" && step.SecondaryInput == "" {
				removed[sid] = true
				changed = true
			}
		}
	}

	var out []string
	for _, sid := range append([]string(nil), st.Order...) {
		if removed[sid] {
			out = append(out, sid)
			st.RemoveStep(sid)
		}
	}
	return out
}
