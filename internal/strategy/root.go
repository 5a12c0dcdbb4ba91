package strategy

import (
	"strings"

	"github.com/rendis/stratagem/pkg/schema"
)

// FindRoot returns the unique sink step: the step no other step references
// as an input. A strategy with zero candidates or more than one has no
// canonical plan; the error reports every offending candidate rather than
// guessing.
func FindRoot(st *schema.Strategy) (*schema.Step, error) {
	if st == nil || len(st.Steps) == 0 {
		return nil, schema.NewError(schema.ErrCodeNoRoot, "strategy has no steps")
	}

	consumed := make(map[string]bool, len(st.Steps))
	for _, s := range st.Steps {
		if s.PrimaryInput != "" {
			consumed[s.PrimaryInput] = true
		}
		if s.SecondaryInput != "" {
			consumed[s.SecondaryInput] = true
		}
	}

	var candidates []string
	for _, id := range st.Order {
		if _, ok := st.Steps[id]; ok && !consumed[id] {
			candidates = append(candidates, id)
		}
	}

	switch len(candidates) {
	case 1:
		return st.Steps[candidates[0]], nil
	case 0:
		// Every step is consumed by another: the reference structure is cyclic.
		return nil, schema.NewError(schema.ErrCodeNoRoot,
			"no root step: every step is referenced as an input")
	default:
		return nil, schema.NewErrorf(schema.ErrCodeMultipleRoots,
			"multiple root candidates: %s", strings.Join(candidates, ", ")).
			WithDetails(map[string]any{"candidates": candidates})
	}
}
