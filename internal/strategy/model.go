// Package strategy implements the canonical strategy/step graph operations:
// root discovery, canonical plan serialization, combine type-mismatch
// detection, and cascading deletion. The strategy itself is the single
// source of truth; every consumer (canvas, dirty tracker, count service)
// re-derives its view from it.
package strategy

import (
	"github.com/google/uuid"

	"github.com/rendis/stratagem/pkg/schema"
)

// NewStepID returns a fresh opaque step id.
func NewStepID() string {
	return uuid.New().String()
}

// AddSearch appends a new search step and returns it.
func AddSearch(st *schema.Strategy, searchName, recordType string, params map[string]any) *schema.Step {
	step := &schema.Step{
		ID:         NewStepID(),
		SearchName: searchName,
		RecordType: recordType,
		Parameters: params,
	}
	st.PutStep(step)
	return step
}

// AddCombine appends a new combine step referencing two existing steps.
// Returns nil if either input is missing from the strategy.
func AddCombine(st *schema.Strategy, op schema.Operator, primaryID, secondaryID string) *schema.Step {
	if st.Step(primaryID) == nil || st.Step(secondaryID) == nil {
		return nil
	}
	step := &schema.Step{
		ID:             NewStepID(),
		Operator:       op,
		PrimaryInput:   primaryID,
		SecondaryInput: secondaryID,
	}
	st.PutStep(step)
	return step
}

// AddTransform appends a new transform step over an existing input.
// Returns nil if the input is missing from the strategy.
func AddTransform(st *schema.Strategy, inputID, searchName string, params map[string]any) *schema.Step {
	if st.Step(inputID) == nil {
		return nil
	}
	step := &schema.Step{
		ID:           NewStepID(),
		SearchName:   searchName,
		Parameters:   params,
		PrimaryInput: inputID,
	}
	st.PutStep(step)
	return step
}

// Consumers returns, for each step id, the ids of steps referencing it as an
// input. Steps referenced by nobody are the sink candidates.
func Consumers(st *schema.Strategy) map[string][]string {
	out := make(map[string][]string, len(st.Steps))
	for _, id := range st.Order {
		s := st.Steps[id]
		if s == nil {
			continue
		}
		if s.PrimaryInput != "" {
			out[s.PrimaryInput] = append(out[s.PrimaryInput], id)
		}
		if s.SecondaryInput != "" && s.SecondaryInput != s.PrimaryInput {
			out[s.SecondaryInput] = append(out[s.SecondaryInput], id)
		}
	}
	return out
}
