// Package validation checks strategies for correctness before counts are
// fetched or a plan is shipped. The pipeline is staged: per-step checks run
// first, graph analysis runs only on a referentially sound graph, and
// filter-expression checks run last.
package validation

import (
	"github.com/rendis/stratagem/internal/transform"
	"github.com/rendis/stratagem/pkg/schema"
)

// StrategyValidator orchestrates the validation pipeline:
//  1. Per-step invariants (refs, operators, naming)
//  2. Graph analysis (cycles, root, reachability, record types)
//  3. Transform filter expressions
type StrategyValidator struct {
	payloads *PayloadValidator
	filters  *transform.Registry
}

// NewStrategyValidator creates a StrategyValidator.
// filters may be nil to skip expression checks.
func NewStrategyValidator(filters *transform.Registry) (*StrategyValidator, error) {
	pv, err := NewPayloadValidator()
	if err != nil {
		return nil, err
	}
	return &StrategyValidator{
		payloads: pv,
		filters:  filters,
	}, nil
}

// Validate runs the full pipeline and returns an aggregated result. Step
// errors short-circuit graph analysis: a graph with dangling references has
// no meaningful root or reachability answer.
func (sv *StrategyValidator) Validate(st *schema.Strategy) *schema.ValidationResult {
	if st == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "strategy is nil")
		return r
	}

	result := validateSteps(st)
	if !result.Valid() {
		return result
	}

	result.Merge(validateGraph(st))

	if sv.filters != nil {
		for _, step := range st.OrderedSteps() {
			if err := sv.filters.CheckStep(step); err != nil {
				if serr, ok := err.(*schema.StratagemError); ok {
					result.AddError("steps["+step.ID+"]", serr.Code, serr.Message)
				} else {
					result.AddError("steps["+step.ID+"]", schema.ErrCodeValidation, err.Error())
				}
			}
		}
	}

	return result
}

// ValidateStrategy returns an error when validation fails.
func (sv *StrategyValidator) ValidateStrategy(st *schema.Strategy) error {
	return sv.Validate(st).ToError()
}

// ValidateGraphPayload delegates to the underlying PayloadValidator.
func (sv *StrategyValidator) ValidateGraphPayload(raw []byte) error {
	return sv.payloads.ValidateGraphPayload(raw)
}

// ValidateParameters delegates to the underlying PayloadValidator.
func (sv *StrategyValidator) ValidateParameters(params map[string]any, paramSchema []byte) error {
	return sv.payloads.ValidateParameters(params, paramSchema)
}
