package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/stratagem/internal/strategy"
	"github.com/rendis/stratagem/pkg/schema"
)

// validateSteps checks per-step invariants: reference integrity, operator
// and kind consistency, and search naming.
func validateSteps(st *schema.Strategy) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for _, step := range st.OrderedSteps() {
		path := fmt.Sprintf("steps[%s]", step.ID)

		if step.ID == "" {
			result.AddError("steps", schema.ErrCodeValidation, "step with empty id")
			continue
		}

		for _, in := range []string{step.PrimaryInput, step.SecondaryInput} {
			if in == "" {
				continue
			}
			if in == step.ID {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("step %q references itself", step.ID))
				continue
			}
			if st.Step(in) == nil {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("step %q references unknown input %q", step.ID, in))
			}
		}

		switch step.Kind() {
		case schema.StepKindSearch:
			if step.SearchName == "" {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("search step %q has no search name", step.ID))
			}
			if step.Operator != "" {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("operator %q on search step %q is ignored", step.Operator, step.ID))
			}
		case schema.StepKindTransform:
			if step.Operator != "" {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("operator %q on transform step %q is ignored", step.Operator, step.ID))
			}
		case schema.StepKindCombine:
			switch step.Operator {
			case schema.OperatorUnion, schema.OperatorIntersect, schema.OperatorNot:
			case "":
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("combine step %q has no operator", step.ID))
			default:
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("combine step %q has unknown operator %q", step.ID, step.Operator))
			}
		}
	}

	return result
}

// validateGraph performs whole-graph analysis: cycle detection (Kahn's
// algorithm), single-sink root, reachability from the root, and record-type
// compatibility on combines.
func validateGraph(st *schema.Strategy) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	// edges[id] = inputs of step id, reverse[in] = consumers of step in.
	edges := make(map[string][]string, len(st.Steps))
	reverse := make(map[string][]string, len(st.Steps))
	for _, step := range st.OrderedSteps() {
		for _, in := range []string{step.PrimaryInput, step.SecondaryInput} {
			if in == "" || st.Step(in) == nil {
				continue // dangling refs already caught by validateSteps
			}
			edges[step.ID] = append(edges[step.ID], in)
			reverse[in] = append(reverse[in], step.ID)
		}
	}

	// Kahn's algorithm for cycle detection.
	inDegree := make(map[string]int, len(st.Steps))
	for id := range st.Steps {
		inDegree[id] = len(edges[id])
	}

	queue := make([]string, 0, len(st.Steps))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, consumer := range reverse[node] {
			inDegree[consumer]--
			if inDegree[consumer] == 0 {
				queue = append(queue, consumer)
			}
		}
	}

	if visited != len(st.Steps) {
		result.AddError("steps", schema.ErrCodeCycleDetected, "strategy contains an input cycle")
		return result // root and reachability analysis are meaningless
	}

	if len(st.Steps) == 0 {
		return result
	}

	root, err := strategy.FindRoot(st)
	if err != nil {
		if serr, ok := err.(*schema.StratagemError); ok {
			result.AddError("steps", serr.Code, serr.Message)
		} else {
			result.AddError("steps", schema.ErrCodeValidation, err.Error())
		}
		return result
	}

	// Reachability: walk input edges down from the root.
	reachable := map[string]bool{root.ID: true}
	walk := []string{root.ID}
	for len(walk) > 0 {
		node := walk[0]
		walk = walk[1:]
		for _, in := range edges[node] {
			if !reachable[in] {
				reachable[in] = true
				walk = append(walk, in)
			}
		}
	}
	for _, step := range st.OrderedSteps() {
		if !reachable[step.ID] {
			result.AddError(fmt.Sprintf("steps[%s]", step.ID), schema.ErrCodeDisconnected,
				fmt.Sprintf("step %q is not reachable from the final step", step.ID))
		}
	}

	for _, m := range strategy.DetectTypeMismatch(st) {
		result.AddError(fmt.Sprintf("steps[%s]", m.StepID), schema.ErrCodeTypeMismatch,
			fmt.Sprintf("combine step %q joins record types %q and %q",
				m.StepID, m.PrimaryType, m.SecondaryType))
	}

	return result
}
