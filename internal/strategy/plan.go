package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/rendis/stratagem/pkg/schema"
)

// SerializePlan walks from the root downward through input references and
// produces the canonical nested plan tree: root-first, each node carrying its
// own parameters and, for combine nodes, its two subtrees in
// primary/secondary order. Fails if the graph is rootless, cyclic, or
// disconnected.
func SerializePlan(st *schema.Strategy) (*schema.PlanNode, error) {
	root, err := FindRoot(st)
	if err != nil {
		return nil, err
	}

	reached := make(map[string]bool, len(st.Steps))
	node, err := buildNode(st, root.ID, reached, map[string]bool{})
	if err != nil {
		return nil, err
	}

	if len(reached) != len(st.Steps) {
		var unreachable []string
		for _, id := range st.Order {
			if !reached[id] {
				unreachable = append(unreachable, id)
			}
		}
		return nil, schema.NewError(schema.ErrCodeDisconnected,
			"strategy graph is disconnected").
			WithDetails(map[string]any{"unreachable": unreachable})
	}

	return node, nil
}

// buildNode recursively serializes one step. path guards against cycles on
// the current walk; reached accumulates coverage for the disconnect check.
func buildNode(st *schema.Strategy, id string, reached, path map[string]bool) (*schema.PlanNode, error) {
	if path[id] {
		return nil, schema.NewErrorf(schema.ErrCodeCycleDetected,
			"cyclic input reference through step %s", id).WithStep(id)
	}
	step := st.Step(id)
	if step == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"input reference to missing step %s", id).WithStep(id)
	}

	path[id] = true
	defer delete(path, id)
	reached[id] = true

	node := &schema.PlanNode{
		StepID:     step.ID,
		SearchName: step.SearchName,
		RecordType: step.RecordType,
		Operator:   step.Operator,
		Parameters: step.Parameters,
	}

	if step.PrimaryInput != "" {
		child, err := buildNode(st, step.PrimaryInput, reached, path)
		if err != nil {
			return nil, err
		}
		node.Primary = child
	}
	if step.SecondaryInput != "" {
		child, err := buildNode(st, step.SecondaryInput, reached, path)
		if err != nil {
			return nil, err
		}
		node.Secondary = child
	}

	return node, nil
}

// Fingerprint computes a content hash of the canonical plan. Two logically
// identical plans rebuilt after a no-op re-render share a fingerprint, so
// consumers using it for change detection never refetch redundantly.
func Fingerprint(plan *schema.PlanNode) string {
	if plan == nil {
		return ""
	}
	data, err := json.Marshal(canonicalize(plan))
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalize rewrites the plan into a shape with deterministic encoding.
// encoding/json already sorts map keys; parameter slices keep their order
// since order is meaningful for search terms.
func canonicalize(p *schema.PlanNode) map[string]any {
	if p == nil {
		return nil
	}
	out := map[string]any{"step_id": p.StepID}
	if p.SearchName != "" {
		out["search_name"] = p.SearchName
	}
	if p.RecordType != "" {
		out["record_type"] = p.RecordType
	}
	if p.Operator != "" {
		out["operator"] = string(p.Operator)
	}
	if len(p.Parameters) > 0 {
		keys := make([]string, 0, len(p.Parameters))
		for k := range p.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		params := make(map[string]any, len(keys))
		for _, k := range keys {
			params[k] = p.Parameters[k]
		}
		out["parameters"] = params
	}
	if p.Primary != nil {
		out["primary"] = canonicalize(p.Primary)
	}
	if p.Secondary != nil {
		out["secondary"] = canonicalize(p.Secondary)
	}
	return out
}
