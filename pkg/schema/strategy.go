package schema

import "time"

// Operator is the boolean combine operator for two-input steps.
type Operator string

const (
	OperatorUnion     Operator = "UNION"
	OperatorIntersect Operator = "INTERSECT"
	OperatorNot       Operator = "NOT"
)

// StepKind classifies a step by the number of upstream inputs it references.
// Kind is derived, never stored.
type StepKind string

const (
	StepKindSearch    StepKind = "search"    // no inputs
	StepKindTransform StepKind = "transform" // one input
	StepKindCombine   StepKind = "combine"   // two inputs
)

// Step is one node in a strategy graph: a search, a boolean combine of two
// inputs, or a transform of one input.
type Step struct {
	ID             string         `json:"id"`
	DisplayName    string         `json:"display_name,omitempty"`
	SearchName     string         `json:"search_name,omitempty"` // empty for pure combine steps
	RecordType     string         `json:"record_type,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Operator       Operator       `json:"operator,omitempty"` // combine steps only
	PrimaryInput   string         `json:"primary_input,omitempty"`
	SecondaryInput string         `json:"secondary_input,omitempty"`

	// ResultCount is an externally-seeded count (e.g. an imported estimate).
	// nil means "not yet computed". A seeded value is preserved until a real
	// computation confirms or supersedes it.
	ResultCount *int64 `json:"result_count,omitempty"`
}

// Kind derives the step classification from its input references.
func (s *Step) Kind() StepKind {
	switch {
	case s.PrimaryInput != "" && s.SecondaryInput != "":
		return StepKindCombine
	case s.PrimaryInput != "" || s.SecondaryInput != "":
		return StepKindTransform
	default:
		return StepKindSearch
	}
}

// Input returns the single input of a transform step regardless of which
// slot it occupies.
func (s *Step) Input() string {
	if s.PrimaryInput != "" {
		return s.PrimaryInput
	}
	return s.SecondaryInput
}

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	out := *s
	if s.Parameters != nil {
		out.Parameters = cloneValueMap(s.Parameters)
	}
	if s.ResultCount != nil {
		v := *s.ResultCount
		out.ResultCount = &v
	}
	return &out
}

// Strategy is the full named graph of steps for one research question,
// converging to a single canonical output (root) step.
type Strategy struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	SiteID      string           `json:"site_id,omitempty"`
	RecordType  string           `json:"record_type,omitempty"`
	Steps       map[string]*Step `json:"steps"`
	Order       []string         `json:"order"` // step IDs in insertion order
	CreatedAt   time.Time        `json:"created_at,omitzero"`
	UpdatedAt   time.Time        `json:"updated_at,omitzero"`
}

// NewStrategy creates an empty strategy with the given id.
func NewStrategy(id string) *Strategy {
	return &Strategy{
		ID:    id,
		Steps: make(map[string]*Step),
	}
}

// Step returns the step with the given id, or nil.
func (st *Strategy) Step(id string) *Step {
	if st == nil || st.Steps == nil {
		return nil
	}
	return st.Steps[id]
}

// PutStep inserts or replaces a step, preserving insertion order for
// existing ids and appending new ids at the end.
func (st *Strategy) PutStep(step *Step) {
	if st.Steps == nil {
		st.Steps = make(map[string]*Step)
	}
	if _, exists := st.Steps[step.ID]; !exists {
		st.Order = append(st.Order, step.ID)
	}
	st.Steps[step.ID] = step
}

// RemoveStep drops a step from the map and the order slice.
// Callers wanting cascade semantics go through the strategy package.
func (st *Strategy) RemoveStep(id string) {
	if _, ok := st.Steps[id]; !ok {
		return
	}
	delete(st.Steps, id)
	for i, sid := range st.Order {
		if sid == id {
			st.Order = append(st.Order[:i], st.Order[i+1:]...)
			break
		}
	}
}

// OrderedSteps returns the steps in insertion order.
func (st *Strategy) OrderedSteps() []*Step {
	out := make([]*Step, 0, len(st.Order))
	for _, id := range st.Order {
		if s, ok := st.Steps[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a deep copy of the strategy. Used for undo snapshots, which
// must be immune to later mutations of the live graph.
func (st *Strategy) Clone() *Strategy {
	if st == nil {
		return nil
	}
	out := *st
	out.Steps = make(map[string]*Step, len(st.Steps))
	for id, s := range st.Steps {
		out.Steps[id] = s.Clone()
	}
	out.Order = append([]string(nil), st.Order...)
	return &out
}

// PlanNode is one node of the canonical plan: the serialized, root-first
// nested representation of a strategy used for persistence and count
// computation.
type PlanNode struct {
	StepID     string         `json:"step_id"`
	SearchName string         `json:"search_name,omitempty"`
	RecordType string         `json:"record_type,omitempty"`
	Operator   Operator       `json:"operator,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Primary    *PlanNode      `json:"primary,omitempty"`
	Secondary  *PlanNode      `json:"secondary,omitempty"`
}

// StepIDs returns every step id in the plan, root first.
func (p *PlanNode) StepIDs() []string {
	if p == nil {
		return nil
	}
	ids := []string{p.StepID}
	ids = append(ids, p.Primary.StepIDs()...)
	ids = append(ids, p.Secondary.StepIDs()...)
	return ids
}

func cloneValueMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = cloneValueMap(val)
		case []any:
			cp := make([]any, len(val))
			copy(cp, val)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
