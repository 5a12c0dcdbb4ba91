package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Kind derivation ---

func TestStep_Kind_Search(t *testing.T) {
	s := &Step{ID: "s1", SearchName: "pubmed.query"}
	assert.Equal(t, StepKindSearch, s.Kind())
}

func TestStep_Kind_Transform(t *testing.T) {
	s := &Step{ID: "t1", PrimaryInput: "s1"}
	assert.Equal(t, StepKindTransform, s.Kind())

	// A transform referencing only the secondary slot still classifies as transform.
	s2 := &Step{ID: "t2", SecondaryInput: "s1"}
	assert.Equal(t, StepKindTransform, s2.Kind())
	assert.Equal(t, "s1", s2.Input())
}

func TestStep_Kind_Combine(t *testing.T) {
	s := &Step{ID: "c1", Operator: OperatorUnion, PrimaryInput: "a", SecondaryInput: "b"}
	assert.Equal(t, StepKindCombine, s.Kind())
}

// --- Insertion order ---

func TestStrategy_PutStep_PreservesOrder(t *testing.T) {
	st := NewStrategy("g1")
	st.PutStep(&Step{ID: "a"})
	st.PutStep(&Step{ID: "b"})
	st.PutStep(&Step{ID: "c"})

	// Replacing an existing step keeps its position.
	st.PutStep(&Step{ID: "b", DisplayName: "renamed"})

	require.Equal(t, []string{"a", "b", "c"}, st.Order)
	assert.Equal(t, "renamed", st.Step("b").DisplayName)
}

func TestStrategy_RemoveStep(t *testing.T) {
	st := NewStrategy("g1")
	st.PutStep(&Step{ID: "a"})
	st.PutStep(&Step{ID: "b"})
	st.RemoveStep("a")

	assert.Nil(t, st.Step("a"))
	assert.Equal(t, []string{"b"}, st.Order)

	// Removing a missing id is a no-op.
	st.RemoveStep("ghost")
	assert.Equal(t, []string{"b"}, st.Order)
}

// --- Clone isolation ---

func TestStrategy_Clone_IsDeep(t *testing.T) {
	st := NewStrategy("g1")
	n := int64(42)
	st.PutStep(&Step{
		ID:          "a",
		Parameters:  map[string]any{"terms": []any{"x", "y"}},
		ResultCount: &n,
	})

	snap := st.Clone()
	st.Step("a").Parameters["terms"] = []any{"mutated"}
	*st.Step("a").ResultCount = 99
	st.PutStep(&Step{ID: "b"})

	require.Len(t, snap.Steps, 1)
	assert.Equal(t, []any{"x", "y"}, snap.Step("a").Parameters["terms"])
	assert.Equal(t, int64(42), *snap.Step("a").ResultCount)
}

// --- Plan traversal ---

func TestPlanNode_StepIDs_RootFirst(t *testing.T) {
	plan := &PlanNode{
		StepID:   "root",
		Operator: OperatorUnion,
		Primary:  &PlanNode{StepID: "left"},
		Secondary: &PlanNode{
			StepID:  "right",
			Primary: &PlanNode{StepID: "leaf"},
		},
	}
	assert.Equal(t, []string{"root", "left", "right", "leaf"}, plan.StepIDs())
}
