package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stratagem/pkg/schema"
)

func TestDelete_SearchClearsCombineReference(t *testing.T) {
	st := unionFixture()

	removed := Delete(st, "s1")

	assert.Equal(t, []string{"s1"}, removed)
	require.NotNil(t, st.Step("c1"), "combine survives losing one input")
	assert.Empty(t, st.Step("c1").PrimaryInput)
	assert.Equal(t, "s2", st.Step("c1").SecondaryInput)
}

func TestDelete_TransformChainCascades(t *testing.T) {
	st := schema.NewStrategy("g1")
	st.PutStep(&schema.Step{ID: "s1", SearchName: "base"})
	st.PutStep(&schema.Step{ID: "t1", SearchName: "filter.a", PrimaryInput: "s1"})
	st.PutStep(&schema.Step{ID: "t2", SearchName: "filter.b", PrimaryInput: "t1"})

	removed := Delete(st, "s1")

	assert.Equal(t, []string{"s1", "t1", "t2"}, removed)
	assert.Empty(t, st.Steps)
}

func TestDelete_CascadeStopsAtCombine(t *testing.T) {
	// s1 → t1 → c1(t1, s2): deleting s1 removes t1 but c1 only loses a reference.
	st := schema.NewStrategy("g1")
	st.PutStep(&schema.Step{ID: "s1", SearchName: "base"})
	st.PutStep(&schema.Step{ID: "s2", SearchName: "other"})
	st.PutStep(&schema.Step{ID: "t1", SearchName: "filter", PrimaryInput: "s1"})
	st.PutStep(&schema.Step{ID: "c1", Operator: schema.OperatorNot, PrimaryInput: "t1", SecondaryInput: "s2"})

	removed := Delete(st, "s1")

	assert.Equal(t, []string{"s1", "t1"}, removed)
	require.NotNil(t, st.Step("c1"))
	assert.Empty(t, st.Step("c1").PrimaryInput)
}

func TestDelete_DegenerateCombineBecomesTransform(t *testing.T) {
	// After c1 loses one input it classifies as a transform; deleting the
	// remaining input then removes it like any transform.
	st := unionFixture()
	Delete(st, "s1")
	require.Equal(t, schema.StepKindTransform, st.Step("c1").Kind())

	removed := Delete(st, "s2")

	assert.Equal(t, []string{"s2", "c1"}, removed)
	assert.Empty(t, st.Steps)
}

func TestDelete_MissingStepIsNoop(t *testing.T) {
	st := unionFixture()
	assert.Nil(t, Delete(st, "ghost"))
	assert.Len(t, st.Steps, 3)
}
