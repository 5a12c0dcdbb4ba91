package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stratagem/pkg/schema"
)

func canvasFixture() *schema.Strategy {
	st := schema.NewStrategy("g1")
	st.PutStep(&schema.Step{ID: "s1", SearchName: "pubmed.query", RecordType: "article"})
	st.PutStep(&schema.Step{ID: "s2", SearchName: "embase.query", RecordType: "article"})
	st.PutStep(&schema.Step{ID: "c1", DisplayName: "merged", Operator: schema.OperatorUnion,
		PrimaryInput: "s1", SecondaryInput: "s2"})
	return st
}

// --- Reconcile ---

func TestReconcile_NodesAndEdges(t *testing.T) {
	c := NewCanvas()
	g := c.Reconcile(canvasFixture(), false)

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, "s1", g.Nodes[0].StepID)
	assert.Equal(t, schema.StepKindSearch, g.Nodes[0].Kind)
	assert.Equal(t, "merged", g.Nodes[2].Label)
	assert.ElementsMatch(t, []Edge{
		{From: "s1", To: "c1", Slot: SlotPrimary},
		{From: "s2", To: "c1", Slot: SlotSecondary},
	}, g.Edges)
}

func TestReconcile_LayersByDepth(t *testing.T) {
	c := NewCanvas()
	g := c.Reconcile(canvasFixture(), false)

	byID := map[string]Node{}
	for _, n := range g.Nodes {
		byID[n.StepID] = n
	}
	assert.Equal(t, byID["s1"].Position.Y, byID["s2"].Position.Y, "searches share a level")
	assert.NotEqual(t, byID["s1"].Position.X, byID["s2"].Position.X)
	assert.Greater(t, byID["c1"].Position.Y, byID["s1"].Position.Y, "combine sits below its inputs")
}

func TestReconcile_PreservesMovedPositions(t *testing.T) {
	c := NewCanvas()
	st := canvasFixture()
	c.Reconcile(st, false)
	c.MoveNode("s1", Position{X: 999, Y: 888})

	// A structural change elsewhere must not touch the moved node.
	st.PutStep(&schema.Step{ID: "t1", PrimaryInput: "c1"})
	g := c.Reconcile(st, false)

	for _, n := range g.Nodes {
		if n.StepID == "s1" {
			assert.Equal(t, Position{X: 999, Y: 888}, n.Position)
		}
		if n.StepID == "t1" {
			assert.NotZero(t, n.Position.Y, "new step gets a layout slot")
		}
	}
}

func TestReconcile_RelayoutOverridesMoves(t *testing.T) {
	c := NewCanvas()
	st := canvasFixture()
	c.Reconcile(st, false)
	c.MoveNode("s1", Position{X: 999, Y: 888})

	g := c.Reconcile(st, true)

	for _, n := range g.Nodes {
		if n.StepID == "s1" {
			assert.NotEqual(t, Position{X: 999, Y: 888}, n.Position)
		}
	}
}

func TestReconcile_DropsRemovedStepPositions(t *testing.T) {
	c := NewCanvas()
	st := canvasFixture()
	c.Reconcile(st, false)

	st.RemoveStep("c1")
	st.RemoveStep("s2")
	c.Reconcile(st, false)

	_, ok := c.Position("s2")
	assert.False(t, ok)
}

func TestReconcile_DanglingInputProducesNoEdge(t *testing.T) {
	c := NewCanvas()
	st := canvasFixture()
	st.Step("c1").SecondaryInput = "ghost"

	g := c.Reconcile(st, false)

	assert.ElementsMatch(t, []Edge{{From: "s1", To: "c1", Slot: SlotPrimary}}, g.Edges)
}

// --- Move history ---

func TestMoveHistory_UndoRedo(t *testing.T) {
	c := NewCanvas()
	st := canvasFixture()
	c.Reconcile(st, false)

	orig, _ := c.Position("s1")
	c.MoveNode("s1", Position{X: 10, Y: 20})
	c.MoveNode("s1", Position{X: 30, Y: 40})

	require.True(t, c.UndoMove())
	pos, _ := c.Position("s1")
	assert.Equal(t, Position{X: 10, Y: 20}, pos)

	require.True(t, c.UndoMove())
	pos, _ = c.Position("s1")
	assert.Equal(t, orig, pos)

	assert.False(t, c.UndoMove(), "history exhausted")

	require.True(t, c.RedoMove())
	pos, _ = c.Position("s1")
	assert.Equal(t, Position{X: 10, Y: 20}, pos)
}

func TestMoveHistory_NewMoveClearsRedo(t *testing.T) {
	c := NewCanvas()
	c.Reconcile(canvasFixture(), false)

	c.MoveNode("s1", Position{X: 10, Y: 20})
	require.True(t, c.UndoMove())
	c.MoveNode("s1", Position{X: 50, Y: 60})

	assert.False(t, c.RedoMove())
}

func TestMoveHistory_Bounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 10; i++ {
		h.Push(map[string]Position{"s1": {X: float64(i)}})
	}
	assert.Equal(t, 3, h.Depth())
}

func TestMoveNode_UnknownIDIgnored(t *testing.T) {
	c := NewCanvas()
	c.Reconcile(canvasFixture(), false)

	c.MoveNode("ghost", Position{X: 1, Y: 1})

	assert.False(t, c.UndoMove(), "ignored move must not pollute history")
}

// --- Deletion routing ---

func TestDeleteStep_CascadesAndReconciles(t *testing.T) {
	c := NewCanvas()
	st := canvasFixture()
	st.PutStep(&schema.Step{ID: "t1", PrimaryInput: "c1"})
	c.Reconcile(st, false)

	removed, g := c.DeleteStep(st, "c1")

	assert.ElementsMatch(t, []string{"c1", "t1"}, removed)
	require.Len(t, g.Nodes, 2)
	_, ok := c.Position("t1")
	assert.False(t, ok)
}
