// Package canvas derives a renderable node/edge graph from a strategy and
// owns the visual state the strategy itself does not persist: node positions
// and their undo history. Reconciliation is non-destructive by default, a
// step keeps its position across rebuilds and only new steps receive layout
// coordinates.
package canvas

import (
	"github.com/rendis/stratagem/internal/strategy"
	"github.com/rendis/stratagem/pkg/schema"
)

// Slot identifies which input of the consumer an edge feeds.
type Slot string

const (
	SlotPrimary   Slot = "primary"
	SlotSecondary Slot = "secondary"
)

// Node is one renderable step.
type Node struct {
	StepID   string          `json:"step_id"`
	Kind     schema.StepKind `json:"kind"`
	Label    string          `json:"label"`
	Position Position        `json:"position"`
}

// Edge points from a producing step to the consumer slot it feeds.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Slot Slot   `json:"slot"`
}

// Graph is the full renderable view of a strategy.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Canvas reconciles strategies into graphs while preserving positions.
type Canvas struct {
	positions map[string]Position
	history   *History
}

// NewCanvas creates an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{
		positions: map[string]Position{},
		history:   NewHistory(defaultHistoryLimit),
	}
}

// Reconcile rebuilds the graph from the strategy. Positions survive by step
// id; steps seen for the first time get layout coordinates. With relayout
// set, every node is repositioned from scratch.
func (c *Canvas) Reconcile(st *schema.Strategy, relayout bool) Graph {
	if st == nil {
		return Graph{}
	}

	fresh := layoutPositions(st)
	if relayout {
		c.positions = fresh
	} else {
		for id, pos := range fresh {
			if _, ok := c.positions[id]; !ok {
				c.positions[id] = pos
			}
		}
	}
	// Positions of steps that left the strategy are dropped; a step id that
	// returns is a new step and gets a fresh slot.
	for id := range c.positions {
		if st.Step(id) == nil {
			delete(c.positions, id)
		}
	}

	g := Graph{
		Nodes: make([]Node, 0, len(st.Order)),
	}
	for _, step := range st.OrderedSteps() {
		g.Nodes = append(g.Nodes, Node{
			StepID:   step.ID,
			Kind:     step.Kind(),
			Label:    nodeLabel(step),
			Position: c.positions[step.ID],
		})
		if in := step.PrimaryInput; in != "" && st.Step(in) != nil {
			g.Edges = append(g.Edges, Edge{From: in, To: step.ID, Slot: SlotPrimary})
		}
		if in := step.SecondaryInput; in != "" && st.Step(in) != nil {
			g.Edges = append(g.Edges, Edge{From: in, To: step.ID, Slot: SlotSecondary})
		}
	}
	return g
}

func nodeLabel(s *schema.Step) string {
	switch {
	case s.DisplayName != "":
		return s.DisplayName
	case s.SearchName != "":
		return s.SearchName
	case s.Operator != "":
		return string(s.Operator)
	default:
		return s.ID
	}
}

// Position returns a node's current position.
func (c *Canvas) Position(stepID string) (Position, bool) {
	pos, ok := c.positions[stepID]
	return pos, ok
}

// MoveNode records the current layout in history and moves one node. Moves
// of unknown ids are ignored.
func (c *Canvas) MoveNode(stepID string, pos Position) {
	if _, ok := c.positions[stepID]; !ok {
		return
	}
	c.history.Push(c.positions)
	c.positions[stepID] = pos
}

// UndoMove restores the layout before the most recent move.
func (c *Canvas) UndoMove() bool {
	prev, ok := c.history.Undo(c.positions)
	if !ok {
		return false
	}
	c.positions = prev
	return true
}

// RedoMove reapplies the most recently undone move.
func (c *Canvas) RedoMove() bool {
	next, ok := c.history.Redo(c.positions)
	if !ok {
		return false
	}
	c.positions = next
	return true
}

// DeleteStep removes a step through the cascade policy and reconciles. The
// removed ids are returned alongside the refreshed graph.
func (c *Canvas) DeleteStep(st *schema.Strategy, stepID string) ([]string, Graph) {
	removed := strategy.Delete(st, stepID)
	return removed, c.Reconcile(st, false)
}
