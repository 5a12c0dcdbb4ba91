package canvas

import (
	"github.com/rendis/stratagem/pkg/schema"
)

// Position is a node's location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

const (
	columnGap = 220.0
	rowGap    = 120.0
)

// computeLevels groups steps by topological depth. A search sits at depth 0;
// every other step sits one level below its deepest input. Order within a
// level follows strategy insertion order, which keeps layout deterministic.
func computeLevels(st *schema.Strategy) [][]string {
	depth := make(map[string]int, len(st.Steps))

	var resolve func(id string, path map[string]bool) int
	resolve = func(id string, path map[string]bool) int {
		if d, ok := depth[id]; ok {
			return d
		}
		if path[id] {
			// Cycle guard. Cycles are rejected upstream; clamp here so a
			// transiently broken graph still renders.
			return 0
		}
		path[id] = true
		defer delete(path, id)

		step := st.Step(id)
		if step == nil {
			return 0
		}
		maxDep := -1
		for _, in := range []string{step.PrimaryInput, step.SecondaryInput} {
			if in == "" || st.Step(in) == nil {
				continue
			}
			if d := resolve(in, path); d > maxDep {
				maxDep = d
			}
		}
		depth[id] = maxDep + 1
		return depth[id]
	}

	maxDepth := -1
	for _, id := range st.Order {
		if d := resolve(id, map[string]bool{}); d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, id := range st.Order {
		d := depth[id]
		levels[d] = append(levels[d], id)
	}
	return levels
}

// layoutPositions assigns a grid position to every step: column within its
// level, row by depth.
func layoutPositions(st *schema.Strategy) map[string]Position {
	out := make(map[string]Position, len(st.Steps))
	for d, level := range computeLevels(st) {
		for col, id := range level {
			out[id] = Position{X: float64(col) * columnGap, Y: float64(d) * rowGap}
		}
	}
	return out
}
