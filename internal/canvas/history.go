package canvas

const defaultHistoryLimit = 50

// History is a bounded undo/redo stack of position layouts. Pushing a new
// state clears the redo side; exceeding the limit evicts the oldest entry.
type History struct {
	limit int
	undo  []map[string]Position
	redo  []map[string]Position
}

// NewHistory creates a history bounded to limit entries per side.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push records the layout as it was before a mutation.
func (h *History) Push(current map[string]Position) {
	h.undo = append(h.undo, clonePositions(current))
	if len(h.undo) > h.limit {
		h.undo = h.undo[1:]
	}
	h.redo = nil
}

// Undo returns the previous layout, stashing the current one for redo.
func (h *History) Undo(current map[string]Position) (map[string]Position, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	prev := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, clonePositions(current))
	return prev, true
}

// Redo returns the most recently undone layout, stashing the current one
// back on the undo side.
func (h *History) Redo(current map[string]Position) (map[string]Position, bool) {
	if len(h.redo) == 0 {
		return nil, false
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, clonePositions(current))
	return next, true
}

// Depth reports how many undo states are held.
func (h *History) Depth() int {
	return len(h.undo)
}

func clonePositions(in map[string]Position) map[string]Position {
	out := make(map[string]Position, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
