// Package dirty reconciles "last known saved" step state against the live
// strategy. A step is dirty iff its current signature differs from, or is
// absent from, the saved-signature baseline.
package dirty

import (
	"sort"

	"github.com/rendis/stratagem/pkg/schema"
)

// Tracker holds the saved-signature baseline. Recomputation is pure and
// total: dirty state is always derived, never cached across mutations, so
// there is no stale window between an edit and the unsaved indicator.
type Tracker struct {
	baseline map[string]string
}

// NewTracker creates a tracker with an empty baseline: every live step is
// dirty until a save (or stream adoption) establishes one.
func NewTracker() *Tracker {
	return &Tracker{baseline: map[string]string{}}
}

// Recompute returns the ids of all dirty steps, sorted for determinism.
func (t *Tracker) Recompute(st *schema.Strategy) []string {
	var out []string
	if st == nil {
		return out
	}
	for id, s := range st.Steps {
		if t.baseline[id] != StepSignature(s) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// IsUnsaved reports whether any step diverges from the baseline.
func (t *Tracker) IsUnsaved(st *schema.Strategy) bool {
	if st == nil {
		return false
	}
	for id, s := range st.Steps {
		if t.baseline[id] != StepSignature(s) {
			return true
		}
	}
	return false
}

// MarkSaved adopts every live step's current signature as the new baseline.
// Called after a successful persistence call.
func (t *Tracker) MarkSaved(st *schema.Strategy) {
	t.baseline = Signatures(st)
}

// AdoptLive adopts the live signatures while the stream is actively writing.
// The backend durably persists streamed mutations as it emits them, so
// flagging them unsaved would be a false positive, not a safety net. Callers
// must not adopt while a step is open for local editing.
func (t *Tracker) AdoptLive(st *schema.Strategy) {
	t.baseline = Signatures(st)
}

// Baseline returns a copy of the saved-signature map, for persistence.
func (t *Tracker) Baseline() map[string]string {
	out := make(map[string]string, len(t.baseline))
	for k, v := range t.baseline {
		out[k] = v
	}
	return out
}

// Restore replaces the baseline wholesale, e.g. when reloading a strategy
// and its persisted signature map from the store.
func (t *Tracker) Restore(baseline map[string]string) {
	t.baseline = make(map[string]string, len(baseline))
	for k, v := range baseline {
		t.baseline[k] = v
	}
}
