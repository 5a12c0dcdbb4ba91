// Package session holds the per-turn streaming state: the undo snapshot
// captured at the first structural mutation of an agent exchange, the
// snapshot-applied flag, and the mirror of the live strategy that later
// events in the same turn reference.
//
// A Session is explicitly constructed at the start of each exchange and
// discarded when the stream ends or is cancelled; it is never persisted and
// never ambient.
package session

import (
	"github.com/google/uuid"

	"github.com/rendis/stratagem/pkg/schema"
)

// Session is the mutable state scoped to one agent conversational turn.
// None of its operations error: absence of a snapshot is a valid, expected
// state (a turn that produced no structural change).
type Session struct {
	ID string

	latest          *schema.Strategy
	undoSnapshot    *schema.Strategy
	undoCaptured    bool
	snapshotApplied bool
}

// New creates a session for one exchange over the given live strategy.
func New(live *schema.Strategy) *Session {
	return &Session{
		ID:     uuid.New().String(),
		latest: live,
	}
}

// BeginTurn re-arms the per-turn state for a new agent exchange: the undo
// snapshot, its first-mutation capture guard, and the snapshot-applied flag
// all reset. The live-strategy mirror carries over, so the new turn's first
// structural mutation snapshots the state the turn started from. A non-empty
// sessionID rebinds the session to the backend's id for the exchange.
func (s *Session) BeginTurn(sessionID string) {
	if sessionID != "" {
		s.ID = sessionID
	}
	s.undoSnapshot = nil
	s.undoCaptured = false
	s.snapshotApplied = false
}

// Latest returns the freshest strategy seen this session.
func (s *Session) Latest() *schema.Strategy {
	return s.latest
}

// SetLatest updates the live-strategy mirror so later events in the same
// session observe the freshest value without re-reading external state.
func (s *Session) SetLatest(st *schema.Strategy) {
	s.latest = st
}

// CaptureUndoSnapshot records the current strategy as the undo point, but
// only if no snapshot has been captured this session and the live strategy's
// id matches graphID. Idempotent after the first call: the first mutation of
// the turn wins even when multiple mutating events arrive.
func (s *Session) CaptureUndoSnapshot(graphID string) {
	if s.undoCaptured || s.latest == nil || s.latest.ID != graphID {
		return
	}
	s.undoSnapshot = s.latest.Clone()
	s.undoCaptured = true
}

// ConsumeUndoSnapshot returns and clears the captured snapshot. One-shot: a
// second call returns nil. The capture guard stays set, so consuming never
// re-arms snapshot capture within the same session.
func (s *Session) ConsumeUndoSnapshot() *schema.Strategy {
	snap := s.undoSnapshot
	s.undoSnapshot = nil
	return snap
}

// MarkSnapshotApplied flags that a full-graph replacement event was processed
// this turn. Downstream uses this to suppress duplicate unsaved-changes
// prompts: a replacement from the agent is already persisted server-side.
func (s *Session) MarkSnapshotApplied() {
	s.snapshotApplied = true
}

// SnapshotApplied reports whether a full-graph replacement was applied.
func (s *Session) SnapshotApplied() bool {
	return s.snapshotApplied
}
