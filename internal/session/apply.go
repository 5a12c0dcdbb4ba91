package session

import (
	"context"
	"log/slog"

	"github.com/rendis/stratagem/internal/dispatch"
	"github.com/rendis/stratagem/internal/logging"
	"github.com/rendis/stratagem/pkg/schema"
)

// ApplyResult reports what an event did to the model.
type ApplyResult struct {
	Structural bool // the step set or references changed
	Cleared    bool // the step set was emptied (implicit save baseline)
}

// PayloadChecker validates a raw graph payload against the wire schema
// before it is allowed to replace the live strategy. Satisfied by
// validation.StrategyValidator. A nil checker skips the gate.
type PayloadChecker interface {
	ValidateGraphPayload(raw []byte) error
}

// Apply mutates the session's live strategy according to one dispatched
// event. Only graph replacements, clears, and metadata updates touch the
// model; every other variant is display-layer data and leaves it untouched.
//
// The undo snapshot is captured immediately before the first structural
// mutation of the turn, for exactly the session's live graph id. A
// message_start record opens a new turn and re-arms the snapshot.
func Apply(ctx context.Context, s *Session, ev dispatch.Event, payloads PayloadChecker, logger *slog.Logger) ApplyResult {
	switch e := ev.(type) {
	case dispatch.MessageStart:
		s.BeginTurn(e.SessionID)
		return ApplyResult{}

	case dispatch.GraphReplace:
		if e.Strategy == nil {
			logging.LogWith(ctx, logger).Warn("graph replacement payload did not parse; skipped",
				slog.String("record", e.Record))
			return ApplyResult{}
		}
		if payloads != nil && e.Raw != "" {
			if err := payloads.ValidateGraphPayload([]byte(e.Raw)); err != nil {
				logging.LogWith(ctx, logger).Warn("graph replacement payload failed schema validation; skipped",
					slog.String("record", e.Record),
					slog.String("error", err.Error()))
				return ApplyResult{}
			}
		}
		target := e.StrategyID
		if target == "" && s.Latest() != nil {
			target = s.Latest().ID
		}
		s.CaptureUndoSnapshot(target)
		if s.Latest() != nil && s.Latest().ID != "" && e.Strategy.ID == "" {
			e.Strategy.ID = s.Latest().ID
		}
		s.SetLatest(e.Strategy)
		s.MarkSnapshotApplied()
		return ApplyResult{Structural: true}

	case dispatch.StrategyCleared:
		live := s.Latest()
		if live == nil || live.ID != e.StrategyID {
			return ApplyResult{}
		}
		s.CaptureUndoSnapshot(e.StrategyID)
		live.Steps = make(map[string]*schema.Step)
		live.Order = nil
		return ApplyResult{Structural: true, Cleared: true}

	case dispatch.StrategyMeta:
		live := s.Latest()
		if live == nil || (e.StrategyID != "" && live.ID != e.StrategyID) {
			return ApplyResult{}
		}
		if e.Name != "" {
			live.Name = e.Name
		}
		if e.Description != "" {
			live.Description = e.Description
		}
		if e.RecordType != "" {
			live.RecordType = e.RecordType
		}
		return ApplyResult{}

	default:
		return ApplyResult{}
	}
}
