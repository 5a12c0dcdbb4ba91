package streaming

import "context"

// StreamEvent is a real-time event fanned out while a strategy session runs.
// Sequence is the per-strategy position the durable event log assigned the
// record; 0 means the event was not logged.
type StreamEvent struct {
	StrategyID string `json:"strategy_id"`
	StepID     string `json:"step_id,omitempty"`
	EventType  string `json:"event_type"`
	Sequence   int64  `json:"sequence,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
// AfterSequence admits only logged events past the given log position, so a
// reconnecting subscriber that replayed the log up to N does not see the
// same events twice. Zero disables the check.
type EventFilter struct {
	StrategyID    string   `json:"strategy_id,omitempty"`
	EventTypes    []string `json:"event_types,omitempty"`
	AfterSequence int64    `json:"after_sequence,omitempty"`
}

// EventHub provides pub/sub for real-time strategy events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
