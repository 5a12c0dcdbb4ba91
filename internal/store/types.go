package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/stratagem/pkg/schema"
)

// StrategyRecord is a persisted strategy with its full definition.
type StrategyRecord struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	SiteID      string           `json:"site_id,omitempty"`
	RecordType  string           `json:"record_type,omitempty"`
	Definition  *schema.Strategy `json:"definition"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// StrategyFilter narrows ListStrategies.
type StrategyFilter struct {
	SiteID     string     `json:"site_id,omitempty"`
	RecordType string     `json:"record_type,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}

// StrategyUpdate carries partial metadata changes. Nil fields are untouched.
type StrategyUpdate struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	RecordType  *string          `json:"record_type,omitempty"`
	Definition  *schema.Strategy `json:"definition,omitempty"`
}

// StreamEvent is one persisted stream record, sequenced per strategy.
type StreamEvent struct {
	ID         int64           `json:"id"`
	StrategyID string          `json:"strategy_id"`
	StepID     string          `json:"step_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// StreamEventFilter narrows GetEventsByType.
type StreamEventFilter struct {
	StrategyID string     `json:"strategy_id,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}
