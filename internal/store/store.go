package store

import (
	"context"
	"encoding/json"

	"github.com/rendis/stratagem/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Strategies
	CreateStrategy(ctx context.Context, rec *StrategyRecord) error
	GetStrategy(ctx context.Context, id string) (*StrategyRecord, error)
	UpdateStrategy(ctx context.Context, id string, update StrategyUpdate) error
	ListStrategies(ctx context.Context, filter StrategyFilter) ([]*StrategyRecord, error)
	DeleteStrategy(ctx context.Context, id string) error

	// Saved-signature baselines (dirty tracking across restarts)
	SaveBaseline(ctx context.Context, strategyID string, baseline map[string]string) error
	GetBaseline(ctx context.Context, strategyID string) (map[string]string, error)

	// Stream-event log (append-only)
	AppendEvent(ctx context.Context, event *StreamEvent) error
	GetEvents(ctx context.Context, strategyID string, since int64) ([]*StreamEvent, error)
	GetEventsByType(ctx context.Context, eventType string, filter StreamEventFilter) ([]*StreamEvent, error)
	ReplayStrategy(ctx context.Context, strategyID string) (*schema.Strategy, error)

	// Canvas layouts
	SaveLayout(ctx context.Context, strategyID string, positions json.RawMessage) error
	GetLayout(ctx context.Context, strategyID string) (json.RawMessage, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
