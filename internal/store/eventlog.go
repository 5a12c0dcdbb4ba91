package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rendis/stratagem/internal/dispatch"
	"github.com/rendis/stratagem/pkg/schema"
)

// EventLog provides sequenced append and replay on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-log operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-strategy
// sequence.
func (el *EventLog) AppendEvent(ctx context.Context, event *StreamEvent) error {
	db := el.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode, BeginTx alone may start a deferred transaction. Force a
	// write lock with a noop write so sequence reads and inserts cannot
	// interleave across writers.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM stream_events WHERE strategy_id = ?`, event.StrategyID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var payload any
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO stream_events (strategy_id, step_id, session_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.StrategyID, nullStr(event.StepID), nullStr(event.SessionID),
		event.EventType, payload, event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a strategy with sequence > since, ordered by
// sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, strategyID string, since int64) ([]*StreamEvent, error) {
	return el.store.GetEvents(ctx, strategyID, since)
}

// ReplayStrategy replays the event log and returns the last full graph state
// the stream produced, or nil when no replacement event exists. Returns an
// error if sequence gaps are detected: a gap means the log cannot be trusted
// as a reconstruction source.
func (el *EventLog) ReplayStrategy(ctx context.Context, strategyID string) (*schema.Strategy, error) {
	events, err := el.store.GetEvents(ctx, strategyID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in strategy %s: expected %d, got %d", strategyID, expected, e.Sequence)
		}
	}

	var latest *schema.Strategy
	for _, e := range events {
		ev := dispatch.Dispatch(schema.StreamRecord{Type: e.EventType, Data: string(e.Payload)})
		switch typed := ev.(type) {
		case dispatch.GraphReplace:
			if typed.Strategy == nil {
				continue // a malformed replacement was skipped at apply time too
			}
			if typed.Strategy.ID == "" {
				typed.Strategy.ID = strategyID
			}
			latest = typed.Strategy

		case dispatch.StrategyCleared:
			if latest != nil {
				latest.Steps = map[string]*schema.Step{}
				latest.Order = nil
			}
		}
	}
	return latest, nil
}
