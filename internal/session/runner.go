package session

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/stratagem/internal/counts"
	"github.com/rendis/stratagem/internal/dirty"
	"github.com/rendis/stratagem/internal/dispatch"
	"github.com/rendis/stratagem/internal/logging"
	"github.com/rendis/stratagem/internal/store"
	"github.com/rendis/stratagem/internal/streaming"
	"github.com/rendis/stratagem/pkg/schema"
)

// EventSink durably appends applied stream records to the event log.
// Satisfied by the store.
type EventSink interface {
	AppendEvent(ctx context.Context, event *store.StreamEvent) error
}

// BaselineSource reads the persisted saved-signature baseline for a strategy.
type BaselineSource interface {
	GetBaseline(ctx context.Context, strategyID string) (map[string]string, error)
}

// Runner drives one conversational exchange. Records are dispatched and
// applied strictly in arrival order on a single goroutine; event-log append,
// fan-out to subscribers, dirty-baseline adoption, and count submission all
// happen after the model mutation they describe, so no observer ever sees a
// half-applied turn.
type Runner struct {
	Session  *Session
	Hub      streaming.EventHub
	Tracker  *dirty.Tracker
	Counts   *counts.Service
	Payloads PayloadChecker
	Logger   *slog.Logger

	// Events, when set, receives every dispatched record for durable append.
	// Append failures are logged and skipped; the stream keeps flowing.
	Events EventSink

	// Baselines, when set, supplies the persisted saved-signature baseline
	// the first time each strategy id appears on the stream, so unsaved
	// indicators survive a restart.
	Baselines BaselineSource

	// Editing reports whether a step is open in a local editor. While it
	// returns true the dirty baseline is left alone, so local unsaved work
	// is not masked by streamed mutations.
	Editing func() bool

	restoredFor string
}

// Run consumes records until the channel closes or ctx is cancelled.
// Cancellation mid-stream is clean: the partially applied strategy state
// stays valid and the session's undo snapshot remains consumable.
func (r *Runner) Run(ctx context.Context, records <-chan schema.StreamRecord) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			r.handle(ctx, rec)
		}
	}
}

func (r *Runner) handle(ctx context.Context, rec schema.StreamRecord) {
	ctx = logging.WithSessionID(ctx, r.Session.ID)
	if live := r.Session.Latest(); live != nil {
		ctx = logging.WithStrategyID(ctx, live.ID)
	}

	ev := dispatch.Dispatch(rec)
	res := Apply(ctx, r.Session, ev, r.Payloads, r.Logger)

	seq := r.persist(ctx, ev, rec)
	r.publish(ctx, ev, rec, seq)

	if !res.Structural {
		return
	}
	live := r.Session.Latest()
	r.restoreBaseline(ctx, live)
	if r.Tracker != nil && (r.Editing == nil || !r.Editing()) {
		r.Tracker.AdoptLive(live)
	}
	if r.Counts != nil {
		r.Counts.Submit(ctx, live)
	}
}

// persist appends the record to the durable event log and returns the
// per-strategy sequence it was assigned, or 0 when no log is wired or the
// append failed.
func (r *Runner) persist(ctx context.Context, ev dispatch.Event, rec schema.StreamRecord) int64 {
	if r.Events == nil {
		return 0
	}
	event := &store.StreamEvent{
		SessionID: r.Session.ID,
		EventType: ev.EventType(),
		Payload:   json.RawMessage(rec.Data),
	}
	if live := r.Session.Latest(); live != nil {
		event.StrategyID = live.ID
	}
	if err := r.Events.AppendEvent(ctx, event); err != nil {
		logging.LogWith(ctx, r.Logger).Warn("event log append failed",
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()))
		return 0
	}
	return event.Sequence
}

// restoreBaseline loads the persisted baseline the first time a strategy id
// shows up, before any adoption overwrites it. Matters most when Editing is
// blocking adoption: the unsaved set is then judged against the last real
// save, not an empty baseline.
func (r *Runner) restoreBaseline(ctx context.Context, live *schema.Strategy) {
	if r.Tracker == nil || r.Baselines == nil || live == nil || live.ID == "" || live.ID == r.restoredFor {
		return
	}
	r.restoredFor = live.ID
	baseline, err := r.Baselines.GetBaseline(ctx, live.ID)
	if err != nil {
		logging.LogWith(ctx, r.Logger).Warn("saved baseline restore failed",
			slog.String("error", err.Error()))
		return
	}
	if len(baseline) > 0 {
		r.Tracker.Restore(baseline)
	}
}

func (r *Runner) publish(ctx context.Context, ev dispatch.Event, rec schema.StreamRecord, seq int64) {
	if r.Hub == nil {
		return
	}
	event := streaming.StreamEvent{
		EventType: ev.EventType(),
		Payload:   rec.Data,
		Sequence:  seq,
	}
	if live := r.Session.Latest(); live != nil {
		event.StrategyID = live.ID
	}
	if err := r.Hub.Publish(ctx, event); err != nil {
		logging.LogWith(ctx, r.Logger).Warn("event fan-out failed",
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()))
	}
}
