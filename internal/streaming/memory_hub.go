package streaming

import (
	"context"
	"sync"
	"sync/atomic"
)

const subscriberBuffer = 64

// subscription pairs a delivery channel with the filter it registered.
type subscription struct {
	events chan StreamEvent
	filter EventFilter
}

// wants reports whether the subscription's filter admits the event.
func (s *subscription) wants(e StreamEvent) bool {
	f := s.filter
	if f.StrategyID != "" && f.StrategyID != e.StrategyID {
		return false
	}
	if f.AfterSequence > 0 && e.Sequence <= f.AfterSequence {
		return false
	}
	if len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if t == e.EventType {
			return true
		}
	}
	return false
}

// MemoryHub is the in-process EventHub: channel fan-out with per-subscriber
// filters. Publish never blocks; a subscriber that falls behind its buffer
// loses events rather than stalling the session loop.
type MemoryHub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID atomic.Uint64
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs: make(map[uint64]*subscription),
	}
}

// Publish delivers the event to every subscription whose filter admits it.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			// slow subscriber: drop instead of blocking the publisher
		}
	}
	return nil
}

// Subscribe registers a filtered subscription and returns its channel plus a
// cancel func that removes it. The channel is never closed by the hub.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.nextID.Add(1)
	sub := &subscription{
		events: make(chan StreamEvent, subscriberBuffer),
		filter: filter,
	}

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}

	return sub.events, cancel, nil
}
