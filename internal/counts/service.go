// Package counts fetches per-step result counts for a strategy's canonical
// plan. Refetching is driven by plan content, not identity: a fingerprint of
// the serialized plan gates redundant fetches. In-flight requests are
// superseded by generation ("last request wins", not "last response wins"),
// so a slow stale response can never overwrite counts belonging to a newer
// plan.
package counts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/stratagem/internal/strategy"
	"github.com/rendis/stratagem/pkg/schema"
)

// State classifies a step's count.
type State string

const (
	// StateUnknown covers both "not yet computed" and "computation pending".
	// Rendered as "?"; never allowed to replace a confirmed value.
	StateUnknown State = "unknown"
	// StateConfirmed is a real numeric count, including confirmed-empty (0).
	StateConfirmed State = "confirmed"
)

// Count is the displayed count for one step.
type Count struct {
	State State `json:"state"`
	Value int64 `json:"value"`
}

// Result is one step's outcome from a fetch. Known=false means the endpoint
// could not compute the step, which is distinct from a confirmed zero.
type Result struct {
	Known bool  `json:"known"`
	Value int64 `json:"value"`
}

// Fetcher computes per-step counts for a canonical plan. Implementations may
// reject; the service converts failures into unknown counts, never panics
// the event loop.
type Fetcher interface {
	FetchCounts(ctx context.Context, plan *schema.PlanNode) (map[string]Result, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, plan *schema.PlanNode) (map[string]Result, error)

func (f FetcherFunc) FetchCounts(ctx context.Context, plan *schema.PlanNode) (map[string]Result, error) {
	return f(ctx, plan)
}

// Service coordinates debounced, cancellable count fetches.
type Service struct {
	fetcher  Fetcher
	logger   *slog.Logger
	debounce time.Duration
	onUpdate func(map[string]Count)

	mu              sync.Mutex
	gen             uint64
	timerGen        uint64
	lastFingerprint string
	counts          map[string]Count
	cancel          context.CancelFunc
	timer           *time.Timer
}

// Option configures a Service.
type Option func(*Service)

// WithDebounce delays fetch dispatch after a submit; rapid successive plan
// changes collapse into one fetch.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) { s.debounce = d }
}

// WithOnUpdate registers a callback invoked with a snapshot of the count map
// after every change. Called outside the service lock.
func WithOnUpdate(fn func(map[string]Count)) Option {
	return func(s *Service) { s.onUpdate = fn }
}

// NewService creates a count service over the given fetcher.
func NewService(fetcher Fetcher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		logger:  logger,
		counts:  map[string]Count{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Counts returns a snapshot of the current count map.
func (s *Service) Counts() map[string]Count {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Count returns the count for one step.
func (s *Service) Count(stepID string) Count {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counts[stepID]; ok {
		return c
	}
	return Count{State: StateUnknown}
}

// Seed installs an externally provided numeric count (e.g. an imported
// estimate). It is preserved until a real computation confirms or
// supersedes it.
func (s *Service) Seed(stepID string, value int64) {
	s.mu.Lock()
	s.counts[stepID] = Count{State: StateConfirmed, Value: value}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Submit re-evaluates counts for the strategy's current plan. A plan whose
// content matches the previous fetch is skipped. A structurally invalid
// strategy (no plan, or combine type mismatches) suppresses counts entirely
// rather than leaving stale values on screen.
func (s *Service) Submit(ctx context.Context, st *schema.Strategy) {
	s.submit(ctx, st, false)
}

// ForceRefresh refetches even when the plan content is unchanged.
func (s *Service) ForceRefresh(ctx context.Context, st *schema.Strategy) {
	s.submit(ctx, st, true)
}

func (s *Service) submit(ctx context.Context, st *schema.Strategy, force bool) {
	plan, err := strategy.SerializePlan(st)
	valid := err == nil && len(strategy.DetectTypeMismatch(st)) == 0

	s.mu.Lock()
	if !valid {
		snap := s.suppressLocked()
		s.mu.Unlock()
		s.notify(snap)
		return
	}

	fp := strategy.Fingerprint(plan)
	if !force && fp == s.lastFingerprint {
		s.mu.Unlock()
		return
	}
	s.lastFingerprint = fp
	s.scheduleLocked(ctx, plan)
	s.mu.Unlock()
}

// suppressLocked invalidates any in-flight fetch and clears the map.
func (s *Service) suppressLocked() map[string]Count {
	s.gen++
	s.timerGen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.counts = map[string]Count{}
	s.lastFingerprint = ""
	return s.snapshotLocked()
}

// scheduleLocked dispatches a fetch, optionally after the debounce window.
// A newer schedule resets the window and supersedes the pending one.
func (s *Service) scheduleLocked(ctx context.Context, plan *schema.PlanNode) {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.debounce <= 0 {
		s.startFetchLocked(ctx, plan)
		return
	}
	gen := s.timerGen
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// Stop cannot interrupt a callback that already fired and is waiting
		// on the lock; the generation check keeps such a stale callback from
		// dispatching its superseded plan.
		if gen != s.timerGen {
			return
		}
		s.timer = nil
		s.startFetchLocked(ctx, plan)
	})
}

// startFetchLocked bumps the generation, cancels the superseded request, and
// launches the fetch. Placeholders are installed for steps with no count
// yet; a confirmed count is never downgraded to a loading placeholder.
func (s *Service) startFetchLocked(ctx context.Context, plan *schema.PlanNode) {
	s.gen++
	gen := s.gen

	if s.cancel != nil {
		s.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	planIDs := map[string]bool{}
	for _, id := range plan.StepIDs() {
		planIDs[id] = true
		if _, ok := s.counts[id]; !ok {
			s.counts[id] = Count{State: StateUnknown}
		}
	}
	// Steps no longer in the plan drop out of the map.
	for id := range s.counts {
		if !planIDs[id] {
			delete(s.counts, id)
		}
	}

	go s.fetch(fctx, gen, plan)
}

func (s *Service) fetch(ctx context.Context, gen uint64, plan *schema.PlanNode) {
	results, err := s.fetcher.FetchCounts(ctx, plan)

	s.mu.Lock()
	if gen != s.gen {
		// Superseded: a newer request owns the map now. The generation check
		// decides at resolution time, so even responses the cancellation
		// signal failed to interrupt are discarded.
		s.mu.Unlock()
		return
	}

	if err != nil {
		if !errors.Is(err, context.Canceled) && s.logger != nil {
			s.logger.Warn("step count fetch failed; counts stay unknown",
				slog.String("error", err.Error()))
		}
		s.mu.Unlock()
		return
	}

	for id, r := range results {
		existing, ok := s.counts[id]
		if !ok {
			continue // not part of the current plan
		}
		switch {
		case r.Known:
			s.counts[id] = Count{State: StateConfirmed, Value: r.Value}
		case existing.State == StateConfirmed:
			// Unknown never replaces a numeric count.
		default:
			s.counts[id] = Count{State: StateUnknown}
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Service) snapshotLocked() map[string]Count {
	out := make(map[string]Count, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

func (s *Service) notify(snap map[string]Count) {
	if s.onUpdate != nil {
		s.onUpdate(snap)
	}
}
