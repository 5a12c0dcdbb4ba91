// Package scheduler periodically re-fetches step counts for stored
// strategies, so long-lived sessions do not drift from the backend as the
// underlying sources change.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/stratagem/internal/store"
	"github.com/rendis/stratagem/pkg/schema"
)

// CountRefresher forces a count refetch for one strategy.
// Satisfied by the counts service (avoids import cycle).
type CountRefresher interface {
	ForceRefresh(ctx context.Context, st *schema.Strategy)
}

// StrategyLister is the slice of the store the scheduler needs.
type StrategyLister interface {
	ListStrategies(ctx context.Context, filter store.StrategyFilter) ([]*store.StrategyRecord, error)
}

// Scheduler runs count refreshes on a cron schedule.
type Scheduler struct {
	lister    StrategyLister
	refresher CountRefresher
	parser    cron.Parser
	logger    *slog.Logger

	mu       sync.Mutex // guards lifecycle state and nextRun
	cancel   context.CancelFunc
	done     chan struct{}
	schedule cron.Schedule
	nextRun  time.Time
}

// NewScheduler creates a Scheduler firing on the given cron expression
// (standard five-field syntax).
func NewScheduler(lister StrategyLister, refresher CountRefresher, cronExpr string, logger *slog.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return &Scheduler{
		lister:    lister,
		refresher: refresher,
		parser:    parser,
		logger:    logger,
		schedule:  schedule,
		nextRun:   schedule.Next(time.Now().UTC()),
	}, nil
}

// Start launches the background refresh loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("count refresh scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			s.mu.Lock()
			due := !now.Before(s.nextRun)
			if due {
				s.nextRun = s.schedule.Next(now)
			}
			s.mu.Unlock()
			if due {
				s.Tick(ctx)
			}
		}
	}
}

// Tick refreshes counts for every stored strategy. ForceRefresh hands the
// plan to the count service and returns; the service's request-generation
// ordering discards any response a later refresh supersedes, so overlapping
// ticks need no dedup here.
func (s *Scheduler) Tick(ctx context.Context) {
	records, err := s.lister.ListStrategies(ctx, store.StrategyFilter{})
	if err != nil {
		s.logger.Error("failed to list strategies for refresh", slog.String("error", err.Error()))
		return
	}

	for _, rec := range records {
		if rec.Definition == nil {
			continue
		}
		s.refresher.ForceRefresh(ctx, rec.Definition)
	}
}

// NextRun reports when the next refresh fires.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("count refresh scheduler stopped")
	return nil
}
