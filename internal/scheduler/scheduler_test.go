package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stratagem/internal/store"
	"github.com/rendis/stratagem/pkg/schema"
)

type fakeLister struct {
	records []*store.StrategyRecord
	err     error
}

func (f *fakeLister) ListStrategies(_ context.Context, _ store.StrategyFilter) ([]*store.StrategyRecord, error) {
	return f.records, f.err
}

type recordingRefresher struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRefresher) ForceRefresh(_ context.Context, st *schema.Strategy) {
	r.mu.Lock()
	r.ids = append(r.ids, st.ID)
	r.mu.Unlock()
}

func (r *recordingRefresher) refreshed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func testRecords(ids ...string) []*store.StrategyRecord {
	var out []*store.StrategyRecord
	for _, id := range ids {
		st := schema.NewStrategy(id)
		st.PutStep(&schema.Step{ID: "s1", SearchName: "pubmed.query"})
		out = append(out, &store.StrategyRecord{ID: id, Definition: st})
	}
	return out
}

func newTestScheduler(t *testing.T, lister StrategyLister, refresher CountRefresher) *Scheduler {
	t.Helper()
	s, err := NewScheduler(lister, refresher, "*/15 * * * *", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func TestNewScheduler_RejectsBadCron(t *testing.T) {
	_, err := NewScheduler(&fakeLister{}, &recordingRefresher{}, "not a cron", slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestTick_RefreshesEveryStrategy(t *testing.T) {
	ref := &recordingRefresher{}
	s := newTestScheduler(t, &fakeLister{records: testRecords("g1", "g2")}, ref)

	s.Tick(context.Background())

	assert.Equal(t, []string{"g1", "g2"}, ref.refreshed())
}

func TestTick_SkipsNilDefinitions(t *testing.T) {
	ref := &recordingRefresher{}
	records := testRecords("g1")
	records = append(records, &store.StrategyRecord{ID: "empty"})
	s := newTestScheduler(t, &fakeLister{records: records}, ref)

	s.Tick(context.Background())

	assert.Equal(t, []string{"g1"}, ref.refreshed())
}

func TestTick_RepeatedTicksRefreshAgain(t *testing.T) {
	ref := &recordingRefresher{}
	s := newTestScheduler(t, &fakeLister{records: testRecords("g1")}, ref)

	s.Tick(context.Background())
	s.Tick(context.Background())

	// Each tick re-submits; the count service's generation ordering is what
	// discards a superseded in-flight response.
	assert.Equal(t, []string{"g1", "g1"}, ref.refreshed())
}

func TestNextRun_SafeWhileRunning(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &recordingRefresher{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.False(t, s.NextRun().IsZero())
		}()
	}
	wg.Wait()
}

func TestStartStop(t *testing.T) {
	ref := &recordingRefresher{}
	s := newTestScheduler(t, &fakeLister{}, ref)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "double start rejected")

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}

	assert.NoError(t, s.Stop(), "stop is idempotent")
}

func TestNextRun_FollowsSchedule(t *testing.T) {
	s := newTestScheduler(t, &fakeLister{}, &recordingRefresher{})

	next := s.NextRun()
	assert.True(t, next.After(time.Now().UTC().Add(-time.Minute)))
	assert.Zero(t, next.Minute()%15, "quarter-hour schedule")
}
