package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stratagem/internal/counts"
	"github.com/rendis/stratagem/internal/dirty"
	"github.com/rendis/stratagem/internal/store"
	"github.com/rendis/stratagem/internal/transform"
	"github.com/rendis/stratagem/internal/validation"
	"github.com/rendis/stratagem/pkg/schema"
)

// --- Mock Store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	records   []*store.StrategyRecord
	events    []*store.StreamEvent
	baselines map[string]map[string]string
	layouts   map[string]json.RawMessage
	updates   []store.StrategyUpdate
	replayed  *schema.Strategy
}

func newMockStore() *mockStore {
	return &mockStore{
		baselines: make(map[string]map[string]string),
		layouts:   make(map[string]json.RawMessage),
	}
}

func (m *mockStore) CreateStrategy(_ context.Context, rec *store.StrategyRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *mockStore) GetStrategy(_ context.Context, id string) (*store.StrategyRecord, error) {
	for _, rec := range m.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, schema.NewError(schema.ErrCodeNotFound, "strategy not found")
}

func (m *mockStore) UpdateStrategy(_ context.Context, id string, update store.StrategyUpdate) error {
	for _, rec := range m.records {
		if rec.ID != id {
			continue
		}
		m.updates = append(m.updates, update)
		if update.Name != nil {
			rec.Name = *update.Name
		}
		if update.Definition != nil {
			rec.Definition = update.Definition
		}
		return nil
	}
	return schema.NewError(schema.ErrCodeNotFound, "strategy not found")
}

func (m *mockStore) ListStrategies(_ context.Context, filter store.StrategyFilter) ([]*store.StrategyRecord, error) {
	result := make([]*store.StrategyRecord, 0)
	for _, rec := range m.records {
		if filter.SiteID != "" && rec.SiteID != filter.SiteID {
			continue
		}
		if filter.RecordType != "" && rec.RecordType != filter.RecordType {
			continue
		}
		result = append(result, rec)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockStore) GetEvents(_ context.Context, strategyID string, since int64) ([]*store.StreamEvent, error) {
	result := make([]*store.StreamEvent, 0)
	for _, e := range m.events {
		if e.StrategyID == strategyID && e.Sequence > since {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockStore) GetEventsByType(_ context.Context, eventType string, filter store.StreamEventFilter) ([]*store.StreamEvent, error) {
	result := make([]*store.StreamEvent, 0)
	for _, e := range m.events {
		if e.EventType != eventType {
			continue
		}
		if filter.StrategyID != "" && e.StrategyID != filter.StrategyID {
			continue
		}
		result = append(result, e)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockStore) SaveBaseline(_ context.Context, strategyID string, baseline map[string]string) error {
	m.baselines[strategyID] = baseline
	return nil
}

func (m *mockStore) DeleteStrategy(_ context.Context, id string) error {
	for i, rec := range m.records {
		if rec.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return schema.NewError(schema.ErrCodeNotFound, "strategy not found")
}

func (m *mockStore) ReplayStrategy(_ context.Context, _ string) (*schema.Strategy, error) {
	return m.replayed, nil
}

func (m *mockStore) SaveLayout(_ context.Context, strategyID string, positions json.RawMessage) error {
	m.layouts[strategyID] = positions
	return nil
}

func (m *mockStore) GetLayout(_ context.Context, strategyID string) (json.RawMessage, error) {
	layout, ok := m.layouts[strategyID]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeNotFound, "layout not found")
	}
	return layout, nil
}

// --- Mock Count Service ---

type mockCounts struct {
	counts    map[string]counts.Count
	refreshed []string
}

func (m *mockCounts) Counts() map[string]counts.Count { return m.counts }

func (m *mockCounts) ForceRefresh(_ context.Context, st *schema.Strategy) {
	m.refreshed = append(m.refreshed, st.ID)
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

// validGraph builds a single-sink graph: two searches combined by a UNION.
func validGraph(id string) *schema.Strategy {
	st := schema.NewStrategy(id)
	st.PutStep(&schema.Step{ID: "s1", SearchName: "pubmed.query", RecordType: "article"})
	st.PutStep(&schema.Step{ID: "s2", SearchName: "embase.query", RecordType: "article"})
	st.PutStep(&schema.Step{ID: "c1", Operator: schema.OperatorUnion, PrimaryInput: "s1", SecondaryInput: "s2"})
	return st
}

func newValidator(t *testing.T) *validation.StrategyValidator {
	t.Helper()
	v, err := validation.NewStrategyValidator(nil)
	require.NoError(t, err)
	return v
}

// --- Get Tests ---

func TestGetTool_LiveGraph(t *testing.T) {
	live := validGraph("g1")
	tracker := dirty.NewTracker()
	s := NewStratagemServer(StratagemServerDeps{
		Store:   newMockStore(),
		Tracker: tracker,
		Live:    func() *schema.Strategy { return live },
	})

	result, err := s.handleGet(context.Background(), buildRequest("stratagem.get", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Strategy     *schema.Strategy `json:"strategy"`
		UnsavedSteps []string         `json:"unsaved_steps"`
	}
	unmarshalResult(t, result, &out)
	require.NotNil(t, out.Strategy)
	assert.Equal(t, "g1", out.Strategy.ID)
	assert.ElementsMatch(t, []string{"s1", "s2", "c1"}, out.UnsavedSteps, "fresh tracker reports everything unsaved")
}

func TestGetTool_StoredStrategy(t *testing.T) {
	ms := newMockStore()
	ms.records = []*store.StrategyRecord{{ID: "g2", Definition: validGraph("g2")}}
	s := NewStratagemServer(StratagemServerDeps{Store: ms})

	result, err := s.handleGet(context.Background(), buildRequest("stratagem.get", map[string]any{
		"strategy_id": "g2",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "pubmed.query")
}

func TestGetTool_NoLiveNoID(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{Store: newMockStore()})

	result, err := s.handleGet(context.Background(), buildRequest("stratagem.get", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetTool_ReplaySource(t *testing.T) {
	ms := newMockStore()
	ms.replayed = validGraph("g2")
	s := NewStratagemServer(StratagemServerDeps{Store: ms})

	result, err := s.handleGet(context.Background(), buildRequest("stratagem.get", map[string]any{
		"strategy_id": "g2",
		"source":      "replay",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "pubmed.query")
}

func TestGetTool_ReplayWithoutLoggedGraph(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{Store: newMockStore()})

	result, err := s.handleGet(context.Background(), buildRequest("stratagem.get", map[string]any{
		"strategy_id": "g2",
		"source":      "replay",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetTool_IncludesStoredLayout(t *testing.T) {
	ms := newMockStore()
	ms.records = []*store.StrategyRecord{{ID: "g2", Definition: validGraph("g2")}}
	ms.layouts["g2"] = json.RawMessage(`{"s1":{"x":10,"y":20}}`)
	s := NewStratagemServer(StratagemServerDeps{Store: ms})

	result, err := s.handleGet(context.Background(), buildRequest("stratagem.get", map[string]any{
		"strategy_id": "g2",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Layout map[string]map[string]float64 `json:"layout"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, float64(10), out.Layout["s1"]["x"])
}

// --- Validate Tests ---

func TestValidateTool_ValidGraph(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{
		Store:     newMockStore(),
		Validator: newValidator(t),
		Live:      func() *schema.Strategy { return validGraph("g1") },
	})

	result, err := s.handleValidate(context.Background(), buildRequest("stratagem.validate", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Valid bool `json:"valid"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Valid)
}

func TestValidateTool_BrokenGraph(t *testing.T) {
	broken := validGraph("g1")
	broken.Step("c1").Operator = "" // combine without operator
	s := NewStratagemServer(StratagemServerDeps{
		Store:     newMockStore(),
		Validator: newValidator(t),
		Live:      func() *schema.Strategy { return broken },
	})

	result, err := s.handleValidate(context.Background(), buildRequest("stratagem.validate", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError, "validation findings are data, not a tool failure")

	var out struct {
		Valid  bool                     `json:"valid"`
		Errors []schema.ValidationIssue `json:"errors"`
	}
	unmarshalResult(t, result, &out)
	assert.False(t, out.Valid)
	assert.NotEmpty(t, out.Errors)
}

// --- Plan Tests ---

func TestPlanTool(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{
		Store: newMockStore(),
		Live:  func() *schema.Strategy { return validGraph("g1") },
	})

	result, err := s.handlePlan(context.Background(), buildRequest("stratagem.plan", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Plan        *schema.PlanNode `json:"plan"`
		Fingerprint string           `json:"fingerprint"`
	}
	unmarshalResult(t, result, &out)
	require.NotNil(t, out.Plan)
	assert.Equal(t, "c1", out.Plan.StepID)
	assert.NotEmpty(t, out.Fingerprint)
}

func TestPlanTool_MultipleSinks(t *testing.T) {
	st := validGraph("g1")
	st.PutStep(&schema.Step{ID: "s3", SearchName: "cochrane.query"}) // second sink
	s := NewStratagemServer(StratagemServerDeps{
		Store: newMockStore(),
		Live:  func() *schema.Strategy { return st },
	})

	result, err := s.handlePlan(context.Background(), buildRequest("stratagem.plan", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Counts Tests ---

func TestCountsTool(t *testing.T) {
	mc := &mockCounts{counts: map[string]counts.Count{
		"s1": {State: counts.StateConfirmed, Value: 120},
	}}
	s := NewStratagemServer(StratagemServerDeps{Store: newMockStore(), Counts: mc})

	result, err := s.handleCounts(context.Background(), buildRequest("stratagem.counts", map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "120")
	assert.Empty(t, mc.refreshed, "no refresh unless asked")
}

func TestCountsTool_ForceRefresh(t *testing.T) {
	mc := &mockCounts{counts: map[string]counts.Count{}}
	s := NewStratagemServer(StratagemServerDeps{
		Store:  newMockStore(),
		Counts: mc,
		Live:   func() *schema.Strategy { return validGraph("g1") },
	})

	result, err := s.handleCounts(context.Background(), buildRequest("stratagem.counts", map[string]any{
		"refresh": "true",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"g1"}, mc.refreshed)
}

func TestCountsTool_NoService(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{Store: newMockStore()})

	result, err := s.handleCounts(context.Background(), buildRequest("stratagem.counts", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Preview Tests ---

// filterGraph adds a CEL-filtered transform step downstream of a search.
func filterGraph(id string) *schema.Strategy {
	st := schema.NewStrategy(id)
	st.PutStep(&schema.Step{ID: "s1", SearchName: "pubmed.query", RecordType: "article"})
	st.PutStep(&schema.Step{ID: "t1", PrimaryInput: "s1",
		Parameters: map[string]any{transform.ParamFilter: `record.status == "included"`}})
	return st
}

func newFilterServer(t *testing.T) *StratagemServer {
	t.Helper()
	registry, err := transform.NewRegistry()
	require.NoError(t, err)
	return NewStratagemServer(StratagemServerDeps{
		Store:   newMockStore(),
		Filters: registry,
		Live:    func() *schema.Strategy { return filterGraph("g1") },
	})
}

func TestPreviewTool_MatchingRecord(t *testing.T) {
	s := newFilterServer(t)

	result, err := s.handlePreview(context.Background(), buildRequest("stratagem.preview", map[string]any{
		"step_id": "t1",
		"record":  map[string]any{"status": "included"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		StepID  string `json:"step_id"`
		Matched bool   `json:"matched"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, "t1", out.StepID)
	assert.True(t, out.Matched)
}

func TestPreviewTool_NonMatchingRecord(t *testing.T) {
	s := newFilterServer(t)

	result, err := s.handlePreview(context.Background(), buildRequest("stratagem.preview", map[string]any{
		"step_id": "t1",
		"record":  map[string]any{"status": "excluded"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Matched bool `json:"matched"`
	}
	unmarshalResult(t, result, &out)
	assert.False(t, out.Matched)
}

func TestPreviewTool_StepWithoutFilterPassesEverything(t *testing.T) {
	s := newFilterServer(t)

	result, err := s.handlePreview(context.Background(), buildRequest("stratagem.preview", map[string]any{
		"step_id": "s1",
		"record":  map[string]any{"anything": true},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Matched bool `json:"matched"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Matched)
}

func TestPreviewTool_UnknownStep(t *testing.T) {
	s := newFilterServer(t)

	result, err := s.handlePreview(context.Background(), buildRequest("stratagem.preview", map[string]any{
		"step_id": "missing",
		"record":  map[string]any{},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestPreviewTool_NoRegistry(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{
		Store: newMockStore(),
		Live:  func() *schema.Strategy { return filterGraph("g1") },
	})

	result, err := s.handlePreview(context.Background(), buildRequest("stratagem.preview", map[string]any{
		"step_id": "t1",
		"record":  map[string]any{},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Save Tests ---

func TestSaveTool_CreatesRecord(t *testing.T) {
	ms := newMockStore()
	live := validGraph("g1")
	tracker := dirty.NewTracker()
	s := NewStratagemServer(StratagemServerDeps{
		Store:     ms,
		Validator: newValidator(t),
		Tracker:   tracker,
		Live:      func() *schema.Strategy { return live },
	})

	result, err := s.handleSave(context.Background(), buildRequest("stratagem.save", map[string]any{
		"name":    "oncology review",
		"site_id": "site-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Len(t, ms.records, 1)
	assert.Equal(t, "g1", ms.records[0].ID)
	assert.Equal(t, "oncology review", ms.records[0].Name)

	// Baseline persisted and tracker clean.
	assert.Len(t, ms.baselines["g1"], 3)
	assert.False(t, tracker.IsUnsaved(live))
}

func TestSaveTool_UpdatesExisting(t *testing.T) {
	ms := newMockStore()
	live := validGraph("g1")
	ms.records = []*store.StrategyRecord{{ID: "g1", Name: "old name", Definition: validGraph("g1")}}
	s := NewStratagemServer(StratagemServerDeps{
		Store: ms,
		Live:  func() *schema.Strategy { return live },
	})

	result, err := s.handleSave(context.Background(), buildRequest("stratagem.save", map[string]any{
		"name": "new name",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Len(t, ms.records, 1, "no duplicate record")
	require.Len(t, ms.updates, 1)
	assert.Equal(t, "new name", ms.records[0].Name)

	var out struct {
		Created bool `json:"created"`
	}
	unmarshalResult(t, result, &out)
	assert.False(t, out.Created)
}

func TestSaveTool_NoLiveGraph(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{Store: newMockStore()})

	result, err := s.handleSave(context.Background(), buildRequest("stratagem.save", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSaveTool_RejectsInvalidGraph(t *testing.T) {
	ms := newMockStore()
	broken := validGraph("g1")
	broken.Step("c1").PrimaryInput = "missing"
	s := NewStratagemServer(StratagemServerDeps{
		Store:     ms,
		Validator: newValidator(t),
		Live:      func() *schema.Strategy { return broken },
	})

	result, err := s.handleSave(context.Background(), buildRequest("stratagem.save", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, ms.records, "invalid graph never reaches the store")
}

func TestSaveTool_PersistsLayout(t *testing.T) {
	ms := newMockStore()
	live := validGraph("g1")
	s := NewStratagemServer(StratagemServerDeps{
		Store: ms,
		Live:  func() *schema.Strategy { return live },
	})

	result, err := s.handleSave(context.Background(), buildRequest("stratagem.save", map[string]any{
		"layout": map[string]any{"s1": map[string]any{"x": 10, "y": 20}},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, string(ms.layouts["g1"]), `"x":10`)
}

// --- Delete Tests ---

func TestDeleteTool(t *testing.T) {
	ms := newMockStore()
	ms.records = []*store.StrategyRecord{{ID: "g1", Definition: validGraph("g1")}}
	s := NewStratagemServer(StratagemServerDeps{Store: ms})

	result, err := s.handleDelete(context.Background(), buildRequest("stratagem.delete", map[string]any{
		"strategy_id": "g1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Empty(t, ms.records)
}

func TestDeleteTool_UnknownStrategy(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{Store: newMockStore()})

	result, err := s.handleDelete(context.Background(), buildRequest("stratagem.delete", map[string]any{
		"strategy_id": "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDeleteTool_RequiresID(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{Store: newMockStore()})

	result, err := s.handleDelete(context.Background(), buildRequest("stratagem.delete", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Query Tests ---

func TestQueryStrategies_FilterBySite(t *testing.T) {
	ms := newMockStore()
	ms.records = []*store.StrategyRecord{
		{ID: "g1", SiteID: "site-1"},
		{ID: "g2", SiteID: "site-2"},
	}
	s := NewStratagemServer(StratagemServerDeps{Store: ms})

	result, err := s.handleQuery(context.Background(), buildRequest("stratagem.query", map[string]any{
		"resource": "strategies",
		"filter":   map[string]any{"site_id": "site-1"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Strategies []*store.StrategyRecord `json:"strategies"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Strategies, 1)
	assert.Equal(t, "g1", out.Strategies[0].ID)
}

func TestQueryEvents_ByType(t *testing.T) {
	ms := newMockStore()
	now := time.Now().UTC()
	ms.events = []*store.StreamEvent{
		{StrategyID: "g1", EventType: schema.RecordStrategyUpdate, Sequence: 1, Timestamp: now},
		{StrategyID: "g1", EventType: "assistant_message_delta", Sequence: 2, Timestamp: now},
	}
	s := NewStratagemServer(StratagemServerDeps{Store: ms})

	result, err := s.handleQuery(context.Background(), buildRequest("stratagem.query", map[string]any{
		"resource": "events",
		"filter":   map[string]any{"event_type": schema.RecordStrategyUpdate},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Events []*store.StreamEvent `json:"events"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Events, 1)
	assert.Equal(t, schema.RecordStrategyUpdate, out.Events[0].EventType)
}

func TestQueryEvents_RequiresFilter(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{Store: newMockStore()})

	result, err := s.handleQuery(context.Background(), buildRequest("stratagem.query", map[string]any{
		"resource": "events",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQuery_UnknownResource(t *testing.T) {
	s := NewStratagemServer(StratagemServerDeps{Store: newMockStore()})

	result, err := s.handleQuery(context.Background(), buildRequest("stratagem.query", map[string]any{
		"resource": "widgets",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
