package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/stratagem/internal/store"
	"github.com/rendis/stratagem/internal/strategy"
	"github.com/rendis/stratagem/pkg/schema"
)

// handleGet returns a strategy graph, plus its unsaved step IDs when the
// dirty tracker is wired and its canvas layout when one is stored.
func (s *StratagemServer) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var st *schema.Strategy
	var err error
	if req.GetString("source", "") == "replay" {
		st, err = s.replayStrategy(ctx, req.GetString("strategy_id", ""))
	} else {
		st, err = s.resolveStrategy(ctx, req.GetString("strategy_id", ""))
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("strategy lookup failed: %v", err)), nil
	}

	out := map[string]any{"strategy": st}
	if s.tracker != nil {
		out["unsaved_steps"] = s.tracker.Recompute(st)
	}
	if st.ID != "" {
		if layout, layoutErr := s.store.GetLayout(ctx, st.ID); layoutErr == nil {
			out["layout"] = layout
		}
	}
	return marshalResult(out)
}

// replayStrategy reconstructs the latest graph state from the stream-event
// log instead of the stored definition.
func (s *StratagemServer) replayStrategy(ctx context.Context, strategyID string) (*schema.Strategy, error) {
	if strategyID == "" {
		if live := s.liveStrategy(); live != nil {
			strategyID = live.ID
		}
	}
	if strategyID == "" {
		return nil, schema.NewError(schema.ErrCodeNotFound, "no strategy id to replay")
	}

	st, err := s.store.ReplayStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"no graph replacements logged for strategy %s", strategyID)
	}
	return st, nil
}

// handleValidate runs the validation pipeline and returns the aggregated result.
func (s *StratagemServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.resolveStrategy(ctx, req.GetString("strategy_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("strategy lookup failed: %v", err)), nil
	}
	if s.validator == nil {
		return mcp.NewToolResultError("validator is not configured"), nil
	}

	result := s.validator.Validate(st)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handlePlan serializes the strategy into its canonical nested plan.
func (s *StratagemServer) handlePlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.resolveStrategy(ctx, req.GetString("strategy_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("strategy lookup failed: %v", err)), nil
	}

	plan, planErr := strategy.SerializePlan(st)
	if planErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("plan serialization failed: %v", planErr)), nil
	}

	return marshalResult(map[string]any{
		"plan":        plan,
		"fingerprint": strategy.Fingerprint(plan),
	})
}

// handleCounts reads current per-step counts, forcing a refetch first when asked.
func (s *StratagemServer) handleCounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.counts == nil {
		return mcp.NewToolResultError("count service is not configured"), nil
	}

	if req.GetString("refresh", "") == "true" {
		st, err := s.resolveStrategy(ctx, req.GetString("strategy_id", ""))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("strategy lookup failed: %v", err)), nil
		}
		s.counts.ForceRefresh(ctx, st)
	}

	return marshalResult(map[string]any{"counts": s.counts.Counts()})
}

// handlePreview runs a step's filter expression against a sample record, so
// an agent can check what a transform step would keep before relying on it.
func (s *StratagemServer) handlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.filters == nil {
		return mcp.NewToolResultError("filter engines are not configured"), nil
	}

	stepID, err := req.RequireString("step_id")
	if err != nil {
		return mcp.NewToolResultError("step_id is required"), nil
	}

	st, err := s.resolveStrategy(ctx, req.GetString("strategy_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("strategy lookup failed: %v", err)), nil
	}
	step := st.Step(stepID)
	if step == nil {
		return mcp.NewToolResultError(fmt.Sprintf("step %s not found", stepID)), nil
	}

	record := mcp.ParseStringMap(req, "record", nil)
	matched, evalErr := s.filters.FilterRecord(ctx, step, record)
	if evalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("filter evaluation failed: %v", evalErr)), nil
	}

	return marshalResult(map[string]any{
		"step_id": stepID,
		"matched": matched,
	})
}

// handleSave persists the live graph and records its saved baseline.
func (s *StratagemServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.liveStrategy()
	if st == nil {
		return mcp.NewToolResultError("no live strategy to save"), nil
	}

	if s.validator != nil {
		if valErr := s.validator.ValidateStrategy(st); valErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("strategy is not valid: %v", valErr)), nil
		}
	}

	if st.ID == "" {
		st.ID = uuid.New().String()
	}

	name := req.GetString("name", "")
	description := req.GetString("description", "")
	siteID := req.GetString("site_id", "")

	created, err := s.upsertStrategy(ctx, st, name, description, siteID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to persist strategy: %v", err)), nil
	}

	if s.tracker != nil {
		s.tracker.MarkSaved(st)
		if blErr := s.store.SaveBaseline(ctx, st.ID, s.tracker.Baseline()); blErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("strategy saved but baseline write failed: %v", blErr)), nil
		}
	}

	if layout := mcp.ParseStringMap(req, "layout", nil); len(layout) > 0 {
		data, layoutErr := json.Marshal(layout)
		if layoutErr == nil {
			layoutErr = s.store.SaveLayout(ctx, st.ID, data)
		}
		if layoutErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("strategy saved but layout write failed: %v", layoutErr)), nil
		}
	}

	return marshalResult(map[string]any{
		"strategy_id": st.ID,
		"created":     created,
		"steps":       len(st.Order),
	})
}

// handleDelete removes a stored strategy; its baseline and layout rows
// cascade with it. The event log is kept as history.
func (s *StratagemServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	strategyID, err := req.RequireString("strategy_id")
	if err != nil {
		return mcp.NewToolResultError("strategy_id is required"), nil
	}

	if delErr := s.store.DeleteStrategy(ctx, strategyID); delErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete strategy: %v", delErr)), nil
	}

	return marshalResult(map[string]any{
		"strategy_id": strategyID,
		"deleted":     true,
	})
}

// handleQuery lists strategies or stream events based on filters.
func (s *StratagemServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "strategies":
		return s.queryStrategies(ctx, filter)
	case "events":
		return s.queryEvents(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *StratagemServer) queryStrategies(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	sf := store.StrategyFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if siteID, ok := filter["site_id"].(string); ok {
		sf.SiteID = siteID
	}
	if recordType, ok := filter["record_type"].(string); ok {
		sf.RecordType = recordType
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			sf.Since = &t
		}
	}

	records, err := s.store.ListStrategies(ctx, sf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"strategies": records})
}

func (s *StratagemServer) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	ef := store.StreamEventFilter{
		Limit: extractInt(filter, "limit", 100),
	}
	if strategyID, ok := filter["strategy_id"].(string); ok {
		ef.StrategyID = strategyID
	}
	eventType, _ := filter["event_type"].(string)
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			ef.Since = &t
		}
	}

	if eventType != "" {
		events, err := s.store.GetEventsByType(ctx, eventType, ef)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"events": events})
	}

	// No event type filter, use the per-strategy log (requires strategy_id).
	if ef.StrategyID == "" {
		return mcp.NewToolResultError("event query requires either 'event_type' or 'strategy_id' in filter"), nil
	}
	events, err := s.store.GetEvents(ctx, ef.StrategyID, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"events": events})
}

// --- Internal helpers ---

// resolveStrategy fetches a stored strategy by ID, or falls back to the live
// session graph when the ID is empty.
func (s *StratagemServer) resolveStrategy(ctx context.Context, strategyID string) (*schema.Strategy, error) {
	if strategyID == "" {
		if st := s.liveStrategy(); st != nil {
			return st, nil
		}
		return nil, schema.NewError(schema.ErrCodeNotFound, "no live strategy in session")
	}

	rec, err := s.store.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if rec.Definition == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "strategy %s has no definition", strategyID)
	}
	return rec.Definition, nil
}

func (s *StratagemServer) liveStrategy() *schema.Strategy {
	if s.live == nil {
		return nil
	}
	return s.live()
}

// upsertStrategy updates an existing record or creates a new one. Reports
// whether a new record was created.
func (s *StratagemServer) upsertStrategy(ctx context.Context, st *schema.Strategy, name, description, siteID string) (bool, error) {
	if _, err := s.store.GetStrategy(ctx, st.ID); err == nil {
		update := store.StrategyUpdate{Definition: st}
		if name != "" {
			update.Name = &name
		}
		if description != "" {
			update.Description = &description
		}
		return false, s.store.UpdateStrategy(ctx, st.ID, update)
	}

	now := time.Now().UTC()
	rec := &store.StrategyRecord{
		ID:          st.ID,
		Name:        name,
		Description: description,
		SiteID:      siteID,
		RecordType:  st.RecordType,
		Definition:  st,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return true, s.store.CreateStrategy(ctx, rec)
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
