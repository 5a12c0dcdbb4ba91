package dispatch

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// parsePayload opportunistically parses a record's data as structured JSON.
// Malformed-but-close payloads (truncated deltas, single quotes, trailing
// commas) go through a repair pass first. When nothing parses, the raw text
// is kept rather than dropped: parse errors are never fatal.
func parsePayload(data string) (any, bool) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return nil, false
	}

	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out, true
	}

	// Only attempt repair on things that look structural.
	if !strings.ContainsAny(trimmed, "{[") {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, false
	}
	return out, true
}

// decodePayload parses data into a typed struct, tolerating repairable JSON.
func decodePayload(data string, v any) bool {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return false
	}
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return true
	}
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(repaired), v) == nil
}

// asString extracts a string field from a loosely-parsed payload map.
func asString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// asMap narrows a loosely-parsed payload to a map, or nil.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
