package schema

// StreamRecord is one raw item of the inbound agent event stream.
// Data is an opaque payload string, opportunistically parsed downstream.
type StreamRecord struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Stream record type constants. The set is closed on the client side; any
// type outside it degrades to a passthrough variant, never an error.
const (
	RecordMessageStart     = "message_start"
	RecordAssistantDelta   = "assistant_delta"
	RecordAssistantMessage = "assistant_message"

	RecordToolCallStart = "tool_call_start"
	RecordToolCallEnd   = "tool_call_end"

	RecordSubtaskStart         = "subkani_task_start"
	RecordSubtaskToolCallStart = "subkani_tool_call_start"
	RecordSubtaskToolCallEnd   = "subkani_tool_call_end"
	RecordSubtaskEnd           = "subkani_task_end"

	RecordStrategyUpdate  = "strategy_update"
	RecordGraphSnapshot   = "graph_snapshot"
	RecordStrategyLink    = "strategy_link"
	RecordStrategyMeta    = "strategy_meta"
	RecordStrategyCleared = "strategy_cleared"

	RecordPlanningArtifact     = "planning_artifact"
	RecordExecutorBuildRequest = "executor_build_request"

	RecordCitations  = "citations"
	RecordReasoning  = "reasoning"
	RecordPlanUpdate = "plan_update"
	RecordError      = "error"
)
