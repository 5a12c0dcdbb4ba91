package dispatch

import "github.com/rendis/stratagem/pkg/schema"

// Event is one typed variant of the inbound stream. Every raw record maps to
// exactly one Event; unrecognized types map to Passthrough, never to an error.
type Event interface {
	EventType() string
}

// MessageStart opens an agent exchange: strategy binding, session, auth.
type MessageStart struct {
	StrategyID string `json:"strategy_id"`
	SessionID  string `json:"session_id"`
	AuthToken  string `json:"auth_token"`
}

func (MessageStart) EventType() string { return schema.RecordMessageStart }

// AssistantDelta is an incremental chunk of assistant text.
type AssistantDelta struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

func (AssistantDelta) EventType() string { return schema.RecordAssistantDelta }

// AssistantMessage is a full (non-incremental) assistant message.
type AssistantMessage struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

func (AssistantMessage) EventType() string { return schema.RecordAssistantMessage }

// ToolCallStart marks the beginning of a tool invocation.
type ToolCallStart struct {
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (ToolCallStart) EventType() string { return schema.RecordToolCallStart }

// ToolCallEnd carries a tool invocation's result.
type ToolCallEnd struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Result any    `json:"result"`
}

func (ToolCallEnd) EventType() string { return schema.RecordToolCallEnd }

// SubtaskStart opens a labelled sub-task scope.
type SubtaskStart struct {
	TaskID string `json:"task_id"`
	Label  string `json:"label"`
}

func (SubtaskStart) EventType() string { return schema.RecordSubtaskStart }

// SubtaskToolCallStart is a tool invocation scoped under a sub-task.
type SubtaskToolCallStart struct {
	TaskID    string         `json:"task_id"`
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (SubtaskToolCallStart) EventType() string { return schema.RecordSubtaskToolCallStart }

// SubtaskToolCallEnd carries a sub-task tool invocation's result.
type SubtaskToolCallEnd struct {
	TaskID string `json:"task_id"`
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Result any    `json:"result"`
}

func (SubtaskToolCallEnd) EventType() string { return schema.RecordSubtaskToolCallEnd }

// SubtaskEnd closes a sub-task scope.
type SubtaskEnd struct {
	TaskID string `json:"task_id"`
	Label  string `json:"label"`
}

func (SubtaskEnd) EventType() string { return schema.RecordSubtaskEnd }

// GraphPayload is the wire shape of a graph replacement: steps arrive as an
// ordered array and are folded into the id-keyed model.
type GraphPayload struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	SiteID      string         `json:"site_id,omitempty"`
	RecordType  string         `json:"record_type,omitempty"`
	Steps       []*schema.Step `json:"steps"`
}

// ToStrategy converts the wire payload into the canonical model, preserving
// the array order as insertion order.
func (p *GraphPayload) ToStrategy() *schema.Strategy {
	st := schema.NewStrategy(p.ID)
	st.Name = p.Name
	st.Description = p.Description
	st.SiteID = p.SiteID
	st.RecordType = p.RecordType
	for _, s := range p.Steps {
		if s != nil && s.ID != "" {
			st.PutStep(s)
		}
	}
	return st
}

// GraphReplace is a full-graph replacement (strategy_update or
// graph_snapshot). Strategy is nil when the payload did not parse; Raw then
// carries the original text for diagnostics.
type GraphReplace struct {
	Record     string
	StrategyID string
	Strategy   *schema.Strategy
	Raw        string
}

func (e GraphReplace) EventType() string { return e.Record }

// StrategyLink carries external persistence identifiers.
type StrategyLink struct {
	StrategyID string `json:"strategy_id"`
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

func (StrategyLink) EventType() string { return schema.RecordStrategyLink }

// StrategyMeta carries display metadata for the live strategy.
type StrategyMeta struct {
	StrategyID  string `json:"strategy_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	RecordType  string `json:"record_type"`
}

func (StrategyMeta) EventType() string { return schema.RecordStrategyMeta }

// StrategyCleared signals that the strategy's step set should be emptied.
type StrategyCleared struct {
	StrategyID string `json:"strategy_id"`
}

func (StrategyCleared) EventType() string { return schema.RecordStrategyCleared }

// PlanningArtifact is a structured hand-off payload, opaque to this core.
type PlanningArtifact struct {
	Payload any
	Raw     string
}

func (PlanningArtifact) EventType() string { return schema.RecordPlanningArtifact }

// ExecutorBuildRequest is a structured hand-off payload, opaque to this core.
type ExecutorBuildRequest struct {
	Payload any
	Raw     string
}

func (ExecutorBuildRequest) EventType() string { return schema.RecordExecutorBuildRequest }

// Citations is auxiliary display data.
type Citations struct {
	Payload any
	Raw     string
}

func (Citations) EventType() string { return schema.RecordCitations }

// Reasoning is auxiliary reasoning text.
type Reasoning struct {
	Text string
}

func (Reasoning) EventType() string { return schema.RecordReasoning }

// PlanUpdate is auxiliary display data about the agent's plan.
type PlanUpdate struct {
	Payload any
	Raw     string
}

func (PlanUpdate) EventType() string { return schema.RecordPlanUpdate }

// ErrorEvent is an error surfaced by the backend inside the stream.
type ErrorEvent struct {
	Message string
	Payload any
}

func (ErrorEvent) EventType() string { return schema.RecordError }

// Passthrough preserves a record of unknown type unchanged: newer backend
// event kinds must never crash or be silently swallowed by an older client.
type Passthrough struct {
	RawType string
	Payload any
	Raw     string
}

func (e Passthrough) EventType() string { return e.RawType }
