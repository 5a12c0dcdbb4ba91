// Package dispatch classifies raw stream records into a closed set of typed
// event variants. Classification is a pure function: no side effects, total
// over all inputs, with unknown record types degrading to Passthrough.
package dispatch

import "github.com/rendis/stratagem/pkg/schema"

// Dispatch maps one raw record to exactly one typed variant.
func Dispatch(rec schema.StreamRecord) Event {
	switch rec.Type {
	case schema.RecordMessageStart:
		var e MessageStart
		decodePayload(rec.Data, &e)
		return e

	case schema.RecordAssistantDelta:
		return AssistantDelta(textPayload(rec.Data))

	case schema.RecordAssistantMessage:
		return AssistantMessage(textPayload(rec.Data))

	case schema.RecordToolCallStart:
		var e ToolCallStart
		decodePayload(rec.Data, &e)
		return e

	case schema.RecordToolCallEnd:
		var e ToolCallEnd
		decodePayload(rec.Data, &e)
		return e

	case schema.RecordSubtaskStart:
		var e SubtaskStart
		decodePayload(rec.Data, &e)
		return e

	case schema.RecordSubtaskToolCallStart:
		var e SubtaskToolCallStart
		decodePayload(rec.Data, &e)
		return e

	case schema.RecordSubtaskToolCallEnd:
		var e SubtaskToolCallEnd
		decodePayload(rec.Data, &e)
		return e

	case schema.RecordSubtaskEnd:
		var e SubtaskEnd
		decodePayload(rec.Data, &e)
		return e

	case schema.RecordStrategyUpdate, schema.RecordGraphSnapshot:
		return dispatchGraph(rec)

	case schema.RecordStrategyLink:
		var e StrategyLink
		decodePayload(rec.Data, &e)
		return e

	case schema.RecordStrategyMeta:
		var e StrategyMeta
		decodePayload(rec.Data, &e)
		return e

	case schema.RecordStrategyCleared:
		var e StrategyCleared
		if !decodePayload(rec.Data, &e) {
			// A bare id payload is accepted as the target graph id.
			e.StrategyID = rec.Data
		}
		return e

	case schema.RecordPlanningArtifact:
		payload, _ := parsePayload(rec.Data)
		return PlanningArtifact{Payload: payload, Raw: rec.Data}

	case schema.RecordExecutorBuildRequest:
		payload, _ := parsePayload(rec.Data)
		return ExecutorBuildRequest{Payload: payload, Raw: rec.Data}

	case schema.RecordCitations:
		payload, _ := parsePayload(rec.Data)
		return Citations{Payload: payload, Raw: rec.Data}

	case schema.RecordReasoning:
		t := textPayload(rec.Data)
		return Reasoning{Text: t.Text}

	case schema.RecordPlanUpdate:
		payload, _ := parsePayload(rec.Data)
		return PlanUpdate{Payload: payload, Raw: rec.Data}

	case schema.RecordError:
		payload, ok := parsePayload(rec.Data)
		msg := rec.Data
		if ok {
			if m := asMap(payload); m != nil {
				if s := asString(m, "message"); s != "" {
					msg = s
				}
			}
		}
		return ErrorEvent{Message: msg, Payload: payload}

	default:
		payload, _ := parsePayload(rec.Data)
		return Passthrough{RawType: rec.Type, Payload: payload, Raw: rec.Data}
	}
}

// dispatchGraph parses a full-graph replacement payload. A payload that does
// not parse still yields a GraphReplace variant carrying the raw text.
func dispatchGraph(rec schema.StreamRecord) GraphReplace {
	e := GraphReplace{Record: rec.Type, Raw: rec.Data}

	var p GraphPayload
	if decodePayload(rec.Data, &p) && (p.ID != "" || len(p.Steps) > 0) {
		e.StrategyID = p.ID
		e.Strategy = p.ToStrategy()
	}
	return e
}

// textMessage is the common {message_id, text} payload shape. Plain-text
// payloads degrade to the full data string as text.
type textMessage struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

func textPayload(data string) textMessage {
	var m textMessage
	if decodePayload(data, &m) && m.Text != "" {
		return m
	}
	return textMessage{Text: data}
}
