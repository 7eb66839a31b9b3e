package core

import "encoding/json"

// ToolCall is the middleware's canonical tool-call shape: the id is an
// opaque token minted on emission, and Input is always the canonical
// JSON encoding of the coerced argument object. It is distinct from
// types.ToolCall (whose Arguments field is a decoded map) because the
// core always hands callers a single canonical string form.
type ToolCall struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Input      string `json:"input"`
}

// PartType identifies the concrete kind of a ContentPart.
type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeReasoning  PartType = "reasoning"
	PartTypeToolCall   PartType = "tool-call"
	PartTypeToolResult PartType = "tool-result"
	PartTypeFile       PartType = "file"
)

// ContentPart is the sum type produced by the generate-side extractor:
// Text | Reasoning | ToolCall | ToolResult | File.
type ContentPart interface {
	PartType() PartType
}

// TextPart is a plain text content part.
type TextPart struct {
	Text string
}

func (TextPart) PartType() PartType { return PartTypeText }

// ReasoningPart carries model "thinking" text, kept separate from ordinary
// text output.
type ReasoningPart struct {
	Text string
}

func (ReasoningPart) PartType() PartType { return PartTypeReasoning }

// ToolCallPart wraps one recognised tool call.
type ToolCallPart struct {
	ToolCallID string
	ToolName   string
	Input      string
}

func (ToolCallPart) PartType() PartType { return PartTypeToolCall }

// ToolResultPart carries the rendered result of a prior tool call, used when
// rewriting conversation history.
type ToolResultPart struct {
	ToolCallID string
	ToolName   string
	Output     ToolResultOutput
}

func (ToolResultPart) PartType() PartType { return PartTypeToolResult }

// FilePart is an opaque file/binary content part, passed through unchanged.
type FilePart struct {
	MediaType string
	Data      interface{}
}

func (FilePart) PartType() PartType { return PartTypeFile }

// ToolResultOutputKind distinguishes the six tool-result-output variants.
type ToolResultOutputKind string

const (
	ToolResultOutputKindText            ToolResultOutputKind = "text"
	ToolResultOutputKindJSON            ToolResultOutputKind = "json"
	ToolResultOutputKindContent         ToolResultOutputKind = "content"
	ToolResultOutputKindExecutionDenied ToolResultOutputKind = "execution-denied"
	ToolResultOutputKindErrorText       ToolResultOutputKind = "error-text"
	ToolResultOutputKindErrorJSON       ToolResultOutputKind = "error-json"
)

// ToolResultOutput is the sum type carried by ToolResultPart, mirroring
// spec.md §3's Text|Json|Content|ExecutionDenied|ErrorText|ErrorJson.
type ToolResultOutput struct {
	Kind    ToolResultOutputKind
	Text    string        // set for Text, ExecutionDenied(reason), ErrorText
	Value   interface{}   // set for Json, ErrorJson
	Content []ContentPart // set for Content
}

// EventType identifies the concrete kind of a streaming Event.
type EventType string

const (
	EventTypeTextDelta      EventType = "text-delta"
	EventTypeToolInputStart EventType = "tool-input-start"
	EventTypeToolInputDelta EventType = "tool-input-delta"
	EventTypeToolInputEnd   EventType = "tool-input-end"
	EventTypeToolCall       EventType = "tool-call"
	EventTypeReasoningDelta EventType = "reasoning-delta"
	EventTypeFinishStep     EventType = "finish-step"
	EventTypeFinish         EventType = "finish"
	EventTypeError          EventType = "error"
)

// Event is the streaming extractor's output, a single struct carrying a
// Type field plus the payload fields relevant to that type — mirroring
// provider.StreamChunk's single-struct-with-Type-field idiom rather than a
// Go interface, since the teacher already models streaming chunks this way.
type Event struct {
	Type EventType

	// ID groups a ToolInputStart/Delta/End triple and the terminal ToolCall;
	// also used as the id on TextDelta/ReasoningDelta for ordering.
	ID string

	Delta    string // TextDelta.delta, ToolInputDelta.delta, ReasoningDelta.delta
	ToolName string // ToolInputStart.toolName, ToolCall.toolName
	Input    string // ToolCall.input (canonical JSON)

	FinishReason string // FinishStep.reason, Finish.reason
	Err          error  // Error.error
}

// MarshalDebugToolCalls renders a slice of ToolCall as the JSON array shape
// the debug sidecar (spec.md §6) documents: [{toolName, input}].
func MarshalDebugToolCalls(calls []ToolCall) (string, error) {
	type entry struct {
		ToolName string `json:"toolName"`
		Input    string `json:"input"`
	}
	entries := make([]entry, len(calls))
	for i, c := range calls {
		entries[i] = entry{ToolName: c.ToolName, Input: c.Input}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
