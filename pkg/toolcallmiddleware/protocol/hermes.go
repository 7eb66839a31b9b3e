package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/schema"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
)

const (
	hermesOpenTag  = "<tool_call>"
	hermesCloseTag = "</tool_call>"
)

type hermesProtocol struct{}

// NewHermesProtocol returns the Hermes protocol: a call region is
// `<tool_call>{"name":...,"arguments":{...}}</tool_call>`. Grounded on
// other_examples' epheien-llm-api-relay toolcallfix transform, which
// buffers exactly this tag pair around a JSON-ish payload, generalised here
// from its flat arg_key/arg_value shape to a full JSON object body.
func NewHermesProtocol() Protocol {
	return hermesProtocol{}
}

func (hermesProtocol) Name() string { return "hermes" }

func (hermesProtocol) FormatTools(tools []types.Tool, systemTemplate string) string {
	var b strings.Builder
	if systemTemplate != "" {
		b.WriteString(systemTemplate)
		b.WriteString("\n\n")
	} else {
		b.WriteString("You have access to the following tools. To call a tool, respond with:\n")
		b.WriteString(hermesOpenTag + `{"name":"<tool name>","arguments":{...}}` + hermesCloseTag + "\n\n")
		b.WriteString("Tools:\n")
	}
	for _, tool := range tools {
		def := map[string]interface{}{
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.Parameters,
		}
		encoded, _ := json.Marshal(def)
		b.Write(encoded)
		b.WriteString("\n")
	}
	return b.String()
}

func (hermesProtocol) FormatToolCall(call core.ToolCall) string {
	var args interface{}
	if call.Input != "" {
		_ = json.Unmarshal([]byte(call.Input), &args)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	payload := map[string]interface{}{"name": call.ToolName, "arguments": args}
	encoded, _ := json.Marshal(payload)
	return hermesOpenTag + string(encoded) + hermesCloseTag
}

func (hermesProtocol) FormatToolResponse(result ToolResult) string {
	return "<tool_response>" + renderToolResponseBody(result) + "</tool_response>"
}

func renderToolResponseBody(result ToolResult) string {
	payload := map[string]interface{}{"name": result.ToolName}
	switch result.Output.Kind {
	case core.ToolResultOutputKindText:
		payload["content"] = result.Output.Text
	case core.ToolResultOutputKindJSON:
		payload["content"] = result.Output.Value
	case core.ToolResultOutputKindContent:
		payload["content"] = renderContentParts(result.Output.Content)
	case core.ToolResultOutputKindExecutionDenied:
		encoded, _ := json.Marshal(payload)
		return fmt.Sprintf(`%s [execution denied: %s]`, string(encoded[:len(encoded)-1]), result.Output.Text)
	case core.ToolResultOutputKindErrorText:
		payload["error"] = result.Output.Text
	case core.ToolResultOutputKindErrorJSON:
		payload["error"] = result.Output.Value
	default:
		payload["content"] = nil
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func renderContentParts(parts []core.ContentPart) []interface{} {
	out := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case core.TextPart:
			out = append(out, v.Text)
		default:
			out = append(out, p)
		}
	}
	return out
}

func (h hermesProtocol) ParseGeneratedText(text string, tools []types.Tool, options ParseOptions) []core.ContentPart {
	var parts []core.ContentPart
	remaining := text

	for {
		startIdx := strings.Index(remaining, hermesOpenTag)
		if startIdx == -1 {
			if len(remaining) > 0 {
				parts = append(parts, core.TextPart{Text: remaining})
			}
			break
		}
		if startIdx > 0 {
			parts = append(parts, core.TextPart{Text: remaining[:startIdx]})
		}
		afterOpen := remaining[startIdx+len(hermesOpenTag):]

		endIdx := strings.Index(afterOpen, hermesCloseTag)
		if endIdx == -1 {
			// No closing marker anywhere: the rest is ambiguous, emit as
			// text; the generate extractor's JSON-recovery fallback gets a
			// chance to still find a call in it.
			parts = append(parts, core.TextPart{Text: remaining[startIdx:]})
			break
		}

		body := afterOpen[:endIdx]
		part, ok := h.parseCallBody(body, tools, options)
		if ok {
			parts = append(parts, part)
		} else {
			if options.OnError != nil {
				options.OnError("hermes: malformed tool call body", map[string]interface{}{"body": body})
			}
			parts = append(parts, core.TextPart{Text: hermesOpenTag + body + hermesCloseTag})
		}

		remaining = afterOpen[endIdx+len(hermesCloseTag):]
	}

	return parts
}

func (hermesProtocol) parseCallBody(body string, tools []types.Tool, options ParseOptions) (core.ToolCallPart, bool) {
	obj, _, ok := core.LocateJSONObject(body)
	if !ok {
		return core.ToolCallPart{}, false
	}
	name, _ := obj["name"].(string)
	if name == "" {
		return core.ToolCallPart{}, false
	}
	args := obj["arguments"]
	if args == nil {
		args = map[string]interface{}{}
	}
	if tool := findTool(tools, name); tool != nil {
		args = schema.Coerce(args, tool.Parameters)
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return core.ToolCallPart{}, false
	}
	return core.ToolCallPart{
		ToolCallID: NewToolCallID(),
		ToolName:   name,
		Input:      string(encoded),
	}, true
}

func (h hermesProtocol) ExtractToolCallSegments(text string, tools []types.Tool) []string {
	var segments []string
	remaining := text
	for {
		startIdx := strings.Index(remaining, hermesOpenTag)
		if startIdx == -1 {
			break
		}
		afterOpen := remaining[startIdx+len(hermesOpenTag):]
		endIdx := strings.Index(afterOpen, hermesCloseTag)
		if endIdx == -1 {
			break
		}
		segments = append(segments, hermesOpenTag+afterOpen[:endIdx]+hermesCloseTag)
		remaining = afterOpen[endIdx+len(hermesCloseTag):]
	}
	return segments
}

// hermesStreamState tracks the current call's buffered JSON body and the
// call id assigned when the opening tag was consumed.
type hermesStreamState struct {
	buffer string
	inside bool
	callID string
}

func (hermesProtocol) NewStreamState() StreamState {
	return &hermesStreamState{}
}

func (h hermesProtocol) ParseStreamChunk(stateRaw StreamState, chunk string, tools []types.Tool, options ParseOptions) []core.Event {
	state := stateRaw.(*hermesStreamState)
	state.buffer += chunk
	var events []core.Event

	for {
		if !state.inside {
			idx := core.EarliestIndex(state.buffer, hermesOpenTag)
			if idx == -1 {
				if len(state.buffer) > 0 {
					events = append(events, core.Event{Type: core.EventTypeTextDelta, Delta: state.buffer})
					state.buffer = ""
				}
				break
			}
			if idx > 0 {
				events = append(events, core.Event{Type: core.EventTypeTextDelta, Delta: state.buffer[:idx]})
			}
			fullMatch := idx+len(hermesOpenTag) <= len(state.buffer)
			if !fullMatch {
				state.buffer = state.buffer[idx:]
				break
			}
			state.buffer = state.buffer[idx+len(hermesOpenTag):]
			state.inside = true
			state.callID = NewToolCallID()
			// Hermes names the tool inside the JSON body, so tool-input-start
			// is deferred until the body is fully parsed, matching §4.5's
			// "defer ToolInputStart until toolName is known" guidance.
			continue
		}

		idx := core.EarliestIndex(state.buffer, hermesCloseTag)
		if idx == -1 {
			// Keep buffering silently: we can't safely emit deltas before we
			// know the tool name (and hence the call id's first event).
			break
		}
		fullMatch := idx+len(hermesCloseTag) <= len(state.buffer)
		if !fullMatch {
			break
		}
		body := state.buffer[:idx]
		state.buffer = state.buffer[idx+len(hermesCloseTag):]
		state.inside = false

		part, ok := h.parseCallBody(body, tools, options)
		if !ok {
			if options.OnError != nil {
				options.OnError("hermes: malformed tool call body", map[string]interface{}{"body": body})
			}
			events = append(events, core.Event{Type: core.EventTypeTextDelta, Delta: hermesOpenTag + body + hermesCloseTag})
			continue
		}
		events = append(events,
			core.Event{Type: core.EventTypeToolInputStart, ID: state.callID, ToolName: part.ToolName},
			core.Event{Type: core.EventTypeToolInputDelta, ID: state.callID, Delta: part.Input},
			core.Event{Type: core.EventTypeToolInputEnd, ID: state.callID},
			core.Event{Type: core.EventTypeToolCall, ID: state.callID, ToolName: part.ToolName, Input: part.Input},
		)
	}

	return events
}

func (hermesProtocol) Flush(stateRaw StreamState, options ParseOptions) []core.Event {
	state := stateRaw.(*hermesStreamState)
	if state.buffer == "" {
		return nil
	}
	if options.OnError != nil {
		options.OnError("hermes: stream finished with an unterminated region", map[string]interface{}{"buffer": state.buffer})
	}
	remaining := state.buffer
	if state.inside {
		remaining = hermesOpenTag + remaining
	}
	state.buffer = ""
	return []core.Event{{Type: core.EventTypeTextDelta, Delta: remaining}}
}

func findTool(tools []types.Tool, name string) *types.Tool {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}
