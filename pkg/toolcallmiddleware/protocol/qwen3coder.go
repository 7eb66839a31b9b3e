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
	qwenOpenTag  = "<tool_call>"
	qwenCloseTag = "</tool_call>"
)

type qwen3CoderProtocol struct{}

// NewQwen3CoderProtocol returns the Qwen3-Coder protocol: a call region is
// `<tool_call><function=NAME><parameter=KEY>VALUE</parameter>...</function></tool_call>`,
// parsed with the shared tolerant XML scaffold (core.ParseXMLElement) since
// Qwen3-Coder's "tag name" carries its payload after an '=', which
// encoding/xml has no notion of.
func NewQwen3CoderProtocol() Protocol {
	return qwen3CoderProtocol{}
}

func (qwen3CoderProtocol) Name() string { return "qwen3-coder" }

func (qwen3CoderProtocol) FormatTools(tools []types.Tool, systemTemplate string) string {
	var b strings.Builder
	if systemTemplate != "" {
		b.WriteString(systemTemplate)
		b.WriteString("\n\n")
	} else {
		b.WriteString("You have access to the following tools. To call a tool, respond with:\n")
		b.WriteString("<tool_call><function=NAME><parameter=KEY>VALUE</parameter></function></tool_call>\n\n")
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

func (qwen3CoderProtocol) FormatToolCall(call core.ToolCall) string {
	var args map[string]interface{}
	if call.Input != "" {
		_ = json.Unmarshal([]byte(call.Input), &args)
	}
	var b strings.Builder
	b.WriteString(qwenOpenTag)
	fmt.Fprintf(&b, "<function=%s>", call.ToolName)
	for _, key := range sortedKeys(args) {
		fmt.Fprintf(&b, "<parameter=%s>%s</parameter>", key, valueToPlainText(args[key]))
	}
	b.WriteString("</function>")
	b.WriteString(qwenCloseTag)
	return b.String()
}

func (qwen3CoderProtocol) FormatToolResponse(result ToolResult) string {
	return "<tool_response>" + renderToolResponseBody(result) + "</tool_response>"
}

func (q qwen3CoderProtocol) ParseGeneratedText(text string, tools []types.Tool, options ParseOptions) []core.ContentPart {
	var parts []core.ContentPart
	remaining := text

	for {
		startIdx := strings.Index(remaining, qwenOpenTag)
		if startIdx == -1 {
			if len(remaining) > 0 {
				parts = append(parts, core.TextPart{Text: remaining})
			}
			break
		}
		if startIdx > 0 {
			parts = append(parts, core.TextPart{Text: remaining[:startIdx]})
		}
		afterOpen := remaining[startIdx+len(qwenOpenTag):]
		endIdx := strings.Index(afterOpen, qwenCloseTag)
		if endIdx == -1 {
			parts = append(parts, core.TextPart{Text: remaining[startIdx:]})
			break
		}

		region := qwenOpenTag + afterOpen[:endIdx] + qwenCloseTag
		part, ok := q.parseCallRegion(region, tools, options)
		if ok {
			parts = append(parts, part)
		} else {
			if options.OnError != nil {
				options.OnError("qwen3-coder: malformed tool call region", map[string]interface{}{"region": region})
			}
			parts = append(parts, core.TextPart{Text: region})
		}
		remaining = afterOpen[endIdx+len(qwenCloseTag):]
	}

	return parts
}

func (qwen3CoderProtocol) parseCallRegion(region string, tools []types.Tool, options ParseOptions) (core.ToolCallPart, bool) {
	root, ok := core.ParseXMLElement(region)
	if !ok {
		return core.ToolCallPart{}, false
	}
	functionEl := root.Child("function")
	if functionEl == nil {
		return core.ToolCallPart{}, false
	}
	name, ok := functionEl.TagValue()
	if !ok || name == "" {
		return core.ToolCallPart{}, false
	}

	var tool *types.Tool = findTool(tools, name)
	var properties map[string]interface{}
	if tool != nil {
		if schemaMap, ok := tool.Parameters.(map[string]interface{}); ok {
			if props, ok := schemaMap["properties"].(map[string]interface{}); ok {
				properties = props
			}
		}
	}

	args := make(map[string]interface{}, len(functionEl.Children))
	for _, paramEl := range functionEl.Children {
		key, ok := paramEl.TagValue()
		if !ok || key == "" {
			continue
		}
		text := strings.TrimSpace(paramEl.Text)
		raw := interface{}(text)
		if len(text) > 0 && (text[0] == '[' || text[0] == '{') {
			var parsed interface{}
			if err := json.Unmarshal([]byte(text), &parsed); err == nil {
				raw = parsed
			}
		}
		if propSchema, ok := properties[key]; ok {
			raw = schema.Coerce(raw, propSchema)
		} else {
			raw = coerceLooseBoolean(raw)
		}
		args[key] = raw
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

// coerceLooseBoolean tolerates Qwen3-Coder's "True"/"False" capitalised
// literals even when no schema is available to drive coercion.
func coerceLooseBoolean(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "True", "true":
		return true
	case "False", "false":
		return false
	}
	return v
}

func (q qwen3CoderProtocol) ExtractToolCallSegments(text string, tools []types.Tool) []string {
	var segments []string
	remaining := text
	for {
		startIdx := strings.Index(remaining, qwenOpenTag)
		if startIdx == -1 {
			break
		}
		afterOpen := remaining[startIdx+len(qwenOpenTag):]
		endIdx := strings.Index(afterOpen, qwenCloseTag)
		if endIdx == -1 {
			break
		}
		segments = append(segments, qwenOpenTag+afterOpen[:endIdx]+qwenCloseTag)
		remaining = afterOpen[endIdx+len(qwenCloseTag):]
	}
	return segments
}

type qwenStreamState struct {
	buffer string
	inside bool
}

func (qwen3CoderProtocol) NewStreamState() StreamState {
	return &qwenStreamState{}
}

func (q qwen3CoderProtocol) ParseStreamChunk(stateRaw StreamState, chunk string, tools []types.Tool, options ParseOptions) []core.Event {
	state := stateRaw.(*qwenStreamState)
	state.buffer += chunk
	var events []core.Event

	for {
		if !state.inside {
			idx := core.EarliestIndex(state.buffer, qwenOpenTag)
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
			if idx+len(qwenOpenTag) > len(state.buffer) {
				state.buffer = state.buffer[idx:]
				break
			}
			state.buffer = state.buffer[idx:]
			state.inside = true
			continue
		}

		idx := core.EarliestIndex(state.buffer, qwenCloseTag)
		if idx == -1 {
			break
		}
		if idx+len(qwenCloseTag) > len(state.buffer) {
			break
		}
		region := state.buffer[:idx+len(qwenCloseTag)]
		state.buffer = state.buffer[idx+len(qwenCloseTag):]
		state.inside = false

		part, ok := q.parseCallRegion(region, tools, options)
		if !ok {
			if options.OnError != nil {
				options.OnError("qwen3-coder: malformed tool call region", map[string]interface{}{"region": region})
			}
			events = append(events, core.Event{Type: core.EventTypeTextDelta, Delta: region})
			continue
		}
		callID := NewToolCallID()
		events = append(events,
			core.Event{Type: core.EventTypeToolInputStart, ID: callID, ToolName: part.ToolName},
			core.Event{Type: core.EventTypeToolInputDelta, ID: callID, Delta: part.Input},
			core.Event{Type: core.EventTypeToolInputEnd, ID: callID},
			core.Event{Type: core.EventTypeToolCall, ID: callID, ToolName: part.ToolName, Input: part.Input},
		)
	}

	return events
}

func (qwen3CoderProtocol) Flush(stateRaw StreamState, options ParseOptions) []core.Event {
	state := stateRaw.(*qwenStreamState)
	if state.buffer == "" {
		return nil
	}
	if options.OnError != nil {
		options.OnError("qwen3-coder: stream finished with an unterminated region", map[string]interface{}{"buffer": state.buffer})
	}
	remaining := state.buffer
	state.buffer = ""
	return []core.Event{{Type: core.EventTypeTextDelta, Delta: remaining}}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func valueToPlainText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(encoded)
	}
}
