package protocol

import (
	"encoding/json"
	"strings"

	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/schema"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
	"gopkg.in/yaml.v3"
)

type yamlXMLProtocol struct{}

// NewYAMLXMLProtocol returns the YAML-in-XML protocol: a call region is
// `<toolName>\nkey: value\n</toolName>`, the element located with the same
// tolerant scaffold morph-XML uses, its body decoded as a YAML document
// (gopkg.in/yaml.v3, already pulled in by the teacher's indirect closure)
// rather than re-parsed as nested XML.
func NewYAMLXMLProtocol() Protocol {
	return yamlXMLProtocol{}
}

func (yamlXMLProtocol) Name() string { return "yaml-xml" }

func (yamlXMLProtocol) FormatTools(tools []types.Tool, systemTemplate string) string {
	var b strings.Builder
	if systemTemplate != "" {
		b.WriteString(systemTemplate)
		b.WriteString("\n\n")
	} else {
		b.WriteString("You have access to the following tools. To call a tool, respond with:\n")
		b.WriteString("<toolName>\nkey: value\n</toolName>\n\n")
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

func (yamlXMLProtocol) FormatToolCall(call core.ToolCall) string {
	var args map[string]interface{}
	if call.Input != "" {
		_ = json.Unmarshal([]byte(call.Input), &args)
	}
	if len(args) == 0 {
		return "<" + call.ToolName + "></" + call.ToolName + ">"
	}
	encoded, err := yaml.Marshal(args)
	if err != nil {
		return "<" + call.ToolName + "></" + call.ToolName + ">"
	}
	return "<" + call.ToolName + ">\n" + string(encoded) + "</" + call.ToolName + ">"
}

func (yamlXMLProtocol) FormatToolResponse(result ToolResult) string {
	return "<tool_response>" + renderToolResponseBody(result) + "</tool_response>"
}

func (y yamlXMLProtocol) ParseGeneratedText(text string, tools []types.Tool, options ParseOptions) []core.ContentPart {
	var parts []core.ContentPart
	remaining := text

	for {
		startIdx, endIdx, ok := findEnclosingToolElement(remaining, tools)
		if !ok {
			if len(remaining) > 0 {
				parts = append(parts, core.TextPart{Text: remaining})
			}
			break
		}
		if startIdx > 0 {
			parts = append(parts, core.TextPart{Text: remaining[:startIdx]})
		}
		region := remaining[startIdx:endIdx]
		part, parseOK := y.parseCallRegion(region, tools, options)
		if parseOK {
			parts = append(parts, part)
		} else {
			if options.OnError != nil {
				options.OnError("yaml-xml: malformed tool call body", map[string]interface{}{"region": region})
			}
			parts = append(parts, core.TextPart{Text: region})
		}
		remaining = remaining[endIdx:]
	}

	return parts
}

func (yamlXMLProtocol) parseCallRegion(region string, tools []types.Tool, options ParseOptions) (core.ToolCallPart, bool) {
	root, ok := core.ParseXMLElement(region)
	if !ok {
		return core.ToolCallPart{}, false
	}
	name := root.TagName()
	if name == "" {
		return core.ToolCallPart{}, false
	}

	var parameters interface{}
	if tool := findTool(tools, name); tool != nil {
		parameters = tool.Parameters
	}

	body := root.Text
	var decoded interface{}
	if strings.TrimSpace(body) != "" {
		if err := yaml.Unmarshal([]byte(body), &decoded); err != nil {
			if options.OnError != nil {
				options.OnError("yaml-xml: invalid YAML body", map[string]interface{}{"body": body, "error": err.Error()})
			}
			decoded = map[string]interface{}{}
		}
	}
	args := jsonify(decoded)
	if parameters != nil {
		args = schema.Coerce(args, parameters)
	}
	if args == nil {
		args = map[string]interface{}{}
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

// jsonify converts yaml.v3's decoded tree (which can produce
// map[interface{}]interface{} on older decode paths) into plain
// map[string]interface{}/[]interface{}, matching JSON's shape so the
// schema coercion engine can work uniformly.
func jsonify(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = jsonify(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[toStringKey(k)] = jsonify(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = jsonify(val)
		}
		return out
	default:
		return t
	}
}

func toStringKey(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	encoded, _ := json.Marshal(v)
	return string(encoded)
}

func (y yamlXMLProtocol) ExtractToolCallSegments(text string, tools []types.Tool) []string {
	var segments []string
	remaining := text
	for {
		startIdx, endIdx, ok := findEnclosingToolElement(remaining, tools)
		if !ok {
			break
		}
		segments = append(segments, remaining[startIdx:endIdx])
		remaining = remaining[endIdx:]
	}
	return segments
}

func (yamlXMLProtocol) Flush(stateRaw StreamState, options ParseOptions) []core.Event {
	state := stateRaw.(*yamlStreamState)
	if state.buffer == "" {
		return nil
	}
	remaining := state.buffer
	state.buffer = ""
	if strings.Contains(remaining, "<") && options.OnError != nil {
		options.OnError("yaml-xml: stream finished with an unterminated region", map[string]interface{}{"buffer": remaining})
	}
	return []core.Event{{Type: core.EventTypeTextDelta, Delta: remaining}}
}

type yamlStreamState struct {
	buffer string
}

func (yamlXMLProtocol) NewStreamState() StreamState {
	return &yamlStreamState{}
}

func (y yamlXMLProtocol) ParseStreamChunk(stateRaw StreamState, chunk string, tools []types.Tool, options ParseOptions) []core.Event {
	state := stateRaw.(*yamlStreamState)
	state.buffer += chunk
	var events []core.Event

	for {
		startIdx, endIdx, ok := findEnclosingToolElement(state.buffer, tools)
		if !ok {
			safe := len(state.buffer)
			for _, tool := range tools {
				marker := "<" + tool.Name
				if idx := core.EarliestIndex(state.buffer, marker); idx != -1 && idx < safe {
					safe = idx
				}
			}
			if safe > 0 {
				events = append(events, core.Event{Type: core.EventTypeTextDelta, Delta: state.buffer[:safe]})
				state.buffer = state.buffer[safe:]
			}
			break
		}
		if startIdx > 0 {
			events = append(events, core.Event{Type: core.EventTypeTextDelta, Delta: state.buffer[:startIdx]})
		}
		region := state.buffer[startIdx:endIdx]
		state.buffer = state.buffer[endIdx:]

		part, parseOK := y.parseCallRegion(region, tools, options)
		if !parseOK {
			if options.OnError != nil {
				options.OnError("yaml-xml: malformed tool call body", map[string]interface{}{"region": region})
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
