package protocol

import (
	"encoding/json"
	"strings"

	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/schema"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
)

type morphXMLProtocol struct{}

// NewMorphXMLProtocol returns the morph-XML protocol: a call region is a
// single element named after the tool, `<toolName><key>value</key></toolName>`,
// self-closing when the tool takes no arguments. Built on the same tolerant
// scaffold as Qwen3-Coder (core.ParseXMLElement), since both grammars need
// duplicate-tag tolerance and graceful handling of unescaped text.
func NewMorphXMLProtocol() Protocol {
	return morphXMLProtocol{}
}

func (morphXMLProtocol) Name() string { return "morph-xml" }

func (morphXMLProtocol) FormatTools(tools []types.Tool, systemTemplate string) string {
	var b strings.Builder
	if systemTemplate != "" {
		b.WriteString(systemTemplate)
		b.WriteString("\n\n")
	} else {
		b.WriteString("You have access to the following tools. To call a tool, respond with an element named after it:\n")
		b.WriteString("<toolName><key>value</key></toolName>, or <toolName/> when it takes no arguments.\n\n")
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

func (morphXMLProtocol) FormatToolCall(call core.ToolCall) string {
	var args map[string]interface{}
	if call.Input != "" {
		_ = json.Unmarshal([]byte(call.Input), &args)
	}
	if len(args) == 0 {
		return "<" + call.ToolName + "/>"
	}
	var b strings.Builder
	b.WriteString("<" + call.ToolName + ">")
	for _, key := range sortedKeys(args) {
		b.WriteString("<" + key + ">")
		b.WriteString(valueToPlainText(args[key]))
		b.WriteString("</" + key + ">")
	}
	b.WriteString("</" + call.ToolName + ">")
	return b.String()
}

func (morphXMLProtocol) FormatToolResponse(result ToolResult) string {
	return "<tool_response>" + renderToolResponseBody(result) + "</tool_response>"
}

// findEnclosingToolElement scans remaining for the earliest opening tag
// whose base name matches a known tool, then returns the full balanced
// element substring for it. Unlike Hermes/Qwen3-Coder, morph-XML has no
// fixed wrapper tag: the tool name itself is the marker.
func findEnclosingToolElement(remaining string, tools []types.Tool) (startIdx, endIdx int, ok bool) {
	best := -1
	bestEnd := -1
	for _, tool := range tools {
		for _, marker := range []string{"<" + tool.Name + ">", "<" + tool.Name + "/>", "<" + tool.Name + " "} {
			idx := strings.Index(remaining, marker)
			if idx == -1 {
				continue
			}
			if best == -1 || idx < best {
				end := matchMorphElementEnd(remaining, idx, tool.Name)
				if end == -1 {
					continue
				}
				best = idx
				bestEnd = end
			}
		}
	}
	if best == -1 {
		return 0, 0, false
	}
	return best, bestEnd, true
}

// matchMorphElementEnd returns the index just past the closing tag (or
// self-closing tag) for the tool element starting at start, or -1 if the
// region is not yet complete.
func matchMorphElementEnd(s string, start int, name string) int {
	selfClose := "<" + name + "/>"
	if strings.HasPrefix(s[start:], selfClose) {
		return start + len(selfClose)
	}
	closeTag := "</" + name + ">"
	idx := strings.Index(s[start:], closeTag)
	if idx == -1 {
		return -1
	}
	return start + idx + len(closeTag)
}

func (m morphXMLProtocol) ParseGeneratedText(text string, tools []types.Tool, options ParseOptions) []core.ContentPart {
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
		part, parseOK := m.parseCallRegion(region, tools, options)
		if parseOK {
			parts = append(parts, part)
		} else {
			if options.OnError != nil {
				options.OnError("morph-xml: malformed tool call region", map[string]interface{}{"region": region})
			}
			parts = append(parts, core.TextPart{Text: region})
		}
		remaining = remaining[endIdx:]
	}

	return parts
}

func (morphXMLProtocol) parseCallRegion(region string, tools []types.Tool, options ParseOptions) (core.ToolCallPart, bool) {
	root, ok := core.ParseXMLElement(region)
	if !ok {
		return core.ToolCallPart{}, false
	}
	name := root.TagName()
	if name == "" {
		return core.ToolCallPart{}, false
	}

	var properties map[string]interface{}
	if tool := findTool(tools, name); tool != nil {
		if schemaMap, ok := tool.Parameters.(map[string]interface{}); ok {
			if props, ok := schemaMap["properties"].(map[string]interface{}); ok {
				properties = props
			}
		}
	}

	args := make(map[string]interface{}, len(root.Children))
	for _, child := range root.Children {
		key := child.TagName()
		if key == "" {
			continue
		}
		var raw interface{} = core.ElementToValue(child)
		if propSchema, ok := properties[key]; ok {
			raw = schema.Coerce(raw, propSchema)
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

func (m morphXMLProtocol) ExtractToolCallSegments(text string, tools []types.Tool) []string {
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

func (morphXMLProtocol) Flush(stateRaw StreamState, options ParseOptions) []core.Event {
	state := stateRaw.(*morphStreamState)
	if state.buffer == "" {
		return nil
	}
	remaining := state.buffer
	state.buffer = ""
	if strings.Contains(remaining, "<") && options.OnError != nil {
		options.OnError("morph-xml: stream finished with an unterminated region", map[string]interface{}{"buffer": remaining})
	}
	return []core.Event{{Type: core.EventTypeTextDelta, Delta: remaining}}
}

// morphStreamState buffers raw text until a complete tool element (or
// enough of a prefix to rule every known tool name out) is available.
type morphStreamState struct {
	buffer string
}

func (morphXMLProtocol) NewStreamState() StreamState {
	return &morphStreamState{}
}

func (m morphXMLProtocol) ParseStreamChunk(stateRaw StreamState, chunk string, tools []types.Tool, options ParseOptions) []core.Event {
	state := stateRaw.(*morphStreamState)
	state.buffer += chunk
	var events []core.Event

	for {
		startIdx, endIdx, ok := findEnclosingToolElement(state.buffer, tools)
		if !ok {
			// Nothing complete yet. Flush only the prefix that can no longer
			// be the start of any tool marker.
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

		part, parseOK := m.parseCallRegion(region, tools, options)
		if !parseOK {
			if options.OnError != nil {
				options.OnError("morph-xml: malformed tool call region", map[string]interface{}{"region": region})
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
