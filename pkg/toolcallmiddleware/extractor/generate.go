// Package extractor implements the two consumption-side halves of the
// tool-call middleware: the whole-response extractor (this file) and the
// token-delta streaming extractor (stream.go).
package extractor

import (
	"encoding/json"
	"strings"

	"github.com/digitallysavvy/go-ai/pkg/jsonparser"
	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/protocol"
)

// GenerateOutput is the result of extracting tool calls from one completed
// generation: the full interleaved content and, redundantly, the flat list
// of recognised tool calls for callers that don't need the text framing.
type GenerateOutput struct {
	Parts     []core.ContentPart
	ToolCalls []core.ToolCall
}

// ExtractGenerated splits a completed response's text into Text/ToolCall
// content parts using proto, then applies a JSON-recovery fallback to the
// final fragment when the active protocol never found a closing marker for
// it — mirroring extract_reasoning.go's "whole text in, whole text
// (re)shaped out" WrapGenerate loop, generalised here from a regex
// find-and-strip into a marker-driven parse-and-split.
func ExtractGenerated(text string, tools []types.Tool, proto protocol.Protocol, options protocol.ParseOptions) GenerateOutput {
	parts := proto.ParseGeneratedText(text, tools, options)

	if n := len(parts); n > 0 {
		if tp, ok := parts[n-1].(core.TextPart); ok {
			if recovered, ok := recoverTrailingToolCall(tp.Text, tools, options); ok {
				parts = append(append([]core.ContentPart{}, parts[:n-1]...), recovered...)
			}
		}
	}

	var calls []core.ToolCall
	for _, p := range parts {
		if tc, ok := p.(core.ToolCallPart); ok {
			calls = append(calls, core.ToolCall{ToolCallID: tc.ToolCallID, ToolName: tc.ToolName, Input: tc.Input})
		}
	}
	return GenerateOutput{Parts: parts, ToolCalls: calls}
}

// recoverTrailingToolCall is the last-resort fallback: when a protocol
// leaves an unterminated fragment as plain text (no closing marker ever
// arrived), search it for a bare JSON object naming a known tool, and for a
// truncated one via jsonparser.ParsePartialJSON's best-effort closer.
func recoverTrailingToolCall(text string, tools []types.Tool, options protocol.ParseOptions) ([]core.ContentPart, bool) {
	if obj, region, ok := core.LocateJSONObject(text); ok {
		if part, ok := toolCallFromObject(obj, tools); ok {
			if options.OnError != nil {
				options.OnError("extractor: recovered tool call via JSON recovery", map[string]interface{}{"fragment": text})
			}
			return splitAroundRegion(text, region, part), true
		}
	}

	braceIdx := strings.Index(text, "{")
	if braceIdx == -1 {
		return nil, false
	}
	result := jsonparser.ParsePartialJSON(text[braceIdx:])
	if result.State == jsonparser.ParseStateFailed || result.State == jsonparser.ParseStateUndefinedInput {
		return nil, false
	}
	obj, ok := result.Value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	part, ok := toolCallFromObject(obj, tools)
	if !ok {
		return nil, false
	}
	if options.OnError != nil {
		options.OnError("extractor: recovered truncated tool call via partial JSON", map[string]interface{}{"fragment": text})
	}
	var out []core.ContentPart
	if braceIdx > 0 {
		out = append(out, core.TextPart{Text: text[:braceIdx]})
	}
	out = append(out, part)
	return out, true
}

func toolCallFromObject(obj map[string]interface{}, tools []types.Tool) (core.ToolCallPart, bool) {
	name, _ := obj["name"].(string)
	if name == "" {
		return core.ToolCallPart{}, false
	}
	if len(tools) > 0 && findToolByName(tools, name) == nil {
		return core.ToolCallPart{}, false
	}
	args := obj["arguments"]
	if args == nil {
		args = map[string]interface{}{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return core.ToolCallPart{}, false
	}
	return core.ToolCallPart{
		ToolCallID: protocol.NewToolCallID(),
		ToolName:   name,
		Input:      string(encoded),
	}, true
}

func splitAroundRegion(text, region string, part core.ToolCallPart) []core.ContentPart {
	idx := strings.Index(text, region)
	if idx == -1 {
		return []core.ContentPart{part}
	}
	var out []core.ContentPart
	if idx > 0 {
		out = append(out, core.TextPart{Text: text[:idx]})
	}
	out = append(out, part)
	if after := text[idx+len(region):]; after != "" {
		out = append(out, core.TextPart{Text: after})
	}
	return out
}

func findToolByName(tools []types.Tool, name string) *types.Tool {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}
