package protocol

import (
	"testing"

	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
)

func TestQwen3Coder_ParseGeneratedText_CoercesInteger(t *testing.T) {
	p := NewQwen3CoderProtocol()
	tools := []types.Tool{
		{
			Name: "get_weather",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"city": map[string]interface{}{"type": "string"},
					"days": map[string]interface{}{"type": "integer"},
				},
			},
		},
	}
	text := "<tool_call><function=get_weather><parameter=city>Seoul</parameter><parameter=days>3</parameter></function></tool_call>"

	parts := p.ParseGeneratedText(text, tools, ParseOptions{})
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d: %+v", len(parts), parts)
	}
	call, ok := parts[0].(core.ToolCallPart)
	if !ok {
		t.Fatalf("expected ToolCallPart, got %+v", parts[0])
	}
	if call.ToolName != "get_weather" {
		t.Errorf("ToolName = %q", call.ToolName)
	}
	if call.Input != `{"city":"Seoul","days":3}` {
		t.Errorf("Input = %q", call.Input)
	}
}

func TestQwen3Coder_ParseGeneratedText_CoercesArrayParameter(t *testing.T) {
	p := NewQwen3CoderProtocol()
	tools := []types.Tool{
		{
			Name: "tag_item",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tags": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	}
	text := `<tool_call><function=tag_item><parameter=tags>["a","b"]</parameter></function></tool_call>`

	parts := p.ParseGeneratedText(text, tools, ParseOptions{})
	call, ok := parts[0].(core.ToolCallPart)
	if !ok {
		t.Fatalf("expected ToolCallPart, got %+v", parts[0])
	}
	if call.Input != `{"tags":["a","b"]}` {
		t.Errorf("Input = %q, want a real two-element JSON array", call.Input)
	}
}

func TestQwen3Coder_LooseBooleanWithoutSchema(t *testing.T) {
	p := NewQwen3CoderProtocol()
	text := "<tool_call><function=toggle><parameter=enabled>True</parameter></function></tool_call>"
	parts := p.ParseGeneratedText(text, nil, ParseOptions{})
	call := parts[0].(core.ToolCallPart)
	if call.Input != `{"enabled":true}` {
		t.Errorf("Input = %q", call.Input)
	}
}

func TestQwen3Coder_StreamChunkBoundaries(t *testing.T) {
	p := NewQwen3CoderProtocol()
	state := p.NewStreamState()
	tools := []types.Tool{
		{
			Name: "get_weather",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
			},
		},
	}

	chunks := []string{"<tool", "_cal", "l><", "function=get_weat", "her><paramet", "er=ci", "ty>Seo", "ul</parameter></function></tool_call>"}

	var events []core.Event
	for _, c := range chunks {
		events = append(events, p.ParseStreamChunk(state, c, tools, ParseOptions{})...)
	}

	var sawToolCall bool
	var textDeltas string
	for _, e := range events {
		switch e.Type {
		case core.EventTypeTextDelta:
			textDeltas += e.Delta
		case core.EventTypeToolCall:
			sawToolCall = true
			if e.Input != `{"city":"Seoul"}` {
				t.Errorf("Input = %q", e.Input)
			}
		}
	}
	if !sawToolCall {
		t.Fatalf("expected ToolCall event, got %+v", events)
	}
	if textDeltas != "" {
		t.Errorf("unexpected text deltas: %q", textDeltas)
	}
}
