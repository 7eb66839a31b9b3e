package protocol

import (
	"testing"

	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
)

func TestMorphXML_SelfClosingNoArguments(t *testing.T) {
	p := NewMorphXMLProtocol()
	tools := []types.Tool{
		{
			Name: "get_weather",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
			},
		},
	}

	parts := p.ParseGeneratedText("<get_weather/>", tools, ParseOptions{})
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
	if call.Input != "{}" {
		t.Errorf("Input = %q, want %q", call.Input, "{}")
	}
}

func TestMorphXML_WithArguments(t *testing.T) {
	p := NewMorphXMLProtocol()
	tools := []types.Tool{
		{
			Name: "get_weather",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
			},
		},
	}
	text := "before <get_weather><city>Seoul</city></get_weather> after"
	parts := p.ParseGeneratedText(text, tools, ParseOptions{})
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %+v", len(parts), parts)
	}
	call := parts[1].(core.ToolCallPart)
	if call.Input != `{"city":"Seoul"}` {
		t.Errorf("Input = %q", call.Input)
	}
}

func TestMorphXML_FormatToolCall_NoArgs(t *testing.T) {
	p := NewMorphXMLProtocol()
	out := p.FormatToolCall(core.ToolCall{ToolName: "get_weather", Input: "{}"})
	if out != "<get_weather/>" {
		t.Errorf("got %q", out)
	}
}

func TestMorphXML_StreamChunkBoundaries(t *testing.T) {
	p := NewMorphXMLProtocol()
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
	chunks := []string{"<get_weat", "her><ci", "ty>Seo", "ul</city></get_weather>"}

	var events []core.Event
	for _, c := range chunks {
		events = append(events, p.ParseStreamChunk(state, c, tools, ParseOptions{})...)
	}

	var sawToolCall bool
	var sawTextDelta bool
	for _, e := range events {
		switch e.Type {
		case core.EventTypeToolCall:
			sawToolCall = true
			if e.Input != `{"city":"Seoul"}` {
				t.Errorf("Input = %q", e.Input)
			}
		case core.EventTypeTextDelta:
			if e.Delta != "" {
				sawTextDelta = true
			}
		}
	}
	if !sawToolCall {
		t.Fatalf("expected a ToolCall event, got %+v", events)
	}
	if sawTextDelta {
		t.Errorf("expected no text deltas, got %+v", events)
	}
}
