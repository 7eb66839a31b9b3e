package protocol

import (
	"testing"

	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
)

func TestYAMLXML_ParseGeneratedText(t *testing.T) {
	p := NewYAMLXMLProtocol()
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
	text := "before <get_weather>\ncity: Seoul\ndays: 3\n</get_weather> after"

	parts := p.ParseGeneratedText(text, tools, ParseOptions{})
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %+v", len(parts), parts)
	}
	call, ok := parts[1].(core.ToolCallPart)
	if !ok {
		t.Fatalf("expected ToolCallPart, got %+v", parts[1])
	}
	if call.ToolName != "get_weather" {
		t.Errorf("ToolName = %q", call.ToolName)
	}
	if call.Input != `{"city":"Seoul","days":3}` {
		t.Errorf("Input = %q", call.Input)
	}
}

func TestYAMLXML_EmptyBody(t *testing.T) {
	p := NewYAMLXMLProtocol()
	tools := []types.Tool{{Name: "ping"}}
	parts := p.ParseGeneratedText("<ping></ping>", tools, ParseOptions{})
	call := parts[0].(core.ToolCallPart)
	if call.Input != "{}" {
		t.Errorf("Input = %q, want %q", call.Input, "{}")
	}
}
