package prompt

import (
	"strings"
	"testing"

	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/protocol"
)

func TestTransform_AssistantToolCallBecomesHermesText(t *testing.T) {
	proto := protocol.NewHermesProtocol()
	messages := []types.Message{
		{Role: types.RoleUser, Content: []types.ContentPart{types.TextContent{Text: "what's the weather?"}}},
		{Role: types.RoleAssistant, Content: []types.ContentPart{
			types.ToolCallContent{ToolCallID: "1", ToolName: "get_weather", Input: map[string]interface{}{"city": "Seoul"}},
		}},
	}

	out, err := Transform(messages, nil, proto, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var assistantText string
	for _, msg := range out {
		if msg.Role == types.RoleAssistant {
			assistantText = msg.Content[0].(types.TextContent).Text
		}
	}
	if !strings.Contains(assistantText, `<tool_call>`) || !strings.Contains(assistantText, `"get_weather"`) {
		t.Errorf("assistant text = %q, want it to contain a hermes tool_call", assistantText)
	}
}

func TestTransform_AssistantMessageKeepsReasoningAndJoinsWithNewlines(t *testing.T) {
	proto := protocol.NewHermesProtocol()
	messages := []types.Message{
		{Role: types.RoleAssistant, Content: []types.ContentPart{
			types.ReasoningContent{Text: "the user wants the weather"},
			types.TextContent{Text: "let me check that"},
			types.ToolCallContent{ToolCallID: "1", ToolName: "get_weather", Input: map[string]interface{}{"city": "Seoul"}},
		}},
	}

	out, err := Transform(messages, nil, proto, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assistantText := out[0].Content[0].(types.TextContent).Text
	if !strings.Contains(assistantText, "the user wants the weather") {
		t.Errorf("assistant text = %q, want reasoning content preserved", assistantText)
	}
	lines := strings.Split(assistantText, "\n")
	if len(lines) != 3 {
		t.Errorf("expected 3 newline-joined segments, got %d: %q", len(lines), assistantText)
	}
}

func TestTransform_ToolResultBecomesUserText(t *testing.T) {
	proto := protocol.NewHermesProtocol()
	messages := []types.Message{
		{Role: types.RoleTool, Content: []types.ContentPart{
			types.ToolResultContent{ToolCallID: "1", ToolName: "get_weather", Result: map[string]interface{}{"temperature": 21}},
		}},
	}

	out, err := Transform(messages, nil, proto, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, msg := range out {
		if msg.Role != types.RoleUser {
			continue
		}
		text := msg.Content[0].(types.TextContent).Text
		if strings.Contains(text, "<tool_response>") && strings.Contains(text, "temperature") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a user message with a hermes tool_response, got %+v", out)
	}
}

func TestTransform_RejectsProviderExecutedTools(t *testing.T) {
	proto := protocol.NewHermesProtocol()
	tools := []types.Tool{{Name: "search", ProviderExecuted: true}}

	_, err := Transform(nil, tools, proto, Options{})
	if err == nil {
		t.Fatal("expected an error for a provider-executed tool")
	}
}

func TestTransform_InsertsSystemBlock(t *testing.T) {
	proto := protocol.NewHermesProtocol()
	tools := []types.Tool{{Name: "get_weather", Description: "fetches weather"}}

	out, err := Transform(nil, tools, proto, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Role != types.RoleSystem {
		t.Fatalf("expected a single system message, got %+v", out)
	}
	text := out[0].Content[0].(types.TextContent).Text
	if !strings.Contains(text, "get_weather") {
		t.Errorf("system text = %q, want it to mention get_weather", text)
	}
}

func TestTransform_MergesConsecutiveUserMessages(t *testing.T) {
	proto := protocol.NewHermesProtocol()
	messages := []types.Message{
		{Role: types.RoleUser, Content: []types.ContentPart{types.TextContent{Text: "a"}}},
		{Role: types.RoleUser, Content: []types.ContentPart{types.TextContent{Text: "b"}}},
	}

	out, err := Transform(messages, nil, proto, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var userCount int
	for _, msg := range out {
		if msg.Role == types.RoleUser {
			userCount++
			text := msg.Content[0].(types.TextContent).Text
			if text != "ab" {
				t.Errorf("merged user text = %q, want %q", text, "ab")
			}
		}
	}
	if userCount != 1 {
		t.Errorf("expected exactly 1 merged user message, got %d", userCount)
	}
}
