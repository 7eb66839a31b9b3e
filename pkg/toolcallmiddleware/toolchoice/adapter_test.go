package toolchoice

import (
	"testing"

	"github.com/digitallysavvy/go-ai/pkg/provider/types"
)

func TestAdapt_Auto(t *testing.T) {
	tools := []types.Tool{{Name: "get_weather"}}
	out, err := Adapt(tools, types.AutoToolChoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Tools) != 1 || out.Instruction != "" {
		t.Errorf("got %+v", out)
	}
}

func TestAdapt_NoneAlwaysErrors(t *testing.T) {
	if _, err := Adapt(nil, types.NoneToolChoice()); err == nil {
		t.Fatal("expected an error for toolChoice none")
	}
	tools := []types.Tool{{Name: "get_weather"}}
	if _, err := Adapt(tools, types.NoneToolChoice()); err == nil {
		t.Fatal("expected an error for toolChoice none with tools present")
	}
}

func TestAdapt_RequiredNeedsTools(t *testing.T) {
	if _, err := Adapt(nil, types.RequiredToolChoice()); err == nil {
		t.Fatal("expected an error when required but no tools available")
	}
	tools := []types.Tool{{Name: "get_weather"}}
	out, err := Adapt(tools, types.RequiredToolChoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Instruction == "" {
		t.Errorf("expected a reinforcing instruction")
	}
	if !out.Forced || out.ResponseFormat == nil {
		t.Fatalf("expected a forced response format, got %+v", out)
	}
	if !IsForcedResponseFormat(out.ResponseFormat) {
		t.Error("expected IsForcedResponseFormat to recognise the synthesised format")
	}
	if out.ResponseFormat.Type != "json_schema" {
		t.Errorf("response format type = %q, want json_schema", out.ResponseFormat.Type)
	}
}

func TestAdapt_RequiredSchemaPinsEachToolName(t *testing.T) {
	tools := []types.Tool{
		{Name: "get_weather", Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
		}},
		{Name: "get_time"},
	}
	out, err := Adapt(tools, types.RequiredToolChoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	schemaMap, ok := out.ResponseFormat.Schema.(map[string]interface{})
	if !ok {
		t.Fatalf("expected a map schema, got %T", out.ResponseFormat.Schema)
	}
	variants, ok := schemaMap["oneOf"].([]interface{})
	if !ok || len(variants) != 2 {
		t.Fatalf("expected oneOf with 2 variants, got %+v", schemaMap["oneOf"])
	}
}

func TestParseForcedToolCall(t *testing.T) {
	tools := []types.Tool{{Name: "get_weather", Parameters: map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
	}}}
	adapted, err := Adapt(tools, types.RequiredToolChoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	forcedSchema := adapted.ResponseFormat.Schema

	name, args, ok := ParseForcedToolCall(`{"name": "get_weather", "arguments": {"city": "Seoul"}}`, forcedSchema)
	if !ok {
		t.Fatal("expected a parsed forced tool call")
	}
	if name != "get_weather" || args["city"] != "Seoul" {
		t.Errorf("got name=%q args=%+v", name, args)
	}

	if _, _, ok := ParseForcedToolCall(`{"name": "unknown_tool", "arguments": {}}`, forcedSchema); ok {
		t.Error("expected no match for an unknown tool name")
	}
	if _, _, ok := ParseForcedToolCall("not json at all", forcedSchema); ok {
		t.Error("expected no match for non-JSON text")
	}
}

func TestAdapt_SpecificTool(t *testing.T) {
	tools := []types.Tool{{Name: "get_weather"}, {Name: "get_time"}}
	out, err := Adapt(tools, types.SpecificToolChoice("get_time"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Tools) != 1 || out.Tools[0].Name != "get_time" {
		t.Errorf("got %+v", out)
	}
}

func TestAdapt_UnknownToolName(t *testing.T) {
	tools := []types.Tool{{Name: "get_weather"}}
	if _, err := Adapt(tools, types.SpecificToolChoice("does_not_exist")); err == nil {
		t.Fatal("expected an error for an unknown tool name")
	}
}
