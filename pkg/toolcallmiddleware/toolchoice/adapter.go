// Package toolchoice adapts a provider.types.ToolChoice onto a textual
// tool-call protocol. "auto" passes tools through unchanged; "required" and
// "tool" cannot be trusted to a prose instruction alone, so they switch the
// provider request to JSON-object response mode against a synthesised
// discriminated-union schema and rely on the caller (WrapGenerate/
// WrapStream) to parse that JSON back into exactly one ToolCall; "none" has
// no channel to honour at all and is rejected outright.
package toolchoice

import (
	providererrors "github.com/digitallysavvy/go-ai/pkg/provider/errors"
	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/schema"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
)

// Adapted is the result of applying a tool choice.
type Adapted struct {
	// Tools is the (possibly narrowed) tool list to offer the model.
	Tools []types.Tool

	// Instruction, when non-empty, is a reinforcing system-prompt sentence
	// folded in alongside the rendered tool list.
	Instruction string

	// ResponseFormat, when non-nil, must be copied onto the outgoing
	// provider.GenerateOptions: it carries the synthesised JSON-Schema that
	// forces the response into the shape {"name": ..., "arguments": ...}.
	ResponseFormat *ResponseFormat

	// Forced is true when the caller must parse the raw response as JSON
	// against ResponseFormat's schema and emit exactly one ToolCall,
	// instead of running it through the normal textual protocol extractor.
	Forced bool
}

// ResponseFormat mirrors the fields of provider.ResponseFormat this package
// needs to populate. Kept local (rather than importing pkg/provider) so
// this package's only dependency on the wire type is the field shape;
// middleware.go copies these into a *provider.ResponseFormat.
type ResponseFormat struct {
	Type        string
	Schema      interface{}
	Name        string
	Description string
}

// ForcedSchemaName is the ResponseFormat.Name stamped on every forced
// tool-choice schema, letting middleware.go recognise a GenerateOptions
// that carries a forced tool-choice schema without re-deriving it.
const ForcedSchemaName = "toolcallmiddleware.forced_tool_call"

// Adapt resolves choice against tools.
func Adapt(tools []types.Tool, choice types.ToolChoice) (Adapted, error) {
	switch choice.Type {
	case "", types.ToolChoiceAuto:
		return Adapted{Tools: tools}, nil

	case types.ToolChoiceNone:
		// This middleware exists to emulate tool calling on top of a plain
		// text channel; it has no side channel to suppress tool use other
		// than omitting the tools entirely, which is the caller's job, not
		// a choice the protocol layer can honour. Always a configuration
		// error.
		return Adapted{}, &providererrors.ValidationError{
			Message: `toolChoice "none" cannot be honoured by a textual tool-call protocol; omit the tools instead`,
			Context: &providererrors.ValidationContext{Field: "toolChoice", EntityName: "toolChoice"},
			Value:   choice,
		}

	case types.ToolChoiceRequired:
		if len(tools) == 0 {
			return Adapted{}, &providererrors.ValidationError{
				Message: `toolChoice "required" has no tools to choose from`,
				Context: &providererrors.ValidationContext{Field: "toolChoice", EntityName: "toolChoice"},
			}
		}
		return Adapted{
			Tools:          tools,
			Instruction:    "Respond with a single JSON object matching the schema below. Do not reply with plain text.",
			ResponseFormat: forcedResponseFormat(tools),
			Forced:         true,
		}, nil

	case types.ToolChoiceTool:
		tool := findTool(tools, choice.ToolName)
		if tool == nil {
			return Adapted{}, &providererrors.ValidationError{
				Message: "toolChoice names a tool that is not in the tool list",
				Context: &providererrors.ValidationContext{Field: "toolChoice.toolName", EntityName: "tool", EntityID: choice.ToolName},
				Value:   choice.ToolName,
			}
		}
		return Adapted{
			Tools:          []types.Tool{*tool},
			Instruction:    `Respond with a single JSON object calling the "` + tool.Name + `" tool, matching the schema below. Do not reply with plain text.`,
			ResponseFormat: forcedResponseFormat([]types.Tool{*tool}),
			Forced:         true,
		}, nil

	default:
		return Adapted{}, &providererrors.ValidationError{
			Message: "unknown toolChoice type",
			Context: &providererrors.ValidationContext{Field: "toolChoice.type", EntityName: "toolChoice"},
			Value:   choice.Type,
		}
	}
}

// IsForcedResponseFormat reports whether format was produced by Adapt for a
// "required"/"tool" choice, letting WrapGenerate/WrapStream tell a forced
// single-call schema apart from a caller-supplied structured-output
// request.
func IsForcedResponseFormat(format *ResponseFormat) bool {
	return format != nil && format.Name == ForcedSchemaName
}

// forcedResponseFormat synthesises a discriminated-union JSON-Schema
// equivalent to "if name == T1 then arguments matches schema(T1) else if
// name == T2 ...": a top-level object with a "name" const field and an
// "arguments" field, oneOf over the tools so each name is pinned to its own
// parameter schema.
func forcedResponseFormat(tools []types.Tool) *ResponseFormat {
	variants := make([]interface{}, 0, len(tools))
	for _, tool := range tools {
		argsSchema := tool.Parameters
		if argsSchema == nil {
			argsSchema = map[string]interface{}{"type": "object"}
		}
		variants = append(variants, map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name":      map[string]interface{}{"const": tool.Name},
				"arguments": argsSchema,
			},
			"required":             []interface{}{"name", "arguments"},
			"additionalProperties": false,
		})
	}
	return &ResponseFormat{
		Type: "json_schema",
		Schema: map[string]interface{}{
			"type": "object",
			"oneOf": variants,
		},
		Name:        ForcedSchemaName,
		Description: "Exactly one tool call, chosen from the tools offered above.",
	}
}

// ParseForcedToolCall parses a forced-mode JSON response (the shape
// synthesised by forcedResponseFormat) into a single name/arguments pair,
// coercing arguments against the matching variant's schema. forcedSchema is
// the same value stashed on ResponseFormat.Schema, so the caller never has
// to re-thread the original tool list through. Returns ok=false if text
// carries no {"name": ..., "arguments": ...} object, or names a tool absent
// from forcedSchema's oneOf variants.
func ParseForcedToolCall(text string, forcedSchema interface{}) (name string, arguments map[string]interface{}, ok bool) {
	obj, _, found := core.LocateJSONObject(text)
	if !found {
		return "", nil, false
	}
	name, _ = obj["name"].(string)
	if name == "" {
		return "", nil, false
	}
	args, _ := obj["arguments"].(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	schemaMap, ok := forcedSchema.(map[string]interface{})
	if !ok {
		return "", nil, false
	}
	variants, _ := schemaMap["oneOf"].([]interface{})
	for _, v := range variants {
		variant, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		props, _ := variant["properties"].(map[string]interface{})
		nameSchema, _ := props["name"].(map[string]interface{})
		constVal, _ := nameSchema["const"].(string)
		if constVal != name {
			continue
		}
		if argsSchema, has := props["arguments"]; has {
			if coerced, ok := schema.Coerce(args, argsSchema).(map[string]interface{}); ok {
				args = coerced
			}
		}
		return name, args, true
	}
	return "", nil, false
}

func findTool(tools []types.Tool, name string) *types.Tool {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}
