// Package prompt rewrites a unified Prompt into the textual form a plain
// text/text-delta model needs: tool descriptors folded into the system
// message, and any tool-call/tool-result history turned into the active
// protocol's textual convention.
package prompt

import (
	"encoding/json"
	"strings"

	providererrors "github.com/digitallysavvy/go-ai/pkg/provider/errors"
	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/providerutils/prompt"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/protocol"
)

// Options configures Transform.
type Options struct {
	// SystemTemplate, when non-empty, replaces the protocol's built-in tools
	// preamble wording (still followed by the rendered tool list).
	SystemTemplate string

	// SystemPlacement controls whether the rendered tools block is merged
	// into the first system message ("first", the default) or appended as
	// a new trailing one ("last").
	SystemPlacement string
}

// Transform rewrites messages in place (returning a new slice) for a plain
// text model: the tools block is folded into the system message, assistant
// tool calls become the protocol's call text, and tool-role messages become
// user-role text carrying the protocol's response text.
//
// Grounded on pkg/providerutils/prompt/converter.go's ExtractSystemMessage /
// AddToolResultsToMessages helpers, generalised from their fixed
// OpenAI/Anthropic wire targets into a protocol-driven rewrite.
func Transform(messages []types.Message, tools []types.Tool, proto protocol.Protocol, options Options) ([]types.Message, error) {
	for _, tool := range tools {
		if tool.ProviderExecuted {
			return nil, &providererrors.ValidationError{
				Message: "provider-executed tools cannot be emulated by a textual tool-call protocol",
				Context: &providererrors.ValidationContext{Field: "tools", EntityName: "tool", EntityID: tool.Name},
				Value:   tool.Name,
			}
		}
	}

	rewritten := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleAssistant:
			rewritten = append(rewritten, rewriteAssistantMessage(msg, proto))
		case types.RoleTool:
			rewritten = append(rewritten, rewriteToolMessage(msg, proto)...)
		default:
			rewritten = append(rewritten, condenseTextParts(msg))
		}
	}

	rewritten = mergeConsecutiveSameRole(rewritten)
	rewritten = spliceSystemBlock(rewritten, tools, proto, options)

	return rewritten, nil
}

// rewriteAssistantMessage replaces any ToolCallContent parts with the
// protocol's textual call serialisation, joining it with the message's
// other parts (text, reasoning) on newlines, since a plain text channel has
// no structural separator between them.
func rewriteAssistantMessage(msg types.Message, proto protocol.Protocol) types.Message {
	var segments []string
	for _, part := range msg.Content {
		switch p := part.(type) {
		case types.TextContent:
			if p.Text != "" {
				segments = append(segments, p.Text)
			}
		case types.ReasoningContent:
			if p.Text != "" {
				segments = append(segments, p.Text)
			}
		case types.ToolCallContent:
			var input string
			if len(p.Input) > 0 {
				if encoded, ok := marshalArgs(p.Input); ok {
					input = encoded
				}
			} else {
				input = "{}"
			}
			segments = append(segments, proto.FormatToolCall(core.ToolCall{ToolCallID: p.ToolCallID, ToolName: p.ToolName, Input: input}))
		}
	}
	return types.Message{
		Role:    types.RoleAssistant,
		Name:    msg.Name,
		Content: []types.ContentPart{types.TextContent{Text: strings.Join(segments, "\n")}},
	}
}

// rewriteToolMessage turns a tool-role message into one or more user-role
// text messages, since a plain text model has no tool-role channel.
func rewriteToolMessage(msg types.Message, proto protocol.Protocol) []types.Message {
	var text string
	for _, part := range msg.Content {
		trc, ok := part.(types.ToolResultContent)
		if !ok {
			continue
		}
		text += proto.FormatToolResponse(protocol.ToolResult{
			ToolCallID: trc.ToolCallID,
			ToolName:   trc.ToolName,
			Output:     toCoreOutput(trc),
		})
	}
	if text == "" {
		return nil
	}
	return []types.Message{{Role: types.RoleUser, Content: []types.ContentPart{types.TextContent{Text: text}}}}
}

func toCoreOutput(trc types.ToolResultContent) core.ToolResultOutput {
	if trc.Output != nil {
		switch trc.Output.Type {
		case types.ToolResultOutputText:
			return core.ToolResultOutput{Kind: core.ToolResultOutputKindText, Text: asString(trc.Output.Value)}
		case types.ToolResultOutputJSON:
			return core.ToolResultOutput{Kind: core.ToolResultOutputKindJSON, Value: trc.Output.Value}
		case types.ToolResultOutputError:
			return core.ToolResultOutput{Kind: core.ToolResultOutputKindErrorJSON, Value: trc.Output.Value}
		case types.ToolResultOutputErrorText:
			return core.ToolResultOutput{Kind: core.ToolResultOutputKindErrorText, Text: asString(trc.Output.Value)}
		case types.ToolResultOutputExecutionDenied:
			return core.ToolResultOutput{Kind: core.ToolResultOutputKindExecutionDenied, Text: asString(trc.Output.Value)}
		}
	}
	if trc.Error != "" {
		return core.ToolResultOutput{Kind: core.ToolResultOutputKindErrorText, Text: trc.Error}
	}
	return core.ToolResultOutput{Kind: core.ToolResultOutputKindJSON, Value: trc.Result}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	if encoded, ok := marshalArgs(v); ok {
		return encoded
	}
	return ""
}

// condenseTextParts merges a message's adjacent TextContent parts into one,
// leaving other content types untouched.
func condenseTextParts(msg types.Message) types.Message {
	var out []types.ContentPart
	var pendingText string
	haveText := false
	flush := func() {
		if haveText {
			out = append(out, types.TextContent{Text: pendingText})
			pendingText = ""
			haveText = false
		}
	}
	for _, part := range msg.Content {
		if tc, ok := part.(types.TextContent); ok {
			pendingText += tc.Text
			haveText = true
			continue
		}
		flush()
		out = append(out, part)
	}
	flush()
	msg.Content = out
	return msg
}

// mergeConsecutiveSameRole merges adjacent messages sharing a role into one,
// concatenating their text content. Runs after the per-message rewrite so
// tool-response-turned-user messages merge with any neighbouring user turn.
func mergeConsecutiveSameRole(messages []types.Message) []types.Message {
	if len(messages) == 0 {
		return messages
	}
	out := []types.Message{messages[0]}
	for _, msg := range messages[1:] {
		last := &out[len(out)-1]
		if last.Role == msg.Role && (msg.Role == types.RoleUser || msg.Role == types.RoleAssistant) {
			last.Content = append(last.Content, msg.Content...)
			*last = condenseTextParts(*last)
			continue
		}
		out = append(out, msg)
	}
	return out
}

// spliceSystemBlock inserts the rendered tools block into the conversation's
// system message, merging into the first system message (default) or
// appending a new one at the position options.SystemPlacement requests.
func spliceSystemBlock(messages []types.Message, tools []types.Tool, proto protocol.Protocol, options Options) []types.Message {
	block := proto.FormatTools(tools, options.SystemTemplate)

	for i, msg := range messages {
		if msg.Role != types.RoleSystem {
			continue
		}
		existing := prompt.ExtractSystemMessage([]types.Message{msg})
		merged := existing
		if merged != "" {
			merged += "\n\n"
		}
		merged += block
		messages[i].Content = []types.ContentPart{types.TextContent{Text: merged}}
		return messages
	}

	systemMsg := types.Message{Role: types.RoleSystem, Content: []types.ContentPart{types.TextContent{Text: block}}}
	if options.SystemPlacement == "last" {
		return append(messages, systemMsg)
	}
	return append([]types.Message{systemMsg}, messages...)
}

func marshalArgs(v interface{}) (string, bool) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(encoded), true
}
