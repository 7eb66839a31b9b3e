// Package toolcallmiddleware wires the protocol, extractor, prompt and
// toolchoice packages into a single language-model middleware: given a
// model that only speaks plain text, it makes tool calling work anyway by
// rendering tool definitions and history into text on the way in, and
// recognising tool calls in text on the way out.
package toolcallmiddleware

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/digitallysavvy/go-ai/pkg/middleware"
	"github.com/digitallysavvy/go-ai/pkg/provider"
	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/providerutils/prompt"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/extractor"
	toolprompt "github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/prompt"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/protocol"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/toolchoice"
)

// Options configures New. A nil *Options, like the rest of this package's
// sibling middlewares, falls back to the Hermes protocol with no debug or
// error hooks.
type Options struct {
	// Protocol selects the textual tool-call convention to emulate. Defaults
	// to protocol.NewHermesProtocol() when nil.
	Protocol protocol.Protocol

	// SystemTemplate, when non-empty, replaces the protocol's built-in tools
	// preamble wording.
	SystemTemplate string

	// SystemPlacement is "first" (default) or "last"; see prompt.Options.
	SystemPlacement string

	// OnError is called whenever a protocol implementation recovers from a
	// malformed or unterminated region instead of failing outright.
	OnError func(message string, metadata map[string]interface{})

	// OnDebug, when set, is called once per generate/stream completion with
	// the raw model text and the tool calls recognised in it.
	OnDebug func(DebugInfo)
}

// New returns a LanguageModelMiddleware that emulates tool calling on top of
// a plain text model, grounded on pkg/middleware/extract_reasoning.go and
// pkg/middleware/extract_json.go's WrapGenerate/WrapStream seam.
func New(options *Options) *middleware.LanguageModelMiddleware {
	if options == nil {
		options = &Options{}
	}
	proto := options.Protocol
	if proto == nil {
		proto = protocol.NewHermesProtocol()
	}
	parseOptions := protocol.ParseOptions{OnError: options.OnError}
	promptOptions := toolprompt.Options{
		SystemTemplate:  options.SystemTemplate,
		SystemPlacement: options.SystemPlacement,
	}

	return &middleware.LanguageModelMiddleware{
		SpecificationVersion: "v3",

		TransformParams: func(ctx context.Context, callType string, params *provider.GenerateOptions, model provider.LanguageModel) (*provider.GenerateOptions, error) {
			adapted, err := toolchoice.Adapt(params.Tools, params.ToolChoice)
			if err != nil {
				return nil, err
			}

			messages := params.Prompt.Messages
			if params.Prompt.IsSimple() {
				messages = prompt.SimpleTextToMessages(params.Prompt.Text)
			}
			if params.Prompt.System != "" {
				messages = append([]types.Message{{
					Role:    types.RoleSystem,
					Content: []types.ContentPart{types.TextContent{Text: params.Prompt.System}},
				}}, messages...)
			}

			rewritten, err := toolprompt.Transform(messages, adapted.Tools, proto, promptOptions)
			if err != nil {
				return nil, err
			}
			if adapted.Instruction != "" {
				rewritten = appendSystemInstruction(rewritten, adapted.Instruction)
			}

			next := *params
			next.Prompt = types.Prompt{Messages: rewritten}
			if adapted.ResponseFormat != nil {
				next.ResponseFormat = &provider.ResponseFormat{
					Type:        adapted.ResponseFormat.Type,
					Schema:      adapted.ResponseFormat.Schema,
					Name:        adapted.ResponseFormat.Name,
					Description: adapted.ResponseFormat.Description,
				}
			}
			return &next, nil
		},

		WrapGenerate: func(
			ctx context.Context,
			doGenerate func() (*types.GenerateResult, error),
			doStream func() (provider.TextStream, error),
			params *provider.GenerateOptions,
			model provider.LanguageModel,
		) (*types.GenerateResult, error) {
			result, err := doGenerate()
			if err != nil {
				return nil, err
			}

			originalText := result.Text

			if isForced, schema := forcedSchema(params); isForced {
				return finishForcedGenerate(result, originalText, schema, options.OnError, options.OnDebug)
			}

			output := extractor.ExtractGenerated(originalText, params.Tools, proto, parseOptions)

			var text strings.Builder
			var calls []types.ToolCall
			content := make([]types.ContentPart, 0, len(output.Parts))
			for _, part := range output.Parts {
				switch p := part.(type) {
				case core.TextPart:
					text.WriteString(p.Text)
					if p.Text != "" {
						content = append(content, types.TextContent{Text: p.Text})
					}
				case core.ToolCallPart:
					args := decodeArguments(p.Input)
					calls = append(calls, types.ToolCall{ID: p.ToolCallID, ToolName: p.ToolName, Arguments: args})
					content = append(content, types.ToolCallContent{ToolCallID: p.ToolCallID, ToolName: p.ToolName, Input: args})
				}
			}

			result.Text = text.String()
			result.Content = content
			if len(calls) > 0 {
				result.ToolCalls = calls
				result.FinishReason = types.FinishReasonToolCalls
			}

			if options.OnDebug != nil {
				options.OnDebug(buildDebugInfo(originalText, output.ToolCalls))
			}

			return result, nil
		},

		WrapStream: func(
			ctx context.Context,
			doGenerate func() (*types.GenerateResult, error),
			doStream func() (provider.TextStream, error),
			params *provider.GenerateOptions,
			model provider.LanguageModel,
		) (provider.TextStream, error) {
			stream, err := doStream()
			if err != nil {
				return nil, err
			}

			if isForced, schema := forcedSchema(params); isForced {
				return &forcedToolCallStream{
					underlying: stream,
					schema:     schema,
					onError:    options.OnError,
					onDebug:    options.OnDebug,
				}, nil
			}

			return &toolCallStream{
				ctx:        ctx,
				underlying: stream,
				ext:        extractor.NewStreamExtractor(proto, params.Tools, parseOptions),
				tools:      params.Tools,
				onDebug:    options.OnDebug,
			}, nil
		},
	}
}

// appendSystemInstruction folds a reinforcing toolChoice instruction into
// the last system message, or prepends a new one if none exists (Transform
// always leaves at least one system message when tools were supplied, but
// a toolChoice instruction can arrive even for an empty tool list error
// path having already returned, so this stays defensive).
func appendSystemInstruction(messages []types.Message, instruction string) []types.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != types.RoleSystem {
			continue
		}
		for j, part := range messages[i].Content {
			if tc, ok := part.(types.TextContent); ok {
				messages[i].Content[j] = types.TextContent{Text: tc.Text + "\n\n" + instruction}
				return messages
			}
		}
		messages[i].Content = append(messages[i].Content, types.TextContent{Text: instruction})
		return messages
	}
	return append([]types.Message{{
		Role:    types.RoleSystem,
		Content: []types.ContentPart{types.TextContent{Text: instruction}},
	}}, messages...)
}

// forcedSchema reports whether params carries a ResponseFormat produced by
// toolchoice.Adapt for a "required"/"tool" choice, returning its schema.
func forcedSchema(params *provider.GenerateOptions) (bool, interface{}) {
	if params.ResponseFormat == nil || params.ResponseFormat.Name != toolchoice.ForcedSchemaName {
		return false, nil
	}
	return true, params.ResponseFormat.Schema
}

// finishForcedGenerate implements §4.7's forced tool-choice mechanism on
// the generate side: the whole response is JSON in schema-constrained
// mode, so it is parsed once (instead of run through the textual protocol
// extractor) into exactly one ToolCall. A response that doesn't parse
// against schema is a structural failure, not a configuration one: it is
// reported via onError and returned as plain text, matching every other
// protocol's malformed-region fallback.
func finishForcedGenerate(
	result *types.GenerateResult,
	originalText string,
	schema interface{},
	onError func(string, map[string]interface{}),
	onDebug func(DebugInfo),
) (*types.GenerateResult, error) {
	name, args, ok := toolchoice.ParseForcedToolCall(originalText, schema)
	if !ok {
		if onError != nil {
			onError("toolcallmiddleware: forced tool-choice response did not match the synthesised schema", map[string]interface{}{
				"text": originalText,
			})
		}
		if onDebug != nil {
			onDebug(buildDebugInfo(originalText, nil))
		}
		return result, nil
	}

	id := protocol.NewToolCallID()
	result.Text = ""
	result.Content = []types.ContentPart{types.ToolCallContent{ToolCallID: id, ToolName: name, Input: args}}
	result.ToolCalls = []types.ToolCall{{ID: id, ToolName: name, Arguments: args}}
	result.FinishReason = types.FinishReasonToolCalls

	if onDebug != nil {
		onDebug(buildDebugInfo(originalText, []core.ToolCall{{ToolCallID: id, ToolName: name, Input: encodeArguments(args)}}))
	}
	return result, nil
}

func encodeArguments(args map[string]interface{}) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func decodeArguments(input string) map[string]interface{} {
	if input == "" {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return map[string]interface{}{}
	}
	return args
}

// toolCallStream adapts a StreamExtractor onto provider.TextStream, pumping
// every ChunkTypeText delta through it and translating the resulting
// core.Events back into StreamChunks (and, for partial tool input, into the
// matching types.Tool's streaming callbacks — provider.StreamChunk itself
// has no slot for a partial tool-input delta).
type toolCallStream struct {
	ctx        context.Context
	underlying provider.TextStream
	ext        *extractor.StreamExtractor
	tools      []types.Tool
	onDebug    func(DebugInfo)

	queue        []*provider.StreamChunk
	originalText strings.Builder
	emittedCalls []core.ToolCall
	finished     bool
}

func (s *toolCallStream) Next() (*provider.StreamChunk, error) {
	for {
		if len(s.queue) > 0 {
			chunk := s.queue[0]
			s.queue = s.queue[1:]
			return chunk, nil
		}
		if s.finished {
			return nil, io.EOF
		}

		chunk, err := s.underlying.Next()
		if err != nil {
			if err == io.EOF {
				s.finished = true
				s.queue = append(s.queue, s.translate(s.ext.Finish())...)
				if s.onDebug != nil {
					s.onDebug(buildDebugInfo(s.originalText.String(), s.emittedCalls))
				}
				if len(s.queue) > 0 {
					continue
				}
				return nil, io.EOF
			}
			s.ext.Cancel()
			return chunk, err
		}

		if chunk.Type != provider.ChunkTypeText {
			return chunk, nil
		}

		s.originalText.WriteString(chunk.Text)
		s.queue = append(s.queue, s.translate(s.ext.Push(chunk.Text))...)
	}
}

func (s *toolCallStream) translate(events []core.Event) []*provider.StreamChunk {
	var out []*provider.StreamChunk
	for _, e := range events {
		switch e.Type {
		case core.EventTypeTextDelta:
			if e.Delta != "" {
				out = append(out, &provider.StreamChunk{Type: provider.ChunkTypeText, Text: e.Delta})
			}
		case core.EventTypeReasoningDelta:
			if e.Delta != "" {
				out = append(out, &provider.StreamChunk{Type: provider.ChunkTypeReasoning, Reasoning: e.Delta})
			}
		case core.EventTypeToolInputStart:
			if tool := findToolByName(s.tools, e.ToolName); tool != nil && tool.OnInputStart != nil {
				_ = tool.OnInputStart(s.ctx)
			}
		case core.EventTypeToolInputDelta:
			// No tool name is carried on a delta event, so the tool's
			// OnInputDelta hook is not called.
		case core.EventTypeToolInputEnd:
		case core.EventTypeToolCall:
			args := decodeArguments(e.Input)
			s.emittedCalls = append(s.emittedCalls, core.ToolCall{ToolCallID: e.ID, ToolName: e.ToolName, Input: e.Input})
			if tool := findToolByName(s.tools, e.ToolName); tool != nil && tool.OnInputAvailable != nil {
				_ = tool.OnInputAvailable(s.ctx, types.OnInputAvailableOptions{Value: args})
			}
			out = append(out, &provider.StreamChunk{
				Type:     provider.ChunkTypeToolCall,
				ToolCall: &types.ToolCall{ID: e.ID, ToolName: e.ToolName, Arguments: args},
			})
		case core.EventTypeError:
			out = append(out, &provider.StreamChunk{Type: provider.ChunkTypeError})
		}
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

// Read satisfies io.Reader (required by provider.TextStream); this stream
// is chunk-based, so raw reads never return data.
func (s *toolCallStream) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func (s *toolCallStream) Close() error {
	return s.underlying.Close()
}

func (s *toolCallStream) Err() error {
	return s.underlying.Err()
}

// forcedToolCallStream wraps a stream in §4.7's forced tool-choice mode:
// the model's response is one JSON object in schema-constrained mode, so
// there is nothing to recognise incrementally the way toolCallStream does
// for the textual protocols — every text delta is buffered and the whole
// thing is parsed once the underlying stream finishes.
type forcedToolCallStream struct {
	underlying provider.TextStream
	schema     interface{}
	onError    func(message string, metadata map[string]interface{})
	onDebug    func(DebugInfo)

	text     strings.Builder
	queue    []*provider.StreamChunk
	finished bool
}

func (s *forcedToolCallStream) Next() (*provider.StreamChunk, error) {
	for {
		if len(s.queue) > 0 {
			chunk := s.queue[0]
			s.queue = s.queue[1:]
			return chunk, nil
		}
		if s.finished {
			return nil, io.EOF
		}

		chunk, err := s.underlying.Next()
		if err != nil {
			if err == io.EOF {
				s.finished = true
				s.queue = s.finish()
				continue
			}
			return chunk, err
		}

		switch chunk.Type {
		case provider.ChunkTypeText:
			s.text.WriteString(chunk.Text)
		case provider.ChunkTypeFinish:
			s.finished = true
			s.queue = append(s.finish(), chunk)
		default:
			return chunk, nil
		}
	}
}

func (s *forcedToolCallStream) finish() []*provider.StreamChunk {
	originalText := s.text.String()
	name, args, ok := toolchoice.ParseForcedToolCall(originalText, s.schema)
	if !ok {
		if s.onError != nil {
			s.onError("toolcallmiddleware: forced tool-choice response did not match the synthesised schema", map[string]interface{}{
				"text": originalText,
			})
		}
		if s.onDebug != nil {
			s.onDebug(buildDebugInfo(originalText, nil))
		}
		if originalText == "" {
			return nil
		}
		return []*provider.StreamChunk{{Type: provider.ChunkTypeText, Text: originalText}}
	}

	id := protocol.NewToolCallID()
	if s.onDebug != nil {
		s.onDebug(buildDebugInfo(originalText, []core.ToolCall{{ToolCallID: id, ToolName: name, Input: encodeArguments(args)}}))
	}
	return []*provider.StreamChunk{{
		Type:     provider.ChunkTypeToolCall,
		ToolCall: &types.ToolCall{ID: id, ToolName: name, Arguments: args},
	}}
}

// Read satisfies io.Reader (required by provider.TextStream); this stream
// is chunk-based, so raw reads never return data.
func (s *forcedToolCallStream) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func (s *forcedToolCallStream) Close() error {
	return s.underlying.Close()
}

func (s *forcedToolCallStream) Err() error {
	return s.underlying.Err()
}
