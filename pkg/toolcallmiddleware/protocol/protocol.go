// Package protocol implements the four textual tool-call grammars (Hermes,
// Qwen3-Coder, morph XML, YAML-in-XML) behind one shared interface. Each
// protocol is stateless and side-effect free, safely shared across
// concurrent requests, as spec.md §5 requires.
package protocol

import (
	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
)

// ParseOptions carries the optional onError hook threaded through parsing,
// fired on any recoverable condition per spec.md §7 (malformed XML tolerated,
// JSON recovery activated, unknown content stringified).
type ParseOptions struct {
	OnError func(message string, metadata map[string]interface{})
}

// ToolResult is the rendering input for a protocol's tool-response template:
// one tool's output, ready to be spliced into the rewritten conversation
// history as plain user-role text.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	Output     core.ToolResultOutput
}

// StreamState is an opaque, protocol-owned streaming cursor. Callers obtain
// one via Protocol.NewStreamState and thread it through ParseStreamChunk
// calls for the lifetime of one response; it must not be shared across
// concurrent streams.
type StreamState interface{}

// Protocol is the closed interface every textual tool-call grammar
// implements (spec.md §4.3). Implementations are immutable: constructing one
// takes no mutable state, and every method is safe for concurrent use by
// independent streams.
type Protocol interface {
	// Name identifies the protocol, used only for diagnostics/tie-breaks.
	Name() string

	// FormatTools renders the tools-system instructional text block spliced
	// into the system prompt. systemTemplate, when non-empty, is used as the
	// surrounding template; an empty template falls back to the protocol's
	// built-in default wording.
	FormatTools(tools []types.Tool, systemTemplate string) string

	// FormatToolCall renders the assistant-side textual serialisation of one
	// completed tool call, used when rewriting history.
	FormatToolCall(call core.ToolCall) string

	// FormatToolResponse renders one tool result as plain text, used when
	// rewriting a tool-role history message into user-role text.
	FormatToolResponse(result ToolResult) string

	// ParseGeneratedText splits a completed text into interleaved Text and
	// ToolCall content parts in byte order. Bytes outside a recognised
	// region are never lost or duplicated.
	ParseGeneratedText(text string, tools []types.Tool, options ParseOptions) []core.ContentPart

	// ExtractToolCallSegments returns the raw recognised call substrings,
	// used only for debug summaries.
	ExtractToolCallSegments(text string, tools []types.Tool) []string

	// NewStreamState returns a fresh streaming cursor for one response.
	NewStreamState() StreamState

	// ParseStreamChunk advances state with one more chunk of delta text and
	// returns zero or more events implied by it.
	ParseStreamChunk(state StreamState, chunk string, tools []types.Tool, options ParseOptions) []core.Event

	// Flush is called once the upstream model signals it is finished. Any
	// bytes still buffered (an unterminated call, or text held back because
	// it might still become one) are surfaced as a final TextDelta and
	// reported through options.OnError, never silently dropped and never
	// promoted into a ToolCall without a matching close.
	Flush(state StreamState, options ParseOptions) []core.Event
}
