package extractor

import (
	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/protocol"
)

// StreamExtractor wraps one protocol's streaming cursor for the lifetime of
// a single response, converting delta text into tool-input/tool-call
// events. It is not safe for concurrent use by more than one stream, matching
// the protocol.StreamState contract.
//
// Modeled on pkg/middleware/extract_reasoning.go's extractReasoningStream:
// a phase-aware buffer that searches for the next relevant marker and only
// advances state on a complete match, deferring on a partial one.
type StreamExtractor struct {
	proto   protocol.Protocol
	state   protocol.StreamState
	tools   []types.Tool
	options protocol.ParseOptions
}

// NewStreamExtractor starts a fresh extraction cursor for one response.
func NewStreamExtractor(proto protocol.Protocol, tools []types.Tool, options protocol.ParseOptions) *StreamExtractor {
	return &StreamExtractor{
		proto:   proto,
		state:   proto.NewStreamState(),
		tools:   tools,
		options: options,
	}
}

// Push feeds one more chunk of delta text and returns the events it implies.
func (s *StreamExtractor) Push(chunk string) []core.Event {
	if chunk == "" {
		return nil
	}
	return s.proto.ParseStreamChunk(s.state, chunk, s.tools, s.options)
}

// Finish signals that the upstream model has no more text. Any content
// still buffered is flushed as text (never silently dropped, never promoted
// into a ToolCall without a matching close marker).
func (s *StreamExtractor) Finish() []core.Event {
	return s.proto.Flush(s.state, s.options)
}

// Cancel abandons the in-flight response (e.g. on context cancellation or
// upstream error) without emitting any further events: a cancelled stream
// must never surface a synthetic, possibly-wrong tool call built from a
// partial buffer.
func (s *StreamExtractor) Cancel() {
	s.state = s.proto.NewStreamState()
}
