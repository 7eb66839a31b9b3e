package toolcallmiddleware

import "github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/core"

// DebugInfo is handed to Options.OnDebug after every generate/stream
// completion: the untouched model output plus the calls recognised in it,
// so a caller can log or persist both sides of the parse without the
// middleware needing to know anything about files or sinks.
type DebugInfo struct {
	OriginalText  string
	ToolCallsJSON string
}

func buildDebugInfo(originalText string, calls []core.ToolCall) DebugInfo {
	encoded, _ := core.MarshalDebugToolCalls(calls)
	return DebugInfo{OriginalText: originalText, ToolCallsJSON: encoded}
}
