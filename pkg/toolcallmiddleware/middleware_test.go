package toolcallmiddleware

import (
	"context"
	"io"
	"testing"

	"github.com/digitallysavvy/go-ai/pkg/middleware"
	"github.com/digitallysavvy/go-ai/pkg/provider"
	"github.com/digitallysavvy/go-ai/pkg/provider/types"
	"github.com/digitallysavvy/go-ai/pkg/testutil"
	"github.com/digitallysavvy/go-ai/pkg/toolcallmiddleware/protocol"
)

func weatherTool() types.Tool {
	return types.Tool{Name: "get_weather", Description: "fetches the weather for a city"}
}

func TestNew_WrapGenerate_RecognisesHermesToolCall(t *testing.T) {
	model := &testutil.MockLanguageModel{
		DoGenerateFunc: func(ctx context.Context, opts *provider.GenerateOptions) (*types.GenerateResult, error) {
			return &types.GenerateResult{
				Text:         `<tool_call>{"name": "get_weather", "arguments": {"city": "Seoul"}}</tool_call>`,
				FinishReason: types.FinishReasonStop,
			}, nil
		},
	}

	var debug DebugInfo
	wrapped := middleware.WrapLanguageModel(model, []*middleware.LanguageModelMiddleware{
		New(&Options{OnDebug: func(d DebugInfo) { debug = d }}),
	}, nil, nil)

	result, err := wrapped.DoGenerate(context.Background(), &provider.GenerateOptions{
		Prompt: types.Prompt{Messages: []types.Message{
			{Role: types.RoleUser, Content: []types.ContentPart{types.TextContent{Text: "weather in Seoul?"}}},
		}},
		Tools: []types.Tool{weatherTool()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(result.ToolCalls))
	}
	call := result.ToolCalls[0]
	if call.ToolName != "get_weather" || call.Arguments["city"] != "Seoul" {
		t.Errorf("unexpected tool call: %+v", call)
	}
	if result.FinishReason != types.FinishReasonToolCalls {
		t.Errorf("finish reason = %q, want tool-calls", result.FinishReason)
	}
	if result.Text != "" {
		t.Errorf("text = %q, want empty since the whole response was a call", result.Text)
	}
	if debug.ToolCallsJSON == "" {
		t.Errorf("expected OnDebug to receive a non-empty ToolCallsJSON")
	}

	req := model.GenerateCalls[0]
	if req.Tools != nil {
		t.Errorf("expected the underlying model to see no native Tools, got %+v", req.Tools)
	}
	sysText := req.Prompt.Messages[0].Content[0].(types.TextContent).Text
	if sysText == "" {
		t.Fatal("expected a system message rendering the tool list")
	}
}

func TestNew_WrapGenerate_PlainTextPassesThrough(t *testing.T) {
	model := &testutil.MockLanguageModel{
		DoGenerateFunc: func(ctx context.Context, opts *provider.GenerateOptions) (*types.GenerateResult, error) {
			return &types.GenerateResult{Text: "just a plain answer", FinishReason: types.FinishReasonStop}, nil
		},
	}
	wrapped := middleware.WrapLanguageModel(model, []*middleware.LanguageModelMiddleware{New(nil)}, nil, nil)

	result, err := wrapped.DoGenerate(context.Background(), &provider.GenerateOptions{
		Prompt: types.Prompt{Text: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "just a plain answer" || len(result.ToolCalls) != 0 {
		t.Errorf("got %+v", result)
	}
}

func TestNew_TransformParams_RejectsProviderExecutedTools(t *testing.T) {
	model := &testutil.MockLanguageModel{}
	wrapped := middleware.WrapLanguageModel(model, []*middleware.LanguageModelMiddleware{New(nil)}, nil, nil)

	_, err := wrapped.DoGenerate(context.Background(), &provider.GenerateOptions{
		Prompt: types.Prompt{Text: "hi"},
		Tools:  []types.Tool{{Name: "search", ProviderExecuted: true}},
	})
	if err == nil {
		t.Fatal("expected an error for a provider-executed tool")
	}
}

func TestNew_WrapStream_SplitAcrossChunksEmitsOneToolCall(t *testing.T) {
	chunks := []provider.StreamChunk{
		{Type: provider.ChunkTypeText, Text: "<tool_call>{\"name\": \"get_"},
		{Type: provider.ChunkTypeText, Text: "weather\", \"arguments\": "},
		{Type: provider.ChunkTypeText, Text: "{\"city\": \"Seoul\"}}</tool_call>"},
		{Type: provider.ChunkTypeFinish, FinishReason: types.FinishReasonStop},
	}
	model := &testutil.MockLanguageModel{
		DoStreamFunc: func(ctx context.Context, opts *provider.GenerateOptions) (provider.TextStream, error) {
			return testutil.NewMockTextStream(chunks), nil
		},
	}

	var debug DebugInfo
	wrapped := middleware.WrapLanguageModel(model, []*middleware.LanguageModelMiddleware{
		New(&Options{Protocol: protocol.NewHermesProtocol(), OnDebug: func(d DebugInfo) { debug = d }}),
	}, nil, nil)

	stream, err := wrapped.DoStream(context.Background(), &provider.GenerateOptions{
		Prompt: types.Prompt{Text: "weather in Seoul?"},
		Tools:  []types.Tool{weatherTool()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var toolCalls int
	var textDeltas int
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		switch chunk.Type {
		case provider.ChunkTypeToolCall:
			toolCalls++
			if chunk.ToolCall.ToolName != "get_weather" || chunk.ToolCall.Arguments["city"] != "Seoul" {
				t.Errorf("unexpected tool call chunk: %+v", chunk.ToolCall)
			}
		case provider.ChunkTypeText:
			textDeltas++
		}
	}
	if toolCalls != 1 {
		t.Errorf("expected exactly 1 tool call chunk, got %d", toolCalls)
	}
	if textDeltas != 0 {
		t.Errorf("expected no text delta chunks, got %d", textDeltas)
	}
	if debug.ToolCallsJSON == "" {
		t.Errorf("expected OnDebug to fire with the recognised call")
	}
}

func TestNew_WrapStream_UnterminatedCallFlushesAsTextOnFinish(t *testing.T) {
	chunks := []provider.StreamChunk{
		{Type: provider.ChunkTypeText, Text: "<tool_call>{\"name\": \"get_weather\""},
	}
	model := &testutil.MockLanguageModel{
		DoStreamFunc: func(ctx context.Context, opts *provider.GenerateOptions) (provider.TextStream, error) {
			return testutil.NewMockTextStream(chunks), nil
		},
	}

	var gotErr bool
	wrapped := middleware.WrapLanguageModel(model, []*middleware.LanguageModelMiddleware{
		New(&Options{
			Protocol: protocol.NewHermesProtocol(),
			OnError:  func(message string, metadata map[string]interface{}) { gotErr = true },
		}),
	}, nil, nil)

	stream, err := wrapped.DoStream(context.Background(), &provider.GenerateOptions{
		Prompt: types.Prompt{Text: "weather?"},
		Tools:  []types.Tool{weatherTool()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawText bool
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		if chunk.Type == provider.ChunkTypeText {
			sawText = true
		}
	}
	if !sawText {
		t.Error("expected the unterminated buffer to be flushed as text on finish")
	}
	if !gotErr {
		t.Error("expected OnError to fire for the unterminated call")
	}
}

func TestNew_WrapGenerate_RequiredToolChoiceUsesJSONSchemaMode(t *testing.T) {
	var seenOpts *provider.GenerateOptions
	model := &testutil.MockLanguageModel{
		DoGenerateFunc: func(ctx context.Context, opts *provider.GenerateOptions) (*types.GenerateResult, error) {
			seenOpts = opts
			return &types.GenerateResult{
				Text:         `{"name": "get_weather", "arguments": {"city": "Seoul"}}`,
				FinishReason: types.FinishReasonStop,
			}, nil
		},
	}
	wrapped := middleware.WrapLanguageModel(model, []*middleware.LanguageModelMiddleware{New(nil)}, nil, nil)

	result, err := wrapped.DoGenerate(context.Background(), &provider.GenerateOptions{
		Prompt:     types.Prompt{Text: "weather in Seoul?"},
		Tools:      []types.Tool{weatherTool()},
		ToolChoice: types.RequiredToolChoice(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seenOpts.ResponseFormat == nil || seenOpts.ResponseFormat.Type != "json_schema" {
		t.Fatalf("expected the underlying model to see a json_schema ResponseFormat, got %+v", seenOpts.ResponseFormat)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected exactly 1 tool call, got %d", len(result.ToolCalls))
	}
	call := result.ToolCalls[0]
	if call.ToolName != "get_weather" || call.Arguments["city"] != "Seoul" {
		t.Errorf("unexpected tool call: %+v", call)
	}
	if result.Text != "" {
		t.Errorf("text = %q, want empty", result.Text)
	}
	if result.FinishReason != types.FinishReasonToolCalls {
		t.Errorf("finish reason = %q, want tool-calls", result.FinishReason)
	}
}

func TestNew_WrapGenerate_ForcedToolChoiceMismatchFallsBackToText(t *testing.T) {
	model := &testutil.MockLanguageModel{
		DoGenerateFunc: func(ctx context.Context, opts *provider.GenerateOptions) (*types.GenerateResult, error) {
			return &types.GenerateResult{Text: "sorry, I can't do that", FinishReason: types.FinishReasonStop}, nil
		},
	}

	var gotErr bool
	wrapped := middleware.WrapLanguageModel(model, []*middleware.LanguageModelMiddleware{
		New(&Options{OnError: func(message string, metadata map[string]interface{}) { gotErr = true }}),
	}, nil, nil)

	result, err := wrapped.DoGenerate(context.Background(), &provider.GenerateOptions{
		Prompt:     types.Prompt{Text: "weather in Seoul?"},
		Tools:      []types.Tool{weatherTool()},
		ToolChoice: types.RequiredToolChoice(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.ToolCalls) != 0 {
		t.Errorf("expected no tool calls for an unparseable forced response, got %+v", result.ToolCalls)
	}
	if !gotErr {
		t.Error("expected OnError to fire when the forced response didn't match the schema")
	}
}

func TestNew_WrapStream_ForcedToolChoiceEmitsOneToolCallOnFinish(t *testing.T) {
	chunks := []provider.StreamChunk{
		{Type: provider.ChunkTypeText, Text: `{"name": "get_`},
		{Type: provider.ChunkTypeText, Text: `weather", "arguments": {"city": "Seoul"}}`},
		{Type: provider.ChunkTypeFinish, FinishReason: types.FinishReasonStop},
	}
	model := &testutil.MockLanguageModel{
		DoStreamFunc: func(ctx context.Context, opts *provider.GenerateOptions) (provider.TextStream, error) {
			return testutil.NewMockTextStream(chunks), nil
		},
	}
	wrapped := middleware.WrapLanguageModel(model, []*middleware.LanguageModelMiddleware{New(nil)}, nil, nil)

	stream, err := wrapped.DoStream(context.Background(), &provider.GenerateOptions{
		Prompt:     types.Prompt{Text: "weather in Seoul?"},
		Tools:      []types.Tool{weatherTool()},
		ToolChoice: types.RequiredToolChoice(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var toolCalls int
	var textDeltas int
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		switch chunk.Type {
		case provider.ChunkTypeToolCall:
			toolCalls++
			if chunk.ToolCall.ToolName != "get_weather" || chunk.ToolCall.Arguments["city"] != "Seoul" {
				t.Errorf("unexpected tool call chunk: %+v", chunk.ToolCall)
			}
		case provider.ChunkTypeText:
			textDeltas++
		}
	}
	if toolCalls != 1 {
		t.Errorf("expected exactly 1 tool call chunk, got %d", toolCalls)
	}
	if textDeltas != 0 {
		t.Errorf("expected no text delta chunks, got %d", textDeltas)
	}
}
