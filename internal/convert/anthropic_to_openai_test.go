package convert

import (
	"testing"

	"github.com/relaylayer/llmcore/internal/model"
)

func TestFromAnthropicResponse_TextAndToolUse(t *testing.T) {
	resp := AnthropicResponse{
		ID:    "msg_1",
		Model: "claude-3-5-sonnet",
		Content: []anthropicContentBlock{
			{Type: "text", Text: "The weather is "},
			{Type: "tool_use", ID: "call_1", Name: "get_weather", Input: []byte(`{"city":"nyc"}`)},
			{Type: "thinking", Thinking: "reasoning..."},
		},
		StopReason: "tool_use",
		Usage:      anthropicUsage{InputTokens: 10, OutputTokens: 5},
	}

	out := FromAnthropicResponse(resp)
	if out.Content != "The weather is " {
		t.Errorf("Content = %q", out.Content)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("ToolCalls = %+v", out.ToolCalls)
	}
	if out.FinishReason != model.FinishToolCalls {
		t.Errorf("FinishReason = %v, want tool_calls", out.FinishReason)
	}
	if out.Usage.InputTokens != 10 || out.Usage.OutputTokens != 5 {
		t.Errorf("Usage = %+v", out.Usage)
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]model.FinishReason{
		"end_turn":      model.FinishStop,
		"stop_sequence": model.FinishStop,
		"max_tokens":    model.FinishLength,
		"tool_use":      model.FinishToolCalls,
	}
	for in, want := range cases {
		if got := mapStopReason(in); got != want {
			t.Errorf("mapStopReason(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAnthropicSSEDecoder_FullSequence(t *testing.T) {
	d := NewAnthropicSSEDecoder()

	chunks, err := d.Decode("message_start", []byte(`{"message":{"id":"msg_1","model":"claude-3-5-sonnet","usage":{"input_tokens":10,"output_tokens":0}}}`))
	if err != nil || len(chunks) != 1 || chunks[0].Kind != model.ChunkRoleStart {
		t.Fatalf("message_start: chunks=%+v err=%v", chunks, err)
	}

	chunks, err = d.Decode("content_block_start", []byte(`{"index":0,"content_block":{"type":"text"}}`))
	if err != nil || len(chunks) != 0 {
		t.Fatalf("content_block_start text: expected no output, got %+v err=%v", chunks, err)
	}

	chunks, err = d.Decode("content_block_delta", []byte(`{"index":0,"delta":{"type":"text_delta","text":"hi"}}`))
	if err != nil || len(chunks) != 1 || chunks[0].TextDelta != "hi" {
		t.Fatalf("text_delta: %+v err=%v", chunks, err)
	}

	chunks, err = d.Decode("content_block_stop", []byte(`{"index":0}`))
	if err != nil || len(chunks) != 0 {
		t.Fatalf("content_block_stop: %+v err=%v", chunks, err)
	}

	chunks, err = d.Decode("content_block_start", []byte(`{"index":1,"content_block":{"type":"tool_use","id":"call_1","name":"get_weather"}}`))
	if err != nil || len(chunks) != 1 || chunks[0].Kind != model.ChunkToolStart || chunks[0].ToolID != "call_1" {
		t.Fatalf("tool_use start: %+v err=%v", chunks, err)
	}

	chunks, err = d.Decode("content_block_delta", []byte(`{"index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`))
	if err != nil || len(chunks) != 1 || chunks[0].Kind != model.ChunkToolDelta {
		t.Fatalf("input_json_delta: %+v err=%v", chunks, err)
	}

	chunks, err = d.Decode("message_delta", []byte(`{"delta":{"stop_reason":"tool_use"},"usage":{"input_tokens":10,"output_tokens":3}}`))
	if err != nil || len(chunks) != 1 || chunks[0].Kind != model.ChunkFinish || chunks[0].FinishReason != model.FinishToolCalls {
		t.Fatalf("message_delta: %+v err=%v", chunks, err)
	}

	chunks, err = d.Decode("message_stop", nil)
	if err != nil || len(chunks) != 1 || chunks[0].Kind != model.ChunkDone {
		t.Fatalf("message_stop: %+v err=%v", chunks, err)
	}
}
