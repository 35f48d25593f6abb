package convert

import (
	"encoding/json"
	"fmt"

	"github.com/relaylayer/llmcore/internal/model"
)

// OpenAISSEDecoder normalizes an upstream OpenAI-wire SSE stream into
// model.StreamChunk, the same intermediate shape every other provider's
// streaming adapter produces, so a target instance that itself speaks the
// OpenAI protocol re-enters the same pipeline as Anthropic/Gemini targets
// instead of a special-cased passthrough.
type OpenAISSEDecoder struct {
	emittedRole bool
}

// NewOpenAISSEDecoder builds a decoder for one stream.
func NewOpenAISSEDecoder() *OpenAISSEDecoder {
	return &OpenAISSEDecoder{}
}

// Decode handles one SSE "data:" payload. data == "[DONE]" yields a Done chunk.
func (d *OpenAISSEDecoder) Decode(data []byte) ([]model.StreamChunk, error) {
	if string(data) == "[DONE]" {
		return []model.StreamChunk{{Kind: model.ChunkDone}}, nil
	}

	var chunk OpenAIChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("decode openai sse chunk: %w", err)
	}

	var out []model.StreamChunk
	if !d.emittedRole {
		d.emittedRole = true
		out = append(out, model.StreamChunk{Kind: model.ChunkRoleStart})
	}
	if len(chunk.Choices) == 0 {
		return out, nil
	}
	choice := chunk.Choices[0]

	if choice.Delta != nil {
		if choice.Delta.Content != "" {
			out = append(out, model.StreamChunk{Kind: model.ChunkTextDelta, TextDelta: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			if tc.ID != "" || tc.Function.Name != "" {
				out = append(out, model.StreamChunk{
					Kind: model.ChunkToolStart, ToolIndex: tc.Index, ToolID: tc.ID, ToolName: tc.Function.Name,
				})
			}
			if tc.Function.Arguments != "" {
				out = append(out, model.StreamChunk{
					Kind: model.ChunkToolDelta, ToolIndex: tc.Index, ToolArgsDelta: tc.Function.Arguments,
				})
			}
		}
	}

	if choice.FinishReason != nil {
		fin := model.StreamChunk{Kind: model.ChunkFinish, FinishReason: model.FinishReason(*choice.FinishReason)}
		if chunk.Usage != nil {
			fin.Usage = &model.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		out = append(out, fin)
	}

	return out, nil
}
