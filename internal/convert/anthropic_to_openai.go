package convert

import (
	"encoding/json"

	"github.com/relaylayer/llmcore/internal/model"
)

// FromAnthropicResponse implements §4.4.2: text blocks concatenate,
// tool_use blocks become tool_calls, thinking blocks are dropped, and
// stop_reason/usage are mapped onto the OpenAI-shaped intermediate.
func FromAnthropicResponse(resp AnthropicResponse) model.ChatResponse {
	var content string
	var calls []model.ToolCall

	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			content += b.Text
		case "tool_use":
			calls = append(calls, model.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(b.Input),
			})
		case "thinking":
			// No OpenAI equivalent; dropped.
		}
	}

	return model.ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      content,
		ToolCalls:    calls,
		FinishReason: mapStopReason(resp.StopReason),
		Usage: model.Usage{
			InputTokens:              resp.Usage.InputTokens,
			OutputTokens:             resp.Usage.OutputTokens,
			CacheCreationInputTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     resp.Usage.CacheReadInputTokens,
		},
	}
}

func mapStopReason(r string) model.FinishReason {
	switch r {
	case "end_turn", "stop_sequence":
		return model.FinishStop
	case "max_tokens":
		return model.FinishLength
	case "tool_use":
		return model.FinishToolCalls
	default:
		return model.FinishStop
	}
}

// DecodeAnthropicResponse unmarshals a non-streaming native response body.
func DecodeAnthropicResponse(body []byte) (AnthropicResponse, error) {
	var resp AnthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return AnthropicResponse{}, err
	}
	return resp, nil
}
