package convert

import (
	"encoding/json"
	"fmt"

	"github.com/relaylayer/llmcore/internal/model"
)

func finishReasonString(fr model.FinishReason) *string {
	if fr == "" {
		return nil
	}
	s := string(fr)
	return &s
}

// ToOpenAIResponse renders the intermediate response as an OpenAI
// chat-completion response body.
func ToOpenAIResponse(resp model.ChatResponse) OpenAIChatResponse {
	msg := &openAIRespMessage{
		Role:    string(model.RoleAssistant),
		Content: resp.Content,
	}
	for i, tc := range resp.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openAIRespToolCall{
			Index: i,
			ID:    tc.ID,
			Type:  "function",
			Function: openAIToolCallDelta{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}

	return OpenAIChatResponse{
		ID:     resp.ID,
		Object: "chat.completion",
		Model:  resp.Model,
		Choices: []openAIChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: finishReasonString(resp.FinishReason),
		}},
		Usage: openAIUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// DecodeOpenAIResponse parses an upstream OpenAI-wire response body.
func DecodeOpenAIResponse(body []byte) (OpenAIChatResponse, error) {
	var resp OpenAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OpenAIChatResponse{}, fmt.Errorf("decode openai response: %w", err)
	}
	return resp, nil
}

// FromOpenAIResponse maps an upstream OpenAI-wire response into the
// intermediate representation, used when the selected instance itself
// speaks the OpenAI protocol and its response must re-enter the same
// canonical pipeline every other provider's response goes through.
func FromOpenAIResponse(resp OpenAIChatResponse) model.ChatResponse {
	out := model.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: model.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	if choice.FinishReason != nil {
		out.FinishReason = model.FinishReason(*choice.FinishReason)
	}
	if choice.Message == nil {
		return out
	}
	out.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
		})
	}
	return out
}

// ToOpenAIChunk renders one normalized stream chunk as an OpenAI SSE chunk
// payload. Returns ok == false for chunk kinds that carry no wire
// representation on their own (callers should simply not emit anything).
func ToOpenAIChunk(id, modelName string, c model.StreamChunk) (OpenAIChunk, bool) {
	delta := &openAIRespMessage{}
	chunk := OpenAIChunk{ID: id, Object: "chat.completion.chunk", Model: modelName}

	switch c.Kind {
	case model.ChunkRoleStart:
		delta.Role = string(model.RoleAssistant)
	case model.ChunkTextDelta:
		delta.Content = c.TextDelta
	case model.ChunkToolStart:
		delta.ToolCalls = []openAIRespToolCall{{
			Index: c.ToolIndex,
			ID:    c.ToolID,
			Type:  "function",
			Function: openAIToolCallDelta{
				Name: c.ToolName,
			},
		}}
	case model.ChunkToolDelta:
		delta.ToolCalls = []openAIRespToolCall{{
			Index: c.ToolIndex,
			Function: openAIToolCallDelta{
				Arguments: c.ToolArgsDelta,
			},
		}}
	case model.ChunkFinish:
		chunk.Choices = []openAIChoice{{Index: 0, Delta: &openAIRespMessage{}, FinishReason: finishReasonString(c.FinishReason)}}
		if c.Usage != nil {
			chunk.Usage = &openAIUsage{
				PromptTokens:     c.Usage.InputTokens,
				CompletionTokens: c.Usage.OutputTokens,
				TotalTokens:      c.Usage.InputTokens + c.Usage.OutputTokens,
			}
		}
		return chunk, true
	case model.ChunkDone:
		return OpenAIChunk{}, false
	default:
		return OpenAIChunk{}, false
	}

	chunk.Choices = []openAIChoice{{Index: 0, Delta: delta, FinishReason: nil}}
	return chunk, true
}
