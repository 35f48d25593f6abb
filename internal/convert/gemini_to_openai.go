package convert

import (
	"encoding/json"

	"github.com/relaylayer/llmcore/internal/model"
)

// FromGeminiResponse implements the Gemini→OpenAI response half of §4.4.4:
// only the first candidate is kept, its parts are flattened, and
// functionCall parts become tool_calls.
func FromGeminiResponse(resp GeminiResponse) model.ChatResponse {
	out := model.ChatResponse{}
	if len(resp.Candidates) == 0 {
		return out
	}
	cand := resp.Candidates[0]

	for _, p := range cand.Content.Parts {
		if p.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:      p.FunctionCall.Name,
				Arguments: string(p.FunctionCall.Args),
			})
			continue
		}
		out.Content += p.Text
	}

	out.FinishReason = mapGeminiFinishReason(cand.FinishReason)
	if len(out.ToolCalls) > 0 {
		out.FinishReason = model.FinishToolCalls
	}
	if resp.UsageMeta != nil {
		out.Usage = model.Usage{
			InputTokens:  resp.UsageMeta.PromptTokenCount,
			OutputTokens: resp.UsageMeta.CandidatesTokenCount,
		}
	}
	return out
}

func mapGeminiFinishReason(r string) model.FinishReason {
	switch r {
	case "STOP":
		return model.FinishStop
	case "MAX_TOKENS":
		return model.FinishLength
	case "SAFETY", "RECITATION":
		return model.FinishContentFilter
	default:
		return model.FinishStop
	}
}

// DecodeGeminiResponse unmarshals a non-streaming generateContent body.
func DecodeGeminiResponse(body []byte) (GeminiResponse, error) {
	var resp GeminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return GeminiResponse{}, err
	}
	return resp, nil
}

// GeminiSSEDecoder turns Gemini's one-JSON-object-per-SSE-event stream
// (streamGenerateContent?alt=sse) into normalized chunks. Gemini has no
// named events: every payload is a partial GeminiResponse.
type GeminiSSEDecoder struct {
	emittedRole bool
	toolIndex   int
}

// NewGeminiSSEDecoder returns a fresh decoder.
func NewGeminiSSEDecoder() *GeminiSSEDecoder {
	return &GeminiSSEDecoder{}
}

// Decode processes one SSE data payload (a full GeminiResponse JSON object)
// and returns the normalized chunks it implies.
func (d *GeminiSSEDecoder) Decode(data []byte) ([]model.StreamChunk, error) {
	var resp GeminiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	var chunks []model.StreamChunk
	if !d.emittedRole {
		d.emittedRole = true
		chunks = append(chunks, model.StreamChunk{Kind: model.ChunkRoleStart})
	}

	if len(resp.Candidates) == 0 {
		return chunks, nil
	}
	cand := resp.Candidates[0]

	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			idx := d.toolIndex
			d.toolIndex++
			chunks = append(chunks,
				model.StreamChunk{Kind: model.ChunkToolStart, ToolIndex: idx, ToolName: p.FunctionCall.Name},
				model.StreamChunk{Kind: model.ChunkToolDelta, ToolIndex: idx, ToolArgsDelta: string(p.FunctionCall.Args)},
			)
		case p.Text != "":
			chunks = append(chunks, model.StreamChunk{Kind: model.ChunkTextDelta, TextDelta: p.Text})
		}
	}

	if cand.FinishReason != "" {
		fr := mapGeminiFinishReason(cand.FinishReason)
		if len(cand.Content.Parts) > 0 && cand.Content.Parts[0].FunctionCall != nil {
			fr = model.FinishToolCalls
		}
		chunk := model.StreamChunk{Kind: model.ChunkFinish, FinishReason: fr}
		if resp.UsageMeta != nil {
			chunk.Usage = &model.Usage{
				InputTokens:  resp.UsageMeta.PromptTokenCount,
				OutputTokens: resp.UsageMeta.CandidatesTokenCount,
			}
		}
		chunks = append(chunks, chunk, model.StreamChunk{Kind: model.ChunkDone})
	}

	return chunks, nil
}
