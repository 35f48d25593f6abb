package convert

import (
	"encoding/json"
	"fmt"

	"github.com/relaylayer/llmcore/internal/model"
)

// AnthropicSSEDecoder holds the per-block-index state §4.4.3 requires to
// turn Anthropic's named-event stream into the normalized chunk sequence.
// One decoder serves exactly one response stream.
type AnthropicSSEDecoder struct {
	blockKinds map[int]string // index -> "text" | "tool_use"
	emittedRole bool
}

// NewAnthropicSSEDecoder returns a fresh decoder.
func NewAnthropicSSEDecoder() *AnthropicSSEDecoder {
	return &AnthropicSSEDecoder{blockKinds: make(map[int]string)}
}

// Decode processes one named SSE event (event name + its data payload) and
// returns zero or more normalized chunks, per the event-to-chunk mapping of
// §4.4.3. Unknown event names are ignored, matching "no output" behavior
// for event types the mapping doesn't mention (e.g. "ping").
func (d *AnthropicSSEDecoder) Decode(event string, data []byte) ([]model.StreamChunk, error) {
	switch event {
	case "message_start":
		d.emittedRole = true
		return []model.StreamChunk{{Kind: model.ChunkRoleStart}}, nil

	case "content_block_start":
		var ev anthropicSSEContentBlockStart
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode content_block_start: %w", err)
		}
		d.blockKinds[ev.Index] = ev.ContentBlock.Type
		if ev.ContentBlock.Type == "tool_use" {
			return []model.StreamChunk{{
				Kind:      model.ChunkToolStart,
				ToolIndex: ev.Index,
				ToolID:    ev.ContentBlock.ID,
				ToolName:  ev.ContentBlock.Name,
			}}, nil
		}
		return nil, nil

	case "content_block_delta":
		var ev anthropicSSEContentBlockDelta
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode content_block_delta: %w", err)
		}
		switch ev.Delta.Type {
		case "text_delta":
			return []model.StreamChunk{{Kind: model.ChunkTextDelta, TextDelta: ev.Delta.Text}}, nil
		case "input_json_delta":
			return []model.StreamChunk{{
				Kind:          model.ChunkToolDelta,
				ToolIndex:     ev.Index,
				ToolArgsDelta: ev.Delta.PartialJSON,
			}}, nil
		default:
			// thinking_delta/signature_delta: no OpenAI equivalent.
			return nil, nil
		}

	case "content_block_stop":
		return nil, nil

	case "message_delta":
		var ev anthropicSSEMessageDelta
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode message_delta: %w", err)
		}
		chunk := model.StreamChunk{
			Kind:         model.ChunkFinish,
			FinishReason: mapStopReason(ev.Delta.StopReason),
		}
		if ev.Usage.InputTokens > 0 || ev.Usage.OutputTokens > 0 {
			chunk.Usage = &model.Usage{
				InputTokens:              ev.Usage.InputTokens,
				OutputTokens:             ev.Usage.OutputTokens,
				CacheCreationInputTokens: ev.Usage.CacheCreationInputTokens,
				CacheReadInputTokens:     ev.Usage.CacheReadInputTokens,
			}
		}
		return []model.StreamChunk{chunk}, nil

	case "message_stop":
		return []model.StreamChunk{{Kind: model.ChunkDone}}, nil

	default:
		return nil, nil
	}
}
