package convert

import (
	"encoding/json"
	"fmt"

	"github.com/relaylayer/llmcore/internal/model"
)

// ParseAnthropicRequest decodes a client request arriving on the native
// /v1/messages endpoint into the intermediate representation — the reverse
// of ToAnthropicRequest. This lets the native endpoint share the same
// routing/retry pipeline as the OpenAI-compatible endpoint instead of a
// separate code path; the one documented fix-up (dropping an unsigned
// "thinking" block on replay) is re-applied uniformly when the request is
// re-serialized for the chosen instance via ToAnthropicRequest.
func ParseAnthropicRequest(body []byte) (model.ChatRequest, error) {
	var raw AnthropicRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.ChatRequest{}, fmt.Errorf("decode anthropic request: %w", err)
	}

	req := model.ChatRequest{
		Model:     raw.Model,
		Stream:    raw.Stream,
		MaxTokens: raw.MaxTokens,
	}
	if raw.Temperature != nil {
		req.Temperature = *raw.Temperature
		req.HasTemp = true
	}
	if raw.TopP != nil {
		req.TopP = *raw.TopP
		req.HasTopP = true
	}

	if sysText := anthropicSystemText(raw.System); sysText != "" {
		req.Messages = append(req.Messages, model.Message{
			Role: model.RoleSystem, Content: model.PlainText(sysText),
		})
	}

	for _, m := range raw.Messages {
		msg, err := parseAnthropicMessage(m)
		if err != nil {
			return model.ChatRequest{}, err
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range raw.Tools {
		req.Tools = append(req.Tools, model.ToolDefinition{
			Name: t.Name, Description: t.Description, Parameters: t.InputSchema,
		})
	}
	if raw.ToolChoice != nil {
		req.ToolChoice = fromAnthropicToolChoice(*raw.ToolChoice)
	}

	return req, nil
}

// anthropicSystemText handles both shapes of the "system" field: a bare
// string, or a block-sequence (used when cache_control markers are present).
func anthropicSystemText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var out string
	for _, b := range blocks {
		out += b.Text
	}
	return out
}

func parseAnthropicMessage(m anthropicMessage) (model.Message, error) {
	role := model.Role(m.Role)
	out := model.Message{Role: role}

	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		out.Content = model.PlainText(asString)
		return out, nil
	}

	var blocks []anthropicContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return model.Message{}, fmt.Errorf("anthropic message content neither string nor block array: %w", err)
	}

	out.Content = model.MessageContent{IsBlocks: true, Blocks: make([]model.ContentBlock, 0, len(blocks))}
	for _, b := range blocks {
		block, ok := fromAnthropicBlock(b)
		if !ok {
			continue
		}
		out.Content.Blocks = append(out.Content.Blocks, block)
	}
	return out, nil
}

func fromAnthropicBlock(b anthropicContentBlock) (model.ContentBlock, bool) {
	switch b.Type {
	case "text":
		return model.ContentBlock{Kind: model.BlockText, Text: b.Text}, true
	case "image":
		if b.Source == nil {
			return model.ContentBlock{}, false
		}
		return model.ContentBlock{
			Kind: model.BlockImage,
			Image: model.ImageSource{
				Kind: model.ImageSourceBase64, MIME: b.Source.MediaType, Data: b.Source.Data,
			},
		}, true
	case "tool_use":
		return model.ContentBlock{
			Kind: model.BlockToolUse, ToolUseID: b.ID, ToolName: b.Name, ToolInput: b.Input,
		}, true
	case "tool_result":
		return model.ContentBlock{
			Kind: model.BlockToolResult, ToolResultForID: b.ToolUseID,
			ToolResultText: string(b.Content), ToolResultError: b.IsError,
		}, true
	case "thinking":
		raw, _ := json.Marshal(b)
		return model.ContentBlock{
			Kind: model.BlockPassthrough, PassthroughKind: "thinking",
			PassthroughValue: raw, PassthroughSignature: b.Signature,
		}, true
	default:
		return model.ContentBlock{}, false
	}
}

func fromAnthropicToolChoice(tc anthropicToolChoice) *model.ToolChoice {
	switch tc.Type {
	case "auto":
		return &model.ToolChoice{Mode: model.ToolChoiceAuto}
	case "any":
		return &model.ToolChoice{Mode: model.ToolChoiceRequired}
	case "tool":
		return &model.ToolChoice{Mode: model.ToolChoiceNamed, Name: tc.Name}
	case "none":
		return &model.ToolChoice{Mode: model.ToolChoiceNone}
	default:
		return nil
	}
}
