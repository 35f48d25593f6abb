package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaylayer/llmcore/internal/model"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicOptions parameterizes the OpenAI→Anthropic conversion with the
// per-instance settings that affect it (§4.4.1's auto-cache paragraph).
type AnthropicOptions struct {
	AutoCacheThresholdTokens int
	AutoCacheTools           bool
}

// ToAnthropicRequest implements §4.4.1: it is a pure function of
// (request, options) and never fails for a lossy parameter — those are
// dropped with a warning instead. It fails with UnsupportedParameter for
// n > 1, which has no lossy equivalent, and with ConversionError when a
// content block cannot be converted (an unresolved image URL, an
// undecodable passthrough block).
func ToAnthropicRequest(req model.ChatRequest, opts AnthropicOptions) (AnthropicRequest, []model.Warning, error) {
	if req.N > 1 {
		return AnthropicRequest{}, nil, model.NewUnsupportedParameter("n", "anthropic does not support n > 1")
	}

	var warnings []model.Warning
	out := AnthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultAnthropicMaxTokens
	}

	if req.HasTemp {
		t := req.Temperature
		if t > 1.0 {
			warnings = append(warnings, model.Warning{
				Level: model.WarningWarn, Parameter: "temperature",
				Message: "temperature above 1.0 is not supported by anthropic; clamped to 1.0",
			})
			t = 1.0
		}
		out.Temperature = &t
	}
	if req.HasTopP {
		out.TopP = &req.TopP
	}

	messages := req.Messages
	var systemParts []string
	for len(messages) > 0 && messages[0].Role == model.RoleSystem {
		systemParts = append(systemParts, messages[0].Content.ConcatText())
		messages = messages[1:]
	}

	anthMessages := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		blocks, err := toAnthropicBlocks(m)
		if err != nil {
			return AnthropicRequest{}, nil, model.NewConversionError(err.Error())
		}
		content, err := json.Marshal(blocks)
		if err != nil {
			return AnthropicRequest{}, nil, model.NewConversionError(err.Error())
		}
		anthMessages = append(anthMessages, anthropicMessage{
			Role:    mapRoleToAnthropic(m.Role),
			Content: content,
		})
	}
	out.Messages = anthMessages

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	if req.ToolChoice != nil {
		out.ToolChoice = mapToolChoiceToAnthropic(*req.ToolChoice)
		if req.ToolChoice.Mode == model.ToolChoiceNone {
			out.Tools = nil
		}
	}

	systemText := strings.Join(systemParts, "\n")
	if req.JSONMode {
		systemText = appendJSONModeClause(systemText)
		warnings = append(warnings, model.Warning{
			Level:   model.WarningInfo,
			Message: "json response_format emulated via a system-prompt instruction; anthropic has no native JSON mode",
		})
	}

	sysBlocks, sysWarn := buildSystemField(systemText, opts)
	out.System = sysBlocks
	warnings = append(warnings, sysWarn...)

	if opts.AutoCacheTools && opts.AutoCacheThresholdTokens > 0 && len(out.Tools) > 0 &&
		estimateTokens(systemText) >= opts.AutoCacheThresholdTokens {
		out.Tools[len(out.Tools)-1].CacheControl = &anthropicCacheControl{Type: "ephemeral"}
	}

	for param, dropped := range droppedParams(req) {
		if dropped {
			warnings = append(warnings, model.Warning{
				Level: model.WarningWarn, Parameter: param,
				Message: fmt.Sprintf("%s is not supported by anthropic and was dropped", param),
			})
		}
	}

	return out, warnings, nil
}

// estimateTokens approximates token count as bytes/4, per §4.4.1.
func estimateTokens(s string) int {
	return len(s) / 4
}

func buildSystemField(systemText string, opts AnthropicOptions) (json.RawMessage, []model.Warning) {
	if systemText == "" {
		return nil, nil
	}
	if opts.AutoCacheThresholdTokens <= 0 || estimateTokens(systemText) < opts.AutoCacheThresholdTokens {
		raw, _ := json.Marshal(systemText)
		return raw, nil
	}
	block := anthropicContentBlock{
		Type:         "text",
		Text:         systemText,
		CacheControl: &anthropicCacheControl{Type: "ephemeral"},
	}
	raw, _ := json.Marshal([]anthropicContentBlock{block})
	return raw, nil
}

func appendJSONModeClause(system string) string {
	clause := "Respond with a single valid JSON object and nothing else."
	if system == "" {
		return clause
	}
	return system + "\n\n" + clause
}

func droppedParams(req model.ChatRequest) map[string]bool {
	return map[string]bool{
		"seed":              req.Seed != nil,
		"logprobs":          req.LogProbs,
		"top_logprobs":      req.TopLogProbs != nil,
		"logit_bias":        len(req.LogitBias) > 0,
		"service_tier":      req.ServiceTier != "",
		"presence_penalty":  req.PresencePenalty != nil,
		"frequency_penalty": req.FrequencyPenalty != nil,
	}
}

func mapRoleToAnthropic(r model.Role) string {
	if r == model.RoleTool {
		return "user" // tool results travel as user-turn tool_result blocks
	}
	return string(r)
}

func mapToolChoiceToAnthropic(tc model.ToolChoice) *anthropicToolChoice {
	switch tc.Mode {
	case model.ToolChoiceAuto:
		return &anthropicToolChoice{Type: "auto"}
	case model.ToolChoiceRequired:
		return &anthropicToolChoice{Type: "any"}
	case model.ToolChoiceNamed:
		return &anthropicToolChoice{Type: "tool", Name: tc.Name}
	case model.ToolChoiceNone:
		return nil
	default:
		return nil
	}
}

// toAnthropicBlocks converts one message's content, including the §4.4.1
// request-sanitation rule: a passthrough "thinking" block lacking a
// signature is dropped from historical assistant turns, since upstream
// responses omit the signature Anthropic then requires on replay.
func toAnthropicBlocks(m model.Message) ([]anthropicContentBlock, error) {
	if !m.Content.IsBlocks {
		text := m.Content.Text
		if m.Role == model.RoleTool {
			return []anthropicContentBlock{{
				Type:      "tool_result",
				ToolUseID: m.Name,
				Content:   mustMarshalString(text),
			}}, nil
		}
		return []anthropicContentBlock{{Type: "text", Text: text}}, nil
	}

	out := make([]anthropicContentBlock, 0, len(m.Content.Blocks))
	for _, b := range m.Content.Blocks {
		switch b.Kind {
		case model.BlockText:
			out = append(out, anthropicContentBlock{Type: "text", Text: b.Text})
		case model.BlockImage:
			src, err := toAnthropicImageSource(b.Image)
			if err != nil {
				return nil, err
			}
			out = append(out, anthropicContentBlock{Type: "image", Source: &src})
		case model.BlockToolUse:
			out = append(out, anthropicContentBlock{
				Type:  "tool_use",
				ID:    b.ToolUseID,
				Name:  b.ToolName,
				Input: b.ToolInput,
			})
		case model.BlockToolResult:
			out = append(out, anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: b.ToolResultForID,
				Content:   mustMarshalString(b.ToolResultText),
				IsError:   b.ToolResultError,
			})
		case model.BlockPassthrough:
			if b.PassthroughKind == "thinking" && b.PassthroughSignature == "" {
				// Sanitation: drop rather than forward an invalid replay.
				continue
			}
			var block anthropicContentBlock
			if err := json.Unmarshal(b.PassthroughValue, &block); err != nil {
				return nil, fmt.Errorf("decode passthrough block: %w", err)
			}
			out = append(out, block)
		}
	}
	return out, nil
}

func mustMarshalString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

// toAnthropicImageSource implements the data:/http(s) split of §4.4.1: a
// data: URL is decoded directly, an http(s) URL's fetch-and-size-check is
// done before this converter runs (upstream.ImageResolver, called by the
// orchestrator) — this function only
// shapes what's already resolved into model.ImageSource.
func toAnthropicImageSource(img model.ImageSource) (anthropicImageSource, error) {
	switch img.Kind {
	case model.ImageSourceBase64:
		return anthropicImageSource{Type: "base64", MediaType: img.MIME, Data: img.Data}, nil
	case model.ImageSourceURL:
		// The fetch-then-base64-encode step happens before this converter
		// runs, in the orchestrator's call to upstream.ImageResolver.Resolve;
		// by the time a request reaches ToAnthropicRequest, URL sources
		// should already have been resolved to base64. If one wasn't,
		// surface a clear conversion error rather than silently sending an
		// unsupported field upstream.
		return anthropicImageSource{}, fmt.Errorf("unresolved image URL source reached anthropic converter")
	default:
		return anthropicImageSource{}, fmt.Errorf("unknown image source kind %q", img.Kind)
	}
}
