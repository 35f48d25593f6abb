// Package convert implements the protocol converters of the design:
// translating between the OpenAI-compatible wire shape (the canonical
// pivot), Anthropic's native shape, and Gemini's native shape, both for
// single-shot requests/responses and for SSE streaming. Converters operate
// on raw JSON structs rather than a vendor SDK's typed params, grounded on
// the teacher's internal/providers/mistral package, which talks to its
// upstream in exactly this style.
package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaylayer/llmcore/internal/model"
)

// OpenAIChatRequest is the wire shape accepted on POST /v1/chat/completions.
type OpenAIChatRequest struct {
	Model            string               `json:"model"`
	Messages         []openAIMessage      `json:"messages"`
	Stream           bool                 `json:"stream,omitempty"`
	Temperature      *float64             `json:"temperature,omitempty"`
	TopP             *float64             `json:"top_p,omitempty"`
	MaxTokens        int                  `json:"max_tokens,omitempty"`
	Tools            []openAITool         `json:"tools,omitempty"`
	ToolChoice       json.RawMessage      `json:"tool_choice,omitempty"`
	ResponseFormat   *openAIResponseFmt   `json:"response_format,omitempty"`
	Seed             *int                 `json:"seed,omitempty"`
	LogProbs         bool                 `json:"logprobs,omitempty"`
	TopLogProbs      *int                 `json:"top_logprobs,omitempty"`
	LogitBias        map[string]int       `json:"logit_bias,omitempty"`
	ServiceTier      string               `json:"service_tier,omitempty"`
	PresencePenalty  *float64             `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64             `json:"frequency_penalty,omitempty"`
	N                int                  `json:"n,omitempty"`
}

type openAIResponseFmt struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Name    string          `json:"name,omitempty"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openAIToolChoiceNamed struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// OpenAIChatResponse is the wire shape returned from a non-streaming call.
type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Index        int                `json:"index"`
	Message      *openAIRespMessage `json:"message,omitempty"`
	Delta        *openAIRespMessage `json:"delta,omitempty"`
	FinishReason *string            `json:"finish_reason"`
}

type openAIRespMessage struct {
	Role      string                `json:"role,omitempty"`
	Content   string                `json:"content,omitempty"`
	ToolCalls []openAIRespToolCall  `json:"tool_calls,omitempty"`
}

type openAIRespToolCall struct {
	Index    int                 `json:"index,omitempty"`
	ID       string              `json:"id,omitempty"`
	Type     string              `json:"type,omitempty"`
	Function openAIToolCallDelta `json:"function"`
}

type openAIToolCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIChunk is one SSE data payload of a streamed chat completion.
type OpenAIChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
}

// ParseOpenAIRequest decodes a client request body into the intermediate
// model, validating the pieces the converters downstream will rely on.
func ParseOpenAIRequest(body []byte) (model.ChatRequest, error) {
	var raw OpenAIChatRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.ChatRequest{}, fmt.Errorf("decode openai request: %w", err)
	}

	req := model.ChatRequest{
		Model:            raw.Model,
		Stream:           raw.Stream,
		MaxTokens:        raw.MaxTokens,
		Seed:             raw.Seed,
		LogProbs:         raw.LogProbs,
		TopLogProbs:      raw.TopLogProbs,
		LogitBias:        raw.LogitBias,
		ServiceTier:      raw.ServiceTier,
		PresencePenalty:  raw.PresencePenalty,
		FrequencyPenalty: raw.FrequencyPenalty,
		N:                raw.N,
	}
	if raw.Temperature != nil {
		req.Temperature = *raw.Temperature
		req.HasTemp = true
	}
	if raw.TopP != nil {
		req.TopP = *raw.TopP
		req.HasTopP = true
	}
	if raw.ResponseFormat != nil && raw.ResponseFormat.Type == "json_object" {
		req.JSONMode = true
	}

	for _, m := range raw.Messages {
		msg, err := parseOpenAIMessage(m)
		if err != nil {
			return model.ChatRequest{}, err
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range raw.Tools {
		req.Tools = append(req.Tools, model.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	if len(raw.ToolChoice) > 0 {
		tc, err := parseOpenAIToolChoice(raw.ToolChoice)
		if err != nil {
			return model.ChatRequest{}, err
		}
		req.ToolChoice = tc
	}

	return req, nil
}

// ToOpenAIRequest re-serializes the intermediate request into OpenAI's wire
// shape, used when the target instance itself speaks the OpenAI protocol
// (OpenAI, Azure OpenAI, OpenAI-compatible custom instances). modelName
// overrides req.Model (e.g. an Azure deployment name).
func ToOpenAIRequest(req model.ChatRequest, modelName string) OpenAIChatRequest {
	out := OpenAIChatRequest{
		Model:            modelName,
		Stream:           req.Stream,
		MaxTokens:        req.MaxTokens,
		Seed:             req.Seed,
		LogProbs:         req.LogProbs,
		TopLogProbs:      req.TopLogProbs,
		LogitBias:        req.LogitBias,
		ServiceTier:      req.ServiceTier,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		N:                req.N,
	}
	if req.HasTemp {
		t := req.Temperature
		out.Temperature = &t
	}
	if req.HasTopP {
		p := req.TopP
		out.TopP = &p
	}
	if req.JSONMode {
		out.ResponseFormat = &openAIResponseFmt{Type: "json_object"}
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, toOpenAIMessage(m))
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	if req.ToolChoice != nil {
		out.ToolChoice = toOpenAIToolChoiceRaw(*req.ToolChoice)
	}

	return out
}

func toOpenAIMessage(m model.Message) openAIMessage {
	out := openAIMessage{Role: string(m.Role), Name: m.Name}
	if !m.Content.IsBlocks {
		b, _ := json.Marshal(m.Content.Text)
		out.Content = b
		return out
	}

	parts := make([]openAIContentPart, 0, len(m.Content.Blocks))
	for _, blk := range m.Content.Blocks {
		switch blk.Kind {
		case model.BlockText:
			parts = append(parts, openAIContentPart{Type: "text", Text: blk.Text})
		case model.BlockImage:
			url := blk.Image.URL
			if blk.Image.Kind == model.ImageSourceBase64 {
				url = fmt.Sprintf("data:%s;base64,%s", blk.Image.MIME, blk.Image.Data)
			}
			parts = append(parts, openAIContentPart{
				Type:     "image_url",
				ImageURL: &openAIImageURL{URL: url, Detail: blk.Image.Detail},
			})
		case model.BlockToolResult:
			parts = append(parts, openAIContentPart{Type: "text", Text: blk.ToolResultText})
		}
	}
	b, _ := json.Marshal(parts)
	out.Content = b
	return out
}

func toOpenAIToolChoiceRaw(tc model.ToolChoice) json.RawMessage {
	var b []byte
	switch tc.Mode {
	case model.ToolChoiceAuto:
		b, _ = json.Marshal("auto")
	case model.ToolChoiceRequired:
		b, _ = json.Marshal("required")
	case model.ToolChoiceNone:
		b, _ = json.Marshal("none")
	case model.ToolChoiceNamed:
		named := openAIToolChoiceNamed{Type: "function"}
		named.Function.Name = tc.Name
		b, _ = json.Marshal(named)
	}
	return b
}

func parseOpenAIMessage(m openAIMessage) (model.Message, error) {
	role := model.Role(strings.ToLower(m.Role))
	out := model.Message{Role: role, Name: m.Name}

	if len(m.Content) == 0 {
		return out, nil
	}

	// content is either a bare string or an array of typed parts.
	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		out.Content = model.PlainText(asString)
		return out, nil
	}

	var parts []openAIContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return model.Message{}, fmt.Errorf("message content neither string nor part array: %w", err)
	}

	blocks := make([]model.ContentBlock, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case "text":
			blocks = append(blocks, model.ContentBlock{Kind: model.BlockText, Text: p.Text})
		case "image_url":
			if p.ImageURL == nil {
				continue
			}
			src := parseImageURL(p.ImageURL.URL)
			src.Detail = p.ImageURL.Detail
			blocks = append(blocks, model.ContentBlock{Kind: model.BlockImage, Image: src})
		}
	}
	out.Content = model.MessageContent{IsBlocks: true, Blocks: blocks}
	return out, nil
}

func parseImageURL(url string) model.ImageSource {
	const dataPrefix = "data:"
	if strings.HasPrefix(url, dataPrefix) {
		// data:<mime>;base64,<payload>
		rest := strings.TrimPrefix(url, dataPrefix)
		semi := strings.IndexByte(rest, ';')
		comma := strings.IndexByte(rest, ',')
		if semi > 0 && comma > semi {
			return model.ImageSource{
				Kind: model.ImageSourceBase64,
				MIME: rest[:semi],
				Data: rest[comma+1:],
			}
		}
	}
	return model.ImageSource{Kind: model.ImageSourceURL, URL: url}
}

func parseOpenAIToolChoice(raw json.RawMessage) (*model.ToolChoice, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "auto":
			return &model.ToolChoice{Mode: model.ToolChoiceAuto}, nil
		case "required":
			return &model.ToolChoice{Mode: model.ToolChoiceRequired}, nil
		case "none":
			return &model.ToolChoice{Mode: model.ToolChoiceNone}, nil
		}
	}
	var named openAIToolChoiceNamed
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, fmt.Errorf("decode tool_choice: %w", err)
	}
	return &model.ToolChoice{Mode: model.ToolChoiceNamed, Name: named.Function.Name}, nil
}
