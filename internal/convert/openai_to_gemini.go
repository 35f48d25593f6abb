package convert

import (
	"fmt"

	"github.com/relaylayer/llmcore/internal/model"
)

// ToGeminiRequest implements the OpenAI→Gemini half of §4.4.4.
func ToGeminiRequest(req model.ChatRequest) (GeminiRequest, []model.Warning, error) {
	if req.N > 1 {
		return GeminiRequest{}, nil, model.NewUnsupportedParameter("n", "gemini does not support n > 1 through this gateway")
	}

	var warnings []model.Warning
	var out GeminiRequest

	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			sys, err := toGeminiContent(m, "")
			if err != nil {
				return GeminiRequest{}, nil, model.NewConversionError(err.Error())
			}
			out.SystemInstruction = &sys
			continue
		}
		c, err := toGeminiContent(m, mapRoleToGemini(m.Role))
		if err != nil {
			return GeminiRequest{}, nil, model.NewConversionError(err.Error())
		}
		out.Contents = append(out.Contents, c)
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		out.Tools = []geminiToolDecl{{FunctionDeclarations: decls}}
	}

	if req.ToolChoice != nil {
		out.ToolConfig = mapToolChoiceToGemini(*req.ToolChoice)
	}

	if req.HasTemp || req.HasTopP || req.MaxTokens > 0 {
		gc := &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
		if req.HasTemp {
			gc.Temperature = &req.Temperature
		}
		if req.HasTopP {
			gc.TopP = &req.TopP
		}
		out.GenerationConfig = gc
	}

	for param, dropped := range droppedParams(req) {
		if dropped {
			warnings = append(warnings, model.Warning{
				Level: model.WarningWarn, Parameter: param,
				Message: fmt.Sprintf("%s is not supported by gemini and was dropped", param),
			})
		}
	}
	if req.JSONMode {
		warnings = append(warnings, model.Warning{
			Level: model.WarningWarn, Parameter: "response_format",
			Message: "json response_format is not translated for gemini and was dropped",
		})
	}

	return out, warnings, nil
}

func mapRoleToGemini(r model.Role) string {
	if r == model.RoleAssistant {
		return "model"
	}
	return "user"
}

func toGeminiContent(m model.Message, role string) (geminiContent, error) {
	c := geminiContent{Role: role}
	if !m.Content.IsBlocks {
		if m.Content.Text != "" {
			c.Parts = append(c.Parts, geminiPart{Text: m.Content.Text})
		}
		return c, nil
	}
	for _, b := range m.Content.Blocks {
		switch b.Kind {
		case model.BlockText:
			c.Parts = append(c.Parts, geminiPart{Text: b.Text})
		case model.BlockImage:
			if b.Image.Kind != model.ImageSourceBase64 {
				return geminiContent{}, fmt.Errorf("unresolved image URL source reached gemini converter")
			}
			c.Parts = append(c.Parts, geminiPart{InlineData: &geminiInlineData{
				MimeType: b.Image.MIME, Data: b.Image.Data,
			}})
		case model.BlockToolUse:
			c.Parts = append(c.Parts, geminiPart{FunctionCall: &geminiFunctionCall{
				Name: b.ToolName, Args: b.ToolInput,
			}})
		case model.BlockToolResult:
			c.Parts = append(c.Parts, geminiPart{Text: b.ToolResultText})
		}
	}
	return c, nil
}

func mapToolChoiceToGemini(tc model.ToolChoice) *geminiToolConfig {
	switch tc.Mode {
	case model.ToolChoiceNone:
		return &geminiToolConfig{FunctionCallingConfig: geminiFunctionCallingConfig{Mode: "NONE"}}
	case model.ToolChoiceRequired:
		return &geminiToolConfig{FunctionCallingConfig: geminiFunctionCallingConfig{Mode: "ANY"}}
	case model.ToolChoiceNamed:
		return &geminiToolConfig{FunctionCallingConfig: geminiFunctionCallingConfig{
			Mode: "ANY", AllowedFunctionNames: []string{tc.Name},
		}}
	case model.ToolChoiceAuto:
		return &geminiToolConfig{FunctionCallingConfig: geminiFunctionCallingConfig{Mode: "AUTO"}}
	default:
		return nil
	}
}
