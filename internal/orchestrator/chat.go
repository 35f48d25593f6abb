package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaylayer/llmcore/internal/convert"
	"github.com/relaylayer/llmcore/internal/model"
	"github.com/relaylayer/llmcore/internal/sink"
)

// ExecuteChat serves a non-streaming request arriving on the
// OpenAI-compatible /v1/chat/completions endpoint. The response is always
// returned in the intermediate representation; the caller re-serializes it
// into OpenAI's wire shape, since that is the only client-facing shape this
// endpoint speaks.
func (o *Orchestrator) ExecuteChat(ctx context.Context, apiKeyID string, req model.ChatRequest) (model.ChatResponse, []model.Warning, error) {
	req.Stream = false
	reqID := newRequestID()

	if o.Images != nil {
		if err := o.Images.Resolve(ctx, &req); err != nil {
			return model.ChatResponse{}, nil, model.NewConversionError(err.Error())
		}
	}

	providerType, err := o.Router.Resolve(req.Model)
	if err != nil {
		return model.ChatResponse{}, nil, err
	}

	start := o.clock()
	att, err := o.run(ctx, reqID, apiKeyID, providerType, func(inst model.ProviderInstance) ([]byte, string, map[string]string, []model.Warning, error) {
		return o.buildUpstreamRequest(req, inst)
	})
	if err != nil {
		return model.ChatResponse{}, nil, err
	}
	defer att.resp.Body.Close()

	body, readErr := io.ReadAll(att.resp.Body)
	if readErr != nil {
		return model.ChatResponse{}, att.warnings, fmt.Errorf("read upstream response: %w", readErr)
	}

	chatResp, err := decodeUpstreamResponse(att.instance, body)
	if err != nil {
		return model.ChatResponse{}, att.warnings, err
	}
	if chatResp.Model == "" {
		chatResp.Model = req.Model
	}

	o.recordWarnings(att.instance, att.warnings)
	o.emitRequestRecord(reqID, att.instance, chatResp, len(att.warnings), http.StatusOK, o.clock().Sub(start))
	return chatResp, att.warnings, nil
}

// StreamChat serves a streaming request on /v1/chat/completions. emit is
// called once per normalized chunk in order; the caller is responsible for
// rendering each chunk into OpenAI SSE frames (convert.ToOpenAIChunk) and
// writing them to the client.
func (o *Orchestrator) StreamChat(ctx context.Context, apiKeyID string, req model.ChatRequest, emit func(model.StreamChunk)) ([]model.Warning, error) {
	req.Stream = true
	reqID := newRequestID()

	if o.Images != nil {
		if err := o.Images.Resolve(ctx, &req); err != nil {
			return nil, model.NewConversionError(err.Error())
		}
	}

	providerType, err := o.Router.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	start := o.clock()
	att, err := o.run(ctx, reqID, apiKeyID, providerType, func(inst model.ProviderInstance) ([]byte, string, map[string]string, []model.Warning, error) {
		return o.buildUpstreamRequest(req, inst)
	})
	if err != nil {
		return nil, err
	}
	defer att.resp.Body.Close()

	o.recordWarnings(att.instance, att.warnings)

	decode := o.streamDecoderFor(att.instance)
	reader := newSSEReader(att.resp.Body)
	var usage model.Usage

	for {
		frame, rerr := reader.next()
		if len(frame.data) > 0 {
			chunks, cerr := decode(frame.event, frame.data)
			if cerr != nil {
				return att.warnings, model.NewConversionError(cerr.Error())
			}
			for _, c := range chunks {
				if c.Usage != nil {
					usage = *c.Usage
				}
				emit(c)
			}
		}
		if rerr != nil {
			break
		}
	}

	o.emitRequestRecord(reqID, att.instance, model.ChatResponse{Model: req.Model, Usage: usage}, len(att.warnings), http.StatusOK, o.clock().Sub(start))
	return att.warnings, nil
}

// streamDecoderFor returns a (event, data) -> chunks decoder for whichever
// wire protocol inst speaks, adapting the single-argument OpenAI/Gemini
// decoders to the same shape as Anthropic's named-event one.
func (o *Orchestrator) streamDecoderFor(inst model.ProviderInstance) func(event string, data []byte) ([]model.StreamChunk, error) {
	switch inst.WireProtocol() {
	case model.ProviderAnthropic:
		d := convert.NewAnthropicSSEDecoder()
		return d.Decode
	case model.ProviderGemini:
		d := convert.NewGeminiSSEDecoder()
		return func(_ string, data []byte) ([]model.StreamChunk, error) { return d.Decode(data) }
	default:
		d := convert.NewOpenAISSEDecoder()
		return func(_ string, data []byte) ([]model.StreamChunk, error) { return d.Decode(data) }
	}
}

func (o *Orchestrator) recordWarnings(inst model.ProviderInstance, warnings []model.Warning) {
	if o.Metrics == nil {
		return
	}
	for _, w := range warnings {
		o.Metrics.RecordConversionWarning(string(inst.ProviderType), w.Parameter)
	}
}

func (o *Orchestrator) emitRequestRecord(reqID uuid.UUID, inst model.ProviderInstance, resp model.ChatResponse, warningCount int, status int, latency time.Duration) {
	if o.Sink == nil {
		return
	}
	o.Sink.RecordRequest(sink.RequestRecord{
		RequestID:    reqID,
		Provider:     string(inst.ProviderType),
		Instance:     inst.Name,
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		LatencyMs:    int(latency.Milliseconds()),
		Status:       status,
		Warnings:     warningCount,
		CreatedAt:    o.clock(),
	})
}
