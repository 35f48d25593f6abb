package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/relaylayer/llmcore/internal/convert"
	"github.com/relaylayer/llmcore/internal/model"
)

// ExecuteMessages serves a non-streaming request on the native
// /v1/messages endpoint. Per the design this endpoint is a pass-through to
// Anthropic-wire instances (including Bedrock): the response body is
// forwarded byte-for-byte rather than decoded into the intermediate
// representation and re-serialized, since that round trip would drop
// content the intermediate representation has no slot for (unsigned
// thinking blocks, provider-specific passthrough fields). Only the request
// goes through the canonical pipeline, so the thinking-without-signature
// fix-up in convert.ToAnthropicRequest applies uniformly. If routing ever
// selects an instance that does not speak the Anthropic wire, the request
// fails with a conversion error rather than attempting cross-protocol
// response re-encoding.
func (o *Orchestrator) ExecuteMessages(ctx context.Context, apiKeyID string, rawBody []byte) ([]byte, []model.Warning, error) {
	req, err := convert.ParseAnthropicRequest(rawBody)
	if err != nil {
		return nil, nil, model.NewConversionError(err.Error())
	}
	req.Stream = false
	reqID := newRequestID()

	providerType, err := o.Router.Resolve(req.Model)
	if err != nil {
		return nil, nil, err
	}

	start := o.clock()
	att, err := o.run(ctx, reqID, apiKeyID, providerType, func(inst model.ProviderInstance) ([]byte, string, map[string]string, []model.Warning, error) {
		return anthropicOnlyUpstreamRequest(req, inst)
	})
	if err != nil {
		return nil, nil, err
	}
	defer att.resp.Body.Close()

	body, readErr := io.ReadAll(att.resp.Body)
	if readErr != nil {
		return nil, att.warnings, fmt.Errorf("read upstream response: %w", readErr)
	}

	o.recordWarnings(att.instance, att.warnings)
	if chatResp, decErr := decodeUpstreamResponse(att.instance, body); decErr == nil {
		o.emitRequestRecord(reqID, att.instance, chatResp, len(att.warnings), http.StatusOK, o.clock().Sub(start))
	}
	return body, att.warnings, nil
}

// StreamMessages serves a streaming request on /v1/messages, relaying the
// upstream SSE body to emit unparsed, chunk by chunk.
func (o *Orchestrator) StreamMessages(ctx context.Context, apiKeyID string, rawBody []byte, emit func([]byte)) ([]model.Warning, error) {
	req, err := convert.ParseAnthropicRequest(rawBody)
	if err != nil {
		return nil, model.NewConversionError(err.Error())
	}
	req.Stream = true
	reqID := newRequestID()

	providerType, err := o.Router.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	start := o.clock()
	att, err := o.run(ctx, reqID, apiKeyID, providerType, func(inst model.ProviderInstance) ([]byte, string, map[string]string, []model.Warning, error) {
		return anthropicOnlyUpstreamRequest(req, inst)
	})
	if err != nil {
		return nil, err
	}
	defer att.resp.Body.Close()

	o.recordWarnings(att.instance, att.warnings)

	buf := make([]byte, 4096)
	for {
		n, rerr := att.resp.Body.Read(buf)
		if n > 0 {
			emit(buf[:n])
		}
		if rerr != nil {
			break
		}
	}

	o.emitRequestRecord(reqID, att.instance, model.ChatResponse{Model: req.Model}, len(att.warnings), http.StatusOK, o.clock().Sub(start))
	return att.warnings, nil
}

func anthropicOnlyUpstreamRequest(req model.ChatRequest, inst model.ProviderInstance) ([]byte, string, map[string]string, []model.Warning, error) {
	if inst.WireProtocol() != model.ProviderAnthropic {
		return nil, "", nil, nil, model.NewConversionError(
			fmt.Sprintf("instance %q does not speak the anthropic wire protocol required by /v1/messages", inst.Key()))
	}
	return anthropicUpstreamRequest(req, inst)
}
