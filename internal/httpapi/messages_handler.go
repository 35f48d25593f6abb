package httpapi

import (
	"bufio"
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// handleMessages serves the native Anthropic POST /v1/messages endpoint.
// The orchestrator forwards the upstream body byte-for-byte, so this
// handler has no wire-shape knowledge of its own beyond streaming vs.
// buffered framing.
func (s *Server) handleMessages(ctx *fasthttp.RequestCtx) {
	var streamField struct {
		Stream bool `json:"stream"`
	}
	_ = json.Unmarshal(ctx.PostBody(), &streamField)

	apiKeyID := s.clientAPIKey(ctx)

	if s.rateLimited(ctx, apiKeyID) {
		writeErrorEnvelope(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded", "rate_limit_error", "rate_limit_exceeded", "")
		return
	}

	if streamField.Stream {
		s.streamMessages(ctx, apiKeyID, ctx.PostBody())
		return
	}

	body, warnings, err := s.orch.ExecuteMessages(ctx, apiKeyID, ctx.PostBody())
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeWarningsHeader(ctx, warnings)
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Server) streamMessages(ctx *fasthttp.RequestCtx, apiKeyID string, rawBody []byte) {
	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.SetStatusCode(fasthttp.StatusOK)

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		_, err := s.orch.StreamMessages(ctx, apiKeyID, rawBody, func(chunk []byte) {
			w.Write(chunk)
			w.Flush()
		})
		if err != nil {
			w.WriteString("event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"api_error\",\"message\":\"" + err.Error() + "\"}}\n\n")
			w.Flush()
		}
	})
}
