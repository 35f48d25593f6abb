package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/relaylayer/llmcore/internal/convert"
	"github.com/relaylayer/llmcore/internal/model"
)

// handleChatCompletions serves the OpenAI-compatible POST
// /v1/chat/completions endpoint, dispatching to streaming or buffered
// handling based on the request body's "stream" field.
func (s *Server) handleChatCompletions(ctx *fasthttp.RequestCtx) {
	req, err := convert.ParseOpenAIRequest(ctx.PostBody())
	if err != nil {
		writeBadRequest(ctx, "invalid request body: %s", err.Error())
		return
	}
	if req.Model == "" {
		writeBadRequest(ctx, "field 'model' is required")
		return
	}

	apiKeyID := s.clientAPIKey(ctx)

	if s.rateLimited(ctx, apiKeyID) {
		writeErrorEnvelope(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded", "rate_limit_error", "rate_limit_exceeded", "")
		return
	}

	if req.Stream {
		s.streamChatCompletion(ctx, apiKeyID, req)
		return
	}

	cacheable := s.cacheableModel(req.Model)
	key := ""
	if cacheable {
		key = cacheKey(ctx.PostBody())
		if hit, ok := s.cache.Get(ctx, key); ok {
			ctx.SetStatusCode(fasthttp.StatusOK)
			ctx.SetContentType("application/json")
			ctx.Response.Header.Set("X-LLM-Gateway-Cache", "hit")
			ctx.SetBody(hit)
			return
		}
	}

	resp, warnings, err := s.orch.ExecuteChat(ctx, apiKeyID, req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	writeWarningsHeader(ctx, warnings)
	wire := convert.ToOpenAIResponse(resp)
	body, err := json.Marshal(wire)
	if err != nil {
		writeErrorEnvelope(ctx, fasthttp.StatusInternalServerError, "failed to serialize response", "server_error", "internal_error", "")
		return
	}
	if cacheable {
		_ = s.cache.Set(ctx, key, body, s.cacheTTL)
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Server) streamChatCompletion(ctx *fasthttp.RequestCtx, apiKeyID string, req model.ChatRequest) {
	chunkID := fmt.Sprintf("chatcmpl-%s", requestIDOf(ctx))

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.SetStatusCode(fasthttp.StatusOK)

	// Streaming responses carry no conversion warnings, neither in a
	// response header nor in a chunk: headers are already on the wire by the
	// time StreamChat returns them, since SetBodyStreamWriter's callback runs
	// after the status line is sent, and the returned warnings are discarded.
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		_, err := s.orch.StreamChat(ctx, apiKeyID, req, func(c model.StreamChunk) {
			wireChunk, ok := convert.ToOpenAIChunk(chunkID, req.Model, c)
			if !ok {
				return
			}
			data, merr := json.Marshal(wireChunk)
			if merr != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			w.Flush()
		})
		if err != nil {
			// Headers are already committed as text/event-stream, so a
			// mid-stream failure is reported as an error event rather than
			// a status code the client can no longer see.
			fmt.Fprintf(w, "data: {\"error\":{\"message\":%q,\"type\":\"provider_error\"}}\n\n", err.Error())
			w.Flush()
			return
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		w.Flush()
	})
}

func requestIDOf(ctx *fasthttp.RequestCtx) string {
	if id, ok := ctx.UserValue("request_id").(string); ok && id != "" {
		return id
	}
	return "stream"
}
