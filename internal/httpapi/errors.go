package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/relaylayer/llmcore/internal/model"
)

// errorEnvelope is the OpenAI-compatible error shape, so clients
// written against either endpoint see one consistent error format.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
		Param   string `json:"param,omitempty"`
	} `json:"error"`
}

// kindStatus maps a gateway error kind to its HTTP status and
// OpenAI-compatible (type, code) pair.
func kindStatus(k model.Kind) (status int, errType string, code string) {
	switch k {
	case model.KindInvalidModelName, model.KindNoRouteForModel, model.KindUnsupportedParameter:
		return fasthttp.StatusBadRequest, "invalid_request_error", "invalid_request"
	case model.KindNoHealthyInstances:
		return fasthttp.StatusServiceUnavailable, "provider_error", "no_healthy_instances"
	case model.KindUpstreamError:
		return fasthttp.StatusBadGateway, "provider_error", "provider_error"
	case model.KindConversionError:
		return fasthttp.StatusBadGateway, "provider_error", "conversion_error"
	case model.KindTimeout:
		return fasthttp.StatusGatewayTimeout, "provider_error", "request_timeout"
	case model.KindRateLimited:
		return fasthttp.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded"
	default:
		return fasthttp.StatusInternalServerError, "server_error", "internal_error"
	}
}

// writeError renders err as the client-facing envelope of section 6/7. A
// *model.GatewayError is mapped by Kind; anything else (a read error, a
// canceled context) becomes a generic 502.
func writeError(ctx *fasthttp.RequestCtx, err error) {
	var gwErr *model.GatewayError
	if errors.As(err, &gwErr) {
		status, errType, code := kindStatus(gwErr.Kind)
		if gwErr.Kind == model.KindRateLimited && gwErr.RetryAfter > 0 {
			ctx.Response.Header.Set("Retry-After", strconv.Itoa(gwErr.RetryAfter))
		}
		msg := gwErr.Message
		if msg == "" {
			msg = err.Error()
		}
		writeErrorEnvelope(ctx, status, msg, errType, code, gwErr.Param)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		writeErrorEnvelope(ctx, fasthttp.StatusGatewayTimeout, "request timed out", "provider_error", "request_timeout", "")
		return
	}

	writeErrorEnvelope(ctx, fasthttp.StatusBadGateway, err.Error(), "provider_error", "provider_error", "")
}

func writeErrorEnvelope(ctx *fasthttp.RequestCtx, status int, message, errType, code, param string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	var env errorEnvelope
	env.Error.Message = message
	env.Error.Type = errType
	env.Error.Code = code
	env.Error.Param = param
	body, _ := json.Marshal(env)
	ctx.SetBody(body)
}

func writeBadRequest(ctx *fasthttp.RequestCtx, format string, args ...any) {
	writeErrorEnvelope(ctx, fasthttp.StatusBadRequest, fmt.Sprintf(format, args...), "invalid_request_error", "invalid_request", "")
}

// writeWarningsHeader exposes non-fatal protocol-conversion warnings on the
// response so clients can surface degraded fidelity without parsing the body.
func writeWarningsHeader(ctx *fasthttp.RequestCtx, warnings []model.Warning) {
	if len(warnings) == 0 {
		return
	}
	body, err := json.Marshal(warnings)
	if err != nil {
		return
	}
	ctx.Response.Header.SetBytesV("X-LLM-Gateway-Warnings", body)
}
