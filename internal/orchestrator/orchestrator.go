// Package orchestrator owns the request lifecycle described in section 4.5
// of the design: it resolves a model name to a provider type, drives the
// bounded retry loop of section 4.3 against the load balancer and circuit
// breaker, performs per-attempt protocol conversion, and emits a single
// observability record once a request (streaming or not) completes. It is
// grounded on the teacher's Gateway.requestWithFailover (internal/proxy/failover.go
// in the reference tree), generalized from a flat provider-name fallback
// list to per-instance selection/exclusion and the full classifier taxonomy.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaylayer/llmcore/internal/balancer"
	"github.com/relaylayer/llmcore/internal/breaker"
	"github.com/relaylayer/llmcore/internal/convert"
	"github.com/relaylayer/llmcore/internal/metrics"
	"github.com/relaylayer/llmcore/internal/model"
	"github.com/relaylayer/llmcore/internal/router"
	"github.com/relaylayer/llmcore/internal/sink"
	"github.com/relaylayer/llmcore/internal/upstream"
)

const (
	maxRetries        = 3
	rateLimitSleepCap = 10 * time.Second
)

// Orchestrator wires the router, balancer, upstream executor, metrics, and
// event sink into the request lifecycle. It holds no per-request state.
type Orchestrator struct {
	Router   *router.Router
	Balancer *balancer.Balancer
	Exec     *upstream.Executor
	Sink     sink.EventSink
	Metrics  *metrics.Registry
	// Images resolves http(s) image_url content blocks per §4.4.1 before
	// the request is converted for any instance. Nil disables resolution —
	// an http(s) image_url is then forwarded unchanged to OpenAI-wire
	// instances, and the Anthropic and Gemini converters fail on it.
	Images *upstream.ImageResolver

	// sleep is overridden in tests so the rate-limit retry path doesn't
	// actually block.
	sleep func(time.Duration)
	// clock is overridden in tests for deterministic timestamps.
	clock func() time.Time
}

// New constructs an Orchestrator from its collaborators. images may be nil
// to disable http(s) image_url resolution.
func New(r *router.Router, b *balancer.Balancer, exec *upstream.Executor, sk sink.EventSink, mx *metrics.Registry, images *upstream.ImageResolver) *Orchestrator {
	return &Orchestrator{
		Router:   r,
		Balancer: b,
		Exec:     exec,
		Sink:     sk,
		Metrics:  mx,
		Images:   images,
		sleep:    time.Sleep,
		clock:    time.Now,
	}
}

// buildFunc produces the outbound wire bytes, upstream path, and any extra
// headers for one attempt against a chosen instance.
type buildFunc func(inst model.ProviderInstance) (body []byte, path string, headers map[string]string, warnings []model.Warning, err error)

// attempt is the outcome of one successful trip through run: the instance
// that served the request and its raw, unread response.
type attempt struct {
	instance model.ProviderInstance
	resp     *http.Response
	warnings []model.Warning
}

// run drives the bounded retry loop of section 4.3. build is asked to
// re-serialize the request for each candidate instance, since failover can
// switch between instances that speak different wire protocols. On
// ClassSuccess the response is returned unread so callers can either buffer
// it (non-streaming) or wrap its body in an SSE reader (streaming); callers
// own closing resp.Body. On exhausted retries or a business error, run
// returns the client-facing error and closes every response body itself.
func (o *Orchestrator) run(ctx context.Context, requestID uuid.UUID, apiKeyID string, providerType model.ProviderType, build buildFunc) (attempt, error) {
	excluded := map[string]bool{}
	var lastErr error
	attempts := 0

	for {
		inst, err := o.Balancer.SelectExcluding(providerType, apiKeyID, excluded)
		if err != nil {
			if lastErr != nil {
				return attempt{}, lastErr
			}
			return attempt{}, err
		}

		body, path, headers, warnings, err := build(inst)
		if err != nil {
			return attempt{}, err
		}

		start := o.clock()
		resp, doErr := o.Exec.Do(ctx, inst, http.MethodPost, path, body, headers)
		latency := o.clock().Sub(start)

		outcome := breaker.Outcome{Err: doErr}
		if doErr == nil {
			outcome.StatusCode = resp.StatusCode
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, ok := breaker.ParseRetryAfterSeconds(ra); ok {
					outcome.RetryAfterSeconds = secs
				}
			}
		}
		class := breaker.Classify(outcome)

		switch class {
		case breaker.ClassSuccess:
			o.Balancer.MarkSuccess(inst)
			return attempt{instance: inst, resp: resp, warnings: warnings}, nil

		case breaker.ClassBusinessError:
			msg := drainBody(resp)
			o.recordFailover(requestID, inst, class, 0, time.Time{})
			return attempt{}, &model.GatewayError{
				Kind: model.KindUpstreamError, Status: resp.StatusCode, Message: msg,
			}

		case breaker.ClassRateLimit:
			o.Balancer.MarkFailure(inst, class)
			drainBody(resp)
			lastErr = breaker.ToGatewayError(outcome)
			o.recordFailover(requestID, inst, class, 0, time.Time{})
			wait := time.Duration(outcome.RetryAfterSeconds) * time.Second
			if wait > rateLimitSleepCap {
				wait = rateLimitSleepCap
			}
			if wait > 0 {
				o.sleep(wait)
			}
			excluded[inst.Key()] = true
			continue

		case breaker.ClassTransient, breaker.ClassInstanceFailure:
			// excluded takes inst out of the very next SelectExcluding call
			// within this request, per §4.3. With only one configured
			// instance for this provider type that exhausts the candidate
			// set immediately: the next selection fails and run returns this
			// attempt's error (lastErr) after a single attempt, and consecutive_failures only
			// reaches FailureThreshold across separate client requests
			// rather than within one — a narrower failure loop than a
			// deployment with several instances of the same type gets.
			o.Balancer.MarkFailure(inst, class)
			if resp != nil {
				drainBody(resp)
			}
			lastErr = breaker.ToGatewayError(outcome)
			nextRetryAt := o.Balancer.NextRetryAt(inst)
			o.recordFailover(requestID, inst, class, o.consecutiveFailures(inst), nextRetryAt)
			excluded[inst.Key()] = true
			attempts++
			if attempts >= maxRetries {
				return attempt{}, lastErr
			}
			continue

		default:
			return attempt{}, lastErr
		}
	}
}

func drainBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	return string(b)
}

func (o *Orchestrator) recordFailover(requestID uuid.UUID, inst model.ProviderInstance, class breaker.Class, consecutiveFailures int, nextRetryAt time.Time) {
	if o.Metrics != nil {
		o.Metrics.RecordRetryAttempt(string(inst.ProviderType), consecutiveFailures)
		if !nextRetryAt.IsZero() {
			o.Metrics.SetCircuitBreakerBackoff(string(inst.ProviderType), time.Until(nextRetryAt))
		}
	}
	if o.Sink == nil {
		return
	}
	o.Sink.RecordFailover(sink.FailoverEvent{
		RequestID:           requestID,
		Provider:            string(inst.ProviderType),
		Instance:            inst.Name,
		Class:               class.String(),
		ConsecutiveFailures: consecutiveFailures,
		NextRetryAt:         nextRetryAt,
		CreatedAt:           o.clock(),
	})
}

func (o *Orchestrator) consecutiveFailures(inst model.ProviderInstance) int {
	return o.Balancer.ConsecutiveFailures(inst)
}

func newRequestID() uuid.UUID {
	return uuid.New()
}

// buildUpstreamRequest renders req for inst, dispatching on the wire
// protocol inst actually speaks (not its configured provider type, so
// Azure/Bedrock/Custom instances are handled uniformly).
func (o *Orchestrator) buildUpstreamRequest(req model.ChatRequest, inst model.ProviderInstance) ([]byte, string, map[string]string, []model.Warning, error) {
	switch inst.WireProtocol() {
	case model.ProviderAnthropic:
		return anthropicUpstreamRequest(req, inst)
	case model.ProviderGemini:
		return geminiUpstreamRequest(req, inst)
	default:
		return openAIUpstreamRequest(req, inst)
	}
}

func openAIUpstreamRequest(req model.ChatRequest, inst model.ProviderInstance) ([]byte, string, map[string]string, []model.Warning, error) {
	wire := convert.ToOpenAIRequest(req, req.Model)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, "", nil, nil, fmt.Errorf("marshal openai request: %w", err)
	}
	path := "/chat/completions"
	if inst.ProviderType == model.ProviderAzureOpenAI {
		path = fmt.Sprintf("/openai/deployments/%s/chat/completions?api-version=%s", req.Model, inst.AzureAPIVersion)
	}
	return body, path, nil, nil, nil
}

func anthropicUpstreamRequest(req model.ChatRequest, inst model.ProviderInstance) ([]byte, string, map[string]string, []model.Warning, error) {
	opts := convert.AnthropicOptions{
		AutoCacheThresholdTokens: inst.AutoCacheThresholdTokens,
		AutoCacheTools:           inst.AutoCacheTools,
	}
	wire, warnings, err := convert.ToAnthropicRequest(req, opts)
	if err != nil {
		return nil, "", nil, warnings, err
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, "", nil, warnings, fmt.Errorf("marshal anthropic request: %w", err)
	}
	version := inst.AnthropicVersion
	if version == "" {
		version = "2023-06-01"
	}
	headers := map[string]string{"anthropic-version": version}
	return body, "/messages", headers, warnings, nil
}

func geminiUpstreamRequest(req model.ChatRequest, inst model.ProviderInstance) ([]byte, string, map[string]string, []model.Warning, error) {
	wire, warnings, err := convert.ToGeminiRequest(req)
	if err != nil {
		return nil, "", nil, warnings, fmt.Errorf("convert gemini request: %w", err)
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, "", nil, warnings, fmt.Errorf("marshal gemini request: %w", err)
	}
	action := "generateContent"
	if req.Stream {
		action = "streamGenerateContent?alt=sse"
	}
	path := fmt.Sprintf("/models/%s:%s", req.Model, action)
	return body, path, nil, warnings, nil
}

// decodeUpstreamResponse maps a raw upstream response body into the
// intermediate representation, dispatching on the wire protocol the
// responding instance speaks.
func decodeUpstreamResponse(inst model.ProviderInstance, body []byte) (model.ChatResponse, error) {
	switch inst.WireProtocol() {
	case model.ProviderAnthropic:
		wire, err := convert.DecodeAnthropicResponse(body)
		if err != nil {
			return model.ChatResponse{}, model.NewConversionError(err.Error())
		}
		return convert.FromAnthropicResponse(wire), nil
	case model.ProviderGemini:
		wire, err := convert.DecodeGeminiResponse(body)
		if err != nil {
			return model.ChatResponse{}, model.NewConversionError(err.Error())
		}
		return convert.FromGeminiResponse(wire), nil
	default:
		wire, err := convert.DecodeOpenAIResponse(body)
		if err != nil {
			return model.ChatResponse{}, model.NewConversionError(err.Error())
		}
		return convert.FromOpenAIResponse(wire), nil
	}
}
