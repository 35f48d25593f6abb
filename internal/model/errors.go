package model

import "fmt"

// OutcomeClass is the error taxonomy driving circuit-breaker and retry
// decisions (spec section 4.3).
type OutcomeClass string

const (
	ClassSuccess       OutcomeClass = "success"
	ClassRateLimit     OutcomeClass = "rate_limit"
	ClassTransient     OutcomeClass = "transient"
	ClassInstanceFail  OutcomeClass = "instance_failure"
	ClassBusinessError OutcomeClass = "business_error"
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	error
	HTTPStatus() int
}

// UpstreamError wraps an upstream HTTP failure with enough detail for
// classification and for the client-facing error envelope.
type UpstreamError struct {
	Status     int
	Message    string
	RetryAfter int // seconds, parsed from Retry-After; 0 if absent
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: status=%d: %s", e.Status, e.Message)
}

func (e *UpstreamError) HTTPStatus() int { return e.Status }

// ── Pre-attempt failures ────────────────────────────────────────────────────

// Kind enumerates the client-facing error kinds of spec section 6/7.
type Kind string

const (
	KindInvalidModelName     Kind = "invalid_model_name"
	KindNoRouteForModel      Kind = "no_route_for_model"
	KindNoHealthyInstances   Kind = "no_healthy_instances"
	KindUnsupportedParameter Kind = "unsupported_parameter"
	KindUpstreamError        Kind = "upstream_error"
	KindConversionError      Kind = "conversion_error"
	KindTimeout              Kind = "timeout"
	KindRateLimited          Kind = "rate_limited"
)

// GatewayError is the internal error type mapped onto the client-facing
// envelope of spec section 6 by the HTTP layer.
type GatewayError struct {
	Kind       Kind
	Message    string
	Param      string
	RetryAfter int // seconds, meaningful only for KindRateLimited
	Status     int // upstream status, meaningful only for KindUpstreamError
}

func (e *GatewayError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param=%s)", e.Kind, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewInvalidModelName(msg string) *GatewayError {
	return &GatewayError{Kind: KindInvalidModelName, Message: msg}
}

func NewNoRouteForModel(model string) *GatewayError {
	return &GatewayError{Kind: KindNoRouteForModel, Message: fmt.Sprintf("no route configured for model %q and no default provider", model)}
}

func NewNoHealthyInstances(providerType ProviderType) *GatewayError {
	return &GatewayError{Kind: KindNoHealthyInstances, Message: fmt.Sprintf("no healthy instances for provider type %q", providerType)}
}

func NewUnsupportedParameter(param, msg string) *GatewayError {
	return &GatewayError{Kind: KindUnsupportedParameter, Param: param, Message: msg}
}

func NewConversionError(msg string) *GatewayError {
	return &GatewayError{Kind: KindConversionError, Message: msg}
}
