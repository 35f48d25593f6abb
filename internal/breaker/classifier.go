package breaker

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/relaylayer/llmcore/internal/model"
)

// Class is the error taxonomy driving CB and retry decisions.
type Class int

const (
	ClassSuccess Class = iota
	ClassRateLimit
	ClassTransient
	ClassInstanceFailure
	ClassBusinessError
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassRateLimit:
		return "rate_limit"
	case ClassTransient:
		return "transient"
	case ClassInstanceFailure:
		return "instance_failure"
	case ClassBusinessError:
		return "business_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single upstream attempt, built by the caller
// (the orchestrator's retry driver) from the HTTP round trip.
type Outcome struct {
	// StatusCode is the upstream HTTP status, or 0 if the request never got
	// a response (connect error, timeout, DNS failure).
	StatusCode int
	// Err is set when StatusCode is 0 or when err carries classification
	// hints (context.DeadlineExceeded, net.Error.Timeout()).
	Err error
	// RetryAfterSeconds is parsed from the upstream Retry-After header,
	// meaningful only when StatusCode == 429.
	RetryAfterSeconds int
}

// Classify maps an Outcome onto the taxonomy of §4.3.
func Classify(o Outcome) Class {
	switch {
	case o.StatusCode == 0:
		return classifyTransportError(o.Err)
	case o.StatusCode >= 200 && o.StatusCode < 300:
		return ClassSuccess
	case o.StatusCode == 429:
		return ClassRateLimit
	case o.StatusCode == 503:
		return ClassTransient
	case o.StatusCode == 500, o.StatusCode == 502, o.StatusCode == 504:
		return ClassInstanceFailure
	case o.StatusCode == 401, o.StatusCode == 403:
		return ClassInstanceFailure
	default:
		return ClassBusinessError
	}
}

func classifyTransportError(err error) Class {
	if err == nil {
		return ClassBusinessError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassInstanceFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassInstanceFailure
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassInstanceFailure
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassInstanceFailure
	}
	// Any other transport-level failure (connection refused/reset, etc.)
	// is treated as an instance failure: the instance is unreachable.
	return ClassInstanceFailure
}

// ParseRetryAfterSeconds parses a Retry-After header value expressed as an
// integer number of seconds. Non-numeric (HTTP-date) forms are not
// supported; callers fall back to the default retry delay in that case.
func ParseRetryAfterSeconds(header string) (int, bool) {
	if header == "" {
		return 0, false
	}
	n, err := strconv.Atoi(header)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ToGatewayError converts a non-retryable or exhausted outcome into the
// client-facing error kind.
func ToGatewayError(o Outcome) error {
	if o.StatusCode == 0 {
		return &model.GatewayError{Kind: model.KindUpstreamError, Message: o.Err.Error()}
	}
	if o.StatusCode == 429 {
		return &model.GatewayError{Kind: model.KindRateLimited, Message: "rate limited", RetryAfter: o.RetryAfterSeconds}
	}
	return &model.GatewayError{Kind: model.KindUpstreamError, Message: "upstream error", Status: o.StatusCode}
}
