// Package upstream issues the actual HTTP round trip to a provider
// instance: header/signature authentication per model.AuthKind, per-instance
// timeout enforcement, a shared connection pool, and vendor-SDK-backed
// health probing. Grounded on the teacher's per-provider Request methods
// (internal/providers/*/*.go), generalized from one hardcoded upstream per
// package to any instance described by model.ProviderInstance.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaylayer/llmcore/internal/model"
)

const (
	defaultInstanceTimeout = 300 * time.Second
	maxIdleConnsPerHost    = 10
	idleConnTimeout        = 30 * time.Second
)

// Executor performs authenticated HTTP requests against provider instances.
type Executor struct {
	client *http.Client
	oauth  OAuthResolver
}

// NewExecutor builds an Executor with a shared transport sized per §5's
// resource budget (≥10 idle connections per host, 30s idle timeout). The
// per-request deadline is applied per call from the instance's own timeout,
// not from this client's Timeout field (left zero deliberately).
func NewExecutor(oauth OAuthResolver) *Executor {
	transport := &http.Transport{
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
	}
	return &Executor{
		client: &http.Client{Transport: transport},
		oauth:  oauth,
	}
}

// Do issues method against inst.BaseURL+path with body, applying the
// instance's authentication and its per-instance timeout. The caller is
// responsible for closing the returned response body.
func (e *Executor) Do(ctx context.Context, inst model.ProviderInstance, method, path string, body []byte, extraHeaders map[string]string) (*http.Response, error) {
	timeout := inst.Timeout
	if timeout <= 0 {
		timeout = defaultInstanceTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, inst.BaseURL+path, bodyReader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: build request: %w", inst.Key(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	if err := applyAuth(ctx, req, inst, body, e.oauth); err != nil {
		cancel()
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// The response body owns ctx's cancellation from here: callers must
	// close it, which releases cancel via the request context plumbing.
	resp.Body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}
