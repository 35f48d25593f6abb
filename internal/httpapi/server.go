// Package httpapi exposes the orchestrator over HTTP: the OpenAI-compatible
// /v1/chat/completions endpoint, the native Anthropic /v1/messages
// pass-through, a /v1/models listing, and the health/readiness/metrics
// management routes. It is grounded on the teacher's internal/proxy
// package (router.go for route registration and the server lifecycle,
// middleware.go for the request-processing chain, gateway.go for the
// SSE-writing pattern), adapted from one fixed provider-name dispatch to
// the orchestrator's model-routed, multi-instance request lifecycle.
package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/relaylayer/llmcore/internal/cache"
	"github.com/relaylayer/llmcore/internal/metrics"
	"github.com/relaylayer/llmcore/internal/orchestrator"
)

// Server wires the orchestrator into a fasthttp handler tree.
type Server struct {
	orch    *orchestrator.Orchestrator
	metrics *metrics.Registry
	models  ModelLister

	allowClientAPIKeys bool
	corsOrigins        []string

	cache      cache.Cache
	cacheTTL   time.Duration
	exclusions *cache.ExclusionList

	limiter RateLimiter
}

// RateLimiter gates requests before they reach the orchestrator, scoped to
// one client API key so a single noisy key can't starve the rest. Matches
// internal/ratelimit.RPMLimiter's AllowKey method.
type RateLimiter interface {
	AllowKey(ctx context.Context, apiKeyID string) (bool, error)
}

// ModelLister supplies the /v1/models listing; the caller's config layer
// owns the configured model catalogue.
type ModelLister interface {
	ListModels() []ModelInfo
}

// ModelInfo is one entry of the /v1/models response.
type ModelInfo struct {
	ID      string
	Created int64
	OwnedBy string
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithClientAPIKeys enables extracting a bearer token from each request's
// Authorization header and hashing it into the sticky-session key the
// balancer uses. Without this, every request shares one empty key.
func WithClientAPIKeys(enabled bool) Option {
	return func(s *Server) { s.allowClientAPIKeys = enabled }
}

// WithCORSOrigins sets the origins the cors middleware allows.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithModelLister sets the /v1/models provider. Without it the route
// returns an empty list.
func WithModelLister(l ModelLister) Option {
	return func(s *Server) { s.models = l }
}

// WithCache enables exact-match response caching for non-streaming chat
// completions, keyed on the request body's sha256 digest. ttl of zero
// disables caching even if c is non-nil.
func WithCache(c cache.Cache, ttl time.Duration, exclusions *cache.ExclusionList) Option {
	return func(s *Server) { s.cache = c; s.cacheTTL = ttl; s.exclusions = exclusions }
}

// WithRateLimiter enables a per-client-API-key requests-per-minute gate in
// front of the chat and messages endpoints.
func WithRateLimiter(l RateLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// New builds a Server from an orchestrator and metrics registry.
func New(orch *orchestrator.Orchestrator, mx *metrics.Registry, opts ...Option) *Server {
	s := &Server{orch: orch, metrics: mx}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the full middleware-wrapped fasthttp handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.POST("/v1/chat/completions", s.handleChatCompletions)
	r.POST("/v1/messages", s.handleMessages)
	r.GET("/v1/models", s.handleModels)
	r.GET("/health", s.handleHealth)
	r.GET("/readiness", s.handleReadiness)
	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(s.corsOrigins),
		securityHeaders,
	)
}

// ListenAndServe starts the HTTP server on addr (e.g. ":8080").
func (s *Server) ListenAndServe(addr string) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv.ListenAndServe(addr)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

// clientAPIKey extracts a bearer token from the Authorization header and
// returns its sha256 hex digest as the sticky-session key, mirroring the
// teacher's extractClientAPIKey. An empty digest means "no client key",
// which still works as a single shared balancer bucket.
func (s *Server) clientAPIKey(ctx *fasthttp.RequestCtx) string {
	if !s.allowClientAPIKeys {
		return ""
	}
	raw := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// rateLimited reports whether apiKeyID has exceeded its requests-per-minute
// budget. A limiter error (e.g. Redis unreachable) fails open, matching the
// teacher's RPMLimiter degrade-gracefully behavior.
func (s *Server) rateLimited(ctx *fasthttp.RequestCtx, apiKeyID string) bool {
	if s.limiter == nil {
		return false
	}
	ok, err := s.limiter.AllowKey(ctx, apiKeyID)
	return err == nil && !ok
}

// cacheKey hashes the raw request body; identical bodies (including model
// and message content) hit the same cache entry regardless of which client
// sent them.
func cacheKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// cacheableModel reports whether responses for modelName may be cached,
// honoring the configured exact/pattern exclusion list.
func (s *Server) cacheableModel(modelName string) bool {
	if s.cache == nil || s.cacheTTL <= 0 {
		return false
	}
	if s.exclusions != nil && s.exclusions.Matches(modelName) {
		return false
	}
	return true
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(v)
	ctx.SetBody(body)
}
