// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra    — external connections (Redis, when caching, rate
//     limiting, or distributed sticky sessions need it)
//  2. initRouting  — model router + load balancer from the configured
//     routing rules and provider instance pools
//  3. initServices — cache backend, event sink, metrics registry
//  4. initGateway  — orchestrator + HTTP server
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/relaylayer/llmcore/internal/balancer"
	npCache "github.com/relaylayer/llmcore/internal/cache"
	"github.com/relaylayer/llmcore/internal/config"
	"github.com/relaylayer/llmcore/internal/httpapi"
	"github.com/relaylayer/llmcore/internal/metrics"
	"github.com/relaylayer/llmcore/internal/model"
	"github.com/relaylayer/llmcore/internal/orchestrator"
	"github.com/relaylayer/llmcore/internal/ratelimit"
	"github.com/relaylayer/llmcore/internal/router"
	"github.com/relaylayer/llmcore/internal/sink"
	"github.com/relaylayer/llmcore/internal/upstream"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	rdb *redis.Client

	memCache *npCache.MemoryCache
	evtSink  sink.EventSink
	limiter  *ratelimit.RPMLimiter

	prom *metrics.Registry
	bal  *balancer.Balancer
	rtr  *router.Router

	instances map[model.ProviderType][]model.ProviderInstance
	prober    *upstream.HealthProber

	orch   *orchestrator.Orchestrator
	server *httpapi.Server
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"routing", a.initRouting},
		{"services", a.initServices},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and the balancer's background sweeper/recovery
// tick, and blocks until ctx is cancelled or one of them errors. It closes
// the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("cache_mode", a.cfg.Cache.Mode),
		slog.String("sink_kind", a.cfg.Sink.Kind),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.ListenAndServe(addr)
	})

	g.Go(func() error {
		a.bal.StartBackgroundTasks(gctx)
		return nil
	})

	g.Go(func() error {
		a.runHealthPoller(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

const healthPollInterval = 30 * time.Second

// runHealthPoller probes every configured instance on a fixed interval and
// records each outcome in the provider_health gauge, generalizing the
// teacher's once-per-provider-type HealthChecker to once per instance. A
// successful probe is also reported to the balancer via MarkSuccess; a failed
// probe is only logged and does not touch circuit-breaker state.
func (a *App) runHealthPoller(ctx context.Context) {
	t := time.NewTicker(healthPollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *App) pollOnce(ctx context.Context) {
	for _, pool := range a.instances {
		for _, inst := range pool {
			if !inst.Enabled {
				continue
			}
			err := a.prober.Probe(ctx, inst)
			healthy := err == nil
			a.prom.SetProviderHealth(inst.Key(), healthy)
			if healthy {
				a.bal.MarkSuccess(inst)
			} else {
				a.log.Warn("instance health probe failed",
					slog.String("instance", inst.Key()), slog.String("error", err.Error()))
			}
		}
	}
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times in sequence; concurrent calls are not synchronized with each other.
func (a *App) Close() {
	if a.bal != nil {
		a.bal.Close()
		a.bal = nil
	}
	if a.evtSink != nil {
		if err := a.evtSink.Close(); err != nil {
			a.log.Error("sink close error", slog.String("error", err.Error()))
		}
		a.evtSink = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
// Returns an error — callers decide whether to fatal or degrade.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
