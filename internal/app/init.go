package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relaylayer/llmcore/internal/balancer"
	"github.com/relaylayer/llmcore/internal/breaker"
	npCache "github.com/relaylayer/llmcore/internal/cache"
	"github.com/relaylayer/llmcore/internal/httpapi"
	"github.com/relaylayer/llmcore/internal/metrics"
	"github.com/relaylayer/llmcore/internal/model"
	"github.com/relaylayer/llmcore/internal/orchestrator"
	"github.com/relaylayer/llmcore/internal/ratelimit"
	"github.com/relaylayer/llmcore/internal/router"
	"github.com/relaylayer/llmcore/internal/sink"
	"github.com/relaylayer/llmcore/internal/upstream"
)

// initInfra establishes optional external connections. Redis is dialed once
// and shared by the cache, the rate limiter, and (when the distributed
// backend is selected) the balancer's sticky-session store.
func (a *App) initInfra(ctx context.Context) error {
	needsRedis := a.cfg.Cache.Mode == "redis" || a.cfg.RateLimit.RPMLimit > 0
	if !needsRedis {
		return nil
	}

	a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))
	rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	a.rdb = rdb
	a.log.Info("redis connected")

	return nil
}

// initRouting builds the model router and load balancer from the
// configured routing rules and provider instance pools. At least one
// enabled instance must exist across all provider types.
func (a *App) initRouting(_ context.Context) error {
	instances, err := a.cfg.ToProviderInstances()
	if err != nil {
		return fmt.Errorf("provider instances: %w", err)
	}

	total := 0
	for _, pool := range instances {
		for _, inst := range pool {
			if inst.Enabled {
				total++
			}
		}
	}
	if total == 0 {
		return fmt.Errorf("no enabled provider instances configured")
	}
	a.instances = instances

	var store balancer.SessionStore
	if a.rdb != nil && a.cfg.Cache.Mode == "redis" {
		store = balancer.NewRedisSessionStore(a.rdb, "llmcore:session")
	} else {
		store = balancer.NewSegmentedSessionStore()
	}

	a.bal = balancer.New(store, breaker.New())
	a.bal.Reload(instances)

	rules := a.cfg.ToRouterRules()
	a.rtr = router.New(rules, model.ProviderType(a.cfg.DefaultProvider))

	a.log.Info("routing configured",
		slog.Int("rules", len(rules)),
		slog.Int("instances", total),
	)

	return nil
}

// initServices creates the cache backend, event sink, and metrics registry.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Cache.Mode {
	case "redis":
		a.log.Info("cache backend: redis")
	case "memory":
		a.memCache = npCache.NewMemoryCache(ctx)
		a.log.Info("cache backend: memory (in-process)")
	case "none":
		a.log.Info("cache backend: disabled")
	}

	if a.rdb != nil && a.cfg.RateLimit.RPMLimit > 0 {
		a.limiter = ratelimit.NewRPMLimiter(a.rdb, a.cfg.RateLimit.RPMLimit)
		a.log.Info("rate limiting enabled", slog.Int("rpm_limit", a.cfg.RateLimit.RPMLimit))
	}

	var err error
	switch a.cfg.Sink.Kind {
	case "clickhouse":
		chCfg := sink.ClickHouseConfig{
			Addr:           a.cfg.Sink.ClickHouse.Addr,
			Database:       a.cfg.Sink.ClickHouse.Database,
			Username:       a.cfg.Sink.ClickHouse.Username,
			Password:       a.cfg.Sink.ClickHouse.Password,
			RequestsTable:  a.cfg.Sink.ClickHouse.RequestsTable,
			FailoversTable: a.cfg.Sink.ClickHouse.FailoversTable,
			DialTimeout:    a.cfg.Sink.ClickHouse.DialTimeout,
		}
		a.evtSink, err = sink.NewClickHouseSink(a.baseCtx, chCfg)
		if err != nil {
			return fmt.Errorf("clickhouse sink: %w", err)
		}
		a.log.Info("event sink: clickhouse", slog.Any("addr", chCfg.Addr))
	default:
		a.evtSink, err = sink.NewSlogSink(a.baseCtx, a.log)
		if err != nil {
			return fmt.Errorf("slog sink: %w", err)
		}
		a.log.Info("event sink: slog")
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	return nil
}

// initGateway wires the orchestrator and HTTP server together from the
// subsystems built by the previous steps.
func (a *App) initGateway(_ context.Context) error {
	a.prober = upstream.NewHealthProber(a.cfg.Failover.ProviderTimeout)

	exec := upstream.NewExecutor(nil) // OAuth resolution is out of scope; see SPEC_FULL.md Non-goals
	images := upstream.NewImageResolver(a.cfg.Failover.ProviderTimeout)
	a.orch = orchestrator.New(a.rtr, a.bal, exec, a.evtSink, a.prom, images)

	var cacheImpl npCache.Cache
	switch a.cfg.Cache.Mode {
	case "redis":
		cacheImpl = npCache.NewExactCacheFromClient(a.rdb)
	case "memory":
		cacheImpl = a.memCache
	}

	var exclusions *npCache.ExclusionList
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := npCache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		exclusions = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	opts := []httpapi.Option{
		httpapi.WithClientAPIKeys(a.cfg.AllowClientAPIKeys),
		httpapi.WithCORSOrigins(a.cfg.CORSOrigins),
		httpapi.WithModelLister(newModelCatalog(a.cfg)),
	}
	if cacheImpl != nil {
		opts = append(opts, httpapi.WithCache(cacheImpl, a.cfg.Cache.TTL, exclusions))
	}
	if a.limiter != nil {
		opts = append(opts, httpapi.WithRateLimiter(a.limiter))
	}

	a.server = httpapi.New(a.orch, a.prom, opts...)

	return nil
}
