package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"admission-gateway/internal/config"
	"admission-gateway/internal/server"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

// runtime guarda tudo que o serve monta a partir da config e precisa desmontar.
type runtime struct {
	store   domain.CounterStore
	table   *infra.WindowTable
	limiter *application.Limiter
	stats   domain.StatsStore
	reader  domain.StatsReader
	burst   *infra.BurstStore
	slots   domain.SlotPool

	closers []func() error
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

// newCounterStore devolve nil quando não há store remoto configurado.
func newCounterStore(cfg *config.Config) (domain.CounterStore, func() error, error) {
	switch cfg.RemoteBackend() {
	case config.BackendREST:
		return infra.NewRESTCounterStore(cfg.Remote.URL, cfg.Remote.Token,
			infra.WithCallTimeout(cfg.Remote.Timeout)), nil, nil
	case config.BackendRedis:
		rdb := newRedisClient(cfg.Remote.Redis, cfg.Remote.Timeout)
		return infra.NewRedisCounterStore(rdb, infra.WithRedisCallTimeout(cfg.Remote.Timeout)), rdb.Close, nil
	case config.BackendNone:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote backend %q", cfg.RemoteBackend())
	}
}

// newRedisClient liga ContextTimeoutEnabled para que o deadline de cada chamada
// valha também para o socket; sem isso o go-redis usa só os próprios timeouts e retries.
func newRedisClient(rc config.RedisConfig, timeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  rc.Addr,
		Password:              rc.Password,
		DB:                    rc.DB,
		DialTimeout:           timeout,
		ReadTimeout:           timeout,
		WriteTimeout:          timeout,
		ContextTimeoutEnabled: true,
	})
}

func buildRuntime(ctx context.Context, cfg *config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{}

	store, closeStore, err := newCounterStore(cfg)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		rt.closers = append(rt.closers, closeStore)
	}
	rt.store = store

	switch {
	case store != nil:
		rt.limiter = application.NewLimiter(store, nil, application.WithLogger(log))
	case cfg.Gate.LocalFallback:
		// a tabela local só existe quando é ela quem decide
		rt.table = infra.NewWindowTable(infra.WithPruneEvery(cfg.Local.PruneInterval))
		stopPruner := rt.table.StartPruner(ctx)
		rt.closers = append(rt.closers, func() error { stopPruner(); return nil })
		rt.limiter = application.NewLimiter(nil, rt.table, application.WithLogger(log))
	}

	if cfg.Stats.Enabled {
		switch cfg.Stats.Backend {
		case "redis":
			rdb := newRedisClient(cfg.Stats.Redis, cfg.Stats.Timeout)
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			_, err := rdb.Ping(pingCtx).Result()
			cancel()
			if err != nil {
				_ = rdb.Close()
				rt.Close()
				return nil, fmt.Errorf("redis stats ping: %w", err)
			}
			rt.closers = append(rt.closers, rdb.Close)
			rs := infra.NewRedisStatsStore(rdb,
				infra.WithStatsPrefix(cfg.Stats.Prefix),
				infra.WithStatsTTL(cfg.Stats.TTL),
				infra.WithStatsBucket(cfg.Stats.Bucket),
				infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
				infra.WithStatsCallTimeout(cfg.Stats.Timeout),
			)
			// Redis fica fora do caminho da request: fila limitada + worker
			async := infra.NewAsyncStatsStore(rs, cfg.Stats.Buffer, infra.WithAsyncTimeout(cfg.Stats.Timeout))
			stopWorker := async.Start(ctx)
			rt.closers = append(rt.closers, func() error { stopWorker(); return nil })
			rt.stats, rt.reader = async, async
		default:
			ms := infra.NewMemoryStatsStore(
				infra.WithTrackKeys(cfg.Stats.TrackKeys),
				infra.WithMaxKeys(cfg.Stats.MaxKeys),
				infra.WithKeyIdleTTL(cfg.Stats.KeyIdleTTL),
			)
			ms.StartJanitor(ctx)
			rt.stats, rt.reader = ms, ms
		}
	}

	if cfg.Burst.Enabled {
		rt.burst = infra.NewBurstStore(cfg.Burst.RPS, cfg.Burst.Burst, infra.WithIdleTTL(cfg.Burst.IdleTTL))
		rt.burst.StartJanitor(ctx)
	}

	if cfg.Concurrency.Max > 0 {
		rt.slots = infra.NewChanPool(cfg.Concurrency.Max)
	}
	return rt, nil
}

func routeClasses(routes []config.RouteConfig) []ratelimit.RouteClass {
	out := make([]ratelimit.RouteClass, 0, len(routes))
	for _, r := range routes {
		out = append(out, ratelimit.RouteClass{
			Name:     r.Name,
			Limit:    r.Limit,
			Window:   r.Window,
			Paths:    r.Paths,
			Prefixes: r.Prefixes,
		})
	}
	return out
}

// buildHandler monta gatekeeper + router a partir do runtime.
func buildHandler(cfg *config.Config, rt *runtime, log *zap.Logger) (http.Handler, error) {
	gateOpts := ratelimit.Options{
		Limiter:             rt.limiter,
		Classes:             routeClasses(cfg.Routes),
		APIPrefix:           cfg.Gate.APIPrefix,
		AllowedMethods:      cfg.Gate.AllowedMethods,
		RetryAfterSeconds:   cfg.Gate.RetryAfterSeconds,
		AddRateLimitHeaders: cfg.Gate.AddRateLimitHeaders,
		Stats:               rt.stats,
		StatsTimeout:        cfg.Stats.Timeout,
		Logger:              log,
	}
	if rt.burst != nil {
		gateOpts.Burst = rt.burst
	}

	deps := server.Deps{
		Gate:   ratelimit.Middleware(gateOpts),
		Mode:   string(rt.limiter.Mode()),
		Logger: log,
	}
	if cfg.Server.AdminEnabled {
		deps.AdminEnabled = true
		deps.Stats = rt.reader
	}
	if rt.table != nil {
		deps.TableLen = rt.table.Len
	}
	if rt.slots != nil {
		deps.Slots = rt.slots
		deps.Concurrency = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Pool:           rt.slots,
			AcquireTimeout: cfg.Concurrency.AcquireTimeout,
			Logger:         log,
		})
	}
	if cfg.Upstream.URL != "" {
		u, err := url.Parse(cfg.Upstream.URL)
		if err != nil {
			return nil, fmt.Errorf("upstream url: %w", err)
		}
		deps.Upstream = u
	}
	return server.New(deps).Handler(), nil
}
