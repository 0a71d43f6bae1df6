package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/cache"
	"github.com/sells-group/catalog-enricher/internal/enrich"
	"github.com/sells-group/catalog-enricher/internal/llm"
	"github.com/sells-group/catalog-enricher/internal/monitoring"
	"github.com/sells-group/catalog-enricher/internal/ratelimit"
	"github.com/sells-group/catalog-enricher/internal/registry"
	"github.com/sells-group/catalog-enricher/internal/resilience"
	"github.com/sells-group/catalog-enricher/internal/retrieval"
	"github.com/sells-group/catalog-enricher/internal/store"
	"github.com/sells-group/catalog-enricher/internal/vectorstore"
	"github.com/sells-group/catalog-enricher/pkg/embed"
)

// appEnv holds everything the commands share. Engine is nil when no
// embedder is configured; the retrieval-backed sources are then disabled.
type appEnv struct {
	Store        store.Store
	Vectors      vectorstore.Store
	Engine       *retrieval.Engine
	Sources      *registry.Set
	SourcesErr   error
	Orchestrator *enrich.Orchestrator
	Metrics      *monitoring.Metrics
	Prometheus   *prometheus.Registry

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *appEnv) onClose(fn func()) { e.closers = append(e.closers, fn) }

// initApp validates configuration for mode and builds the environment.
// Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{Prometheus: prometheus.NewRegistry()}
	env.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	env.Metrics = monitoring.NewMetrics(env.Prometheus)

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.onClose(func() { _ = st.Close() })
	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		env.onClose(func() { _ = rdb.Close() })
	}

	svc, err := llm.FromConfig(cfg.Anthropic)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init llm")
	}
	if svc == nil {
		zap.L().Debug("ENRICH_ANTHROPIC_KEY not set, llm source and query expansion disabled")
	}

	if err := env.initRetrieval(svc); err != nil {
		env.Close()
		return nil, err
	}

	deps := registry.Deps{
		Store:   st,
		GS1:     cfg.GS1,
		Retry:   resilience.NewRetryConfig(cfg.Resilience.MaxAttempts, cfg.Resilience.InitialBackoffMs),
		Tenants: cfg.Sources.Tenants,
	}
	if env.Engine != nil {
		deps.Engine = env.Engine
	}
	if svc != nil {
		deps.LLM = svc
	}
	env.Sources, env.SourcesErr = registry.Open(cfg.Sources.ConfigPath, deps)

	responses, err := initCache(env, rdb)
	if err != nil {
		env.Close()
		return nil, err
	}

	opts := []enrich.Option{
		enrich.WithCache(responses),
		enrich.WithLimiter(initLimiter(rdb)),
		enrich.WithBreakers(resilience.NewServiceBreakers(
			resilience.NewCircuitBreakerConfig(cfg.Resilience.FailureThreshold, cfg.Resilience.ResetTimeoutSecs),
		)),
		enrich.WithMetrics(env.Metrics),
	}
	if cfg.Orchestrator.PersistAudit {
		opts = append(opts, enrich.WithAudit(st))
	}
	env.Orchestrator = enrich.New(env.Sources.Registry, enrich.ConfigFrom(cfg), opts...)

	zap.L().Info("app initialized",
		zap.String("mode", mode),
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("ratelimit", cfg.RateLimit.Backend),
		zap.Int("sources", len(env.Sources.Registry.List())),
		zap.Bool("retrieval", env.Engine != nil),
	)
	return env, nil
}

// warm initializes every enabled source. Failures are logged and the source
// stays registered.
func (e *appEnv) warm(ctx context.Context) {
	for name, err := range e.Sources.Registry.InitializeAll(ctx) {
		zap.L().Warn("source initialize failed", zap.String("source", name), zap.Error(err))
	}
}

func (e *appEnv) initRetrieval(svc *llm.Service) error {
	embedder, err := initEmbedder()
	if err != nil {
		return err
	}
	if embedder == nil {
		zap.L().Warn("embedding key not set, retrieval sources disabled")
		return nil
	}

	var vs vectorstore.Store
	if cfg.Retrieval.IndexPath == "" {
		vs = vectorstore.NewMemory()
	} else {
		b, err := vectorstore.OpenBadger(cfg.Retrieval.IndexPath)
		if err != nil {
			return eris.Wrap(err, "open vector index")
		}
		vs = b
	}
	e.Vectors = vs
	e.onClose(func() { _ = vs.Close() })

	opts := retrieval.ConfigOptions(cfg.Retrieval, cfg.Embedding.BatchSize)
	opts = append(opts, retrieval.WithMetrics(e.Metrics))
	if svc != nil {
		opts = append(opts, retrieval.WithExpander(svc))
	}
	engine, err := retrieval.New(vs, embedder, opts...)
	if err != nil {
		return err
	}
	e.Engine = engine
	e.onClose(engine.Close)
	return nil
}

// initEmbedder returns nil without error when the hosted embedder has no key.
func initEmbedder() (embed.Embedder, error) {
	ec := cfg.Embedding
	if ec.Provider == "hash" {
		return embed.NewHash(ec.Dimension), nil
	}
	if ec.Key == "" {
		return nil, nil
	}
	o, err := embed.NewOpenAI(embed.Config{
		BaseURL:   ec.BaseURL,
		Key:       ec.Key,
		Model:     ec.Model,
		BatchSize: ec.BatchSize,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init embedder")
	}
	return o, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "enricher.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCache(env *appEnv, rdb *redis.Client) (*cache.Cache, error) {
	var backend cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		backend = cache.NewRedisStore(rdb)
	case "memory", "tiered":
		mem, err := cache.NewMemoryStore(cfg.Cache.MaxEntries)
		if err != nil {
			return nil, err
		}
		env.onClose(mem.Close)
		backend = mem
		if cfg.Cache.Backend == "tiered" {
			backend = cache.NewTiered(mem, cache.NewRedisStore(rdb))
		}
	default:
		return nil, eris.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
	return cache.New(backend, cfg.Cache.KeyPrefix, env.Metrics), nil
}

func initLimiter(rdb *redis.Client) ratelimit.Limiter {
	if cfg.RateLimit.Backend == "redis" && rdb != nil {
		return ratelimit.NewRedis(rdb, "enrich:ratelimit:")
	}
	return ratelimit.NewMemory()
}
