package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/SovereignSignal/discusswatch/internal/cache"
	"github.com/SovereignSignal/discusswatch/internal/config"
	"github.com/SovereignSignal/discusswatch/internal/events"
	"github.com/SovereignSignal/discusswatch/internal/fetch"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/metrics"
	"github.com/SovereignSignal/discusswatch/internal/query"
	"github.com/SovereignSignal/discusswatch/internal/ratelimit"
	"github.com/SovereignSignal/discusswatch/internal/refresh"
	"github.com/SovereignSignal/discusswatch/internal/sources"
)

// app wires the full component graph. Both the serve and refresh commands
// build the same graph; serve additionally runs the HTTP server and cron.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	registry  *sources.Registry
	store     *cache.Store
	fetcher   *fetch.Fetcher
	orch      *refresh.Orchestrator
	facade    *query.Facade
	metrics   *metrics.Metrics
	promReg   *prometheus.Registry
	inbound   *ratelimit.Limiter
	publisher *events.Publisher
	redis     *redis.Client
}

// buildApp constructs the component graph from configuration.
func buildApp(cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	registry, err := sources.Load(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load source registry: %w", err)
	}
	log.Info("source registry loaded",
		logger.Int("sources", registry.Len()),
		logger.String("path", cfg.SourcesFile),
	)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	outbound := ratelimit.New(cfg.RateLimit.MaxTrackedKeys)
	inbound := ratelimit.New(cfg.RateLimit.MaxTrackedKeys)

	adapters := fetch.NewAdapterSet(cfg.Upstream.UserAgent, cfg.Upstream.GitHubToken, cfg.Upstream.SnapshotAPIKey)
	retryCfg := fetch.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.Upstream.MaxRetries
	retryCfg.BaseDelay = cfg.Upstream.RetryBackoff
	fetcher := fetch.New(fetch.Config{
		RequestTimeout: cfg.Upstream.RequestTimeout,
		OutboundWindow: cfg.RateLimit.OutboundWindow,
		OutboundMax:    cfg.RateLimit.OutboundMax,
		Retry:          retryCfg,
	}, adapters, outbound, log)

	var (
		rdb       *redis.Client
		publisher *events.Publisher
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		publisher = events.NewPublisher(rdb, cfg.Redis.Stream, log)
		log.Info("event publishing enabled",
			logger.String("addr", cfg.Redis.Addr),
			logger.String("stream", cfg.Redis.Stream),
		)
	}

	store := cache.NewStore()
	orch := refresh.New(registry, store, fetcher, publisher, m, cfg.Cache, log)
	facade := query.New(registry, store, orch, log)

	return &app{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		store:     store,
		fetcher:   fetcher,
		orch:      orch,
		facade:    facade,
		metrics:   m,
		promReg:   promReg,
		inbound:   inbound,
		publisher: publisher,
		redis:     rdb,
	}, nil
}

// close releases app resources. Safe to call once after use.
func (a *app) close() {
	a.orch.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("closing redis client", logger.Error(err))
		}
	}
	_ = a.log.Sync()
}
