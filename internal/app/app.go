package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"adcarbon/internal/cache"
	"adcarbon/internal/calendar"
	"adcarbon/internal/config"
	"adcarbon/internal/emissions"
	"adcarbon/internal/measure"
	"adcarbon/internal/service"
	"adcarbon/internal/storage"
	"adcarbon/internal/validate"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// openCache builds the configured day cache. The returned closer is never nil.
func (a *App) openCache(ctx context.Context) (cache.Store, func(), error) {
	cfg := a.Config.Cache
	switch cfg.Driver {
	case config.CacheDriverRedis:
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
			MaxRetries:  cfg.Redis.MaxRetries,
		}, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil

	case config.CacheDriverPostgres:
		pool, err := storage.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		a.Logger.Debug().Msg("using in-process cache")
		return cache.NewMemory(nil), func() {}, nil
	}
}

// newService wires the measurement client, fetcher and orchestrator over store.
func (a *App) newService(store cache.Store) (*service.Service, error) {
	if err := a.Config.RequireAPIKey(); err != nil {
		return nil, err
	}
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}

	m := a.Config.Measure
	client := measure.New(measure.Options{
		BaseURL:       m.BaseURL,
		APIKey:        m.APIKey,
		Timeout:       m.Timeout,
		RatePerSecond: m.RatePerSecond,
		Burst:         m.Burst,
		MaxRetries:    m.MaxRetries,
		RetryBackoff:  m.RetryBackoff,
		Framework:     m.Framework,
		DeviceType:    m.DeviceType,
		UserAgent:     m.UserAgent,
	}, a.Logger)

	fetcher := emissions.NewFetcher(store, client, emissions.FetcherOptions{
		TTL:       a.Config.Cache.TTL,
		KeyPrefix: a.Config.Cache.KeyPrefix,
		Timeout:   a.Config.Engine.UpstreamTimeout,
		Location:  loc,
	}, a.Logger)

	return service.New(fetcher, store, service.Options{
		MaxConcurrency: a.Config.Engine.MaxConcurrency,
		WarmDomains:    a.Config.Warmer.Domains,
		LockKey:        a.Config.Warmer.AdvisoryLockKey,
	}, a.Logger), nil
}

// rollup runs a single aggregation for the report and export commands.
func (a *App) rollup(ctx context.Context, q Query) (emissions.Rollup, error) {
	store, closeStore, err := a.openCache(ctx)
	if err != nil {
		return emissions.Rollup{}, err
	}
	defer closeStore()

	svc, err := a.newService(store)
	if err != nil {
		return emissions.Rollup{}, err
	}

	started := time.Now()
	r, err := svc.Run(ctx, q.Domain, q.Date, q.Granularity)
	if err != nil {
		return emissions.Rollup{}, err
	}
	a.Logger.Debug().Str("domain", q.Domain).
		Str("granularity", string(q.Granularity)).
		Dur("elapsed", time.Since(started)).
		Msg("rollup ready")
	return r, nil
}

// Query names a single rollup.
type Query struct {
	Domain      string
	Date        calendar.Date
	Granularity calendar.Granularity
}

// ParseQuery validates raw command-line input into a Query.
func ParseQuery(domain, date, granularity string) (Query, error) {
	host, d, err := validate.Query(domain, date)
	if err != nil {
		return Query{}, fmt.Errorf("--domain and --date: %w", err)
	}
	g, err := calendar.ParseGranularity(granularity)
	if err != nil {
		return Query{}, fmt.Errorf("--granularity: %w", err)
	}
	return Query{Domain: host, Date: d, Granularity: g}, nil
}
