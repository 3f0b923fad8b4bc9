// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/serp-rank-tracker/internal/api"
	"github.com/JakeFAU/serp-rank-tracker/internal/config"
	"github.com/JakeFAU/serp-rank-tracker/internal/dispatcher"
	"github.com/JakeFAU/serp-rank-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/serp-rank-tracker/internal/provider"
	"github.com/JakeFAU/serp-rank-tracker/internal/provider/serpapi"
	"github.com/JakeFAU/serp-rank-tracker/internal/provider/xmlriver"
	"github.com/JakeFAU/serp-rank-tracker/internal/refresh"
	retryfile "github.com/JakeFAU/serp-rank-tracker/internal/retryqueue/file"
	retrymemory "github.com/JakeFAU/serp-rank-tracker/internal/retryqueue/memory"
	retrypostgres "github.com/JakeFAU/serp-rank-tracker/internal/retryqueue/postgres"
	redisqueue "github.com/JakeFAU/serp-rank-tracker/internal/retryqueue/redis"
	"github.com/JakeFAU/serp-rank-tracker/internal/settings"
	storememory "github.com/JakeFAU/serp-rank-tracker/internal/storage/memory"
	storepostgres "github.com/JakeFAU/serp-rank-tracker/internal/storage/postgres"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
	collytransport "github.com/JakeFAU/serp-rank-tracker/internal/transport/colly"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and passed to the commands that need it.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        tracker.KeywordStore
	Retry        tracker.RetryQueue
	Registry     *provider.Registry
	Transport    tracker.Transport
	Limiter      *ratelimit.Limiter
	Orchestrator *refresh.Orchestrator
	// Dispatcher is nil unless the scheduler is enabled.
	Dispatcher *dispatcher.Dispatcher

	settings tracker.Settings
	closers  []namedCloser
}

type namedCloser struct {
	name string
	io.Closer
}

type closeFunc func()

func (f closeFunc) Close() error {
	f()
	return nil
}

// New builds every service from cfg and fails fast if a backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	logger.Info("initializing application services",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("retry_queue", cfg.RetryQueue.Backend),
		zap.String("provider", cfg.Tracker.Provider),
	)

	var err error
	if a.settings, err = settings.FromConfig(cfg.Tracker); err != nil {
		return nil, fmt.Errorf("build settings: %w", err)
	}
	if a.Registry, err = NewRegistry(cfg); err != nil {
		return nil, err
	}
	if err := a.Registry.CheckGlobal(a.settings.ProviderID); err != nil {
		if errors.Is(err, tracker.ErrNotSelectable) {
			return nil, fmt.Errorf("tracker.provider: %w", err)
		}
		logger.Warn("configured provider is not registered; keywords without an engine override will fail",
			zap.String("provider", a.settings.ProviderID))
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRetryQueue(ctx); err != nil {
		a.Close()
		return nil, err
	}

	transport, err := collytransport.New(collytransport.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.RequestTimeout(),
		Proxies:   cfg.Tracker.Proxies,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build transport: %w", err)
	}
	a.Transport = transport

	rates, concurrency := providerTuning(cfg)
	a.Limiter = ratelimit.New(ratelimit.Config{Providers: rates})

	a.Orchestrator, err = refresh.New(refresh.Deps{
		Registry:  a.Registry,
		Transport: a.Transport,
		Store:     a.Store,
		Retry:     a.Retry,
		Limiter:   a.Limiter,
	}, refresh.Config{Concurrency: concurrency}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	if cfg.Scheduler.Enabled {
		a.Dispatcher, err = dispatcher.New(dispatcher.Config{
			RefreshCron: cfg.Scheduler.RefreshCron,
			RetryCron:   cfg.Scheduler.RetryCron,
		}, a.Orchestrator, a.Store, a.Retry, a.Settings, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("build scheduler: %w", err)
		}
	}

	logger.Info("application services initialized")
	return a, nil
}

// NewRegistry registers every shipped adapter, applying base URL overrides.
func NewRegistry(cfg config.Config) (*provider.Registry, error) {
	registry, err := provider.NewRegistry(
		xmlriver.NewGoogle(xmlriver.Config{BaseURL: cfg.Provider(xmlriver.GoogleID).BaseURL}),
		xmlriver.NewYandex(xmlriver.Config{BaseURL: cfg.Provider(xmlriver.YandexID).BaseURL}),
		serpapi.New(serpapi.Config{BaseURL: cfg.Provider(serpapi.ID).BaseURL}),
	)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}
	return registry, nil
}

func providerTuning(cfg config.Config) (map[string]ratelimit.Rate, map[string]int) {
	rates := make(map[string]ratelimit.Rate, len(cfg.Providers))
	concurrency := make(map[string]int, len(cfg.Providers))
	for id, p := range cfg.Providers {
		rates[id] = ratelimit.Rate{RPS: p.RPS, Burst: p.Burst}
		if p.Concurrency > 0 {
			concurrency[id] = p.Concurrency
		}
	}
	return rates, concurrency
}

func (a *App) openStore(ctx context.Context) error {
	sc := a.Config.Storage
	switch sc.Backend {
	case config.BackendMemory, "":
		a.Logger.Warn("using in-memory keyword store; data is lost on exit")
		a.Store = storememory.NewKeywordStore()
	case config.BackendPostgres:
		store, err := storepostgres.NewKeywordStore(ctx, storepostgres.Config{
			DSN:             sc.DSN,
			Table:           sc.Table,
			MaxConns:        sc.MaxConns,
			MinConns:        sc.MinConns,
			MaxConnLifetime: time.Duration(sc.MaxConnLifetime) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("open keyword store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, namedCloser{"keyword store", closeFunc(store.Close)})
	default:
		return fmt.Errorf("unknown storage backend: %s", sc.Backend)
	}
	return nil
}

func (a *App) openRetryQueue(ctx context.Context) error {
	rc := a.Config.RetryQueue
	switch rc.Backend {
	case config.BackendMemory, "":
		a.Retry = retrymemory.New()
	case config.BackendFile:
		q, err := retryfile.New(rc.Path)
		if err != nil {
			return fmt.Errorf("open retry queue: %w", err)
		}
		a.Retry = q
	case config.BackendPostgres:
		q, err := retrypostgres.New(ctx, retrypostgres.Config{
			DSN:             a.Config.RetryQueueDSN(),
			Table:           rc.Table,
			MaxConns:        a.Config.Storage.MaxConns,
			MinConns:        a.Config.Storage.MinConns,
			MaxConnLifetime: time.Duration(a.Config.Storage.MaxConnLifetime) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("open retry queue: %w", err)
		}
		a.Retry = q
		a.closers = append(a.closers, namedCloser{"retry queue", closeFunc(q.Close)})
	case config.BackendRedis:
		q, err := redisqueue.New(ctx, redisqueue.Config{
			Address:  rc.RedisAddress,
			Password: rc.RedisPassword,
			DB:       rc.RedisDB,
			Key:      rc.RedisKey,
		})
		if err != nil {
			return fmt.Errorf("open retry queue: %w", err)
		}
		a.Retry = q
		a.closers = append(a.closers, namedCloser{"retry queue", q})
	default:
		return fmt.Errorf("unknown retry queue backend: %s", rc.Backend)
	}
	return nil
}

// Settings returns a copy of the refresh settings snapshot.
func (a *App) Settings() tracker.Settings {
	s := a.settings
	if a.settings.Regions != nil {
		s.Regions = make(tracker.RegionTable, len(a.settings.Regions))
		for code, c := range a.settings.Regions {
			s.Regions[code] = c
		}
	}
	return s
}

// Server builds the HTTP API over the app's services.
func (a *App) Server() *api.Server {
	return api.NewServer(api.Deps{
		Refresher:  a.Orchestrator,
		Dispatcher: a.Dispatcher,
		Store:      a.Store,
		Retry:      a.Retry,
		Registry:   a.Registry,
		Settings:   a.Settings,
	}, a.Config, a.Logger)
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.Logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on terminal-backed stderr; nothing useful to do about it.
	_ = a.Logger.Sync()
}
