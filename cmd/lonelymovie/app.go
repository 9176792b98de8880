package main

import (
	"context"
	"errors"

	"github.com/lonelymovie/lonelymovie/internal/api/movie"
	"github.com/lonelymovie/lonelymovie/internal/browser"
	"github.com/lonelymovie/lonelymovie/internal/cache"
	"github.com/lonelymovie/lonelymovie/internal/extract"
	"github.com/lonelymovie/lonelymovie/internal/hls"
	"github.com/lonelymovie/lonelymovie/internal/metrics"
	"github.com/lonelymovie/lonelymovie/internal/sources"
	"github.com/lonelymovie/lonelymovie/internal/tracking"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// app holds every long-lived component of a running process
type app struct {
	registry *sources.Registry
	launcher *browser.PlaywrightLauncher
	pool     *browser.Pool
	cache    *cache.Cache
	ledger   *tracking.Ledger
	metrics  *metrics.Metrics
	titles   *movie.Service
	engine   *extract.Engine
}

// newApp wires the engine from settings. Background maintenance runs until
// ctx ends; Close releases the browsers.
func newApp(ctx context.Context, headless bool) (*app, error) {
	a := &app{}
	if err := a.wire(ctx, headless); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, headless bool) (err error) {
	if a.registry, err = sources.Load(settings.ProfilesFile); err != nil {
		return err
	}

	a.launcher, err = browser.NewPlaywrightLauncher(browser.LauncherOptions{
		Headless:        headless,
		InstallBrowsers: settings.Pool.InstallBrowsers,
	})
	if err != nil {
		return err
	}
	if a.pool, err = browser.NewPool(a.launcher, settings.Pool.Size, browser.WithIdleTTL(settings.Pool.IdleTTL)); err != nil {
		return err
	}
	if settings.Pool.PruneInterval > 0 {
		go a.pool.Run(ctx, settings.Pool.PruneInterval)
	}

	if a.cache, err = cache.New(settings.CacheConfig()); err != nil {
		return err
	}
	if settings.Cache.SweepInterval > 0 {
		go a.cache.Run(ctx, settings.Cache.SweepInterval)
	}

	a.metrics = metrics.New()
	a.metrics.WatchPool(a.pool.Stats)
	a.metrics.WatchCache(a.cache.Stats)

	opts := []extract.Option{
		extract.WithSettings(settings.EngineSettings()),
		extract.WithReporter(a.metrics),
		extract.WithObserver(a.metrics.Observe),
	}
	if settings.Extraction.VerifyManifests {
		opts = append(opts, extract.WithVerifier(hls.NewClient(nil)))
	}

	ledger, lerr := tracking.Open(settings.TrackingDB)
	switch {
	case errors.Is(lerr, tracking.ErrCgoDisabled):
		util.Debug("Source health tracking unavailable", "reason", lerr)
	case lerr != nil:
		util.Warn("Source health tracking disabled", "error", lerr)
	default:
		a.ledger = ledger
		opts = append(opts, extract.WithReporter(ledger))
	}

	a.engine, err = extract.New(a.registry, a.pool, a.cache, opts...)
	if err != nil {
		return err
	}

	a.titles = movie.NewService(
		movie.NewIMDbClient(),
		movie.NewTMDBClient(settings.TMDBAPIKey),
		movie.NewOMDbClient(settings.OMDbAPIKey),
	)
	return nil
}

func (a *app) Close() {
	// the pool owns the launcher once it exists
	switch {
	case a.pool != nil:
		if err := a.pool.Close(); err != nil {
			util.Debug("Closing pool", "error", err)
		}
	case a.launcher != nil:
		if err := a.launcher.Close(); err != nil {
			util.Debug("Closing browser", "error", err)
		}
	}
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
}
