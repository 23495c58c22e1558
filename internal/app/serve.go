package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"adcarbon/internal/httpapi"
	"adcarbon/internal/scheduler"
	"adcarbon/internal/version"
)

// Serve runs the HTTP API, and the cache warmer when enabled, until SIGINT or
// SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	srv := httpapi.New(svc, httpapi.Options{
		Addr:            a.Config.Server.Addr,
		ReadTimeout:     a.Config.Server.ReadTimeout,
		WriteTimeout:    a.Config.Server.WriteTimeout,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
		RateLimit:       a.Config.Server.RateLimit,
		RateBurst:       a.Config.Server.RateBurst,
		CORS:            a.Config.Server.CORS,
		Version:         version.Version,
		Debug:           a.Config.Logging.Level == "debug",
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if a.Config.Warmer.Enabled {
		sched, err := scheduler.New(scheduler.Options{
			Interval:        a.Config.Warmer.Interval,
			AlignToInterval: a.Config.Warmer.AlignToInterval,
			StartupDelay:    a.Config.Warmer.StartupDelay,
			RunOnStart:      true,
		}, a.Logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			err := sched.Run(gctx, svc.Tick)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		a.Logger.Info().Strs("domains", a.Config.Warmer.Domains).Dur("interval", a.Config.Warmer.Interval).Msg("cache warmer enabled")
	}

	a.Logger.Info().Str("driver", a.Config.Cache.Driver).Msg("starting emissions api")
	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}

	a.Logger.Info().Msg("emissions api stopped")
	return nil
}
