package app

import (
	"context"
	"errors"
	"fmt"

	"adcarbon/internal/calendar"
	"adcarbon/internal/config"
	"adcarbon/internal/validate"
)

type entryCounter interface {
	CountEntries(ctx context.Context) (int64, error)
}

// WarmOptions configure the warm command.
type WarmOptions struct {
	Domains []string
	From    calendar.Date
	To      calendar.Date
}

// Warm pre-populates the cache for every past day in [From, To].
func (a *App) Warm(ctx context.Context, opts WarmOptions) error {
	if len(opts.Domains) == 0 {
		return errors.New("at least one --domain is required")
	}
	domains := make([]string, 0, len(opts.Domains))
	for _, raw := range opts.Domains {
		host, err := validate.Domain(raw)
		if err != nil {
			return fmt.Errorf("--domain %q: %w", raw, err)
		}
		domains = append(domains, host)
	}

	store, closeStore, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if a.Config.Cache.Driver == config.CacheDriverMemory {
		a.Logger.Warn().Msg("cache.driver is memory; warmed entries die with this process")
	}

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	stats, err := svc.Warm(ctx, domains, opts.From, opts.To)
	if err != nil {
		return err
	}
	if counter, ok := store.(entryCounter); ok {
		if n, err := counter.CountEntries(ctx); err == nil {
			a.Logger.Info().Int64("live_entries", n).Msg("cache size after warm")
		}
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d day(s) failed to warm; check logs", stats.Failed)
	}
	return nil
}
