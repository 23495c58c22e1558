// Package service composes range expansion, per-day fetching and the rollup
// fold into the request-level aggregation engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"adcarbon/internal/cache"
	"adcarbon/internal/calendar"
	"adcarbon/internal/emissions"
	"adcarbon/internal/storage"
)

// ErrAllDaysFailed is returned for a week or month when no day produced a
// value and every measurable day failed upstream. Days excluded as today or
// in the future do not prevent it.
var ErrAllDaysFailed = errors.New("every day in range failed upstream")

// DayFetcher resolves a single (domain, day).
type DayFetcher interface {
	Fetch(ctx context.Context, domain string, date calendar.Date) (emissions.DayResult, error)
	Today() calendar.Date
}

// Options tune the orchestrator.
type Options struct {
	MaxConcurrency int
	// WarmDomains are refreshed on every scheduled tick.
	WarmDomains []string
	LockKey     int64
}

// Service runs aggregation requests.
type Service struct {
	fetcher DayFetcher
	purger  cache.Purger
	locker  storage.AdvisoryLocker
	opts    Options
	logger  zerolog.Logger
}

// WarmStats summarise a Warm run.
type WarmStats struct {
	Fetched  int
	Excluded int
	Failed   int
}

// New constructs the orchestrator. store is only inspected for purge and
// advisory lock support; reads and writes go through fetcher.
func New(fetcher DayFetcher, store cache.Store, opts Options, logger zerolog.Logger) *Service {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}

	s := &Service{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With().Str("component", "service").Logger(),
	}
	if p, ok := store.(cache.Purger); ok {
		s.purger = p
	}
	if l, ok := store.(storage.AdvisoryLocker); ok {
		s.locker = l
	}
	return s
}

// Day returns the emissions of a single past day. Every error propagates.
func (s *Service) Day(ctx context.Context, domain string, date calendar.Date) (emissions.DayReport, error) {
	res, err := s.fetcher.Fetch(ctx, domain, date)
	if err != nil {
		return emissions.DayReport{}, err
	}
	return emissions.DayReport{Domain: domain, Date: res.Date, TotalEmissions: res.TotalEmissions}, nil
}

// Run expands anchor to the days of granularity g, fetches them with bounded
// concurrency and folds the results in chronological order.
//
// For Day the single fetch error is returned as is. For Week and Month,
// invalid dates, empty days and upstream failures are left out of the
// rollup; ErrAllDaysFailed is returned only when nothing succeeded, nothing
// came back empty and at least one day failed upstream.
func (s *Service) Run(ctx context.Context, domain string, anchor calendar.Date, g calendar.Granularity) (emissions.Rollup, error) {
	if _, err := calendar.ParseGranularity(string(g)); err != nil {
		return emissions.Rollup{}, err
	}

	days := calendar.Expand(anchor, g)

	if g == calendar.Day {
		outcomes := make([]emissions.Outcome, 0, 1)
		for _, d := range days {
			res, err := s.fetcher.Fetch(ctx, domain, d)
			if err != nil {
				return emissions.Rollup{}, err
			}
			outcomes = append(outcomes, emissions.Classify(d, res, nil))
		}
		return emissions.Aggregate(domain, outcomes), nil
	}

	outcomes := s.fetchAll(ctx, domain, days)

	var succeeded, empty, failed int
	var firstErr error
	for i, o := range outcomes {
		switch {
		case o.Kind == emissions.OutcomeOK:
			succeeded++
		case o.Reason == emissions.ReasonNoData:
			empty++
		case o.Kind == emissions.OutcomeFailed:
			failed++
			if firstErr == nil {
				firstErr = o.Err
			}
			s.logger.Warn().Err(o.Err).
				Str("domain", domain).
				Str("date", o.Date.String()).
				Msg("excluding day after upstream failure")
			outcomes[i] = o.Exclude()
		}
	}

	if succeeded == 0 && empty == 0 && failed > 0 {
		return emissions.Rollup{}, fmt.Errorf("%w: %w", ErrAllDaysFailed, firstErr)
	}

	rollup := emissions.Aggregate(domain, outcomes)
	if g == calendar.Month {
		rollup.Month = anchor.MonthLabel()
	}

	s.logger.Debug().Str("domain", domain).
		Str("granularity", string(g)).
		Int("days", len(days)).
		Int("included", len(rollup.Dates)).
		Int("failed", failed).
		Msg("rollup computed")
	return rollup, nil
}

func (s *Service) fetchAll(ctx context.Context, domain string, days []calendar.Date) []emissions.Outcome {
	outcomes := make([]emissions.Outcome, len(days))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrency)
	for i, d := range days {
		i, d := i, d
		g.Go(func() error {
			res, err := s.fetcher.Fetch(ctx, domain, d)
			outcomes[i] = emissions.Classify(d, res, err)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Warm fetches every measurable day between from and to, inclusive, for each
// domain so later requests are served from the cache.
func (s *Service) Warm(ctx context.Context, domains []string, from, to calendar.Date) (WarmStats, error) {
	var stats WarmStats
	if to.Before(from) {
		return stats, fmt.Errorf("warm range is empty: %s is after %s", from, to)
	}

	today := s.fetcher.Today()
	for _, domain := range domains {
		for d := from; !d.After(to); d = d.AddDays(1) {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if !d.Before(today) {
				break
			}

			_, err := s.fetcher.Fetch(ctx, domain, d)
			switch o := emissions.Classify(d, emissions.DayResult{}, err); o.Kind {
			case emissions.OutcomeOK:
				stats.Fetched++
			case emissions.OutcomeExcluded:
				stats.Excluded++
			default:
				stats.Failed++
				s.logger.Error().Err(err).Str("domain", domain).Str("date", d.String()).Msg("warm failed")
			}
		}
	}

	s.logger.Info().Int("fetched", stats.Fetched).
		Int("excluded", stats.Excluded).
		Int("failed", stats.Failed).
		Msg("warm finished")
	return stats, nil
}

// Tick is the scheduler callback: it warms yesterday for the configured
// domains and sweeps expired cache entries.
func (s *Service) Tick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", at).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if len(s.opts.WarmDomains) > 0 {
		yesterday := s.fetcher.Today().AddDays(-1)
		stats, err := s.Warm(ctx, s.opts.WarmDomains, yesterday, yesterday)
		if err != nil {
			return fmt.Errorf("warm %s: %w", yesterday, err)
		}
		if stats.Failed > 0 {
			s.logger.Warn().Time("tick", at).Int("failed", stats.Failed).Msg("warm tick had failures")
		}
	}

	if s.purger != nil {
		removed, err := s.purger.Purge(ctx)
		if err != nil {
			return fmt.Errorf("purge cache: %w", err)
		}
		if removed > 0 {
			s.logger.Info().Int("removed", removed).Msg("purged expired cache entries")
		}
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
