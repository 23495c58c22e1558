package emissions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"adcarbon/internal/cache"
	"adcarbon/internal/calendar"
	"adcarbon/internal/measure"
)

// DefaultTTL is how long a measured day stays cached.
const DefaultTTL = 5 * time.Minute

// Measurer is the upstream measurement collaborator.
type Measurer interface {
	Measure(ctx context.Context, domain string, date calendar.Date) (measure.Measurement, error)
}

// FetcherOptions parameterise a Fetcher.
type FetcherOptions struct {
	TTL       time.Duration
	KeyPrefix string
	// Timeout bounds a single upstream call; zero means no extra bound.
	Timeout  time.Duration
	Location *time.Location
	Clock    func() time.Time
}

// Fetcher resolves one (domain, day) to a DayResult through the cache.
type Fetcher struct {
	store    cache.Store
	measurer Measurer
	opts     FetcherOptions
	logger   zerolog.Logger
	inflight singleflight.Group
}

// NewFetcher builds a Fetcher over store and measurer.
func NewFetcher(store cache.Store, measurer Measurer, opts FetcherOptions, logger zerolog.Logger) *Fetcher {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = cache.DefaultKeyPrefix
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Fetcher{
		store:    store,
		measurer: measurer,
		opts:     opts,
		logger:   logger.With().Str("component", "emissions_fetcher").Logger(),
	}
}

// Today is the current local calendar day.
func (f *Fetcher) Today() calendar.Date {
	return calendar.Today(f.opts.Clock(), f.opts.Location)
}

// Fetch returns the emissions of domain on date. A live cache entry is
// returned as is. Otherwise date must be strictly before today (ErrInvalidDate),
// and the upstream total must be positive (ErrNoData). Upstream failures are
// returned as *UpstreamError. Only successful results are cached.
func (f *Fetcher) Fetch(ctx context.Context, domain string, date calendar.Date) (DayResult, error) {
	key := cache.DayKey(f.opts.KeyPrefix, domain, date.String())

	if res, ok := f.lookup(ctx, key); ok {
		return res, nil
	}

	if !date.Before(f.Today()) {
		return DayResult{}, &DayError{Domain: domain, Date: date, Err: ErrInvalidDate}
	}

	ch := f.inflight.DoChan(key, func() (any, error) {
		return f.measureAndStore(ctx, key, domain, date)
	})

	select {
	case <-ctx.Done():
		return DayResult{}, &UpstreamError{Domain: domain, Date: date, Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return DayResult{}, r.Err
		}
		if r.Shared {
			f.logger.Debug().Str("cache_key", key).Msg("joined in-flight measurement")
		}
		return r.Val.(DayResult), nil
	}
}

func (f *Fetcher) lookup(ctx context.Context, key string) (DayResult, bool) {
	if f.store == nil {
		return DayResult{}, false
	}

	raw, found, err := f.store.Get(ctx, key)
	if err != nil {
		f.logger.Warn().Err(err).Str("cache_key", key).Msg("cache read failed; treating as miss")
		return DayResult{}, false
	}
	if !found {
		return DayResult{}, false
	}

	var res DayResult
	if err := json.Unmarshal(raw, &res); err != nil {
		f.logger.Warn().Err(err).Str("cache_key", key).Msg("discarding undecodable cache entry")
		return DayResult{}, false
	}
	return res, true
}

func (f *Fetcher) measureAndStore(ctx context.Context, key, domain string, date calendar.Date) (DayResult, error) {
	// joined callers must not be cancelled by the first caller going away
	callCtx := context.WithoutCancel(ctx)
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, f.opts.Timeout)
		defer cancel()
	}

	started := f.opts.Clock()
	m, err := f.measurer.Measure(callCtx, domain, date)
	if err != nil {
		return DayResult{}, &UpstreamError{Domain: domain, Date: date, Err: err}
	}

	if m.TotalEmissions <= 0 {
		f.logger.Info().Str("domain", domain).Str("date", date.String()).Msg("upstream returned no emissions")
		return DayResult{}, &DayError{Domain: domain, Date: date, Err: ErrNoData}
	}

	res := DayResult{Date: date, TotalEmissions: m.TotalEmissions}
	f.remember(ctx, key, res)

	f.logger.Debug().Str("domain", domain).
		Str("date", date.String()).
		Float64("total_emissions", res.TotalEmissions).
		Dur("latency", f.opts.Clock().Sub(started)).
		Msg("measured day")
	return res, nil
}

func (f *Fetcher) remember(ctx context.Context, key string, res DayResult) {
	if f.store == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		f.logger.Warn().Err(err).Str("cache_key", key).Msg("encode cache entry")
		return
	}
	if err := f.store.Set(context.WithoutCancel(ctx), key, payload, f.opts.TTL); err != nil {
		f.logger.Warn().Err(err).Str("cache_key", key).Msg("cache write failed")
	}
}
