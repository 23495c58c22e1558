package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adcarbon/internal/cache"
	"adcarbon/internal/calendar"
	"adcarbon/internal/emissions"
)

type stubFetcher struct {
	today  calendar.Date
	values map[string]float64
	errs   map[string]error
	delay  time.Duration

	mu       sync.Mutex
	fetched  []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newStub(today string) *stubFetcher {
	return &stubFetcher{
		today:  calendar.MustParse(today),
		values: map[string]float64{},
		errs:   map[string]error{},
	}
}

func (f *stubFetcher) Today() calendar.Date { return f.today }

func (f *stubFetcher) Fetch(ctx context.Context, domain string, date calendar.Date) (emissions.DayResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.fetched = append(f.fetched, domain+"@"+date.String())
	f.mu.Unlock()

	if !date.Before(f.today) {
		return emissions.DayResult{}, &emissions.DayError{Domain: domain, Date: date, Err: emissions.ErrInvalidDate}
	}
	if err, ok := f.errs[date.String()]; ok {
		return emissions.DayResult{}, err
	}
	v, ok := f.values[date.String()]
	if !ok || v <= 0 {
		return emissions.DayResult{}, &emissions.DayError{Domain: domain, Date: date, Err: emissions.ErrNoData}
	}
	return emissions.DayResult{Date: date, TotalEmissions: v}, nil
}

func upstream(date string) error {
	return &emissions.UpstreamError{Domain: "yahoo.com", Date: calendar.MustParse(date), Err: errors.New("bad gateway")}
}

func TestDayReport(t *testing.T) {
	f := newStub("2025-10-01")
	f.values["2025-09-22"] = 0.2873057
	svc := New(f, nil, Options{MaxConcurrency: 4}, zerolog.Nop())

	rep, err := svc.Day(context.Background(), "yahoo.com", calendar.MustParse("2025-09-22"))
	require.NoError(t, err)
	assert.Equal(t, emissions.DayReport{
		Domain:         "yahoo.com",
		Date:           calendar.MustParse("2025-09-22"),
		TotalEmissions: 0.2873057,
	}, rep)
}

func TestRunDayPropagatesErrors(t *testing.T) {
	f := newStub("2025-10-01")
	f.errs["2025-09-22"] = upstream("2025-09-22")
	svc := New(f, nil, Options{MaxConcurrency: 4}, zerolog.Nop())

	_, err := svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-09-22"), calendar.Day)
	assert.True(t, emissions.IsUpstream(err))

	_, err = svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-10-01"), calendar.Day)
	assert.True(t, emissions.IsInvalidDate(err))

	_, err = svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-09-23"), calendar.Day)
	assert.True(t, emissions.IsNoData(err))
}

func TestRunDayRollup(t *testing.T) {
	f := newStub("2025-10-01")
	f.values["2025-09-22"] = 0.2873057
	svc := New(f, nil, Options{MaxConcurrency: 4}, zerolog.Nop())

	r, err := svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-09-22"), calendar.Day)
	require.NoError(t, err)
	assert.Equal(t, []calendar.Date{calendar.MustParse("2025-09-22")}, r.Dates)
	assert.Equal(t, 0.2873057, r.TotalEmissions)
	assert.Equal(t, 0.2873057, r.Average)
	assert.Empty(t, r.Month)
}

func TestRunWeekExcludesBadDays(t *testing.T) {
	f := newStub("2025-09-28")
	for i, d := range calendar.Expand(calendar.MustParse("2025-09-22"), calendar.Week) {
		f.values[d.String()] = float64(i + 1)
	}
	f.errs["2025-09-23"] = upstream("2025-09-23")
	delete(f.values, "2025-09-24")
	svc := New(f, nil, Options{MaxConcurrency: 3}, zerolog.Nop())

	r, err := svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-09-25"), calendar.Week)
	require.NoError(t, err)

	var got []string
	for _, d := range r.Dates {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{"2025-09-22", "2025-09-25", "2025-09-26", "2025-09-27"}, got)
	assert.Equal(t, 1.0+4+5+6, r.TotalEmissions)
	assert.Equal(t, emissions.Extreme{Value: 6, Date: "2025-09-27"}, r.High)
	assert.Equal(t, emissions.Extreme{Value: 1, Date: "2025-09-22"}, r.Low)
	assert.Empty(t, r.Month)
}

func TestRunMonthLabelAndOrder(t *testing.T) {
	f := newStub("2025-10-05")
	f.delay = time.Millisecond
	for _, d := range calendar.Expand(calendar.MustParse("2025-09-01"), calendar.Month) {
		f.values[d.String()] = 2
	}
	svc := New(f, nil, Options{MaxConcurrency: 5}, zerolog.Nop())

	r, err := svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-09-17"), calendar.Month)
	require.NoError(t, err)
	assert.Equal(t, "2025-09", r.Month)
	require.Len(t, r.Dates, 30)
	for i, d := range r.Dates {
		assert.Equal(t, i+1, d.Day)
	}
	assert.Equal(t, "2025-09-01", r.High.Date)
	assert.Equal(t, "2025-09-01", r.Low.Date)
	assert.LessOrEqual(t, f.peak.Load(), int32(5))
}

func TestRunAllFailedIsSystemic(t *testing.T) {
	f := newStub("2025-09-25")
	for _, d := range []string{"2025-09-22", "2025-09-23", "2025-09-24"} {
		f.errs[d] = upstream(d)
	}
	svc := New(f, nil, Options{MaxConcurrency: 2}, zerolog.Nop())

	_, err := svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-09-22"), calendar.Week)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllDaysFailed))
	assert.True(t, emissions.IsUpstream(err))
}

func TestRunAllExcludedIsEmptyRollup(t *testing.T) {
	f := newStub("2025-09-01")
	svc := New(f, nil, Options{MaxConcurrency: 2}, zerolog.Nop())

	r, err := svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-09-10"), calendar.Month)
	require.NoError(t, err)
	require.NotNil(t, r.Dates)
	assert.Empty(t, r.Dates)
	assert.Zero(t, r.TotalEmissions)
	assert.Zero(t, r.Average)
	assert.Equal(t, "2025-09", r.Month)
}

func TestRunNoDataAlongsideFailuresIsNotSystemic(t *testing.T) {
	f := newStub("2025-09-25")
	f.errs["2025-09-22"] = upstream("2025-09-22")
	svc := New(f, nil, Options{MaxConcurrency: 2}, zerolog.Nop())

	r, err := svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-09-22"), calendar.Week)
	require.NoError(t, err)
	assert.Empty(t, r.Dates)
}

func TestRunRejectsUnknownGranularity(t *testing.T) {
	svc := New(newStub("2025-10-01"), nil, Options{}, zerolog.Nop())
	_, err := svc.Run(context.Background(), "yahoo.com", calendar.MustParse("2025-09-22"), calendar.Granularity("year"))
	assert.Error(t, err)
}

func TestWarmStopsAtToday(t *testing.T) {
	f := newStub("2025-09-24")
	f.values["2025-09-20"] = 1
	f.values["2025-09-21"] = 1
	f.errs["2025-09-22"] = upstream("2025-09-22")
	svc := New(f, nil, Options{}, zerolog.Nop())

	stats, err := svc.Warm(context.Background(), []string{"a.com", "b.com"},
		calendar.MustParse("2025-09-20"), calendar.MustParse("2025-09-30"))
	require.NoError(t, err)
	assert.Equal(t, WarmStats{Fetched: 4, Excluded: 2, Failed: 2}, stats)
	assert.Len(t, f.fetched, 8)
}

func TestWarmRejectsInvertedRange(t *testing.T) {
	svc := New(newStub("2025-09-24"), nil, Options{}, zerolog.Nop())
	_, err := svc.Warm(context.Background(), []string{"a.com"},
		calendar.MustParse("2025-09-21"), calendar.MustParse("2025-09-20"))
	assert.Error(t, err)
}

type lockingStore struct {
	*cache.Memory
	acquired bool
	locks    int
	unlocks  int
}

func (l *lockingStore) TryAdvisoryLock(_ context.Context, _ int64) (func(), bool, error) {
	l.locks++
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.unlocks++ }, true, nil
}

func TestTickWarmsYesterdayAndPurges(t *testing.T) {
	now := time.Date(2025, 9, 24, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := &lockingStore{Memory: cache.NewMemory(clock), acquired: true}
	require.NoError(t, store.Set(context.Background(), "stale", []byte("x"), -time.Second))

	f := newStub("2025-09-24")
	f.values["2025-09-23"] = 1
	svc := New(f, store, Options{WarmDomains: []string{"yahoo.com"}, LockKey: 7}, zerolog.Nop())

	require.NoError(t, svc.Tick(context.Background(), now))
	assert.Equal(t, []string{"yahoo.com@2025-09-23"}, f.fetched)
	assert.Zero(t, store.Len())
	assert.Equal(t, 1, store.locks)
	assert.Equal(t, 1, store.unlocks)
}

func TestTickSkipsWhenLockHeld(t *testing.T) {
	store := &lockingStore{Memory: cache.NewMemory(nil)}
	f := newStub("2025-09-24")
	svc := New(f, store, Options{WarmDomains: []string{"yahoo.com"}, LockKey: 7}, zerolog.Nop())

	require.NoError(t, svc.Tick(context.Background(), time.Now()))
	assert.Empty(t, f.fetched)
	assert.Equal(t, 1, store.locks)
}
