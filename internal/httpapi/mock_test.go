package httpapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"adcarbon/internal/calendar"
	"adcarbon/internal/emissions"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Day(ctx context.Context, domain string, date calendar.Date) (emissions.DayReport, error) {
	args := m.Called(ctx, domain, date)
	return args.Get(0).(emissions.DayReport), args.Error(1)
}

func (m *mockEngine) Run(ctx context.Context, domain string, anchor calendar.Date, g calendar.Granularity) (emissions.Rollup, error) {
	args := m.Called(ctx, domain, anchor, g)
	return args.Get(0).(emissions.Rollup), args.Error(1)
}

func TestHandlersCallEngineWithValidatedInput(t *testing.T) {
	e := &mockEngine{}
	anchor := calendar.MustParse("2025-09-17")
	e.On("Run", mock.Anything, "www.nytimes.com", anchor, calendar.Month).
		Return(emissions.Rollup{Domain: "www.nytimes.com", Dates: []calendar.Date{}, Month: "2025-09"}, nil).
		Once()

	s := New(e, Options{}, zerolog.Nop())
	rec := do(t, s, "/emissions/month?domain=HTTPS://www.NYTimes.com/section&date=2025-09-17")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"domain":"www.nytimes.com","dates":[],"totalEmissions":0,"average":0,
		"high":{"value":0,"date":""},"low":{"value":0,"date":""},"month":"2025-09"}`, rec.Body.String())
	e.AssertExpectations(t)
}

func TestInvalidInputNeverReachesEngine(t *testing.T) {
	e := &mockEngine{}
	s := New(e, Options{}, zerolog.Nop())

	do(t, s, "/emissions/day?domain=yahoo.com&date=2025-13-01")
	do(t, s, "/emissions/week?domain=&date=2025-09-01")

	e.AssertNotCalled(t, "Day", mock.Anything, mock.Anything, mock.Anything)
	e.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
