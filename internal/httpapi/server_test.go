package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adcarbon/internal/calendar"
	"adcarbon/internal/emissions"
	"adcarbon/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	dayErr   error
	runErr   error
	lastRun  calendar.Date
	lastG    calendar.Granularity
	lastHost string
	panics   bool
}

func (f *fakeEngine) Day(_ context.Context, domain string, date calendar.Date) (emissions.DayReport, error) {
	if f.panics {
		panic("boom")
	}
	f.lastHost = domain
	if f.dayErr != nil {
		return emissions.DayReport{}, f.dayErr
	}
	return emissions.DayReport{Domain: domain, Date: date, TotalEmissions: 0.2873057}, nil
}

func (f *fakeEngine) Run(_ context.Context, domain string, anchor calendar.Date, g calendar.Granularity) (emissions.Rollup, error) {
	f.lastHost, f.lastRun, f.lastG = domain, anchor, g
	if f.runErr != nil {
		return emissions.Rollup{}, f.runErr
	}
	r := emissions.Rollup{
		Domain:         domain,
		Dates:          []calendar.Date{calendar.Normalize(anchor, g)},
		TotalEmissions: 1,
		Average:        1,
		High:           emissions.Extreme{Value: 1, Date: calendar.Normalize(anchor, g).String()},
		Low:            emissions.Extreme{Value: 1, Date: calendar.Normalize(anchor, g).String()},
	}
	if g == calendar.Month {
		r.Month = anchor.MonthLabel()
	}
	return r, nil
}

func do(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func newTestServer(e Engine) *Server {
	return New(e, Options{Version: "test", CORS: true}, zerolog.Nop())
}

func TestHealthAndHello(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	rec := do(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = do(t, s, "/hello")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, world!", rec.Body.String())
}

func TestDayOK(t *testing.T) {
	e := &fakeEngine{}
	rec := do(t, newTestServer(e), "/emissions/day?domain=https://Yahoo.com&date=2025-09-22")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"domain":"yahoo.com","date":"2025-09-22","totalEmissions":0.2873057}`, rec.Body.String())
	assert.Equal(t, "yahoo.com", e.lastHost)
}

func TestParameterErrors(t *testing.T) {
	s := newTestServer(&fakeEngine{})
	cases := []struct {
		target string
		code   int
		msg    string
	}{
		{"/emissions/day?date=2025-09-22", http.StatusForbidden, msgMissingParams},
		{"/emissions/week?domain=yahoo.com", http.StatusForbidden, msgMissingParams},
		{"/emissions/month", http.StatusForbidden, msgMissingParams},
		{"/emissions/day?domain=yahoo.com&date=yesterday", http.StatusBadRequest, msgInvalidParams},
		{"/emissions/week?domain=not_a_domain&date=2025-09-22", http.StatusBadRequest, msgInvalidParams},
	}
	for _, tc := range cases {
		rec := do(t, s, tc.target)
		assert.Equal(t, tc.code, rec.Code, tc.target)
		assert.Equal(t, tc.msg, errorOf(t, rec), tc.target)
	}
}

func TestDayErrorMapping(t *testing.T) {
	d := calendar.MustParse("2025-09-22")
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{&emissions.DayError{Date: d, Err: emissions.ErrInvalidDate}, http.StatusForbidden, msgInvalidDate},
		{&emissions.DayError{Date: d, Err: emissions.ErrNoData}, http.StatusForbidden, msgNoData},
		{&emissions.UpstreamError{Date: d, Err: errors.New("401")}, http.StatusInternalServerError, msgInternal},
	}
	for _, tc := range cases {
		rec := do(t, newTestServer(&fakeEngine{dayErr: tc.err}), "/emissions/day?domain=yahoo.com&date=2025-09-22")
		assert.Equal(t, tc.code, rec.Code)
		assert.Equal(t, tc.msg, errorOf(t, rec))
	}
}

func TestWeekPassesAnchorAndGranularity(t *testing.T) {
	e := &fakeEngine{}
	rec := do(t, newTestServer(e), "/emissions/week?domain=yahoo.com&date=2025-09-25")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, calendar.Week, e.lastG)
	assert.Equal(t, "2025-09-25", e.lastRun.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{"2025-09-22"}, body["dates"])
	assert.NotContains(t, body, "month")
}

func TestMonthCarriesLabel(t *testing.T) {
	e := &fakeEngine{}
	rec := do(t, newTestServer(e), "/emissions/month?domain=yahoo.com&date=2025-09-17")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2025-09", body["month"])
	assert.Equal(t, calendar.Month, e.lastG)
}

func TestRangeSystemicFailure(t *testing.T) {
	e := &fakeEngine{runErr: fmt.Errorf("%w: boom", service.ErrAllDaysFailed)}
	rec := do(t, newTestServer(e), "/emissions/month?domain=yahoo.com&date=2025-09-17")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternal, errorOf(t, rec))
}

func TestRecoveryAndNotFound(t *testing.T) {
	s := newTestServer(&fakeEngine{panics: true})

	rec := do(t, s, "/emissions/day?domain=yahoo.com&date=2025-09-22")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternal, errorOf(t, rec))

	rec = do(t, s, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(&fakeEngine{})
	id := "3f1c3f44-8f6e-4a5e-9f43-2f6f1e0c9a11"

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, id)
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(requestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakeEngine{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/emissions/day", nil)
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	s := New(&fakeEngine{}, Options{RateLimit: 0.001, RateBurst: 1}, zerolog.Nop())

	assert.Equal(t, http.StatusOK, do(t, s, "/health").Code)
	rec := do(t, s, "/health")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, msgTooManyRequests, errorOf(t, rec))
}
