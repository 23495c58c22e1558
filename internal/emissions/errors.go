package emissions

import (
	"errors"
	"fmt"

	"adcarbon/internal/calendar"
	"adcarbon/internal/measure"
)

var (
	// ErrInvalidDate marks today or a future day; only past days are measurable.
	ErrInvalidDate = errors.New("invalid date provided")
	// ErrNoData marks a day the upstream had no emissions for.
	ErrNoData = errors.New("no emissions data found")
)

// DayError attaches the domain and day to a sentinel.
type DayError struct {
	Domain string
	Date   calendar.Date
	Err    error
}

func (e *DayError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Domain, e.Date, e.Err)
}

func (e *DayError) Unwrap() error {
	return e.Err
}

// UpstreamError wraps a failure of the measurement collaborator, including
// timeouts.
type UpstreamError struct {
	Domain string
	Date   calendar.Date
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("measure %s on %s: %v", e.Domain, e.Date, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Shape reports whether the upstream answered with an invalid payload.
func (e *UpstreamError) Shape() bool {
	var mErr *measure.Error
	return errors.As(e.Err, &mErr) && mErr.Kind == measure.KindShape
}

// IsInvalidDate reports whether err is (or wraps) ErrInvalidDate.
func IsInvalidDate(err error) bool {
	return errors.Is(err, ErrInvalidDate)
}

// IsNoData reports whether err is (or wraps) ErrNoData.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}

// IsUpstream reports whether err is (or wraps) an *UpstreamError.
func IsUpstream(err error) bool {
	var up *UpstreamError
	return errors.As(err, &up)
}
