// Package validate checks the domain and date query parameters at the
// transport boundary.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"adcarbon/internal/calendar"
)

// ErrMissing is returned when a required parameter is absent or blank.
var ErrMissing = errors.New("missing required parameters")

var hostnamePattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)

// Error describes a parameter that is present but malformed.
type Error struct {
	Field string
	Value string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Domain reduces raw to a lowercase hostname. A bare host is accepted as is;
// a URL contributes only its host.
func Domain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrMissing
	}
	if !strings.HasPrefix(strings.ToLower(s), "http") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", &Error{Field: "domain", Value: raw, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &Error{Field: "domain", Value: raw, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if !hostnamePattern.MatchString(host) {
		return "", &Error{Field: "domain", Value: raw, Err: errors.New("not a hostname")}
	}
	return host, nil
}

// Date parses a YYYY-MM-DD calendar day.
func Date(raw string) (calendar.Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return calendar.Date{}, ErrMissing
	}
	d, err := calendar.Parse(s)
	if err != nil {
		return calendar.Date{}, &Error{Field: "date", Value: raw, Err: err}
	}
	return d, nil
}

// Query validates a (domain, date) pair. Absence of either is reported as
// ErrMissing before any format check.
func Query(domain, date string) (string, calendar.Date, error) {
	if strings.TrimSpace(domain) == "" || strings.TrimSpace(date) == "" {
		return "", calendar.Date{}, ErrMissing
	}
	host, err := Domain(domain)
	if err != nil {
		return "", calendar.Date{}, err
	}
	d, err := Date(date)
	if err != nil {
		return "", calendar.Date{}, err
	}
	return host, d, nil
}

// IsInvalid reports whether err is a malformed-parameter error.
func IsInvalid(err error) bool {
	var vErr *Error
	return errors.As(err, &vErr)
}
