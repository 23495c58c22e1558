package measure

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies upstream failures.
type Kind string

const (
	// KindTransport covers dial, TLS, timeout and body read failures.
	KindTransport Kind = "transport"
	// KindStatus is a non-2xx response.
	KindStatus Kind = "status"
	// KindShape is a 2xx response that does not match the expected schema.
	KindShape Kind = "shape"
)

// Error is returned for every failed measurement call.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("measure api error (%d): %s", e.StatusCode, e.Message)
	case KindShape:
		return fmt.Sprintf("measure api response validation failed: %s", e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("measure api request failed: %v", e.Err)
		}
		return "measure api request failed: " + e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

func parseHTTPError(status int, payload []byte) *Error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		for _, msg := range []string{apiErr.Message, apiErr.Error, apiErr.Detail} {
			if msg != "" {
				return &Error{Kind: KindStatus, StatusCode: status, Message: msg}
			}
		}
	}
	msg := strings.TrimSpace(string(payload))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Kind: KindStatus, StatusCode: status, Message: msg}
}
