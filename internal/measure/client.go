// Package measure is a client for the per-impression emissions measurement API.
package measure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"adcarbon/internal/calendar"
)

const (
	measurePath    = "/measure"
	defaultBaseURL = "https://api.scope3.com/v2"
)

// Options parameterise the measurement client.
type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	RetryBackoff  time.Duration
	Framework     string
	DeviceType    string
	UserAgent     string
}

// Measurement is the per-day figure extracted from a Response.
type Measurement struct {
	RequestID      string
	TotalEmissions float64
}

// Client calls POST /measure once per (domain, day).
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// New constructs a measurement client.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.Framework == "" {
		opts.Framework = "scope3"
	}
	if opts.DeviceType == "" {
		opts.DeviceType = "pc"
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "measure_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: limiter,
		sleep:   sleepContext,
	}
}

// Measure returns the total emissions of one impression on domain during date.
func (c *Client) Measure(ctx context.Context, domain string, date calendar.Date) (Measurement, error) {
	if c.opts.APIKey == "" {
		return Measurement{}, &Error{Kind: KindTransport, Message: "api key not configured"}
	}

	body, err := json.Marshal(requestBody{Rows: []requestRow{{
		InventoryID:   domain,
		Impressions:   1,
		DeviceType:    c.opts.DeviceType,
		RowIdentifier: domain,
		UTCDatetime:   date.String(),
	}}})
	if err != nil {
		return Measurement{}, fmt.Errorf("marshal measure request: %w", err)
	}

	backoff := c.opts.RetryBackoff
	var lastErr *Error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn().Err(lastErr).
				Str("domain", domain).
				Str("date", date.String()).
				Int("attempt", attempt).
				Msg("retrying measure request")
			if err := c.sleep(ctx, backoff); err != nil {
				return Measurement{}, &Error{Kind: KindTransport, Err: err}
			}
			backoff *= 2
		}

		res, callErr := c.do(ctx, body)
		if callErr == nil {
			c.logger.Debug().Str("request_id", res.RequestID).
				Str("domain", domain).
				Str("date", date.String()).
				Msg("measure response validated")
			return Measurement{RequestID: res.RequestID, TotalEmissions: *res.TotalEmissions}, nil
		}

		lastErr = callErr
		if !callErr.Retryable() || ctx.Err() != nil {
			break
		}
	}

	c.logger.Error().Err(lastErr).
		Str("domain", domain).
		Str("date", date.String()).
		Int("status", lastErr.StatusCode).
		Msg("measure request failed")
	return Measurement{}, lastErr
}

func (c *Client) do(ctx context.Context, body []byte) (*Response, *Error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}

	params := url.Values{}
	params.Set("includeRows", "true")
	params.Set("latest", "false")
	params.Set("fields", "all")
	params.Set("framework", c.opts.Framework)
	endpoint := c.baseURL + measurePath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var res Response
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, &Error{Kind: KindShape, Message: err.Error(), Err: err}
	}
	if err := validate(&res); err != nil {
		return nil, &Error{Kind: KindShape, Message: err.Error()}
	}
	return &res, nil
}

func validate(res *Response) error {
	var issues []string
	if res.RequestID == "" {
		issues = append(issues, "requestId: required")
	}
	if res.TotalEmissions == nil {
		issues = append(issues, "totalEmissions: required")
	}
	for i, row := range res.Rows {
		if row.RowIdentifier == "" {
			issues = append(issues, fmt.Sprintf("rows.%d.rowIdentifier: required", i))
		}
	}
	if len(issues) > 0 {
		return errors.New(strings.Join(issues, ", "))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
