package forecastapi

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

	"forecast_bot/internal/domain/forecast"
	"forecast_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

const (
	endpointPath = "/news-json"
	maxBodyBytes = 8 << 20
	userAgent    = "ForecastBot/1.0"
)

// Config holds forecast API client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration // per attempt
	Retry   forecast.RetryPolicy
}

// Client implements forecast.Fetcher over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	timeout    time.Duration
	retry      forecast.RetryPolicy
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *logrus.Entry
}

var _ forecast.Fetcher = (*Client)(nil)

func NewClient(cfg Config, logger *logrus.Entry) *Client {
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	return &Client{
		httpClient: &http.Client{},
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + endpointPath,
		timeout:    cfg.Timeout,
		retry:      cfg.Retry,
		sleep:      sleepContext,
		logger:     logger.WithField("component", "forecast_client"),
	}
}

// WithSleep replaces the backoff sleeper.
func (c *Client) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Client {
	c.sleep = fn
	return c
}

// Endpoint returns the fully qualified API endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Fetch(ctx context.Context, q forecast.Query) (*forecast.Payload, error) {
	reqURL := c.endpoint + "?" + encodeQuery(q).Encode()
	log := c.logger.WithFields(logrus.Fields{
		"topics":    strings.Join(q.Topics, ","),
		"countries": strings.Join(q.Countries, ","),
	})

	var lastErr *forecast.UpstreamError
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		payload, uerr := c.doRequest(ctx, reqURL)
		if uerr == nil {
			metrics.UpstreamRequestsTotal.WithLabelValues("success").Inc()
			log.WithField("attempt", attempt).Debug("forecast fetched")
			return payload, nil
		}
		uerr.Attempts = attempt
		metrics.UpstreamRequestsTotal.WithLabelValues(string(uerr.Kind)).Inc()

		if uerr.Kind == forecast.Permanent {
			log.WithError(uerr).Warn("forecast request failed permanently")
			return nil, uerr
		}
		if ctx.Err() != nil {
			return nil, &forecast.UpstreamError{Kind: forecast.Transient, Attempts: attempt, Err: ctx.Err()}
		}

		lastErr = uerr
		if attempt == c.retry.MaxAttempts {
			break
		}

		backoff := c.retry.Delay(attempt)
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": backoff,
		}).WithError(uerr.Err).Warn("forecast request failed, retrying")

		if err := c.sleep(ctx, backoff); err != nil {
			return nil, &forecast.UpstreamError{Kind: forecast.Transient, Attempts: attempt, Err: err}
		}
	}

	log.WithError(lastErr).Error("forecast request retries exhausted")
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, reqURL string) (*forecast.Payload, *forecast.UpstreamError) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &forecast.UpstreamError{Kind: forecast.Permanent, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("attempt timed out after %s: %w", c.timeout, err)
		}
		return nil, &forecast.UpstreamError{Kind: forecast.Transient, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &forecast.UpstreamError{Kind: forecast.Transient, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &forecast.UpstreamError{Kind: forecast.Transient, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &forecast.UpstreamError{Kind: forecast.Permanent, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, snippet(body))}
	}

	var payload forecast.Payload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		return nil, &forecast.UpstreamError{Kind: forecast.Permanent, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(payload.Results) == 0 {
		return nil, &forecast.UpstreamError{Kind: forecast.Permanent, StatusCode: resp.StatusCode, Err: errors.New("response has no results")}
	}
	return &payload, nil
}

func encodeQuery(q forecast.Query) url.Values {
	v := url.Values{}
	v.Set("countries", strings.Join(q.Countries, ","))
	v.Set("topics", strings.Join(q.Topics, ","))
	v.Set("language", q.Language)
	if q.TimeHorizon != "" {
		v.Set("time_horizon", q.TimeHorizon)
	}
	if q.Depth != "" {
		v.Set("depth", q.Depth)
	}
	return v
}

func snippet(body []byte) string {
	const n = 200
	s := strings.TrimSpace(string(body))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
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
