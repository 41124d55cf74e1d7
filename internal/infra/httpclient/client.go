package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

var (
	defaultTimeout       = 30 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = 2 * time.Second
)

// Client is the shared outbound HTTP client for payment gateways: bounded
// timeout, a small fixed retry budget with linear backoff, retries only on
// transport errors and 5xx. 4xx is an application error and is returned as-is.
type Client struct {
	http          *http.Client
	maxRetries    int
	retryInterval time.Duration
	logger        *slog.Logger
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

func WithRetryInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = interval
	}
}

func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:          &http.Client{Timeout: defaultTimeout},
		maxRetries:    defaultMaxRetries,
		retryInterval: defaultRetryInterval,
		logger:        logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do executes the request, replaying the body on each retry attempt.
// The response body is fully read and returned so callers never hold
// the connection open.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (int, []byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.retryInterval):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return 0, nil, fmt.Errorf("build request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			c.logger.Warn("gateway request failed",
				"method", method, "url", url, "attempt", attempt, "error", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response body: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("gateway returned %d", resp.StatusCode)
			c.logger.Warn("gateway server error",
				"method", method, "url", url, "status", resp.StatusCode, "attempt", attempt)
			continue
		}

		c.logger.Debug("gateway response",
			"method", method, "url", url, "status", resp.StatusCode, "body", string(respBody))

		return resp.StatusCode, respBody, nil
	}

	return 0, nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}
