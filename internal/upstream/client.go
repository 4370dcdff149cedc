// Package upstream is the client for the storefront's REST backend: auth
// endpoints and the product catalog.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"storefront/internal/observability"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
	maxErrorBody        = 1 << 20
)

// Client talks to the storefront backend.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxAttempts  int
	retryBackoff time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry sets how many times idempotent requests are attempted and the
// base backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		if backoff >= 0 {
			c.retryBackoff = backoff
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call describes one API request. endpoint is a low-cardinality name used as
// the metric label.
type call struct {
	method   string
	path     string
	endpoint string
	token    string
	body     any
}

func (c *Client) doRequest(ctx context.Context, rc call, out any) error {
	var payload []byte
	if rc.body != nil {
		data, err := json.Marshal(rc.body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = data
	}

	if rc.method != http.MethodGet || c.maxAttempts <= 1 {
		return c.once(ctx, rc, payload, out)
	}

	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := c.once(ctx, rc, payload, out)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// backoff waits attempt*retryBackoff before each retry of an idempotent call.
func (c *Client) backoff() retry.Backoff {
	var attempt int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * c.retryBackoff, false
	})
	return retry.WithMaxRetries(uint64(c.maxAttempts-1), linear)
}

func (c *Client) once(ctx context.Context, rc call, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, rc.method, c.baseURL+"/"+strings.TrimLeft(rc.path, "/"), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rc.token != "" {
		req.Header.Set("Authorization", "Bearer "+rc.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.UpstreamRequestDuration.WithLabelValues(rc.method, rc.endpoint, "error").
			Observe(time.Since(start).Seconds())
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	observability.UpstreamRequestDuration.WithLabelValues(rc.method, rc.endpoint, strconv.Itoa(resp.StatusCode)).
		Observe(time.Since(start).Seconds())

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, respBody)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
