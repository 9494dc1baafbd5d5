// Package transport provides the rate-limited, retrying HTTP execution layer
// shared by every resource adapter. One Client is held per account side.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/orgsync-io/orgsync/internal/logging"
)

// DefaultTimeout is the absolute deadline applied to a single HTTP call.
const DefaultTimeout = 60 * time.Second

// DefaultMaxConnections bounds in-flight requests across all waves and types.
const DefaultMaxConnections = 20

// Config holds the connection settings for one account.
type Config struct {
	APIURL  string
	APIKey  string
	AppKey  string
	Timeout time.Duration
	// MaxConnections is the sustained request rate and burst allowance, shared
	// system-wide across every adapter using this client.
	MaxConnections int
	// Retry overrides the default policy when non-nil. An explicit
	// MaxRetries of 0 disables retries entirely.
	Retry *RetryPolicy
}

// Client executes logical API operations against one account.
type Client struct {
	baseURL string
	apiKey  string
	appKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   RetryPolicy
	timeout time.Duration
	log     *slog.Logger
}

// New builds a Client from config, applying defaults for unset fields.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxConn := cfg.MaxConnections
	if maxConn <= 0 {
		maxConn = DefaultMaxConnections
	}
	retry := DefaultRetryPolicy()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	baseURL := strings.TrimRight(cfg.APIURL, "/")
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		appKey:  cfg.AppKey,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(maxConn), maxConn),
		retry:   retry,
		timeout: timeout,
		log:     logging.With("base_url", baseURL),
	}
}

// Get issues a GET and decodes the response body into out (when non-nil).
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// do executes one logical operation with rate limiting and retry. The request
// body is marshaled once and replayed on each attempt.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request body: %w", op, err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr *Error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindNetwork, Op: op, Err: err}
		}

		resp, err := c.roundTrip(ctx, method, u, payload)
		if err != nil {
			lastErr = &Error{Kind: KindNetwork, Op: op, Err: err}
			if !c.retryAllowed(method, err, nil) {
				return lastErr
			}
			c.sleep(ctx, c.retry.backoff(attempt))
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = &Error{Kind: KindNetwork, Op: op, StatusCode: resp.StatusCode, Err: readErr}
			if !c.retryAllowed(method, readErr, resp) {
				return lastErr
			}
			c.sleep(ctx, c.retry.backoff(attempt))
			continue
		}

		if resp.StatusCode < 300 {
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return &Error{Kind: KindServer, Op: op, StatusCode: resp.StatusCode,
					Err: fmt.Errorf("decode response: %w", err)}
			}
			return nil
		}

		kind := kindForStatus(resp.StatusCode)
		retryAfter := parseRetryAfter(resp)
		lastErr = &Error{
			Kind: kind, Op: op, StatusCode: resp.StatusCode, RetryAfter: retryAfter,
			Err: fmt.Errorf("%s", strings.TrimSpace(truncate(string(data), 256))),
		}
		if !retryableStatus(resp.StatusCode) || !c.retryAllowed(method, nil, resp) {
			return lastErr
		}

		delay := retryAfter
		if delay <= 0 {
			delay = c.retry.backoff(attempt)
		}
		c.log.Debug("retrying request", "op", op, "status", resp.StatusCode,
			"attempt", attempt+1, "delay", delay)
		if !c.sleep(ctx, delay) {
			return &Error{Kind: KindNetwork, Op: op, Err: ctx.Err()}
		}
	}

	lastErr.Err = fmt.Errorf("max retries (%d) exceeded: %w", c.retry.MaxRetries, lastErr.Err)
	return lastErr
}

func (c *Client) roundTrip(ctx context.Context, method, url string, payload []byte) (*http.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("DD-API-KEY", c.apiKey)
	if c.appKey != "" {
		req.Header.Set("DD-APPLICATION-KEY", c.appKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// retryAllowed decides whether another attempt is safe. Idempotent methods
// always are. A create (POST) is retried only when the failure provably
// happened before the server saw the request: an explicit rate-limit
// rejection, or a connection that never got established. Ambiguous timeouts
// and mid-flight resets on a POST are terminal because the server may have
// applied the operation.
func (c *Client) retryAllowed(method string, netErr error, resp *http.Response) bool {
	if method != http.MethodPost {
		return true
	}
	if resp != nil {
		return resp.StatusCode == http.StatusTooManyRequests
	}
	return isPreResponseFailure(netErr)
}

// isPreResponseFailure reports whether a network error is guaranteed to have
// occurred before any request bytes reached the server.
func isPreResponseFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// sleep waits for d or until ctx is done; returns false on cancellation.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
