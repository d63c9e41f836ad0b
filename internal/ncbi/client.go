// Package ncbi provides a shared rate-limited HTTP client for NCBI
// E-utilities. The PMC source client builds on it for search and fetch
// requests, sharing one limiter, common request parameters, and response
// size guards.
package ncbi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the NCBI E-utilities base URL.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	// DefaultTool identifies this application to NCBI.
	DefaultTool = "publication-curator"
	// DefaultEmail is the contact email sent to NCBI.
	DefaultEmail = "curator@devicepubs.example.org"

	// Rate limits per NCBI policy.
	RateWithoutKey = 3  // requests per second without API key
	RateWithKey    = 10 // requests per second with API key

	// DefaultMaxResponseBytes is the maximum response body size (50 MB).
	DefaultMaxResponseBytes int64 = 50 * 1024 * 1024

	// Retry policy for transient failures (429, 5xx, network). The budget
	// counts total request attempts, so 3 means two retries after the
	// first failure.
	DefaultMaxRetries = 3
	baseRetryWait     = 1 * time.Second
	maxRetryWait      = 10 * time.Second
)

// ErrSourceUnavailable is returned once the retry budget for a request is
// exhausted. Callers treat the affected batch as empty and keep going; it is
// not a run-fatal condition.
var ErrSourceUnavailable = errors.New("bibliographic source unavailable")

// Client is a rate-limited HTTP client for NCBI E-utilities with common
// parameter injection, retry with backoff, and response size guards.
type Client struct {
	BaseURL    string
	APIKey     string
	Tool       string
	Email      string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	MaxBytes   int64
	MaxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for requests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.BaseURL = u }
}

// WithAPIKey sets the NCBI API key and adjusts the rate limit accordingly.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.APIKey = key
		if key != "" {
			c.Limiter = rate.NewLimiter(rate.Limit(RateWithKey), 1)
		}
	}
}

// WithTool sets the tool parameter for NCBI requests.
func WithTool(tool string) Option {
	return func(c *Client) { c.Tool = tool }
}

// WithEmail sets the email parameter for NCBI requests.
func WithEmail(email string) Option {
	return func(c *Client) { c.Email = email }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithMaxResponseBytes sets the maximum allowed response body size.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) { c.MaxBytes = n }
}

// WithMaxRetries sets the total attempt budget for transient failures.
// Values below 1 mean a single attempt with no retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.MaxRetries = n }
}

// NewClient creates a new NCBI client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		BaseURL:    DefaultBaseURL,
		Tool:       DefaultTool,
		Email:      DefaultEmail,
		MaxBytes:   DefaultMaxResponseBytes,
		MaxRetries: DefaultMaxRetries,
		Limiter:    rate.NewLimiter(rate.Limit(RateWithoutKey), 1),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a rate-limited GET with common NCBI parameters, retrying
// transient failures. Retry behavior by class:
//
//   - 429: honor Retry-After when present, else exponential backoff.
//   - 5xx and network errors: exponential backoff.
//   - Any other 4xx: fail immediately, not retryable.
//
// After the retry budget is spent the error wraps ErrSourceUnavailable.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.APIKey != "" {
		params.Set("api_key", c.APIKey)
	}
	if c.Tool != "" {
		params.Set("tool", c.Tool)
	}
	if c.Email != "" {
		params.Set("email", c.Email)
	}

	u, err := url.JoinPath(c.BaseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}
	fullURL := u + "?" + params.Encode()

	attempts := c.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, c.retryWait(attempt, lastErr)); err != nil {
				return nil, fmt.Errorf("retry wait canceled: %w", err)
			}
		}

		// Wait for a rate limiter token (respects context cancellation).
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("executing request: %w", err)
			}
			lastErr = &transientError{err: err}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return c.readBody(resp)

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfterDuration(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			lastErr = &transientError{
				err:        fmt.Errorf("HTTP 429 for %s", endpoint),
				retryAfter: wait,
			}

		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &transientError{err: fmt.Errorf("HTTP %d for %s", resp.StatusCode, endpoint)}

		default:
			resp.Body.Close()
			return nil, fmt.Errorf("NCBI returned HTTP %d for %s", resp.StatusCode, endpoint)
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrSourceUnavailable, endpoint, attempts, lastErr)
}

// retryWait determines how long to sleep before the given attempt (1-based).
// A server-provided Retry-After wins over computed backoff.
func (c *Client) retryWait(attempt int, lastErr error) time.Duration {
	var te *transientError
	if errors.As(lastErr, &te) && te.retryAfter > 0 {
		return te.retryAfter
	}
	wait := baseRetryWait * time.Duration(1<<(attempt-1))
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	return wait
}

// readBody reads up to MaxBytes+1 so oversized responses are detected rather
// than silently truncated.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	r := io.LimitReader(resp.Body, c.MaxBytes+1)
	body, err := io.ReadAll(r)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > c.MaxBytes {
		return nil, fmt.Errorf("response exceeds maximum size of %d bytes", c.MaxBytes)
	}
	return body, nil
}

// transientError marks a failure as retryable and optionally carries a
// server-requested wait.
type transientError struct {
	err        error
	retryAfter time.Duration
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func retryAfterDuration(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
