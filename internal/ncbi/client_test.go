package ncbi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient()
	if c.BaseURL != DefaultBaseURL {
		t.Errorf("expected base URL %q, got %q", DefaultBaseURL, c.BaseURL)
	}
	if c.Tool != DefaultTool {
		t.Errorf("expected tool %q, got %q", DefaultTool, c.Tool)
	}
	if c.Email != DefaultEmail {
		t.Errorf("expected email %q, got %q", DefaultEmail, c.Email)
	}
	if c.MaxBytes != DefaultMaxResponseBytes {
		t.Errorf("expected max bytes %d, got %d", DefaultMaxResponseBytes, c.MaxBytes)
	}
	if c.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected max retries %d, got %d", DefaultMaxRetries, c.MaxRetries)
	}
	if c.Limiter == nil {
		t.Error("expected non-nil limiter")
	}
}

func TestNewClient_WithOptions(t *testing.T) {
	c := NewClient(
		WithBaseURL("http://localhost:9999"),
		WithAPIKey("test-key-123"),
		WithTool("my-tool"),
		WithEmail("test@example.com"),
		WithMaxResponseBytes(1024),
		WithMaxRetries(5),
	)
	if c.BaseURL != "http://localhost:9999" {
		t.Errorf("expected base URL %q, got %q", "http://localhost:9999", c.BaseURL)
	}
	if c.APIKey != "test-key-123" {
		t.Errorf("expected API key %q, got %q", "test-key-123", c.APIKey)
	}
	if c.Tool != "my-tool" {
		t.Errorf("expected tool %q, got %q", "my-tool", c.Tool)
	}
	if c.Email != "test@example.com" {
		t.Errorf("expected email %q, got %q", "test@example.com", c.Email)
	}
	if c.MaxBytes != 1024 {
		t.Errorf("expected max bytes 1024, got %d", c.MaxBytes)
	}
	if c.MaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", c.MaxRetries)
	}
}

func TestGet_CommonParams(t *testing.T) {
	var receivedParams map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedParams = make(map[string]string)
		for k, v := range r.URL.Query() {
			receivedParams[k] = v[0]
		}
		w.Write([]byte(`OK`))
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithAPIKey("my-api-key"),
		WithTool("publication-curator"),
		WithEmail("user@example.com"),
	)

	_, err := c.Get(context.Background(), "test.fcgi", url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedParams["api_key"] != "my-api-key" {
		t.Errorf("expected api_key %q, got %q", "my-api-key", receivedParams["api_key"])
	}
	if receivedParams["tool"] != "publication-curator" {
		t.Errorf("expected tool %q, got %q", "publication-curator", receivedParams["tool"])
	}
	if receivedParams["email"] != "user@example.com" {
		t.Errorf("expected email %q, got %q", "user@example.com", receivedParams["email"])
	}
}

func TestGet_RetryOn429_HonorsRetryAfter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping retry timing test in short mode")
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`OK`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxRetries(2))

	start := time.Now()
	body, err := c.Get(context.Background(), "test.fcgi", url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "OK" {
		t.Errorf("expected body OK, got %q", body)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("Retry-After not honored: succeeded after %v", elapsed)
	}
}

func TestGet_RetryOn5xx(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping retry timing test in short mode")
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`OK`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxRetries(2))

	if _, err := c.Get(context.Background(), "test.fcgi", url.Values{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestGet_NonRetryable4xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxRetries(3))

	_, err := c.Get(context.Background(), "test.fcgi", url.Values{})
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
	if errors.Is(err, ErrSourceUnavailable) {
		t.Error("4xx should not be classified as source-unavailable")
	}
	if calls != 1 {
		t.Errorf("expected no retries for 400, got %d calls", calls)
	}
}

func TestGet_ExhaustedRetriesWrapsSourceUnavailable(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxRetries(1))

	_, err := c.Get(context.Background(), "test.fcgi", url.Values{})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt with budget 1, got %d", calls)
	}
}

func TestGet_ThreeConsecutive429sExhaustBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping retry timing test in short mode")
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	// The budget counts total attempts: three 429s in a row spend it.
	c := NewClient(WithBaseURL(srv.URL), WithMaxRetries(3))

	_, err := c.Get(context.Background(), "test.fcgi", url.Values{})
	if err == nil {
		t.Fatal("expected error after three consecutive 429s")
	}
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 requests with budget 3, got %d", calls)
	}
}

func TestGet_ResponseSizeGuard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxResponseBytes(1024))

	_, err := c.Get(context.Background(), "test.fcgi", url.Values{})
	if err == nil {
		t.Fatal("expected error for oversized response")
	}
	if !strings.Contains(err.Error(), "maximum size") {
		t.Errorf("expected size guard error, got %v", err)
	}
}
