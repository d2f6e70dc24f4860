package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openhands/ohc/internal/debug"
	"github.com/openhands/ohc/internal/validation"
)

// DefaultTimeout bounds individual HTTP requests. Workspace archive
// downloads get a longer budget via DownloadTimeout.
const (
	DefaultTimeout  = 30 * time.Second
	DownloadTimeout = 5 * time.Minute
)

// Client talks to an OpenHands server. Base-API requests authenticate with
// the long-lived API key; runtime requests (workspace.go) authenticate with
// the per-conversation session key, both via the X-Session-API-Key header.
//
// The client includes a circuit breaker that tracks server failures across
// requests. Use ResetCircuitBreaker() when reusing a client across logical
// sessions so stale failure state does not reject fresh requests.
type Client struct {
	BaseURL           string // normalized to end in /api
	APIKey            string
	HTTP              *http.Client
	UserAgent         string
	RetryConfig       RetryConfig
	skipURLValidation bool // tests only
	circuitBreaker    *circuitBreaker
	validatedBaseURL  bool
	validateMu        sync.Mutex
	rateLimitMu       sync.Mutex
	lastRateLimit     *RateLimitInfo
}

var (
	_ Requester    = (*Client)(nil)
	_ PathResolver = (*Client)(nil)
	_ HTTPExecutor = (*Client)(nil)
)

var validateServerURL = validation.ValidateServerURL

// New creates a client for the given server base URL and API key.
func New(baseURL, apiKey string) *Client {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	transport := baseTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12
	transport.TLSClientConfig.InsecureSkipVerify = false

	// Allow localhost URLs when OHC_TESTING=1 is set (for integration tests)
	skipValidation := os.Getenv("OHC_TESTING") == "1"

	retryCfg := DefaultRetryConfig()
	return &Client{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		APIKey:            apiKey,
		RetryConfig:       retryCfg,
		skipURLValidation: skipValidation,
		HTTP: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
		circuitBreaker: &circuitBreaker{
			threshold: retryCfg.CircuitBreakerThreshold,
			resetTime: retryCfg.CircuitBreakerResetTime,
		},
	}
}

// newTestClient creates a client with URL validation disabled for testing
func newTestClient(baseURL, apiKey string) *Client {
	c := New(baseURL, apiKey)
	c.skipURLValidation = true
	return c
}

// ResetCircuitBreaker clears circuit breaker state, resetting failure
// counts and closing the circuit.
func (c *Client) ResetCircuitBreaker() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.reset()
	}
}

// SetRetryConfig updates the retry configuration and aligns circuit breaker settings.
func (c *Client) SetRetryConfig(cfg RetryConfig) {
	c.RetryConfig = cfg
	if c.circuitBreaker != nil {
		c.circuitBreaker.threshold = cfg.CircuitBreakerThreshold
		c.circuitBreaker.resetTime = cfg.CircuitBreakerResetTime
	}
}

func (c *Client) ensureBaseURLValidated() error {
	if c.skipURLValidation {
		return nil
	}

	c.validateMu.Lock()
	defer c.validateMu.Unlock()

	if c.validatedBaseURL {
		return nil
	}

	if err := validateServerURL(c.BaseURL); err != nil {
		return fmt.Errorf("URL validation failed: %w", err)
	}

	c.validatedBaseURL = true
	return nil
}

// apiPath joins a path onto the server base URL.
func (c *Client) apiPath(path string) string {
	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	return c.BaseURL + path
}

// do performs a base-API request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, url string, body any, result any) error {
	respBody, _, _, err := c.executeRequest(ctx, method, url, body, "")
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unexpected API response format (JSON decode failed): %w", err)
		}
	}
	return nil
}

// doRaw performs a base-API request and returns the raw response body.
func (c *Client) doRaw(ctx context.Context, method, url string, body any) ([]byte, error) {
	respBody, _, _, err := c.executeRequest(ctx, method, url, body, "")
	return respBody, err
}

// doRuntime performs a request against a runtime endpoint, authenticating
// with the conversation's session key instead of the client API key.
func (c *Client) doRuntime(ctx context.Context, method, url, sessionKey string, result any) error {
	respBody, _, _, err := c.executeRequest(ctx, method, url, nil, sessionKey)
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unexpected runtime response format (JSON decode failed): %w", err)
		}
	}
	return nil
}

// doRuntimeRaw performs a runtime request and returns the raw response
// body. Raw payloads (workspace archives, trajectories) can be large, so
// this path runs with the DownloadTimeout budget instead of the default
// request timeout.
func (c *Client) doRuntimeRaw(ctx context.Context, method, url, sessionKey string) ([]byte, error) {
	respBody, _, _, err := c.executeRequestWith(ctx, c.downloadHTTP(), method, url, nil, sessionKey)
	return respBody, err
}

// downloadHTTP returns a client sharing the transport but with the
// extended download timeout.
func (c *Client) downloadHTTP() *http.Client {
	dl := *c.HTTP
	dl.Timeout = DownloadTimeout
	return &dl
}

// executeRequest is the internal helper behind do/doRaw and the runtime
// variants. It marshals the body, runs the retry loop, and returns the
// response body, headers, status code, and any error. sessionKey overrides
// the client API key when non-empty.
func (c *Client) executeRequest(ctx context.Context, method, url string, body any, sessionKey string) ([]byte, http.Header, int, error) {
	return c.executeRequestWith(ctx, c.HTTP, method, url, body, sessionKey)
}

// executeRequestWith is executeRequest with an explicit HTTP client, so
// downloads can run under a longer timeout than regular requests.
func (c *Client) executeRequestWith(ctx context.Context, httpClient *http.Client, method, url string, body any, sessionKey string) ([]byte, http.Header, int, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	// Check circuit breaker at start
	if c.circuitBreaker != nil && c.circuitBreaker.isOpen() {
		return nil, nil, 0, &CircuitBreakerError{}
	}

	// Validate BaseURL at request time to prevent DNS rebinding attacks.
	// Skip validation in tests to allow httptest.Server localhost URLs.
	// Runtime URLs come from authenticated API responses and are not
	// re-validated here.
	if sessionKey == "" {
		if err := c.ensureBaseURLValidated(); err != nil {
			return nil, nil, 0, err
		}
	}

	isIdempotent := method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions

	var retries429, retries5xx int
	attempt := 0

	for {
		attempt++
		start := time.Now()
		// Fresh body reader for each attempt
		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to create request: %w", err)
		}

		key := c.APIKey
		if sessionKey != "" {
			key = sessionKey
		}
		if key != "" {
			req.Header.Set("X-Session-API-Key", key)
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			if debug.IsEnabled(ctx) {
				slog.Debug("request failed", "method", method, "url", url, "attempt", attempt, "error", err)
			}
			return nil, nil, 0, fmt.Errorf("request failed: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to read response: %w", err)
		}
		c.recordRateLimit(resp.Header)
		if debug.IsEnabled(ctx) {
			slog.Debug("request complete", "method", method, "url", url, "status", resp.StatusCode, "attempt", attempt, "duration", time.Since(start))
		}

		// Handle 429 rate limiting with exponential backoff (idempotent only)
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter, hasRetryAfter := retryAfterDuration(resp.Header)
			baseDelay := c.RetryConfig.RateLimitBaseDelay
			if !isIdempotent || retries429 >= c.RetryConfig.MaxRateLimitRetries {
				if hasRetryAfter {
					return nil, nil, resp.StatusCode, &RateLimitError{RetryAfter: retryAfter}
				}
				return nil, nil, resp.StatusCode, &RateLimitError{RetryAfter: baseDelay}
			}
			delay := retryAfter
			if !hasRetryAfter {
				delay = baseDelay * time.Duration(1<<retries429)
			}
			slog.Info("rate limited, retrying", "delay", delay, "attempt", retries429+1)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, nil, 0, err
			}
			retries429++
			continue
		}

		// Handle 5xx server errors
		if resp.StatusCode >= 500 {
			if c.circuitBreaker != nil {
				c.circuitBreaker.recordFailure()
			}
			if isIdempotent && retries5xx < c.RetryConfig.Max5xxRetries {
				slog.Info("server error, retrying", "status", resp.StatusCode)
				if err := sleepWithContext(ctx, c.RetryConfig.ServerErrorRetryDelay); err != nil {
					return nil, nil, 0, err
				}
				retries5xx++
				continue
			}
		}

		// Other 4xx/5xx - return body and headers for the caller to map
		if resp.StatusCode >= 400 {
			return respBody, resp.Header, resp.StatusCode, &APIError{
				StatusCode: resp.StatusCode,
				Body:       sanitizeErrorBody(string(respBody)),
				RequestID:  requestIDFromHeader(resp.Header),
			}
		}

		// Success (2xx) - record to circuit breaker
		if resp.StatusCode >= 200 && resp.StatusCode < 300 && c.circuitBreaker != nil {
			c.circuitBreaker.recordSuccess()
		}

		return respBody, resp.Header, resp.StatusCode, nil
	}
}

// Get performs a GET request against the base API.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, c.apiPath(path), nil, result)
}

// Post performs a POST request against the base API.
func (c *Client) Post(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPost, c.apiPath(path), body, result)
}

// GetRaw performs a GET request and returns the raw response body.
func (c *Client) GetRaw(ctx context.Context, path string) ([]byte, error) {
	return c.doRaw(ctx, http.MethodGet, c.apiPath(path), nil)
}

func requestIDFromHeader(header http.Header) string {
	if header == nil {
		return ""
	}
	if id := header.Get("X-Request-Id"); id != "" {
		return id
	}
	if id := header.Get("X-Request-ID"); id != "" {
		return id
	}
	return ""
}

// sanitizeErrorBody extracts a safe error message from an API response
// without exposing potentially sensitive data like tokens or user info.
func sanitizeErrorBody(body string) string {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  any    `json:"detail"` // FastAPI-style: string or validation list
	}
	if err := json.Unmarshal([]byte(body), &errResp); err != nil {
		return "API request failed (response body redacted for security)"
	}

	switch {
	case errResp.Error != "":
		return errResp.Error
	case errResp.Message != "":
		return errResp.Message
	}

	switch detail := errResp.Detail.(type) {
	case string:
		if detail != "" {
			return detail
		}
	case []any:
		if msg := formatDetailList(detail); msg != "" {
			return msg
		}
	}

	return "API request failed (response body redacted for security)"
}

// formatDetailList flattens a FastAPI validation detail list
// ([{"loc": [...], "msg": "..."}]) into readable lines.
func formatDetailList(items []any) string {
	var lines []string
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		msg, _ := m["msg"].(string)
		if msg == "" {
			continue
		}
		if loc, ok := m["loc"].([]any); ok && len(loc) > 0 {
			parts := make([]string, 0, len(loc))
			for _, l := range loc {
				parts = append(parts, fmt.Sprint(l))
			}
			lines = append(lines, fmt.Sprintf("  %s: %s", strings.Join(parts, "."), msg))
			continue
		}
		lines = append(lines, "  "+msg)
	}
	if len(lines) == 0 {
		return ""
	}
	return "Validation errors:\n" + strings.Join(lines, "\n")
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}
