package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRateLimitRetries:     3,
		Max5xxRetries:           1,
		RateLimitBaseDelay:      time.Millisecond,
		ServerErrorRetryDelay:   time.Millisecond,
		CircuitBreakerThreshold: 5,
		CircuitBreakerResetTime: 30 * time.Second,
	}
}

func TestClientSendsAuthHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("X-Session-API-Key"))
		assert.Equal(t, "ohc/test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, "secret-key")
	client.UserAgent = "ohc/test"

	var result map[string]any
	err := client.Get(context.Background(), "/conversations", &result)
	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])
}

func TestClientPostSendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, "key")
	err := client.Post(context.Background(), "/conversations/abc/start", map[string]any{"providers_set": []string{"github"}}, nil)
	require.NoError(t, err)
}

func TestClientAPIErrorCarriesStatusAndRequestID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-42")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": "title must not be blank"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, "key")
	err := client.Get(context.Background(), "/conversations", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.StatusCode)
	assert.Equal(t, "title must not be blank", apiErr.Body)
	assert.Equal(t, "req-42", apiErr.RequestID)
}

func TestClientRetriesRateLimitedGet(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, "key")
	client.SetRetryConfig(fastRetryConfig())

	var result map[string]any
	err := client.Get(context.Background(), "/conversations", &result)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientDoesNotRetryRateLimitedPost(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "key")
	client.SetRetryConfig(fastRetryConfig())

	err := client.Post(context.Background(), "/conversations/abc/start", map[string]any{}, nil)
	require.Error(t, err)

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 7*time.Second, rateErr.RetryAfter)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRetriesServerErrorOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, "key")
	client.SetRetryConfig(fastRetryConfig())

	err := client.Get(context.Background(), "/conversations", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientCircuitBreakerOpensAfterThreshold(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "key")
	cfg := fastRetryConfig()
	cfg.Max5xxRetries = 0
	cfg.CircuitBreakerThreshold = 2
	client.SetRetryConfig(cfg)

	ctx := context.Background()
	require.Error(t, client.Post(ctx, "/x", nil, nil))
	require.Error(t, client.Post(ctx, "/x", nil, nil))

	err := client.Post(ctx, "/x", nil, nil)
	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not hit the network")

	client.ResetCircuitBreaker()
	require.Error(t, client.Post(ctx, "/x", nil, nil))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientRejectsInvalidJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>nope</html>`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, "key")
	var result map[string]any
	err := client.Get(context.Background(), "/conversations", &result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected API response format")
}

func TestClientContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(server.URL, "key")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.Get(ctx, "/conversations", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || err != nil)
}

func TestSanitizeErrorBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error": "bad input"}`, "bad input"},
		{"message field", `{"message": "nope"}`, "nope"},
		{"detail string", `{"detail": "conversation not found"}`, "conversation not found"},
		{
			"detail validation list",
			`{"detail": [{"loc": ["body", "title"], "msg": "field required"}]}`,
			"Validation errors:\n  body.title: field required",
		},
		{"non-JSON body redacted", `<html>stack trace with secrets</html>`, "API request failed (response body redacted for security)"},
		{"empty JSON redacted", `{}`, "API request failed (response body redacted for security)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeErrorBody(tt.body))
		})
	}
}

func TestRetryAfterDuration(t *testing.T) {
	h := http.Header{}
	_, ok := retryAfterDuration(h)
	assert.False(t, ok)

	h.Set("Retry-After", "5")
	d, ok := retryAfterDuration(h)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	h.Set("Retry-After", "-3")
	d, ok = retryAfterDuration(h)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d)

	h.Set("Retry-After", "garbage")
	_, ok = retryAfterDuration(h)
	assert.False(t, ok)
}

func TestAPIPathJoinsSlash(t *testing.T) {
	client := newTestClient("https://app.example.com/api", "key")
	assert.Equal(t, "https://app.example.com/api/conversations", client.apiPath("conversations"))
	assert.Equal(t, "https://app.example.com/api/conversations", client.apiPath("/conversations"))
}
