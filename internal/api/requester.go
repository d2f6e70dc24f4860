package api

import "context"

// PathResolver builds full URLs for base-API endpoints. Abstracting it
// keeps services testable without a configured client.
type PathResolver interface {
	// apiPath returns the full URL for a base-API endpoint.
	// Example: apiPath("/conversations") -> "https://host/api/conversations"
	apiPath(path string) string
}

// HTTPExecutor executes HTTP requests. Base-API requests use the client's
// API key; the runtime variants take the per-conversation session key and
// an absolute runtime URL.
type HTTPExecutor interface {
	// do executes a base-API request with JSON body and response decoding.
	do(ctx context.Context, method, url string, body any, result any) error

	// doRaw executes a base-API request and returns the raw response bytes.
	doRaw(ctx context.Context, method, url string, body any) ([]byte, error)

	// doRuntime executes a runtime request authenticated with sessionKey.
	doRuntime(ctx context.Context, method, url, sessionKey string, result any) error

	// doRuntimeRaw is doRuntime returning the raw response bytes,
	// for binary payloads like workspace archives.
	doRuntimeRaw(ctx context.Context, method, url, sessionKey string) ([]byte, error)
}

// Requester combines PathResolver and HTTPExecutor, the full request
// surface the conversation and workspace services depend on.
type Requester interface {
	PathResolver
	HTTPExecutor
}
