// Package httpclient builds the HTTP client scenario calls are submitted
// through.
//
// The client composes transport layers around a pooled http.Transport:
//   - Request logging with sanitized URLs (sensitive params redacted)
//   - User-Agent header injection
//   - W3C trace context propagation when a span is active
//   - Optional client-side rate limiting
//   - Optional retries with exponential backoff and jitter
//
// Retries are off by default. A scenario call is a single attempt so that
// a flaky endpoint surfaces as a failing scenario; enable RetryAttempts
// only for environments known to shed load with 429 or 503.
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.RequestsPerSecond = 20
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
//
// # Retry Behavior
//
// When enabled:
//   - Retries HTTP 5xx, 408 and 429 (with Retry-After support)
//   - Retries transient network errors
//   - Only retries GET, HEAD and OPTIONS unless AllowNonIdempotentRetry is set
package httpclient
