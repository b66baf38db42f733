package httpclient

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// retryTransport retries transient failures with exponential backoff.
type retryTransport struct {
	base                    http.RoundTripper
	maxAttempts             int
	baseBackoff             time.Duration
	maxBackoff              time.Duration
	allowNonIdempotentRetry bool
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &retryTransport{
		base:                    base,
		maxAttempts:             cfg.RetryAttempts + 1,
		baseBackoff:             cfg.RetryBackoff,
		maxBackoff:              cfg.MaxBackoff,
		allowNonIdempotentRetry: cfg.AllowNonIdempotentRetry,
	}
}

// RoundTrip sends req up to maxAttempts times. Only transient failures
// are retried; the final response is returned unread once attempts run
// out so the caller still sees the status the target answered with.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.replayable(req) {
		return t.base.RoundTrip(req)
	}

	var resp *http.Response
	var err error
	for attempt := 1; ; attempt++ {
		resp, err = t.base.RoundTrip(req)
		if !transient(resp, err) || attempt >= t.maxAttempts {
			return resp, err
		}

		delay := t.calculateBackoff(attempt)
		if resp != nil {
			if after := parseRetryAfter(resp); after > 0 && after < delay {
				delay = after
			}
			if resp.Body != nil {
				resp.Body.Close()
			}
		}
		if werr := sleepCtx(req.Context(), delay); werr != nil {
			return nil, werr
		}
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, berr
			}
			req.Body = body
		}
	}
}

// replayable reports whether req may be sent more than once. Bodies can
// only be replayed through GetBody.
func (t *retryTransport) replayable(req *http.Request) bool {
	if t.maxAttempts <= 1 {
		return false
	}
	if !t.allowNonIdempotentRetry && !isIdempotentMethod(req.Method) {
		return false
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isIdempotentMethod reports whether a method is safe to auto-retry.
// PUT and DELETE are excluded since targets don't reliably honour their
// idempotency.
func isIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func transient(resp *http.Response, err error) bool {
	if err != nil {
		return isRetryableError(err)
	}
	return shouldRetryStatus(resp.StatusCode)
}

func shouldRetryStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

var transientNetErrors = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network unreachable",
	"temporary failure in name resolution",
	"eof",
}

func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return isRetryableError(urlErr.Err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range transientNetErrors {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// calculateBackoff returns baseBackoff * 2^(attempt-1), capped at
// maxBackoff, plus up to 20% jitter.
func (t *retryTransport) calculateBackoff(attempt int) time.Duration {
	backoff := float64(t.baseBackoff) * math.Pow(2.0, float64(attempt-1))
	if backoff > float64(t.maxBackoff) {
		backoff = float64(t.maxBackoff)
	}

	jitter := rand.Float64() * backoff * 0.2
	return time.Duration(backoff + jitter)
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date.
// Returns 0 if the header is missing or invalid.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(header); err == nil {
		if delay := time.Until(retryTime); delay > 0 {
			return delay
		}
	}

	return 0
}
