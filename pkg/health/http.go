package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPChecker checks an HTTP endpoint such as the S3 liveness path or a
// tenant webhook's base URL
type HTTPChecker struct {
	url     string
	header  http.Header
	minCode int
	maxCode int
	client  *http.Client
}

// HTTPOption configures an HTTPChecker
type HTTPOption func(*HTTPChecker)

// WithHeader adds a request header, for example a bearer token
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPChecker) { h.header.Set(key, value) }
}

// WithStatusRange sets the accepted status codes, inclusive
func WithStatusRange(lo, hi int) HTTPOption {
	return func(h *HTTPChecker) { h.minCode, h.maxCode = lo, hi }
}

// WithClientTimeout bounds the request independently of the monitor timeout
func WithClientTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPChecker) { h.client.Timeout = d }
}

// NewHTTPChecker creates a GET check accepting 200-399 with a 10s timeout
func NewHTTPChecker(url string, opts ...HTTPOption) *HTTPChecker {
	h := &HTTPChecker{
		url:     url,
		header:  make(http.Header),
		minCode: http.StatusOK,
		maxCode: 399,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Check sends one GET and compares the status code
func (h *HTTPChecker) Check(ctx context.Context) Result {
	return timed(func() (bool, string) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
		if err != nil {
			return false, fmt.Sprintf("invalid request: %v", err)
		}
		req.Header = h.header.Clone()

		resp, err := h.client.Do(req)
		if err != nil {
			return false, fmt.Sprintf("request failed: %v", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

		if resp.StatusCode < h.minCode || resp.StatusCode > h.maxCode {
			return false, fmt.Sprintf("HTTP %d, want %d-%d", resp.StatusCode, h.minCode, h.maxCode)
		}
		return true, fmt.Sprintf("HTTP %d", resp.StatusCode)
	})
}

// Type implements Checker
func (h *HTTPChecker) Type() CheckType { return CheckTypeHTTP }
