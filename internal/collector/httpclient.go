package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 5 << 20 // 5MB, feeds larger than this are truncated and fail to parse

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// HTTPClient issues paced GET requests, each under its own timeout. One
// instance is shared by every outbound call of a run so the pacing delay
// holds across sources and queries.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	limiter   *rate.Limiter
}

func NewHTTPClient(timeout, pacing time.Duration, userAgent string) *HTTPClient {
	limit := rate.Inf
	if pacing > 0 {
		limit = rate.Every(pacing)
	}
	return &HTTPClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		timeout:   timeout,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the pacing limiter grants the next request.
func (c *HTTPClient) Wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait: %w", err)
	}
	return nil
}

// Get fetches url and returns the body of a 2xx response.
func (c *HTTPClient) Get(ctx context.Context, url, accept string) ([]byte, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}
