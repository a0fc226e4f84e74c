// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
client.go - Retrying HTTP client for CAP publishers

Government CAP endpoints fail in bursts: DNS hiccups, connection resets,
intermittent 5xx during their own publication windows. The client retries
transport errors and 5xx responses with exponential backoff; 4xx responses
return immediately so the caller can run its 404 HTML fallback.
*/

package capfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/decibelco/capstream/internal/logging"
)

const (
	// defaultTimeout is the hard per-request timeout. Some publishers take
	// over a minute to render large alert documents.
	defaultTimeout = 120 * time.Second

	// maxRetries is the number of attempts for transport errors and 5xx.
	maxRetries = 3

	// retryBaseDelay doubles per attempt: 1s, 2s, 4s.
	retryBaseDelay = 1 * time.Second

	// maxResponseBytes caps response bodies. CAP documents are small; a
	// misconfigured endpoint streaming gigabytes must not exhaust memory.
	maxResponseBytes = 16 << 20

	userAgent = "capstream/1.0 (+https://github.com/decibelco/capstream)"
)

// HTTPStatusError reports a non-2xx response that exhausted or bypassed retry.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether err is an HTTP 404 status error, the trigger for
// the HTML fallback path.
func IsNotFound(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// Client wraps http.Client with the retry policy shared by index fetches,
// detail fetches, and HTML fallback fetches.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a client with connection pooling and keep-alive. A zero
// timeout selects the 120 s default.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Get fetches the URL with retries and returns the response body.
//
// Retry policy: up to maxRetries attempts with exponential backoff on
// transport errors and 5xx responses. 4xx responses return an
// *HTTPStatusError immediately; the 404 case feeds the HTML fallback.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			logging.Debug().
				Str("url", url).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("retrying request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.doGet(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < 500 {
			// 4xx is definitive; retrying cannot help.
			return nil, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/xml, text/xml, text/html, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return body, nil
}
