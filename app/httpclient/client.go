// Package httpclient implements the rate-limited fetch discipline shared by
// every stage that touches the network.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const requestTimeout = 30 * time.Second

type Client struct {
	httpClient  *http.Client
	gate        Gate
	userAgent   string
	maxRetries  int
	backoffBase time.Duration
}

func New(gate Gate, userAgent string, maxRetries int) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		gate:        gate,
		userAgent:   userAgent,
		maxRetries:  maxRetries,
		backoffBase: 2 * time.Second,
	}
}

// Fetch retrieves rawURL, honoring the pacing gate and the retry policy.
// 429 and 5xx responses are retried with exponential backoff and jitter,
// preferring a server-supplied Retry-After duration when it is longer.
// 404 and other non-retryable 4xx responses fail immediately.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, int, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, 0, &FetchError{Kind: KindPermanent, URL: rawURL, Err: fmt.Errorf("malformed URL: %v", err)}
	}

	lastStatus := 0

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.gate.Wait(ctx, parsed.Host); err != nil {
			return nil, 0, &FetchError{Kind: KindTransient, URL: rawURL, Err: err}
		}

		body, status, header, err := c.doRequest(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, &FetchError{Kind: KindTransient, URL: rawURL, Err: ctx.Err()}
			}
			// Transport errors and timeouts are transient.
			slog.Debug("Request failed, retrying", "url", rawURL, "attempt", attempt+1, "error", err)
			if waitErr := c.sleep(ctx, c.backoff(attempt, 0)); waitErr != nil {
				return nil, 0, &FetchError{Kind: KindTransient, URL: rawURL, Err: waitErr}
			}
			continue
		}

		lastStatus = status

		switch {
		case status == http.StatusOK:
			return body, status, nil

		case status == http.StatusTooManyRequests || status >= 500:
			retryAfter := parseRetryAfter(header.Get("Retry-After"))
			slog.Debug("Retryable HTTP status", "url", rawURL, "status", status, "attempt", attempt+1, "retry_after", retryAfter)
			if waitErr := c.sleep(ctx, c.backoff(attempt, retryAfter)); waitErr != nil {
				return nil, status, &FetchError{Kind: KindTransient, URL: rawURL, LastStatus: status, Err: waitErr}
			}
			continue

		case status == http.StatusNotFound:
			return nil, status, &FetchError{Kind: KindNotFound, URL: rawURL, LastStatus: status}

		default:
			return nil, status, &FetchError{Kind: KindPermanent, URL: rawURL, LastStatus: status}
		}
	}

	return nil, lastStatus, &FetchError{Kind: KindExhausted, URL: rawURL, LastStatus: lastStatus}
}

func (c *Client) doRequest(ctx context.Context, rawURL string) ([]byte, int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, resp.Header, nil
}

// backoff computes the wait before the next attempt: exponential in the
// attempt number, overridden by a longer server-supplied Retry-After, plus
// up to one second of jitter.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	wait := c.backoffBase * (1 << uint(attempt))
	if retryAfter > wait {
		wait = retryAfter
	}
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return wait + jitter
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter handles both the delay-seconds and the HTTP-date forms.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
