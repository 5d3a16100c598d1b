// Package remote holds the JSON-over-HTTP plumbing shared by the hosted
// embedding backends: retries with exponential backoff, Retry-After support
// and optional client-side rate limiting.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Client posts JSON payloads and retries transient failures.
type Client struct {
	http       *http.Client
	headers    map[string]string
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// Config configures a Client.
type Config struct {
	Timeout time.Duration
	// RequestsPerSecond limits outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
	MaxRetries        int
	Headers           map[string]string
	// BaseDelay is the first backoff step; it doubles per attempt up to 5s.
	BaseDelay time.Duration
}

// StatusError is returned when the server answers with a non-retryable status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	c := &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		headers:    cfg.Headers,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// PostJSON sends body to url and decodes the JSON response into out.
// 429 and 5xx responses, transport errors and undecodable bodies are retried.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.retryDelay(attempt-1, lastErr)); err != nil {
				return err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &retryAfterError{
				StatusError: StatusError{Code: resp.StatusCode, Body: string(payload)},
				after:       parseRetryAfter(resp.Header.Get("Retry-After")),
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return &StatusError{Code: resp.StatusCode, Body: string(payload)}
		}
		if err := json.Unmarshal(payload, out); err != nil {
			lastErr = fmt.Errorf("decode response: %w", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

type retryAfterError struct {
	StatusError
	after time.Duration
}

func (c *Client) retryDelay(attempt int, lastErr error) time.Duration {
	if ra, ok := lastErr.(*retryAfterError); ok && ra.after > 0 {
		return ra.after
	}
	// exponential backoff capped at 5s
	d := c.baseDelay << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
