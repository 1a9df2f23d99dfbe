package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls the single retry DoWithRetry may perform.
type RetryPolicy struct {
	// RetryNetErr retries once when the request fails before any response arrives.
	RetryNetErr bool
	// Retry429 waits Retry-After (capped at Max429Wait) and retries once.
	Retry429   bool
	Max429Wait time.Duration
	// Retry5xx waits Backoff5xx and retries once.
	Retry5xx   bool
	Backoff5xx time.Duration
}

// DefaultRetryPolicy retries connection errors and 429, leaves 5xx alone.
var DefaultRetryPolicy = RetryPolicy{
	RetryNetErr: true,
	Retry429:    true,
	Max429Wait:  10 * time.Second,
	Backoff5xx:  time.Second,
}

// DoWithRetry performs a bodiless request built by newReq and retries at most once per policy.
// 4xx other than 429 are returned as-is. Caller closes resp.Body when err == nil.
func DoWithRetry(ctx context.Context, client *http.Client, newReq func(context.Context) (*http.Request, error), policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	req, err := newReq(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	var wait time.Duration
	switch {
	case err != nil:
		if !policy.RetryNetErr || ctx.Err() != nil {
			return nil, err
		}
	case resp.StatusCode == http.StatusTooManyRequests && policy.Retry429:
		wait = parseRetryAfter(resp.Header.Get("Retry-After"), policy.Max429Wait)
		drain(resp)
	case resp.StatusCode >= 500 && policy.Retry5xx:
		wait = policy.Backoff5xx
		drain(resp)
	default:
		return resp, nil
	}
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	req2, err := newReq(ctx)
	if err != nil {
		return nil, err
	}
	return client.Do(req2)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date); returns duration capped at max.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		return min(time.Duration(sec)*time.Second, max)
	}
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return time.Second
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	return min(until, max)
}
