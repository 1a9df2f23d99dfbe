// Package provider talks to the non-Stalker side of a subscription: reachability of portal hosts
// and the Xtream Codes panel that often sits behind them.
package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapetech/stalkerkit/internal/httpclient"
)

// Result is the outcome of probing one portal bootstrap URL.
type Result struct {
	URL         string `json:"url"`
	Status      Status `json:"status"`
	StatusCode  int    `json:"status_code,omitempty"`
	LatencyMs   int64  `json:"latency_ms"`
	BodyPreview string `json:"-"` // first 512 bytes, lower-cased, kept for Cloudflare pages
}

type Status string

const (
	StatusOK         Status = "ok"
	StatusCloudflare Status = "cloudflare"
	StatusBadStatus  Status = "bad_status"
	StatusTimeout    Status = "timeout"
	StatusError      Status = "error"
)

// mag250UA is what a set-top box sends; some portals 403 anything else on /c/.
const mag250UA = "Mozilla/5.0 (QtEmbedded; U; Linux; C) AppleWebKit/533.3 (KHTML, like Gecko) MAG250 stbapp ver: 2 rev: 369 Safari/533.3"

// ProbeOne GETs u (normally host + /c/) and classifies the answer. Redirects are followed, so
// a /c/ that moved to /stalker_portal/c/ still counts as ok.
func ProbeOne(ctx context.Context, u string, client *http.Client) Result {
	if client == nil {
		client = httpclient.WithTimeout(15 * time.Second)
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Result{URL: u, Status: StatusError, LatencyMs: time.Since(start).Milliseconds()}
	}
	req.Header.Set("User-Agent", mag250UA)
	resp, err := client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if isTimeout(err) {
			return Result{URL: u, Status: StatusTimeout, LatencyMs: latency}
		}
		return Result{URL: u, Status: StatusError, LatencyMs: latency}
	}
	defer resp.Body.Close()
	preview := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, preview)
	previewStr := strings.ToLower(string(preview[:n]))
	code := resp.StatusCode

	// Only call it Cloudflare when the Server header says so or the body is a challenge page;
	// plenty of portals mention cloudflare in ordinary error pages.
	server := strings.ToLower(strings.TrimSpace(resp.Header.Get("Server")))
	isCFServer := server == "cloudflare" || resp.Header.Get("CF-RAY") != ""
	challenge := strings.Contains(previewStr, "checking your browser") ||
		strings.Contains(previewStr, "cf-bypass") ||
		strings.Contains(previewStr, "ray id")
	switch code {
	case 403, 503, 520, 521, 524:
		if challenge || isCFServer {
			return Result{URL: u, Status: StatusCloudflare, StatusCode: code, LatencyMs: latency, BodyPreview: previewStr}
		}
	}
	if isCFServer && code != http.StatusOK {
		return Result{URL: u, Status: StatusCloudflare, StatusCode: code, LatencyMs: latency}
	}
	if code != http.StatusOK {
		return Result{URL: u, Status: StatusBadStatus, StatusCode: code, LatencyMs: latency}
	}
	return Result{URL: u, Status: StatusOK, StatusCode: code, LatencyMs: latency}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}

// ProbeAll probes every URL with at most workers in flight and returns the results ranked: ok
// first by latency, then the rest by URL. Empty URLs are skipped.
func ProbeAll(ctx context.Context, urls []string, client *http.Client, workers int) []Result {
	if workers < 1 {
		workers = 1
	}
	targets := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			targets = append(targets, u)
		}
	}
	out := make([]Result, len(targets))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, u := range targets {
		g.Go(func() error {
			out[i] = ProbeOne(ctx, u, client)
			return nil
		})
	}
	_ = g.Wait()
	sort.SliceStable(out, func(i, j int) bool {
		okI := out[i].Status == StatusOK
		okJ := out[j].Status == StatusOK
		if okI != okJ {
			return okI
		}
		if okI {
			return out[i].LatencyMs < out[j].LatencyMs
		}
		return out[i].URL < out[j].URL
	})
	return out
}
