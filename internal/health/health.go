// Package health answers "can we reach it" for portal hosts and for our own API.
package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/snapetech/stalkerkit/internal/httpclient"
	"github.com/snapetech/stalkerkit/internal/provider"
)

// Report is the reachability of a set of portal hosts.
type Report struct {
	Checked time.Time         `json:"checked"`
	Results []provider.Result `json:"results"`
	Counts  map[string]int    `json:"counts"`
}

// OK reports whether every host answered 200.
func (r Report) OK() bool {
	return len(r.Results) > 0 && r.Counts[string(provider.StatusOK)] == len(r.Results)
}

// BootstrapURL maps a playlist host to the page a set-top box loads first.
func BootstrapURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return ""
	}
	if strings.HasSuffix(host, "/c") {
		return host + "/"
	}
	return host + "/c/"
}

// CheckPortals probes the bootstrap page of every host (duplicates collapsed).
func CheckPortals(ctx context.Context, hosts []string, client *http.Client, workers int) Report {
	seen := make(map[string]bool, len(hosts))
	var urls []string
	for _, h := range hosts {
		u := BootstrapURL(h)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	rep := Report{
		Checked: time.Now().UTC(),
		Results: provider.ProbeAll(ctx, urls, client, workers),
		Counts:  map[string]int{},
	}
	for _, r := range rep.Results {
		rep.Counts[string(r.Status)]++
	}
	return rep
}

// CheckPortal fetches one host's bootstrap page. Returns nil if OK, error with message if not.
func CheckPortal(ctx context.Context, host string) error {
	u := BootstrapURL(host)
	if u == "" {
		return fmt.Errorf("no portal host configured")
	}
	r := provider.ProbeOne(ctx, u, nil)
	switch r.Status {
	case provider.StatusOK:
		return nil
	case provider.StatusBadStatus, provider.StatusCloudflare:
		return fmt.Errorf("portal returned HTTP %d (%s)", r.StatusCode, r.Status)
	default:
		return fmt.Errorf("portal unreachable: %s", r.Status)
	}
}

// CheckEndpoints hits the API's liveness and metrics routes at baseURL and returns the first
// error or nil.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := httpclient.WithTimeout(5 * time.Second)
	for _, path := range []string{"/healthz", "/metrics"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil
}
