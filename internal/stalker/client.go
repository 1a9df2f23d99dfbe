// Package stalker is a client for Stalker/Ministra middleware portals as spoken by MAG set-top
// boxes: handshake, profile negotiation, account checks, paginated catalog lists, playback link
// resolution and short EPG.
//
// A Session holds everything learned about one (host, MAC) pair. Sessions are values owned by the
// caller; the Client carries the shared machinery (HTTP, pacing, reauth collapsing, EPG cache).
package stalker

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/snapetech/stalkerkit/internal/discovery"
	"github.com/snapetech/stalkerkit/internal/httpclient"
	sklog "github.com/snapetech/stalkerkit/internal/log"
	"github.com/snapetech/stalkerkit/internal/provider"
)

// XtreamLookup fetches player_api.php user_info. *provider.XtreamClient implements it.
type XtreamLookup interface {
	UserInfo(ctx context.Context, playerAPIURL string) (provider.UserInfo, bool)
}

// Options configures a Client. Zero values are usable.
type Options struct {
	HTTP          *http.Client              // portal API calls; nil = httpclient.Default()
	Discovery     discovery.PortalDiscovery // nil = JS discoverer over DiscoveryHTTP
	DiscoveryHTTP *http.Client              // nil = HTTP
	Xtream        XtreamLookup              // nil = provider.XtreamClient with its default timeout
	Timezone      string                    // cookie timezone
	RateLimit     float64                   // requests/second per portal host; 0 = unlimited
	HostSem       *httpclient.HostSemaphore // optional per-host concurrency cap
	EPGCacheTTL   time.Duration             // 0 = 10m
	InsecureTLS   bool                      // only used to warn; the HTTP client decides
	Now           func() time.Time
	Rand          io.Reader // fake-token source; nil = crypto/rand
	Log           *zerolog.Logger
}

// Client talks to portals on behalf of many sessions.
type Client struct {
	http      *http.Client
	discovery discovery.PortalDiscovery
	xtream    XtreamLookup
	timezone  string
	rateLimit float64
	sem       *httpclient.HostSemaphore
	now       func() time.Time
	rand      io.Reader
	log       zerolog.Logger

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	reauth singleflight.Group

	// The expirable LRU runs a sweeper goroutine for its lifetime, so it is built on first use.
	epgOnce sync.Once
	epgTTL  time.Duration
	epg     *expirable.LRU[string, []EPGEntry]
}

var insecureOnce sync.Once

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		http:      opts.HTTP,
		discovery: opts.Discovery,
		xtream:    opts.Xtream,
		timezone:  opts.Timezone,
		rateLimit: opts.RateLimit,
		sem:       opts.HostSem,
		now:       opts.Now,
		rand:      opts.Rand,
		limiters:  make(map[string]*rate.Limiter),
	}
	if opts.Log != nil {
		c.log = *opts.Log
	} else {
		c.log = sklog.WithComponent("stalker")
	}
	if c.http == nil {
		c.http = httpclient.Default()
	}
	if c.discovery == nil {
		dc := opts.DiscoveryHTTP
		if dc == nil {
			dc = c.http
		}
		c.discovery = discovery.NewJSDiscoverer(dc)
	}
	if c.xtream == nil {
		c.xtream = &provider.XtreamClient{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	ttl := opts.EPGCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c.epgTTL = ttl
	if opts.InsecureTLS {
		insecureOnce.Do(func() {
			c.log.Warn().Msg("TLS certificate verification is disabled for portal traffic (STALKERKIT_INSECURE_TLS=false to enforce)")
		})
	}
	return c
}

func (c *Client) epgCache() *expirable.LRU[string, []EPGEntry] {
	c.epgOnce.Do(func() {
		c.epg = expirable.NewLRU[string, []EPGEntry](4096, nil, c.epgTTL)
	})
	return c.epg
}

// response is a completed 2xx exchange. Transport failures are reported as ok == false, never
// as errors: callers treat "no result" uniformly.
type response struct {
	Body   []byte
	Status int
}

// do issues one portal request with the MAG header set of s. bearer overrides the session token.
// Non-2xx, network and decode failures all yield ok == false; status is still set when a response
// arrived.
func (c *Client) do(ctx context.Context, s *Session, method, action, rawURL, bearer string) (response, bool) {
	release, err := c.pace(ctx, rawURL)
	if err != nil {
		return response{}, false
	}
	defer release()
	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		requestsTotal.WithLabelValues(action, "bad_request").Inc()
		return response{}, false
	}
	h := c.header(s, bearer)
	for k, v := range h {
		req.Header[k] = v
	}
	if host := h.Get("Host"); host != "" {
		req.Host = host
	}

	resp, err := c.http.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(action, "net_error").Inc()
		c.log.Debug().Err(err).Str(sklog.FieldAction, action).Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).
			Msg("portal request failed")
		return response{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		requestsTotal.WithLabelValues(action, "http_error").Inc()
		c.log.Debug().Int(sklog.FieldStatus, resp.StatusCode).Str(sklog.FieldAction, action).
			Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).Msg("portal returned non-2xx")
		return response{Status: resp.StatusCode}, false
	}
	body, err := httpclient.DecodeBody(resp)
	if err != nil {
		requestsTotal.WithLabelValues(action, "decode_error").Inc()
		return response{Status: resp.StatusCode}, false
	}
	requestsTotal.WithLabelValues(action, "ok").Inc()
	return response{Body: body, Status: resp.StatusCode}, true
}

// header reads s without writing to it; fan-out calls share one session.
func (c *Client) header(s *Session, bearer string) http.Header {
	if s.Timezone != "" {
		return s.Header(bearer)
	}
	cp := *s
	cp.Timezone = c.timezone
	return cp.Header(bearer)
}

// callJS is do followed by js extraction.
func (c *Client) callJS(ctx context.Context, s *Session, method, action, rawURL, bearer string) ([]byte, bool) {
	r, ok := c.do(ctx, s, method, action, rawURL, bearer)
	if !ok {
		return nil, false
	}
	if _, ok := parseJS(r.Body); !ok {
		requestsTotal.WithLabelValues(action, "decode_error").Inc()
		return nil, false
	}
	return r.Body, true
}

// pace waits on the per-host rate limiter, then takes a host-semaphore slot held until release.
func (c *Client) pace(ctx context.Context, rawURL string) (func(), error) {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	if c.rateLimit > 0 {
		if err := c.limiter(host).Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.sem == nil {
		return func() {}, nil
	}
	return c.sem.Acquire(ctx, rawURL)
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.limMu.Lock()
	defer c.limMu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		burst := int(c.rateLimit)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(c.rateLimit), burst)
		c.limiters[host] = l
	}
	return l
}

func requireReady(s *Session, action string) error {
	if s == nil || !s.Ready() {
		portal := ""
		if s != nil {
			portal = s.Portal
		}
		return actionErr(action, portal, ErrNoSession)
	}
	return nil
}
