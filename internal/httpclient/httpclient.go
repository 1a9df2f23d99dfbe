package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

const (
	DefaultConnectTimeout  = 6 * time.Second
	DefaultTimeout         = 20 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
)

// Options shapes a portal client. Zero values fall back to the Default* constants.
type Options struct {
	ConnectTimeout time.Duration // dial (and TLS handshake) budget
	Timeout        time.Duration // whole request budget including body read
	InsecureTLS    bool          // skip certificate verification
	Proxy          string        // socks5://, socks5h:// or http(s):// URL; empty = direct
	// NoRedirect stops at the first response instead of following Location headers.
	NoRedirect bool
}

var defaultClient = mustNew(Options{})

// Default returns the shared client used when a caller passes nil.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and a clone of the Default transport.
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t.Clone(),
	}
}

// New builds a client for portal traffic. Compression is left to DecodeBody: portals are sent an
// explicit Accept-Encoding, which disables net/http's transparent gzip.
func New(o Options) (*http.Client, error) {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	dialer := &net.Dialer{Timeout: o.ConnectTimeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   o.ConnectTimeout,
		ResponseHeaderTimeout: o.Timeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   MaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		DisableCompression:    true,
	}
	if o.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via STALKERKIT_INSECURE_TLS
	}
	if o.Proxy != "" {
		if err := applyProxy(tr, dialer, o.Proxy); err != nil {
			return nil, err
		}
	}
	c := &http.Client{Timeout: o.Timeout, Transport: tr}
	if o.NoRedirect {
		c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return c, nil
}

func mustNew(o Options) *http.Client {
	c, err := New(o)
	if err != nil {
		panic(err)
	}
	return c
}

func applyProxy(tr *http.Transport, dialer *net.Dialer, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("httpclient: proxy %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(u)
		return nil
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, dialer)
		if err != nil {
			return fmt.Errorf("httpclient: proxy %q: %w", raw, err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("httpclient: proxy %q: dialer lacks context support", raw)
		}
		tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return cd.DialContext(ctx, network, addr)
		}
		return nil
	default:
		return fmt.Errorf("httpclient: unsupported proxy scheme %q", u.Scheme)
	}
}
