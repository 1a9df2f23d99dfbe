// Package discovery locates the API endpoint of a Stalker/Ministra portal.
//
// Portals publish no API description. The set-top-box bootstrap page lives under /c/ or
// /stalker_portal/c/, and xpcom.common.js builds the endpoint URL by string concatenation, so the
// endpoint is recovered by pattern matching that JavaScript. JSDiscoverer implements the known
// variants; other portal families can plug in their own PortalDiscovery.
package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/snapetech/stalkerkit/internal/httpclient"
	sklog "github.com/snapetech/stalkerkit/internal/log"
)

// Path shapes a portal can be served under.
const (
	PrefixLegacy  = "/c/"
	PrefixStalker = "/stalker_portal/c/"
)

// ErrNotFound means nothing on the host answered like a portal.
var ErrNotFound = errors.New("discovery: no portal found")

// Target is the input to a discovery run.
type Target struct {
	Host          string      // scheme://domain[:port], no trailing slash
	ConfiguredURL string      // playlist URL as written by the user; its path hints the shape
	Header        http.Header // portal headers (Host, User-Agent, Cookie, ...)
}

// Result is a discovered portal.
type Result struct {
	Portal     string // API endpoint, e.g. http://h/stalker_portal/server/load.php
	PathPrefix string // PrefixLegacy, PrefixStalker or "" when unknown
	Version    string // from version.js; may be empty
	Fallback   bool   // Portal is the host/portal.php guess
}

// PrefixURL returns host+PathPrefix, or "" when the prefix is unknown.
func (r Result) PrefixURL(host string) string {
	if r.PathPrefix == "" {
		return ""
	}
	return strings.TrimRight(host, "/") + r.PathPrefix
}

// PortalDiscovery finds the portal endpoint for a host.
type PortalDiscovery interface {
	Discover(ctx context.Context, t Target) (Result, error)
}

var (
	loaderLine = regexp.MustCompile(`this\.ajax_loader\s*=\s*this`)
	// Tried in order; the first capture is the script path.
	loaderPatterns = []*regexp.Regexp{
		// this.portal_protocol+'://'+this.portal_ip+'/'+this.portal_path+'/server/load.php'
		regexp.MustCompile(`this\.portal_protocol\s*\+\s*['"]://['"]\s*\+\s*this\.portal_ip\s*\+\s*['"]/['"]\s*\+\s*this\.portal_path\s*\+\s*['"](/[^'"]+)`),
		// this.portal_protocol+'://'+this.portal_ip+'/server/move.php'
		regexp.MustCompile(`this\.portal_protocol\s*\+\s*['"]://['"]\s*\+\s*this\.portal_ip\s*\+\s*['"](/[^'"]+)`),
		// this.portal_ip+'/portal.php'
		regexp.MustCompile(`this\.portal_ip\s*\+\s*['"](/[^'"]+)`),
	}
	versionPattern = regexp.MustCompile(`ver\s*=\s*['"]([^'"]+)['"]`)
	slashes        = regexp.MustCompile(`/+`)
)

// JSDiscoverer probes the bootstrap page and scrapes xpcom.common.js.
type JSDiscoverer struct {
	Client *http.Client // nil = httpclient.Default()
	Log    zerolog.Logger
}

// NewJSDiscoverer returns a discoverer using client for every probe.
func NewJSDiscoverer(client *http.Client) *JSDiscoverer {
	return &JSDiscoverer{Client: client, Log: sklog.WithComponent("discovery")}
}

// Discover runs the probe sequence: configured shape, the other shape, then (when the
// configuration implied neither) both in fixed order. With a prefix it scrapes that prefix's
// xpcom.common.js; without one it tries both xpcom locations. When no loader pattern matches,
// host/portal.php is returned with Fallback set. ErrNotFound only when the host answered nothing.
func (d *JSDiscoverer) Discover(ctx context.Context, t Target) (Result, error) {
	host := strings.TrimRight(t.Host, "/")
	reached := false
	var res Result

	for _, prefix := range probeOrder(t.ConfiguredURL) {
		ok, answered := d.probeBootstrap(ctx, host+prefix, t.Header)
		reached = reached || answered
		if ok != "" {
			res.PathPrefix = ok
			break
		}
	}

	candidates := []string{PrefixLegacy, PrefixStalker}
	if res.PathPrefix != "" {
		candidates = []string{res.PathPrefix}
	}
	for _, prefix := range candidates {
		path, answered := d.scrapeXpcom(ctx, host+prefix+"xpcom.common.js", t.Header)
		reached = reached || answered
		if path != "" {
			res.Portal = host + path
			res.PathPrefix = prefix
			break
		}
	}

	if res.Portal == "" {
		if !reached {
			return Result{}, ErrNotFound
		}
		res.Portal = host + "/portal.php"
		res.Fallback = true
	}
	if res.PathPrefix != "" {
		res.Version = d.version(ctx, host+res.PathPrefix+"version.js", t.Header)
	}
	d.Log.Debug().Str(sklog.FieldHost, host).Str(sklog.FieldPortal, res.Portal).
		Str("path_prefix", res.PathPrefix).Str("version", res.Version).Bool("fallback", res.Fallback).
		Msg("portal discovered")
	return res, nil
}

// probeOrder returns the bootstrap prefixes to try for a configured URL.
func probeOrder(configured string) []string {
	switch {
	case strings.Contains(configured, PrefixStalker):
		return []string{PrefixStalker, PrefixLegacy}
	case strings.Contains(configured, PrefixLegacy):
		return []string{PrefixLegacy, PrefixStalker}
	default:
		return []string{PrefixLegacy, PrefixStalker}
	}
}

// probeBootstrap GETs a bootstrap page. It returns the prefix the final (redirected) URL
// resolves to when the page references version.js, and whether the host answered at all.
func (d *JSDiscoverer) probeBootstrap(ctx context.Context, url string, h http.Header) (string, bool) {
	body, finalURL, ok := d.get(ctx, url, h)
	if !ok {
		return "", finalURL != ""
	}
	if !referencesVersionJS(body) {
		return "", true
	}
	final := strings.ToLower(finalURL)
	switch {
	case strings.Contains(final, PrefixStalker):
		return PrefixStalker, true
	case strings.Contains(final, PrefixLegacy):
		return PrefixLegacy, true
	}
	return "", true
}

// referencesVersionJS looks for a <script src=...version.js> tag, then for any mention in inline JS.
func referencesVersionJS(body []byte) bool {
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		if doc.Find(`script[src*="version.js"]`).Length() > 0 {
			return true
		}
	}
	return bytes.Contains(bytes.ToLower(body), []byte("version.js"))
}

// scrapeXpcom returns the normalized endpoint path found in xpcom.common.js, if any.
func (d *JSDiscoverer) scrapeXpcom(ctx context.Context, url string, h http.Header) (string, bool) {
	body, finalURL, ok := d.get(ctx, url, h)
	if !ok {
		return "", finalURL != ""
	}
	return ExtractPortalPath(body, url), true
}

// ExtractPortalPath scans JavaScript source for the ajax_loader assignment and returns the
// endpoint path it builds. sourceURL decides the segment substituted for this.portal_path.
func ExtractPortalPath(js []byte, sourceURL string) string {
	sc := bufio.NewScanner(bytes.NewReader(js))
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !loaderLine.MatchString(line) {
			continue
		}
		prefix := ""
		if strings.Contains(line, "this.portal_path") {
			prefix = "/c"
			if strings.Contains(sourceURL, "/stalker_portal/") {
				prefix = "/stalker_portal"
			}
		}
		for _, re := range loaderPatterns {
			if m := re.FindStringSubmatch(line); m != nil {
				path := slashes.ReplaceAllString(prefix+strings.TrimSpace(m[1]), "/")
				if !strings.HasPrefix(path, "/") {
					path = "/" + path
				}
				return path
			}
		}
	}
	return ""
}

// ParseVersion pulls the ver = '...' assignment out of version.js.
func ParseVersion(js []byte) string {
	if m := versionPattern.FindSubmatch(js); m != nil {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

func (d *JSDiscoverer) version(ctx context.Context, url string, h http.Header) string {
	body, _, ok := d.get(ctx, url, h)
	if !ok {
		return ""
	}
	return ParseVersion(body)
}

// get follows redirects and returns the decoded body and final URL. ok is false on transport
// error or non-2xx; finalURL is non-empty whenever a response arrived.
func (d *JSDiscoverer) get(ctx context.Context, url string, h http.Header) (body []byte, finalURL string, ok bool) {
	client := d.Client
	if client == nil {
		client = httpclient.Default()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", false
	}
	for k, v := range h {
		req.Header[k] = v
	}
	if host := h.Get("Host"); host != "" {
		req.Host = host
	}
	resp, err := client.Do(req)
	if err != nil {
		d.Log.Debug().Err(err).Str(sklog.FieldURL, url).Msg("probe failed")
		return nil, "", false
	}
	defer resp.Body.Close()
	finalURL = resp.Request.URL.String()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, finalURL, false
	}
	body, err = httpclient.DecodeBody(resp)
	if err != nil {
		return nil, finalURL, false
	}
	return body, finalURL, true
}
