// Package safeurl checks and tidies URLs that come back from portals before they reach a player.
package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS reports whether u parses with an http or https scheme. Anything else (file://,
// rtsp://, javascript:) is not handed to players or fetched.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// StreamURL drops a leading player directive from a portal cmd ("ffmpeg http://h/s" becomes
// "http://h/s") and re-serializes http(s) URLs. Other values come back trimmed.
func StreamURL(raw string) string {
	s := strings.TrimSpace(raw)
	if fields := strings.Fields(s); len(fields) >= 2 {
		s = strings.TrimSpace(s[strings.Index(s, fields[0])+len(fields[0]):])
	}
	if !IsHTTPOrHTTPS(s) {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	return u.String()
}

// Host returns scheme://host[:port] of u, or "" when u is not http(s).
func Host(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
