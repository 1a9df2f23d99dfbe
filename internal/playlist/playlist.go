// Package playlist reads and rewrites the portal list file (e-portals.txt).
//
// The file is a sequence of blocks. A block starts with an http:// or https:// portal URL line;
// the lines after it are MAC addresses, each optionally followed by "# alias". A "#" in front of
// a URL disables the whole block, a "#" in front of a MAC disables that MAC. Anything else is
// ignored and preserved verbatim on rewrite.
package playlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"
	"golang.org/x/net/idna"

	"github.com/snapetech/stalkerkit/internal/catalog"
	"github.com/snapetech/stalkerkit/internal/stalker"
)

// ErrInvalidMAC is returned by NormalizeMAC for anything but six colon-separated hex octets.
var ErrInvalidMAC = errors.New("invalid MAC address")

var macRE = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// NormalizeMAC trims and upper-cases mac after validating it.
func NormalizeMAC(mac string) (string, error) {
	mac = strings.TrimSpace(mac)
	if !macRE.MatchString(mac) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return strings.ToUpper(mac), nil
}

// Entry is one enabled (portal URL, MAC) pair.
type Entry struct {
	URL   string // always ends in "/"
	MAC   string // upper case
	Alias string
}

// Key is the store key the entry maps to.
func (e Entry) Key() stalker.Key {
	s := e.Session()
	return s.Key()
}

// Session builds a fresh, not yet refreshed session for e. Default ports are dropped and the
// domain is lower-cased in its ASCII (punycode) form.
func (e Entry) Session() stalker.Session {
	s := stalker.Session{
		URL:     e.URL,
		MAC:     e.MAC,
		Alias:   e.Alias,
		Valid:   true,
		Blocked: "0",
	}
	switch {
	case strings.Contains(e.URL, "/stalker_portal/c/"):
		s.PathPrefix = "/stalker_portal/c/"
	case strings.Contains(e.URL, "/c/"):
		s.PathPrefix = "/c/"
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return s
	}
	s.Protocol = u.Scheme + "://"
	s.Domain = asciiHost(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	s.Port = catalog.Text(port)
	s.Host = s.Protocol + s.Domain
	if port != "" {
		s.Host += ":" + port
	}
	return s
}

func asciiHost(h string) string {
	if a, err := idna.Lookup.ToASCII(h); err == nil {
		return strings.ToLower(a)
	}
	return strings.ToLower(h)
}

// urlLine reports whether line (already trimmed) is a block header, and whether it is disabled.
func urlLine(line string) (u string, disabled, ok bool) {
	if strings.HasPrefix(line, "#") {
		disabled = true
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
	}
	if !strings.HasPrefix(line, "http://") && !strings.HasPrefix(line, "https://") {
		return "", false, false
	}
	return line, disabled, true
}

// macLine splits "AA:BB:CC:DD:EE:FF # alias". ok is false when the MAC part is not a MAC.
func macLine(line string) (mac, alias string, disabled, ok bool) {
	if strings.HasPrefix(line, "#") {
		disabled = true
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
	}
	left, right, _ := strings.Cut(line, "#")
	m, err := NormalizeMAC(left)
	if err != nil {
		return "", "", disabled, false
	}
	return m, strings.TrimSpace(right), disabled, true
}

func withSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

// Parse reads the enabled entries of a playlist file in file order. A MAC listed twice under
// the same URL is kept once with its first non-empty alias.
func Parse(r io.Reader) ([]Entry, error) {
	var (
		out     []Entry
		seen    = map[string]int{} // url|mac -> index in out
		current string
		enabled bool
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if u, disabled, ok := urlLine(line); ok {
			current = withSlash(u)
			enabled = !disabled
			continue
		}
		if current == "" || !enabled {
			continue
		}
		mac, alias, disabled, ok := macLine(line)
		if !ok || disabled {
			continue
		}
		k := current + "|" + mac
		if i, dup := seen[k]; dup {
			if out[i].Alias == "" {
				out[i].Alias = alias
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, Entry{URL: current, MAC: mac, Alias: alias})
	}
	return out, sc.Err()
}

// ParseFile is Parse on path. A missing file is an empty playlist.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Target names one MAC line to disable.
type Target struct {
	URL string
	MAC string
}

func (t Target) id() string {
	return strings.TrimRight(strings.TrimSpace(t.URL), "/") + "|" + strings.ToUpper(strings.TrimSpace(t.MAC))
}

// CommentOut prefixes "#" to every enabled MAC line matching one of targets and rewrites path
// atomically. Other lines, including their original spacing, are kept. Returns the number of
// lines disabled; the file is not touched when that is zero.
func CommentOut(path string, targets ...Target) (int, error) {
	if len(targets) == 0 {
		return 0, nil
	}
	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[t.id()] = true
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	lines := strings.SplitAfter(string(raw), "\n")
	var (
		current string
		changed int
	)
	for i, l := range lines {
		line := strings.TrimSpace(l)
		if u, disabled, ok := urlLine(line); ok {
			current = ""
			if !disabled {
				current = strings.TrimRight(u, "/")
			}
			continue
		}
		if current == "" {
			continue
		}
		mac, _, disabled, ok := macLine(line)
		if !ok || disabled || !want[current+"|"+mac] {
			continue
		}
		lines[i] = "#" + l
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, err
	}
	return changed, nil
}
