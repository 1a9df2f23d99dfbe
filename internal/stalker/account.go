package stalker

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/snapetech/stalkerkit/internal/catalog"
	sklog "github.com/snapetech/stalkerkit/internal/log"
)

// AccountInfo calls get_main_info and returns the expiry (js.phone, else js.end_date).
// ok is false on no result or a non-object payload.
func (c *Client) AccountInfo(ctx context.Context, s *Session) (expiry string, ok bool) {
	body, ok := c.callJS(ctx, s, http.MethodPost, "get_main_info", accountInfoURL(s.Portal), "")
	if !ok {
		return "", false
	}
	js, ok := parseJSObject(body)
	if !ok {
		return "", false
	}
	if phone := js.Get("phone").String(); phone != "" {
		return phone, true
	}
	return js.Get("end_date").String(), true
}

// checkAccount runs AccountInfo with one recovery: the basic profile (unless authentication
// already sent it) followed by a second get_main_info.
func (c *Client) checkAccount(ctx context.Context, s *Session, basicSent bool) bool {
	var state RetryState
	expiry, ok := withRetry(&state, "get_main_info", func() (string, bool) {
		return c.AccountInfo(ctx, s)
	}, func() {
		if !basicSent {
			c.Profile(ctx, s, ProfileBasic)
		}
	})
	if ok {
		s.Expiry = expiry
	}
	return ok
}

// xtreamLink finds user and password in a create_link result such as
// http://cdn:8080/movie/user/pass/123.mkv. The stream host is often an edge server, so the
// panel API is addressed on the playlist host instead.
var xtreamLink = regexp.MustCompile(`https?://[^/\s]+/movie/([^/\s]+)/([^/\s]+)/`)

// Xtream panels behind Stalker portals that hand out 32-char passwords use per-session tokens,
// not reusable credentials.
const tokenPasswordLen = 32

// discoverXtream resolves a sample VOD title and, when the stream URL embeds Xtream credentials,
// queries player_api.php for connection counts, status and expiry.
func (c *Client) discoverXtream(ctx context.Context, s *Session) {
	body, ok := c.callJS(ctx, s, http.MethodGet, "get_ordered_list", sampleVODURL(s.Portal), "")
	if !ok {
		return
	}
	js, _ := parseJS(body)
	var cmd string
	js.Get("data").ForEach(func(_, v gjson.Result) bool {
		cmd = v.Get("cmd").String()
		return cmd == ""
	})
	if cmd == "" {
		return
	}

	body, ok = c.callJS(ctx, s, http.MethodGet, "create_link", createLinkURL(s.Portal, catalog.KindVOD, cmd, ""), "")
	if !ok {
		return
	}
	js, _ = parseJS(body)
	stream := normalizeStreamURL(js.Get("cmd").String())
	m := xtreamLink.FindStringSubmatch(stream)
	if m == nil {
		return
	}
	user, pass := m[1], m[2]
	if len(pass) == tokenPasswordLen {
		c.log.Debug().Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).Msg("xtream password looks like a session token, skipping")
		return
	}
	host := strings.TrimRight(s.Host, "/")
	q := "username=" + url.QueryEscape(user) + "&password=" + url.QueryEscape(pass)
	s.XtreamUsername, s.XtreamPassword = user, pass
	s.XtreamGetAPI = host + "/get.php?" + q + "&type=m3u_plus&output=ts"
	s.XtreamPlayerAPI = host + "/player_api.php?" + q

	info, ok := c.xtream.UserInfo(ctx, s.XtreamPlayerAPI)
	if !ok {
		return
	}
	s.ActiveConnections = info.ActiveCons.String()
	s.MaxConnections = info.MaxConnections.String()
	if info.Active() {
		s.Status = 0
	}
	if t, ok := info.Expires(); ok {
		s.Expiry = t.Format("2006-01-02")
	}
}
