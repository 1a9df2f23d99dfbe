package stalker

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	sklog "github.com/snapetech/stalkerkit/internal/log"
)

const fakeTokenLen = 32

// Handshake obtains a fresh token for s. The sequence is: plain handshake; on no result, again
// with &mac=; if the portal then asks for a prehash, a synthesized token is sent as bearer with
// &prehash=sha1(token). Token and TokenRandom are cleared first, so a failed handshake leaves s
// without a token.
func (c *Client) Handshake(ctx context.Context, s *Session) error {
	if s.Portal == "" {
		return actionErr("handshake", s.Host, ErrNoPortal)
	}
	s.Token, s.TokenRandom = "", ""
	base := s.Portal + "?type=stb&action=handshake&JsHttpRequest=1-xml"
	withMAC := base + "&mac=" + url.QueryEscape(strings.ToUpper(s.MAC))

	reply, ok := c.handshakeOnce(ctx, s, base, "")
	if !ok {
		reply, ok = c.handshakeOnce(ctx, s, withMAC, "")
	}
	if ok && reply.Token == "" && wantsPrehash(reply.Msg) {
		fake, err := randomToken(c.rand, fakeTokenLen)
		if err != nil {
			return actionErr("handshake", s.Portal, err)
		}
		u := withMAC + "&prehash=" + hexSHA1(fake)
		c.log.Debug().Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).Msg("portal wants prehash, retrying handshake")
		reply, ok = c.handshakeOnce(ctx, s, u, fake)
	}
	if !ok || reply.Token == "" {
		return actionErr("handshake", s.Portal, ErrHandshake)
	}
	s.Token, s.TokenRandom = reply.Token, reply.Random
	return nil
}

func (c *Client) handshakeOnce(ctx context.Context, s *Session, u, bearer string) (handshakeReply, bool) {
	body, ok := c.callJS(ctx, s, http.MethodPost, "handshake", u, bearer)
	if !ok {
		return handshakeReply{}, false
	}
	js, ok := parseJSObject(body)
	if !ok {
		return handshakeReply{}, false
	}
	return decodeHandshake(js), true
}

func wantsPrehash(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "missing") || (strings.Contains(m, "invalid") && strings.Contains(m, "prehash"))
}

// Profile sends get_profile in mode and copies play_token, status and blocked onto s.
// The reply's mac and id tell the caller whether the full payload was accepted.
func (c *Client) Profile(ctx context.Context, s *Session, mode ProfileMode) (ProfileReply, bool) {
	params := profileParams(NewDevice(s.MAC), s.IsStalkerPortal(), mode, s.TokenRandom, c.now())
	u := mergeQuery(s.Portal+"?type=stb&action=get_profile&JsHttpRequest=1-xml", params)
	body, ok := c.callJS(ctx, s, http.MethodPost, "get_profile", u, "")
	if !ok {
		return ProfileReply{}, false
	}
	js, ok := parseJSObject(body)
	if !ok {
		return ProfileReply{}, false
	}
	p := decodeProfile(js)
	s.PlayToken, s.Status, s.Blocked = p.PlayToken, p.Status, p.Blocked
	return p, true
}

// authenticate is handshake then profile: full first, basic when the full reply lacks mac or id.
// basic reports whether the basic profile was sent.
func (c *Client) authenticate(ctx context.Context, s *Session) (basic bool, err error) {
	if err := c.Handshake(ctx, s); err != nil {
		return false, err
	}
	p, ok := c.Profile(ctx, s, ProfileFull)
	if !ok || p.MAC == "" || p.ID == "" {
		c.Profile(ctx, s, ProfileBasic)
		return true, nil
	}
	return false, nil
}
