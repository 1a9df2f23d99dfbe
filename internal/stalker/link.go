package stalker

import (
	"context"
	"net/http"
	"strings"

	"github.com/snapetech/stalkerkit/internal/catalog"
	sklog "github.com/snapetech/stalkerkit/internal/log"
	"github.com/snapetech/stalkerkit/internal/safeurl"
)

// LinkRequest names what to play.
type LinkRequest struct {
	Kind     catalog.Kind
	Cmd      string // the item's cmd as listed
	StreamID string // item id; used to look up the file id of /media/ commands
	Episode  string // series episode number, sent as series=
}

// NeedsResolution reports whether cmd must go through create_link: it points at localhost,
// carries no http URL, or has an empty host (///).
func NeedsResolution(cmd string) bool {
	return strings.Contains(cmd, "localhost") || !strings.Contains(cmd, "http") || strings.Contains(cmd, "///")
}

// ResolveLink turns a listed cmd into a playable URL. Commands that already carry a usable URL are
// only normalized. Otherwise create_link is called with one reauthorize-then-retry of its own.
func (c *Client) ResolveLink(ctx context.Context, s *Session, req LinkRequest) (string, error) {
	cmd := req.Cmd
	if !NeedsResolution(cmd) {
		return normalizeStreamURL(cmd), nil
	}
	if err := requireReady(s, "create_link"); err != nil {
		return "", err
	}
	kind := req.Kind
	if kind == "" {
		kind = catalog.KindLive
	}
	if kind != catalog.KindLive && strings.HasPrefix(cmd, "/media/") && req.StreamID != "" {
		cmd = c.mediaCommand(ctx, s, cmd, req.StreamID)
	}
	episode := ""
	if kind == catalog.KindSeries {
		episode = req.Episode
	}
	u := createLinkURL(s.Portal, kind, cmd, episode)

	var state RetryState
	body, ok := withRetry(&state, "create_link", func() ([]byte, bool) {
		return c.callJS(ctx, s, http.MethodPost, "create_link", u, "")
	}, func() {
		_ = c.Reauthorize(ctx, s, "create_link")
	})
	if !ok {
		c.log.Info().Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).Str("kind", string(kind)).Msg("create_link failed")
		return "", actionErr("create_link", s.Portal, ErrServer)
	}
	js, _ := parseJS(body)
	link := normalizeStreamURL(js.Get("cmd").String())
	if link == "" {
		return "", actionErr("create_link", s.Portal, ErrNoLink)
	}
	return link, nil
}

// mediaCommand rewrites /media/<name>.<ext> to /media/file_<id>.<ext>, looking the file id up by
// movie id. On any failure the original cmd is kept.
func (c *Client) mediaCommand(ctx context.Context, s *Session, cmd, streamID string) string {
	body, ok := c.callJS(ctx, s, http.MethodPost, "get_ordered_list", movieLookupURL(s.Portal, streamID), "")
	if !ok {
		return cmd
	}
	js, _ := parseJS(body)
	id := js.Get("data.0.id").String()
	if id == "" {
		return cmd
	}
	ext := ""
	if i := strings.LastIndex(cmd, "."); i >= 0 {
		ext = cmd[i:]
	}
	return "/media/file_" + id + ext
}

func normalizeStreamURL(raw string) string {
	return safeurl.StreamURL(raw)
}
