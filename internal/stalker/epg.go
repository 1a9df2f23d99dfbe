package stalker

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const epgFanout = 4

var epgRetryDelay = time.Second

// ShortEPG returns the next programmes of a live channel. A 503 is retried once after a second.
// Results are cached per portal and channel.
func (c *Client) ShortEPG(ctx context.Context, s *Session, channelID string) ([]EPGEntry, error) {
	if err := requireReady(s, "get_short_epg"); err != nil {
		return nil, err
	}
	key := s.Portal + "|" + channelID
	if entries, ok := c.epgCache().Get(key); ok {
		epgCacheHits.Inc()
		return entries, nil
	}
	u := shortEPGURL(s.Portal, channelID)
	r, ok := c.do(ctx, s, http.MethodPost, "get_short_epg", u, "")
	if !ok && r.Status == http.StatusServiceUnavailable {
		t := time.NewTimer(epgRetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		r, ok = c.do(ctx, s, http.MethodPost, "get_short_epg", u, "")
	}
	if !ok {
		return nil, actionErr("get_short_epg", s.Portal, ErrServer)
	}
	js, ok := parseJS(r.Body)
	if !ok {
		return nil, actionErr("get_short_epg", s.Portal, ErrServer)
	}
	entries := decodeEPG(js)
	c.epgCache().Add(key, entries)
	return entries, nil
}

// ShortEPGs fetches several channels in parallel. The result is keyed by channel id; channels
// that failed are absent.
func (c *Client) ShortEPGs(ctx context.Context, s *Session, channelIDs []string) (map[string][]EPGEntry, error) {
	if err := requireReady(s, "get_short_epg"); err != nil {
		return nil, err
	}
	results := make([][]EPGEntry, len(channelIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(epgFanout)
	for i, id := range channelIDs {
		g.Go(func() error {
			entries, err := c.ShortEPG(gctx, s, id)
			if err == nil {
				results[i] = entries
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string][]EPGEntry, len(channelIDs))
	for i, id := range channelIDs {
		if results[i] != nil {
			out[id] = results[i]
		}
	}
	return out, ctx.Err()
}
