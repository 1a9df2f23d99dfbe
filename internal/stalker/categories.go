package stalker

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/snapetech/stalkerkit/internal/catalog"
	sklog "github.com/snapetech/stalkerkit/internal/log"
)

// Categories is the three category trees of a portal.
type Categories struct {
	Live   []catalog.Category `json:"live"`
	VOD    []catalog.Category `json:"vod"`
	Series []catalog.Category `json:"series"`
}

func (c Categories) anyEmpty() bool {
	return len(c.Live) == 0 || len(c.VOD) == 0 || len(c.Series) == 0
}

// Categories fetches the live, VOD and series category lists concurrently. If any comes back
// empty the session is reauthorized once and all three are fetched again; still empty is
// ErrAccessDenied, returned with whatever was fetched.
func (c *Client) Categories(ctx context.Context, s *Session) (Categories, error) {
	if err := requireReady(s, "get_categories"); err != nil {
		return Categories{}, err
	}
	var state RetryState
	cats, ok := withRetry(&state, "get_categories", func() (Categories, bool) {
		got, err := c.fetchCategories(ctx, s)
		return got, err == nil && !got.anyEmpty()
	}, func() {
		_ = c.Reauthorize(ctx, s, "categories")
	})
	if !ok {
		c.log.Info().Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).Int("live", len(cats.Live)).
			Int("vod", len(cats.VOD)).Int("series", len(cats.Series)).Msg("category lists incomplete")
		return cats, actionErr("get_categories", s.Portal, ErrAccessDenied)
	}
	return cats, nil
}

func (c *Client) fetchCategories(ctx context.Context, s *Session) (Categories, error) {
	kinds := [...]catalog.Kind{catalog.KindLive, catalog.KindVOD, catalog.KindSeries}
	var results [len(kinds)][]catalog.Category
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			body, ok := c.callJS(gctx, s, http.MethodPost, "get_categories", categoriesURL(s.Portal, kind), "")
			if !ok {
				return nil
			}
			js, _ := parseJS(body)
			results[i] = decodeCategories(js)
			return nil
		})
	}
	err := g.Wait()
	return Categories{Live: results[0], VOD: results[1], Series: results[2]}, err
}
