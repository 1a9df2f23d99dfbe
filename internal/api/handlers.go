package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/snapetech/stalkerkit/internal/catalog"
	"github.com/snapetech/stalkerkit/internal/refresh"
	"github.com/snapetech/stalkerkit/internal/stalker"
	"github.com/snapetech/stalkerkit/internal/store"
)

// playlistView is a stored entry as listed: the session without credentials plus its label.
type playlistView struct {
	Index       int           `json:"index"`
	URL         string        `json:"url"`
	Host        string        `json:"host"`
	MAC         string        `json:"mac"`
	Alias       string        `json:"alias,omitempty"`
	Portal      string        `json:"portal"`
	Version     string        `json:"version,omitempty"`
	Valid       bool          `json:"valid"`
	Label       stalker.Label `json:"label"`
	Saturated   bool          `json:"saturated"`
	Xtream      bool          `json:"xtream"`
	Expiry      string        `json:"expiry"`
	ExpiryKind  string        `json:"expiry_kind"`
	Connections string        `json:"connections,omitempty"`
}

func view(s stalker.Session, now time.Time) playlistView {
	v := playlistView{
		Index:     s.Index,
		URL:       s.URL,
		Host:      s.Host,
		MAC:       s.MAC,
		Alias:     s.Alias,
		Portal:    s.Portal,
		Version:   s.Version,
		Valid:     s.Valid,
		Label:     s.StatusLabel(now),
		Saturated: s.Saturated(),
		Expiry:    s.Expiry,
	}
	v.ExpiryKind = s.ExpiryInfo().Kind.String()
	_, _, v.Xtream = s.XtreamCredentials()
	if s.MaxConnections != "" {
		v.Connections = s.ActiveConnections + "/" + s.MaxConnections
	}
	return v
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := time.Now()
	out := make([]playlistView, 0, len(entries))
	for _, e := range entries {
		out = append(out, view(e.Session, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(_ context.Context, sess *stalker.Session) (any, error) {
		return view(*sess, time.Now()), nil
	})
}

func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	if s.playlist != "" {
		if _, err := refresh.SyncPlaylist(r.Context(), s.store, s.playlist); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	results, sum, err := s.runner.CheckAll(r.Context())
	s.pages.Purge()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]playlistView, 0, len(results))
	now := time.Now()
	for _, res := range results {
		views = append(views, view(res.Session, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": sum, "playlists": views})
}

func (s *Server) handleCheckOne(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad index %q", chi.URLParam(r, "index")))
		return
	}
	e, err := s.store.Get(r.Context(), index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	mu := s.lockFor(e.Session.Key())
	mu.Lock()
	res, err := s.runner.CheckOne(r.Context(), index)
	s.dropPages(e.Session.Key())
	mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body := map[string]any{"playlist": view(res.Session, time.Now())}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad index %q", chi.URLParam(r, "index")))
		return
	}
	removed, err := refresh.Remove(r.Context(), s.store, s.playlist, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.dropPages(removed.Session.Key())
	writeJSON(w, http.StatusOK, view(removed.Session, time.Now()))
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	removed, err := refresh.Prune(r.Context(), s.store, s.playlist)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := time.Now()
	out := make([]playlistView, 0, len(removed))
	for _, e := range removed {
		s.dropPages(e.Session.Key())
		out = append(out, view(e.Session, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(ctx context.Context, sess *stalker.Session) (any, error) {
		cats, err := s.client.Categories(ctx, sess)
		if err != nil {
			return nil, err
		}
		if _, err := s.store.Update(ctx, sess.Index, func(e *store.Entry) error {
			e.Data.SetCategories(cats)
			return nil
		}); err != nil {
			s.log.Warn().Err(err).Msg("cache categories")
		}
		return cats, nil
	})
}

func kindParam(r *http.Request, def catalog.Kind) (catalog.Kind, error) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		return def, nil
	}
	k, ok := catalog.ParseKind(raw)
	if !ok {
		return "", fmt.Errorf("unknown type %q", raw)
	}
	return k, nil
}

// pageView is one page of a list plus its position.
type pageView struct {
	Page       int            `json:"page"`
	Pages      int            `json:"pages"`
	TotalItems int            `json:"total_items"`
	Items      []catalog.Item `json:"items"`
}

func pageOf(st *stalker.PageState, page int) pageView {
	v := pageView{Page: page, Pages: st.Pages(), TotalItems: st.TotalItems, Items: []catalog.Item{}}
	lo := (page - 1) * stalker.PageSize
	if lo >= len(st.Buffer) {
		return v
	}
	hi := min(lo+stalker.PageSize, len(st.Buffer))
	v.Items = st.Buffer[lo:hi]
	return v
}

// servePage fetches page p of baseURL, reusing the paging state of earlier requests for the
// same session and list so downloaded pages are not fetched again. Each request gets its own
// reauthorize budget.
func (s *Server) servePage(ctx context.Context, sess *stalker.Session, baseURL string, p int) (any, error) {
	key := sess.Key().String() + "|" + baseURL
	st, ok := s.pages.Get(key)
	if !ok {
		st = stalker.NewPageState()
		s.pages.Add(key, st)
	}
	st.Page = p
	st.ResetRetry()
	_, err := s.client.FetchPage(ctx, sess, st, baseURL)
	return pageOf(st, p), err
}

func pageParam(r *http.Request) int {
	p, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || p < 1 {
		return 1
	}
	return p
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r, catalog.KindLive)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	category := q.Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("category is required"))
		return
	}
	sort := stalker.ParseSortOrder(q.Get("sort"))
	s.withSession(w, r, func(ctx context.Context, sess *stalker.Session) (any, error) {
		return s.servePage(ctx, sess, stalker.CategoryListURL(sess.Portal, kind, category, sort), pageParam(r))
	})
}

func (s *Server) handleSeasons(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("series")
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("series is required"))
		return
	}
	s.withSession(w, r, func(ctx context.Context, sess *stalker.Session) (any, error) {
		return s.servePage(ctx, sess, stalker.SeasonsURL(sess.Portal, id), pageParam(r))
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r, catalog.KindVOD)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("q is required"))
		return
	}
	s.withSession(w, r, func(ctx context.Context, sess *stalker.Session) (any, error) {
		return s.client.FetchList(ctx, sess, stalker.SearchURL(sess.Portal, kind, query))
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("q")
	s.withSession(w, r, func(ctx context.Context, sess *stalker.Session) (any, error) {
		items, err := s.client.FetchList(ctx, sess, stalker.AllChannelsURL(sess.Portal))
		if err != nil {
			return nil, err
		}
		return catalog.FilterByName(items, filter), nil
	})
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r, catalog.KindLive)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	req := stalker.LinkRequest{Kind: kind, Cmd: q.Get("cmd"), StreamID: q.Get("stream_id"), Episode: q.Get("episode")}
	if req.Cmd == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("cmd is required"))
		return
	}
	s.withSession(w, r, func(ctx context.Context, sess *stalker.Session) (any, error) {
		u, err := s.client.ResolveLink(ctx, sess, req)
		if err != nil {
			return nil, err
		}
		return map[string]string{"url": u}, nil
	})
}

func (s *Server) handleEPG(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ch"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("ch is required"))
		return
	}
	s.withSession(w, r, func(ctx context.Context, sess *stalker.Session) (any, error) {
		return s.client.ShortEPGs(ctx, sess, ids)
	})
}
