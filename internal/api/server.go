// Package api exposes the portal client over HTTP: refresh sessions, page through lists,
// resolve playback links and read short EPG for stored playlists.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	sklog "github.com/snapetech/stalkerkit/internal/log"
	"github.com/snapetech/stalkerkit/internal/refresh"
	"github.com/snapetech/stalkerkit/internal/stalker"
	"github.com/snapetech/stalkerkit/internal/store"
)

// Paging state is kept between requests for at most pageStates lists, each for pageTTL after
// its last use.
const (
	pageStates = 256
	pageTTL    = 10 * time.Minute
)

// Options wires a Server.
type Options struct {
	Client       *stalker.Client
	Store        *store.Store
	Runner       *refresh.Runner
	PlaylistFile string
}

// Server serves the HTTP API. Calls for one session are serialized; different sessions run in
// parallel.
type Server struct {
	client   *stalker.Client
	store    *store.Store
	runner   *refresh.Runner
	playlist string
	log      zerolog.Logger

	locks sync.Map                                   // stalker.Key -> *sync.Mutex
	pages *expirable.LRU[string, *stalker.PageState] // session key | list URL
}

// New builds a Server from opts.
func New(opts Options) (*Server, error) {
	if opts.Client == nil || opts.Store == nil || opts.Runner == nil {
		return nil, errors.New("api: client, store and runner are required")
	}
	return &Server{
		client:   opts.Client,
		store:    opts.Store,
		runner:   opts.Runner,
		playlist: opts.PlaylistFile,
		log:      sklog.WithComponent("api"),
		pages:    expirable.NewLRU[string, *stalker.PageState](pageStates, nil, pageTTL),
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(accessLog(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/playlists", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/refresh", s.handleCheckAll)
		r.Post("/prune", s.handlePrune)
		r.Route("/{index}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/refresh", s.handleCheckOne)
			r.Get("/categories", s.handleCategories)
			r.Get("/items", s.handleItems)
			r.Get("/seasons", s.handleSeasons)
			r.Get("/search", s.handleSearch)
			r.Get("/channels", s.handleChannels)
			r.Get("/link", s.handleLink)
			r.Get("/epg", s.handleEPG)
		})
	})
	return r
}

func (s *Server) lockFor(k stalker.Key) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(k, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// dropPages forgets the paging state of every list browsed on session k.
func (s *Server) dropPages(k stalker.Key) {
	prefix := k.String() + "|"
	for _, key := range s.pages.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.pages.Remove(key)
		}
	}
}

// withSession runs fn on the stored session at {index} under that session's lock and persists
// the session afterwards if fn reauthorized it. A session without a token is refreshed first.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, sess *stalker.Session) (any, error)) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad index %q", chi.URLParam(r, "index")))
		return
	}
	ctx := r.Context()
	e, err := s.store.Get(ctx, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	mu := s.lockFor(e.Session.Key())
	mu.Lock()
	defer mu.Unlock()
	// Reload under the lock so a reauthorization by the previous holder is seen.
	if e, err = s.store.Get(ctx, index); err != nil {
		s.fail(w, r, err)
		return
	}
	sess := e.Session
	if !sess.Ready() {
		rerr := s.client.Refresh(ctx, &sess)
		s.dropPages(sess.Key())
		if perr := s.store.PutSessions(ctx, sess); perr != nil {
			s.log.Warn().Err(perr).Int(sklog.FieldIndex, index).Msg("persist refreshed session")
		}
		if !sess.Ready() {
			if rerr == nil {
				rerr = stalker.ErrNoSession
			}
			s.fail(w, r, rerr)
			return
		}
	}
	before := [3]string{sess.Token, sess.TokenRandom, sess.PlayToken}
	out, err := fn(ctx, &sess)
	if before != [3]string{sess.Token, sess.TokenRandom, sess.PlayToken} {
		if perr := s.store.PutSessions(ctx, sess); perr != nil {
			s.log.Warn().Err(perr).Int(sklog.FieldIndex, index).Msg("persist reauthorized session")
		}
	}
	if err != nil {
		if out != nil && errors.Is(err, stalker.ErrServer) {
			// Partial page: the caller still gets what was fetched.
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "partial": out})
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, stalker.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, stalker.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, stalker.ErrServer), errors.Is(err, stalker.ErrNoLink),
		errors.Is(err, stalker.ErrNoPortal), errors.Is(err, stalker.ErrHandshake),
		errors.Is(err, stalker.ErrAccount):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Str(sklog.FieldRequestID, RequestIDFromContext(r.Context())).Msg("request failed")
	}
	writeError(w, code, err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
