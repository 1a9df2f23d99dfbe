package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/snapetech/stalkerkit/internal/config"
	"github.com/snapetech/stalkerkit/internal/httpclient"
	sklog "github.com/snapetech/stalkerkit/internal/log"
	"github.com/snapetech/stalkerkit/internal/provider"
	"github.com/snapetech/stalkerkit/internal/refresh"
	"github.com/snapetech/stalkerkit/internal/stalker"
	"github.com/snapetech/stalkerkit/internal/store"
)

// app is everything a command needs, built once from config.
type app struct {
	cfg    *config.Config
	http   *http.Client
	client *stalker.Client
	store  *store.Store
	runner *refresh.Runner
	log    zerolog.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sklog.Configure(sklog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	base := httpclient.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		InsecureTLS:    cfg.InsecureTLS,
		Proxy:          cfg.Proxy,
	}
	apiOpts, discOpts, xtOpts := base, base, base
	apiOpts.Timeout = cfg.ReadTimeout
	discOpts.Timeout = cfg.DiscoveryTimeout
	xtOpts.Timeout = cfg.XtreamTimeout

	apiHTTP, err := httpclient.New(apiOpts)
	if err != nil {
		return nil, err
	}
	discHTTP, err := httpclient.New(discOpts)
	if err != nil {
		return nil, err
	}
	xtHTTP, err := httpclient.New(xtOpts)
	if err != nil {
		return nil, err
	}

	var sem *httpclient.HostSemaphore
	if cfg.HostConcurrency > 0 {
		sem = httpclient.NewHostSemaphore(cfg.HostConcurrency)
	}
	client := stalker.NewClient(stalker.Options{
		HTTP:          apiHTTP,
		DiscoveryHTTP: discHTTP,
		Xtream:        &provider.XtreamClient{HTTP: xtHTTP},
		Timezone:      cfg.Timezone,
		RateLimit:     cfg.RateLimit,
		HostSem:       sem,
		EPGCacheTTL:   cfg.EPGCacheTTL,
		InsecureTLS:   cfg.InsecureTLS,
	})

	st, err := store.Open(cfg.StoreDriver, cfg.StorePath, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		http:   discHTTP,
		client: client,
		store:  st,
		runner: refresh.NewRunner(client, st, cfg.CheckWorkers),
		log:    sklog.WithComponent("cli"),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

// sync brings the store in line with the playlist file before any command reads it.
func (a *app) sync(ctx context.Context) ([]store.Entry, error) {
	entries, err := refresh.SyncPlaylist(ctx, a.store, a.cfg.PlaylistFile)
	if err != nil {
		return nil, err
	}
	a.log.Debug().Int("entries", len(entries)).Str(sklog.FieldPath, a.cfg.PlaylistFile).Msg("playlist synced")
	return entries, nil
}

// withSession runs fn on the stored session at index and persists the session if fn
// reauthorized it. A session without a token is refreshed first.
func (a *app) withSession(ctx context.Context, index int, fn func(*stalker.Session) error) error {
	e, err := a.store.Get(ctx, index)
	if err != nil {
		return err
	}
	s := e.Session
	before := [3]string{s.Token, s.TokenRandom, s.PlayToken}
	if !s.Ready() {
		err := a.client.Refresh(ctx, &s)
		if perr := a.store.PutSessions(ctx, s); perr != nil {
			a.log.Warn().Err(perr).Int(sklog.FieldIndex, index).Msg("persist refreshed session")
		}
		if !s.Ready() {
			if err == nil {
				err = stalker.ErrNoSession
			}
			return fmt.Errorf("playlist %d: %w", index, err)
		}
		before = [3]string{s.Token, s.TokenRandom, s.PlayToken}
	}
	ferr := fn(&s)
	if before != [3]string{s.Token, s.TokenRandom, s.PlayToken} {
		if err := a.store.PutSessions(ctx, s); err != nil {
			a.log.Warn().Err(err).Int(sklog.FieldIndex, index).Msg("persist session")
		}
	}
	return ferr
}
