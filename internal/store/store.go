// Package store persists the playlist entries: one record per (domain, port, MAC) holding the
// portal session, the player preferences and cached portal data.
//
// Two backends share one set of semantics: a JSON array file (the historical layout, replaced
// atomically on every write) and a SQLite table. Every read-modify-write runs under the Store
// mutex, so concurrent refreshes cannot lose each other's updates.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snapetech/stalkerkit/internal/catalog"
	xlog "github.com/snapetech/stalkerkit/internal/log"
	"github.com/snapetech/stalkerkit/internal/stalker"
)

// ErrNotFound is returned when no entry has the requested index or key.
var ErrNotFound = errors.New("playlist entry not found")

// Entry is one persisted playlist.
type Entry struct {
	Session stalker.Session `json:"playlist_info"`
	Player  PlayerInfo      `json:"player_info"`
	Data    Data            `json:"data"`
}

// PlayerInfo holds per-playlist viewing preferences. Hidden, favourite and recent lists carry
// whatever ids the front end stored.
type PlayerInfo struct {
	LiveType             string            `json:"livetype"`
	VODType              string            `json:"vodtype"`
	LiveHidden           []catalog.Text    `json:"livehidden"`
	ChannelsHidden       []catalog.Text    `json:"channelshidden"`
	VODHidden            []catalog.Text    `json:"vodhidden"`
	VODStreamsHidden     []catalog.Text    `json:"vodstreamshidden"`
	SeriesHidden         []catalog.Text    `json:"serieshidden"`
	SeriesTitlesHidden   []catalog.Text    `json:"seriestitleshidden"`
	SeriesSeasonsHidden  []catalog.Text    `json:"seriesseasonshidden"`
	SeriesEpisodesHidden []catalog.Text    `json:"seriesepisodeshidden"`
	CatchupHidden        []catalog.Text    `json:"catchuphidden"`
	CatchupChannelHidden []catalog.Text    `json:"catchupchannelshidden"`
	LiveFavourites       []json.RawMessage `json:"livefavourites"`
	VODFavourites        []json.RawMessage `json:"vodfavourites"`
	SeriesFavourites     []json.RawMessage `json:"seriesfavourites"`
	LiveRecents          []json.RawMessage `json:"liverecents"`
	VODRecents           []json.RawMessage `json:"vodrecents"`
	VODWatched           []json.RawMessage `json:"vodwatched"`
	SeriesWatched        []json.RawMessage `json:"serieswatched"`
	ShowLive             bool              `json:"showlive"`
	ShowVOD              bool              `json:"showvod"`
	ShowSeries           bool              `json:"showseries"`
	ShowCatchup          bool              `json:"showcatchup"`
	ShowAdult            bool              `json:"showadult"`
	ServerOffset         int               `json:"serveroffset"`
	CatchupOffset        int               `json:"catchupoffset"`
	EPGOffset            int               `json:"epgoffset"`
}

// DefaultPlayerInfo is what a new entry starts with. 4097 is the GStreamer service type.
func DefaultPlayerInfo() PlayerInfo {
	empty := []catalog.Text{}
	none := []json.RawMessage{}
	return PlayerInfo{
		LiveType:             "4097",
		VODType:              "4097",
		LiveHidden:           empty,
		ChannelsHidden:       empty,
		VODHidden:            empty,
		VODStreamsHidden:     empty,
		SeriesHidden:         empty,
		SeriesTitlesHidden:   empty,
		SeriesSeasonsHidden:  empty,
		SeriesEpisodesHidden: empty,
		CatchupHidden:        empty,
		CatchupChannelHidden: empty,
		LiveFavourites:       none,
		VODFavourites:        none,
		SeriesFavourites:     none,
		LiveRecents:          none,
		VODRecents:           none,
		VODWatched:           none,
		SeriesWatched:        none,
		ShowLive:             true,
		ShowVOD:              true,
		ShowSeries:           true,
		ShowCatchup:          true,
	}
}

// Data is portal data cached alongside the session. Category listings are stored exactly as the
// portal returned them.
type Data struct {
	LiveCategories   catalog.Listing `json:"live_categories"`
	VODCategories    catalog.Listing `json:"vod_categories"`
	SeriesCategories catalog.Listing `json:"series_categories"`
	LiveStreams      json.RawMessage `json:"live_streams"`
	Catchup          bool            `json:"catchup"`
	CustomSIDs       bool            `json:"customsids"`
	EPGDate          string          `json:"epg_date"`
	DataDownloaded   bool            `json:"data_downloaded"`
	FailCount        int             `json:"fail_count"`
}

// SetCategories caches c and marks the data as downloaded.
func (d *Data) SetCategories(c stalker.Categories) {
	d.LiveCategories = catalog.Listing{JS: c.Live}
	d.VODCategories = catalog.Listing{JS: c.VOD}
	d.SeriesCategories = catalog.Listing{JS: c.Series}
	d.DataDownloaded = true
}

// NewEntry wraps a fresh session with default preferences and empty data.
func NewEntry(s stalker.Session) Entry {
	return Entry{
		Session: s,
		Player:  DefaultPlayerInfo(),
		Data:    Data{LiveStreams: json.RawMessage("[]")},
	}
}

// backend loads and replaces the whole entry list. Callers hold Store.mu.
type backend interface {
	load(ctx context.Context) ([]Entry, error)
	save(ctx context.Context, entries []Entry) error
	close() error
	name() string
}

// Store is the mutex-guarded entry list over one backend.
type Store struct {
	mu  sync.Mutex
	b   backend
	log zerolog.Logger
}

func newStore(b backend) *Store {
	return &Store{b: b, log: xlog.WithComponent("store")}
}

// Open picks the backend by driver name: "json" (default) or "sqlite".
func Open(driver, jsonPath, sqlitePath string) (*Store, error) {
	switch driver {
	case "", "json":
		return NewJSON(jsonPath), nil
	case "sqlite":
		return NewSQLite(sqlitePath)
	}
	return nil, fmt.Errorf("store: unknown driver %q", driver)
}

func (s *Store) Close() error { return s.b.close() }

// Load returns every entry in index order.
func (s *Store) Load(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.load(ctx)
}

// Get returns the entry at index.
func (s *Store) Get(ctx context.Context, index int) (Entry, error) {
	entries, err := s.Load(ctx)
	if err != nil {
		return Entry{}, err
	}
	i := position(entries, index)
	if i < 0 {
		return Entry{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return entries[i], nil
}

// modify runs fn over the loaded entries and saves its result.
func (s *Store) modify(ctx context.Context, fn func([]Entry) ([]Entry, error)) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.b.load(ctx)
	if err != nil {
		return nil, err
	}
	out, err := fn(entries)
	if err != nil {
		return nil, err
	}
	if err := s.b.save(ctx, out); err != nil {
		return nil, fmt.Errorf("store: save %s: %w", s.b.name(), err)
	}
	s.log.Debug().Int("entries", len(out)).Str("backend", s.b.name()).Msg("saved")
	return out, nil
}

// Sync makes the store mirror the playlist file: fresh holds one session per enabled file
// entry, in file order. Known keys keep their session state, preferences and data (URL, path
// prefix and alias follow the file); unknown keys get a new entry; keys no longer in the file
// are dropped. Indexes follow file order.
func (s *Store) Sync(ctx context.Context, fresh []stalker.Session) ([]Entry, error) {
	return s.modify(ctx, func(existing []Entry) ([]Entry, error) {
		byKey := make(map[stalker.Key]Entry, len(existing))
		for _, e := range existing {
			byKey[e.Session.Key()] = e
		}
		seen := make(map[stalker.Key]bool, len(fresh))
		out := make([]Entry, 0, len(fresh))
		for _, f := range fresh {
			k := f.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			e, ok := byKey[k]
			if !ok {
				e = NewEntry(f)
			} else {
				if e.Session.URL == "" {
					e.Session.URL = f.URL
				}
				e.Session.PathPrefix = f.PathPrefix
				e.Session.Alias = f.Alias
			}
			e.Session.Index = len(out)
			out = append(out, e)
		}
		return out, nil
	})
}

// Update applies fn to the entry at index and saves. fn's error aborts without saving.
func (s *Store) Update(ctx context.Context, index int, fn func(*Entry) error) (Entry, error) {
	var updated Entry
	_, err := s.modify(ctx, func(entries []Entry) ([]Entry, error) {
		i := position(entries, index)
		if i < 0 {
			return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
		}
		if err := fn(&entries[i]); err != nil {
			return nil, err
		}
		entries[i].Session.Index = index
		updated = entries[i]
		return entries, nil
	})
	return updated, err
}

// PutSessions replaces the session of every entry whose key matches one of sessions. Sessions
// without an entry are ignored; preferences and data are untouched.
func (s *Store) PutSessions(ctx context.Context, sessions ...stalker.Session) error {
	byKey := make(map[stalker.Key]stalker.Session, len(sessions))
	for _, ss := range sessions {
		byKey[ss.Key()] = ss
	}
	_, err := s.modify(ctx, func(entries []Entry) ([]Entry, error) {
		for i := range entries {
			if ss, ok := byKey[entries[i].Session.Key()]; ok {
				ss.Index = entries[i].Session.Index
				entries[i].Session = ss
			}
		}
		return entries, nil
	})
	return err
}

// Delete removes the entry with key and renumbers the rest.
func (s *Store) Delete(ctx context.Context, key stalker.Key) (Entry, error) {
	var removed Entry
	_, err := s.modify(ctx, func(entries []Entry) ([]Entry, error) {
		out := entries[:0]
		found := false
		for _, e := range entries {
			if !found && e.Session.Key() == key {
				removed = e
				found = true
				continue
			}
			out = append(out, e)
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return reindex(out), nil
	})
	return removed, err
}

// PruneInvalid removes every entry whose session is not valid and returns them.
func (s *Store) PruneInvalid(ctx context.Context) ([]Entry, error) {
	var removed []Entry
	_, err := s.modify(ctx, func(entries []Entry) ([]Entry, error) {
		out := entries[:0]
		for _, e := range entries {
			if e.Session.Valid {
				out = append(out, e)
			} else {
				removed = append(removed, e)
			}
		}
		return reindex(out), nil
	})
	return removed, err
}

func position(entries []Entry, index int) int {
	for i, e := range entries {
		if e.Session.Index == index {
			return i
		}
	}
	return -1
}

func reindex(entries []Entry) []Entry {
	for i := range entries {
		entries[i].Session.Index = i
	}
	return entries
}
