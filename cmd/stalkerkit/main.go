// Command stalkerkit: check and browse Stalker/Ministra portals listed in e-portals.txt.
//
//	check       Refresh one (-index) or every playlist and print status, expiry, connections
//	list        Print stored playlists without touching the network
//	categories  Print live / VOD / series categories of a playlist
//	page        Print one page of a category list
//	seasons     Print the seasons of a series
//	search      Search VOD or series by name
//	channels    Print all live channels, optionally filtered by name
//	link        Resolve a cmd to a playable URL
//	epg         Print short EPG for one or more channel ids
//	delete      Comment a MAC out of the playlist file and drop it from the store
//	prune       Delete every playlist whose last check left it invalid
//	probe       Report reachability of every portal host (ok / cloudflare / bad_status / timeout / error)
//	serve       HTTP API and /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/snapetech/stalkerkit/internal/api"
	"github.com/snapetech/stalkerkit/internal/catalog"
	"github.com/snapetech/stalkerkit/internal/config"
	"github.com/snapetech/stalkerkit/internal/health"
	"github.com/snapetech/stalkerkit/internal/refresh"
	"github.com/snapetech/stalkerkit/internal/stalker"
)

const usage = `Usage: stalkerkit <command> [flags]
  check       Refresh playlists (-index N for one) and print their status
  list        Print stored playlists
  categories  -index N
  page        -index N -type itv|vod|series -category ID [-page P] [-sort number|name|added]
  seasons     -index N -series ID
  search      -index N -type vod|series -q TEXT
  channels    -index N [-q TEXT]
  link        -index N -type itv|vod|series -cmd CMD [-stream-id ID] [-episode E]
  epg         -index N -ch ID[,ID...]
  delete      -index N
  prune       Remove every invalid playlist
  probe       Reachability of every portal host
  serve       [-addr :8089] HTTP API + /metrics
Every command accepts -config path/to/stalkerkit.yaml (default: STALKERKIT_CONFIG).
`

// command is one subcommand: its flags and what it does once config is loaded.
type command struct {
	fs  *flag.FlagSet
	run func(ctx context.Context, a *app) error
}

func main() {
	_ = config.LoadEnvFile(".env")
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmds := commands()
	cmd, ok := cmds[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
	configPath := cmd.fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML config file")
	_ = cmd.fs.Parse(os.Args[2:])
	if *configPath != "" {
		if err := config.LoadFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	a, err := newApp(config.Load())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.run(ctx, a); err != nil {
		a.log.Error().Err(err).Str("command", os.Args[1]).Msg("command failed")
		stop()
		a.Close()
		os.Exit(1)
	}
}

func commands() map[string]command {
	out := map[string]command{}
	add := func(name string, setup func(fs *flag.FlagSet) func(context.Context, *app) error) {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		out[name] = command{fs: fs, run: setup(fs)}
	}

	add("check", func(fs *flag.FlagSet) func(context.Context, *app) error {
		index := fs.Int("index", -1, "Playlist index (default: all)")
		return func(ctx context.Context, a *app) error {
			if _, err := a.sync(ctx); err != nil {
				return err
			}
			if *index >= 0 {
				res, err := a.runner.CheckOne(ctx, *index)
				if err != nil {
					return err
				}
				printSessions(os.Stdout, []stalker.Session{res.Session}, time.Now())
				if res.Err != nil {
					fmt.Fprintf(os.Stdout, "stopped early: %v\n", res.Err)
				}
				return nil
			}
			results, sum, err := a.runner.CheckAll(ctx)
			if err != nil {
				return err
			}
			sessions := make([]stalker.Session, len(results))
			for i, r := range results {
				sessions[i] = r.Session
			}
			printSessions(os.Stdout, sessions, time.Now())
			printSummary(os.Stdout, sum)
			return nil
		}
	})

	add("list", func(fs *flag.FlagSet) func(context.Context, *app) error {
		return func(ctx context.Context, a *app) error {
			entries, err := a.sync(ctx)
			if err != nil {
				return err
			}
			printSessions(os.Stdout, entrySessions(entries), time.Now())
			return nil
		}
	})

	add("categories", func(fs *flag.FlagSet) func(context.Context, *app) error {
		index := fs.Int("index", 0, "Playlist index")
		return func(ctx context.Context, a *app) error {
			var cats stalker.Categories
			err := a.withSession(ctx, *index, func(s *stalker.Session) error {
				var err error
				cats, err = a.client.Categories(ctx, s)
				return err
			})
			if err != nil {
				return err
			}
			printCategories(os.Stdout, cats)
			return nil
		}
	})

	add("page", func(fs *flag.FlagSet) func(context.Context, *app) error {
		index := fs.Int("index", 0, "Playlist index")
		kind := fs.String("type", "itv", "itv | vod | series")
		category := fs.String("category", "", "Category id (required)")
		page := fs.Int("page", 1, "Page number, 1-based")
		sortBy := fs.String("sort", "number", "number | name | added")
		return func(ctx context.Context, a *app) error {
			k, err := parseKind(*kind)
			if err != nil {
				return err
			}
			if *category == "" {
				return errors.New("page: -category is required")
			}
			st := stalker.NewPageState()
			st.Page = max(*page, 1)
			var items []catalog.Item
			err = a.withSession(ctx, *index, func(s *stalker.Session) error {
				buf, err := a.client.FetchPage(ctx, s, st, stalker.CategoryListURL(s.Portal, k, *category, stalker.ParseSortOrder(*sortBy)))
				lo := min((st.Page-1)*stalker.PageSize, len(buf))
				items = buf[lo:min(lo+stalker.PageSize, len(buf))]
				return err
			})
			printItems(os.Stdout, items)
			fmt.Fprintf(os.Stdout, "page %d of %d (%d items)\n", st.Page, st.Pages(), st.TotalItems)
			return err
		}
	})

	add("seasons", func(fs *flag.FlagSet) func(context.Context, *app) error {
		index := fs.Int("index", 0, "Playlist index")
		series := fs.String("series", "", "Series id (required)")
		return func(ctx context.Context, a *app) error {
			if *series == "" {
				return errors.New("seasons: -series is required")
			}
			var items []catalog.Item
			err := a.withSession(ctx, *index, func(s *stalker.Session) error {
				var err error
				items, err = a.client.FetchAll(ctx, s, stalker.NewPageState(), stalker.SeasonsURL(s.Portal, *series))
				return err
			})
			printItems(os.Stdout, items)
			return err
		}
	})

	add("search", func(fs *flag.FlagSet) func(context.Context, *app) error {
		index := fs.Int("index", 0, "Playlist index")
		kind := fs.String("type", "vod", "vod | series")
		q := fs.String("q", "", "Search text (required)")
		return func(ctx context.Context, a *app) error {
			k, err := parseKind(*kind)
			if err != nil {
				return err
			}
			if strings.TrimSpace(*q) == "" {
				return errors.New("search: -q is required")
			}
			var items []catalog.Item
			err = a.withSession(ctx, *index, func(s *stalker.Session) error {
				var err error
				items, err = a.client.FetchList(ctx, s, stalker.SearchURL(s.Portal, k, *q))
				return err
			})
			if err != nil {
				return err
			}
			printItems(os.Stdout, items)
			return nil
		}
	})

	add("channels", func(fs *flag.FlagSet) func(context.Context, *app) error {
		index := fs.Int("index", 0, "Playlist index")
		q := fs.String("q", "", "Only channels whose name contains this")
		return func(ctx context.Context, a *app) error {
			var items []catalog.Item
			err := a.withSession(ctx, *index, func(s *stalker.Session) error {
				var err error
				items, err = a.client.FetchList(ctx, s, stalker.AllChannelsURL(s.Portal))
				return err
			})
			if err != nil {
				return err
			}
			printItems(os.Stdout, catalog.FilterByName(items, *q))
			return nil
		}
	})

	add("link", func(fs *flag.FlagSet) func(context.Context, *app) error {
		index := fs.Int("index", 0, "Playlist index")
		kind := fs.String("type", "itv", "itv | vod | series")
		cmd := fs.String("cmd", "", "Item cmd as listed (required)")
		streamID := fs.String("stream-id", "", "Item id, for /media/ commands")
		episode := fs.String("episode", "", "Episode number (series)")
		return func(ctx context.Context, a *app) error {
			k, err := parseKind(*kind)
			if err != nil {
				return err
			}
			if *cmd == "" {
				return errors.New("link: -cmd is required")
			}
			return a.withSession(ctx, *index, func(s *stalker.Session) error {
				u, err := a.client.ResolveLink(ctx, s, stalker.LinkRequest{Kind: k, Cmd: *cmd, StreamID: *streamID, Episode: *episode})
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, u)
				return nil
			})
		}
	})

	add("epg", func(fs *flag.FlagSet) func(context.Context, *app) error {
		index := fs.Int("index", 0, "Playlist index")
		ch := fs.String("ch", "", "Channel id(s), comma separated (required)")
		return func(ctx context.Context, a *app) error {
			var ids []string
			for _, id := range strings.Split(*ch, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
			if len(ids) == 0 {
				return errors.New("epg: -ch is required")
			}
			return a.withSession(ctx, *index, func(s *stalker.Session) error {
				epg, err := a.client.ShortEPGs(ctx, s, ids)
				if err != nil {
					return err
				}
				printEPG(os.Stdout, epg)
				return nil
			})
		}
	})

	add("delete", func(fs *flag.FlagSet) func(context.Context, *app) error {
		index := fs.Int("index", -1, "Playlist index (required)")
		return func(ctx context.Context, a *app) error {
			if *index < 0 {
				return errors.New("delete: -index is required")
			}
			removed, err := refresh.Remove(ctx, a.store, a.cfg.PlaylistFile, *index)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "deleted %s %s\n", removed.Session.Domain, removed.Session.MAC)
			return nil
		}
	})

	add("prune", func(fs *flag.FlagSet) func(context.Context, *app) error {
		return func(ctx context.Context, a *app) error {
			removed, err := refresh.Prune(ctx, a.store, a.cfg.PlaylistFile)
			if err != nil {
				return err
			}
			for _, e := range removed {
				fmt.Fprintf(os.Stdout, "deleted %s %s\n", e.Session.Domain, e.Session.MAC)
			}
			fmt.Fprintf(os.Stdout, "%d invalid playlist(s) removed\n", len(removed))
			return nil
		}
	})

	add("probe", func(fs *flag.FlagSet) func(context.Context, *app) error {
		timeout := fs.Duration("timeout", 60*time.Second, "Overall timeout")
		return func(ctx context.Context, a *app) error {
			entries, err := a.sync(ctx)
			if err != nil {
				return err
			}
			hosts := make([]string, 0, len(entries))
			for _, e := range entries {
				hosts = append(hosts, e.Session.Host)
			}
			if len(hosts) == 0 {
				return fmt.Errorf("probe: no portals in %s", a.cfg.PlaylistFile)
			}
			ctx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()
			rep := health.CheckPortals(ctx, hosts, a.http, a.cfg.CheckWorkers)
			printProbe(os.Stdout, rep.Results)
			fmt.Fprintf(os.Stdout, "%d host(s): %v\n", len(rep.Results), rep.Counts)
			return nil
		}
	})

	add("serve", func(fs *flag.FlagSet) func(context.Context, *app) error {
		addr := fs.String("addr", "", "Listen address (default: STALKERKIT_LISTEN)")
		return func(ctx context.Context, a *app) error {
			if _, err := a.sync(ctx); err != nil {
				return err
			}
			listen := *addr
			if listen == "" {
				listen = a.cfg.ListenAddr
			}
			return serve(ctx, a, listen)
		}
	})
	return out
}

func parseKind(s string) (catalog.Kind, error) {
	k, ok := catalog.ParseKind(s)
	if !ok {
		return "", fmt.Errorf("unknown type %q (want itv, vod or series)", s)
	}
	return k, nil
}

func serve(ctx context.Context, a *app, addr string) error {
	s, err := api.New(api.Options{Client: a.client, Store: a.store, Runner: a.runner, PlaylistFile: a.cfg.PlaylistFile})
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.log.Info().Str("addr", addr).Msg("API listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
