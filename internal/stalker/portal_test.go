package stalker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/snapetech/stalkerkit/internal/discovery"
	"github.com/snapetech/stalkerkit/internal/provider"
)

const (
	testMAC = "00:1A:79:AB:CD:EF"
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// fakePortal answers load.php-style requests, dispatching on the action query parameter.
type fakePortal struct {
	srv *httptest.Server

	mu       sync.Mutex
	calls    map[string]int
	auth     map[string][]string // action -> Authorization headers seen
	queries  map[string][]string // action -> raw queries seen
	handlers map[string]http.HandlerFunc
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	f := &fakePortal{
		calls:    map[string]int{},
		auth:     map[string][]string{},
		queries:  map[string][]string{},
		handlers: map[string]http.HandlerFunc{},
	}
	f.on("handshake", func(w http.ResponseWriter, r *http.Request) {
		writeJS(w, map[string]any{"token": "T1", "random": "R1"})
	})
	f.on("get_profile", func(w http.ResponseWriter, r *http.Request) {
		writeJS(w, map[string]any{"mac": testMAC, "id": 7, "status": 0, "blocked": "0", "play_token": "PT"})
	})
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action := r.URL.Query().Get("action")
		f.mu.Lock()
		f.calls[action]++
		f.auth[action] = append(f.auth[action], r.Header.Get("Authorization"))
		f.queries[action] = append(f.queries[action], r.URL.RawQuery)
		h := f.handlers[action]
		f.mu.Unlock()
		if h == nil {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePortal) on(action string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[action] = h
}

func (f *fakePortal) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[action]
}

func (f *fakePortal) authSeen(action string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth[action]...)
}

func (f *fakePortal) querySeen(action string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries[action]...)
}

func (f *fakePortal) portal() string { return f.srv.URL + "/portal.php" }

// session returns an authenticated session against the fake portal.
func (f *fakePortal) session() *Session {
	return &Session{
		URL:      f.srv.URL + "/c/",
		Host:     f.srv.URL,
		MAC:      testMAC,
		Portal:   f.portal(),
		Token:    "T0",
		Blocked:  "0",
		Timezone: "Europe/London",
	}
}

func (f *fakePortal) client(opts Options) *Client {
	if opts.HTTP == nil {
		opts.HTTP = f.srv.Client()
	}
	if opts.Discovery == nil {
		opts.Discovery = stubDiscovery{res: discovery.Result{Portal: f.portal(), PathPrefix: discovery.PrefixLegacy}}
	}
	if opts.Xtream == nil {
		opts.Xtream = stubXtream{}
	}
	return NewClient(opts)
}

func writeJS(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"js": v})
}

// listHandler serves total numbered items in pages of PageSize.
func listHandler(total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := strconv.Atoi(r.URL.Query().Get("p"))
		if p < 1 {
			p = 1
		}
		data := []map[string]any{}
		for i := (p - 1) * PageSize; i < min(p*PageSize, total); i++ {
			data = append(data, map[string]any{"id": strconv.Itoa(i + 1), "name": fmt.Sprintf("Item %d", i+1), "cmd": "ffrt http://localhost/ch/" + strconv.Itoa(i+1)})
		}
		writeJS(w, map[string]any{"total_items": total, "max_page_items": PageSize, "data": data})
	}
}

type stubDiscovery struct {
	res discovery.Result
	err error
}

func (d stubDiscovery) Discover(context.Context, discovery.Target) (discovery.Result, error) {
	return d.res, d.err
}

type stubXtream struct {
	info provider.UserInfo
	ok   bool
	seen *[]string
}

func (x stubXtream) UserInfo(_ context.Context, u string) (provider.UserInfo, bool) {
	if x.seen != nil {
		*x.seen = append(*x.seen, u)
	}
	return x.info, x.ok
}
