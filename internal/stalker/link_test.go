package stalker

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/stalkerkit/internal/catalog"
)

func TestNeedsResolution(t *testing.T) {
	tests := []struct {
		cmd  string
		want bool
	}{
		{"ffrt http://localhost/ch/1", true},
		{"ffmpeg http:///ch/1", true},
		{"/media/12345.mpg", true},
		{"eyJ0eXBlIjoibW92aWUifQ==", true},
		{"ffmpeg http://cdn.example/live/u/p/1.ts", false},
		{"https://cdn.example/movie/u/p/2.mkv", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsResolution(tt.cmd), tt.cmd)
	}
}

func TestResolveLink_directURL(t *testing.T) {
	f := newFakePortal(t)
	c := f.client(Options{})
	got, err := c.ResolveLink(context.Background(), f.session(), LinkRequest{Kind: catalog.KindLive, Cmd: "ffmpeg http://cdn.example/live/1.ts"})
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example/live/1.ts", got)
	assert.Zero(t, f.count("create_link"))
}

func TestResolveLink_live(t *testing.T) {
	f := newFakePortal(t)
	f.on("create_link", func(w http.ResponseWriter, r *http.Request) {
		writeJS(w, map[string]any{"cmd": "ffmpeg  http://cdn.example/live/play.ts?token=abc", "id": 1})
	})
	c := f.client(Options{})
	got, err := c.ResolveLink(context.Background(), f.session(), LinkRequest{Kind: catalog.KindLive, Cmd: "ffrt http://localhost/ch/1 extra"})
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example/live/play.ts?token=abc", got)

	q, _ := url.ParseQuery(f.querySeen("create_link")[0])
	assert.Equal(t, "itv", q.Get("type"))
	assert.Equal(t, "ffrt http://localhost/ch/1 extra", q.Get("cmd"))
	assert.Equal(t, "0", q.Get("series"))
}

func TestResolveLink_retryOnceWithFreshToken(t *testing.T) {
	f := newFakePortal(t)
	var n atomic.Int32
	f.on("create_link", func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeJS(w, map[string]any{"cmd": "http://cdn.example/vod/1.mkv"})
	})
	f.on("handshake", func(w http.ResponseWriter, r *http.Request) {
		writeJS(w, map[string]any{"token": "T2"})
	})
	c := f.client(Options{})
	s := f.session()
	got, err := c.ResolveLink(context.Background(), s, LinkRequest{Kind: catalog.KindVOD, Cmd: "eyJpZCI6MX0="})
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example/vod/1.mkv", got)
	assert.Equal(t, []string{"Bearer T0", "Bearer T2"}, f.authSeen("create_link"))

	// Each resolution has its own budget.
	n.Store(0)
	_, err = c.ResolveLink(context.Background(), s, LinkRequest{Kind: catalog.KindVOD, Cmd: "eyJpZCI6Mn0="})
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("handshake"))
}

func TestResolveLink_failure(t *testing.T) {
	f := newFakePortal(t)
	f.on("create_link", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := f.client(Options{})
	_, err := c.ResolveLink(context.Background(), f.session(), LinkRequest{Kind: catalog.KindLive, Cmd: "ffrt http://localhost/ch/1"})
	require.ErrorIs(t, err, ErrServer)
	assert.Equal(t, 2, f.count("create_link"))
	assert.Equal(t, 1, f.count("handshake"))
}

func TestResolveLink_emptyCmd(t *testing.T) {
	f := newFakePortal(t)
	f.on("create_link", func(w http.ResponseWriter, r *http.Request) {
		writeJS(w, map[string]any{"cmd": ""})
	})
	c := f.client(Options{})
	_, err := c.ResolveLink(context.Background(), f.session(), LinkRequest{Kind: catalog.KindLive, Cmd: "ffrt http://localhost/ch/1"})
	require.ErrorIs(t, err, ErrNoLink)
}

func TestResolveLink_mediaRewriteAndEpisode(t *testing.T) {
	f := newFakePortal(t)
	f.on("get_ordered_list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "77", r.URL.Query().Get("movie_id"))
		writeJS(w, map[string]any{"data": []map[string]any{{"id": "9001"}}})
	})
	f.on("create_link", func(w http.ResponseWriter, r *http.Request) {
		writeJS(w, map[string]any{"cmd": "ffmpeg http://cdn.example/file.mkv"})
	})
	c := f.client(Options{})
	_, err := c.ResolveLink(context.Background(), f.session(), LinkRequest{
		Kind: catalog.KindSeries, Cmd: "/media/show.s01e02.mkv", StreamID: "77", Episode: "2",
	})
	require.NoError(t, err)
	q, _ := url.ParseQuery(f.querySeen("create_link")[0])
	assert.Equal(t, "vod", q.Get("type"))
	assert.Equal(t, "/media/file_9001.mkv", q.Get("cmd"))
	assert.Equal(t, "2", q.Get("series"))
}

func TestResolveLink_requiresSession(t *testing.T) {
	f := newFakePortal(t)
	c := f.client(Options{})
	s := f.session()
	s.Portal = ""
	_, err := c.ResolveLink(context.Background(), s, LinkRequest{Cmd: "ffrt http://localhost/ch/1"})
	require.ErrorIs(t, err, ErrNoSession)
}
