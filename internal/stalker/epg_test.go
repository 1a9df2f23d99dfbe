package stalker

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortEPG_retries503AndCaches(t *testing.T) {
	epgRetryDelay = 10 * time.Millisecond
	t.Cleanup(func() { epgRetryDelay = time.Second })

	f := newFakePortal(t)
	var n atomic.Int32
	f.on("get_short_epg", func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJS(w, []map[string]any{
			{"name": "Morning News", "descr": "Headlines", "t_time": "06:00", "t_time_to": "07:00", "start_timestamp": 1700000000},
			{"name": "Weather", "t_time": "07:00", "t_time_to": "07:15", "start_timestamp": "1700003600"},
		})
	})
	c := f.client(Options{})
	s := f.session()

	entries, err := c.ShortEPG(context.Background(), s, "42")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Morning News", entries[0].Name)
	assert.Equal(t, "1700003600", string(entries[1].StartUnix))
	assert.Equal(t, 2, f.count("get_short_epg"))

	_, err = c.ShortEPG(context.Background(), s, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("get_short_epg"), "second lookup is cached")
}

func TestShortEPG_otherErrorsNotRetried(t *testing.T) {
	f := newFakePortal(t)
	f.on("get_short_epg", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := f.client(Options{})
	_, err := c.ShortEPG(context.Background(), f.session(), "1")
	require.ErrorIs(t, err, ErrServer)
	assert.Equal(t, 1, f.count("get_short_epg"))
}

func TestShortEPGs(t *testing.T) {
	f := newFakePortal(t)
	f.on("get_short_epg", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ch_id") == "bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJS(w, []map[string]any{{"name": "Show " + r.URL.Query().Get("ch_id")}})
	})
	c := f.client(Options{})
	got, err := c.ShortEPGs(context.Background(), f.session(), []string{"1", "2", "bad", "3"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "Show 2", got["2"][0].Name)
	assert.NotContains(t, got, "bad")
}
