package stalker

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/stalkerkit/internal/catalog"
)

func TestPageURL(t *testing.T) {
	tests := []struct {
		base string
		page int
		want string
	}{
		{"http://h/p.php?type=itv&p=1&JsHttpRequest=1-xml", 3, "http://h/p.php?type=itv&p=3&JsHttpRequest=1-xml"},
		{"http://h/p.php?p=12", 2, "http://h/p.php?p=2"},
		{"http://h/p.php?type=itv", 2, "http://h/p.php?type=itv&p=2"},
		{"http://h/p.php", 4, "http://h/p.php?p=4"},
		// hp= is not p=
		{"http://h/p.php?hp=1", 2, "http://h/p.php?hp=1&p=2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PageURL(tt.base, tt.page), tt.base)
	}
}

func TestFetchPage_twentyItemsTwoPages(t *testing.T) {
	f := newFakePortal(t)
	f.on("get_ordered_list", listHandler(20))
	c := f.client(Options{})
	s := f.session()
	st := NewPageState()
	base := CategoryListURL(s.Portal, catalog.KindLive, "5", SortNumber)
	ctx := context.Background()

	buf, err := c.FetchPage(ctx, s, st, base)
	require.NoError(t, err)
	require.Len(t, buf, 20)
	assert.Equal(t, catalog.Text("1"), buf[0].ID)
	assert.Equal(t, catalog.Text("14"), buf[13].ID)
	for i := 14; i < 20; i++ {
		assert.True(t, buf[i].IsPlaceholder(), "slot %d filled before its page", i)
	}
	assert.Equal(t, 2, st.Pages())

	st.Page = 2
	buf, err = c.FetchPage(ctx, s, st, base)
	require.NoError(t, err)
	require.Len(t, buf, 20)
	assert.Equal(t, catalog.Text("15"), buf[14].ID)
	assert.Equal(t, catalog.Text("20"), buf[19].ID)
	assert.Equal(t, 2, f.count("get_ordered_list"))

	// Both pages are downloaded: no further requests.
	st.Page = 1
	again, err := c.FetchPage(ctx, s, st, base)
	require.NoError(t, err)
	assert.Equal(t, buf, again)
	assert.Equal(t, 2, f.count("get_ordered_list"))
	assert.Equal(t, RetryFresh, st.Retry())
}

func TestFetchPage_emptyPageNotMarked(t *testing.T) {
	f := newFakePortal(t)
	f.on("get_ordered_list", func(w http.ResponseWriter, r *http.Request) {
		writeJS(w, map[string]any{"total_items": "0", "data": []any{}})
	})
	c := f.client(Options{})
	s := f.session()
	st := NewPageState()
	base := CategoryListURL(s.Portal, catalog.KindVOD, "3", SortName)

	buf, err := c.FetchPage(context.Background(), s, st, base)
	require.NoError(t, err)
	assert.Empty(t, buf)
	assert.False(t, st.Downloaded(PageURL(base, 1)))
	_, _ = c.FetchPage(context.Background(), s, st, base)
	assert.Equal(t, 2, f.count("get_ordered_list"))
}

func TestFetchPage_retryOnceThenRecover(t *testing.T) {
	f := newFakePortal(t)
	var n atomic.Int32
	ok := listHandler(20)
	f.on("get_ordered_list", func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ok(w, r)
	})
	f.on("handshake", func(w http.ResponseWriter, r *http.Request) {
		writeJS(w, map[string]any{"token": "T2", "random": "R2"})
	})
	c := f.client(Options{})
	s := f.session()
	st := NewPageState()

	buf, err := c.FetchPage(context.Background(), s, st, CategoryListURL(s.Portal, catalog.KindLive, "1", SortNumber))
	require.NoError(t, err)
	assert.Len(t, buf, 20)
	assert.Equal(t, 1, f.count("handshake"))
	assert.Equal(t, 2, f.count("get_ordered_list"))
	assert.Equal(t, RetryRetrying, st.Retry())
	assert.Equal(t, "T2", s.Token)
	assert.Equal(t, []string{"Bearer T0", "Bearer T2"}, f.authSeen("get_ordered_list"))
}

func TestFetchPage_persistentFailureKeepsPartialBuffer(t *testing.T) {
	f := newFakePortal(t)
	var fail atomic.Bool
	ok := listHandler(20)
	f.on("get_ordered_list", func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		ok(w, r)
	})
	c := f.client(Options{})
	s := f.session()
	st := NewPageState()
	base := CategoryListURL(s.Portal, catalog.KindLive, "1", SortNumber)

	_, err := c.FetchPage(context.Background(), s, st, base)
	require.NoError(t, err)

	fail.Store(true)
	st.Page = 2
	buf, err := c.FetchPage(context.Background(), s, st, base)
	require.ErrorIs(t, err, ErrServer)
	assert.Equal(t, "Server error or invalid link.", ErrServer.Error())
	require.Len(t, buf, 20)
	assert.Equal(t, catalog.Text("14"), buf[13].ID)
	assert.True(t, buf[14].IsPlaceholder())
	assert.Equal(t, 1, f.count("handshake"), "exactly one reauthorization")
	assert.Equal(t, 3, f.count("get_ordered_list"))
	assert.Equal(t, RetryFailed, st.Retry())

	// Budget is spent for the lifetime of the state: no further reauth.
	_, err = c.FetchPage(context.Background(), s, st, base)
	require.ErrorIs(t, err, ErrServer)
	assert.Equal(t, 1, f.count("handshake"))

	// A reset budget reauthorizes again and keeps the downloaded page.
	st.ResetRetry()
	fail.Store(false)
	buf, err = c.FetchPage(context.Background(), s, st, base)
	require.NoError(t, err)
	assert.Equal(t, catalog.Text("14"), buf[13].ID)
	assert.Equal(t, catalog.Text("15"), buf[14].ID)
	assert.Equal(t, RetryFresh, st.Retry())
	assert.Equal(t, 1, f.count("handshake"), "first attempt succeeded")
}

func TestFetchPage_requiresSession(t *testing.T) {
	f := newFakePortal(t)
	c := f.client(Options{})
	s := f.session()
	s.Token = ""
	_, err := c.FetchPage(context.Background(), s, NewPageState(), CategoryListURL(s.Portal, catalog.KindLive, "1", ""))
	require.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, f.count("get_ordered_list"))
}

func TestFetchAll(t *testing.T) {
	f := newFakePortal(t)
	f.on("get_ordered_list", listHandler(30))
	c := f.client(Options{})
	s := f.session()
	buf, err := c.FetchAll(context.Background(), s, NewPageState(), CategoryListURL(s.Portal, catalog.KindSeries, "9", SortAdded))
	require.NoError(t, err)
	require.Len(t, buf, 30)
	assert.Equal(t, catalog.Text("30"), buf[29].ID)
	assert.Equal(t, 3, f.count("get_ordered_list"))
}

func TestFetchList_bypassesPaging(t *testing.T) {
	f := newFakePortal(t)
	f.on("get_all_channels", func(w http.ResponseWriter, r *http.Request) {
		writeJS(w, map[string]any{"total_items": 3, "data": []map[string]any{
			{"id": "1", "name": "News"}, {"id": "2", "name": "Sport 1"}, {"id": "3", "name": "Sport 2"},
		}})
	})
	c := f.client(Options{})
	s := f.session()
	items, err := c.FetchList(context.Background(), s, AllChannelsURL(s.Portal))
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Len(t, catalog.FilterByName(items, "sport"), 2)
	assert.NotContains(t, f.querySeen("get_all_channels")[0], "p=")
}
