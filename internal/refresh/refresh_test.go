package refresh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/snapetech/stalkerkit/internal/stalker"
	"github.com/snapetech/stalkerkit/internal/store"
)

// fakeRefresher marks sessions by domain: "dead.*" fails discovery, "blocked.*" is blocked,
// anything else comes back active.
type fakeRefresher struct {
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

var errDead = errors.New("no portal")

func (f *fakeRefresher) Refresh(ctx context.Context, s *stalker.Session) error {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)

	switch {
	case strings.HasPrefix(s.Domain, "dead."):
		s.Valid, s.Token = false, ""
		return errDead
	case strings.HasPrefix(s.Domain, "blocked."):
		s.Token, s.Portal, s.Blocked, s.Valid = "T", "http://"+s.Domain+"/stalker_portal/server/load.php", "1", false
	default:
		s.Token, s.Portal, s.Valid, s.Expiry = "T", "http://"+s.Domain+"/stalker_portal/server/load.php", true, "2099-01-01"
	}
	return ctx.Err()
}

const playlistText = `http://ok1.example/c/
00:1A:79:00:00:01 # first
00:1A:79:00:00:02
http://dead.example/c/
00:1A:79:00:00:03
http://blocked.example/stalker_portal/c/
00:1A:79:00:00:04
http://ok2.example/c/
00:1A:79:00:00:05
`

func setup(t *testing.T) (*store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "e-portals.txt")
	require.NoError(t, os.WriteFile(path, []byte(playlistText), 0o644))
	st := store.NewJSON(filepath.Join(dir, "playlists.json"))
	_, err := SyncPlaylist(context.Background(), st, path)
	require.NoError(t, err)
	return st, path
}

func TestCheckAll(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st, _ := setup(t)
	f := &fakeRefresher{}
	r := NewRunner(f, st, 2)

	results, sum, err := r.CheckAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, res := range results {
		assert.Equal(t, i, res.Index, "results are in index order")
	}
	assert.LessOrEqual(t, f.peak.Load(), int32(2))
	assert.EqualValues(t, 5, f.calls.Load())

	assert.Equal(t, stalker.LabelActive, results[0].Label)
	assert.Equal(t, stalker.LabelNotActive, results[2].Label)
	require.ErrorIs(t, results[2].Err, errDead)
	assert.Equal(t, stalker.LabelNotActive, results[3].Label)

	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 3, sum.Counts[stalker.LabelActive])
	assert.Equal(t, 2, sum.Counts[stalker.LabelNotActive])
	assert.Equal(t, []stalker.Label{stalker.LabelActive, stalker.LabelNotActive}, SortedLabels(sum.Counts))

	entries, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T", entries[0].Session.Token, "sessions persisted")
	assert.Equal(t, "first", entries[0].Session.Alias)
	assert.False(t, entries[2].Session.Valid)
}

func TestCheckAll_empty(t *testing.T) {
	st := store.NewJSON(filepath.Join(t.TempDir(), "playlists.json"))
	results, sum, err := NewRunner(&fakeRefresher{}, st, 4).CheckAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, sum.Total)
}

func TestCheckOne(t *testing.T) {
	st, _ := setup(t)
	f := &fakeRefresher{}
	res, err := NewRunner(f, st, 4).CheckOne(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, stalker.LabelActive, res.Label)
	assert.EqualValues(t, 1, f.calls.Load())

	e, err := st.Get(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "ok2.example", e.Session.Domain)
	assert.Equal(t, "T", e.Session.Token)

	_, err = NewRunner(f, st, 4).CheckOne(context.Background(), 99)
	require.ErrorIs(t, err, store.ErrNotFound)
}

// A CheckOne racing a CheckAll must not lose either write.
func TestCheckOne_concurrentWithCheckAll(t *testing.T) {
	st, _ := setup(t)
	r := NewRunner(&fakeRefresher{}, st, 3)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, err := r.CheckAll(context.Background())
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := st.Update(context.Background(), 1, func(e *store.Entry) error {
			e.Player.ShowAdult = true
			return nil
		})
		assert.NoError(t, err)
	}()
	wg.Wait()

	e, err := st.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, e.Player.ShowAdult)
	assert.Equal(t, "T", e.Session.Token)
}

func TestSyncPlaylist(t *testing.T) {
	st, path := setup(t)
	require.NoError(t, os.WriteFile(path, []byte("http://ok2.example/c/\n00:1A:79:00:00:05\n"), 0o644))
	entries, err := SyncPlaylist(context.Background(), st, path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Session.Index)
	assert.Equal(t, "/c/", entries[0].Session.PathPrefix)
}
