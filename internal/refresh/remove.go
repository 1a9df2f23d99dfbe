package refresh

import (
	"context"

	"github.com/snapetech/stalkerkit/internal/playlist"
	"github.com/snapetech/stalkerkit/internal/stalker"
	"github.com/snapetech/stalkerkit/internal/store"
)

// Remove drops the entry at index from the store and comments its MAC out of the playlist
// file, so the next SyncPlaylist does not bring it back.
func Remove(ctx context.Context, st *store.Store, playlistPath string, index int) (store.Entry, error) {
	e, err := st.Get(ctx, index)
	if err != nil {
		return store.Entry{}, err
	}
	removed, err := st.Delete(ctx, e.Session.Key())
	if err != nil {
		return store.Entry{}, err
	}
	if _, err := playlist.CommentOut(playlistPath, target(removed.Session)); err != nil {
		return removed, err
	}
	return removed, nil
}

// Prune removes every entry whose last refresh left it invalid, in the store and in the
// playlist file.
func Prune(ctx context.Context, st *store.Store, playlistPath string) ([]store.Entry, error) {
	removed, err := st.PruneInvalid(ctx)
	if err != nil || len(removed) == 0 {
		return removed, err
	}
	targets := make([]playlist.Target, 0, len(removed))
	for _, e := range removed {
		targets = append(targets, target(e.Session))
	}
	_, err = playlist.CommentOut(playlistPath, targets...)
	return removed, err
}

func target(s stalker.Session) playlist.Target {
	return playlist.Target{URL: s.URL, MAC: s.MAC}
}
