// Package refresh keeps the store in step with the playlist file and re-runs the portal connect
// sequence for stored sessions, one or all at a time.
package refresh

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	sklog "github.com/snapetech/stalkerkit/internal/log"
	"github.com/snapetech/stalkerkit/internal/playlist"
	"github.com/snapetech/stalkerkit/internal/stalker"
	"github.com/snapetech/stalkerkit/internal/store"
)

// Refresher runs the connect sequence for one session. *stalker.Client implements it.
type Refresher interface {
	Refresh(ctx context.Context, s *stalker.Session) error
}

// Result is the outcome for one playlist entry.
type Result struct {
	Index   int             `json:"index"`
	Session stalker.Session `json:"session"`
	Label   stalker.Label   `json:"label"`
	Err     error           `json:"-"`
}

// Summary counts a check-all run by status label.
type Summary struct {
	RunID  string                `json:"run_id"`
	Total  int                   `json:"total"`
	Counts map[stalker.Label]int `json:"counts"`
	Errors int                   `json:"errors"`
	Took   time.Duration         `json:"took"`
}

// Runner refreshes stored sessions.
type Runner struct {
	client  Refresher
	store   *store.Store
	workers int
	now     func() time.Time
	log     zerolog.Logger
}

// NewRunner returns a Runner that fans out to at most workers sessions at a time (min 1).
func NewRunner(client Refresher, st *store.Store, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{client: client, store: st, workers: workers, now: time.Now, log: sklog.WithComponent("refresh")}
}

// SyncPlaylist makes the store mirror the enabled entries of the playlist file at path.
func SyncPlaylist(ctx context.Context, st *store.Store, path string) ([]store.Entry, error) {
	entries, err := playlist.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playlist %s: %w", path, err)
	}
	fresh := make([]stalker.Session, 0, len(entries))
	for _, e := range entries {
		fresh = append(fresh, e.Session())
	}
	return st.Sync(ctx, fresh)
}

// CheckOne refreshes the entry at index and persists it. Protocol failures are reported in the
// Result (and its Err), not as the returned error, which is reserved for store failures.
func (r *Runner) CheckOne(ctx context.Context, index int) (Result, error) {
	e, err := r.store.Get(ctx, index)
	if err != nil {
		return Result{}, err
	}
	res := r.refresh(ctx, e.Session)
	if err := r.store.PutSessions(ctx, res.Session); err != nil {
		return res, err
	}
	return res, nil
}

// CheckAll refreshes every stored entry concurrently, persists all sessions in one write and
// returns results in index order.
func (r *Runner) CheckAll(ctx context.Context) ([]Result, Summary, error) {
	runID := uuid.NewString()
	start := r.now()
	logger := r.log.With().Str(sklog.FieldRunID, runID).Logger()

	entries, err := r.store.Load(ctx)
	if err != nil {
		return nil, Summary{}, err
	}
	workers := min(len(entries), r.workers)
	logger.Info().Int("entries", len(entries)).Int("workers", workers).Msg("check all started")

	results := make([]Result, len(entries))
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, e := range entries {
		g.Go(func() error {
			results[i] = r.refresh(ctx, e.Session)
			return nil
		})
	}
	_ = g.Wait()

	sessions := make([]stalker.Session, len(results))
	for i, res := range results {
		sessions[i] = res.Session
	}
	if err := r.store.PutSessions(ctx, sessions...); err != nil {
		return results, Summary{}, err
	}

	sum := Summary{RunID: runID, Total: len(results), Counts: map[stalker.Label]int{}, Took: r.now().Sub(start)}
	for _, res := range results {
		sum.Counts[res.Label]++
		if res.Err != nil {
			sum.Errors++
		}
	}
	recordRun(sum)
	logger.Info().Int("total", sum.Total).Int("errors", sum.Errors).Interface("counts", sum.Counts).
		Dur("took", sum.Took).Msg("check all finished")
	return results, sum, nil
}

func (r *Runner) refresh(ctx context.Context, s stalker.Session) Result {
	err := r.client.Refresh(ctx, &s)
	if err != nil {
		r.log.Debug().Err(err).Int(sklog.FieldIndex, s.Index).Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).Msg("refresh incomplete")
	}
	return Result{Index: s.Index, Session: s, Label: s.StatusLabel(r.now()), Err: err}
}

// SortedLabels returns the labels of counts in a stable order for display.
func SortedLabels(counts map[stalker.Label]int) []stalker.Label {
	out := make([]stalker.Label, 0, len(counts))
	for l := range counts {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
