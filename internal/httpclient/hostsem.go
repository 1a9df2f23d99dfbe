package httpclient

import (
	"context"
	"sync"

	"github.com/snapetech/stalkerkit/internal/safeurl"
)

// HostSemaphore caps in-flight requests per upstream host. Check-all runs many playlists in
// parallel and several of them usually share one portal host.
//
//	release, err := sem.Acquire(ctx, portalURL)
//	if err != nil { ... }
//	defer release()
type HostSemaphore struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

func NewHostSemaphore(concurrency int) *HostSemaphore {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HostSemaphore{
		sems:  make(map[string]chan struct{}),
		limit: concurrency,
	}
}

// Acquire blocks until a slot for host is free or ctx is done.
// host may be any URL; only scheme+host is used as the key.
func (h *HostSemaphore) Acquire(ctx context.Context, host string) (func(), error) {
	sem := h.semFor(host)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HostSemaphore) semFor(host string) chan struct{} {
	if origin := safeurl.Host(host); origin != "" {
		host = origin
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sems[host]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[host] = s
	}
	return s
}
