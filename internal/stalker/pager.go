package stalker

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/snapetech/stalkerkit/internal/catalog"
	sklog "github.com/snapetech/stalkerkit/internal/log"
)

// PageSize is the number of items a portal returns per get_ordered_list page.
const PageSize = 14

// PageState accumulates one list across page fetches. The buffer is sized once from the first
// total_items seen and never resized; page k fills [(k-1)*PageSize, min(k*PageSize, total)).
// Not safe for concurrent use.
type PageState struct {
	Page       int // 1-based page the next FetchPage fetches
	TotalItems int
	Buffer     []catalog.Item

	downloaded map[string]struct{}
	retry      RetryState
}

// NewPageState starts at page 1 with an empty buffer.
func NewPageState() *PageState {
	return &PageState{Page: 1, downloaded: make(map[string]struct{})}
}

// Downloaded reports whether u already filled its slots.
func (st *PageState) Downloaded(u string) bool {
	_, ok := st.downloaded[u]
	return ok
}

// Retry is the state of the list's reauthorize-then-retry budget, shared by every page.
func (st *PageState) Retry() RetryState { return st.retry }

// ResetRetry gives the list a fresh reauthorize budget while keeping the buffer. A state kept
// across separate browse requests is reset at the start of each one.
func (st *PageState) ResetRetry() { st.retry = RetryFresh }

// Pages is the number of pages needed to cover TotalItems.
func (st *PageState) Pages() int {
	return (st.TotalItems + PageSize - 1) / PageSize
}

var pageParam = regexp.MustCompile(`(^|[?&])p=\d+`)

// PageURL sets p=page on base, replacing an existing p= or appending one.
func PageURL(base string, page int) string {
	p := strconv.Itoa(page)
	if pageParam.MatchString(base) {
		return pageParam.ReplaceAllString(base, "${1}p="+p)
	}
	if strings.Contains(base, "?") {
		return base + "&p=" + p
	}
	return base + "?p=" + p
}

// FetchPage fetches st.Page of baseURL into st.Buffer. A URL already downloaded returns the
// buffer without a request. On no result the session is reauthorized once per PageState and the
// page retried; if that fails too, ErrServer is returned with the buffer as it stands.
func (c *Client) FetchPage(ctx context.Context, s *Session, st *PageState, baseURL string) ([]catalog.Item, error) {
	if err := requireReady(s, "get_ordered_list"); err != nil {
		return st.Buffer, err
	}
	if st.downloaded == nil {
		st.downloaded = make(map[string]struct{})
	}
	if st.Page < 1 {
		st.Page = 1
	}
	u := baseURL
	if pagedURL(baseURL) {
		u = PageURL(baseURL, st.Page)
	}
	if st.Downloaded(u) {
		return st.Buffer, nil
	}

	body, ok := withRetry(&st.retry, "get_ordered_list", func() ([]byte, bool) {
		return c.callJS(ctx, s, http.MethodPost, "get_ordered_list", u, "")
	}, func() {
		_ = c.Reauthorize(ctx, s, "page")
	})
	if !ok {
		c.log.Info().Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).Int("page", st.Page).
			Str("retry", st.retry.String()).Msg("page fetch failed")
		return st.Buffer, actionErr("get_ordered_list", s.Portal, ErrServer)
	}

	js, _ := parseJS(body)
	page := decodeList(js)
	st.TotalItems = page.TotalItems
	if len(st.Buffer) == 0 && st.TotalItems > 0 {
		st.Buffer = make([]catalog.Item, st.TotalItems)
	}
	offset := (st.Page - 1) * PageSize
	for i, it := range page.Items {
		idx := offset + i
		if i >= PageSize || idx >= len(st.Buffer) {
			break
		}
		st.Buffer[idx] = it
	}
	if len(page.Items) > 0 {
		st.downloaded[u] = struct{}{}
	}
	return st.Buffer, nil
}

// FetchAll walks every page of baseURL, stopping at the first failure.
func (c *Client) FetchAll(ctx context.Context, s *Session, st *PageState, baseURL string) ([]catalog.Item, error) {
	st.Page = 1
	if _, err := c.FetchPage(ctx, s, st, baseURL); err != nil {
		return st.Buffer, err
	}
	for p := 2; p <= st.Pages(); p++ {
		if err := ctx.Err(); err != nil {
			return st.Buffer, err
		}
		st.Page = p
		if _, err := c.FetchPage(ctx, s, st, baseURL); err != nil {
			return st.Buffer, err
		}
	}
	return st.Buffer, nil
}

// FetchList fetches an unpaged list (search, all channels) in one request with its own retry.
func (c *Client) FetchList(ctx context.Context, s *Session, listURL string) ([]catalog.Item, error) {
	if err := requireReady(s, "get_list"); err != nil {
		return nil, err
	}
	var state RetryState
	body, ok := withRetry(&state, "get_list", func() ([]byte, bool) {
		return c.callJS(ctx, s, http.MethodPost, "get_list", listURL, "")
	}, func() {
		_ = c.Reauthorize(ctx, s, "list")
	})
	if !ok {
		return nil, actionErr("get_list", s.Portal, ErrServer)
	}
	js, _ := parseJS(body)
	return decodeList(js).Items, nil
}
