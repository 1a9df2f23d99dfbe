package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/snapetech/stalkerkit/internal/catalog"
	"github.com/snapetech/stalkerkit/internal/httpclient"
)

// chromeUA is sent to player_api.php; some panels reject set-top-box agents there.
const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultXtreamTimeout bounds one player_api.php call.
const DefaultXtreamTimeout = 5 * time.Second

// UserInfo is the user_info block of a player_api.php response. Numeric fields arrive as
// strings or numbers depending on the panel.
type UserInfo struct {
	Auth           catalog.Text `json:"auth"`
	Status         catalog.Text `json:"status"`
	ExpDate        catalog.Text `json:"exp_date"`
	ActiveCons     catalog.Text `json:"active_cons"`
	MaxConnections catalog.Text `json:"max_connections"`
}

// Active reports auth == 1 and status "Active".
func (u UserInfo) Active() bool {
	return u.Auth.Int(0) == 1 && string(u.Status) == "Active"
}

// Expires returns exp_date as a UTC time; ok is false when missing or zero (no expiry).
func (u UserInfo) Expires() (time.Time, bool) {
	n := u.ExpDate.Int(0)
	if n <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(n), 0).UTC(), true
}

type playerAPIResponse struct {
	UserInfo *UserInfo `json:"user_info"`
}

// XtreamClient queries Xtream Codes panels discovered behind Stalker portals.
type XtreamClient struct {
	HTTP *http.Client // nil = httpclient.WithTimeout(DefaultXtreamTimeout)
}

// UserInfo fetches playerAPIURL (player_api.php?username=&password=) and returns its user_info.
// A connection error is retried once; any other failure is ok == false.
func (x *XtreamClient) UserInfo(ctx context.Context, playerAPIURL string) (UserInfo, bool) {
	client := x.HTTP
	if client == nil {
		client = httpclient.WithTimeout(DefaultXtreamTimeout)
	}
	resp, err := httpclient.DoWithRetry(ctx, client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, playerAPIURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", chromeUA)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, httpclient.RetryPolicy{RetryNetErr: true})
	if err != nil {
		return UserInfo{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, false
	}
	body, err := httpclient.DecodeBody(resp)
	if err != nil {
		return UserInfo{}, false
	}
	var r playerAPIResponse
	if err := json.Unmarshal(body, &r); err != nil || r.UserInfo == nil {
		return UserInfo{}, false
	}
	return *r.UserInfo, true
}
