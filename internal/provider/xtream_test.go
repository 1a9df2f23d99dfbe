package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snapetech/stalkerkit/internal/catalog"
)

func TestXtreamUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/player_api.php" || r.URL.Query().Get("username") != "u" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("User-Agent") != chromeUA {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_info":{"auth":1,"status":"Active","exp_date":"1767225600","active_cons":0,"max_connections":"2"},"server_info":{}}`))
	}))
	defer srv.Close()

	x := &XtreamClient{HTTP: srv.Client()}
	info, ok := x.UserInfo(context.Background(), srv.URL+"/player_api.php?username=u&password=p")
	if !ok {
		t.Fatal("UserInfo not ok")
	}
	if !info.Active() {
		t.Errorf("Active() = false for %+v", info)
	}
	if info.ActiveCons != "0" || info.MaxConnections != "2" {
		t.Errorf("connections = %q/%q", info.ActiveCons, info.MaxConnections)
	}
	exp, ok := info.Expires()
	if !ok || !exp.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expires() = %v, %v", exp, ok)
	}
}

func TestXtreamUserInfo_noUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"invalid"}`))
	}))
	defer srv.Close()

	if _, ok := (&XtreamClient{HTTP: srv.Client()}).UserInfo(context.Background(), srv.URL); ok {
		t.Error("expected ok=false without user_info")
	}
}

func TestXtreamUserInfo_badStatusNotRetried(t *testing.T) {
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, ok := (&XtreamClient{HTTP: srv.Client()}).UserInfo(context.Background(), srv.URL); ok {
		t.Error("expected ok=false on 502")
	}
	if n.Load() != 1 {
		t.Errorf("requests = %d, want 1", n.Load())
	}
}

func TestUserInfo_noExpiry(t *testing.T) {
	for _, exp := range []string{"", "0", "null"} {
		u := UserInfo{ExpDate: catalog.Text(exp)}
		if _, ok := u.Expires(); ok {
			t.Errorf("Expires() ok for %q", exp)
		}
	}
	if (UserInfo{Auth: "1", Status: "Banned"}).Active() {
		t.Error("Banned reported active")
	}
}
