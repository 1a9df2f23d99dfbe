package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bootstrapHTML = `<html><head><script type="text/javascript" src="version.js"></script>
<script src="xpcom.common.js"></script></head><body></body></html>`
	xpcomPathLine  = `        this.ajax_loader = this.portal_protocol + '://' + this.portal_ip + '/' + this.portal_path + '/server/load.php';`
	xpcomMoveLine  = `this.ajax_loader = this.portal_protocol+"://"+this.portal_ip+"/server/move.php";`
	xpcomIPLine    = `this.ajax_loader = this.portal_ip + '/portal.php';`
	versionJS      = `var ver = '5.6.1';`
	noLoaderXpcom  = "function common_xpcom(){\n  this.foo = 1;\n}\n"
	stalkerPrefix  = "/stalker_portal/c/"
	legacyPrefix   = "/c/"
	xpcomFile      = "xpcom.common.js"
	versionFile    = "version.js"
	loadPHP        = "/stalker_portal/server/load.php"
	expectedLegacy = "/c/server/load.php"
)

// portal serves a bootstrap page, xpcom.common.js and version.js under prefix.
func portal(t *testing.T, prefix, xpcom string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case prefix:
			w.Write([]byte(bootstrapHTML))
		case prefix + xpcomFile:
			w.Write([]byte("function x(){\n" + xpcom + "\n}\n"))
		case prefix + versionFile:
			w.Write([]byte(versionJS))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscover_stalkerPortal(t *testing.T) {
	srv := portal(t, stalkerPrefix, xpcomPathLine)
	d := NewJSDiscoverer(srv.Client())
	res, err := d.Discover(context.Background(), Target{Host: srv.URL, ConfiguredURL: srv.URL + stalkerPrefix})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+loadPHP, res.Portal)
	assert.Equal(t, PrefixStalker, res.PathPrefix)
	assert.Equal(t, "5.6.1", res.Version)
	assert.False(t, res.Fallback)
}

func TestDiscover_fallbackShape(t *testing.T) {
	// Configured as /c/ but only /stalker_portal/c/ exists.
	srv := portal(t, stalkerPrefix, xpcomMoveLine)
	d := NewJSDiscoverer(srv.Client())
	res, err := d.Discover(context.Background(), Target{Host: srv.URL, ConfiguredURL: srv.URL + legacyPrefix})
	require.NoError(t, err)
	assert.Equal(t, PrefixStalker, res.PathPrefix)
	assert.Equal(t, srv.URL+"/server/move.php", res.Portal)
}

func TestDiscover_noShapeHint(t *testing.T) {
	srv := portal(t, legacyPrefix, xpcomIPLine)
	d := NewJSDiscoverer(srv.Client())
	res, err := d.Discover(context.Background(), Target{Host: srv.URL + "/", ConfiguredURL: srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, PrefixLegacy, res.PathPrefix)
	assert.Equal(t, srv.URL+"/portal.php", res.Portal)
	assert.False(t, res.Fallback)
}

func TestDiscover_redirectDecidesPrefix(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(legacyPrefix, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, stalkerPrefix, http.StatusFound)
	})
	mux.HandleFunc(stalkerPrefix, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case stalkerPrefix:
			w.Write([]byte(bootstrapHTML))
		case stalkerPrefix + xpcomFile:
			w.Write([]byte(xpcomPathLine))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := NewJSDiscoverer(srv.Client()).Discover(context.Background(), Target{Host: srv.URL, ConfiguredURL: srv.URL + legacyPrefix})
	require.NoError(t, err)
	assert.Equal(t, PrefixStalker, res.PathPrefix)
	assert.Equal(t, srv.URL+loadPHP, res.Portal)
	assert.Empty(t, res.Version, "version.js is 404 here")
}

func TestDiscover_noLoaderFallsBackToPortalPHP(t *testing.T) {
	srv := portal(t, legacyPrefix, noLoaderXpcom)
	res, err := NewJSDiscoverer(srv.Client()).Discover(context.Background(), Target{Host: srv.URL, ConfiguredURL: srv.URL + legacyPrefix})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, srv.URL+"/portal.php", res.Portal)
}

func TestDiscover_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	client := srv.Client()
	srv.Close()

	_, err := NewJSDiscoverer(client).Discover(context.Background(), Target{Host: url, ConfiguredURL: url + legacyPrefix})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractPortalPath(t *testing.T) {
	tests := []struct {
		name string
		js   string
		src  string
		want string
	}{
		{"portal_path legacy", xpcomPathLine, "http://h/c/xpcom.common.js", expectedLegacy},
		{"portal_path stalker", xpcomPathLine, "http://h/stalker_portal/c/xpcom.common.js", loadPHP},
		{"move.php", xpcomMoveLine, "http://h/c/xpcom.common.js", "/server/move.php"},
		{"portal_ip only", xpcomIPLine, "http://h/c/xpcom.common.js", "/portal.php"},
		{"no loader line", "this.portal_ip + '/portal.php';", "http://h/c/xpcom.common.js", ""},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPortalPath([]byte(tt.js), tt.src))
		})
	}
}

func TestParseVersion(t *testing.T) {
	assert.Equal(t, "5.6.1", ParseVersion([]byte(versionJS)))
	assert.Equal(t, "5.3.0", ParseVersion([]byte(`ver="5.3.0" ;`)))
	assert.Empty(t, ParseVersion([]byte(`nothing here`)))
}

func TestProbeOrder(t *testing.T) {
	assert.Equal(t, []string{PrefixStalker, PrefixLegacy}, probeOrder("http://h/stalker_portal/c/"))
	assert.Equal(t, []string{PrefixLegacy, PrefixStalker}, probeOrder("http://h/c/"))
	assert.Equal(t, []string{PrefixLegacy, PrefixStalker}, probeOrder("http://h/"))
}
