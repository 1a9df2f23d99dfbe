package safeurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHTTPOrHTTPS(t *testing.T) {
	tests := []struct {
		url   string
		allow bool
	}{
		{"http://portal.example/c/", true},
		{"https://portal.example/stalker_portal/c/", true},
		{"HTTP://x", true},
		{"file:///etc/passwd", false},
		{"rtsp://cam.example/live", false},
		{"", false},
		{"ffmpeg http://x/1.ts", false},
		{"javascript:alert(1)", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allow, IsHTTPOrHTTPS(tt.url), tt.url)
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"directive stripped", "ffmpeg http://h:8080/live/u/p/1.ts", "http://h:8080/live/u/p/1.ts"},
		{"extra spaces", "ffrt   http://h/movie/u/p/2.mkv", "http://h/movie/u/p/2.mkv"},
		{"bare url", " https://h/play?x=1 ", "https://h/play?x=1"},
		{"not a url", "/media/file_12.mkv", "/media/file_12.mkv"},
		{"directive only", "ffmpeg", "ffmpeg"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StreamURL(tt.in))
		})
	}
}

func TestHost(t *testing.T) {
	assert.Equal(t, "http://h:8080", Host("http://h:8080/movie/u/p/"))
	assert.Equal(t, "https://h", Host("https://h"))
	assert.Empty(t, Host("ftp://h/x"))
	assert.Empty(t, Host("::"))
}
