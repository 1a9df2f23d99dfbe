package stalker

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/stalkerkit/internal/catalog"
)

// Session is the per-(host, MAC) portal record. The JSON layout is the persisted playlist_info
// object. A Session is plain data: the Client serializes mutation per Key.
type Session struct {
	Index      int          `json:"index"`
	URL        string       `json:"url"`
	Protocol   string       `json:"protocol"`
	Domain     string       `json:"domain"`
	Port       catalog.Text `json:"port"`
	Host       string       `json:"host"`
	MAC        string       `json:"mac"`
	Alias      string       `json:"alias"`
	PathPrefix string       `json:"path_prefix"`

	Portal  string `json:"portal"`
	Version string `json:"version"`

	Token       string `json:"token"`
	TokenRandom string `json:"token_random"`
	PlayToken   string `json:"play_token"`

	Status  int    `json:"status"`
	Blocked string `json:"blocked"`
	Valid   bool   `json:"valid"`
	Expiry  string `json:"expiry"`

	XtreamUsername    string `json:"temp_username"`
	XtreamPassword    string `json:"temp_password"`
	ActiveConnections string `json:"active_connections"`
	MaxConnections    string `json:"max_connections"`
	XtreamGetAPI      string `json:"temp_xtream_get_api"`
	XtreamPlayerAPI   string `json:"temp_xtream_player_api"`

	// Timezone is the cookie timezone; taken from config, not persisted.
	Timezone string `json:"-"`
}

// Key identifies a session across store rewrites: (domain, port, mac).
type Key struct {
	Domain string
	Port   string
	MAC    string
}

func (k Key) String() string {
	if k.Port == "" {
		return k.Domain + "|" + k.MAC
	}
	return k.Domain + ":" + k.Port + "|" + k.MAC
}

// Key returns the store key of s.
func (s *Session) Key() Key {
	return Key{Domain: strings.ToLower(s.Domain), Port: string(s.Port), MAC: strings.ToUpper(s.MAC)}
}

// Ready reports whether downstream calls may be issued.
func (s *Session) Ready() bool {
	return s.Token != "" && s.Portal != ""
}

// IsStalkerPortal reports whether the endpoint lives under /stalker_portal/, which switches the
// profile payload to the MAG254 set and adds the adid cookie.
func (s *Session) IsStalkerPortal() bool {
	return strings.Contains(s.Portal, "/stalker_portal/")
}

// XtreamCredentials returns the discovered Xtream login, if any.
func (s *Session) XtreamCredentials() (user, pass string, ok bool) {
	if s.XtreamUsername == "" || s.XtreamPassword == "" {
		return "", "", false
	}
	return s.XtreamUsername, s.XtreamPassword, true
}

// DeriveValid recomputes Valid from token, blocked flag, status and expiry.
func (s *Session) DeriveValid() bool {
	valid := true
	if s.Token == "" {
		valid = false
	}
	if s.Blocked == "1" {
		valid = false
	}
	if !strings.Contains(s.Portal, "stalker") && s.Expiry == "" && s.Status != 0 {
		valid = false
	}
	s.Valid = valid
	return valid
}

// Label is the per-playlist status shown next to each server.
type Label string

const (
	LabelActive    Label = "Active"
	LabelNotActive Label = "Not active"
	LabelBlocked   Label = "Blocked"
	LabelExpired   Label = "Expired"
	LabelUnknown   Label = "Unknown"
)

// StatusLabel classifies the session for display. Expired is a label only; Valid is untouched.
func (s *Session) StatusLabel(now time.Time) Label {
	label := LabelActive
	if !s.Valid {
		label = LabelNotActive
	} else if s.Blocked == "1" {
		label = LabelBlocked
	}
	if !strings.Contains(s.Portal, "stalker") && s.Status != 0 && s.Expiry != "" {
		return LabelUnknown
	}
	if label == LabelActive {
		if e := ParseExpiry(s.Expiry); e.Kind == ExpiryDate && e.At.Before(now) {
			return LabelExpired
		}
	}
	return label
}

// Saturated reports whether every allowed connection is in use (the yellow indicator).
func (s *Session) Saturated() bool {
	active, err1 := strconv.Atoi(strings.TrimSpace(s.ActiveConnections))
	max, err2 := strconv.Atoi(strings.TrimSpace(s.MaxConnections))
	return err1 == nil && err2 == nil && max != 0 && active >= max
}

// ExpiryKind classifies an expiry value.
type ExpiryKind int

const (
	ExpiryUnknown ExpiryKind = iota
	ExpiryDate
	ExpiryUnlimited
)

func (k ExpiryKind) String() string {
	switch k {
	case ExpiryDate:
		return "date"
	case ExpiryUnlimited:
		return "unlimited"
	}
	return "unknown"
}

// Expiry is the canonical view of the heterogeneous expiry string.
type Expiry struct {
	Kind ExpiryKind
	At   time.Time // set when Kind == ExpiryDate, UTC
	Raw  string
}

var expiryLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"January 2, 2006",
	"January 2, 2006, 3:04 pm",
	"January 2, 2006, 15:04",
	"Jan 2, 2006",
	"02.01.2006",
}

// ParseExpiry accepts ISO dates, "Month DD, YYYY" (with optional time), unix seconds or
// milliseconds, and "Unlimited". Anything else is ExpiryUnknown with Raw kept.
func ParseExpiry(raw string) Expiry {
	s := strings.TrimSpace(raw)
	e := Expiry{Raw: raw}
	if s == "" {
		return e
	}
	if strings.EqualFold(s, "unlimited") {
		e.Kind = ExpiryUnlimited
		return e
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			e.Kind = ExpiryUnlimited
			return e
		}
		if n > 1e12 {
			n /= 1000
		}
		e.Kind, e.At = ExpiryDate, time.Unix(n, 0).UTC()
		return e
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			e.Kind, e.At = ExpiryDate, t.UTC()
			return e
		}
	}
	return e
}

// ExpiryInfo parses s.Expiry.
func (s *Session) ExpiryInfo() Expiry {
	return ParseExpiry(s.Expiry)
}

const (
	userAgent  = "Mozilla/5.0 (QtEmbedded; U; Linux; C) AppleWebKit/533.3 (KHTML, like Gecko) MAG250 stbapp ver: 2 rev: 369 Safari/533.3"
	xUserAgent = "Model: MAG250; Link: WiFi"
)

// Header builds the MAG250 header set for s. bearer overrides the session token when non-empty
// (the handshake uses a synthesized token before a real one exists).
func (s *Session) Header(bearer string) http.Header {
	h := http.Header{}
	h.Set("Host", s.Domain)
	h.Set("Accept", "*/*")
	h.Set("User-Agent", userAgent)
	h.Set("Accept-Encoding", "gzip, deflate")
	h.Set("X-User-Agent", xUserAgent)
	h.Set("Connection", "close")
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")

	mac := strings.ToUpper(s.MAC)
	tz := s.Timezone
	if tz == "" {
		tz = "Europe/London"
	}
	cookie := "mac=" + mac + "; stb_lang=en; timezone=" + tz + ";"
	if s.IsStalkerPortal() {
		cookie += " adid=" + NewDevice(mac).ADID + ";"
	}
	h.Set("Cookie", cookie)

	if bearer == "" {
		bearer = s.Token
	}
	if bearer != "" {
		h.Set("Authorization", "Bearer "+bearer)
	}
	return h
}
