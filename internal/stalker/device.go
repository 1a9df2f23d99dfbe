package stalker

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Device is the fingerprint a MAG box derives from its MAC.
type Device struct {
	MAC        string
	SN         string // first 13 of upper(md5(mac))
	DeviceID   string // upper(sha256(mac))
	HWVersion2 string // sha1(mac)
	Prehash    string // sha1(sn+mac)
	ADID       string // md5(sn+mac), cookie on /stalker_portal/ portals
}

// NewDevice derives the fingerprint for an upper-case colon-separated MAC.
func NewDevice(mac string) Device {
	mac = strings.ToUpper(mac)
	sn := strings.ToUpper(hexMD5(mac))[:13]
	sum256 := sha256.Sum256([]byte(mac))
	return Device{
		MAC:        mac,
		SN:         sn,
		DeviceID:   strings.ToUpper(hex.EncodeToString(sum256[:])),
		HWVersion2: hexSHA1(mac),
		Prehash:    hexSHA1(sn + mac),
		ADID:       hexMD5(sn + mac),
	}
}

func hexMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hexSHA1(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomToken returns n characters of upper-case letters and digits read from r.
func randomToken(r io.Reader, n int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for range n {
		i, err := rand.Int(r, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(tokenAlphabet[i.Int64()])
	}
	return b.String(), nil
}

// ProfileMode selects the get_profile payload.
type ProfileMode int

const (
	ProfileFull ProfileMode = iota
	ProfileBasic
)

func (m ProfileMode) String() string {
	if m == ProfileBasic {
		return "basic"
	}
	return "full"
}

const imageVersionString = "ImageDescription: 0.2.18-r14-pub-250; ImageDate: Fri Jan 15 15:20:44 EET 2016; " +
	"PORTAL version: 5.3.0; API Version: JS API version: 328; STB API version: 134; Player Engine version: 0x566"

// metricsBlob renders the metrics object with the key order and ", " / ": " separators MAG
// firmware uses, then percent-encodes it once (spaces as %20). The query encoder encodes it again.
func metricsBlob(pairs [][2]string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, kv := range pairs {
		if i > 0 {
			b.WriteString(", ")
		}
		k, _ := json.Marshal(kv[0])
		v, _ := json.Marshal(kv[1])
		b.Write(k)
		b.WriteString(": ")
		b.Write(v)
	}
	b.WriteByte('}')
	return strings.ReplaceAll(url.QueryEscape(b.String()), "+", "%20")
}

// profileParams returns the get_profile query parameters for mode. Portals under
// /stalker_portal/ always get the MAG254 set regardless of mode.
func profileParams(d Device, stalkerPortal bool, mode ProfileMode, tokenRandom string, now time.Time) url.Values {
	ts := float64(now.UnixMicro()) / 1e6
	v := url.Values{}
	if stalkerPortal {
		v.Set("mac", d.MAC)
		v.Set("hd", "1")
		v.Set("ver", imageVersionString)
		v.Set("num_banks", "2")
		v.Set("sn", d.SN)
		v.Set("stb_type", "MAG254")
		v.Set("client_type", "STB")
		v.Set("image_version", "218")
		v.Set("video_out", "hdmi")
		v.Set("device_id", d.DeviceID)
		v.Set("device_id2", d.DeviceID)
		v.Set("signature", "")
		v.Set("auth_second_step", "1")
		v.Set("hw_version", "1.7-BD-00")
		v.Set("hw_version_2", d.HWVersion2)
		v.Set("not_valid_token", "0")
		v.Set("metrics", metricsBlob([][2]string{
			{"type", "stb"}, {"model", "MAG254"}, {"mac", d.MAC}, {"sn", d.SN}, {"uid", ""}, {"random", tokenRandom},
		}))
		v.Set("timestamp", strconv.FormatInt(int64(ts+0.5), 10))
		v.Set("api_signature", "261")
		v.Set("prehash", d.Prehash)
		return v
	}

	stamp := strconv.FormatFloat(ts, 'f', -1, 64)
	if mode == ProfileBasic {
		v.Set("sn", d.SN)
		v.Set("device_id", "")
		v.Set("timestamp", stamp)
		return v
	}
	v.Set("hd", "1")
	v.Set("sn", d.SN)
	v.Set("stb_type", "MAG250")
	v.Set("client_type", "STB")
	v.Set("image_version", "218")
	v.Set("device_id", "")
	v.Set("device_id2", "")
	v.Set("hw_version", "1.7-BD-00")
	v.Set("metrics", metricsBlob([][2]string{
		{"mac", d.MAC}, {"sn", d.SN}, {"type", "STB"}, {"model", "MAG250"}, {"uid", ""}, {"random", ""},
	}))
	v.Set("timestamp", stamp)
	return v
}

// mergeQuery adds params to rawURL's query, overriding existing keys.
func mergeQuery(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}
