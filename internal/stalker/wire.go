package stalker

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/snapetech/stalkerkit/internal/catalog"
)

// Portals wrap every payload as {"js": ...}; the inner shape varies by portal build, so fields
// are read with gjson and only list items are decoded into structs.

// parseJS returns the "js" member of body. ok is false when body is not JSON or has no js.
func parseJS(body []byte) (gjson.Result, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	js := gjson.GetBytes(body, "js")
	if !js.Exists() {
		return gjson.Result{}, false
	}
	return js, true
}

// parseJSObject is parseJS restricted to an object payload.
func parseJSObject(body []byte) (gjson.Result, bool) {
	js, ok := parseJS(body)
	if !ok || !js.IsObject() {
		return gjson.Result{}, false
	}
	return js, true
}

type handshakeReply struct {
	Token  string
	Random string
	Msg    string
}

func decodeHandshake(js gjson.Result) handshakeReply {
	return handshakeReply{
		Token:  js.Get("token").String(),
		Random: js.Get("random").String(),
		Msg:    js.Get("msg").String(),
	}
}

// ProfileReply is the useful part of a get_profile answer.
type ProfileReply struct {
	PlayToken string
	Status    int
	Blocked   string
	MAC       string
	ID        string
}

func decodeProfile(js gjson.Result) ProfileReply {
	r := ProfileReply{
		PlayToken: js.Get("play_token").String(),
		Blocked:   "0",
		MAC:       js.Get("mac").String(),
		ID:        js.Get("id").String(),
	}
	if st := js.Get("status"); st.Exists() && st.Type != gjson.Null {
		r.Status = int(st.Int())
	}
	if b := js.Get("blocked"); b.Exists() && b.Type != gjson.Null && b.String() != "" {
		r.Blocked = b.String()
	}
	return r
}

// listPage is one get_ordered_list response.
type listPage struct {
	TotalItems int
	Items      []catalog.Item
}

// decodeList reads js.total_items and js.data. data may be an array, an object keyed by
// position, or missing; undecodable entries are skipped.
func decodeList(js gjson.Result) listPage {
	var p listPage
	p.TotalItems = catalog.Text(js.Get("total_items").String()).Int(0)
	data := js.Get("data")
	if !data.Exists() && js.IsArray() {
		data = js
	}
	data.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		var it catalog.Item
		if err := json.Unmarshal([]byte(v.Raw), &it); err == nil {
			p.Items = append(p.Items, it)
		}
		return true
	})
	return p
}

// decodeCategories reads a get_genres/get_categories payload (js is an array).
func decodeCategories(js gjson.Result) []catalog.Category {
	var out []catalog.Category
	js.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		var c catalog.Category
		if err := json.Unmarshal([]byte(v.Raw), &c); err == nil {
			out = append(out, c)
		}
		return true
	})
	return out
}

// EPGEntry is one short-EPG programme.
type EPGEntry struct {
	Name        string       `json:"name"`
	Description string       `json:"descr"`
	Start       string       `json:"t_time"`
	Stop        string       `json:"t_time_to"`
	StartUnix   catalog.Text `json:"start_timestamp"`
	StopUnix    catalog.Text `json:"stop_timestamp"`
}

func decodeEPG(js gjson.Result) []EPGEntry {
	out := []EPGEntry{}
	js.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		var e EPGEntry
		if err := json.Unmarshal([]byte(v.Raw), &e); err == nil {
			out = append(out, e)
		}
		return true
	})
	return out
}
