package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Text is a JSON scalar that portals send as a string on one server and a number (or bool, or
// null) on the next. It always decodes; the textual form is kept.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case b[0] == '{' || b[0] == '[':
		*t = ""
	default:
		*t = Text(b)
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Int parses the value as an integer; def when empty or malformed. "12.0" parses as 12.
func (t Text) Int(def int) int {
	s := strings.TrimSpace(string(t))
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}

// IntList decodes an array of numbers or numeric strings, skipping anything else.
type IntList []int

func (l *IntList) UnmarshalJSON(b []byte) error {
	var raw []Text
	if err := json.Unmarshal(b, &raw); err != nil {
		*l = nil
		return nil
	}
	out := make(IntList, 0, len(raw))
	for _, r := range raw {
		if n := r.Int(-1); n >= 0 {
			out = append(out, n)
		}
	}
	*l = out
	return nil
}
