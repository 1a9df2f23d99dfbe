package catalog

import (
	"encoding/json"
	"testing"
)

func TestText_unmarshal(t *testing.T) {
	var v struct {
		A Text `json:"a"`
		B Text `json:"b"`
		C Text `json:"c"`
		D Text `json:"d"`
		E Text `json:"e"`
	}
	if err := json.Unmarshal([]byte(`{"a":"x","b":42,"c":null,"d":true,"e":{"k":1}}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.A != "x" || v.B != "42" || v.C != "" || v.D != "true" || v.E != "" {
		t.Errorf("got %+v", v)
	}
	if v.B.Int(0) != 42 {
		t.Errorf("Int = %d", v.B.Int(0))
	}
	if Text("12.0").Int(0) != 12 || Text("abc").Int(7) != 7 || Text("").Int(3) != 3 {
		t.Error("Int fallback")
	}
}

func TestIntList(t *testing.T) {
	var v struct {
		S IntList `json:"series"`
	}
	if err := json.Unmarshal([]byte(`{"series":[1,"2",3,"x"]}`), &v); err != nil {
		t.Fatal(err)
	}
	if len(v.S) != 3 || v.S[0] != 1 || v.S[1] != 2 || v.S[2] != 3 {
		t.Errorf("got %v", v.S)
	}
	if err := json.Unmarshal([]byte(`{"series":"none"}`), &v); err != nil {
		t.Fatalf("non-array should not fail: %v", err)
	}
}

func TestItem(t *testing.T) {
	var it Item
	if !it.IsPlaceholder() {
		t.Error("zero Item should be a placeholder")
	}
	if err := json.Unmarshal([]byte(`{"id":101,"name":"BBC One\" HD","cmd":"ffrt http://localhost/ch/101","tv_genre_id":"5"}`), &it); err != nil {
		t.Fatal(err)
	}
	if it.IsPlaceholder() {
		t.Error("decoded item is not a placeholder")
	}
	if it.ID != "101" || it.GenreID != "5" {
		t.Errorf("got %+v", it)
	}
	if got := it.DisplayName(); got != "BBC One" {
		t.Errorf("DisplayName = %q", got)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"live": KindLive, "ITV": KindLive, "movies": KindVOD, "series": KindSeries} {
		if got, ok := ParseKind(in); !ok || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseKind("radio"); ok {
		t.Error("radio is not a kind")
	}
}

func TestFilterByName(t *testing.T) {
	items := []Item{{Name: "BBC One"}, {Name: "CNN"}, {Name: "bbc two"}}
	if got := FilterByName(items, "bbc"); len(got) != 2 {
		t.Errorf("got %d", len(got))
	}
	if got := FilterByName(items, " "); len(got) != 3 {
		t.Errorf("empty query should keep all; got %d", len(got))
	}
}
