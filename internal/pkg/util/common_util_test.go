package util

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	cases := []struct {
		tpl  string
		data map[string]any
		want string
	}{
		{"You received a new bid of ${amount} from {freelancer}", map[string]any{"amount": 250, "freelancer": "Mia"}, "You received a new bid of $250 from Mia"},
		{"Job \"{title}\" has expired", map[string]any{"other": 1}, "Job \"{title}\" has expired"},
		{"Hello {name}", nil, "Hello {name}"},
		{"{a}{a}", map[string]any{"a": "x"}, "xx"},
		{"", map[string]any{"a": "x"}, ""},
	}
	for _, tc := range cases {
		if got := RenderTemplate(tc.tpl, tc.data); got != tc.want {
			t.Errorf("RenderTemplate(%q) = %q, want %q", tc.tpl, got, tc.want)
		}
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	if got := Truncate("你好世界", 2); got != "你好..." {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestClampPage(t *testing.T) {
	page, size, offset := ClampPage(0, 0, 20, 100)
	if page != 1 || size != 20 || offset != 0 {
		t.Fatalf("defaults = %d %d %d", page, size, offset)
	}
	page, size, offset = ClampPage(3, 500, 20, 100)
	if page != 3 || size != 100 || offset != 200 {
		t.Fatalf("clamped = %d %d %d", page, size, offset)
	}
}

func TestUniqueSorted(t *testing.T) {
	got := UniqueSorted([]string{"bob", "", "alice", "bob"})
	if !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Fatalf("got %v", got)
	}
}

func TestGetSafeContentTypeRewinds(t *testing.T) {
	content := []byte("%PDF-1.7\n" + strings.Repeat("x", 600))
	r := bytes.NewReader(content)

	ct, err := GetSafeContentType(r)
	if err != nil {
		t.Fatal(err)
	}
	if ct != "application/pdf" {
		t.Fatalf("content type = %s", ct)
	}
	rest, _ := io.ReadAll(r)
	if !bytes.Equal(rest, content) {
		t.Fatal("reader should be rewound to the start")
	}
}
