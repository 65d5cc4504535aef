package util

import "testing"

func TestParent(t *testing.T) {
	cases := map[string]string{
		"chat/1/messages": "chat/1",
		"chat/1":          "chat",
		"chat":            "",
		"":                "",
	}
	for in, want := range cases {
		if got := Parent(in); got != want {
			t.Fatalf("Parent(%q)=%q want %q", in, got, want)
		}
	}
}

func TestJoin(t *testing.T) {
	if got := Join("chat", "7"); got != "chat/7" {
		t.Fatalf("got %q", got)
	}
	if got := Join("chat/", "/7"); got != "chat/7" {
		t.Fatalf("got %q", got)
	}
	if got := Join("", "7"); got != "7" {
		t.Fatalf("got %q", got)
	}
}

func TestPrefixModes(t *testing.T) {
	cases := []struct {
		anc, key     string
		raw, segment bool
	}{
		{"chat", "chat", true, true},
		{"chat", "chat/1/messages", true, true},
		{"chat", "chat2", true, false},
		{"chat/", "chat/1", true, true},
		{"", "anything", true, true},
		{"other", "chat", false, false},
		{"chat/1/messages", "chat", false, false},
	}
	for _, tc := range cases {
		if got := IsPrefix(tc.anc, tc.key); got != tc.raw {
			t.Fatalf("IsPrefix(%q,%q)=%v", tc.anc, tc.key, got)
		}
		if got := IsSegmentPrefix(tc.anc, tc.key); got != tc.segment {
			t.Fatalf("IsSegmentPrefix(%q,%q)=%v", tc.anc, tc.key, got)
		}
	}
}
