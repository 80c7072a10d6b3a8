package translate

import "testing"

func TestRewriteEmojiAliases(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"smile at me", "[微笑] at me"},
		{"no aliases here", "no aliases here"},
		{"heart", "[爱心]"},
		{"  ", "  "},
	}
	for _, tc := range cases {
		got := RewriteEmojiAliases(tc.in)
		if got != tc.want {
			t.Errorf("RewriteEmojiAliases(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsEmojiAliasOnly(t *testing.T) {
	if tok, ok := IsEmojiAliasOnly("smile"); !ok || tok != "[微笑]" {
		t.Fatalf("expected single-word alias match, got %q %v", tok, ok)
	}
	if _, ok := IsEmojiAliasOnly("smile now"); ok {
		t.Fatalf("multi-word text must not match")
	}
	if _, ok := IsEmojiAliasOnly("unknownword"); ok {
		t.Fatalf("unknown word must not match")
	}
}

func TestStripSenderLine(t *testing.T) {
	withSender := "<blockquote expandable>Alice</blockquote>\nhello there"
	if got := stripSenderLine(withSender); got != "hello there" {
		t.Errorf("stripSenderLine() = %q, want %q", got, "hello there")
	}
	plain := "no sender line"
	if got := stripSenderLine(plain); got != plain {
		t.Errorf("stripSenderLine() changed plain text: %q", got)
	}
}
