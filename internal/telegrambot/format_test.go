package telegrambot

import "testing"

func TestFormatText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain ampersand", "Tom & Jerry", "Tom &amp; Jerry"},
		{"plain angle brackets", "a < b > c", "a &lt; b &gt; c"},
		{"bold tag passthrough", "<b>bold</b> & stuff", "<b>bold</b> & stuff"},
		{"anchor tag passthrough", `<a href="https://x">link</a>`, `<a href="https://x">link</a>`},
		{"case-insensitive marker", "<B>bold</B>", "<B>bold</B>"},
		{"blockquote expandable passthrough", "<blockquote expandable>q</blockquote>", "<blockquote expandable>q</blockquote>"},
		{"no markers, no special chars", "hello world", "hello world"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatText(tc.in)
			if got != tc.want {
				t.Errorf("FormatText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
