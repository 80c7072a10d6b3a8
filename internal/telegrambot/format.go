package telegrambot

import (
	"strings"
)

// allowedTagMarkers are the HTML fragments whose presence marks a string as
// already Telegram-HTML-formatted, per spec.md §4.2's whitelist.
var allowedTagMarkers = []string{
	"<a href",
	"<b>",
	"<i>",
	"<code>",
	"<pre>",
	"<blockquote",
}

// FormatText escapes &, <, > in s unless s already contains one of the
// whitelisted formatting tags, in which case it is assumed pre-formatted
// and passed through verbatim. This is the testable invariant spec.md §4.2
// names explicitly.
func FormatText(s string) string {
	if containsWhitelistedTag(s) {
		return s
	}
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func containsWhitelistedTag(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range allowedTagMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
