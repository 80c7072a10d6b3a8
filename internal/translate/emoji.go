package translate

import "strings"

// emojiAliases maps a Telegram-typed plain-word alias to the canonical
// WeChat emoji name that belongs inside a "[name]" token. This is a
// representative subset of spec.md §4.8's "≈200 names" table; it is a
// plain data map precisely so the set can grow without touching the
// rewriting logic below.
var emojiAliases = map[string]string{
	"smile":     "微笑",
	"laugh":     "大笑",
	"cry":       "流泪",
	"wink":      "眨眼",
	"kiss":      "亲亲",
	"angry":     "发怒",
	"shy":       "害羞",
	"surprised": "惊讶",
	"sweat":     "冷汗",
	"tired":     "疲惫",
	"thumbsup":  "强",
	"thumbsdown": "弱",
	"heart":     "爱心",
	"rose":      "玫瑰",
	"clap":      "鼓掌",
	"ok":        "OK",
	"shrug":     "摊手",
	"facepalm":  "捂脸",
	"wave":      "再见",
	"think":     "right",
}

// RewriteEmojiAliases wraps every whitelisted alias occurring at the start
// of text or immediately after a whitespace run, per spec.md §4.8's
// "text, no entities" row.
func RewriteEmojiAliases(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var b strings.Builder
	rest := text
	for i, w := range words {
		idx := strings.Index(rest, w)
		b.WriteString(rest[:idx])
		if name, ok := emojiAliases[strings.ToLower(w)]; ok {
			b.WriteString("[" + name + "]")
		} else {
			b.WriteString(w)
		}
		rest = rest[idx+len(w):]
		if i == len(words)-1 {
			b.WriteString(rest)
		}
	}
	return b.String()
}

// IsEmojiAliasOnly reports whether text is exactly one whitelisted alias
// word (spec.md §4.8's "single-word WeChat-emoji aliases" rule), returning
// the rewritten "[name]" token to send if so.
func IsEmojiAliasOnly(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.ContainsAny(trimmed, " \t\n") {
		return "", false
	}
	name, ok := emojiAliases[strings.ToLower(trimmed)]
	if !ok {
		return "", false
	}
	return "[" + name + "]", true
}
