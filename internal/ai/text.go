package ai

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

// Truncate limits text to maxLen runes. Truncated output ends with Ellipsis
// and is exactly maxLen runes long, marker included.
func Truncate(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	marker := []rune(Ellipsis)
	if maxLen <= len(marker) {
		return string(marker[:maxLen])
	}
	runes := []rune(text)
	return string(runes[:maxLen-len(marker)]) + Ellipsis
}

// boilerplatePrefixes are labels models like to prepend to their answer.
var boilerplatePrefixes = []string{
	"要約結果:", "要約結果：", "要約:", "要約：",
	"翻訳結果:", "翻訳結果：", "翻訳:", "翻訳：",
	"日本語訳:", "日本語訳：",
	"Summary:", "Translation:",
}

// StripPrefixes removes leading boilerplate labels.
func StripPrefixes(text string) string {
	text = strings.TrimSpace(text)
	for changed := true; changed; {
		changed = false
		for _, p := range boilerplatePrefixes {
			if hasPrefixFold(text, p) {
				text = strings.TrimSpace(text[len(p):])
				changed = true
			}
		}
	}
	return text
}

// hasPrefixFold is strings.HasPrefix ignoring case.
func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// SimpleSummarize is the local fallback summarizer. It splits text into
// sentences and greedily packs them from the start while they fit within
// maxLen runes. If even the first sentence is too long it is truncated with
// an ellipsis.
func SimpleSummarize(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if text == "" || maxLen <= 0 {
		return ""
	}

	var sb strings.Builder
	n := 0
	for i, s := range splitSentences(text) {
		sep := ""
		if i > 0 && !endsWithCJKTerminator(sb.String()) {
			sep = " "
		}
		l := utf8.RuneCountInString(sep + s)
		if n+l > maxLen {
			if i == 0 {
				return Truncate(s, maxLen)
			}
			break
		}
		sb.WriteString(sep)
		sb.WriteString(s)
		n += l
	}
	return strings.TrimSpace(sb.String())
}

// splitSentences splits after 。！？ and after .!? followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		end := -1
		switch r {
		case '。', '！', '？':
			end = i + 1
		case '.', '!', '?':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				end = i + 1
			}
		}
		if end < 0 {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func endsWithCJKTerminator(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == '。' || r == '！' || r == '？'
}

// IsMostlyJapanese reports whether more than 30% of the first 100 runes are
// hiragana, katakana or kanji.
func IsMostlyJapanese(text string) bool {
	runes := []rune(text)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	if len(runes) == 0 {
		return false
	}
	jp := 0
	for _, r := range runes {
		switch {
		case r >= 0x3040 && r <= 0x309F, // hiragana
			r >= 0x30A0 && r <= 0x30FF, // katakana
			r >= 0x4E00 && r <= 0x9FFF, // kanji
			r >= 0xFF66 && r <= 0xFF9F: // half-width katakana
			jp++
		}
	}
	return float64(jp)/float64(len(runes)) > 0.3
}

// headRunes returns the first n runes of s.
func headRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
