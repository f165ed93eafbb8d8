package ai

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateBound(t *testing.T) {
	texts := []string{
		"",
		"short",
		"exactly ten",
		strings.Repeat("a", 50),
		strings.Repeat("日本語", 40),
		"mixed 日本語 and English text that goes on for a while",
	}
	for _, text := range texts {
		for max := 0; max <= 60; max++ {
			got := Truncate(text, max)
			n := utf8.RuneCountInString(got)
			if n > max {
				t.Fatalf("Truncate(%q, %d) has %d runes", text, max, n)
			}
			truncated := utf8.RuneCountInString(text) > max
			if truncated && max > len(Ellipsis) {
				if !strings.HasSuffix(got, Ellipsis) || n != max {
					t.Fatalf("Truncate(%q, %d) = %q, want %d runes ending in ellipsis", text, max, got, max)
				}
			}
			if !truncated && got != text {
				t.Fatalf("Truncate(%q, %d) changed text to %q", text, max, got)
			}
		}
	}
}

func TestStripPrefixes(t *testing.T) {
	tests := []struct{ in, want string }{
		{"要約: 本文", "本文"},
		{"要約結果：本文", "本文"},
		{"翻訳: タイトル", "タイトル"},
		{"  日本語訳: テスト ", "テスト"},
		{"要約: 翻訳: 二重", "二重"},
		{"本文 要約: そのまま", "本文 要約: そのまま"},
		{"Summary: text", "text"},
		{"summary: text", "text"},
		{"TRANSLATION: title", "title"},
		{"translation: summary: both", "both"},
		{"summarized text", "summarized text"},
	}
	for _, tt := range tests {
		if got := StripPrefixes(tt.in); got != tt.want {
			t.Errorf("StripPrefixes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSimpleSummarize(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"empty", "", 10, ""},
		{"fits", "One. Two.", 20, "One. Two."},
		{"packs whole sentences", "First one. Second one. Third one.", 22, "First one. Second one."},
		{"japanese", "一文目です。二文目です。三文目です。", 12, "一文目です。二文目です。"},
		{"first sentence too long", "This sentence is far too long for the cap.", 10, "This se..."},
		{"decimal not split", "Go 1.24 is out. Yay.", 16, "Go 1.24 is out."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SimpleSummarize(tt.text, tt.max)
			if got != tt.want {
				t.Errorf("SimpleSummarize = %q, want %q", got, tt.want)
			}
			if utf8.RuneCountInString(got) > tt.max {
				t.Errorf("length %d exceeds %d", utf8.RuneCountInString(got), tt.max)
			}
		})
	}
}

func TestIsMostlyJapanese(t *testing.T) {
	if !IsMostlyJapanese("これは日本語のタイトルです") {
		t.Error("japanese title not detected")
	}
	if IsMostlyJapanese("Apple announces new iPhone") {
		t.Error("english title detected as japanese")
	}
	if IsMostlyJapanese("") {
		t.Error("empty string detected as japanese")
	}
}

func TestSplitKeywords(t *testing.T) {
	got := SplitKeywords(" a, b ,,c\n, d, e, f", 4)
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("SplitKeywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := SplitKeywords("", 5); got != nil {
		t.Errorf("empty input = %v", got)
	}
}
