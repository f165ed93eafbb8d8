package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aero123421/RSS7/internal/model"
)

// Summary length targets.
const (
	DefaultSummaryLength = 4000
	ShortSummaryLength   = 120
)

const japaneseSystemInstruction = "あなたは日本語編集者です。要点を抽出し、日本語のみで短くまとめます。" +
	"長文は読みやすいように適度に改行してください。"

var summaryOptions = Options{MaxTokens: 1000, Temperature: 0.3}

// Summarizer summarizes and translates text into the target language.
type Summarizer struct {
	primary   Provider
	secondary Provider
	language  string
	log       *slog.Logger
}

// NewSummarizer creates a summarizer. secondary may be nil; it is only tried
// when primary fails.
func NewSummarizer(primary, secondary Provider, language string, logger *slog.Logger) *Summarizer {
	if language == "" {
		language = "ja"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		primary:   primary,
		secondary: secondary,
		language:  language,
		log:       logger.With("component", "summarizer"),
	}
}

// Language returns the target language code.
func (s *Summarizer) Language() string {
	return s.language
}

// Summarize returns a summary of text in the target language, at most maxLen
// runes long. The title profile translates instead of summarizing. The bool
// reports whether a provider produced the text; when every provider fails
// the local sentence-packing summary is returned with false.
func (s *Summarizer) Summarize(ctx context.Context, text string, maxLen int, profile model.SummaryProfile) (string, bool) {
	if text == "" {
		return "", false
	}
	if maxLen <= 0 {
		maxLen = DefaultSummaryLength
	}
	if profile == model.ProfileShort && maxLen > ShortSummaryLength {
		maxLen = ShortSummaryLength
	}

	out, err := s.generate(ctx, s.prompt(text, profile))
	if err != nil {
		s.log.Warn("summarization failed, using local fallback", "profile", profile, "err", err)
		return SimpleSummarize(text, maxLen), false
	}
	return Truncate(StripPrefixes(out), maxLen), true
}

// TranslateTitle translates a title into the target language. Titles already
// in the target script and failed translations return the input unchanged.
func (s *Summarizer) TranslateTitle(ctx context.Context, title string, maxLen int) (string, bool) {
	if title == "" || s.alreadyTarget(title) {
		return title, false
	}
	out, err := s.generate(ctx, s.prompt(title, model.ProfileTitle))
	if err != nil {
		s.log.Warn("title translation failed", "err", err)
		return title, false
	}
	out = StripPrefixes(out)
	if out == "" {
		return title, false
	}
	if maxLen > 0 {
		out = Truncate(out, maxLen)
	}
	return out, true
}

func (s *Summarizer) alreadyTarget(text string) bool {
	return s.language == "ja" && IsMostlyJapanese(text)
}

// generate tries the primary provider, then the secondary.
func (s *Summarizer) generate(ctx context.Context, prompt string) (string, error) {
	opts := summaryOptions
	opts.SystemInstruction = s.systemInstruction()

	if s.primary == nil {
		return "", ErrMissingCredential
	}
	out, err := s.primary.Generate(ctx, prompt, opts)
	if err == nil {
		return out, nil
	}
	if s.secondary == nil {
		return "", err
	}
	s.log.Warn("primary provider failed, trying fallback",
		"primary", s.primary.Name(), "fallback", s.secondary.Name(), "err", err)
	out, err2 := s.secondary.Generate(ctx, prompt, opts)
	if err2 != nil {
		return "", fmt.Errorf("%s: %v; %s: %w", s.primary.Name(), err, s.secondary.Name(), err2)
	}
	return out, nil
}

func (s *Summarizer) systemInstruction() string {
	if s.language == "ja" {
		return japaneseSystemInstruction
	}
	name := LanguageName(s.language)
	return fmt.Sprintf("You are an editor. Extract the key points and write only in %s, "+
		"without carrying over words from the source language. Break long output into readable lines.", name)
}

func (s *Summarizer) prompt(text string, profile model.SummaryProfile) string {
	if s.language == "ja" {
		switch profile {
		case model.ProfileTitle:
			return "次のタイトルを日本語に翻訳してください。\n\n" + text + "\n\n翻訳:"
		case model.ProfileShort:
			return "次の文章を日本語で2〜3文、100文字以内で要約してください。\n\n" + text + "\n\n要約:"
		case model.ProfileLong:
			return "次の文章を日本語で詳細に500文字以内で要約してください。読みやすいように適度に改行してください。\n\n" +
				text + "\n\n要約:"
		default:
			return "次の文章を日本語で200文字以内で要約してください。読みやすいように適度に改行してください。\n\n" +
				text + "\n\n要約:"
		}
	}

	name := LanguageName(s.language)
	switch profile {
	case model.ProfileTitle:
		return fmt.Sprintf("Translate the following title into %s.\n\n%s\n\nTranslation:", name, text)
	case model.ProfileShort:
		return fmt.Sprintf("Summarize the following text in %s in 2-3 sentences, within 100 characters.\n\n%s\n\nSummary:", name, text)
	case model.ProfileLong:
		return fmt.Sprintf("Summarize the following text in %s in detail, within 500 characters. "+
			"Break it into readable lines.\n\n%s\n\nSummary:", name, text)
	default:
		return fmt.Sprintf("Summarize the following text in %s within 200 characters. "+
			"Break it into readable lines.\n\n%s\n\nSummary:", name, text)
	}
}

// LanguageName maps a language code to the name used in prompts.
func LanguageName(code string) string {
	switch code {
	case "ja":
		return "Japanese"
	case "en":
		return "English"
	case "zh":
		return "Chinese"
	case "ko":
		return "Korean"
	case "fr":
		return "French"
	case "de":
		return "German"
	case "es":
		return "Spanish"
	default:
		return code
	}
}
