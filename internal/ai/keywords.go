package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Keyword counts.
const (
	StorageKeywords = 7
	SearchKeywords  = 5
)

// KeywordExtractor pulls English search keywords out of articles and
// questions.
type KeywordExtractor struct {
	provider Provider
	log      *slog.Logger
}

// NewKeywordExtractor creates an extractor.
func NewKeywordExtractor(provider Provider, logger *slog.Logger) *KeywordExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeywordExtractor{provider: provider, log: logger.With("component", "keywords")}
}

// ForStorage returns 5-7 keywords describing the article. Failures return nil.
func (k *KeywordExtractor) ForStorage(ctx context.Context, title, content string) []string {
	prompt := "You are a data indexer. Analyze the following article and extract the 5-7 most important " +
		"and representative keywords in English. The keywords should be suitable for later searching. " +
		"Output them as a single, comma-separated string.\n\n" +
		fmt.Sprintf("Title: %s\n\nContent:\n%s", title, content)
	return k.extract(ctx, prompt, 50, StorageKeywords)
}

// ForSearch returns up to 5 keywords for finding articles related to a
// question about the given article. Failures return nil.
func (k *KeywordExtractor) ForSearch(ctx context.Context, title, content, question string) []string {
	prompt := "You are a search query expert. Extract up to 5 important English keywords from the user's " +
		"question and the original article to find related information." +
		fmt.Sprintf("\n\nTitle: %s\n\nContent:\n%s\n\nQuestion: %s\n\nKeywords:", title, content, question)
	return k.extract(ctx, prompt, 30, SearchKeywords)
}

func (k *KeywordExtractor) extract(ctx context.Context, prompt string, maxTokens, n int) []string {
	if k.provider == nil {
		return nil
	}
	out, err := k.provider.Generate(ctx, prompt, Options{MaxTokens: maxTokens, Temperature: 0.3})
	if err != nil {
		k.log.Warn("keyword extraction failed", "err", err)
		return nil
	}
	return SplitKeywords(out, n)
}

// SplitKeywords splits a comma-separated reply into at most n trimmed,
// non-empty keywords.
func SplitKeywords(text string, n int) []string {
	text = strings.ReplaceAll(text, "\n", "")
	var out []string
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}
