package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aero123421/RSS7/internal/model"
)

// DefaultLabels is used when no label set is configured.
var DefaultLabels = []string{
	"technology", "business", "politics", "entertainment",
	"sports", "science", "health", model.CategoryOther,
}

// classifySampleRunes is how much content goes into the prompt.
const classifySampleRunes = 500

// Classifier assigns one label from a label set to an article.
type Classifier struct {
	provider Provider
	log      *slog.Logger
}

// NewClassifier creates a classifier.
func NewClassifier(provider Provider, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{provider: provider, log: logger.With("component", "classifier")}
}

// Classify returns the label that best fits the article. Any failure,
// including a reply that names no known label, yields "other".
func (c *Classifier) Classify(ctx context.Context, title, content string, labels []string) string {
	label, err := c.classify(ctx, title, content, labels)
	if err != nil {
		c.log.Warn("classification failed", "title", title, "err", err)
		return model.CategoryOther
	}
	return label
}

func (c *Classifier) classify(ctx context.Context, title, content string, labels []string) (string, error) {
	if title == "" && content == "" {
		return model.CategoryOther, nil
	}
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	if c.provider == nil {
		return "", ErrMissingCredential
	}

	sample := headRunes(content, classifySampleRunes)
	prompt := fmt.Sprintf(`
次の記事のジャンルを以下のカテゴリから最も適切なもの一つだけ選んでください:
%s

記事:
%s

%s...

出力は選んだカテゴリ名のみを英語で一語だけ返してください。余計な説明や句読点、改行は不要です。
`, strings.Join(labels, ", "), title, sample)

	reply, err := c.provider.Generate(ctx, prompt, Options{MaxTokens: 50, Temperature: 0.1})
	if err != nil {
		return "", err
	}
	return MatchLabel(reply, labels), nil
}

// MatchLabel returns the first label contained in reply, compared
// case-insensitively, or "other".
func MatchLabel(reply string, labels []string) string {
	reply = strings.ToLower(strings.TrimSpace(reply))
	for _, l := range labels {
		if l != "" && strings.Contains(reply, strings.ToLower(l)) {
			return l
		}
	}
	return model.CategoryOther
}
