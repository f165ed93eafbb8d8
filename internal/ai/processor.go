package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aero123421/RSS7/internal/model"
)

// ProcessorConfig selects which enrichment steps run.
type ProcessorConfig struct {
	Summarize     bool
	SummaryLength int
	Classify      bool
	Keywords      bool
	Labels        []string
	Language      string
}

// Processor turns a canonical article into an enriched one.
//
// Per article: summarize (rotating keys, falling back to the secondary
// provider and then to the local summarizer), translate the title, classify
// (failure degrades to "other"), extract keywords. Every stage is guarded;
// Processed is false only if something escapes those guards.
type Processor struct {
	summarizer *Summarizer
	classifier *Classifier
	keywords   *KeywordExtractor
	qa         Provider
	cfg        ProcessorConfig
	log        *slog.Logger
}

// NewProcessor wires the enrichment stages. secondary and qa may be nil; a
// nil qa provider answers questions with primary.
func NewProcessor(primary, secondary, qa Provider, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SummaryLength <= 0 {
		cfg.SummaryLength = DefaultSummaryLength
	}
	if cfg.Language == "" {
		cfg.Language = "ja"
	}
	if qa == nil {
		qa = primary
	}
	return &Processor{
		summarizer: NewSummarizer(primary, secondary, cfg.Language, logger),
		classifier: NewClassifier(primary, logger),
		keywords:   NewKeywordExtractor(primary, logger),
		qa:         qa,
		cfg:        cfg,
		log:        logger.With("component", "processor"),
	}
}

// Process enriches one article using the feed's summary profile.
func (p *Processor) Process(ctx context.Context, article model.Article, feed model.Feed) (out model.EnrichedArticle) {
	out = model.EnrichedArticle{
		Article:       article,
		OriginalTitle: article.Title,
		Category:      model.CategoryOther,
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("article processing failed", "title", article.Title, "panic", r)
			out.Processed = false
			out.Error = fmt.Sprint(r)
		}
	}()

	if p.cfg.Summarize {
		p.summarize(ctx, &out, feed.SummaryProfile)
	}

	if p.cfg.Classify {
		label, err := p.classifier.classify(ctx, out.OriginalTitle, out.Content, p.cfg.Labels)
		if err != nil {
			p.log.Warn("classification failed", "title", out.OriginalTitle, "err", err)
		} else {
			out.Category = label
			out.Classified = true
		}
	}

	if p.cfg.Keywords {
		kws := p.keywords.ForStorage(ctx, out.OriginalTitle, out.Content)
		out.Keywords = strings.Join(kws, ", ")
	}

	out.Processed = true
	return out
}

func (p *Processor) summarize(ctx context.Context, out *model.EnrichedArticle, profile model.SummaryProfile) {
	if profile == "" {
		profile = model.ProfileNormal
	}
	if profile != model.ProfileTitle {
		text := out.Content
		if text == "" {
			text = out.Article.Summary
		}
		summary, generated := p.summarizer.Summarize(ctx, text, p.cfg.SummaryLength, profile)
		out.Summary = summary
		out.Summarized = generated
	}

	if title, ok := p.summarizer.TranslateTitle(ctx, out.OriginalTitle, p.cfg.SummaryLength); ok {
		out.Title = title
	}
	p.log.Info("article summarized", "title", out.Title, "profile", profile, "generated", out.Summarized)
}

// SearchKeywords returns up to 5 keywords for finding snapshots related to a
// question about main.
func (p *Processor) SearchKeywords(ctx context.Context, main model.Snapshot, question string) []string {
	return p.keywords.ForSearch(ctx, main.Title, main.Content, question)
}

// relatedExcerptRunes caps each related article in the answer prompt.
const relatedExcerptRunes = 600

// Answer answers question from the main article and related ones.
func (p *Processor) Answer(ctx context.Context, main model.Snapshot, related []model.Snapshot, question string) (string, error) {
	var rb strings.Builder
	for i, r := range related {
		if i > 0 {
			rb.WriteString("\n")
		}
		fmt.Fprintf(&rb, "%d. Title: %s\n   Content: %s...", i+1, r.Title, headRunes(r.Content, relatedExcerptRunes))
	}
	lang := LanguageName(p.cfg.Language)
	prompt := fmt.Sprintf("You are an expert news commentator. Based on the following articles, "+
		"please answer the user's question in %s.\n\n"+
		"**Main Article:**\nTitle: %s\nContent: %s\n\n"+
		"**Related Articles:**\n%s\n\n"+
		"**User's Question:**\n%s\n\n**Answer (in %s):**",
		lang, main.Title, main.Content, rb.String(), question, lang)

	if p.qa == nil {
		return "", ErrMissingCredential
	}
	answer, err := p.qa.Generate(ctx, prompt, Options{MaxTokens: 1000, Temperature: 0.3})
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}
	return answer, nil
}
