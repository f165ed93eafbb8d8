package delivery

import (
	"context"
	"strings"

	"github.com/Aero123421/RSS7/internal/ai"
	"github.com/Aero123421/RSS7/internal/model"
)

// Publisher posts rendered messages to a chat channel.
type Publisher interface {
	// Publish posts msg and returns the platform message id.
	Publish(ctx context.Context, channelID string, msg model.Message) (string, error)
	// SendPlain posts a plain text notice.
	SendPlain(ctx context.Context, channelID, text string) error
}

// Rendering limits.
const (
	DefaultColor     = 3447003
	excerptRunes     = 300
	maxTitleRunes    = 256
	maxBodyRunes     = 4096
	maxFieldRunes    = 1024
	untitled         = "無題"
	publishedLayout  = "2006-01-02 15:04"
	footerAIPrefix   = "AI処理: "
	footerSummarized = "要約済み"
	footerClassified = "分類済み"
)

var fallbackCategory = model.Category{Name: model.CategoryOther, Label: "その他", Emoji: "📌"}

// MessageOptions controls presentation choices that are not per article.
type MessageOptions struct {
	Categories    []model.Category
	DefaultColor  int
	UseThumbnails bool
}

// BuildMessage renders an enriched article.
func BuildMessage(e model.EnrichedArticle, opts MessageOptions) model.Message {
	cat, known := lookupCategory(e.Category, opts.Categories)

	title := e.Title
	if title == "" {
		title = untitled
	}

	color := opts.DefaultColor
	if color == 0 {
		color = DefaultColor
	}
	if known && cat.Color != 0 {
		color = cat.Color
	}

	body := e.Summary
	if body == "" {
		body = ai.Truncate(strings.Join(strings.Fields(e.Content), " "), excerptRunes)
	}

	msg := model.Message{
		Title: ai.Truncate(cat.Emoji+" "+title, maxTitleRunes),
		URL:   e.Link,
		Body:  ai.Truncate(body, maxBodyRunes),
		Color: color,
	}

	addField := func(name, value string) {
		if value == "" {
			return
		}
		msg.Fields = append(msg.Fields, model.MessageField{
			Name:   name,
			Value:  ai.Truncate(value, maxFieldRunes),
			Inline: true,
		})
	}
	addField("フィード", e.FeedTitle)
	addField("著者", e.Author)
	if e.Classified {
		addField("カテゴリ", cat.Emoji+" "+cat.Label)
	}
	switch {
	case e.Published != nil:
		addField("公開日時", e.Published.Format(publishedLayout))
	case e.PublishedRaw != "":
		addField("公開日時", e.PublishedRaw)
	}

	if opts.UseThumbnails {
		msg.Thumbnail = e.Thumbnail()
	}

	var tags []string
	if e.Summarized {
		tags = append(tags, footerSummarized)
	}
	if e.Classified {
		tags = append(tags, footerClassified)
	}
	if len(tags) > 0 {
		msg.Footer = footerAIPrefix + strings.Join(tags, ", ")
	}
	return msg
}

// lookupCategory returns the configured presentation for name, or the
// built-in "other" entry when none matches.
func lookupCategory(name string, categories []model.Category) (model.Category, bool) {
	for _, c := range categories {
		if c.Name == name {
			if c.Label == "" {
				c.Label = c.Name
			}
			if c.Emoji == "" {
				c.Emoji = fallbackCategory.Emoji
			}
			return c, true
		}
	}
	return fallbackCategory, false
}
