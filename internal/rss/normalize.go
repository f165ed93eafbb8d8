package rss

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/Aero123421/RSS7/internal/model"
)

const (
	defaultFeedTitle  = "Unknown Feed"
	defaultEntryTitle = "No Title"
	defaultLanguage   = "en"

	thumbnailType = "image/thumbnail"
)

func normalizeFeed(feed *gofeed.Feed, feedURL string) *model.ParsedFeed {
	out := &model.ParsedFeed{
		Title:       strings.TrimSpace(feed.Title),
		Link:        feed.Link,
		Description: StripHTML(feed.Description),
		Language:    feed.Language,
	}
	if out.Title == "" {
		out.Title = defaultFeedTitle
	}
	if out.Language == "" {
		out.Language = defaultLanguage
	}
	out.Entries = make([]model.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		a := normalizeItem(item)
		a.FeedTitle = out.Title
		a.FeedURL = feedURL
		out.Entries = append(out.Entries, a)
	}
	return out
}

func normalizeItem(item *gofeed.Item) model.Article {
	a := model.Article{
		Title:   strings.TrimSpace(item.Title),
		Link:    strings.TrimSpace(item.Link),
		Summary: StripHTML(item.Description),
		Media:   collectMedia(item),
	}
	if a.Title == "" {
		a.Title = defaultEntryTitle
	}
	if item.Author != nil {
		a.Author = strings.TrimSpace(item.Author.Name)
	}

	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		a.Published = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		a.Published = &t
	}
	a.PublishedRaw = item.Published
	if a.PublishedRaw == "" {
		a.PublishedRaw = item.Updated
	}

	if item.Content != "" {
		a.Content = StripHTML(item.Content)
	}
	if a.Content == "" {
		a.Content = a.Summary
	}
	return a
}

// collectMedia gathers enclosures, then media:content, then media:thumbnail,
// including those nested in media:group.
func collectMedia(item *gofeed.Item) []model.Media {
	var media []model.Media
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		media = append(media, model.Media{URL: enc.URL, Type: enc.Type})
	}

	mediaExt := item.Extensions["media"]
	if mediaExt == nil {
		return media
	}
	contents := mediaExt["content"]
	thumbnails := mediaExt["thumbnail"]
	for _, group := range mediaExt["group"] {
		contents = append(contents, group.Children["content"]...)
		thumbnails = append(thumbnails, group.Children["thumbnail"]...)
	}

	for _, c := range contents {
		if u := attr(c, "url"); u != "" {
			media = append(media, model.Media{URL: u, Type: attr(c, "type")})
		}
	}
	for _, th := range thumbnails {
		if u := attr(th, "url"); u != "" {
			media = append(media, model.Media{URL: u, Type: thumbnailType})
		}
	}
	return media
}

func attr(e ext.Extension, name string) string {
	if e.Attrs == nil {
		return ""
	}
	return strings.TrimSpace(e.Attrs[name])
}

// blockSelector lists elements whose boundaries become word breaks.
const blockSelector = "br,p,div,li,tr,h1,h2,h3,h4,h5,h6,blockquote,pre"

// StripHTML returns the plain text of an HTML fragment with runs of
// whitespace collapsed to single spaces.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	doc.Find("script,style").Remove()
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		sel.AfterHtml(" ")
	})
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
