// Package opml converts feed subscriptions to and from OPML documents.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Aero123421/RSS7/internal/model"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a feed or a folder of outlines. Channel and SummaryProfile are
// extension attributes carrying the delivery settings of a subscription.
type Outline struct {
	Text           string    `xml:"text,attr"`
	Title          string    `xml:"title,attr,omitempty"`
	Type           string    `xml:"type,attr,omitempty"`
	XMLURL         string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL        string    `xml:"htmlUrl,attr,omitempty"`
	Channel        string    `xml:"channel,attr,omitempty"`
	SummaryProfile string    `xml:"summaryProfile,attr,omitempty"`
	Outlines       []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and returns the feeds it lists. A feed
// without its own channel attribute inherits the nearest folder's.
func Parse(r io.Reader) ([]model.Feed, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var feeds []model.Feed
	var walk func(outlines []Outline, channel string)
	walk = func(outlines []Outline, channel string) {
		for _, o := range outlines {
			ch := o.Channel
			if ch == "" {
				ch = channel
			}
			if url := strings.TrimSpace(o.XMLURL); url != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				feeds = append(feeds, model.Feed{
					URL:            url,
					Title:          title,
					ChannelID:      ch,
					SummaryProfile: model.ParseSummaryProfile(o.SummaryProfile),
				})
				continue
			}
			walk(o.Outlines, ch)
		}
	}
	walk(doc.Body.Outlines, "")
	return feeds, nil
}

// Export writes feeds as an OPML document. Feeds are grouped into one folder
// per destination channel; unassigned feeds stay at the top level.
func Export(title string, feeds []model.Feed) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}

	folders := make(map[string]*Outline)
	var channels []string
	var root []Outline
	for _, f := range feeds {
		o := Outline{
			Text:           f.Title,
			Title:          f.Title,
			Type:           "rss",
			XMLURL:         f.URL,
			SummaryProfile: string(f.SummaryProfile),
		}
		if f.ChannelID == "" {
			root = append(root, o)
			continue
		}
		folder, ok := folders[f.ChannelID]
		if !ok {
			folder = &Outline{Text: f.ChannelID, Channel: f.ChannelID}
			folders[f.ChannelID] = folder
			channels = append(channels, f.ChannelID)
		}
		folder.Outlines = append(folder.Outlines, o)
	}

	sort.Strings(channels)
	for _, ch := range channels {
		root = append(root, *folders[ch])
	}
	doc.Body.Outlines = root

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode opml: %w", err)
	}
	return append([]byte(xml.Header), output...), nil
}
