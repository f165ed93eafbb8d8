// Package model defines shared data structures.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SummaryProfile selects how much of an article the summarizer keeps.
type SummaryProfile string

// Summary profiles.
const (
	ProfileShort  SummaryProfile = "short"
	ProfileNormal SummaryProfile = "normal"
	ProfileLong   SummaryProfile = "long"
	ProfileTitle  SummaryProfile = "title"
)

// ParseSummaryProfile maps a user supplied value onto a known profile,
// falling back to normal.
func ParseSummaryProfile(s string) SummaryProfile {
	switch SummaryProfile(strings.ToLower(strings.TrimSpace(s))) {
	case ProfileShort:
		return ProfileShort
	case ProfileLong:
		return ProfileLong
	case ProfileTitle, "title-only", "title_only":
		return ProfileTitle
	default:
		return ProfileNormal
	}
}

// CategoryOther is the sentinel category used when classification fails.
const CategoryOther = "other"

// Feed represents an RSS/Atom feed subscription.
type Feed struct {
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	ChannelID      string         `json:"channel_id,omitempty"` // empty until assigned
	SummaryProfile SummaryProfile `json:"summary_profile"`
	AddedAt        time.Time      `json:"added_at"`
}

// HasDestination reports whether the feed is bound to a channel.
func (f Feed) HasDestination() bool {
	return f.ChannelID != ""
}

// Media is a media reference attached to a feed entry.
type Media struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Article is the canonical in-memory shape of one feed entry.
type Article struct {
	Title        string     `json:"title"`
	Link         string     `json:"link"`
	Author       string     `json:"author,omitempty"`
	Published    *time.Time `json:"published,omitempty"`
	PublishedRaw string     `json:"published_raw,omitempty"`
	Content      string     `json:"content"`
	Summary      string     `json:"summary,omitempty"` // feed-provided summary, HTML stripped
	Media        []Media    `json:"media,omitempty"`
	FeedTitle    string     `json:"feed_title,omitempty"`
	FeedURL      string     `json:"feed_url,omitempty"`
}

// Fingerprint returns the dedup key of the article.
func (a Article) Fingerprint() string {
	return Fingerprint(a.Link, a.Title)
}

// Thumbnail returns the first image-like media URL, if any.
func (a Article) Thumbnail() string {
	for _, m := range a.Media {
		if strings.HasPrefix(m.Type, "image") {
			return m.URL
		}
	}
	return ""
}

// Fingerprint is the hex SHA-256 of link + "|" + title.
func Fingerprint(link, title string) string {
	sum := sha256.Sum256([]byte(link + "|" + title))
	return hex.EncodeToString(sum[:])
}

// ParsedFeed is the normalized result of fetching one feed document.
type ParsedFeed struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description"`
	Language    string    `json:"language"`
	Entries     []Article `json:"entries"`
}

// EnrichedArticle is an Article plus AI generated data.
type EnrichedArticle struct {
	Article
	OriginalTitle string `json:"original_title,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Summarized    bool   `json:"summarized"`
	Category      string `json:"category,omitempty"`
	Classified    bool   `json:"classified"`
	Keywords      string `json:"keywords,omitempty"`
	Processed     bool   `json:"processed"`
	Error         string `json:"error,omitempty"`
}

// DedupRecord marks a feed entry as already delivered.
type DedupRecord struct {
	Fingerprint string
	FeedURL     string
	ChannelID   string
	RecordedAt  time.Time
}

// Snapshot is the stored original content of a delivered article.
type Snapshot struct {
	MessageID string    `json:"message_id"`
	ChannelID string    `json:"channel_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	FeedURL   string    `json:"feed_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is a classification label with its presentation.
type Category struct {
	Name  string `json:"name" yaml:"name"`
	Label string `json:"label" yaml:"label"`
	Emoji string `json:"emoji" yaml:"emoji"`
	Color int    `json:"color,omitempty" yaml:"color,omitempty"`
}

// MessageField is a name/value pair rendered under a message.
type MessageField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Message is a rendering-ready descriptor handed to a chat publisher.
type Message struct {
	Title     string         `json:"title"`
	URL       string         `json:"url,omitempty"`
	Body      string         `json:"body"`
	Thumbnail string         `json:"thumbnail,omitempty"`
	Color     int            `json:"color"`
	Fields    []MessageField `json:"fields,omitempty"`
	Footer    string         `json:"footer,omitempty"`
}

// Settings key constants.
const (
	SettingPollingInterval = "polling_interval_minutes"
)
