package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aero123421/RSS7/internal/logging"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
  xmlns:content="http://purl.org/rss/1.0/modules/content/"
  xmlns:media="http://search.yahoo.com/mrss/"
  xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>Example Feed</title>
  <link>https://example.com</link>
  <description>Example &lt;b&gt;news&lt;/b&gt;</description>
  <item>
    <title>First post</title>
    <link>https://example.com/1</link>
    <dc:creator>Alice</dc:creator>
    <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    <description>&lt;p&gt;Short &lt;b&gt;summary&lt;/b&gt;&lt;/p&gt;</description>
    <content:encoded><![CDATA[<p>Full</p><p>body   text</p><script>alert(1)</script>]]></content:encoded>
    <enclosure url="https://example.com/a.mp3" type="audio/mpeg" length="1"/>
    <media:content url="https://example.com/v.mp4" type="video/mp4"/>
    <media:thumbnail url="https://example.com/t.jpg"/>
  </item>
  <item>
    <title>Second post</title>
    <link>https://example.com/2</link>
    <description>Only a summary</description>
  </item>
</channel>
</rss>`

const emptyRSS = `<?xml version="1.0"?><rss version="2.0"><channel><title>Empty</title></channel></rss>`

func newTestFetcher() *Fetcher {
	f := NewFetcher(FetcherConfig{HostInterval: time.Millisecond}, logging.Discard())
	f.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func TestParseFeedNormalizes(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		fmt.Fprint(w, sampleRSS)
	}))
	defer srv.Close()

	feed, err := newTestFetcher().ParseFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if got := ua.Load(); got != DefaultUserAgent {
		t.Errorf("User-Agent = %v, want %q", got, DefaultUserAgent)
	}
	if feed.Title != "Example Feed" || feed.Description != "Example news" || feed.Language != "en" {
		t.Errorf("feed metadata = %+v", feed)
	}
	if len(feed.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(feed.Entries))
	}

	first := feed.Entries[0]
	if first.Content != "Full body text" {
		t.Errorf("content = %q", first.Content)
	}
	if first.Summary != "Short summary" {
		t.Errorf("summary = %q", first.Summary)
	}
	if first.Author != "Alice" {
		t.Errorf("author = %q", first.Author)
	}
	if first.Published == nil || first.Published.Year() != 2006 {
		t.Errorf("published = %v", first.Published)
	}
	if first.FeedTitle != "Example Feed" || first.FeedURL != srv.URL {
		t.Errorf("provenance = %q %q", first.FeedTitle, first.FeedURL)
	}
	wantMedia := []string{"https://example.com/a.mp3", "https://example.com/v.mp4", "https://example.com/t.jpg"}
	if len(first.Media) != len(wantMedia) {
		t.Fatalf("media = %+v", first.Media)
	}
	for i, u := range wantMedia {
		if first.Media[i].URL != u {
			t.Errorf("media[%d] = %q, want %q", i, first.Media[i].URL, u)
		}
	}
	if first.Media[2].Type != thumbnailType {
		t.Errorf("thumbnail type = %q", first.Media[2].Type)
	}
	if first.Thumbnail() != "https://example.com/t.jpg" {
		t.Errorf("Thumbnail() = %q", first.Thumbnail())
	}

	second := feed.Entries[1]
	if second.Content != "Only a summary" {
		t.Errorf("content fallback = %q", second.Content)
	}
	if second.Published != nil {
		t.Errorf("undated entry has date %v", second.Published)
	}
}

func TestParseFeedInvalidURL(t *testing.T) {
	f := newTestFetcher()
	for _, u := range []string{"", "example.com/feed", "ftp://example.com/feed", "http://"} {
		if _, err := f.ParseFeed(context.Background(), u); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("ParseFeed(%q) err = %v, want ErrInvalidURL", u, err)
		}
	}
}

func TestParseFeedRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, sampleRSS)
	}))
	defer srv.Close()

	if _, err := newTestFetcher().ParseFeed(context.Background(), srv.URL); err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestParseFeedGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "not a feed")
	}))
	defer srv.Close()

	_, err := newTestFetcher().ParseFeed(context.Background(), srv.URL)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("err = %v, want ErrFetchFailed", err)
	}
	if calls.Load() != DefaultMaxRetries {
		t.Errorf("calls = %d, want %d", calls.Load(), DefaultMaxRetries)
	}
}

func TestParseFeedNoEntries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, emptyRSS)
	}))
	defer srv.Close()

	_, err := newTestFetcher().ParseFeed(context.Background(), srv.URL)
	if !errors.Is(err, ErrNoEntries) {
		t.Fatalf("err = %v, want ErrNoEntries", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain   text\n here", "plain text here"},
		{"<p>a</p><p>b</p>", "a b"},
		{"x<br>y", "x y"},
		{"<b>bold</b> &amp; <i>it</i>", "bold & it"},
		{"<style>p{}</style>kept", "kept"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
