package opml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Aero123421/RSS7/internal/model"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>subs</title></head>
  <body>
    <outline text="Loose" xmlUrl="https://loose.example/feed" summaryProfile="short"/>
    <outline text="news" channel="123">
      <outline text="Go Blog" title="The Go Blog" xmlUrl="https://go.dev/blog/feed.atom"/>
      <outline text="Other" xmlUrl="https://other.example/rss" channel="456" summaryProfile="title"/>
      <outline text="nested">
        <outline text="Deep" xmlUrl=" https://deep.example/rss "/>
      </outline>
    </outline>
  </body>
</opml>`

func TestParse(t *testing.T) {
	feeds, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Feed{
		{URL: "https://loose.example/feed", Title: "Loose", SummaryProfile: model.ProfileShort},
		{URL: "https://go.dev/blog/feed.atom", Title: "The Go Blog", ChannelID: "123", SummaryProfile: model.ProfileNormal},
		{URL: "https://other.example/rss", Title: "Other", ChannelID: "456", SummaryProfile: model.ProfileTitle},
		{URL: "https://deep.example/rss", Title: "Deep", ChannelID: "123", SummaryProfile: model.ProfileNormal},
	}
	if len(feeds) != len(want) {
		t.Fatalf("got %d feeds: %+v", len(feeds), feeds)
	}
	for i := range want {
		if feeds[i] != want[i] {
			t.Errorf("feed %d = %+v, want %+v", i, feeds[i], want[i])
		}
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse(strings.NewReader("<opml><body>")); err == nil {
		t.Error("expected error for truncated document")
	}
}

func TestExportRoundTrip(t *testing.T) {
	in := []model.Feed{
		{URL: "https://b.example/rss", Title: "B", ChannelID: "2", SummaryProfile: model.ProfileLong},
		{URL: "https://a.example/rss", Title: "A", ChannelID: "1", SummaryProfile: model.ProfileNormal},
		{URL: "https://c.example/rss", Title: "C"},
	}
	out, err := Export("RSS7", in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, []byte("<?xml")) {
		t.Error("missing xml header")
	}
	feeds, err := Parse(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	// Unassigned feeds first, then folders sorted by channel.
	order := []string{"https://c.example/rss", "https://a.example/rss", "https://b.example/rss"}
	if len(feeds) != len(order) {
		t.Fatalf("feeds = %+v", feeds)
	}
	for i, url := range order {
		if feeds[i].URL != url {
			t.Errorf("feed %d = %s, want %s", i, feeds[i].URL, url)
		}
	}
	if feeds[2].ChannelID != "2" || feeds[2].SummaryProfile != model.ProfileLong {
		t.Errorf("channel settings lost: %+v", feeds[2])
	}
}
