package feeds

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Aero123421/RSS7/internal/database"
	"github.com/Aero123421/RSS7/internal/delivery"
	"github.com/Aero123421/RSS7/internal/logging"
	"github.com/Aero123421/RSS7/internal/model"
	"github.com/Aero123421/RSS7/internal/rss"
)

type stubSource struct {
	feed *model.ParsedFeed
	err  error
}

func (s stubSource) ParseFeed(context.Context, string) (*model.ParsedFeed, error) {
	return s.feed, s.err
}

type stubCandidates struct {
	articles []model.Article
	err      error
}

func (s stubCandidates) CandidatesFor(context.Context, model.Feed) ([]model.Article, error) {
	return s.articles, s.err
}

type recordingDeliverer struct {
	items []delivery.Item
}

func (d *recordingDeliverer) Deliver(_ context.Context, item delivery.Item) (*delivery.Result, error) {
	d.items = append(d.items, item)
	return &delivery.Result{MessageID: "m1", ChannelID: item.Feed.ChannelID}, nil
}

type recordingNotifier struct {
	notices map[string]string
	err     error
}

func (n *recordingNotifier) Publish(context.Context, string, model.Message) (string, error) {
	return "", errors.New("not used")
}

func (n *recordingNotifier) SendPlain(_ context.Context, channelID, text string) error {
	if n.notices == nil {
		n.notices = map[string]string{}
	}
	n.notices[channelID] = text
	return n.err
}

type fixture struct {
	svc      *Service
	db       *database.DB
	deliver  *recordingDeliverer
	notifier *recordingNotifier
}

func newFixture(t *testing.T, src stubSource, cands stubCandidates) *fixture {
	t.Helper()
	db, err := database.New(":memory:", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	f := &fixture{db: db, deliver: &recordingDeliverer{}, notifier: &recordingNotifier{}}
	f.svc = NewService(db, src, cands, f.deliver, f.notifier, logging.Discard())
	return f
}

var okSource = stubSource{feed: &model.ParsedFeed{Title: "Example Blog", Entries: []model.Article{{Title: "x"}}}}

func TestAdd(t *testing.T) {
	f := newFixture(t, okSource, stubCandidates{})
	ctx := context.Background()

	feed, err := f.svc.Add(ctx, AddRequest{URL: " https://example.com/feed ", ChannelID: "c1", SummaryProfile: "short"})
	if err != nil {
		t.Fatal(err)
	}
	if feed.Title != "Example Blog" || feed.URL != "https://example.com/feed" || feed.SummaryProfile != model.ProfileShort {
		t.Errorf("feed = %+v", feed)
	}
	stored, err := f.db.GetFeed(ctx, feed.URL)
	if err != nil || stored.ChannelID != "c1" {
		t.Fatalf("stored = %+v, %v", stored, err)
	}

	if _, err := f.svc.Add(ctx, AddRequest{URL: "https://example.com/feed"}); !errors.Is(err, database.ErrFeedExists) {
		t.Errorf("duplicate add = %v", err)
	}
	if _, err := f.svc.Add(ctx, AddRequest{URL: "ftp://example.com/feed"}); !errors.Is(err, rss.ErrInvalidURL) {
		t.Errorf("invalid url = %v", err)
	}
}

func TestAddUpstreamFailure(t *testing.T) {
	f := newFixture(t, stubSource{err: rss.ErrNoEntries}, stubCandidates{})
	_, err := f.svc.Add(context.Background(), AddRequest{URL: "https://example.com/empty"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if feeds, _ := f.db.ListFeeds(context.Background()); len(feeds) != 0 {
		t.Errorf("failed feed persisted: %+v", feeds)
	}
}

func TestRemoveNotifies(t *testing.T) {
	f := newFixture(t, okSource, stubCandidates{})
	ctx := context.Background()
	f.db.CreateFeed(ctx, model.Feed{URL: "https://example.com/feed", Title: "Blog", ChannelID: "c1", AddedAt: time.Now().Add(-48 * time.Hour)})

	f.notifier.err = errors.New("channel gone")
	if _, err := f.svc.Remove(ctx, "https://example.com/feed", true); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	notice := f.notifier.notices["c1"]
	if !strings.Contains(notice, "Blog") || !strings.Contains(notice, "ago") {
		t.Errorf("notice = %q", notice)
	}
	if _, err := f.db.GetFeed(ctx, "https://example.com/feed"); !errors.Is(err, database.ErrFeedNotFound) {
		t.Errorf("feed still present: %v", err)
	}
	if _, err := f.svc.Remove(ctx, "https://example.com/feed", true); !errors.Is(err, database.ErrFeedNotFound) {
		t.Errorf("second Remove = %v", err)
	}
}

func TestRemoveByChannel(t *testing.T) {
	f := newFixture(t, okSource, stubCandidates{})
	ctx := context.Background()
	f.db.CreateFeed(ctx, model.Feed{URL: "https://a.example/rss", ChannelID: "gone"})
	f.db.CreateFeed(ctx, model.Feed{URL: "https://b.example/rss", ChannelID: "gone"})
	f.db.CreateFeed(ctx, model.Feed{URL: "https://c.example/rss", ChannelID: "kept"})

	n, err := f.svc.RemoveByChannel(ctx, "gone")
	if err != nil || n != 2 {
		t.Fatalf("RemoveByChannel = %d, %v", n, err)
	}
	if len(f.notifier.notices) != 0 {
		t.Errorf("notices sent to deleted channel: %v", f.notifier.notices)
	}
	feeds, _ := f.svc.List(ctx)
	if len(feeds) != 1 || feeds[0].URL != "https://c.example/rss" {
		t.Errorf("remaining = %+v", feeds)
	}
	if feeds[0].Added == "" {
		t.Error("listing has no humanized age")
	}
}

func TestCheckNow(t *testing.T) {
	newest := model.Article{Title: "newest", Link: "https://example.com/new"}
	f := newFixture(t, okSource, stubCandidates{articles: []model.Article{newest, {Title: "older"}}})
	ctx := context.Background()
	f.db.CreateFeed(ctx, model.Feed{URL: "https://example.com/feed", ChannelID: "c1"})

	res, err := f.svc.CheckNow(ctx, "https://example.com/feed")
	if err != nil {
		t.Fatal(err)
	}
	if res.MessageID != "m1" || len(f.deliver.items) != 1 || f.deliver.items[0].Article.Title != "newest" {
		t.Errorf("delivered = %+v", f.deliver.items)
	}

	res, err = f.svc.CheckChannel(ctx, "c1")
	if err != nil || res.ChannelID != "c1" {
		t.Errorf("CheckChannel = %+v, %v", res, err)
	}
	if _, err := f.svc.CheckChannel(ctx, "nope"); !errors.Is(err, database.ErrFeedNotFound) {
		t.Errorf("unknown channel = %v", err)
	}
}

func TestCheckNowNothingNew(t *testing.T) {
	f := newFixture(t, okSource, stubCandidates{})
	ctx := context.Background()
	f.db.CreateFeed(ctx, model.Feed{URL: "https://example.com/feed", ChannelID: "c1"})
	f.db.CreateFeed(ctx, model.Feed{URL: "https://example.com/nodest"})

	if _, err := f.svc.CheckNow(ctx, "https://example.com/feed"); !errors.Is(err, ErrNothingNew) {
		t.Errorf("err = %v, want ErrNothingNew", err)
	}
	if _, err := f.svc.CheckNow(ctx, "https://example.com/nodest"); !errors.Is(err, delivery.ErrNoDestination) {
		t.Errorf("err = %v, want ErrNoDestination", err)
	}
	if len(f.deliver.items) != 0 {
		t.Error("something was delivered")
	}
}

func TestImportExportOPML(t *testing.T) {
	f := newFixture(t, okSource, stubCandidates{})
	ctx := context.Background()
	f.db.CreateFeed(ctx, model.Feed{URL: "https://existing.example/rss", Title: "Existing"})

	doc := `<opml version="2.0"><body>
  <outline text="Existing" xmlUrl="https://existing.example/rss"/>
  <outline text="news" channel="c9">
    <outline text="New" xmlUrl="https://new.example/rss" summaryProfile="long"/>
  </outline>
  <outline text="Bad" xmlUrl="not a url"/>
</body></opml>`
	res, err := f.svc.ImportOPML(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 || res.Total != 3 {
		t.Errorf("result = %+v", res)
	}
	feed, err := f.db.GetFeed(ctx, "https://new.example/rss")
	if err != nil || feed.ChannelID != "c9" || feed.SummaryProfile != model.ProfileLong {
		t.Fatalf("imported feed = %+v, %v", feed, err)
	}

	out, err := f.svc.ExportOPML(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `channel="c9"`) || !strings.Contains(string(out), "existing.example") {
		t.Errorf("export = %s", out)
	}
}
