package rss

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Aero123421/RSS7/internal/logging"
	"github.com/Aero123421/RSS7/internal/model"
)

type fakeSource struct {
	mu      sync.Mutex
	feeds   map[string]*model.ParsedFeed
	calls   int
	block   chan struct{}
	entered chan struct{}
}

func (s *fakeSource) ParseFeed(ctx context.Context, url string) (*model.ParsedFeed, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	if f, ok := s.feeds[url]; ok {
		return f, nil
	}
	return nil, ErrFetchFailed
}

type fakeStore struct {
	mu      sync.Mutex
	feeds   []model.Feed
	seen    map[string]bool
	purged  int
	titles  map[string]string
	minutes int
}

func (s *fakeStore) ListFeeds(context.Context) ([]model.Feed, error) { return s.feeds, nil }
func (s *fakeStore) IsSeen(_ context.Context, fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[fp]
}
func (s *fakeStore) PurgeOlderThan(context.Context, time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged++
	return 0
}
func (s *fakeStore) GetPollingInterval(_ context.Context, def int) (int, error) {
	if s.minutes > 0 {
		return s.minutes, nil
	}
	return def, nil
}
func (s *fakeStore) UpdateFeedTitle(_ context.Context, url, title string) error {
	if s.titles == nil {
		s.titles = map[string]string{}
	}
	s.titles[url] = title
	return nil
}

type recordingQueue struct {
	mu    sync.Mutex
	items []model.Article
}

func (q *recordingQueue) Enqueue(a model.Article, _ model.Feed) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, a)
}

func day(n int) *time.Time {
	t := time.Date(2024, 5, n, 12, 0, 0, 0, time.UTC)
	return &t
}

func newTestPoller(src FeedSource, store PollerStore, q Enqueuer, maxArticles int) *Poller {
	p := NewPoller(src, store, q, PollerConfig{MaxArticles: maxArticles, Retention: time.Hour}, logging.Discard())
	p.sleep = func(context.Context, time.Duration) error { return nil }
	p.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return p
}

func TestSweepSortsAndCaps(t *testing.T) {
	const url = "https://example.com/feed"
	src := &fakeSource{feeds: map[string]*model.ParsedFeed{
		url: {Title: "Example", Entries: []model.Article{
			{Title: "day3", Link: "https://example.com/3", Published: day(3)},
			{Title: "day1", Link: "https://example.com/1", Published: day(1)},
			{Title: "day2", Link: "https://example.com/2", Published: day(2)},
		}},
	}}
	store := &fakeStore{feeds: []model.Feed{{URL: url, Title: url, ChannelID: "c1"}}, seen: map[string]bool{}}
	q := &recordingQueue{}

	res, ran := newTestPoller(src, store, q, 2).Sweep(context.Background())
	if !ran {
		t.Fatal("sweep did not run")
	}
	if res.Enqueued != 2 {
		t.Fatalf("enqueued = %d, want 2", res.Enqueued)
	}
	if q.items[0].Title != "day3" || q.items[1].Title != "day2" {
		t.Errorf("order = %s, %s; want day3, day2", q.items[0].Title, q.items[1].Title)
	}
	if store.titles[url] != "Example" {
		t.Errorf("feed title not updated: %v", store.titles)
	}
	if store.purged != 1 {
		t.Errorf("purge calls = %d, want 1", store.purged)
	}

	// Nothing was marked seen, so the next sweep offers the same candidates.
	q.items = nil
	newTestPoller(src, store, q, 3).Sweep(context.Background())
	if len(q.items) != 3 {
		t.Errorf("second sweep enqueued %d, want 3", len(q.items))
	}
}

func TestSweepSkipsSeenAndUndestined(t *testing.T) {
	src := &fakeSource{feeds: map[string]*model.ParsedFeed{
		"https://a/feed": {Title: "A", Entries: []model.Article{
			{Title: "old", Link: "https://a/old", Published: day(1)},
			{Title: "new", Link: "https://a/new", Published: day(2)},
		}},
		"https://b/feed": {Title: "B", Entries: []model.Article{{Title: "b", Link: "https://b/1"}}},
	}}
	store := &fakeStore{
		feeds: []model.Feed{
			{URL: "https://a/feed", Title: "A", ChannelID: "c1"},
			{URL: "https://b/feed", Title: "B"},
			{URL: "https://broken/feed", Title: "X", ChannelID: "c2"},
		},
		seen: map[string]bool{model.Fingerprint("https://a/old", "old"): true},
	}
	q := &recordingQueue{}

	res, _ := newTestPoller(src, store, q, 5).Sweep(context.Background())
	if len(q.items) != 1 || q.items[0].Title != "new" {
		t.Fatalf("enqueued = %+v, want only 'new'", q.items)
	}
	if res.Skipped != 1 || res.Failed != 1 || res.Feeds != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestSweepReentrancyGuard(t *testing.T) {
	src := &fakeSource{
		feeds:   map[string]*model.ParsedFeed{},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	store := &fakeStore{feeds: []model.Feed{{URL: "https://a/feed", ChannelID: "c"}}}
	p := newTestPoller(src, store, &recordingQueue{}, 5)

	done := make(chan struct{})
	go func() {
		p.Sweep(context.Background())
		close(done)
	}()
	<-src.entered

	if !p.Running() {
		t.Error("Running() = false during sweep")
	}
	if _, ran := p.Sweep(context.Background()); ran {
		t.Error("overlapping sweep ran")
	}
	close(src.block)
	<-done

	src.block = nil
	src.entered = nil
	if _, ran := p.Sweep(context.Background()); !ran {
		t.Error("sweep after completion did not run")
	}
}

func TestSortNewestFirstUndatedIsNow(t *testing.T) {
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	articles := []model.Article{
		{Title: "old", Published: day(1)},
		{Title: "undated"},
		{Title: "future", Published: &future},
	}
	SortNewestFirst(articles, now)
	want := []string{"future", "undated", "old"}
	for i, w := range want {
		if articles[i].Title != w {
			t.Errorf("articles[%d] = %s, want %s", i, articles[i].Title, w)
		}
	}
}

func TestCandidatesForPropagatesFetchError(t *testing.T) {
	p := newTestPoller(&fakeSource{}, &fakeStore{}, &recordingQueue{}, 5)
	_, err := p.CandidatesFor(context.Background(), model.Feed{URL: "https://x/feed"})
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestPollerStartStop(t *testing.T) {
	src := &fakeSource{feeds: map[string]*model.ParsedFeed{}}
	store := &fakeStore{}
	p := newTestPoller(src, store, &recordingQueue{}, 5)

	p.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for store.purgeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()
	if store.purgeCount() == 0 {
		t.Error("poller never swept")
	}
}

func (s *fakeStore) purgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purged
}
