package rss

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aero123421/RSS7/internal/model"
)

// MinPollingIntervalMinutes is the minimum allowed interval.
const MinPollingIntervalMinutes = 1

// Poller defaults.
const (
	DefaultIntervalMinutes = 15
	DefaultMaxArticles     = 5
	DefaultFeedPause       = time.Second
)

// FeedSource fetches and normalizes one feed.
type FeedSource interface {
	ParseFeed(ctx context.Context, url string) (*model.ParsedFeed, error)
}

// PollerStore is the part of the store the poller needs.
type PollerStore interface {
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	IsSeen(ctx context.Context, fingerprint string) bool
	PurgeOlderThan(ctx context.Context, age time.Duration) int64
	GetPollingInterval(ctx context.Context, def int) (int, error)
	UpdateFeedTitle(ctx context.Context, url, title string) error
}

// Enqueuer accepts articles for delivery.
type Enqueuer interface {
	Enqueue(article model.Article, feed model.Feed)
}

// PollerConfig tunes the Poller. Zero fields take the defaults above.
type PollerConfig struct {
	IntervalMinutes int
	MaxArticles     int
	FeedPause       time.Duration
	Retention       time.Duration // dedup records older than this are purged after each sweep; 0 disables
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Feeds    int `json:"feeds"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Enqueued int `json:"enqueued"`
	Purged   int `json:"purged"`
}

// Poller runs continuous polling.
type Poller struct {
	fetcher FeedSource
	db      PollerStore
	queue   Enqueuer
	cfg     PollerConfig
	log     *slog.Logger

	running  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewPoller creates a background poller.
func NewPoller(fetcher FeedSource, db PollerStore, queue Enqueuer, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.IntervalMinutes < MinPollingIntervalMinutes {
		cfg.IntervalMinutes = DefaultIntervalMinutes
	}
	if cfg.MaxArticles < 1 {
		cfg.MaxArticles = DefaultMaxArticles
	}
	if cfg.FeedPause < 0 {
		cfg.FeedPause = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		fetcher:  fetcher,
		db:       db,
		queue:    queue,
		cfg:      cfg,
		log:      logger.With("component", "poller"),
		stopChan: make(chan struct{}),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Running reports whether a sweep is in progress.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// Sweep checks every feed once. It returns false without doing anything when
// another sweep is already running.
func (p *Poller) Sweep(ctx context.Context) (SweepResult, bool) {
	if !p.running.CompareAndSwap(false, true) {
		p.log.Info("sweep already running, skipping trigger")
		return SweepResult{}, false
	}
	defer p.running.Store(false)

	var res SweepResult
	feeds, err := p.db.ListFeeds(ctx)
	if err != nil {
		p.log.Error("list feeds", "err", err)
		return res, true
	}
	p.log.Info("sweep started", "feeds", len(feeds))

	for i, feed := range feeds {
		if ctx.Err() != nil {
			p.log.Info("sweep cancelled", "done", i, "total", len(feeds))
			return res, true
		}
		if i > 0 && p.cfg.FeedPause > 0 {
			if err := p.sleep(ctx, p.cfg.FeedPause); err != nil {
				return res, true
			}
		}
		res.Feeds++
		if !feed.HasDestination() {
			p.log.Warn("feed has no destination channel, skipping", "url", feed.URL)
			res.Skipped++
			continue
		}
		n, err := p.checkFeed(ctx, feed)
		if err != nil {
			res.Failed++
			continue
		}
		res.Enqueued += n
	}

	if p.cfg.Retention > 0 {
		res.Purged = int(p.db.PurgeOlderThan(ctx, p.cfg.Retention))
	}
	p.log.Info("sweep finished", "feeds", res.Feeds, "enqueued", res.Enqueued,
		"failed", res.Failed, "skipped", res.Skipped)
	return res, true
}

// checkFeed enqueues up to MaxArticles of the newest unseen entries.
func (p *Poller) checkFeed(ctx context.Context, feed model.Feed) (int, error) {
	candidates, err := p.CandidatesFor(ctx, feed)
	if err != nil {
		return 0, err
	}
	if len(candidates) > p.cfg.MaxArticles {
		p.log.Debug("capping batch", "url", feed.URL, "candidates", len(candidates), "max", p.cfg.MaxArticles)
		candidates = candidates[:p.cfg.MaxArticles]
	}
	for _, a := range candidates {
		p.queue.Enqueue(a, feed)
	}
	if len(candidates) > 0 {
		p.log.Info("enqueued new articles", "url", feed.URL, "count", len(candidates))
	}
	return len(candidates), nil
}

// CandidatesFor fetches feed and returns its unseen entries, newest first.
// Entries without a parseable date sort as if published now.
func (p *Poller) CandidatesFor(ctx context.Context, feed model.Feed) ([]model.Article, error) {
	parsed, err := p.fetcher.ParseFeed(ctx, feed.URL)
	if err != nil {
		p.log.Warn("skipping feed this cycle", "url", feed.URL, "err", err)
		return nil, err
	}

	// Update feed title from the document if it is still just the URL.
	if parsed.Title != "" && parsed.Title != defaultFeedTitle && feed.Title == feed.URL {
		if err := p.db.UpdateFeedTitle(ctx, feed.URL, parsed.Title); err != nil {
			p.log.Warn("update feed title", "url", feed.URL, "err", err)
		}
	}

	var unseen []model.Article
	for _, a := range parsed.Entries {
		if p.db.IsSeen(ctx, a.Fingerprint()) {
			continue
		}
		unseen = append(unseen, a)
	}
	SortNewestFirst(unseen, p.now())
	return unseen, nil
}

// SortNewestFirst orders articles by descending publish date. Undated
// articles take now as their date.
func SortNewestFirst(articles []model.Article, now time.Time) {
	key := func(a model.Article) time.Time {
		if a.Published == nil {
			return now
		}
		return *a.Published
	}
	sort.SliceStable(articles, func(i, j int) bool {
		return key(articles[i]).After(key(articles[j]))
	})
}

// Start begins the polling loop. The interval is re-read from the settings
// store before each wait.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		go func() {
			select {
			case <-p.stopChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		for {
			p.Sweep(ctx)

			interval := p.interval(ctx)
			p.log.Info("next sweep scheduled", "interval", interval)
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()
}

func (p *Poller) interval(ctx context.Context) time.Duration {
	mins, err := p.db.GetPollingInterval(ctx, p.cfg.IntervalMinutes)
	if err != nil {
		p.log.Warn("read polling interval", "err", err)
	}
	if mins < MinPollingIntervalMinutes {
		mins = MinPollingIntervalMinutes
	}
	return time.Duration(mins) * time.Minute
}

// Stop stops the poller gracefully.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}
