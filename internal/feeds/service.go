// Package feeds implements the administrative operations on subscriptions:
// adding, removing and re-targeting feeds, on-demand checks and OPML
// import/export.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Aero123421/RSS7/internal/database"
	"github.com/Aero123421/RSS7/internal/delivery"
	"github.com/Aero123421/RSS7/internal/model"
	"github.com/Aero123421/RSS7/internal/opml"
	"github.com/Aero123421/RSS7/internal/rss"
)

var (
	// ErrUpstream is returned when a feed cannot be fetched or parsed.
	ErrUpstream = errors.New("feed could not be fetched or parsed")
	// ErrNothingNew is returned by CheckNow when every entry was delivered.
	ErrNothingNew = errors.New("no new entries")
)

// FeedStore is the part of the store the service needs.
type FeedStore interface {
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	GetFeed(ctx context.Context, url string) (*model.Feed, error)
	CreateFeed(ctx context.Context, feed model.Feed) error
	GetOrCreateFeed(ctx context.Context, feed model.Feed) (bool, error)
	DeleteFeed(ctx context.Context, url string) error
	AssignChannel(ctx context.Context, url, channelID string) error
	FeedsByChannel(ctx context.Context, channelID string) ([]model.Feed, error)
}

// CandidateSource lists undelivered entries of a feed, newest first.
type CandidateSource interface {
	CandidatesFor(ctx context.Context, feed model.Feed) ([]model.Article, error)
}

// Deliverer delivers one item immediately.
type Deliverer interface {
	Deliver(ctx context.Context, item delivery.Item) (*delivery.Result, error)
}

// Service coordinates feed administration.
type Service struct {
	store      FeedStore
	fetcher    rss.FeedSource
	candidates CandidateSource
	deliverer  Deliverer
	notifier   delivery.Publisher
	log        *slog.Logger

	now func() time.Time
}

// NewService wires the service. notifier may be nil, in which case removal
// notices are skipped.
func NewService(store FeedStore, fetcher rss.FeedSource, candidates CandidateSource, deliverer Deliverer, notifier delivery.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		fetcher:    fetcher,
		candidates: candidates,
		deliverer:  deliverer,
		notifier:   notifier,
		log:        logger.With("component", "feeds"),
		now:        time.Now,
	}
}

// AddRequest describes a new subscription.
type AddRequest struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	ChannelID      string `json:"channel_id"`
	SummaryProfile string `json:"summary_profile"`
}

// Add validates and fetches the feed, then stores the subscription.
func (s *Service) Add(ctx context.Context, req AddRequest) (*model.Feed, error) {
	url := strings.TrimSpace(req.URL)
	if err := rss.ValidateURL(url); err != nil {
		return nil, err
	}
	if _, err := s.store.GetFeed(ctx, url); err == nil {
		return nil, database.ErrFeedExists
	} else if !errors.Is(err, database.ErrFeedNotFound) {
		return nil, err
	}

	parsed, err := s.fetcher.ParseFeed(ctx, url)
	if err != nil {
		s.log.Warn("feed rejected", "url", url, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = parsed.Title
	}
	feed := model.Feed{
		URL:            url,
		Title:          title,
		ChannelID:      req.ChannelID,
		SummaryProfile: model.ParseSummaryProfile(req.SummaryProfile),
		AddedAt:        s.now().UTC(),
	}
	if err := s.store.CreateFeed(ctx, feed); err != nil {
		return nil, err
	}
	s.log.Info("feed added", "url", url, "title", title, "channel", feed.ChannelID)
	return &feed, nil
}

// Remove deletes a subscription. When notify is set and the feed has a
// destination, a notice is posted there first; a failed notice does not
// stop the removal. Delivered snapshots are kept.
func (s *Service) Remove(ctx context.Context, url string, notify bool) (*model.Feed, error) {
	feed, err := s.store.GetFeed(ctx, url)
	if err != nil {
		return nil, err
	}
	if notify && feed.HasDestination() && s.notifier != nil {
		if err := s.notifier.SendPlain(ctx, feed.ChannelID, RemovalNotice(*feed)); err != nil {
			s.log.Warn("removal notice failed", "url", url, "channel", feed.ChannelID, "err", err)
		}
	}
	if err := s.store.DeleteFeed(ctx, url); err != nil {
		return nil, err
	}
	s.log.Info("feed removed", "url", url)
	return feed, nil
}

// RemovalNotice is the text posted to a channel whose feed was removed.
func RemovalNotice(feed model.Feed) string {
	title := feed.Title
	if title == "" {
		title = feed.URL
	}
	msg := fmt.Sprintf("フィード「%s」の配信を終了しました。", title)
	if !feed.AddedAt.IsZero() {
		msg += fmt.Sprintf("（登録: %s）", humanize.Time(feed.AddedAt))
	}
	return msg
}

// AssignChannel sets the destination of a feed.
func (s *Service) AssignChannel(ctx context.Context, url, channelID string) error {
	if err := s.store.AssignChannel(ctx, url, channelID); err != nil {
		return err
	}
	s.log.Info("feed assigned", "url", url, "channel", channelID)
	return nil
}

// Listing is a feed with a human readable age.
type Listing struct {
	model.Feed
	Added string `json:"added"`
}

// List returns every subscription.
func (s *Service) List(ctx context.Context) ([]Listing, error) {
	feeds, err := s.store.ListFeeds(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(feeds))
	for _, f := range feeds {
		l := Listing{Feed: f}
		if !f.AddedAt.IsZero() {
			l.Added = humanize.RelTime(f.AddedAt, s.now(), "ago", "from now")
		}
		out = append(out, l)
	}
	return out, nil
}

// RemoveByChannel drops every feed delivering to a deleted channel, without
// notices, and returns how many were removed.
func (s *Service) RemoveByChannel(ctx context.Context, channelID string) (int, error) {
	feeds, err := s.store.FeedsByChannel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range feeds {
		if _, err := s.Remove(ctx, f.URL, false); err != nil {
			s.log.Error("cleanup failed", "url", f.URL, "channel", channelID, "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("channel deleted, feeds removed", "channel", channelID, "count", removed)
	}
	return removed, nil
}

// CheckNow delivers the newest undelivered entry of the feed immediately,
// bypassing the delivery queue and its pacing.
func (s *Service) CheckNow(ctx context.Context, url string) (*delivery.Result, error) {
	feed, err := s.store.GetFeed(ctx, url)
	if err != nil {
		return nil, err
	}
	return s.check(ctx, *feed)
}

// CheckChannel runs CheckNow on the first feed delivering to channelID.
func (s *Service) CheckChannel(ctx context.Context, channelID string) (*delivery.Result, error) {
	feeds, err := s.store.FeedsByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return nil, database.ErrFeedNotFound
	}
	return s.check(ctx, feeds[0])
}

func (s *Service) check(ctx context.Context, feed model.Feed) (*delivery.Result, error) {
	if !feed.HasDestination() {
		return nil, delivery.ErrNoDestination
	}
	articles, err := s.candidates.CandidatesFor(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(articles) == 0 {
		return nil, ErrNothingNew
	}
	return s.deliverer.Deliver(ctx, delivery.Item{Article: articles[0], Feed: feed, EnqueuedAt: s.now()})
}

// ImportResult counts the outcome of an OPML import.
type ImportResult struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}

// ImportOPML adds every feed listed in the document that is not already
// subscribed. Feeds are not fetched; the poller fills in missing titles.
func (s *Service) ImportOPML(ctx context.Context, r io.Reader) (ImportResult, error) {
	feeds, err := opml.Parse(r)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Total: len(feeds)}
	for _, f := range feeds {
		if err := rss.ValidateURL(f.URL); err != nil {
			s.log.Warn("skipping opml entry", "url", f.URL, "err", err)
			continue
		}
		if f.Title == "" {
			f.Title = f.URL
		}
		f.AddedAt = s.now().UTC()
		created, err := s.store.GetOrCreateFeed(ctx, f)
		if err != nil {
			s.log.Error("opml import failed", "url", f.URL, "err", err)
			continue
		}
		if created {
			res.Imported++
		}
	}
	s.log.Info("opml imported", "imported", res.Imported, "total", res.Total)
	return res, nil
}

// ExportOPML renders every subscription as OPML.
func (s *Service) ExportOPML(ctx context.Context) ([]byte, error) {
	feeds, err := s.store.ListFeeds(ctx)
	if err != nil {
		return nil, err
	}
	return opml.Export("RSS7 Feeds", feeds)
}
