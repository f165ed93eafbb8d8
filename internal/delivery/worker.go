package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aero123421/RSS7/internal/model"
)

// DefaultPacing is the pause after each delivered item.
const DefaultPacing = 10 * time.Second

var (
	// ErrNoDestination is returned for items whose feed has no channel.
	ErrNoDestination = errors.New("feed has no destination channel")
	// ErrAlreadyDelivered is returned for items recorded as delivered after
	// they were enqueued.
	ErrAlreadyDelivered = errors.New("entry already delivered")
)

// Enricher turns a canonical article into an enriched one.
type Enricher interface {
	Process(ctx context.Context, article model.Article, feed model.Feed) model.EnrichedArticle
}

// Recorder persists what was delivered.
type Recorder interface {
	IsSeen(ctx context.Context, fingerprint string) bool
	SaveSnapshot(ctx context.Context, messageID, channelID string, article model.Article, limit int) bool
	MarkSeen(ctx context.Context, fingerprint, feedURL, channelID string) bool
}

// WorkerConfig tunes the Worker.
type WorkerConfig struct {
	Pacing      time.Duration
	SnapshotCap int
	Message     MessageOptions
}

// Result describes one delivered article.
type Result struct {
	MessageID string                `json:"message_id"`
	ChannelID string                `json:"channel_id"`
	Article   model.EnrichedArticle `json:"article"`
}

// Worker is the single consumer of the delivery queue.
type Worker struct {
	queue     *Queue
	enricher  Enricher
	publisher Publisher
	store     Recorder
	cfg       WorkerConfig
	log       *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewWorker creates a worker draining queue.
func NewWorker(queue *Queue, enricher Enricher, publisher Publisher, store Recorder, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:     queue,
		enricher:  enricher,
		publisher: publisher,
		store:     store,
		cfg:       cfg,
		log:       logger.With("component", "worker"),
		sleep:     sleepContext,
	}
}

// Run processes items until ctx is cancelled. An item already popped is
// always finished, even if ctx ends while it is being delivered.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("delivery worker started", "pacing", w.cfg.Pacing)
	for {
		item, err := w.queue.Pop(ctx)
		if err != nil {
			w.log.Info("delivery worker stopped", "pending", w.queue.Len())
			return
		}
		w.handle(ctx, item)
		w.queue.Done()

		if err := w.sleep(ctx, w.cfg.Pacing); err != nil {
			w.log.Info("delivery worker stopped", "pending", w.queue.Len())
			return
		}
	}
}

// handle delivers one item and swallows every failure.
func (w *Worker) handle(ctx context.Context, item Item) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("delivery panicked", "url", item.Article.Link, "panic", r)
		}
	}()
	res, err := w.Deliver(context.WithoutCancel(ctx), item)
	if errors.Is(err, ErrAlreadyDelivered) {
		w.log.Info("skipping already delivered article", "url", item.Article.Link, "feed", item.Feed.URL)
		return
	}
	if err != nil {
		w.log.Error("delivery failed", "url", item.Article.Link, "feed", item.Feed.URL, "err", err)
		return
	}
	w.log.Info("article delivered",
		"title", res.Article.Title,
		"channel", res.ChannelID,
		"message_id", res.MessageID,
		"waited", time.Since(item.EnqueuedAt).Round(time.Second))
}

// Deliver enriches, publishes and records one item. The dedup ledger is
// only written after a successful publish, so a failed item is retried on
// a later sweep. The ledger is checked again before enriching: a sweep can
// enqueue an entry that is still waiting from the previous sweep.
func (w *Worker) Deliver(ctx context.Context, item Item) (*Result, error) {
	if !item.Feed.HasDestination() {
		return nil, ErrNoDestination
	}
	channelID := item.Feed.ChannelID
	fp := item.Article.Fingerprint()
	if w.store.IsSeen(ctx, fp) {
		return nil, ErrAlreadyDelivered
	}

	enriched := w.enricher.Process(ctx, item.Article, item.Feed)
	if !enriched.Processed {
		w.log.Warn("posting unprocessed article", "url", item.Article.Link, "err", enriched.Error)
	}

	msg := BuildMessage(enriched, w.cfg.Message)
	messageID, err := w.publisher.Publish(ctx, channelID, msg)
	if err != nil {
		return nil, fmt.Errorf("publish to %s: %w", channelID, err)
	}

	if !w.store.SaveSnapshot(ctx, messageID, channelID, item.Article, w.cfg.SnapshotCap) {
		w.log.Warn("snapshot not stored", "message_id", messageID)
	}
	if !w.store.MarkSeen(ctx, fp, item.Feed.URL, channelID) {
		w.log.Warn("delivery not recorded", "fingerprint", fp)
	}

	return &Result{MessageID: messageID, ChannelID: channelID, Article: enriched}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
