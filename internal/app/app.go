// Package app wires configuration, storage, providers, the delivery pipeline
// and the admin API into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aero123421/RSS7/internal/ai"
	"github.com/Aero123421/RSS7/internal/config"
	"github.com/Aero123421/RSS7/internal/database"
	"github.com/Aero123421/RSS7/internal/delivery"
	"github.com/Aero123421/RSS7/internal/discord"
	"github.com/Aero123421/RSS7/internal/feeds"
	"github.com/Aero123421/RSS7/internal/qa"
	"github.com/Aero123421/RSS7/internal/rss"
	"github.com/Aero123421/RSS7/internal/server"
)

// outboxLimit bounds the outbox when no chat platform is connected.
const outboxLimit = 1000

// App is the assembled service.
type App struct {
	cfg *config.Config
	log *slog.Logger

	store     *database.DB
	queue     *delivery.Queue
	worker    *delivery.Worker
	poller    *rss.Poller
	feeds     *feeds.Service
	answerer  *qa.Answerer
	bot       *discord.Bot
	outbox    *delivery.Outbox
	publisher delivery.Publisher
	server    *server.Server
}

// New builds every component from cfg. The caller must Close the App.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", "warning", w)
	}

	store, err := openStore(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: logger, store: store, queue: delivery.NewQueue()}

	if cfg.Discord.Token != "" {
		bot, err := discord.NewBot(cfg.Discord.Token, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.bot = bot
		a.publisher = bot
	} else {
		a.outbox = delivery.NewOutbox(outboxLimit)
		a.publisher = a.outbox
	}

	fetcher := rss.NewFetcher(rss.FetcherConfig{
		Timeout:      cfg.RSS.FetchTimeout,
		MaxRetries:   cfg.RSS.MaxRetries,
		RetryDelay:   cfg.RSS.RetryDelay,
		HostInterval: cfg.RSS.HostInterval,
		UserAgent:    cfg.RSS.UserAgent,
	}, logger)

	primary, secondary, qaProvider := buildProviders(cfg.AI, logger)
	labels := make([]string, 0, len(cfg.Categories))
	for _, c := range cfg.Categories {
		labels = append(labels, c.Name)
	}
	processor := ai.NewProcessor(primary, secondary, qaProvider, ai.ProcessorConfig{
		Summarize:     cfg.AI.Summarize,
		SummaryLength: cfg.AI.SummaryLength,
		Classify:      cfg.AI.Classify,
		Keywords:      cfg.AI.Keywords,
		Labels:        labels,
		Language:      cfg.AI.TargetLanguage,
	}, logger)

	retention := time.Duration(cfg.RSS.RetentionDays) * 24 * time.Hour
	a.worker = delivery.NewWorker(a.queue, processor, a.publisher, store, delivery.WorkerConfig{
		Pacing:      cfg.Delivery.Pacing,
		SnapshotCap: cfg.Delivery.SnapshotCap,
		Message: delivery.MessageOptions{
			Categories:    cfg.Categories,
			DefaultColor:  cfg.Delivery.EmbedColor,
			UseThumbnails: cfg.Delivery.UseThumbnails,
		},
	}, logger)
	a.poller = rss.NewPoller(fetcher, store, a.queue, rss.PollerConfig{
		IntervalMinutes: cfg.RSS.CheckInterval,
		MaxArticles:     cfg.RSS.MaxArticles,
		FeedPause:       cfg.RSS.FeedPause,
		Retention:       retention,
	}, logger)
	a.feeds = feeds.NewService(store, fetcher, a.poller, a.worker, a.publisher, logger)
	a.answerer = qa.NewAnswerer(store, processor, logger)
	if a.bot != nil {
		a.bot.Attach(a.answerer, a.feeds)
	}

	srvCfg := server.Config{
		Store:           store,
		Feeds:           a.feeds,
		QA:              a.answerer,
		Sweeper:         a.poller,
		Queue:           a.queue,
		DefaultInterval: cfg.RSS.CheckInterval,
		Retention:       retention,
		SnapshotCap:     cfg.Delivery.SnapshotCap,
		Logger:          logger,
	}
	if a.outbox != nil {
		srvCfg.Outbox = a.outbox
	}
	a.server = server.New(srvCfg)
	return a, nil
}

func openStore(cfg config.DatabaseConfig, logger *slog.Logger) (*database.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return database.NewPostgres(cfg.DSN, logger)
	default:
		if dir := filepath.Dir(cfg.Path); dir != "." && cfg.Path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return database.New(cfg.Path, logger)
	}
}

// buildProviders returns the primary, secondary and question-answering
// providers. A single Gemini provider is shared so every role draws from
// the same key pool.
func buildProviders(cfg config.AIConfig, logger *slog.Logger) (primary, secondary, qaProvider ai.Provider) {
	var gemini *ai.GeminiProvider
	geminiProvider := func() *ai.GeminiProvider {
		if gemini == nil {
			gemini = ai.NewGeminiProvider(ai.GeminiConfig{
				BaseURL:           cfg.GeminiBaseURL,
				Model:             cfg.GeminiModel,
				Keys:              cfg.GeminiAPIKeys,
				KeyStyle:          cfg.KeyStyle,
				Timeout:           cfg.CallTimeout,
				Cooldown:          cfg.Cooldown,
				MaxRotationCycles: cfg.MaxRotationCycles,
			}, logger)
		}
		return gemini
	}
	build := func(name string) ai.Provider {
		switch name {
		case config.ProviderGemini:
			return geminiProvider()
		case config.ProviderLMStudio:
			return ai.NewOpenAIProvider(ai.OpenAIConfig{
				BaseURL: cfg.LMStudioURL,
				Model:   cfg.LMStudioModel,
				Timeout: cfg.CallTimeout,
			}, logger)
		}
		return nil
	}

	primary = build(cfg.Provider)
	if cfg.FallbackProvider != "" && cfg.FallbackProvider != cfg.Provider {
		secondary = build(cfg.FallbackProvider)
	}
	qaProvider = primary
	if gemini != nil && cfg.QAModel != "" {
		qaProvider = gemini.WithModel(cfg.QAModel)
	}
	return primary, secondary, qaProvider
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// SeedFeeds imports the feeds listed in the configuration.
func (a *App) SeedFeeds(ctx context.Context) {
	for _, fc := range a.cfg.Feeds {
		feed := fc.Feed()
		if err := rss.ValidateURL(feed.URL); err != nil {
			a.log.Warn("skipping configured feed", "url", feed.URL, "err", err)
			continue
		}
		created, err := a.store.GetOrCreateFeed(ctx, feed)
		if err != nil {
			a.log.Error("failed to seed feed", "url", feed.URL, "err", err)
			continue
		}
		if created {
			a.log.Info("feed seeded", "url", feed.URL, "channel", feed.ChannelID)
		}
	}
}

// Run starts every component and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.SeedFeeds(ctx)

	if a.bot != nil {
		if err := a.bot.Start(); err != nil {
			return err
		}
		defer a.bot.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.worker.Run(ctx)
	}()

	a.poller.Start(ctx)

	err := a.server.Run(ctx, a.cfg.API.Addr)
	if err != nil {
		a.log.Error("server failed", "err", err)
	}
	cancel()
	a.poller.Stop()
	wg.Wait()
	a.log.Info("shutdown complete", "undelivered", a.queue.Len())
	return err
}

// SweepOnce runs a single sweep and waits until every enqueued article has
// been delivered.
func (a *App) SweepOnce(ctx context.Context) (rss.SweepResult, error) {
	a.SeedFeeds(ctx)

	if a.bot != nil {
		if err := a.bot.Start(); err != nil {
			return rss.SweepResult{}, err
		}
		defer a.bot.Stop()
	}

	workerCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.worker.Run(workerCtx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	res, ok := a.poller.Sweep(ctx)
	if !ok {
		return res, errors.New("a sweep is already running")
	}
	if err := a.queue.Wait(ctx); err != nil {
		return res, fmt.Errorf("wait for deliveries: %w", err)
	}
	return res, nil
}

// Purge deletes dedup records older than the configured retention.
func (a *App) Purge(ctx context.Context) int64 {
	age := time.Duration(a.cfg.RSS.RetentionDays) * 24 * time.Hour
	if age <= 0 {
		return 0
	}
	return a.store.PurgeOlderThan(ctx, age)
}

// Outbox returns the outbox publisher, or nil when Discord is configured.
func (a *App) Outbox() *delivery.Outbox {
	return a.outbox
}
