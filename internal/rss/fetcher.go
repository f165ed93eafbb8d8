// Package rss provides feed fetching, normalization and the poll scheduler.
package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/Aero123421/RSS7/internal/model"
)

// Fetch errors. Callers skip the feed for this cycle on any of them.
var (
	ErrInvalidURL  = errors.New("invalid feed url")
	ErrNoEntries   = errors.New("feed has no entries")
	ErrFetchFailed = errors.New("feed fetch failed")
)

// Fetch defaults.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = time.Second
	DefaultHostInterval = 500 * time.Millisecond
	DefaultUserAgent    = "Discord RSS Bot/1.0"

	// maxFeedBytes caps how much of a feed document is read.
	maxFeedBytes = 10 << 20
)

// FetcherConfig tunes the Fetcher. Zero fields take the defaults above.
type FetcherConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	HostInterval time.Duration
	UserAgent    string
}

func (c FetcherConfig) withDefaults() FetcherConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	} else if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.HostInterval <= 0 {
		c.HostInterval = DefaultHostInterval
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// domainLimiter spaces out requests to the same host.
type domainLimiter struct {
	mu       sync.Mutex
	every    time.Duration
	limiters map[string]*rate.Limiter
}

func newDomainLimiter(every time.Duration) *domainLimiter {
	return &domainLimiter{
		every:    every,
		limiters: make(map[string]*rate.Limiter),
	}
}

// wait blocks until a request to host is allowed.
func (dl *domainLimiter) wait(ctx context.Context, host string) error {
	dl.mu.Lock()
	lim, ok := dl.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(dl.every), 1)
		dl.limiters[host] = lim
	}
	dl.mu.Unlock()
	return lim.Wait(ctx)
}

// Fetcher retrieves feed documents and normalizes their entries.
type Fetcher struct {
	client        *http.Client
	cfg           FetcherConfig
	domainLimiter *domainLimiter
	log           *slog.Logger
	sleep         func(context.Context, time.Duration) error
}

// NewFetcher creates a fetcher. A nil logger uses slog.Default().
func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:        &http.Client{Timeout: cfg.Timeout},
		cfg:           cfg,
		domainLimiter: newDomainLimiter(cfg.HostInterval),
		log:           logger.With("component", "fetcher"),
		sleep:         sleepContext,
	}
}

// ValidateURL checks that rawURL has a scheme and a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return nil
}

// ParseFeed fetches and parses the feed at rawURL. Transport errors, non-200
// responses and unparseable documents are retried up to MaxRetries times with
// a fixed delay. A feed with zero entries fails with ErrNoEntries.
func (f *Fetcher) ParseFeed(ctx context.Context, rawURL string) (*model.ParsedFeed, error) {
	if err := ValidateURL(rawURL); err != nil {
		f.log.Error("invalid feed url", "url", rawURL)
		return nil, err
	}
	host := extractDomain(rawURL)

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}
		if err := f.domainLimiter.wait(ctx, host); err != nil {
			return nil, fmt.Errorf("rate limit cancelled for %s: %w", rawURL, err)
		}

		body, err := f.get(ctx, rawURL)
		if err != nil {
			lastErr = err
			f.log.Warn("feed fetch attempt failed", "url", rawURL, "attempt", attempt, "err", err)
			continue
		}

		parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
		if err != nil {
			lastErr = fmt.Errorf("parse: %w", err)
			f.log.Warn("feed parse attempt failed", "url", rawURL, "attempt", attempt, "err", err)
			continue
		}
		if len(parsed.Items) == 0 {
			f.log.Warn("feed has no entries", "url", rawURL)
			return nil, fmt.Errorf("%w: %s", ErrNoEntries, rawURL)
		}
		return normalizeFeed(parsed, rawURL), nil
	}

	f.log.Error("feed fetch failed after retries", "url", rawURL, "attempts", f.cfg.MaxRetries, "err", lastErr)
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrFetchFailed, rawURL, f.cfg.MaxRetries, lastErr)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL // fallback to full URL
	}
	return u.Host
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
