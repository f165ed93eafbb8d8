// Package database provides storage backends for the delivery ledger,
// article snapshots, feed subscriptions and settings.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/Aero123421/RSS7/internal/model"
)

// Sentinel errors returned by feed and settings operations.
var (
	ErrNotFound     = errors.New("not found")
	ErrFeedNotFound = errors.New("feed not found")
	ErrFeedExists   = errors.New("feed already exists")
)

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL backends satisfy this interface.
//
// Ledger and snapshot operations never return errors: storage failures are
// logged and reported as "not seen" / "not stored", so callers retry the
// entry on the next sweep instead of losing it.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Ledger operations
	IsSeen(ctx context.Context, fingerprint string) bool
	MarkSeen(ctx context.Context, fingerprint, feedURL, channelID string) bool
	PurgeOlderThan(ctx context.Context, age time.Duration) int64

	// Snapshot operations
	SaveSnapshot(ctx context.Context, messageID, channelID string, article model.Article, limit int) bool
	GetSnapshot(ctx context.Context, messageID string) (*model.Snapshot, bool)
	FindRelated(ctx context.Context, keywords []string, excludeMessageID string, limit int) []model.Snapshot
	CountSnapshots(ctx context.Context, channelID string) (int, error)

	// Feed operations
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	GetFeed(ctx context.Context, url string) (*model.Feed, error)
	CreateFeed(ctx context.Context, feed model.Feed) error
	GetOrCreateFeed(ctx context.Context, feed model.Feed) (bool, error)
	DeleteFeed(ctx context.Context, url string) error
	AssignChannel(ctx context.Context, url, channelID string) error
	UpdateFeedTitle(ctx context.Context, url, title string) error
	FeedsByChannel(ctx context.Context, channelID string) ([]model.Feed, error)

	// Settings operations
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetPollingInterval(ctx context.Context, def int) (int, error)
}
