package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Aero123421/RSS7/internal/model"
)

// --- Feed Methods ---

// ListFeeds returns all feeds in the order they were added.
func (db *DB) ListFeeds(ctx context.Context) ([]model.Feed, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.queryFeeds(ctx, db.feedSelect().OrderBy("added_at", "url"))
}

// GetFeed returns the feed with the given URL or ErrFeedNotFound.
func (db *DB) GetFeed(ctx context.Context, url string) (*model.Feed, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	feeds, err := db.queryFeeds(ctx, db.feedSelect().Where(sq.Eq{"url": url}))
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return nil, ErrFeedNotFound
	}
	return &feeds[0], nil
}

// FeedsByChannel returns feeds bound to a destination channel.
func (db *DB) FeedsByChannel(ctx context.Context, channelID string) ([]model.Feed, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.queryFeeds(ctx, db.feedSelect().Where(sq.Eq{"channel_id": channelID}).OrderBy("added_at"))
}

// CreateFeed adds a new feed. Returns ErrFeedExists if the URL is taken.
func (db *DB) CreateFeed(ctx context.Context, feed model.Feed) error {
	created, err := db.GetOrCreateFeed(ctx, feed)
	if err != nil {
		return err
	}
	if !created {
		return ErrFeedExists
	}
	return nil
}

// GetOrCreateFeed inserts the feed unless its URL already exists. Reports
// whether a row was created.
func (db *DB) GetOrCreateFeed(ctx context.Context, feed model.Feed) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if feed.AddedAt.IsZero() {
		feed.AddedAt = time.Now()
	}
	if feed.SummaryProfile == "" {
		feed.SummaryProfile = model.ProfileNormal
	}
	if feed.Title == "" {
		feed.Title = feed.URL
	}
	query, args, err := db.sb.Insert("feeds").
		Columns("url", "title", "channel_id", "summary_profile", "added_at").
		Values(feed.URL, feed.Title, feed.ChannelID, string(feed.SummaryProfile), feed.AddedAt.UTC()).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert feed: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// DeleteFeed removes a feed subscription. Snapshots of its articles are kept.
func (db *DB) DeleteFeed(ctx context.Context, url string) error {
	return db.execFeed(ctx, db.sb.Delete("feeds").Where(sq.Eq{"url": url}))
}

// AssignChannel binds a feed to a destination channel.
func (db *DB) AssignChannel(ctx context.Context, url, channelID string) error {
	return db.execFeed(ctx, db.sb.Update("feeds").Set("channel_id", channelID).Where(sq.Eq{"url": url}))
}

// UpdateFeedTitle updates the title of a feed.
func (db *DB) UpdateFeedTitle(ctx context.Context, url, title string) error {
	return db.execFeed(ctx, db.sb.Update("feeds").Set("title", title).Where(sq.Eq{"url": url}))
}

// execFeed runs a single-feed statement and maps zero affected rows to
// ErrFeedNotFound.
func (db *DB) execFeed(ctx context.Context, b sq.Sqlizer) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFeedNotFound
	}
	return nil
}

func (db *DB) feedSelect() sq.SelectBuilder {
	return db.sb.Select("url", "title", "channel_id", "summary_profile", "added_at").From("feeds")
}

func (db *DB) queryFeeds(ctx context.Context, b sq.SelectBuilder) ([]model.Feed, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var feeds []model.Feed
	for rows.Next() {
		var f model.Feed
		var profile string
		var addedAt sql.NullTime
		if err := rows.Scan(&f.URL, &f.Title, &f.ChannelID, &profile, &addedAt); err != nil {
			return nil, err
		}
		f.SummaryProfile = model.ParseSummaryProfile(profile)
		if addedAt.Valid {
			f.AddedAt = addedAt.Time
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// --- Settings Methods ---

// GetSetting retrieves a setting value. Returns ErrNotFound for unknown keys.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query, args, err := db.sb.Select("value").From("settings").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", err
	}
	var val string
	err = db.conn.QueryRowContext(ctx, query, args...).Scan(&val)
	if isNoRows(err) {
		return "", ErrNotFound
	}
	return val, err
}

// SetSetting saves a setting.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query, args, err := db.sb.Insert("settings").Columns("key", "value").Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value").ToSql()
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, query, args...)
	return err
}

// GetPollingInterval returns the polling interval in minutes, or def when
// the setting is absent or invalid.
func (db *DB) GetPollingInterval(ctx context.Context, def int) (int, error) {
	val, err := db.GetSetting(ctx, model.SettingPollingInterval)
	if err == ErrNotFound {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	mins, err := strconv.Atoi(val)
	if err != nil || mins < 1 {
		return def, nil
	}
	return mins, nil
}
