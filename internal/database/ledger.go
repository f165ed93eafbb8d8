package database

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// IsSeen reports whether an entry with this fingerprint was already delivered.
// A storage failure reports false.
func (db *DB) IsSeen(ctx context.Context, fingerprint string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	query, args, err := db.sb.Select("1").From("processed_articles").
		Where(sq.Eq{"fingerprint": fingerprint}).Limit(1).ToSql()
	if err != nil {
		db.log.Error("build is_seen query", "err", err)
		return false
	}
	var one int
	err = db.conn.QueryRowContext(ctx, query, args...).Scan(&one)
	if err != nil {
		if !isNoRows(err) {
			db.log.Error("check processed article", "fingerprint", fingerprint, "err", err)
		}
		return false
	}
	return true
}

// MarkSeen records a delivered entry, replacing any previous record for the
// same fingerprint.
func (db *DB) MarkSeen(ctx context.Context, fingerprint, feedURL, channelID string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	query, args, err := db.sb.Insert("processed_articles").
		Columns("fingerprint", "feed_url", "channel_id", "recorded_at").
		Values(fingerprint, feedURL, channelID, time.Now().UTC()).
		Suffix(`ON CONFLICT (fingerprint) DO UPDATE SET
			feed_url = EXCLUDED.feed_url,
			channel_id = EXCLUDED.channel_id,
			recorded_at = EXCLUDED.recorded_at`).
		ToSql()
	if err != nil {
		db.log.Error("build mark_seen query", "err", err)
		return false
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		db.log.Error("record processed article", "fingerprint", fingerprint, "feed_url", feedURL, "err", err)
		return false
	}
	return true
}

// PurgeOlderThan deletes ledger records older than age and returns how many
// were removed. Purged entries are delivered again if they reappear.
func (db *DB) PurgeOlderThan(ctx context.Context, age time.Duration) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()

	cutoff := time.Now().UTC().Add(-age)
	query, args, err := db.sb.Delete("processed_articles").
		Where(sq.Lt{"recorded_at": cutoff}).ToSql()
	if err != nil {
		db.log.Error("build purge query", "err", err)
		return 0
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		db.log.Error("purge processed articles", "err", err)
		return 0
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		db.log.Info("purged old processed articles", "count", n, "older_than", age)
	}
	return n
}
