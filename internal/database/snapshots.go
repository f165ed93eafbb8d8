package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/Aero123421/RSS7/internal/model"
)

// SaveSnapshot stores the original article under the message id it was
// posted as, then trims the channel to its newest limit rows.
func (db *DB) SaveSnapshot(ctx context.Context, messageID, channelID string, article model.Article, limit int) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		db.log.Error("begin snapshot tx", "message_id", messageID, "err", err)
		return false
	}

	insert, args, err := db.sb.Insert("snapshots").
		Columns("message_id", "channel_id", "title", "content", "feed_url", "created_at").
		Values(messageID, channelID, article.Title, article.Content, article.FeedURL, time.Now().UTC()).
		Suffix(`ON CONFLICT (message_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			feed_url = EXCLUDED.feed_url,
			created_at = EXCLUDED.created_at`).
		ToSql()
	if err == nil {
		_, err = tx.ExecContext(ctx, insert, args...)
	}
	if err == nil && limit > 0 {
		var evict string
		evict, args, err = db.sb.Delete("snapshots").
			Where(sq.Eq{"channel_id": channelID}).
			Where(`message_id NOT IN (
				SELECT message_id FROM snapshots WHERE channel_id = ?
				ORDER BY created_at DESC, seq DESC LIMIT ?)`, channelID, limit).
			ToSql()
		if err == nil {
			_, err = tx.ExecContext(ctx, evict, args...)
		}
	}
	if err != nil {
		tx.Rollback()
		db.log.Error("save snapshot", "message_id", messageID, "channel_id", channelID, "err", err)
		return false
	}
	if err := tx.Commit(); err != nil {
		db.log.Error("commit snapshot", "message_id", messageID, "err", err)
		return false
	}
	return true
}

// GetSnapshot returns the stored article for a message id.
func (db *DB) GetSnapshot(ctx context.Context, messageID string) (*model.Snapshot, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query, args, err := db.snapshotSelect().Where(sq.Eq{"message_id": messageID}).ToSql()
	if err != nil {
		db.log.Error("build snapshot query", "err", err)
		return nil, false
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		db.log.Error("get snapshot", "message_id", messageID, "err", err)
		return nil, false
	}
	defer rows.Close()
	snaps, err := scanSnapshots(rows)
	if err != nil {
		db.log.Error("scan snapshot", "message_id", messageID, "err", err)
		return nil, false
	}
	if len(snaps) == 0 {
		return nil, false
	}
	return &snaps[0], true
}

// FindRelated returns up to limit snapshots whose title or content contains
// any of the keywords (case-insensitive), newest first.
func (db *DB) FindRelated(ctx context.Context, keywords []string, excludeMessageID string, limit int) []model.Snapshot {
	var match sq.Or
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		pattern := "%" + kw + "%"
		match = append(match,
			sq.Expr("LOWER(title) LIKE ?", pattern),
			sq.Expr("LOWER(content) LIKE ?", pattern))
	}
	if len(match) == 0 {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	q := db.snapshotSelect().Where(match).OrderBy("created_at DESC", "seq DESC")
	if excludeMessageID != "" {
		q = q.Where(sq.NotEq{"message_id": excludeMessageID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		db.log.Error("build related query", "err", err)
		return nil
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		db.log.Error("find related snapshots", "err", err)
		return nil
	}
	defer rows.Close()
	snaps, err := scanSnapshots(rows)
	if err != nil {
		db.log.Error("scan related snapshots", "err", err)
		return nil
	}
	return snaps
}

// CountSnapshots returns the number of snapshots kept for a channel.
func (db *DB) CountSnapshots(ctx context.Context, channelID string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query, args, err := db.sb.Select("COUNT(*)").From("snapshots").
		Where(sq.Eq{"channel_id": channelID}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.conn.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (db *DB) snapshotSelect() sq.SelectBuilder {
	return db.sb.Select("message_id", "channel_id", "title", "content", "feed_url", "created_at").
		From("snapshots")
}

func scanSnapshots(rows *sql.Rows) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	for rows.Next() {
		var s model.Snapshot
		var title, content, feedURL sql.NullString
		var createdAt sql.NullTime
		if err := rows.Scan(&s.MessageID, &s.ChannelID, &title, &content, &feedURL, &createdAt); err != nil {
			return nil, err
		}
		s.Title = title.String
		s.Content = content.String
		s.FeedURL = feedURL.String
		if createdAt.Valid {
			s.CreatedAt = createdAt.Time
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
