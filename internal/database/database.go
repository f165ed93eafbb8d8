package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// DB is the shared SQL implementation of Store. The dialect only changes
// the placeholder format and the schema; every query goes through the same
// squirrel builder.
//
// All I/O is serialized by mu. Write volume is tens of rows per sweep, so
// one lock per store is enough.
type DB struct {
	conn    *sql.DB
	dialect string
	sb      sq.StatementBuilderType
	log     *slog.Logger
	mu      sync.Mutex
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

const (
	dialectSQLite   = "SQLite"
	dialectPostgres = "PostgreSQL"
)

// New opens or creates an SQLite database at the given path.
func New(path string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: SQLite serializes writers anyway and ":memory:"
	// databases are per connection.
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := newDB(conn, dialectSQLite, sq.Question, logger)
	if err := db.migrate(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func newDB(conn *sql.DB, dialect string, ph sq.PlaceholderFormat, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		conn:    conn,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(ph),
		log:     logger.With("component", "database"),
	}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return db.dialect
}

func (db *DB) migrate(schema string) error {
	_, err := db.conn.Exec(schema)
	return err
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS feeds (
		url TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		channel_id TEXT NOT NULL DEFAULT '',
		summary_profile TEXT NOT NULL DEFAULT 'normal',
		added_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS processed_articles (
		fingerprint TEXT PRIMARY KEY,
		feed_url TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		recorded_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL UNIQUE,
		channel_id TEXT NOT NULL,
		title TEXT,
		content TEXT,
		feed_url TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_processed_feed_url ON processed_articles(feed_url);
	CREATE INDEX IF NOT EXISTS idx_processed_recorded_at ON processed_articles(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_snapshots_channel ON snapshots(channel_id);
	`
