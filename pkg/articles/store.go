package articles

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	// FeaturedFeedID is the reserved feed that collects articles added by hand.
	// It needs no row in the feeds table.
	FeaturedFeedID = "featured"
	// FeaturedFeedName is the display name of the featured feed.
	FeaturedFeedName = "Featured Articles"
	// FeaturedFeedIntro is the description of the featured feed.
	FeaturedFeedIntro = "Single articles added by hand are collected here."
	// FeaturedFeedCover is the cover image of the featured feed.
	FeaturedFeedCover = "/static/logo.svg"
)

// ErrNotFound is returned when a feed or article does not exist or is not
// published.
var ErrNotFound = errors.New("not found")

// SetupSchema creates the feed and article tables. It is idempotent and
// safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaFeeds = `
CREATE TABLE IF NOT EXISTS feeds (
    feed_id    TEXT    PRIMARY KEY,
    name       TEXT    NOT NULL,
    cover      TEXT    NOT NULL DEFAULT '',
    intro      TEXT    NOT NULL DEFAULT '',
    status     INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL
);
`
		schemaArticles = `
CREATE TABLE IF NOT EXISTS articles (
    article_id   TEXT    PRIMARY KEY,
    feed_id      TEXT    NOT NULL,
    title        TEXT    NOT NULL,
    pic_url      TEXT    NOT NULL DEFAULT '',
    url          TEXT    NOT NULL DEFAULT '',
    description  TEXT    NOT NULL DEFAULT '',
    content      TEXT    NOT NULL DEFAULT '',
    status       INTEGER NOT NULL DEFAULT 1,
    publish_time INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    is_read      INTEGER NOT NULL DEFAULT 0,
    is_favorite  INTEGER NOT NULL DEFAULT 0
);
`
		indexArticles = `CREATE INDEX IF NOT EXISTS idx_articles_feed_time ON articles (feed_id, publish_time);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaFeeds); err != nil {
		return fmt.Errorf("could not create feeds schema: %w", err)
	}

	if _, err = tx.Exec(schemaArticles); err != nil {
		return fmt.Errorf("could not create articles schema: %w", err)
	}

	if _, err = tx.Exec(indexArticles); err != nil {
		return fmt.Errorf("could not create articles index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store reads and writes feeds and articles. It holds prepared statements
// for the queries page rendering runs on every request.
type Store struct {
	db               *sql.DB
	stmtGetFeed      *sql.Stmt
	stmtGetArticle   *sql.Stmt
	stmtMarkRead     *sql.Stmt
	stmtRelated      *sql.Stmt
	stmtPrev         *sql.Stmt
	stmtNext         *sql.Stmt
	stmtFeedArticles *sql.Stmt
	stmtFeedCount    *sql.Stmt
	loc              *time.Location
	logger           *slog.Logger
}

// NewStore prepares every statement the Store needs. SetupSchema must have
// been run on db first.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetFeed, err := db.Prepare(`SELECT feed_id, name, cover, intro, status, created_at FROM feeds WHERE feed_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetArticle, err := db.Prepare(`SELECT ` + articleColumns + ` FROM articles WHERE article_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtMarkRead, err := db.Prepare(`UPDATE articles SET is_read = 1 WHERE article_id = ? AND is_read = 0;`)
	if err != nil {
		return nil, err
	}

	stmtRelated, err := db.Prepare(`SELECT ` + articleColumns + ` FROM articles
WHERE feed_id = ? AND article_id != ? AND status = 1
ORDER BY publish_time DESC LIMIT ?;`)
	if err != nil {
		return nil, err
	}

	stmtPrev, err := db.Prepare(`SELECT article_id, title FROM articles
WHERE feed_id = ? AND publish_time < ? AND status = 1
ORDER BY publish_time DESC LIMIT 1;`)
	if err != nil {
		return nil, err
	}

	stmtNext, err := db.Prepare(`SELECT article_id, title FROM articles
WHERE feed_id = ? AND publish_time > ? AND status = 1
ORDER BY publish_time ASC LIMIT 1;`)
	if err != nil {
		return nil, err
	}

	stmtFeedArticles, err := db.Prepare(`SELECT ` + articleColumns + ` FROM articles
WHERE feed_id = ? AND status = 1
ORDER BY publish_time DESC LIMIT ? OFFSET ?;`)
	if err != nil {
		return nil, err
	}

	stmtFeedCount, err := db.Prepare(`SELECT COUNT(*) FROM articles WHERE feed_id = ? AND status = 1;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:               db,
		stmtGetFeed:      stmtGetFeed,
		stmtGetArticle:   stmtGetArticle,
		stmtMarkRead:     stmtMarkRead,
		stmtRelated:      stmtRelated,
		stmtPrev:         stmtPrev,
		stmtNext:         stmtNext,
		stmtFeedArticles: stmtFeedArticles,
		stmtFeedCount:    stmtFeedCount,
		loc:              time.UTC,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases the prepared statements. The database itself stays open.
func (s *Store) Close() {
	_ = s.stmtGetFeed.Close()
	_ = s.stmtGetArticle.Close()
	_ = s.stmtMarkRead.Close()
	_ = s.stmtRelated.Close()
	_ = s.stmtPrev.Close()
	_ = s.stmtNext.Close()
	_ = s.stmtFeedArticles.Close()
	_ = s.stmtFeedCount.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetLocation sets the time zone page timestamps are formatted in. The
// default is UTC.
func (s *Store) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// formatTime renders a unix timestamp the way pages show it. Zero is blank.
func (s *Store) formatTime(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).In(s.loc).Format("2006-01-02 15:04")
}
