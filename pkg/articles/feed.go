package articles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Feed is a source of articles, such as a blog or a newsletter.
type Feed struct {
	ID        string `json:"id" mapstructure:"id"`
	Name      string `json:"name" mapstructure:"name"`
	Cover     string `json:"cover" mapstructure:"cover"`
	Intro     string `json:"intro" mapstructure:"intro"`
	Status    int    `json:"status" mapstructure:"status"`
	CreatedAt int64  `json:"created_at" mapstructure:"created_at"`
}

// featuredFeed is the stand-in for the reserved featured feed.
func featuredFeed() Feed {
	return Feed{
		ID:     FeaturedFeedID,
		Name:   FeaturedFeedName,
		Cover:  FeaturedFeedCover,
		Intro:  FeaturedFeedIntro,
		Status: 1,
	}
}

// InsertFeed stores a new feed, or replaces the one with the same ID. An
// empty ID is filled with a fresh UUID, and the stored feed is returned.
func (s *Store) InsertFeed(ctx context.Context, feed Feed) (Feed, error) {
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}
	if feed.ID == FeaturedFeedID {
		return Feed{}, fmt.Errorf("feed id %q is reserved", FeaturedFeedID)
	}
	if feed.CreatedAt == 0 {
		feed.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO feeds (feed_id, name, cover, intro, status, created_at) VALUES (?, ?, ?, ?, ?, ?);`,
		feed.ID, feed.Name, feed.Cover, feed.Intro, feed.Status, feed.CreatedAt)
	if err != nil {
		return Feed{}, fmt.Errorf("failed to insert feed %s: %w", feed.ID, err)
	}
	return feed, nil
}

// GetFeed returns the feed with the given ID. The featured feed is always
// present.
func (s *Store) GetFeed(ctx context.Context, id string) (Feed, error) {
	if id == FeaturedFeedID {
		return featuredFeed(), nil
	}
	var feed Feed
	err := s.stmtGetFeed.QueryRowContext(ctx, id).Scan(&feed.ID, &feed.Name, &feed.Cover, &feed.Intro, &feed.Status, &feed.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Feed{}, fmt.Errorf("feed %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Feed{}, err
	}
	return feed, nil
}

// ListFeeds returns every stored feed ordered by name.
func (s *Store) ListFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT feed_id, name, cover, intro, status, created_at FROM feeds ORDER BY name;`)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	feeds := []Feed{}
	for rows.Next() {
		var feed Feed
		if err = rows.Scan(&feed.ID, &feed.Name, &feed.Cover, &feed.Intro, &feed.Status, &feed.CreatedAt); err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// RemoveFeed deletes a feed and all of its articles in one transaction.
func (s *Store) RemoveFeed(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM articles WHERE feed_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove articles for feed %s: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM feeds WHERE feed_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to remove feed %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 && id != FeaturedFeedID {
		return fmt.Errorf("feed %s: %w", id, ErrNotFound)
	}

	s.logger.InfoContext(ctx, "Feed removed successfully", slog.String("feed_id", id))
	return tx.Commit()
}
