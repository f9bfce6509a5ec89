package articles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ExportedFeed is the JSON backup format of one feed and all of its articles,
// published or not.
type ExportedFeed struct {
	Feed     Feed      `json:"feed"`
	Articles []Article `json:"articles"`
}

// ExportFeed writes a feed and its articles to w as indented JSON.
func (s *Store) ExportFeed(ctx context.Context, feedID string, w io.Writer) error {
	feed, err := s.GetFeed(ctx, feedID)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE feed_id = ? ORDER BY publish_time ASC;`, feedID)
	if err != nil {
		return fmt.Errorf("failed to query articles of feed %s: %w", feedID, err)
	}
	list, err := scanArticles(rows)
	if err != nil {
		return fmt.Errorf("failed to read articles of feed %s: %w", feedID, err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err = enc.Encode(ExportedFeed{Feed: feed, Articles: list}); err != nil {
		return fmt.Errorf("failed to encode feed %s: %w", feedID, err)
	}

	s.logger.InfoContext(ctx, "Feed exported", slog.String("feed_id", feedID), slog.Int("articles", len(list)))
	return nil
}

// ImportFeed reads an ExportedFeed from r and stores it in one transaction.
// Existing rows with the same IDs are replaced. Articles are moved to the
// imported feed whatever feed_id they carry. The featured feed is never
// written as a row, but its articles are imported. It returns the number of
// articles stored.
func (s *Store) ImportFeed(ctx context.Context, r io.Reader) (int, error) {
	var data ExportedFeed
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return 0, fmt.Errorf("failed to decode feed: %w", err)
	}

	feed := data.Feed
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}
	if feed.Name == "" {
		return 0, errors.New("imported feed has no name")
	}
	if feed.CreatedAt == 0 {
		feed.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if feed.ID != FeaturedFeedID {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO feeds (feed_id, name, cover, intro, status, created_at) VALUES (?, ?, ?, ?, ?, ?);`,
			feed.ID, feed.Name, feed.Cover, feed.Intro, feed.Status, feed.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to import feed %s: %w", feed.ID, err)
		}
	}

	for _, a := range data.Articles {
		a = prepareArticle(a)
		a.FeedID = feed.ID
		if err = insertArticle(ctx, tx, a); err != nil {
			return 0, fmt.Errorf("failed to import article %s: %w", a.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit import: %w", err)
	}

	s.logger.InfoContext(ctx, "Feed imported", slog.String("feed_id", feed.ID), slog.Int("articles", len(data.Articles)))
	return len(data.Articles), nil
}
