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

// Article is one published piece of content belonging to a feed.
// PublishTime and CreatedAt are unix seconds.
type Article struct {
	ID          string `json:"id"`
	FeedID      string `json:"feed_id"`
	Title       string `json:"title"`
	PicURL      string `json:"pic_url"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Status      int    `json:"status"`
	PublishTime int64  `json:"publish_time"`
	CreatedAt   int64  `json:"created_at"`
	IsRead      bool   `json:"is_read"`
	IsFavorite  bool   `json:"is_favorite"`
}

const articleColumns = `article_id, feed_id, title, pic_url, url, description, content, status, publish_time, created_at, is_read, is_favorite`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (Article, error) {
	var a Article
	err := row.Scan(&a.ID, &a.FeedID, &a.Title, &a.PicURL, &a.URL, &a.Description, &a.Content,
		&a.Status, &a.PublishTime, &a.CreatedAt, &a.IsRead, &a.IsFavorite)
	return a, err
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	list := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertArticle writes a through e, which is the database or an open
// transaction.
func insertArticle(ctx context.Context, e execer, a Article) error {
	_, err := e.ExecContext(ctx,
		`INSERT OR REPLACE INTO articles (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		a.ID, a.FeedID, a.Title, a.PicURL, a.URL, a.Description, a.Content,
		a.Status, a.PublishTime, a.CreatedAt, a.IsRead, a.IsFavorite)
	return err
}

// prepareArticle fills the ID and creation time of a new article.
func prepareArticle(a Article) Article {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().Unix()
	}
	return a
}

// InsertArticle stores an article, or replaces the one with the same ID.
// An empty ID is filled with a fresh UUID, and the stored article is
// returned.
func (s *Store) InsertArticle(ctx context.Context, a Article) (Article, error) {
	if a.FeedID == "" {
		return Article{}, errors.New("article has no feed id")
	}
	a = prepareArticle(a)
	if err := insertArticle(ctx, s.db, a); err != nil {
		return Article{}, fmt.Errorf("failed to insert article %s: %w", a.ID, err)
	}
	s.logger.DebugContext(ctx, "Article stored", slog.String("article_id", a.ID), slog.String("feed_id", a.FeedID))
	return a, nil
}

// GetArticle returns the article with the given ID, published or not.
func (s *Store) GetArticle(ctx context.Context, id string) (Article, error) {
	a, err := scanArticle(s.stmtGetArticle.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Article{}, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Article{}, err
	}
	return a, nil
}

// ListArticles returns a page of a feed's published articles, newest first.
func (s *Store) ListArticles(ctx context.Context, feedID string, limit, offset int) ([]Article, error) {
	rows, err := s.stmtFeedArticles.QueryContext(ctx, feedID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanArticles(rows)
}

// CountArticles returns the number of published articles in a feed.
func (s *Store) CountArticles(ctx context.Context, feedID string) (int, error) {
	var n int
	err := s.stmtFeedCount.QueryRowContext(ctx, feedID).Scan(&n)
	return n, err
}

// MarkRead flags an article as read. It reports whether the flag changed.
func (s *Store) MarkRead(ctx context.Context, id string) (bool, error) {
	res, err := s.stmtMarkRead.ExecContext(ctx, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RemoveArticle deletes one article.
func (s *Store) RemoveArticle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM articles WHERE article_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to remove article %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	s.logger.InfoContext(ctx, "Article removed", slog.String("article_id", id))
	return nil
}

// related returns up to limit other published articles from the same feed,
// newest first.
func (s *Store) related(ctx context.Context, a Article, limit int) ([]Article, error) {
	rows, err := s.stmtRelated.QueryContext(ctx, a.FeedID, a.ID, limit)
	if err != nil {
		return nil, err
	}
	return scanArticles(rows)
}

// articleLink is the id and title of a neighbouring article.
type articleLink struct {
	ID    string `mapstructure:"id"`
	Title string `mapstructure:"title"`
}

// adjacent finds the published articles of the same feed immediately before
// and after a by publish time. A missing neighbour is nil.
func (s *Store) adjacent(ctx context.Context, a Article) (prev, next *articleLink, err error) {
	find := func(stmt *sql.Stmt) (*articleLink, error) {
		var link articleLink
		err := stmt.QueryRowContext(ctx, a.FeedID, a.PublishTime).Scan(&link.ID, &link.Title)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &link, nil
	}
	if prev, err = find(s.stmtPrev); err != nil {
		return nil, nil, err
	}
	if next, err = find(s.stmtNext); err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}
