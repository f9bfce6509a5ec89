package articles

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/CTAG07/Laxpress/pkg/lax"
	"github.com/microcosm-cc/bluemonday"
)

const (
	relatedLimit       = 5
	excerptLength      = 120
	crumbTitleLength   = 50
	defaultFeedPerPage = 20
)

// articleView is an article as page templates see it.
type articleView struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	PicURL      string `mapstructure:"pic_url"`
	URL         string `mapstructure:"url"`
	PublishTime string `mapstructure:"publish_time"`
	CreatedAt   string `mapstructure:"created_at"`
	Content     string `mapstructure:"content"`
	IsFavorite  bool   `mapstructure:"is_favorite"`
	FeedID      string `mapstructure:"feed_id"`
	FeedName    string `mapstructure:"feed_name"`
	FeedCover   string `mapstructure:"feed_cover"`
	FeedIntro   string `mapstructure:"feed_intro"`
}

type crumb struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type pagination struct {
	Page     int  `mapstructure:"page"`
	PerPage  int  `mapstructure:"per_page"`
	Total    int  `mapstructure:"total"`
	Pages    int  `mapstructure:"pages"`
	HasPrev  bool `mapstructure:"has_prev"`
	HasNext  bool `mapstructure:"has_next"`
	PrevPage int  `mapstructure:"prev_page"`
	NextPage int  `mapstructure:"next_page"`
}

// excerptPolicy strips every tag when a description is derived from content.
var excerptPolicy = bluemonday.StrictPolicy()

// excerpt derives a plain-text description from HTML content.
func excerpt(content string) string {
	text := html.UnescapeString(excerptPolicy.Sanitize(content))
	text = strings.Join(strings.Fields(text), " ")
	return truncate(text, excerptLength)
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (s *Store) view(a Article, feed Feed) articleView {
	desc := a.Description
	if desc == "" {
		desc = excerpt(a.Content)
	}
	return articleView{
		ID:          a.ID,
		Title:       a.Title,
		Description: desc,
		PicURL:      a.PicURL,
		URL:         a.URL,
		PublishTime: s.formatTime(a.PublishTime),
		CreatedAt:   s.formatTime(a.CreatedAt),
		Content:     a.Content,
		IsFavorite:  a.IsFavorite,
		FeedID:      a.FeedID,
		FeedName:    feed.Name,
		FeedCover:   feed.Cover,
		FeedIntro:   feed.Intro,
	}
}

// toMap converts a view struct into a template mapping.
func toMap(v any) (map[string]any, error) {
	c, err := lax.ToContext(v)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// linkValue is a neighbour link as a mapping, or "" when there is none.
func linkValue(link *articleLink) (any, error) {
	if link == nil {
		return "", nil
	}
	return toMap(*link)
}

// publishedFeed returns the feed an article page or listing may show.
// Disabled feeds count as missing.
func (s *Store) publishedFeed(ctx context.Context, id string) (Feed, error) {
	feed, err := s.GetFeed(ctx, id)
	if err != nil {
		return Feed{}, err
	}
	if feed.Status != 1 {
		return Feed{}, fmt.Errorf("feed %s is disabled: %w", id, ErrNotFound)
	}
	return feed, nil
}

// ArticlePage builds the render context of an article detail page and marks
// the article read. The context holds site, article, related_articles,
// prev_article, next_article and breadcrumb. Unpublished articles and
// articles of missing or disabled feeds give ErrNotFound.
func (s *Store) ArticlePage(ctx context.Context, id string, site map[string]any) (lax.Context, error) {
	a, err := s.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != 1 {
		return nil, fmt.Errorf("article %s is not published: %w", id, ErrNotFound)
	}
	feed, err := s.publishedFeed(ctx, a.FeedID)
	if err != nil {
		return nil, err
	}

	if changed, err := s.MarkRead(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "Failed to mark article read", slog.String("article_id", id), slog.Any("error", err))
	} else if changed {
		s.logger.DebugContext(ctx, "Article marked read", slog.String("article_id", id))
	}

	article, err := toMap(s.view(a, feed))
	if err != nil {
		return nil, err
	}

	rel, err := s.related(ctx, a, relatedLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load related articles: %w", err)
	}
	related := make([]any, 0, len(rel))
	for _, r := range rel {
		m, err := toMap(s.view(r, feed))
		if err != nil {
			return nil, err
		}
		related = append(related, m)
	}

	prevLink, nextLink, err := s.adjacent(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to load adjacent articles: %w", err)
	}
	prev, err := linkValue(prevLink)
	if err != nil {
		return nil, err
	}
	next, err := linkValue(nextLink)
	if err != nil {
		return nil, err
	}

	crumbs := []any{}
	for _, c := range []crumb{
		{Name: feed.Name, URL: "/feeds/" + feed.ID},
		{Name: truncate(a.Title, crumbTitleLength)},
	} {
		m, err := toMap(c)
		if err != nil {
			return nil, err
		}
		crumbs = append(crumbs, m)
	}

	return lax.Context{
		"site":             siteValue(site),
		"article":          article,
		"related_articles": related,
		"prev_article":     prev,
		"next_article":     next,
		"breadcrumb":       crumbs,
	}, nil
}

// FeedPage builds the render context of a feed listing: site, feed, articles
// (newest first) and pagination. page is 1-based; out of range pages clamp to
// the nearest valid one.
func (s *Store) FeedPage(ctx context.Context, feedID string, page, perPage int, site map[string]any) (lax.Context, error) {
	feed, err := s.publishedFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	if perPage <= 0 {
		perPage = defaultFeedPerPage
	}
	total, err := s.CountArticles(ctx, feedID)
	if err != nil {
		return nil, err
	}
	pages := (total + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	page = min(max(page, 1), pages)

	list, err := s.ListArticles(ctx, feedID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(list))
	for _, a := range list {
		m, err := toMap(s.view(a, feed))
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}

	feedMap, err := toMap(feed)
	if err != nil {
		return nil, err
	}
	pager, err := toMap(pagination{
		Page:     page,
		PerPage:  perPage,
		Total:    total,
		Pages:    pages,
		HasPrev:  page > 1,
		HasNext:  page < pages,
		PrevPage: page - 1,
		NextPage: page + 1,
	})
	if err != nil {
		return nil, err
	}

	return lax.Context{
		"site":       siteValue(site),
		"feed":       feedMap,
		"articles":   items,
		"pagination": pager,
	}, nil
}

func siteValue(site map[string]any) map[string]any {
	if site == nil {
		return map[string]any{}
	}
	return site
}

// IsNotFound reports whether err means a missing feed or article.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
