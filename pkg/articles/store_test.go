package articles

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupSchemaIdempotent(t *testing.T) {
	db, _ := setupTestStore(t)
	require.NoError(t, SetupSchema(db))
}

func TestFeeds(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	t.Run("Insert fills id and creation time", func(t *testing.T) {
		f, err := s.InsertFeed(ctx, Feed{Name: "Zeta", Status: 1})
		require.NoError(t, err)
		assert.NotEmpty(t, f.ID)
		assert.NotZero(t, f.CreatedAt)

		got, err := s.GetFeed(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, f, got)
	})

	t.Run("Reserved id is rejected", func(t *testing.T) {
		_, err := s.InsertFeed(ctx, Feed{ID: FeaturedFeedID, Name: "Mine"})
		assert.Error(t, err)
	})

	t.Run("Featured feed is always present", func(t *testing.T) {
		f, err := s.GetFeed(ctx, FeaturedFeedID)
		require.NoError(t, err)
		assert.Equal(t, FeaturedFeedName, f.Name)
		assert.Equal(t, FeaturedFeedCover, f.Cover)
		assert.Equal(t, 1, f.Status)
	})

	t.Run("Missing feed", func(t *testing.T) {
		_, err := s.GetFeed(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, IsNotFound(err))
	})

	t.Run("List is ordered by name", func(t *testing.T) {
		_, err := s.InsertFeed(ctx, Feed{ID: "alpha", Name: "Alpha"})
		require.NoError(t, err)
		feeds, err := s.ListFeeds(ctx)
		require.NoError(t, err)
		require.Len(t, feeds, 2)
		assert.Equal(t, "Alpha", feeds[0].Name)
		assert.Equal(t, "Zeta", feeds[1].Name)
	})
}

func TestRemoveFeedRemovesArticles(t *testing.T) {
	ctx, s := setupSeededStore(t)

	require.NoError(t, s.RemoveFeed(ctx, "tech"))

	_, err := s.GetFeed(ctx, "tech")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetArticle(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.RemoveFeed(ctx, "tech"), ErrNotFound)
}

func TestArticles(t *testing.T) {
	ctx, s := setupSeededStore(t)

	t.Run("Feed id is required", func(t *testing.T) {
		_, err := s.InsertArticle(ctx, Article{Title: "Orphan"})
		assert.Error(t, err)
	})

	t.Run("Get returns drafts too", func(t *testing.T) {
		a, err := s.GetArticle(ctx, "draft")
		require.NoError(t, err)
		assert.Equal(t, 0, a.Status)
		assert.NotZero(t, a.CreatedAt)
	})

	t.Run("List is newest first and skips drafts", func(t *testing.T) {
		list, err := s.ListArticles(ctx, "tech", 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"a3", "a2", "a1"}, []string{list[0].ID, list[1].ID, list[2].ID})

		page, err := s.ListArticles(ctx, "tech", 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "a1", page[0].ID)

		n, err := s.CountArticles(ctx, "tech")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("Mark read reports change once", func(t *testing.T) {
		changed, err := s.MarkRead(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.MarkRead(ctx, "a1")
		require.NoError(t, err)
		assert.False(t, changed)

		a, err := s.GetArticle(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, a.IsRead)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, s.RemoveArticle(ctx, "draft"))
		assert.ErrorIs(t, s.RemoveArticle(ctx, "draft"), ErrNotFound)
	})
}

func TestAdjacentAndRelated(t *testing.T) {
	ctx, s := setupSeededStore(t)

	a1, err := s.GetArticle(ctx, "a1")
	require.NoError(t, err)
	prev, next, err := s.adjacent(ctx, a1)
	require.NoError(t, err)
	assert.Nil(t, prev)
	require.NotNil(t, next)
	assert.Equal(t, articleLink{ID: "a2", Title: "Second"}, *next)

	a3, err := s.GetArticle(ctx, "a3")
	require.NoError(t, err)
	prev, next, err = s.adjacent(ctx, a3)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "a2", prev.ID)
	assert.Nil(t, next)

	rel, err := s.related(ctx, a3, 1)
	require.NoError(t, err)
	require.Len(t, rel, 1)
	assert.Equal(t, "a2", rel[0].ID)
}

func TestFormatTime(t *testing.T) {
	_, s := setupTestStore(t)

	assert.Equal(t, "", s.formatTime(0))
	assert.Equal(t, "2024-03-09 14:05", s.formatTime(time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC).Unix()))

	s.SetLocation(time.FixedZone("UTC+2", 2*60*60))
	assert.Equal(t, "2024-03-09 16:05", s.formatTime(time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC).Unix()))

	s.SetLocation(nil)
	assert.Equal(t, "2024-03-09 16:05", s.formatTime(time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC).Unix()))
}
