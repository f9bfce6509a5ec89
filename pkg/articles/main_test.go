package articles

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a SQLite database in a temporary directory and a
// Store over it. It uses t.Cleanup to release both.
func setupTestStore(tb testing.TB) (*sql.DB, *Store) {
	tb.Helper()

	dbFile := filepath.Join(tb.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		tb.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		tb.Fatalf("NewStore() error = %v", err)
	}
	tb.Cleanup(s.Close)

	return db, s
}

// setupSeededStore adds the "tech" feed with three published articles at
// publish times 100, 200 and 300 and a draft at 250.
func setupSeededStore(tb testing.TB) (context.Context, *Store) {
	tb.Helper()

	_, s := setupTestStore(tb)
	ctx := context.Background()

	_, err := s.InsertFeed(ctx, Feed{ID: "tech", Name: "Tech Weekly", Intro: "About tech", Status: 1})
	require.NoError(tb, err)

	for _, a := range []Article{
		{ID: "a1", FeedID: "tech", Title: "First", Description: "one", Status: 1, PublishTime: 100},
		{ID: "a2", FeedID: "tech", Title: "Second", Content: "<p>Hello &amp; <b>welcome</b></p>", Status: 1, PublishTime: 200},
		{ID: "a3", FeedID: "tech", Title: "Third", Description: "three", Status: 1, PublishTime: 300},
		{ID: "draft", FeedID: "tech", Title: "Draft", Status: 0, PublishTime: 250},
	} {
		_, err = s.InsertArticle(ctx, a)
		require.NoError(tb, err)
	}
	return ctx, s
}
