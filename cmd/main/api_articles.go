package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CTAG07/Laxpress/pkg/articles"
)

const maxListLimit = 200

// ArticleAPI exposes the content store: feed and article CRUD plus feed
// export and import.
type ArticleAPI struct {
	store      *articles.Store
	invalidate func(ctx context.Context)
	logger     *slog.Logger
}

// NewArticleAPI creates a new instance of the ArticleAPI. invalidate is
// called after every write so cached pages are dropped.
func NewArticleAPI(store *articles.Store, invalidate func(ctx context.Context), logger *slog.Logger) *ArticleAPI {
	if invalidate == nil {
		invalidate = func(context.Context) {}
	}
	return &ArticleAPI{
		store:      store,
		invalidate: invalidate,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for the /api/feeds and /api/articles
// endpoints.
func (a *ArticleAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/feeds", a.handleListFeeds)
	mux.HandleFunc("POST /api/feeds", a.handlePutFeed)
	mux.HandleFunc("POST /api/feeds/import", a.handleImport)
	mux.HandleFunc("GET /api/feeds/{id}", a.handleGetFeed)
	mux.HandleFunc("DELETE /api/feeds/{id}", a.handleDeleteFeed)
	mux.HandleFunc("GET /api/feeds/{id}/articles", a.handleListArticles)
	mux.HandleFunc("GET /api/feeds/{id}/export", a.handleExport)
	mux.HandleFunc("POST /api/articles", a.handlePutArticle)
	mux.HandleFunc("GET /api/articles/{id}", a.handleGetArticle)
	mux.HandleFunc("DELETE /api/articles/{id}", a.handleDeleteArticle)
}

// storeError maps a store error to a response.
func (a *ArticleAPI) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, articles.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	a.logger.Error("Article store request failed", "error", err)
	respondWithError(w, http.StatusInternalServerError, "Database operation failed")
}

func (a *ArticleAPI) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesRead) {
		return
	}
	feeds, err := a.store.ListFeeds(r.Context())
	if err != nil {
		a.storeError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, feeds)
}

func (a *ArticleAPI) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesRead) {
		return
	}
	feed, err := a.store.GetFeed(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, feed)
}

func (a *ArticleAPI) handlePutFeed(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesWrite) {
		return
	}
	var feed articles.Feed
	if err := json.NewDecoder(r.Body).Decode(&feed); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if feed.Name == "" {
		respondWithError(w, http.StatusBadRequest, "Feed name is required")
		return
	}
	feed, err := a.store.InsertFeed(r.Context(), feed)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.invalidate(r.Context())
	respondWithJSON(w, http.StatusCreated, feed)
}

func (a *ArticleAPI) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesWrite) {
		return
	}
	if err := a.store.RemoveFeed(r.Context(), r.PathValue("id")); err != nil {
		a.storeError(w, err)
		return
	}
	a.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *ArticleAPI) handleListArticles(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesRead) {
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit <= 0 || limit > maxListLimit {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		respondWithError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	list, err := a.store.ListArticles(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		a.storeError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (a *ArticleAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesRead) {
		return
	}
	id := r.PathValue("id")
	var buf bytes.Buffer
	if err := a.store.ExportFeed(r.Context(), id, &buf); err != nil {
		a.storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".json"))
	_, _ = buf.WriteTo(w)
}

func (a *ArticleAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesWrite) {
		return
	}
	n, err := a.store.ImportFeed(r.Context(), r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	a.invalidate(r.Context())
	respondWithJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (a *ArticleAPI) handlePutArticle(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesWrite) {
		return
	}
	var article articles.Article
	if err := json.NewDecoder(r.Body).Decode(&article); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if article.FeedID != articles.FeaturedFeedID {
		if _, err := a.store.GetFeed(r.Context(), article.FeedID); err != nil {
			if errors.Is(err, articles.ErrNotFound) {
				respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown feed %q", article.FeedID))
				return
			}
			a.storeError(w, err)
			return
		}
	}
	article, err := a.store.InsertArticle(r.Context(), article)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.invalidate(r.Context())
	respondWithJSON(w, http.StatusCreated, article)
}

func (a *ArticleAPI) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesRead) {
		return
	}
	article, err := a.store.GetArticle(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, article)
}

func (a *ArticleAPI) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeArticlesWrite) {
		return
	}
	if err := a.store.RemoveArticle(r.Context(), r.PathValue("id")); err != nil {
		a.storeError(w, err)
		return
	}
	a.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// queryInt reads an integer query parameter, returning def when it is absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
