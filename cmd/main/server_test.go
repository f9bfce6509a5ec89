package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/Laxpress/pkg/articles"
	"github.com/CTAG07/Laxpress/pkg/pagecache"
	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testArticleTemplate = `<h1>{{ article.title }}</h1><p>{{ site.name }}</p>{% if prev_article %}<a>{{ prev_article.title }}</a>{% endif %}`
	testFeedTemplate    = `<h1>{{ feed.name }}</h1>{% for a in articles %}<li>{{ a.title }}</li>{% endfor %}`
)

// setupTestServer builds a Server over a fresh data directory, a SQLite
// database and a miniredis page cache. The "tech" feed holds a1 and a2.
func setupTestServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	t.Helper()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Server.DataDir = dir
	cfg.Server.TemplateDir = filepath.Join(dir, "templates")
	cfgPath := filepath.Join(dir, "config.json")
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, raw, 0o644))

	require.NoError(t, os.MkdirAll(cfg.Server.TemplateDir, 0o755))
	writeFile(t, cfg.Server.TemplateDir, "article.tmpl.html", testArticleTemplate)
	writeFile(t, cfg.Server.TemplateDir, "feed.tmpl.html", testFeedTemplate)

	cm, err := NewConfigManager(cfgPath)
	require.NoError(t, err)

	db, err := initDB(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cache := pagecache.NewFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServer(cm, logger, db, cache, make(chan string, 1))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	ctx := context.Background()
	_, err = s.store.InsertFeed(ctx, articles.Feed{ID: "tech", Name: "Tech Weekly", Status: 1})
	require.NoError(t, err)
	_, err = s.store.InsertArticle(ctx, articles.Article{ID: "a1", FeedID: "tech", Title: "First", Status: 1, PublishTime: 100})
	require.NoError(t, err)
	_, err = s.store.InsertArticle(ctx, articles.Article{ID: "a2", FeedID: "tech", Title: "Second", Status: 1, PublishTime: 200})
	require.NoError(t, err)

	return s, mr
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func doRequest(h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPageRoutes(t *testing.T) {
	s, _ := setupTestServer(t)

	t.Run("Article", func(t *testing.T) {
		rec := doRequest(s.pageMux, http.MethodGet, "/articles/a2", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "<h1>Second</h1><p>Laxpress</p><a>First</a>", rec.Body.String())
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

		a, err := s.store.GetArticle(context.Background(), "a2")
		require.NoError(t, err)
		assert.True(t, a.IsRead)
	})

	t.Run("Feed", func(t *testing.T) {
		rec := doRequest(s.pageMux, http.MethodGet, "/feeds/tech", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "<h1>Tech Weekly</h1><li>Second</li>\n<li>First</li>", rec.Body.String())
	})

	t.Run("Missing article", func(t *testing.T) {
		rec := doRequest(s.pageMux, http.MethodGet, "/articles/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Missing feed", func(t *testing.T) {
		rec := doRequest(s.pageMux, http.MethodGet, "/feeds/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Root redirects to featured", func(t *testing.T) {
		rec := doRequest(s.pageMux, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/feeds/featured", rec.Header().Get("Location"))
	})

	t.Run("Favicon", func(t *testing.T) {
		rec := doRequest(s.pageMux, http.MethodGet, "/favicon.ico", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestPageCache(t *testing.T) {
	s, mr := setupTestServer(t)
	ctx := context.Background()

	rec := doRequest(s.pageMux, http.MethodGet, "/articles/a1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mr.Exists(pagecache.DefaultPrefix+"/articles/a1"))

	// A write that bypasses the API is not seen until the cache is dropped.
	_, err := s.store.InsertArticle(ctx, articles.Article{ID: "a1", FeedID: "tech", Title: "Edited", Status: 1, PublishTime: 100})
	require.NoError(t, err)
	rec = doRequest(s.pageMux, http.MethodGet, "/articles/a1", "")
	assert.Contains(t, rec.Body.String(), "<h1>First</h1>")

	// Writes through the API invalidate.
	rec = doRequest(s.apiMux, http.MethodPost, "/api/articles",
		`{"id":"a1","feed_id":"tech","title":"Changed","status":1,"publish_time":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, mr.Exists(pagecache.DefaultPrefix+"/articles/a1"))

	rec = doRequest(s.pageMux, http.MethodGet, "/articles/a1", "")
	assert.Contains(t, rec.Body.String(), "<h1>Changed</h1>")

	metrics := doRequest(s.apiMux, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), `laxpress_page_cache_total{result="hit"} 1`)
	assert.Contains(t, metrics.Body.String(), `laxpress_pages_served_total{code="200",route="article"} 3`)
}

func TestAuthFlow(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(s.apiMux, http.MethodGet, "/api/feeds", "")
	require.Equal(t, http.StatusOK, rec.Code, "the API is open until a key exists")

	rec = doRequest(s.apiMux, http.MethodPost, "/api/auth/keys", `{"description":"admin","scopes":["articles:read"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var master CreateKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &master))
	assert.True(t, strings.HasPrefix(master.RawKey, "lax_"))
	assert.Equal(t, []string{"*"}, master.Scopes, "the first key is always a master key")

	rec = doRequest(s.apiMux, http.MethodGet, "/api/feeds", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s.apiMux, http.MethodGet, "/api/feeds", "", authHeader, "lax_wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s.apiMux, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health stays open")

	rec = doRequest(s.apiMux, http.MethodPost, "/api/auth/keys", `{"description":"bad","scopes":["root"]}`, authHeader, master.RawKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s.apiMux, http.MethodPost, "/api/auth/keys", `{"description":"reader","scopes":["articles:read"]}`, authHeader, master.RawKey)
	require.Equal(t, http.StatusCreated, rec.Code)
	var reader CreateKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reader))

	rec = doRequest(s.apiMux, http.MethodGet, "/api/feeds", "", authHeader, reader.RawKey)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s.apiMux, http.MethodPost, "/api/feeds", `{"name":"Nope"}`, authHeader, reader.RawKey)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(s.apiMux, http.MethodPost, "/api/auth/keys", `{"description":"x"}`, authHeader, reader.RawKey)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(s.apiMux, http.MethodGet, "/api/auth/keys", "", authHeader, master.RawKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var keys []APIKeyInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	assert.Len(t, keys, 2)

	rec = doRequest(s.apiMux, http.MethodDelete, "/api/auth/keys/1", "", authHeader, master.RawKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s.apiMux, http.MethodDelete, "/api/auth/keys/2", "", authHeader, master.RawKey)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTemplateAPI(t *testing.T) {
	s, mr := setupTestServer(t)

	doRequest(s.pageMux, http.MethodGet, "/feeds/tech", "")
	require.True(t, mr.Exists(pagecache.DefaultPrefix+"/feeds/tech?page=1"))

	rec := doRequest(s.apiMux, http.MethodPut, "/api/templates/about.tmpl.html", `Hi {{ name }}{% include "sig.part.html" %}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(s.apiMux, http.MethodPut, "/api/templates/sig.part.html", ` from {{ site }}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, mr.Exists(pagecache.DefaultPrefix+"/feeds/tech?page=1"), "template writes drop cached pages")

	rec = doRequest(s.apiMux, http.MethodGet, "/api/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, []string{"about.tmpl.html", "article.tmpl.html", "feed.tmpl.html"}, listing["templates"])
	assert.Equal(t, []string{"sig.part.html"}, listing["partials"])
	assert.Contains(t, listing["functions"], "markdown")

	rec = doRequest(s.apiMux, http.MethodPost, "/api/templates/preview/about.tmpl.html", `{"name":"Bob","site":"Laxpress"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi Bob from Laxpress", rec.Body.String())

	rec = doRequest(s.apiMux, http.MethodPost, "/api/templates/preview/missing.tmpl.html", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s.apiMux, http.MethodGet, "/api/templates/sig.part.html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ` from {{ site }}`, rec.Body.String())

	rec = doRequest(s.apiMux, http.MethodPut, "/api/templates/notes.txt", "x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s.apiMux, http.MethodDelete, "/api/templates/about.tmpl.html", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(s.apiMux, http.MethodDelete, "/api/templates/about.tmpl.html", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplateTestEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(s.apiMux, http.MethodPost, "/api/templates/test", `{"template":"Hello {{ who }} {{= comma(n) }}","context":{"who":"you","n":12345}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello you 12,345", rec.Body.String())

	rec = doRequest(s.apiMux, http.MethodPost, "/api/templates/test", `{"template":"x","context":{"bad-key":1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s.apiMux, http.MethodPost, "/api/templates/test", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArticleAPI(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(s.apiMux, http.MethodPost, "/api/articles", `{"feed_id":"nowhere","title":"Lost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s.apiMux, http.MethodGet, "/api/feeds/tech/articles?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []articles.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "a2", list[0].ID)

	rec = doRequest(s.apiMux, http.MethodGet, "/api/feeds/tech/articles?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s.apiMux, http.MethodGet, "/api/feeds/tech/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.String()
	assert.Contains(t, exported, `"Tech Weekly"`)

	rec = doRequest(s.apiMux, http.MethodDelete, "/api/feeds/tech", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(s.apiMux, http.MethodGet, "/api/articles/a1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s.apiMux, http.MethodPost, "/api/feeds/import", exported)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"imported":2}`, rec.Body.String())

	rec = doRequest(s.apiMux, http.MethodGet, "/api/articles/a1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s.apiMux, http.MethodPost, "/api/feeds", `{"id":"news","name":"News","status":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(s.apiMux, http.MethodGet, "/api/feeds/news", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s.apiMux, http.MethodPost, "/api/feeds", `{"id":"featured","name":"Mine"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerAPI(t *testing.T) {
	s, mr := setupTestServer(t)

	rec := doRequest(s.apiMux, http.MethodGet, "/api/server/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 20, cfg.Server.FeedPageSize)

	doRequest(s.pageMux, http.MethodGet, "/feeds/tech", "")
	cfg.Server.FeedPageSize = 1
	body, err := json.Marshal(cfg)
	require.NoError(t, err)
	rec = doRequest(s.apiMux, http.MethodPut, "/api/server/config", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, mr.Keys(), "a config change purges the cache")

	rec = doRequest(s.pageMux, http.MethodGet, "/feeds/tech", "")
	assert.Equal(t, "<h1>Tech Weekly</h1><li>Second</li>", rec.Body.String())

	cfg.Templates.PartialGlob = "["
	body, err = json.Marshal(cfg)
	require.NoError(t, err)
	rec = doRequest(s.apiMux, http.MethodPut, "/api/server/config", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s.apiMux, http.MethodGet, "/api/server/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"dev"`)

	doRequest(s.pageMux, http.MethodGet, "/articles/a1", "")
	rec = doRequest(s.apiMux, http.MethodPost, "/api/server/cache/purge?prefix=/articles/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, rec.Body.String())
}

func TestServerControl(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(s.apiMux, http.MethodPost, "/api/server/restart", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, actionRestart, <-s.serverAPI.actionChan)
}

func TestClientIP(t *testing.T) {
	s, _ := setupTestServer(t)
	cfg := s.cm.Get()
	server := *cfg.Server
	server.TrustedProxies = []string{"10.0.0.1"}
	cfg.Server = &server
	require.NoError(t, s.cm.Update(cfg))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", s.clientIP(req))

	req.RemoteAddr = "198.51.100.7:5000"
	assert.Equal(t, "198.51.100.7", s.clientIP(req), "untrusted peers cannot spoof")
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.tmpl.html", `{% include "head.part.html" %}{{ title }}: {{= comma(count) }}{% for t in tags %}[{{ t }}]{% endfor %}`)
	writeFile(t, dir, "head.part.html", `<title>{{ site.name }}</title>`)
	writeFile(t, dir, "data.yaml", "site:\n  name: Demo\ntitle: Stats\ncount: 4096\ntags: [a]\n")

	var out bytes.Buffer
	renderCmd.SetOut(&out)
	t.Cleanup(func() { renderCmd.SetOut(nil) })

	require.NoError(t, renderFile(renderCmd, filepath.Join(dir, "hello.tmpl.html"), filepath.Join(dir, "data.yaml"), "", "UTC"))
	assert.Equal(t, "<title>Demo</title>Stats: 4,096[a]", out.String())

	outPath := filepath.Join(dir, "out.html")
	require.NoError(t, renderFile(renderCmd, filepath.Join(dir, "hello.tmpl.html"), filepath.Join(dir, "data.yaml"), outPath, "UTC"))
	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "<title>Demo</title>Stats: 4,096[a]", string(written))

	assert.Error(t, renderFile(renderCmd, filepath.Join(dir, "missing.tmpl.html"), "", "", "UTC"))
}

func TestLoadContext(t *testing.T) {
	dir := t.TempDir()

	data, err := loadContext("")
	require.NoError(t, err)
	assert.Empty(t, data)

	writeFile(t, dir, "ctx.json", `{"a":{"b":[1,2]}}`)
	data, err = loadContext(filepath.Join(dir, "ctx.json"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": []any{1, 2}}}, data)

	writeFile(t, dir, "list.yaml", "- 1\n- 2\n")
	_, err = loadContext(filepath.Join(dir, "list.yaml"))
	assert.Error(t, err)
}
