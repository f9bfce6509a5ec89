package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CTAG07/Laxpress/pkg/articles"
	"github.com/CTAG07/Laxpress/pkg/lax"
	"github.com/CTAG07/Laxpress/pkg/pagecache"
)

// Server wires the template engine, the content store and the page cache
// into the public page server and the authenticated API server.
type Server struct {
	cm          *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	tm          *lax.TemplateManager
	store       *articles.Store
	cache       pagecache.Cache
	metrics     *Metrics
	authAPI     *AuthAPI
	templateAPI *TemplateAPI
	articleAPI  *ArticleAPI
	serverAPI   *ServerAPI
	pageMux     *http.ServeMux
	apiMux      *http.ServeMux
}

// pageBuilder loads the data of one page. It returns the template to render
// it with and the render context.
type pageBuilder func(ctx context.Context, cfg *ServerConfig) (string, lax.Context, error)

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, cache pagecache.Cache, actionChan chan string) (*Server, error) {
	config := cm.Get()
	loc := config.Server.Location()

	if err := os.MkdirAll(config.Server.TemplateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create template directory: %w", err)
	}
	tm, err := lax.NewTemplateManager(logger, config.Templates, config.Server.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	if err = tm.RegisterFunctions(hostFuncs(loc)); err != nil {
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}
	cm.SetLogger(logger)
	cm.SetTemplateManager(tm)

	store, err := articles.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("error creating article store: %w", err)
	}
	store.SetLogger(logger)
	store.SetLocation(loc)

	if cache == nil {
		cache = pagecache.Noop{}
	}

	server := &Server{
		cm:      cm,
		db:      db,
		logger:  logger,
		tm:      tm,
		store:   store,
		cache:   cache,
		metrics: NewMetrics(),
		pageMux: http.NewServeMux(),
		apiMux:  http.NewServeMux(),
	}

	server.authAPI = NewAuthAPI(db, logger)
	server.templateAPI = NewTemplateAPI(tm, server.invalidatePages, logger)
	server.articleAPI = NewArticleAPI(store, server.invalidatePages, logger)
	server.serverAPI = NewServerAPI(cm, actionChan, cache, logger)

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.templateAPI.RegisterRoutes(apiMux)
	server.articleAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Everything under /api/ passes authentication except the health check.
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", server.authAPI.Authenticate(apiMux))
	server.apiMux.Handle("/metrics", server.metrics.Handler())

	server.pageMux.HandleFunc("GET /articles/{id}", server.handleArticle)
	server.pageMux.HandleFunc("GET /feeds/{id}", server.handleFeed)
	server.pageMux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/feeds/"+articles.FeaturedFeedID, http.StatusFound)
	})
	server.pageMux.HandleFunc("/favicon.ico", handleFavicon)

	return server, nil
}

// Close releases the store's prepared statements.
func (s *Server) Close() {
	s.store.Close()
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.servePage(w, r, "article", "/articles/"+id, func(ctx context.Context, cfg *ServerConfig) (string, lax.Context, error) {
		data, err := s.store.ArticlePage(ctx, id, site(cfg))
		return cfg.ArticleTemplate, data, err
	}) {
		// A cached page skipped the store, so the view is recorded here.
		if _, err := s.store.MarkRead(r.Context(), id); err != nil {
			s.logger.Warn("Failed to mark cached article read", "article_id", id, "error", err)
		}
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	page, err := queryInt(r, "page", 1)
	if err != nil {
		page = 1
	}
	key := "/feeds/" + id + "?page=" + strconv.Itoa(page)
	s.servePage(w, r, "feed", key, func(ctx context.Context, cfg *ServerConfig) (string, lax.Context, error) {
		data, err := s.store.FeedPage(ctx, id, page, cfg.FeedPageSize, site(cfg))
		return cfg.FeedTemplate, data, err
	})
}

// servePage answers from the cache when it can, otherwise builds, renders
// and caches the page. It reports whether the response came from the cache.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request, route, key string, build pageBuilder) bool {
	ctx := r.Context()
	cfg := s.cm.Get().Server

	if page, ok, err := s.cache.Get(ctx, key); err != nil {
		s.metrics.cacheResults.WithLabelValues("error").Inc()
		s.logger.Warn("Page cache read failed", "key", key, "error", err)
	} else if ok {
		s.metrics.cacheResults.WithLabelValues("hit").Inc()
		s.writePage(w, r, route, cfg, page)
		return true
	} else {
		s.metrics.cacheResults.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	tmpl, data, err := build(ctx, cfg)
	if err != nil {
		if errors.Is(err, articles.ErrNotFound) {
			s.metrics.pagesServed.WithLabelValues(route, "404").Inc()
			http.NotFound(w, r)
			return false
		}
		s.logger.Error("Failed to load page data", "route", route, "key", key, "error", err)
		s.metrics.pagesServed.WithLabelValues(route, "500").Inc()
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return false
	}

	var buf bytes.Buffer
	if err = s.tm.Execute(&buf, tmpl, data); err != nil {
		s.logger.Error("Failed to execute template", "template", tmpl, "error", err)
		s.metrics.pagesServed.WithLabelValues(route, "500").Inc()
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return false
	}
	s.metrics.renderDuration.WithLabelValues(tmpl).Observe(time.Since(start).Seconds())

	if err = s.cache.Set(ctx, key, buf.Bytes()); err != nil {
		s.logger.Warn("Page cache write failed", "key", key, "error", err)
	}

	s.logger.Debug("Serving page", "route", route, "template", tmpl, "remote_addr", s.clientIP(r))
	s.writePage(w, r, route, cfg, buf.Bytes())
	return false
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, route string, cfg *ServerConfig, page []byte) {
	for k, v := range cfg.Headers {
		w.Header().Set(k, v)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	s.metrics.pagesServed.WithLabelValues(route, "200").Inc()
	if _, err := w.Write(page); err != nil {
		s.logger.Debug("Failed to write page to client", "error", err, "remote_addr", s.clientIP(r))
	}
}

// invalidatePages drops every cached page. It is called after any content
// or template write.
func (s *Server) invalidatePages(ctx context.Context) {
	n, err := s.cache.InvalidatePrefix(ctx, "")
	if err != nil {
		s.logger.Warn("Failed to invalidate page cache", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Page cache invalidated", "removed", n)
	}
}

// site returns a copy of the configured site data for a render context.
func site(cfg *ServerConfig) map[string]any {
	out := make(map[string]any, len(cfg.Site))
	maps.Copy(out, cfg.Site)
	return out
}

// clientIP returns the request's client address. Forwarding headers are
// honored only when the direct peer is a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if !s.cm.IsTrusted(ip) {
		return ip
	}

	// X-Real-Ip is set by proxies like nginx.
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}
	// The first entry of X-Forwarded-For is the original client.
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}
	return ip
}

// handleFavicon answers favicon requests with no content so they never reach
// the page routes.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
