package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/Laxpress/pkg/lax"
	"github.com/natefinch/atomic"
)

// maxTemplateBody caps uploaded template sources and test requests.
const maxTemplateBody = 1 << 20

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	tm         *lax.TemplateManager
	invalidate func(ctx context.Context)
	logger     *slog.Logger
}

// TestTemplateRequest is the body of a template test: raw source and the
// context to render it with.
type TestTemplateRequest struct {
	Template string         `json:"template"`
	Context  map[string]any `json:"context"`
}

// NewTemplateAPI creates a new instance of the TemplateAPI. invalidate is
// called after templates change so cached pages are dropped.
func NewTemplateAPI(tm *lax.TemplateManager, invalidate func(ctx context.Context), logger *slog.Logger) *TemplateAPI {
	if invalidate == nil {
		invalidate = func(context.Context) {}
	}
	return &TemplateAPI{
		tm:         tm,
		invalidate: invalidate,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/templates/refresh", t.handleRefresh)
	mux.HandleFunc("POST /api/templates/test", t.handleTest)
	mux.HandleFunc("POST /api/templates/preview/{name}", t.handlePreview)
	mux.HandleFunc("GET /api/templates", t.handleList)
	mux.HandleFunc("GET /api/templates/{name}", t.handleGetFile)
	mux.HandleFunc("PUT /api/templates/{name}", t.handlePutFile)
	mux.HandleFunc("DELETE /api/templates/{name}", t.handleDeleteFile)
}

// handleRefresh triggers a manual refresh of templates from disk.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeTemplatesWrite) {
		return
	}
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.invalidate(r.Context())
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleList returns the loaded template and partial names.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeTemplatesRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string][]string{
		"templates": t.tm.GetTemplateNames(),
		"partials":  t.tm.GetPartialNames(),
		"functions": t.tm.Registry().Names(),
	})
}

// handleTest renders raw template text without saving it.
func (t *TemplateAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeTemplatesRead) {
		return
	}

	var req TestTemplateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTemplateBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	var buf bytes.Buffer
	if err := t.tm.ExecuteTemplateString(&buf, req.Template, req.Context); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handlePreview renders a loaded template with the JSON context in the body.
// An empty body renders with an empty context.
func (t *TemplateAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeTemplatesRead) {
		return
	}

	name := r.PathValue("name")
	data := map[string]any{}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTemplateBody)).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON context")
		return
	}

	var buf bytes.Buffer
	if err := t.tm.Execute(&buf, name, data); err != nil {
		if errors.Is(err, lax.ErrTemplateNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Template '%s' not found", name))
			return
		}
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to render preview: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// templatePath resolves a template or partial name inside the template
// directory. It writes the error response and returns false for names that
// are not plain template file names.
func (t *TemplateAPI) templatePath(w http.ResponseWriter, name string) (string, bool) {
	cfg := t.tm.GetConfig()
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		respondWithError(w, http.StatusBadRequest, "Invalid template name format")
		return "", false
	}
	isTmpl, _ := filepath.Match(cfg.TemplateGlob, name)
	isPart, _ := filepath.Match(cfg.PartialGlob, name)
	if !isTmpl && !isPart {
		respondWithError(w, http.StatusBadRequest, "Invalid template name format")
		return "", false
	}

	templateDir, err := filepath.Abs(t.tm.GetTemplateDir())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve template directory")
		return "", false
	}
	return filepath.Join(templateDir, name), true
}

func (t *TemplateAPI) handleGetFile(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeTemplatesRead) {
		return
	}
	path, ok := t.templatePath(w, r.PathValue("name"))
	if !ok {
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Template not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(content)
}

func (t *TemplateAPI) handlePutFile(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeTemplatesWrite) {
		return
	}
	path, ok := t.templatePath(w, r.PathValue("name"))
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateBody))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}
	if err = atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write template file: %v", err))
		return
	}
	t.afterChange(r.Context(), "Template saved via API", filepath.Base(path))
	w.WriteHeader(http.StatusNoContent)
}

func (t *TemplateAPI) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeTemplatesWrite) {
		return
	}
	path, ok := t.templatePath(w, r.PathValue("name"))
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			respondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template file: %v", err))
		return
	}
	t.afterChange(r.Context(), "Template deleted via API", filepath.Base(path))
	w.WriteHeader(http.StatusNoContent)
}

// afterChange reloads the templates and drops cached pages after a file
// write. A failed reload keeps the previous templates and is only logged.
func (t *TemplateAPI) afterChange(ctx context.Context, msg, name string) {
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("Template refresh after change failed", "template", name, "error", err)
	}
	t.invalidate(ctx)
	t.logger.Info(msg, "template", name)
}
