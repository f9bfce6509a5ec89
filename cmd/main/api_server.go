package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/Laxpress/pkg/pagecache"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// ServerAPI holds the dependencies for the main application API handlers.
type ServerAPI struct {
	cm         *ConfigManager
	actionChan chan string
	cache      pagecache.Cache
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewServerAPI creates a new instance of the ServerAPI.
func NewServerAPI(cm *ConfigManager, actionChan chan string, cache pagecache.Cache, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		cm:         cm,
		actionChan: actionChan,
		cache:      cache,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for all /api/server endpoints.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/server/config", a.handleGetConfig)
	mux.HandleFunc("PUT /api/server/config", a.handlePutConfig)
	mux.HandleFunc("GET /api/server/version", a.handleVersion)
	mux.HandleFunc("POST /api/server/cache/purge", a.handlePurge)
	mux.HandleFunc("POST /api/server/shutdown", a.handleShutdown)
	mux.HandleFunc("POST /api/server/restart", a.handleRestart)
}

// handleHealthCheck is left unauthenticated for container health probes.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *ServerAPI) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeServerConfig) {
		return
	}
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

// handlePutConfig replaces and persists the configuration. Template limits
// apply at once; addresses and the database path need a restart.
func (a *ServerAPI) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeServerConfig) {
		return
	}
	var newConfig Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if err := a.cm.Update(newConfig); err != nil {
		a.logger.Error("Failed to update configuration", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to update configuration: %v", err))
		return
	}
	if _, err := a.cache.InvalidatePrefix(r.Context(), ""); err != nil {
		a.logger.Warn("Failed to purge page cache after config update", "error", err)
	}

	a.logger.Info("Application configuration updated and saved via API. Some changes may require a restart.")
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeServerConfig) {
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handlePurge drops cached pages under the optional prefix query parameter.
func (a *ServerAPI) handlePurge(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeServerControl) {
		return
	}
	n, err := a.cache.InvalidatePrefix(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		a.logger.Error("Failed to purge page cache", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to purge page cache")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// handleShutdown initiates a graceful shutdown of the server.
func (a *ServerAPI) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeServerControl) {
		return
	}

	a.logger.Warn("Shutdown initiated via API")
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is shutting down..."})

	go func() {
		a.actionChan <- actionShutdown
	}()
}

// handleRestart initiates a graceful restart of the server.
func (a *ServerAPI) handleRestart(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeServerControl) {
		return
	}

	a.logger.Warn("Restart initiated via API")
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is restarting..."})

	go func() {
		a.actionChan <- actionRestart
	}()
}
