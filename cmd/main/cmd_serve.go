package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CTAG07/Laxpress/pkg/pagecache"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the page server and the management API",
	Long: `Starts the public page server and the authenticated API server. The API can
restart the process in place after a configuration change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return serve(cmd, configPath)
	},
}

func init() {
	serveCmd.Flags().StringP("config", "c", "./config.json", "Path to the JSON configuration file")
	rootCmd.AddCommand(serveCmd)
}

// serve runs server cycles until a shutdown is requested by the API or an OS
// signal.
func serve(cmd *cobra.Command, configPath string) error {
	baseLogger := newLogger(cmd, "info")

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(cmd, configPath, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			return err
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("Laxpress has shut down.")
	return nil
}

// run hosts both servers for one cycle and returns the action that ended it.
func run(cmd *cobra.Command, configPath string, actionChan chan string) (string, error) {
	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	logger := newLogger(cmd, config.Server.LogLevel)
	logger.Info("Starting server cycle...", "version", Version)

	if err = os.MkdirAll(config.Server.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	cache, closeCache := openCache(config.Server.Cache, logger)
	defer closeCache()

	server, err := NewServer(cm, logger, db, cache, actionChan)
	if err != nil {
		return "", fmt.Errorf("failed to create server object: %w", err)
	}
	defer server.Close()

	ctx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if config.Server.WatchTemplates {
		go func() {
			if err := server.tm.Watch(ctx); err != nil {
				logger.Error("Template watcher stopped", "error", err)
			}
		}()
	}

	pageHttpServer := &http.Server{Addr: config.Server.ServerAddr, Handler: server.pageMux}
	apiHttpServer := &http.Server{Addr: config.Server.ApiAddr, Handler: server.apiMux}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	go func() {
		logger.Info("Starting page server", "address", pageHttpServer.Addr)
		if err := pageHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Page server failed", "error", err)
		}
	}()

	action := <-actionChan

	logger.Info("Stopping servers for " + action + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	if err = pageHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Page server shutdown failed", "error", err)
	}
	logger.Info("HTTP servers stopped.")

	return action, nil
}

// openCache connects the Redis page cache, or returns the no-op cache when
// no address is configured or the server is unreachable.
func openCache(cfg *CacheConfig, logger *slog.Logger) (pagecache.Cache, func()) {
	if cfg == nil || cfg.RedisAddr == "" {
		logger.Info("Page cache disabled")
		return pagecache.Noop{}, func() {}
	}

	opts := []pagecache.Option{
		pagecache.WithTTL(time.Duration(cfg.TTLSeconds) * time.Second),
		pagecache.WithLogger(logger),
	}
	if cfg.Prefix != "" {
		opts = append(opts, pagecache.WithPrefix(cfg.Prefix))
	}
	cache := pagecache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("Redis unreachable, page cache disabled", "address", cfg.RedisAddr, "error", err)
		_ = cache.Close()
		return pagecache.Noop{}, func() {}
	}

	logger.Info("Page cache connected", "address", cfg.RedisAddr, "ttl_sec", cfg.TTLSeconds)
	return cache, func() {
		_ = cache.Close()
	}
}
