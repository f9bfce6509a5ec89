package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/Laxpress/pkg/lax"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP servers and the content
// store.
type ServerConfig struct {
	ServerAddr      string            `json:"server_addr"`
	ApiAddr         string            `json:"api_addr"`
	LogLevel        string            `json:"log_level"`
	TrustedProxies  []string          `json:"trusted_proxies"`
	DataDir         string            `json:"data_dir"`
	DatabasePath    string            `json:"database_path"`
	TemplateDir     string            `json:"template_dir"`
	WatchTemplates  bool              `json:"watch_templates"`
	ArticleTemplate string            `json:"article_template"`
	FeedTemplate    string            `json:"feed_template"`
	FeedPageSize    int               `json:"feed_page_size"`
	TimeZone        string            `json:"time_zone"`
	Site            map[string]any    `json:"site"`
	Headers         map[string]string `json:"headers"`
	Cache           *CacheConfig      `json:"cache_config"`
}

// CacheConfig holds the Redis page cache settings. An empty RedisAddr
// disables caching.
type CacheConfig struct {
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	TTLSeconds    int    `json:"ttl_sec"`
	Prefix        string `json:"prefix"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig `json:"server_config"`
	Templates *lax.Config   `json:"template_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:      ":7277",
		ApiAddr:         ":7278",
		LogLevel:        "info",
		TrustedProxies:  []string{},
		DataDir:         "./data",
		DatabasePath:    "./data/laxpress.db?_journal_mode=WAL&_busy_timeout=5000",
		TemplateDir:     "./data/templates",
		WatchTemplates:  false,
		ArticleTemplate: "article.tmpl.html",
		FeedTemplate:    "feed.tmpl.html",
		FeedPageSize:    20,
		TimeZone:        "UTC",
		Site: map[string]any{
			"name": "Laxpress",
			"url":  "http://localhost:7277",
		},
		Headers: map[string]string{
			"Content-Security-Policy": "default-src 'self'; style-src 'self' 'unsafe-inline';",
			"Content-Type":            "text/html; charset=utf-8",
		},
		Cache: &CacheConfig{
			RedisAddr:  "",
			TTLSeconds: 300,
			Prefix:     "laxpress:page:",
		},
	}
}

// DefaultConfig returns the configuration written on first start.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Templates: lax.DefaultConfig(),
	}
}

// Location returns the configured time zone, falling back to UTC.
func (c *ServerConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Server.Cache == nil {
		config.Server.Cache = DefaultServerConfig().Cache
	}

	return config, nil
}

// ConfigManager handles thread-safe access to configuration and derived state (trusted proxies).
type ConfigManager struct {
	config       *Config
	mu           sync.RWMutex
	trustedCIDRs []*net.IPNet
	trustedIPs   []net.IP
	configPath   string
	logger       *slog.Logger
	tm           *lax.TemplateManager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	cm := &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	cm.refreshCache()

	return cm, nil
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *lax.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
	if tm != nil {
		tm.SetConfig(cm.config.Templates)
	}
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.logger = logger
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Update validates the new configuration against the template manager, saves
// it to disk, and refreshes derived state. A template configuration the
// manager cannot load is rolled back.
func (cm *ConfigManager) Update(newConfig Config) error {
	if newConfig.Server == nil {
		return fmt.Errorf("server_config is required")
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tm != nil {
		oldTmplConfig := cm.config.Templates

		cm.tm.SetConfig(newConfig.Templates)
		if err := cm.tm.Refresh(); err != nil {
			cm.tm.SetConfig(oldTmplConfig)
			_ = cm.tm.Refresh()
			return fmt.Errorf("template configuration rejected: %w", err)
		}
	}

	*cm.config = newConfig
	cm.refreshCache()

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsTrusted checks if an IP is in the trusted proxies list using the cache.
func (cm *ConfigManager) IsTrusted(ipAddr string) bool {
	parsedIP := net.ParseIP(ipAddr)
	if parsedIP == nil {
		return false
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, ipNet := range cm.trustedCIDRs {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}

	for _, trustedIP := range cm.trustedIPs {
		if trustedIP.Equal(parsedIP) {
			return true
		}
	}

	return false
}

// refreshCache rebuilds the binary IP lists from the config strings.
func (cm *ConfigManager) refreshCache() {
	var cidrs []*net.IPNet
	var ips []net.IP

	for _, t := range cm.config.Server.TrustedProxies {
		if strings.Contains(t, "/") {
			_, ipNet, err := net.ParseCIDR(t)
			if err == nil {
				cidrs = append(cidrs, ipNet)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy CIDR", "cidr", t, "error", err)
			}
		} else {
			ip := net.ParseIP(t)
			if ip != nil {
				ips = append(ips, ip)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy IP", "ip", t)
			}
		}
	}
	cm.trustedCIDRs = cidrs
	cm.trustedIPs = ips
}
