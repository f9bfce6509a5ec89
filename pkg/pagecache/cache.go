// Package pagecache stores rendered pages in Redis so repeated requests skip
// the database and the template engine.
package pagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// Cache is the page cache used by the HTTP host.
type Cache interface {
	// Get returns the cached page for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a page under key.
	Set(ctx context.Context, key string, page []byte) error
	// InvalidatePrefix drops every page whose key starts with prefix and
	// reports how many were removed.
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
}

// DefaultPrefix namespaces every key the cache writes.
const DefaultPrefix = "laxpress:page:"

const scanBatch = 100

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Redis cache.
type Option func(*Redis)

// WithTTL sets how long pages live. Zero keeps them until invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithLogger sets the logger. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New connects a cache to the Redis server at address.
func New(address, password string, db int, opts ...Option) *Redis {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a cache over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Redis {
	r := &Redis{
		client: client,
		prefix: DefaultPrefix,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Get returns the cached page for key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	page, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read page %s: %w", key, err)
	}
	return page, true, nil
}

// Set stores a page under key with the configured TTL.
func (r *Redis) Set(ctx context.Context, key string, page []byte) error {
	if err := r.client.Set(ctx, r.key(key), page, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store page %s: %w", key, err)
	}
	return nil
}

// InvalidatePrefix scans the namespace for keys starting with prefix and
// deletes them in batches.
func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	match := globEscape(r.key(prefix)) + "*"
	iter := r.client.Scan(ctx, 0, match, scanBatch).Iterator()

	removed := 0
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("failed to invalidate %q: %w", prefix, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan %q: %w", prefix, err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("failed to invalidate %q: %w", prefix, err)
	}

	r.logger.DebugContext(ctx, "Page cache invalidated", slog.String("prefix", prefix), slog.Int("removed", removed))
	return removed, nil
}

// globEscape quotes the characters SCAN MATCH treats as pattern syntax.
func globEscape(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// Noop is a Cache that never stores anything. It is used when no Redis
// address is configured.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the page.
func (Noop) Set(context.Context, string, []byte) error { return nil }

// InvalidatePrefix has nothing to remove.
func (Noop) InvalidatePrefix(context.Context, string) (int, error) { return 0, nil }

var (
	_ Cache = (*Redis)(nil)
	_ Cache = Noop{}
)
