package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCacheMiss indicates the requested page is not cached
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a cached page could not be decoded
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// purgeBatch is the SCAN count and the number of keys unlinked per call.
const purgeBatch = 500

// Manager stores subgraph pages in Redis.
type Manager struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewManager creates a page cache on top of redisClient.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:  redisClient,
		logger: log.With().Str("component", "page-cache").Logger(),
	}
}

// Get returns the cached page for key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		CacheMisses.WithLabelValues(key.Collection).Inc()
		return nil, ErrCacheMiss
	}
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		// an undecodable page would otherwise be hit again on every run
		_ = m.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.WithLabelValues(key.Collection).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(key.Collection).Inc()
	CacheRecordsServed.WithLabelValues(key.Collection).Add(float64(len(entry.Records)))
	return &entry, nil
}

// Set stores a page until entry.Expires. Expired entries are not written.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheBytesWritten.WithLabelValues(key.Collection).Add(float64(len(data)))
	CacheRecordsWritten.WithLabelValues(key.Collection).Add(float64(len(entry.Records)))
	return nil
}

// Delete removes one cached page.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Purge removes every cached page of collection at endpoint, whatever the
// query or page variables, and returns how many were removed.
func (m *Manager) Purge(ctx context.Context, endpoint, collection string) (int, error) {
	start := time.Now()
	pattern := globEscape(CollectionPrefix(endpoint, collection)) + ":*"

	removed := 0
	var cursor uint64
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, purgeBatch).Result()
		if err != nil {
			CacheErrors.WithLabelValues("purge").Inc()
			return removed, fmt.Errorf("redis scan: %w", err)
		}

		if len(keys) > 0 {
			n, err := m.redis.Unlink(ctx, keys...).Result()
			if err != nil {
				CacheErrors.WithLabelValues("purge").Inc()
				return removed, fmt.Errorf("redis unlink: %w", err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	CachePurged.WithLabelValues(collection).Add(float64(removed))
	m.logger.Info().
		Str("collection", collection).
		Int("pages", removed).
		Dur("duration", time.Since(start)).
		Msg("Page cache purged")

	return removed, nil
}
