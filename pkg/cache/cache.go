// Package cache stores normalized segment responses in Redis so that
// repeated acquisitions over the same location and span skip the
// provider call entirely. Fully historical spans change rarely and get
// a long TTL; spans touching the recent-data boundary get a short one.
// Caching is optional: a nil *Manager disables it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// ErrCacheMiss indicates the requested key was not found.
var ErrCacheMiss = errors.New("cache miss")

// ErrInvalidEntry indicates a corrupted cache entry.
var ErrInvalidEntry = errors.New("invalid cache entry")

// TTL policy. Historical spans are immutable for practical purposes;
// spans near the present still receive backfills from both providers.
const (
	// HistoricalTTL applies to spans ending well in the past.
	HistoricalTTL = 14 * 24 * time.Hour

	// RecentTTL applies to spans ending within RecentBoundaryDays of now.
	RecentTTL = 6 * time.Hour

	// RecentBoundaryDays matches the free provider's realtime lag.
	RecentBoundaryDays = 7
)

// TTLFor picks the TTL for a segment span.
func TTLFor(r weather.DateRange, now time.Time) time.Duration {
	boundary := weather.DateOf(now.UTC()).AddDays(-RecentBoundaryDays)
	if r.End.Before(boundary) {
		return HistoricalTTL
	}
	return RecentTTL
}

// Manager handles segment-cache operations against Redis.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a cache manager. The Redis client must be non-nil;
// callers that run without Redis pass a nil *Manager around instead.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// Get retrieves the cached records for a segment key. Returns
// ErrCacheMiss when absent.
func (m *Manager) Get(ctx context.Context, key Key) ([]weather.DailyRecord, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	cacheHits.Inc()
	return entry.Records, nil
}

// Set stores a segment's records under the TTL policy for its span.
func (m *Manager) Set(ctx context.Context, key Key, records []weather.DailyRecord) error {
	entry := Entry{
		Records:  records,
		StoredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal entry: %w", err)
	}

	ttl := TTLFor(key.Range, time.Now())
	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a cached segment.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Entry is the stored payload for one segment.
type Entry struct {
	Records  []weather.DailyRecord `json:"records"`
	StoredAt time.Time             `json:"stored_at"`
}
