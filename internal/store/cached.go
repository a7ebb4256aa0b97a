package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"time"

	"github.com/voyagen/epgvault/internal/cache"
	"github.com/voyagen/epgvault/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlChannels = 1 * time.Minute
	ttlChannel  = 5 * time.Minute
	ttlPrograms = 1 * time.Minute
	ttlStats    = 30 * time.Second
)

// Cache key prefixes; full keys are built with cache.Key.
const (
	prefixChannel  = "channel"
	prefixChannels = "channels"
	prefixPrograms = "programs"
	keyStats       = "stats"
)

// CachedStore wraps a Store with a Redis caching layer.
// Channel and program reads are served from cache when possible;
// write operations invalidate the relevant cache keys.
type CachedStore struct {
	Store
	cache *cache.Redis
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{Store: inner, cache: c}
}

// --- cached read operations ---

// readThrough serves key from Redis, falling back to load and caching its
// result. Redis failures degrade to load.
func readThrough[T any](ctx context.Context, c *CachedStore, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	v, err := cache.Get[T](ctx, c.cache, key)
	if err == nil {
		return v, nil
	}
	if !cache.IsMiss(err) {
		log.Printf("cache: get %s: %v", key, err)
	}
	v, err = load()
	if err != nil {
		return v, err
	}
	c.set(ctx, key, v, ttl)
	return v, nil
}

func (c *CachedStore) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	return readThrough(ctx, c, cache.Key(prefixChannel, channelID), ttlChannel, func() (*models.Channel, error) {
		return c.Store.GetChannelByID(ctx, channelID)
	})
}

// channelListResult caches the ListChannels tuple.
type channelListResult struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
}

func (c *CachedStore) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	res, err := readThrough(ctx, c, cache.Key(prefixChannels, filterHash(filter)), ttlChannels, func() (channelListResult, error) {
		channels, total, err := c.Store.ListChannels(ctx, filter)
		return channelListResult{Channels: channels, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Channels, res.Total, nil
}

func (c *CachedStore) ProgramsForChannel(ctx context.Context, channelID int64, start, end time.Time) ([]models.Program, error) {
	key := cache.Key(prefixPrograms, channelID, start.Unix(), end.Unix())
	return readThrough(ctx, c, key, ttlPrograms, func() ([]models.Program, error) {
		return c.Store.ProgramsForChannel(ctx, channelID, start, end)
	})
}

func (c *CachedStore) Stats(ctx context.Context) (*Stats, error) {
	return readThrough(ctx, c, cache.Key(keyStats), ttlStats, func() (*Stats, error) {
		return c.Store.Stats(ctx)
	})
}

// --- write operations with cache invalidation ---

func (c *CachedStore) CreateProvider(ctx context.Context, p *models.Provider) (int64, error) {
	id, err := c.Store.CreateProvider(ctx, p)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, cache.Key(keyStats))
	return id, nil
}

func (c *CachedStore) DeleteProvider(ctx context.Context, providerID int64) error {
	if err := c.Store.DeleteProvider(ctx, providerID); err != nil {
		return err
	}
	c.invalidate(ctx, cache.Key(keyStats))
	c.invalidatePrefix(ctx, cache.Key(prefixChannels), cache.Key(prefixPrograms))
	return nil
}

func (c *CachedStore) CreateMappedChannel(ctx context.Context, providerID int64, providerChannelID, displayName string, iconURL *string) (int64, error) {
	id, err := c.Store.CreateMappedChannel(ctx, providerID, providerChannelID, displayName, iconURL)
	if err != nil {
		return 0, err
	}
	// The icon may have been filled in on an existing channel.
	c.invalidate(ctx, cache.Key(prefixChannel, id), cache.Key(keyStats))
	c.invalidatePrefix(ctx, cache.Key(prefixChannels))
	return id, nil
}

func (c *CachedStore) InsertPrograms(ctx context.Context, programs []models.Program) (int, error) {
	n, err := c.Store.InsertPrograms(ctx, programs)
	if err != nil {
		return n, err
	}
	if n > 0 {
		c.invalidate(ctx, cache.Key(keyStats))
		c.invalidatePrefix(ctx, cache.Key(prefixPrograms))
	}
	return n, nil
}

func (c *CachedStore) InsertImportLog(ctx context.Context, e *models.ImportLogEntry) (int64, error) {
	id, err := c.Store.InsertImportLog(ctx, e)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, cache.Key(keyStats))
	return id, nil
}

func (c *CachedStore) PurgeExpired(ctx context.Context, w RetentionWindow) (PurgeResult, error) {
	res, err := c.Store.PurgeExpired(ctx, w)
	if err != nil {
		return res, err
	}
	if res.ProgramsDeleted > 0 {
		c.invalidate(ctx, cache.Key(keyStats))
		c.invalidatePrefix(ctx, cache.Key(prefixPrograms))
	}
	return res, nil
}

// --- helpers ---

func (c *CachedStore) set(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil {
		log.Printf("cache: del %v: %v", keys, err)
	}
}

// invalidatePrefix deletes every key under the given prefixes.
func (c *CachedStore) invalidatePrefix(ctx context.Context, prefixes ...string) {
	if err := cache.Invalidate(ctx, c.cache, prefixes...); err != nil {
		log.Printf("cache: %v", err)
	}
}

// filterHash produces a short deterministic hash for a ChannelFilter so it
// can be used as part of a cache key.
func filterHash(f ChannelFilter) string {
	pid := "all"
	if f.ProviderID != nil {
		pid = fmt.Sprintf("%d", *f.ProviderID)
	}
	raw := fmt.Sprintf("%s|%s|%d|%d", pid, f.Search, f.Limit, f.Offset)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
