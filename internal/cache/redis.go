package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Namespace prefixes every key the service writes.
const Namespace = "epgvault"

// scanBatch is the COUNT hint for SCAN during prefix invalidation.
const scanBatch = 200

// Redis is the shared go-redis client behind the store cache and the cycle lock.
type Redis struct {
	client *redis.Client
}

// New parses a Redis URL (e.g. "redis://host:6379/0"). Call Ping to verify
// the connection.
func New(rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewFromClient(redis.NewClient(opts)), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(c *redis.Client) *Redis {
	return &Redis{client: c}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Key joins parts under Namespace: Key("channel", 7) is "epgvault:channel:7".
func Key(parts ...any) string {
	var b strings.Builder
	b.WriteString(Namespace)
	for _, p := range parts {
		b.WriteByte(':')
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// IsMiss reports whether err is a cache miss rather than a Redis failure.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Get fetches key and decodes its JSON value. A miss returns an error
// for which IsMiss is true.
func Get[T any](ctx context.Context, r *Redis, key string) (T, error) {
	var v T
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return v, nil
}

// Set stores v as JSON under key for ttl.
func Set(ctx context.Context, r *Redis, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Del removes exact keys.
func Del(ctx context.Context, r *Redis, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Unlink(ctx, keys...).Err()
}

// Invalidate removes every key under each prefix (a Key result). Matches are
// collected with SCAN and unlinked in one pipeline per page.
func Invalidate(ctx context.Context, r *Redis, prefixes ...string) error {
	for _, prefix := range prefixes {
		iter := r.client.Scan(ctx, 0, prefix+":*", scanBatch).Iterator()
		var page []string
		flush := func() error {
			if len(page) == 0 {
				return nil
			}
			pipe := r.client.Pipeline()
			for _, k := range page {
				pipe.Unlink(ctx, k)
			}
			page = page[:0]
			_, err := pipe.Exec(ctx)
			return err
		}
		for iter.Next(ctx) {
			page = append(page, iter.Val())
			if len(page) == scanBatch {
				if err := flush(); err != nil {
					return fmt.Errorf("cache invalidate %s: %w", prefix, err)
				}
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("cache scan %s: %w", prefix, err)
		}
		if err := flush(); err != nil {
			return fmt.Errorf("cache invalidate %s: %w", prefix, err)
		}
	}
	return nil
}
