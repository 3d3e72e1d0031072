// Package cache keeps rendered league views (standings, rosters) in Redis
// between simulated days. A nil *Cache is valid and caches nothing.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 10 * time.Minute

type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

// Connect dials url. An empty url returns a nil cache.
func Connect(ctx context.Context, url, leagueID string, logger *slog.Logger) (*Cache, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, leagueID, DefaultTTL, logger), nil
}

func New(rdb *redis.Client, leagueID string, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, prefix: "leaguesim:" + leagueID + ":", ttl: ttl, log: logger}
}

// Key builds a namespaced key from parts.
func (c *Cache) Key(parts ...any) string {
	b := strings.Builder{}
	if c != nil {
		b.WriteString(c.prefix)
	}
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// GetJSON decodes key into dst and reports a hit. Errors count as misses.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	if c == nil {
		return false
	}
	body, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warn("cache get", "key", key, "err", err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		c.log.Warn("cache decode", "key", key, "err", err)
		return false
	}
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache encode", "key", key, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil {
		c.log.Warn("cache set", "key", key, "err", err)
	}
}

// Flush drops every key of this league.
func (c *Cache) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	var keys []string
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache scan", "err", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache flush", "err", err)
	}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
