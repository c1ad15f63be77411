package imaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	goredis "github.com/redis/go-redis/v9"
)

// Key identifies one rendered response.
type Key struct {
	ImageID   int64
	Width     int
	Height    int
	Thumbnail bool
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%dx%d:%t", k.ImageID, k.Width, k.Height, k.Thumbnail)
}

// Cache stores rendered JPEG bytes.
type Cache interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Set(ctx context.Context, key Key, data []byte) error
	// InvalidateImage drops every rendering of the image.
	InvalidateImage(ctx context.Context, imageID int64) error
}

// LRUCache keeps renders in process, evicting the least recently used.
type LRUCache struct {
	entries *lru.Cache[Key, []byte]
}

var _ Cache = (*LRUCache)(nil)

// NewLRUCache creates an in-process cache holding up to size renders.
func NewLRUCache(size int) (*LRUCache, error) {
	entries, err := lru.New[Key, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}
	return &LRUCache{entries: entries}, nil
}

func (c *LRUCache) Get(_ context.Context, key Key) ([]byte, bool, error) {
	data, ok := c.entries.Get(key)
	return data, ok, nil
}

func (c *LRUCache) Set(_ context.Context, key Key, data []byte) error {
	c.entries.Add(key, data)
	return nil
}

func (c *LRUCache) InvalidateImage(_ context.Context, imageID int64) error {
	for _, key := range c.entries.Keys() {
		if key.ImageID == imageID {
			c.entries.Remove(key)
		}
	}
	return nil
}

// Len reports the number of cached renders.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

const redisKeyPrefix = "annotator:render:"

// RedisCache shares renders between API replicas.
type RedisCache struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache connects to the redis instance at url (redis://...) and
// verifies it answers before returning.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *goredis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(key Key) string {
	return redisKeyPrefix + key.String()
}

func (c *RedisCache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key Key, data []byte) error {
	if err := c.client.Set(ctx, redisKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateImage(ctx context.Context, imageID int64) error {
	pattern := redisKeyPrefix + strconv.FormatInt(imageID, 10) + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
