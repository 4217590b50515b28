package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban-sync/domain"
)

type backend interface {
	Load(ctx context.Context, boardID string) (domain.Snapshot, bool, error)
	Save(ctx context.Context, boardID string, s domain.Snapshot) error
}

// Cache wraps a slower backend (sqlite, Azure Tables) with a Redis copy of
// the latest snapshot.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Load(ctx context.Context, boardID string) (domain.Snapshot, bool, error) {
	if s, ok := c.loadFromCache(ctx, boardID); ok {
		return s, true, nil
	}
	s, ok, err := c.base.Load(ctx, boardID)
	if err != nil || !ok {
		return s, ok, err
	}
	c.store(ctx, boardID, s)
	return s, true, nil
}

func (c *Cache) Save(ctx context.Context, boardID string, s domain.Snapshot) error {
	if err := c.base.Save(ctx, boardID, s); err != nil {
		c.evict(ctx, boardID)
		return err
	}
	c.store(ctx, boardID, s)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, boardID string) (domain.Snapshot, bool) {
	if c.redis == nil {
		return domain.Snapshot{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		}
		return domain.Snapshot{}, false
	}
	var s domain.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		return domain.Snapshot{}, false
	}
	return s, true
}

func (c *Cache) store(ctx context.Context, boardID string, s domain.Snapshot) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(boardID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
}

func boardCacheKey(boardID string) string {
	return "board-cache:" + boardID
}
