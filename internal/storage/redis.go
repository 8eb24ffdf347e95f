package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qiuqing005/maoxian/internal/config"
	"github.com/qiuqing005/maoxian/internal/models"
)

const indexKeyPrefix = "adventure:index:"

// SummaryCache is an optional Redis layer in front of the store for
// per-owner index documents. It is purely an accelerator: a miss or a
// cache error falls through to the store.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryCache(cfg config.RedisConfig, ttl time.Duration) (*SummaryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &SummaryCache{client: client, ttl: ttl}, nil
}

func (c *SummaryCache) Close() error {
	return c.client.Close()
}

// GetIndex returns the cached index for an owner, or ErrNotFound on a miss.
func (c *SummaryCache) GetIndex(ctx context.Context, ownerID string) (*models.UserIndex, error) {
	payload, err := c.client.Get(ctx, indexKeyPrefix+ownerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var idx models.UserIndex
	if err := json.Unmarshal([]byte(payload), &idx); err != nil {
		// A stale or mangled cache entry is dropped, not surfaced.
		_ = c.client.Del(ctx, indexKeyPrefix+ownerID).Err()
		return nil, ErrNotFound
	}
	if err := idx.Validate(); err != nil {
		_ = c.client.Del(ctx, indexKeyPrefix+ownerID).Err()
		return nil, ErrNotFound
	}

	return &idx, nil
}

// SetIndex caches an owner's index with the configured TTL.
func (c *SummaryCache) SetIndex(ctx context.Context, idx *models.UserIndex) error {
	if idx == nil || idx.OwnerID == "" {
		return fmt.Errorf("user index requires an owner id")
	}
	payload, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal user index: %w", err)
	}
	return c.client.Set(ctx, indexKeyPrefix+idx.OwnerID, payload, c.ttl).Err()
}

// Invalidate drops the cached index for the given owners.
func (c *SummaryCache) Invalidate(ctx context.Context, ownerIDs ...string) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	keys := make([]string, len(ownerIDs))
	for i, id := range ownerIDs {
		keys[i] = indexKeyPrefix + id
	}
	return c.client.Del(ctx, keys...).Err()
}
