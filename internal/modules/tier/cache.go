package tier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type cachedRepository struct {
	Repository
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewCachedRepository caches single-tier reads in redis and drops them on update.
// Cache failures are logged and fall through to next.
func NewCachedRepository(next Repository, client *redis.Client, ttl time.Duration, log *zap.Logger) Repository {
	return &cachedRepository{Repository: next, client: client, ttl: ttl, log: log}
}

func (c *cachedRepository) Get(ctx context.Context, id uuid.UUID, rel Relations) (*Tier, error) {
	key := cacheKey(id, rel)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t Tier
		if err := json.Unmarshal(raw, &t); err == nil {
			return &t, nil
		}
		c.log.Warn("discarding corrupt tier cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("tier cache read failed", zap.String("key", key), zap.Error(err))
	}

	t, err := c.Repository.Get(ctx, id, rel)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(t); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn("tier cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return t, nil
}

func (c *cachedRepository) Update(ctx context.Context, t *Tier, w Write) error {
	if err := c.Repository.Update(ctx, t, w); err != nil {
		return err
	}
	c.invalidate(ctx, t.ID)
	return nil
}

func (c *cachedRepository) invalidate(ctx context.Context, id uuid.UUID) {
	keys := make([]string, 0, 4)
	for _, prices := range []bool{false, true} {
		for _, benefits := range []bool{false, true} {
			keys = append(keys, cacheKey(id, Relations{StripePrices: prices, Benefits: benefits}))
		}
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("tier cache invalidation failed", zap.String("tier_id", id.String()), zap.Error(err))
	}
}

func cacheKey(id uuid.UUID, rel Relations) string {
	return fmt.Sprintf("tier:%s:prices=%t:benefits=%t", id, rel.StripePrices, rel.Benefits)
}
