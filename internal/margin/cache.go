package margin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Aidin1998/marginx_unified/internal/margin/model"
)

const (
	paramCacheKeyPrefix = "marginx:paramset:"
	paramCacheTTL       = 10 * time.Minute
)

// CachedParameterStore is a read-through redis cache in front of a
// ParameterStore. Parameter sets are immutable once active, so a short TTL
// only bounds staleness of activation changes.
type CachedParameterStore struct {
	ParameterStore

	logger *zap.Logger
	client *redis.Client
}

// NewCachedParameterStore wraps the store with a redis cache.
func NewCachedParameterStore(logger *zap.Logger, client *redis.Client, store ParameterStore) *CachedParameterStore {
	return &CachedParameterStore{ParameterStore: store, logger: logger, client: client}
}

func (c *CachedParameterStore) GetByID(ctx context.Context, id uuid.UUID) (*model.ParameterSet, error) {
	key := paramCacheKeyPrefix + id.String()
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var set model.ParameterSet
		if err := json.Unmarshal(raw, &set); err == nil {
			return &set, nil
		}
	}

	set, err := c.ParameterStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, set)
	return set, nil
}

// ActiveForDate is cached per calendar day.
func (c *CachedParameterStore) ActiveForDate(ctx context.Context, date time.Time) (*model.ParameterSet, error) {
	key := paramCacheKeyPrefix + "active:" + date.Format("2006-01-02")
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var set model.ParameterSet
		if err := json.Unmarshal(raw, &set); err == nil {
			return &set, nil
		}
	}

	set, err := c.ParameterStore.ActiveForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, set)
	return set, nil
}

func (c *CachedParameterStore) put(ctx context.Context, key string, set *model.ParameterSet) {
	raw, err := json.Marshal(set)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, paramCacheTTL).Err(); err != nil {
		c.logger.Warn("parameter set cache write failed", zap.Error(err))
	}
}
