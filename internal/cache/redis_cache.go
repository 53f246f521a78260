package cache

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"

	"floorpos/backend/internal/domain"
)

// RedisSnapshotCache stores snapshots without a TTL: they are last-known
// values, valid until the next event replaces them.
type RedisSnapshotCache struct {
	client *redis.Client
}

func NewRedisSnapshotCache(addr string, password string, db int) *RedisSnapshotCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSnapshotCache{client: client}
}

func (c *RedisSnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSnapshotCache) Close() error {
	return c.client.Close()
}

func lockedOrdersKey(storeID string) string {
	return "floorpos:locked-orders:" + storeID
}

func activeShiftKey(storeID string) string {
	return "floorpos:active-shift:" + storeID
}

func (c *RedisSnapshotCache) SetLockedOrders(ctx context.Context, storeID string, snapshot map[string]string) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, lockedOrdersKey(storeID), payload, 0).Err()
}

func (c *RedisSnapshotCache) GetLockedOrders(ctx context.Context, storeID string) (map[string]string, bool, error) {
	val, err := c.client.Get(ctx, lockedOrdersKey(storeID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snapshot map[string]string
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

func (c *RedisSnapshotCache) SetActiveShift(ctx context.Context, storeID string, shift *domain.Shift) error {
	if shift == nil {
		return c.client.Del(ctx, activeShiftKey(storeID)).Err()
	}
	payload, err := json.Marshal(shift)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, activeShiftKey(storeID), payload, 0).Err()
}

func (c *RedisSnapshotCache) GetActiveShift(ctx context.Context, storeID string) (*domain.Shift, bool, error) {
	val, err := c.client.Get(ctx, activeShiftKey(storeID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var shift domain.Shift
	if err := json.Unmarshal([]byte(val), &shift); err != nil {
		return nil, false, err
	}
	return &shift, true, nil
}
