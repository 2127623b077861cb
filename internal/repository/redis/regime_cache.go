package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chronos/internal/domain/regime"
	"chronos/internal/metrics"
	"chronos/pkg/errors"
)

// RegimeCache implements regime.SnapshotCache using Redis. Other processes
// read the latest per-symbol regime here to gate their strategies.
type RegimeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRegimeCache creates a new regime snapshot cache
func NewRegimeCache(client *redis.Client, ttl time.Duration) *RegimeCache {
	return &RegimeCache{
		client: client,
		ttl:    ttl,
	}
}

// SetSnapshot stores the snapshot with the configured TTL
func (c *RegimeCache) SetSnapshot(ctx context.Context, snapshot regime.Snapshot) error {
	key := c.getKey(snapshot.Symbol)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal regime snapshot: symbol=%s", snapshot.Symbol)
	}

	start := time.Now()
	err = c.client.Set(ctx, key, data, c.ttl).Err()
	metrics.RecordDBQuery("redis", "set_snapshot", time.Since(start), err)
	if err != nil {
		return errors.Wrapf(err, "failed to save regime snapshot to redis: symbol=%s", snapshot.Symbol)
	}

	return nil
}

// GetSnapshot retrieves the snapshot for a symbol
func (c *RegimeCache) GetSnapshot(ctx context.Context, symbol string) (*regime.Snapshot, error) {
	key := c.getKey(symbol)

	start := time.Now()
	data, err := c.client.Get(ctx, key).Result()
	metrics.RecordDBQuery("redis", "get_snapshot", time.Since(start), err)
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "regime snapshot not found: symbol=%s", symbol)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get regime snapshot from redis: symbol=%s", symbol)
	}

	var snapshot regime.Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal regime snapshot: symbol=%s", symbol)
	}

	return &snapshot, nil
}

// DeleteSnapshot removes the snapshot for a symbol
func (c *RegimeCache) DeleteSnapshot(ctx context.Context, symbol string) error {
	if err := c.client.Del(ctx, c.getKey(symbol)).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete regime snapshot: symbol=%s", symbol)
	}
	return nil
}

func (c *RegimeCache) getKey(symbol string) string {
	return fmt.Sprintf("regime:snapshot:%s", symbol)
}
