package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Cache holds rate snapshots. Save never reads before writing: the newest
// saved snapshot simply wins.
type Cache interface {
	// Latest returns the most recently saved snapshot, or nil if none exists.
	Latest(ctx context.Context) (*models.RateSnapshot, error)
	Save(ctx context.Context, snap *models.RateSnapshot) error
}

// StoreCache keeps snapshots in the rate_cache collection. Each refresh adds a
// document; older ones are retained.
type StoreCache struct {
	snapshots *db.Collection[models.RateSnapshot]
}

// NewStoreCache returns a cache over store's rate_cache collection.
func NewStoreCache(store db.Store) *StoreCache {
	return &StoreCache{snapshots: db.NewCollection[models.RateSnapshot](store, db.CollectionRateCache)}
}

func (c *StoreCache) Latest(ctx context.Context) (*models.RateSnapshot, error) {
	page, err := c.snapshots.Page(ctx, db.Query{
		Sort: db.Sort{Field: models.RateSnapshotFieldFetchedAt, Desc: true},
	}, 1, "")
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return &page.Items[0], nil
}

func (c *StoreCache) Save(ctx context.Context, snap *models.RateSnapshot) error {
	_, err := c.snapshots.Create(ctx, *snap)
	return err
}

// LatestKey is the Redis key holding the newest snapshot.
const LatestKey = "rates:latest"

// RedisCache keeps the newest snapshot under a single key with no expiry so a
// stale value remains available when the source is down.
type RedisCache struct {
	client redis.Cmdable
	key    string
}

// NewRedisCache returns a cache stored under LatestKey.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client, key: LatestKey}
}

func (c *RedisCache) Latest(ctx context.Context) (*models.RateSnapshot, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	var snap models.RateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snap, nil
}

func (c *RedisCache) Save(ctx context.Context, snap *models.RateSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, 0).Err()
}
