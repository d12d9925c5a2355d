package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"organizer/domain"
)

const (
	snapshotVersionKey = "organizer:snapshot:version"
	snapshotKeyPrefix  = "organizer:snapshot:"
)

// Cache wraps a Store with a Redis-backed copy of the full snapshot. Every
// write bumps a shared version counter, so a snapshot filled concurrently
// with a write lands under a stale key and is never served.
type Cache struct {
	domain.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Store wrapper using the provided Redis client and TTL.
func NewCache(base domain.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Store: base, redis: client, ttl: ttl}
}

func (c *Cache) FindAll(ctx context.Context) (domain.Snapshot, error) {
	version, ok := c.version(ctx)
	if ok {
		if snap, hit := c.load(ctx, version); hit {
			return snap, nil
		}
	}

	snap, err := c.Store.FindAll(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if ok {
		c.store(ctx, version, snap)
	}
	return snap, nil
}

func (c *Cache) CreateItem(ctx context.Context, it domain.Item) (domain.Item, error) {
	out, err := c.Store.CreateItem(ctx, it)
	c.evict(ctx, err)
	return out, err
}

func (c *Cache) CreateFolder(ctx context.Context, f domain.Folder) (domain.Folder, error) {
	out, err := c.Store.CreateFolder(ctx, f)
	c.evict(ctx, err)
	return out, err
}

func (c *Cache) UpdateItemFields(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	out, err := c.Store.UpdateItemFields(ctx, id, patch)
	c.evict(ctx, err)
	return out, err
}

func (c *Cache) UpdateFolderFields(ctx context.Context, id string, patch domain.FolderPatch) (domain.Folder, error) {
	out, err := c.Store.UpdateFolderFields(ctx, id, patch)
	c.evict(ctx, err)
	return out, err
}

func (c *Cache) DeleteItem(ctx context.Context, id string) error {
	err := c.Store.DeleteItem(ctx, id)
	c.evict(ctx, err)
	return err
}

func (c *Cache) DeleteFolder(ctx context.Context, id string) error {
	err := c.Store.DeleteFolder(ctx, id)
	c.evict(ctx, err)
	return err
}

// DeleteByContainer evicts even on failure since some rows may be gone.
func (c *Cache) DeleteByContainer(ctx context.Context, ct domain.Container) error {
	err := c.Store.DeleteByContainer(ctx, ct)
	c.evict(ctx, nil)
	return err
}

// PlaceItem always evicts; a failed batch may still have landed some writes.
func (c *Cache) PlaceItem(ctx context.Context, p domain.ItemPlacement, at time.Time) error {
	err := c.Store.PlaceItem(ctx, p, at)
	c.evict(ctx, nil)
	return err
}

func (c *Cache) PlaceFolder(ctx context.Context, p domain.FolderPlacement, at time.Time) error {
	err := c.Store.PlaceFolder(ctx, p, at)
	c.evict(ctx, nil)
	return err
}

func (c *Cache) version(ctx context.Context) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	v, err := c.redis.Get(ctx, snapshotVersionKey).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		log.WithError(err).Debug("snapshot cache unavailable")
		return 0, false
	}
	return v, true
}

func (c *Cache) load(ctx context.Context, version int64) (domain.Snapshot, bool) {
	key := snapshotKey(version)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return domain.Snapshot{}, false
	}
	var snap domain.Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return domain.Snapshot{}, false
	}
	return snap, true
}

func (c *Cache) store(ctx context.Context, version int64, snap domain.Snapshot) {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, snapshotKey(version), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, err error) {
	if err != nil || c.redis == nil {
		return
	}
	if err := c.redis.Incr(ctx, snapshotVersionKey).Err(); err != nil {
		log.WithError(err).Warn("unable to invalidate snapshot cache")
	}
}

func snapshotKey(version int64) string {
	return snapshotKeyPrefix + strconv.FormatInt(version, 10)
}
