package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/authgate/pkg/observability"
	"github.com/sirupsen/logrus"
)

const (
	cacheLayerL1    = "l1"
	cacheLayerRedis = "redis"
)

// CacheConfig configures CachedDirectory
type CacheConfig struct {
	// L1Size is the number of records held in process; 0 disables L1
	L1Size int
	// TTL bounds how long a cached record is served
	TTL time.Duration
	// Redis is an optional shared L2; nil disables it
	Redis *redis.Client
	// KeyPrefix namespaces Redis keys
	KeyPrefix string
}

// CachedDirectory decorates a Directory with read-through caching of
// FindByID and FindByEmail. Only hits are cached: a miss on FindByEmail must
// always reach the backing store, otherwise a fresh signup would be invisible.
// FindAll is never cached. Cache failures degrade to the backing store.
type CachedDirectory struct {
	next    Directory
	l1      *expirable.LRU[string, *User]
	redis   *redis.Client
	ttl     time.Duration
	prefix  string
	metrics *observability.Metrics
	logger  *logrus.Logger
}

// NewCachedDirectory wraps next with the configured cache layers
func NewCachedDirectory(next Directory, cfg CacheConfig, metrics *observability.Metrics, logger *logrus.Logger) *CachedDirectory {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "authgate"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &CachedDirectory{
		next:    next,
		redis:   cfg.Redis,
		ttl:     cfg.TTL,
		prefix:  cfg.KeyPrefix,
		metrics: metrics,
		logger:  logger,
	}
	if cfg.L1Size > 0 {
		c.l1 = expirable.NewLRU[string, *User](cfg.L1Size, nil, cfg.TTL)
	}
	return c
}

func (c *CachedDirectory) idKey(id string) string {
	return fmt.Sprintf("%s:user:id:%s", c.prefix, id)
}

func (c *CachedDirectory) emailKey(email string) string {
	return fmt.Sprintf("%s:user:email:%s", c.prefix, email)
}

// FindByEmail returns the record owning email, consulting caches first
func (c *CachedDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	return c.lookup(ctx, c.emailKey(email), func() (*User, error) {
		return c.next.FindByEmail(ctx, email)
	})
}

// FindByID returns the record with the given ID, consulting caches first
func (c *CachedDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	return c.lookup(ctx, c.idKey(id), func() (*User, error) {
		return c.next.FindByID(ctx, id)
	})
}

// FindAll always reads the backing store
func (c *CachedDirectory) FindAll(ctx context.Context) ([]*User, error) {
	return c.next.FindAll(ctx)
}

// Save writes through to the backing store and refreshes both cache keys
func (c *CachedDirectory) Save(ctx context.Context, user *User) (*User, error) {
	if user.ID != "" {
		c.invalidate(ctx, user.ID)
	}

	saved, err := c.next.Save(ctx, user)
	if err != nil {
		return nil, err
	}

	c.store(ctx, saved)
	return saved, nil
}

func (c *CachedDirectory) lookup(ctx context.Context, key string, load func() (*User, error)) (*User, error) {
	if c.l1 != nil {
		u, ok := c.l1.Get(key)
		c.metrics.ObserveCache(cacheLayerL1, ok)
		if ok {
			return u.Clone(), nil
		}
	}

	if c.redis != nil {
		u, err := c.redisGet(ctx, key)
		if err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Redis cache read failed")
		}
		c.metrics.ObserveCache(cacheLayerRedis, u != nil)
		if u != nil {
			if c.l1 != nil {
				c.l1.Add(key, u.Clone())
			}
			return u, nil
		}
	}

	u, err := load()
	if err != nil {
		return nil, err
	}

	c.store(ctx, u)
	return u, nil
}

func (c *CachedDirectory) store(ctx context.Context, u *User) {
	keys := []string{c.idKey(u.ID), c.emailKey(u.Email)}

	if c.l1 != nil {
		for _, k := range keys {
			c.l1.Add(k, u.Clone())
		}
	}

	if c.redis != nil {
		data, err := json.Marshal(u)
		if err != nil {
			return
		}
		pipe := c.redis.TxPipeline()
		for _, k := range keys {
			pipe.Set(ctx, k, data, c.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.WithError(err).WithField("user_id", u.ID).Warn("Redis cache write failed")
		}
	}
}

func (c *CachedDirectory) invalidate(ctx context.Context, id string) {
	idKey := c.idKey(id)
	keys := []string{idKey}

	if c.l1 != nil {
		if old, ok := c.l1.Peek(idKey); ok {
			keys = append(keys, c.emailKey(old.Email))
		}
		for _, k := range keys {
			c.l1.Remove(k)
		}
	}

	if c.redis != nil {
		if old, _ := c.redisGet(ctx, idKey); old != nil {
			keys = append(keys, c.emailKey(old.Email))
		}
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			c.logger.WithError(err).WithField("user_id", id).Warn("Redis cache invalidation failed")
		}
	}
}

func (c *CachedDirectory) redisGet(ctx context.Context, key string) (*User, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		c.redis.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal cached user: %w", err)
	}
	return &u, nil
}
