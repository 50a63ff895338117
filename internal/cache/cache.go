// Package cache is the advisory Redis cache in front of feed and post reads.
//
// Every method degrades instead of failing: a connectivity error on read is a
// miss, on write the value is dropped. Callers never see a cache error.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/vizionai/vizion/internal/engine"
	"github.com/vizionai/vizion/internal/logging"
)

const (
	DefaultTTL = 60 * time.Second
	PostTTL    = time.Hour

	defaultTimeout = 5 * time.Second
	loadTimeout    = 30 * time.Second
	scanBatch      = 100
)

// Recorder receives lookup outcomes; result is "hit", "miss" or "error".
type Recorder interface {
	CacheLookup(feed, result string)
}

// TTL returns the expiry for a feed type.
func TTL(ft engine.FeedType) time.Duration {
	switch ft {
	case engine.FeedRecent:
		return 60 * time.Second
	case engine.FeedFollowing:
		return 120 * time.Second
	case engine.FeedTrending:
		return 300 * time.Second
	case engine.FeedTop:
		return 600 * time.Second
	case engine.FeedHot, engine.FeedRising:
		return DefaultTTL
	default:
		return DefaultTTL
	}
}

// FeedKey is the key for one page of a feed.
func FeedKey(ft engine.FeedType, suffix string) string {
	return fmt.Sprintf("feed:%s:%s", ft, suffix)
}

// PostKey is the key for a single post.
func PostKey(id string) string { return "post:" + id }

// FeedPattern matches every cached feed page.
const FeedPattern = "feed:*"

// Cache wraps a Redis client. A nil client makes every call a no-op.
type Cache struct {
	rdb     *goredis.Client
	log     logging.Logger
	Metrics Recorder

	group singleflight.Group
}

// New wraps an existing client. rdb may be nil.
func New(rdb *goredis.Client, log logging.Logger) *Cache {
	if log == nil {
		log = logging.Discard()
	}
	return &Cache{rdb: rdb, log: log}
}

// Open connects to redisURL. An empty URL returns a disabled cache; an
// unreachable server is logged and also returns a disabled cache.
func Open(ctx context.Context, redisURL string, log logging.Logger) *Cache {
	c := New(nil, log)
	if redisURL == "" {
		c.log.Info("redis not configured, feed cache disabled")
		return c
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		c.log.WithError(err).Warn("invalid REDIS_URL, feed cache disabled")
		return c
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultTimeout
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		c.log.WithError(err).Warn("redis unreachable, feed cache disabled")
		return c
	}
	c.rdb = rdb
	c.log.WithField("addr", opts.Addr).Info("connected to redis")
	return c
}

// Enabled reports whether a Redis client is attached.
func (c *Cache) Enabled() bool { return c.rdb != nil }

// Close releases the client.
func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Get returns a cached feed page.
func (c *Cache) Get(ctx context.Context, ft engine.FeedType, suffix string) ([]byte, bool) {
	return c.get(ctx, ft.String(), FeedKey(ft, suffix))
}

// Set stores a feed page. A zero ttl uses TTL(ft).
func (c *Cache) Set(ctx context.Context, ft engine.FeedType, suffix string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = TTL(ft)
	}
	c.set(ctx, FeedKey(ft, suffix), data, ttl)
}

func (c *Cache) GetPost(ctx context.Context, id string) ([]byte, bool) {
	return c.get(ctx, "post", PostKey(id))
}

func (c *Cache) SetPost(ctx context.Context, id string, data []byte) {
	c.set(ctx, PostKey(id), data, PostTTL)
}

// Fetch returns the cached feed page or calls load once per key across
// concurrent callers and caches its result. Load errors are returned and
// never cached. The load runs detached from any single caller; a caller
// whose ctx ends stops waiting without affecting the others.
func (c *Cache) Fetch(ctx context.Context, ft engine.FeedType, suffix string, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok := c.Get(ctx, ft, suffix); ok {
		return data, nil
	}
	key := FeedKey(ft, suffix)
	ch := c.group.DoChan(key, func() (any, error) {
		// Shared by every waiter, so one caller leaving must not cancel it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		data, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, ft, suffix, data, 0)
		return data, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate deletes every key matching pattern using SCAN, never KEYS.
func (c *Cache) Invalidate(ctx context.Context, pattern string) {
	if c.rdb == nil {
		return
	}
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			c.log.WithError(err).WithField("pattern", pattern).Warn("cache invalidate scan failed")
			return
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				c.log.WithError(err).WithField("pattern", pattern).Warn("cache invalidate delete failed")
				return
			}
			deleted += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	c.log.WithFields(logging.Fields{"pattern": pattern, "deleted": deleted}).Debug("cache invalidated")
}

// InvalidateFeeds drops every cached feed page.
func (c *Cache) InvalidateFeeds(ctx context.Context) { c.Invalidate(ctx, FeedPattern) }

// InvalidatePost drops one post and every feed page.
func (c *Cache) InvalidatePost(ctx context.Context, id string) {
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, PostKey(id)).Err(); err != nil {
			c.log.WithError(err).WithField("post_id", id).Warn("cache post delete failed")
		}
	}
	c.InvalidateFeeds(ctx)
}

func (c *Cache) get(ctx context.Context, label, key string) ([]byte, bool) {
	if c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		c.record(label, "miss")
		return nil, false
	case err != nil:
		c.log.WithError(err).WithField("key", key).Warn("cache read failed")
		c.record(label, "error")
		return nil, false
	}
	c.record(label, "hit")
	return data, true
}

func (c *Cache) set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

func (c *Cache) record(label, result string) {
	if c.Metrics != nil {
		c.Metrics.CacheLookup(label, result)
	}
}
