package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
)

const statsKeyPrefix = "soko:course-stats:"

// NewRedisClient connects to the configured Redis server.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// StatsCache caches course.Stats as JSON values that expire after ttl.
// Redis failures are logged and treated as cache misses.
type StatsCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger core.Logger
}

var _ course.StatsCache = (*StatsCache)(nil)

func NewStatsCache(client redis.Cmdable, ttl time.Duration, logger core.Logger) *StatsCache {
	return &StatsCache{client: client, ttl: ttl, logger: logger}
}

func statsKey(courseID string) string {
	return statsKeyPrefix + courseID
}

func (c *StatsCache) GetStats(ctx context.Context, courseID string) (course.Stats, bool) {
	data, err := c.client.Get(ctx, statsKey(courseID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("reading course stats from cache", err)
		}
		return course.Stats{}, false
	}

	var stats course.Stats
	if err = json.Unmarshal(data, &stats); err != nil {
		c.logger.Warn("decoding cached course stats", err)
		return course.Stats{}, false
	}
	return stats, true
}

func (c *StatsCache) SetStats(ctx context.Context, courseID string, stats course.Stats) {
	data, err := json.Marshal(stats)
	if err != nil {
		c.logger.Warn("encoding course stats", err)
		return
	}
	if err = c.client.Set(ctx, statsKey(courseID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("caching course stats", err)
	}
}

func (c *StatsCache) InvalidateStats(ctx context.Context, courseIDs ...string) {
	if len(courseIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		keys = append(keys, statsKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("invalidating cached course stats", err)
	}
}

// InvalidateAllStats drops the cached stats of every course.
func (c *StatsCache) InvalidateAllStats(ctx context.Context) {
	var keys []string
	iter := c.client.Scan(ctx, 0, statsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("listing cached course stats", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("invalidating cached course stats", err)
	}
}
