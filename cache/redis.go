package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"basketflow/config"
	"basketflow/internal/instrumentation"
	"basketflow/logger"
	"basketflow/models"
)

const redisKeyPrefix = "basketflow:quote:"

// RedisCache stores quotes in Redis so multiple service instances share
// one cache. TTLs are enforced by Redis itself; there is no sweep loop.
type RedisCache struct {
	client   *redis.Client
	counters counters
	metrics  *instrumentation.Metrics
	log      *logger.Entry
}

func NewRedisCache(cfg config.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	return &RedisCache{
		client:  redis.NewClient(opts),
		metrics: instrumentation.Default(),
		log:     logger.GetLogger().WithComponent("cache").WithFields(logger.Fields{"backend": "redis"}),
	}, nil
}

func (c *RedisCache) Get(ctx context.Context, instrumentID string) (models.Quote, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+instrumentID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).WithFields(logger.Fields{"instrument_id": instrumentID}).Warn("redis get failed")
		}
		c.counters.misses.Add(1)
		c.metrics.RecordCacheOp("miss")
		return models.Quote{}, false
	}

	var quote models.Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		c.log.WithError(err).WithFields(logger.Fields{"instrument_id": instrumentID}).Warn("corrupt cache entry dropped")
		c.client.Del(ctx, redisKeyPrefix+instrumentID)
		c.counters.misses.Add(1)
		c.metrics.RecordCacheOp("miss")
		return models.Quote{}, false
	}

	c.counters.hits.Add(1)
	c.metrics.RecordCacheOp("hit")
	return quote, true
}

func (c *RedisCache) Put(ctx context.Context, instrumentID string, quote models.Quote, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(quote)
	if err != nil {
		c.log.WithError(err).WithFields(logger.Fields{"instrument_id": instrumentID}).Error("marshal quote for cache")
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+instrumentID, data, ttl).Err(); err != nil {
		c.log.WithError(err).WithFields(logger.Fields{"instrument_id": instrumentID}).Warn("redis set failed")
		return
	}
	c.counters.puts.Add(1)
	c.metrics.RecordCacheOp("put")
}

func (c *RedisCache) Delete(ctx context.Context, instrumentID string) {
	if err := c.client.Del(ctx, redisKeyPrefix+instrumentID).Err(); err != nil {
		c.log.WithError(err).WithFields(logger.Fields{"instrument_id": instrumentID}).Warn("redis delete failed")
	}
	c.counters.deletes.Add(1)
	c.metrics.RecordCacheOp("delete")
}

func (c *RedisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	removed := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err == nil {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).Warn("redis clear scan failed")
	}
	c.log.WithFields(logger.Fields{"entries": removed}).Info("cache cleared")
}

func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entries := 0
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		entries++
	}

	stats := c.counters.snapshot("redis", entries)
	if err := c.client.Ping(ctx).Err(); err != nil {
		stats.Healthy = false
	}
	return stats
}

// Start verifies the connection; Redis handles expiry on its own.
func (c *RedisCache) Start(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	c.counters.started = time.Now()
	c.log.Info("redis cache started")
	return nil
}

func (c *RedisCache) Stop() {
	if err := c.client.Close(); err != nil {
		c.log.WithError(err).Warn("redis close failed")
	}
	c.log.Info("redis cache stopped")
}
