package cache

import (
	"context"
	"sync"
	"time"

	"basketflow/config"
	"basketflow/internal/instrumentation"
	"basketflow/logger"
	"basketflow/models"
)

type memoryEntry struct {
	quote     models.Quote
	expiresAt time.Time
}

// MemoryCache is the default in-process cache. Expired entries are
// dropped lazily on Get and reclaimed in bulk by a periodic sweep so
// entries nobody reads again do not pile up.
type MemoryCache struct {
	sweepInterval time.Duration

	mu      sync.RWMutex
	entries map[string]memoryEntry

	counters counters
	metrics  *instrumentation.Metrics
	log      *logger.Entry

	lifecycle sync.Mutex
	running   bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

func NewMemoryCache(cfg config.CacheConfig) *MemoryCache {
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = 30 * time.Second
	}
	return &MemoryCache{
		sweepInterval: sweep,
		entries:       make(map[string]memoryEntry),
		metrics:       instrumentation.Default(),
		log:           logger.GetLogger().WithComponent("cache").WithFields(logger.Fields{"backend": "memory"}),
	}
}

func (c *MemoryCache) Get(_ context.Context, instrumentID string) (models.Quote, bool) {
	c.mu.RLock()
	entry, ok := c.entries[instrumentID]
	c.mu.RUnlock()

	if !ok {
		c.counters.misses.Add(1)
		c.metrics.RecordCacheOp("miss")
		return models.Quote{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a Put may have refreshed it.
		if cur, still := c.entries[instrumentID]; still && time.Now().After(cur.expiresAt) {
			delete(c.entries, instrumentID)
			c.counters.evictions.Add(1)
			c.metrics.RecordCacheOp("eviction")
		}
		c.mu.Unlock()
		c.counters.misses.Add(1)
		c.metrics.RecordCacheOp("miss")
		return models.Quote{}, false
	}

	c.counters.hits.Add(1)
	c.metrics.RecordCacheOp("hit")
	return entry.quote, true
}

func (c *MemoryCache) Put(_ context.Context, instrumentID string, quote models.Quote, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[instrumentID] = memoryEntry{
		quote:     quote,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()

	c.counters.puts.Add(1)
	c.metrics.RecordCacheOp("put")
}

func (c *MemoryCache) Delete(_ context.Context, instrumentID string) {
	c.mu.Lock()
	delete(c.entries, instrumentID)
	c.mu.Unlock()
	c.counters.deletes.Add(1)
	c.metrics.RecordCacheOp("delete")
}

func (c *MemoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	c.log.WithFields(logger.Fields{"entries": n}).Info("cache cleared")
}

func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()
	return c.counters.snapshot("memory", entries)
}

// Start launches the background sweep loop.
func (c *MemoryCache) Start(_ context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	c.counters.started = time.Now()
	c.stop = make(chan struct{})

	c.wg.Add(1)
	go c.sweepLoop()

	c.log.WithFields(logger.Fields{"sweep_interval": c.sweepInterval.String()}).Info("memory cache started")
	return nil
}

func (c *MemoryCache) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stop)
	c.wg.Wait()
	c.log.Info("memory cache stopped")
}

func (c *MemoryCache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes every expired entry in one pass.
func (c *MemoryCache) sweep() {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.counters.evictions.Add(int64(removed))
		for i := 0; i < removed; i++ {
			c.metrics.RecordCacheOp("eviction")
		}
		c.log.WithFields(logger.Fields{
			"removed":   removed,
			"remaining": remaining,
		}).Debug("cache sweep completed")
	}
}
