package cache

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Puts      int64         `json:"puts"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Entries   int           `json:"entries"`
	HitRate   float64       `json:"hit_rate"`
	Healthy   bool          `json:"healthy"`
	Uptime    time.Duration `json:"uptime_ns"`
	Backend   string        `json:"backend"`
}

// healthyHitRate is the hit rate below which the cache reports itself
// degraded. Below this the fetch path is doing most of the work anyway.
const healthyHitRate = 0.8

// counters accumulates cache activity with atomics so the hot path
// never takes a lock for accounting.
type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	puts      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
	started   time.Time
}

func (c *counters) snapshot(backend string, entries int) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	s := Stats{
		Hits:      hits,
		Misses:    misses,
		Puts:      c.puts.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.evictions.Load(),
		Entries:   entries,
		Backend:   backend,
		Healthy:   true,
	}
	if !c.started.IsZero() {
		s.Uptime = time.Since(c.started)
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
		s.Healthy = s.HitRate >= healthyHitRate
	}
	return s
}
