package cache

import (
	"context"
	"time"

	"basketflow/config"
	"basketflow/models"
)

// QuoteCache is the market data cache contract. Implementations own
// their expiry: a Get after the entry's TTL has elapsed is a miss, never
// stale data.
type QuoteCache interface {
	// Get returns the cached quote for the instrument, if present and
	// not expired.
	Get(ctx context.Context, instrumentID string) (models.Quote, bool)

	// Put stores the quote under the instrument ID with the given TTL.
	Put(ctx context.Context, instrumentID string, quote models.Quote, ttl time.Duration)

	// Delete removes one entry.
	Delete(ctx context.Context, instrumentID string)

	// Clear removes every entry.
	Clear(ctx context.Context)

	// Stats returns a point-in-time snapshot of the cache counters.
	Stats() Stats

	// Start launches background maintenance (expiry sweeps, connection
	// checks). Stop halts it and releases resources.
	Start(ctx context.Context) error
	Stop()
}

// TTLPolicy maps a quote's quality tier to its cache lifetime. Better
// data is trusted for longer.
type TTLPolicy struct {
	high   time.Duration
	medium time.Duration
	low    time.Duration
}

func NewTTLPolicy(cfg config.CacheConfig) TTLPolicy {
	return TTLPolicy{
		high:   cfg.TTLHigh,
		medium: cfg.TTLMedium,
		low:    cfg.TTLLow,
	}
}

// TTLFor returns the lifetime for a quote of the given tier. Unknown
// tiers get the shortest lifetime.
func (p TTLPolicy) TTLFor(tier models.QualityTier) time.Duration {
	switch tier {
	case models.TierHigh:
		return p.high
	case models.TierMedium:
		return p.medium
	default:
		return p.low
	}
}

// New builds the cache backend named in the configuration.
func New(cfg config.CacheConfig) (QuoteCache, error) {
	if cfg.Backend == "redis" {
		return NewRedisCache(cfg)
	}
	return NewMemoryCache(cfg), nil
}
