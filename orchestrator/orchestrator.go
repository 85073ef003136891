package orchestrator

import (
	"context"
	"sync"
	"time"

	"basketflow/cache"
	"basketflow/config"
	"basketflow/internal/instrumentation"
	"basketflow/logger"
	"basketflow/models"
	"basketflow/proxy"
	"basketflow/quality"
)

// Orchestrator is the single entry point for market data. It resolves a
// quote through the cache first, then walks the registered sources in
// order until one delivers, scoring every fetched quote before it is
// cached or returned.
//
// The source registry is fixed at construction; registration order is
// fallback order.
type Orchestrator struct {
	proxies []proxy.DataSourceProxy
	byName  map[string]proxy.DataSourceProxy

	cache   cache.QuoteCache
	ttl     cache.TTLPolicy
	quality *quality.Engine

	batchConcurrency int
	batchTimeout     time.Duration

	metrics *instrumentation.Metrics
	log     *logger.Entry
}

// New builds the orchestrator over an ordered source registry.
func New(proxies []proxy.DataSourceProxy, qc cache.QuoteCache, ttl cache.TTLPolicy, engine *quality.Engine, cfg config.OrchestratorConfig) *Orchestrator {
	byName := make(map[string]proxy.DataSourceProxy, len(proxies))
	for _, p := range proxies {
		byName[p.Name()] = p
	}

	concurrency := cfg.BatchConcurrency
	if concurrency < 1 {
		concurrency = 10
	}
	timeout := cfg.BatchTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &Orchestrator{
		proxies:          proxies,
		byName:           byName,
		cache:            qc,
		ttl:              ttl,
		quality:          engine,
		batchConcurrency: concurrency,
		batchTimeout:     timeout,
		metrics:          instrumentation.Default(),
		log:              logger.GetLogger().WithComponent("orchestrator"),
	}
}

// Sources returns the registered source names in fallback order.
func (o *Orchestrator) Sources() []string {
	names := make([]string, len(o.proxies))
	for i, p := range o.proxies {
		names[i] = p.Name()
	}
	return names
}

// IsSourceAvailable reports whether the named source is registered and
// currently admitting calls.
func (o *Orchestrator) IsSourceAvailable(name string) bool {
	p, ok := o.byName[name]
	return ok && p.IsAvailable()
}

// GetMarketData resolves one quote: cache first, then the preferred
// source if named and available, then the remaining sources in
// registration order. A fetched quote is scored and cached whether or
// not it validated cleanly; invalid data flagged is better than no data.
func (o *Orchestrator) GetMarketData(ctx context.Context, instrumentID, preferredSource string) (models.Quote, error) {
	if quote, ok := o.cache.Get(ctx, instrumentID); ok {
		return quote, nil
	}

	for _, p := range o.candidates(preferredSource) {
		if !p.IsAvailable() {
			o.log.WithFields(logger.Fields{
				"instrument_id": instrumentID,
				"source":        p.Name(),
			}).Debug("skipping unavailable source")
			continue
		}

		quote, err := p.FetchOne(ctx, instrumentID)
		if err != nil {
			if !proxy.IsRetryable(err) {
				return models.Quote{}, err
			}
			o.log.WithError(err).WithFields(logger.Fields{
				"instrument_id": instrumentID,
				"source":        p.Name(),
			}).Warn("source failed, falling back")
			continue
		}

		report := o.quality.Validate(quote)
		quote = quality.Apply(quote, report)
		o.cache.Put(ctx, instrumentID, quote, o.ttl.TTLFor(quote.QualityTier))
		logger.IncrementSourceFetch(1)
		return quote, nil
	}

	o.log.WithFields(logger.Fields{"instrument_id": instrumentID}).Error("all sources exhausted")
	return models.Quote{}, proxy.ErrNoSourceAvailable
}

// candidates orders the registry for one resolution: the preferred
// source first when it is registered, then everything else in
// registration order.
func (o *Orchestrator) candidates(preferredSource string) []proxy.DataSourceProxy {
	preferred, hasPreferred := o.byName[preferredSource]
	if !hasPreferred {
		return o.proxies
	}
	ordered := make([]proxy.DataSourceProxy, 0, len(o.proxies))
	ordered = append(ordered, preferred)
	for _, p := range o.proxies {
		if p.Name() != preferredSource {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// GetBatchMarketData resolves many instruments concurrently under one
// deadline. Instruments that cannot be resolved are absent from the
// result rather than failing the batch.
func (o *Orchestrator) GetBatchMarketData(ctx context.Context, instrumentIDs []string, preferredSource string) map[string]models.Quote {
	batchCtx, cancel := context.WithTimeout(ctx, o.batchTimeout)
	defer cancel()

	o.metrics.BatchSize.Observe(float64(len(instrumentIDs)))

	results := make(map[string]models.Quote, len(instrumentIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.batchConcurrency)

	for _, id := range instrumentIDs {
		select {
		case <-batchCtx.Done():
			o.log.WithFields(logger.Fields{"pending": id}).Warn("batch deadline reached, remaining instruments skipped")
			wg.Wait()
			return results
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			quote, err := o.GetMarketData(batchCtx, id, preferredSource)
			if err != nil {
				o.log.WithError(err).WithFields(logger.Fields{"instrument_id": id}).Debug("batch instrument unresolved")
				return
			}
			mu.Lock()
			results[id] = quote
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}

// GetAllSourceHealth probes every registered source.
func (o *Orchestrator) GetAllSourceHealth(ctx context.Context) []models.SourceHealth {
	health := make([]models.SourceHealth, len(o.proxies))
	var wg sync.WaitGroup
	for i, p := range o.proxies {
		wg.Add(1)
		go func(i int, p proxy.DataSourceProxy) {
			defer wg.Done()
			health[i] = p.HealthStatus(ctx)
		}(i, p)
	}
	wg.Wait()
	return health
}

// GetAllSourceMetrics snapshots every source's request counters.
func (o *Orchestrator) GetAllSourceMetrics() []models.SourceMetrics {
	metrics := make([]models.SourceMetrics, len(o.proxies))
	for i, p := range o.proxies {
		metrics[i] = p.Metrics()
	}
	return metrics
}

// InvalidateCache drops one instrument from the cache.
func (o *Orchestrator) InvalidateCache(ctx context.Context, instrumentID string) {
	o.cache.Delete(ctx, instrumentID)
}

// ClearCache drops every cached quote.
func (o *Orchestrator) ClearCache(ctx context.Context) {
	o.cache.Clear(ctx)
}

// CacheStats exposes the cache counters for the operations API.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.cache.Stats()
}
