package proxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"basketflow/config"
	"basketflow/internal/instrumentation"
	"basketflow/logger"
	"basketflow/models"
	"basketflow/source"
)

// circuit state gauge values published to Prometheus.
var circuitGauge = map[models.CircuitState]float64{
	models.CircuitClosed:   0,
	models.CircuitHalfOpen: 1,
	models.CircuitOpen:     2,
}

// ResilientProxy wraps a DataSource with the per-source resilience
// chain: token bucket -> circuit breaker -> deadline -> bounded retry.
// Every call is accounted in atomic counters so Metrics never blocks a
// fetch in flight.
type ResilientProxy struct {
	src     source.DataSource
	cfg     config.SourceConfig
	limiter *tokenBucket
	breaker *circuitBreaker
	batch   *semaphore.Weighted
	metrics *instrumentation.Metrics
	log     *logger.Entry

	total     atomic.Int64
	success   atomic.Int64
	failure   atomic.Int64
	latencyNs atomic.Int64 // cumulative, successful calls only
	maxNs     atomic.Int64

	mu         sync.RWMutex
	lastHealth models.SourceHealth
}

// NewResilientProxy wraps src with the resilience knobs in cfg.
func NewResilientProxy(src source.DataSource, cfg config.SourceConfig) *ResilientProxy {
	limit := cfg.BatchLimit
	if limit < 1 {
		limit = 1
	}
	return &ResilientProxy{
		src:     src,
		cfg:     cfg,
		limiter: newTokenBucket(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize),
		breaker: newCircuitBreaker(cfg.CircuitBreaker),
		batch:   semaphore.NewWeighted(limit),
		metrics: instrumentation.Default(),
		log:     logger.GetLogger().WithComponent("proxy").WithFields(logger.Fields{"source": src.Name()}),
		lastHealth: models.SourceHealth{
			Source: src.Name(),
			Status: models.StatusUnknown,
		},
	}
}

func (p *ResilientProxy) Name() string { return p.src.Name() }

// FetchOne runs the full resilience chain for one instrument.
func (p *ResilientProxy) FetchOne(ctx context.Context, instrumentID string) (models.Quote, error) {
	if !p.limiter.TryAcquire() {
		p.recordFailure()
		p.metrics.ObserveFetch(p.Name(), "rate_limited", 0)
		return models.Quote{}, ErrRateLimited
	}
	if !p.breaker.Allow() {
		p.recordFailure()
		p.metrics.ObserveFetch(p.Name(), "circuit_open", 0)
		return models.Quote{}, ErrCircuitOpen
	}

	start := time.Now()
	quote, err := p.fetchWithRetry(ctx, instrumentID)
	elapsed := time.Since(start)

	if err != nil {
		p.breaker.RecordFailure()
		p.recordFailure()
		p.metrics.ObserveFetch(p.Name(), "error", elapsed.Seconds())
		p.publishCircuitState()
		p.log.WithError(err).WithFields(logger.Fields{
			"instrument_id": instrumentID,
			"latency_ms":    elapsed.Milliseconds(),
		}).Warn("fetch failed")
		return models.Quote{}, &ProviderError{Source: p.Name(), Err: err}
	}

	p.breaker.RecordSuccess()
	p.recordSuccess(elapsed)
	p.metrics.ObserveFetch(p.Name(), "success", elapsed.Seconds())
	p.publishCircuitState()
	return quote, nil
}

// fetchWithRetry retries transient provider faults with exponential
// backoff. A cancelled context stops the loop immediately.
func (p *ResilientProxy) fetchWithRetry(ctx context.Context, instrumentID string) (models.Quote, error) {
	attempts := p.cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.cfg.Retry.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if p.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		}
		quote, err := p.src.FetchQuote(callCtx, instrumentID)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return quote, nil
		}
		lastErr = err

		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			break
		}
		if attempt == attempts {
			break
		}

		p.log.WithError(err).WithFields(logger.Fields{
			"instrument_id": instrumentID,
			"attempt":       attempt,
			"retry_in":      delay.String(),
		}).Debug("retrying fetch")

		select {
		case <-ctx.Done():
			return models.Quote{}, ctx.Err()
		case <-time.After(delay):
		}

		mult := p.cfg.Retry.BackoffMultiplier
		if mult < 2 {
			mult = 2
		}
		delay *= time.Duration(mult)
		if p.cfg.Retry.MaxDelay > 0 && delay > p.cfg.Retry.MaxDelay {
			delay = p.cfg.Retry.MaxDelay
		}
	}
	return models.Quote{}, lastErr
}

// FetchBatch fans out FetchOne calls bounded by the source's batch
// limit. Per-instrument failures are logged and skipped; the map holds
// only the quotes that resolved.
func (p *ResilientProxy) FetchBatch(ctx context.Context, instrumentIDs []string) (map[string]models.Quote, error) {
	results := make(map[string]models.Quote, len(instrumentIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range instrumentIDs {
		if err := p.batch.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return results, err
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer p.batch.Release(1)

			quote, err := p.FetchOne(ctx, id)
			if err != nil {
				p.log.WithError(err).WithFields(logger.Fields{"instrument_id": id}).Debug("batch item skipped")
				return
			}
			mu.Lock()
			results[id] = quote
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results, nil
}

// IsAvailable is the cheap pre-flight check the orchestrator uses to
// skip a source without burning a rate-limit token.
func (p *ResilientProxy) IsAvailable() bool {
	if p.breaker.State() == models.CircuitOpen {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastHealth.Status != models.StatusUnhealthy
}

// HealthStatus probes the source and classifies it against the breaker
// state: an open breaker is UNHEALTHY regardless of the probe, a
// half-open breaker caps the status at DEGRADED.
func (p *ResilientProxy) HealthStatus(ctx context.Context) models.SourceHealth {
	health := models.SourceHealth{
		Source:    p.Name(),
		CheckedAt: time.Now().UTC(),
	}

	state := p.breaker.State()
	err := p.src.Ping(ctx)
	switch {
	case state == models.CircuitOpen:
		health.Status = models.StatusUnhealthy
		health.Error = ErrCircuitOpen.Error()
	case err != nil:
		health.Status = models.StatusUnhealthy
		health.Error = err.Error()
	case state == models.CircuitHalfOpen:
		health.Status = models.StatusDegraded
	default:
		health.Status = models.StatusHealthy
	}

	p.mu.Lock()
	p.lastHealth = health
	p.mu.Unlock()
	return health
}

// Metrics snapshots the cumulative counters.
func (p *ResilientProxy) Metrics() models.SourceMetrics {
	total := p.total.Load()
	success := p.success.Load()

	m := models.SourceMetrics{
		Source:       p.Name(),
		Total:        total,
		Success:      success,
		Failure:      p.failure.Load(),
		MaxLatency:   time.Duration(p.maxNs.Load()),
		CircuitState: p.breaker.State(),
	}
	if success > 0 {
		m.MeanLatency = time.Duration(p.latencyNs.Load() / success)
	}
	if total > 0 {
		m.SuccessRate = float64(success) / float64(total)
	}
	return m
}

func (p *ResilientProxy) recordSuccess(elapsed time.Duration) {
	p.total.Add(1)
	p.success.Add(1)
	p.latencyNs.Add(elapsed.Nanoseconds())
	for {
		cur := p.maxNs.Load()
		if elapsed.Nanoseconds() <= cur || p.maxNs.CompareAndSwap(cur, elapsed.Nanoseconds()) {
			break
		}
	}
}

func (p *ResilientProxy) recordFailure() {
	p.total.Add(1)
	p.failure.Add(1)
}

func (p *ResilientProxy) publishCircuitState() {
	p.metrics.SetCircuitState(p.Name(), circuitGauge[p.breaker.State()])
}
