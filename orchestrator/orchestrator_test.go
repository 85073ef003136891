package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"basketflow/cache"
	"basketflow/config"
	"basketflow/models"
	"basketflow/proxy"
	"basketflow/quality"
)

// fakeProxy is a scriptable DataSourceProxy for orchestrator tests.
type fakeProxy struct {
	name      string
	available bool
	err       error
	calls     atomic.Int64

	mu       sync.Mutex
	inflight int
	maxSeen  int
}

func (f *fakeProxy) Name() string      { return f.name }
func (f *fakeProxy) IsAvailable() bool { return f.available }

func (f *fakeProxy) FetchOne(ctx context.Context, instrumentID string) (models.Quote, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxSeen {
		f.maxSeen = f.inflight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()
	time.Sleep(time.Millisecond)

	if f.err != nil {
		return models.Quote{}, f.err
	}
	return models.Quote{
		InstrumentID: instrumentID,
		LastPrice:    decimal.NewFromFloat(25.0),
		Source:       f.name,
		Timestamp:    time.Now().UTC(),
	}, nil
}

func (f *fakeProxy) FetchBatch(ctx context.Context, ids []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(ids))
	for _, id := range ids {
		if q, err := f.FetchOne(ctx, id); err == nil {
			out[id] = q
		}
	}
	return out, nil
}

func (f *fakeProxy) HealthStatus(ctx context.Context) models.SourceHealth {
	status := models.StatusHealthy
	if !f.available {
		status = models.StatusUnhealthy
	}
	return models.SourceHealth{Source: f.name, Status: status, CheckedAt: time.Now().UTC()}
}

func (f *fakeProxy) Metrics() models.SourceMetrics {
	return models.SourceMetrics{Source: f.name, Total: f.calls.Load()}
}

func newTestOrchestrator(t *testing.T, proxies ...proxy.DataSourceProxy) (*Orchestrator, *cache.MemoryCache) {
	t.Helper()
	cacheCfg := config.CacheConfig{
		TTLHigh:       5 * time.Minute,
		TTLMedium:     2 * time.Minute,
		TTLLow:        time.Minute,
		SweepInterval: time.Minute,
	}
	qc := cache.NewMemoryCache(cacheCfg)
	engine := quality.NewEngine(config.QualityConfig{
		MinPrice:            "0.01",
		MaxPrice:            "1000000.00",
		MaxSpreadPercentage: 50.0,
	})
	o := New(proxies, qc, cache.NewTTLPolicy(cacheCfg), engine, config.OrchestratorConfig{
		BatchConcurrency: 4,
		BatchTimeout:     5 * time.Second,
	})
	return o, qc
}

func TestGetMarketDataCacheHit(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: true}
	o, qc := newTestOrchestrator(t, primary)
	ctx := context.Background()

	first, err := o.GetMarketData(ctx, "AAPL", "")
	if err != nil {
		t.Fatalf("GetMarketData() error = %v", err)
	}
	if first.Source != "BLOOMBERG" {
		t.Fatalf("Source = %q, want BLOOMBERG", first.Source)
	}
	if _, ok := qc.Get(ctx, "AAPL"); !ok {
		t.Fatal("resolved quote was not cached")
	}

	if _, err := o.GetMarketData(ctx, "AAPL", ""); err != nil {
		t.Fatalf("cached GetMarketData() error = %v", err)
	}
	if got := primary.calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, second resolution must hit the cache", got)
	}
}

func TestGetMarketDataFallbackOrder(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: true, err: errors.New("down")}
	secondary := &fakeProxy{name: "SMA_REFINITIV", available: true}
	o, _ := newTestOrchestrator(t, primary, secondary)

	quote, err := o.GetMarketData(context.Background(), "AAPL", "")
	if err != nil {
		t.Fatalf("GetMarketData() error = %v", err)
	}
	if quote.Source != "SMA_REFINITIV" {
		t.Fatalf("Source = %q, want fallback SMA_REFINITIV", quote.Source)
	}
	if primary.calls.Load() != 1 {
		t.Fatal("primary source was not tried first")
	}
}

func TestGetMarketDataPreferredSource(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: true}
	secondary := &fakeProxy{name: "SMA_REFINITIV", available: true}
	o, _ := newTestOrchestrator(t, primary, secondary)

	quote, err := o.GetMarketData(context.Background(), "AAPL", "SMA_REFINITIV")
	if err != nil {
		t.Fatalf("GetMarketData() error = %v", err)
	}
	if quote.Source != "SMA_REFINITIV" {
		t.Fatalf("Source = %q, want preferred SMA_REFINITIV", quote.Source)
	}
	if primary.calls.Load() != 0 {
		t.Fatal("registration-order source called despite available preferred source")
	}
}

func TestGetMarketDataSkipsUnavailable(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: false}
	secondary := &fakeProxy{name: "SMA_REFINITIV", available: true}
	o, _ := newTestOrchestrator(t, primary, secondary)

	quote, err := o.GetMarketData(context.Background(), "AAPL", "")
	if err != nil {
		t.Fatalf("GetMarketData() error = %v", err)
	}
	if quote.Source != "SMA_REFINITIV" {
		t.Fatalf("Source = %q, want SMA_REFINITIV", quote.Source)
	}
	if primary.calls.Load() != 0 {
		t.Fatal("unavailable source must be skipped without a fetch")
	}
}

func TestGetMarketDataAllSourcesDown(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: true, err: proxy.ErrCircuitOpen}
	secondary := &fakeProxy{name: "SMA_REFINITIV", available: false}
	o, _ := newTestOrchestrator(t, primary, secondary)

	_, err := o.GetMarketData(context.Background(), "AAPL", "")
	if !errors.Is(err, proxy.ErrNoSourceAvailable) {
		t.Fatalf("error = %v, want ErrNoSourceAvailable", err)
	}
}

func TestGetMarketDataStampsQuality(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: true}
	o, _ := newTestOrchestrator(t, primary)

	quote, err := o.GetMarketData(context.Background(), "AAPL", "")
	if err != nil {
		t.Fatalf("GetMarketData() error = %v", err)
	}
	if quote.QualityScore != 1.0 {
		t.Fatalf("QualityScore = %v, want 1.0 for a clean quote", quote.QualityScore)
	}
	if quote.QualityTier != models.TierHigh {
		t.Fatalf("QualityTier = %v, want HIGH", quote.QualityTier)
	}
	if !quote.Valid {
		t.Fatal("clean quote should be valid")
	}
}

func TestGetBatchMarketData(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: true}
	o, _ := newTestOrchestrator(t, primary)

	ids := []string{"AAPL", "MSFT", "GOOG", "AMZN", "META", "NVDA", "TSLA", "NFLX"}
	results := o.GetBatchMarketData(context.Background(), ids, "")
	if len(results) != len(ids) {
		t.Fatalf("resolved %d instruments, want %d", len(results), len(ids))
	}
	if primary.maxSeen > 4 {
		t.Fatalf("observed %d concurrent fetches, batch concurrency is 4", primary.maxSeen)
	}
}

func TestGetBatchMarketDataSkipsUnresolved(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: false}
	o, _ := newTestOrchestrator(t, primary)

	results := o.GetBatchMarketData(context.Background(), []string{"AAPL", "MSFT"}, "")
	if len(results) != 0 {
		t.Fatalf("resolved %d instruments with every source down, want 0", len(results))
	}
}

func TestSourceHealthAndMetrics(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: true}
	secondary := &fakeProxy{name: "SMA_REFINITIV", available: false}
	o, _ := newTestOrchestrator(t, primary, secondary)

	health := o.GetAllSourceHealth(context.Background())
	if len(health) != 2 {
		t.Fatalf("health snapshots = %d, want 2", len(health))
	}
	if health[0].Status != models.StatusHealthy || health[1].Status != models.StatusUnhealthy {
		t.Fatalf("health = %+v, want healthy then unhealthy", health)
	}

	metrics := o.GetAllSourceMetrics()
	if len(metrics) != 2 {
		t.Fatalf("metric snapshots = %d, want 2", len(metrics))
	}
	if !o.IsSourceAvailable("BLOOMBERG") || o.IsSourceAvailable("SMA_REFINITIV") {
		t.Fatal("IsSourceAvailable disagrees with proxy availability")
	}
	if o.IsSourceAvailable("UNREGISTERED") {
		t.Fatal("unregistered source reported available")
	}
}

func TestInvalidateCache(t *testing.T) {
	primary := &fakeProxy{name: "BLOOMBERG", available: true}
	o, qc := newTestOrchestrator(t, primary)
	ctx := context.Background()

	if _, err := o.GetMarketData(ctx, "AAPL", ""); err != nil {
		t.Fatalf("GetMarketData() error = %v", err)
	}
	o.InvalidateCache(ctx, "AAPL")
	if _, ok := qc.Get(ctx, "AAPL"); ok {
		t.Fatal("invalidated instrument still cached")
	}
}
