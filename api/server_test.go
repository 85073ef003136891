package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"basketflow/aggregator"
	"basketflow/basket"
	"basketflow/cache"
	"basketflow/config"
	"basketflow/models"
	"basketflow/orchestrator"
	"basketflow/proxy"
	"basketflow/quality"
)

type fakeProxy struct {
	name      string
	available bool
	err       error
}

func (f *fakeProxy) Name() string      { return f.name }
func (f *fakeProxy) IsAvailable() bool { return f.available }

func (f *fakeProxy) FetchOne(ctx context.Context, instrumentID string) (models.Quote, error) {
	if f.err != nil {
		return models.Quote{}, f.err
	}
	return models.Quote{
		InstrumentID: instrumentID,
		LastPrice:    decimal.NewFromFloat(10.0),
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
	return models.SourceMetrics{Source: f.name, CircuitState: models.CircuitClosed}
}

type fakeBaskets struct {
	basket models.Basket
	err    error
}

func (f *fakeBaskets) GetBasket(ctx context.Context, basketID string) (models.Basket, error) {
	if f.err != nil {
		return models.Basket{}, f.err
	}
	return f.basket, nil
}

func newTestServer(t *testing.T, proxies ...proxy.DataSourceProxy) *Server {
	t.Helper()
	cacheCfg := config.CacheConfig{
		TTLHigh:       5 * time.Minute,
		TTLMedium:     2 * time.Minute,
		TTLLow:        time.Minute,
		SweepInterval: time.Minute,
	}
	engine := quality.NewEngine(config.QualityConfig{
		MinPrice:            "0.01",
		MaxPrice:            "1000000.00",
		MaxSpreadPercentage: 50.0,
	})
	market := orchestrator.New(proxies, cache.NewMemoryCache(cacheCfg), cache.NewTTLPolicy(cacheCfg), engine, config.OrchestratorConfig{
		BatchConcurrency: 4,
		BatchTimeout:     5 * time.Second,
	})
	agg := aggregator.New(&fakeBaskets{
		basket: models.Basket{
			ID:           "tech-10",
			BaseCurrency: "USD",
			Constituents: []models.ConstituentWeight{
				{InstrumentID: "AAPL", Weight: decimal.NewFromInt(60)},
				{InstrumentID: "MSFT", Weight: decimal.NewFromInt(40)},
			},
		},
	}, market, nil, config.AggregatorConfig{PriceTTL: time.Minute})

	return NewServer(config.ServerConfig{Port: 0}, market, agg, false)
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetInstrument(t *testing.T) {
	s := newTestServer(t, &fakeProxy{name: "BLOOMBERG", available: true})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/instrument/AAPL", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("response missing X-Request-ID header")
	}

	var quote models.Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &quote); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if quote.InstrumentID != "AAPL" || quote.Source != "BLOOMBERG" {
		t.Fatalf("quote = %+v, want AAPL from BLOOMBERG", quote)
	}
}

func TestGetInstrumentAllSourcesDown(t *testing.T) {
	s := newTestServer(t, &fakeProxy{name: "BLOOMBERG", available: false})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/instrument/AAPL", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestBatchEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeProxy{name: "BLOOMBERG", available: true})

	body, _ := json.Marshal(batchRequest{InstrumentIDs: []string{"AAPL", "MSFT"}})
	rec := doRequest(t, s, http.MethodPost, "/api/v1/instruments/batch", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp batchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Requested != 2 || resp.Resolved != 2 || len(resp.Unresolved) != 0 {
		t.Fatalf("response = %+v, want 2 resolved", resp)
	}
}

func TestBatchEndpointRejectsEmptyBody(t *testing.T) {
	s := newTestServer(t, &fakeProxy{name: "BLOOMBERG", available: true})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/instruments/batch", []byte(`{"instrument_ids":[]}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t,
		&fakeProxy{name: "BLOOMBERG", available: true},
		&fakeProxy{name: "SMA_REFINITIV", available: false},
	)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a degraded service", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != models.StatusDegraded {
		t.Fatalf("Status = %v, want DEGRADED", resp.Status)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(resp.Sources))
	}
}

func TestHealthEndpointAllDown(t *testing.T) {
	s := newTestServer(t, &fakeProxy{name: "BLOOMBERG", available: false})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeProxy{name: "BLOOMBERG", available: true})

	doRequest(t, s, http.MethodGet, "/api/v1/instrument/AAPL", nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/cache/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}
	var stats cache.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("Entries = %d, want 1", stats.Entries)
	}

	if rec := doRequest(t, s, http.MethodDelete, "/api/v1/cache/AAPL", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("invalidate status = %d, want 204", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodDelete, "/api/v1/cache", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d, want 204", rec.Code)
	}
}

func TestBasketPriceEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeProxy{name: "BLOOMBERG", available: true})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/basket/tech-10/price", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cached price before calculation: status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/basket/tech-10/price", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("calculate status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var price models.BasketPrice
	if err := json.Unmarshal(rec.Body.Bytes(), &price); err != nil {
		t.Fatalf("decode price: %v", err)
	}
	// Both constituents quote at 10.0, so 10*60% + 10*40% = 10.0.
	if !price.Price.Equal(decimal.NewFromFloat(10.0)) {
		t.Fatalf("Price = %s, want 10", price.Price)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/basket/tech-10/price", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cached price status = %d, want 200", rec.Code)
	}
}

func TestBasketPriceNotFound(t *testing.T) {
	cacheCfg := config.CacheConfig{
		TTLHigh: time.Minute, TTLMedium: time.Minute, TTLLow: time.Minute, SweepInterval: time.Minute,
	}
	engine := quality.NewEngine(config.QualityConfig{MinPrice: "0.01", MaxPrice: "1000000.00", MaxSpreadPercentage: 50})
	market := orchestrator.New(
		[]proxy.DataSourceProxy{&fakeProxy{name: "BLOOMBERG", available: true}},
		cache.NewMemoryCache(cacheCfg), cache.NewTTLPolicy(cacheCfg), engine,
		config.OrchestratorConfig{BatchConcurrency: 4, BatchTimeout: time.Second},
	)
	agg := aggregator.New(&fakeBaskets{err: basket.ErrBasketNotFound}, market, nil, config.AggregatorConfig{PriceTTL: time.Minute})
	s := NewServer(config.ServerConfig{Port: 0}, market, agg, false)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/basket/missing/price", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
