package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"basketflow/config"
	"basketflow/models"
)

type stubBaskets struct {
	basket models.Basket
	err    error
}

func (s *stubBaskets) GetBasket(ctx context.Context, basketID string) (models.Basket, error) {
	if s.err != nil {
		return models.Basket{}, s.err
	}
	return s.basket, nil
}

type stubMarket struct {
	quotes map[string]models.Quote
}

func (s *stubMarket) GetBatchMarketData(ctx context.Context, ids []string, preferred string) map[string]models.Quote {
	out := make(map[string]models.Quote, len(ids))
	for _, id := range ids {
		if q, ok := s.quotes[id]; ok {
			out[id] = q
		}
	}
	return out
}

type stubPublisher struct {
	published []models.BasketPrice
	err       error
}

func (s *stubPublisher) Enabled() bool { return true }

func (s *stubPublisher) PublishPrice(ctx context.Context, price models.BasketPrice) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, price)
	return nil
}

func techBasket() models.Basket {
	return models.Basket{
		ID:           "tech-10",
		Code:         "TECH10",
		Status:       "ACTIVE",
		BaseCurrency: "USD",
		Constituents: []models.ConstituentWeight{
			{InstrumentID: "AAPL", Weight: decimal.NewFromInt(60)},
			{InstrumentID: "MSFT", Weight: decimal.NewFromInt(40)},
		},
	}
}

func quoteFor(id string, last float64) models.Quote {
	return models.Quote{
		InstrumentID: id,
		LastPrice:    decimal.NewFromFloat(last),
		Source:       "TEST",
		QualityTier:  models.TierHigh,
		Timestamp:    time.Now().UTC(),
	}
}

func TestCalculateBasketPriceWeightedSum(t *testing.T) {
	market := &stubMarket{quotes: map[string]models.Quote{
		"AAPL": quoteFor("AAPL", 10.0),
		"MSFT": quoteFor("MSFT", 20.0),
	}}
	pub := &stubPublisher{}
	a := New(&stubBaskets{basket: techBasket()}, market, pub, config.AggregatorConfig{PriceTTL: time.Minute})

	price, err := a.CalculateBasketPrice(context.Background(), "tech-10")
	if err != nil {
		t.Fatalf("CalculateBasketPrice() error = %v", err)
	}

	// 10.0 * 60% + 20.0 * 40% = 14.0
	want := decimal.NewFromFloat(14.0)
	if !price.Price.Equal(want) {
		t.Fatalf("Price = %s, want %s", price.Price, want)
	}
	if price.Currency != "USD" {
		t.Fatalf("Currency = %q, want USD", price.Currency)
	}
	if price.CalculationID == "" {
		t.Fatal("CalculationID not assigned")
	}
	if len(price.Constituents) != 2 || price.ExcludedCount != 0 {
		t.Fatalf("constituents = %d excluded = %d, want 2 and 0", len(price.Constituents), price.ExcludedCount)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d prices, want 1", len(pub.published))
	}
}

func TestCalculateBasketPriceExcludesUnresolved(t *testing.T) {
	market := &stubMarket{quotes: map[string]models.Quote{
		"AAPL": quoteFor("AAPL", 10.0),
		// MSFT unresolved
	}}
	a := New(&stubBaskets{basket: techBasket()}, market, &stubPublisher{}, config.AggregatorConfig{PriceTTL: time.Minute})

	price, err := a.CalculateBasketPrice(context.Background(), "tech-10")
	if err != nil {
		t.Fatalf("CalculateBasketPrice() error = %v", err)
	}

	// Weights are not renormalized: 10.0 * 60% = 6.0.
	want := decimal.NewFromFloat(6.0)
	if !price.Price.Equal(want) {
		t.Fatalf("Price = %s, want %s without renormalization", price.Price, want)
	}
	if price.ExcludedCount != 1 || len(price.ExcludedIDs) != 1 || price.ExcludedIDs[0] != "MSFT" {
		t.Fatalf("exclusions = %+v, want MSFT", price.ExcludedIDs)
	}
}

func TestCalculateBasketPriceNoConstituentsResolved(t *testing.T) {
	a := New(&stubBaskets{basket: techBasket()}, &stubMarket{}, &stubPublisher{}, config.AggregatorConfig{PriceTTL: time.Minute})

	_, err := a.CalculateBasketPrice(context.Background(), "tech-10")
	if !errors.Is(err, ErrNoResolvableConstituents) {
		t.Fatalf("error = %v, want ErrNoResolvableConstituents", err)
	}
}

func TestCalculateBasketPriceBasketLookupError(t *testing.T) {
	lookupErr := errors.New("basket service down")
	a := New(&stubBaskets{err: lookupErr}, &stubMarket{}, &stubPublisher{}, config.AggregatorConfig{PriceTTL: time.Minute})

	_, err := a.CalculateBasketPrice(context.Background(), "tech-10")
	if !errors.Is(err, lookupErr) {
		t.Fatalf("error = %v, want wrapped lookup error", err)
	}
}

func TestCalculateBasketPriceDeltas(t *testing.T) {
	market := &stubMarket{quotes: map[string]models.Quote{
		"AAPL": quoteFor("AAPL", 10.0),
		"MSFT": quoteFor("MSFT", 20.0),
	}}
	a := New(&stubBaskets{basket: techBasket()}, market, &stubPublisher{}, config.AggregatorConfig{PriceTTL: time.Minute})
	ctx := context.Background()

	first, err := a.CalculateBasketPrice(ctx, "tech-10")
	if err != nil {
		t.Fatalf("first calculation error = %v", err)
	}
	if !first.PreviousPrice.IsZero() {
		t.Fatalf("PreviousPrice on first calculation = %s, want zero", first.PreviousPrice)
	}

	market.quotes["AAPL"] = quoteFor("AAPL", 20.0) // 20*60% + 20*40% = 20.0
	second, err := a.CalculateBasketPrice(ctx, "tech-10")
	if err != nil {
		t.Fatalf("second calculation error = %v", err)
	}
	if !second.PreviousPrice.Equal(decimal.NewFromFloat(14.0)) {
		t.Fatalf("PreviousPrice = %s, want 14", second.PreviousPrice)
	}
	if !second.ChangeAmount.Equal(decimal.NewFromFloat(6.0)) {
		t.Fatalf("ChangeAmount = %s, want 6", second.ChangeAmount)
	}
	if second.CalculationID == first.CalculationID {
		t.Fatal("each calculation must get a fresh CalculationID")
	}
}

func TestGetCachedBasketPrice(t *testing.T) {
	market := &stubMarket{quotes: map[string]models.Quote{
		"AAPL": quoteFor("AAPL", 10.0),
		"MSFT": quoteFor("MSFT", 20.0),
	}}
	a := New(&stubBaskets{basket: techBasket()}, market, &stubPublisher{}, config.AggregatorConfig{PriceTTL: 20 * time.Millisecond})
	ctx := context.Background()

	if _, ok := a.GetCachedBasketPrice("tech-10"); ok {
		t.Fatal("cache hit before any calculation")
	}

	calculated, err := a.CalculateBasketPrice(ctx, "tech-10")
	if err != nil {
		t.Fatalf("CalculateBasketPrice() error = %v", err)
	}
	cached, ok := a.GetCachedBasketPrice("tech-10")
	if !ok {
		t.Fatal("calculated price not cached")
	}
	if cached.CalculationID != calculated.CalculationID {
		t.Fatal("cached price differs from the calculated one")
	}

	time.Sleep(25 * time.Millisecond)
	if _, ok := a.GetCachedBasketPrice("tech-10"); ok {
		t.Fatal("expired basket price served from cache")
	}
}

func TestPublishFailureDoesNotFailCalculation(t *testing.T) {
	market := &stubMarket{quotes: map[string]models.Quote{
		"AAPL": quoteFor("AAPL", 10.0),
		"MSFT": quoteFor("MSFT", 20.0),
	}}
	pub := &stubPublisher{err: errors.New("publishing down")}
	a := New(&stubBaskets{basket: techBasket()}, market, pub, config.AggregatorConfig{PriceTTL: time.Minute})

	if _, err := a.CalculateBasketPrice(context.Background(), "tech-10"); err != nil {
		t.Fatalf("CalculateBasketPrice() error = %v, publish failures must not propagate", err)
	}
}
