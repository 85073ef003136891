package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"basketflow/config"
	"basketflow/internal/instrumentation"
	"basketflow/logger"
	"basketflow/models"
)

// ErrNoResolvableConstituents is returned when not a single constituent
// of the basket produced a quote, leaving nothing to price.
var ErrNoResolvableConstituents = errors.New("no basket constituent could be resolved")

var oneHundred = decimal.NewFromInt(100)

// QuoteProvider resolves market data for a set of instruments. The
// orchestrator satisfies it.
type QuoteProvider interface {
	GetBatchMarketData(ctx context.Context, instrumentIDs []string, preferredSource string) map[string]models.Quote
}

// BasketReader fetches basket definitions from the collaborator.
type BasketReader interface {
	GetBasket(ctx context.Context, basketID string) (models.Basket, error)
}

// PricePublisher hands calculated prices downstream.
type PricePublisher interface {
	Enabled() bool
	PublishPrice(ctx context.Context, price models.BasketPrice) error
}

type cachedPrice struct {
	price     models.BasketPrice
	expiresAt time.Time
}

// Aggregator computes weighted basket prices from resolved quotes.
// Unresolved constituents are excluded from the sum without
// renormalizing the remaining weights; the exclusion shows up in the
// price and is reported in the result metadata rather than hidden.
type Aggregator struct {
	baskets   BasketReader
	market    QuoteProvider
	publisher PricePublisher
	priceTTL  time.Duration

	mu     sync.RWMutex
	prices map[string]cachedPrice

	metrics *instrumentation.Metrics
	log     *logger.Entry
}

func New(baskets BasketReader, market QuoteProvider, publisher PricePublisher, cfg config.AggregatorConfig) *Aggregator {
	ttl := cfg.PriceTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Aggregator{
		baskets:   baskets,
		market:    market,
		publisher: publisher,
		priceTTL:  ttl,
		prices:    make(map[string]cachedPrice),
		metrics:   instrumentation.Default(),
		log:       logger.GetLogger().WithComponent("aggregator"),
	}
}

// CalculateBasketPrice fetches the basket's weights, resolves quotes for
// every constituent, and returns the weighted price. Each call produces
// a fresh calculation with a new ID; the previously cached price only
// feeds the delta fields.
func (a *Aggregator) CalculateBasketPrice(ctx context.Context, basketID string) (models.BasketPrice, error) {
	basket, err := a.baskets.GetBasket(ctx, basketID)
	if err != nil {
		a.metrics.BasketCalcErrs.Inc()
		return models.BasketPrice{}, fmt.Errorf("fetch basket %s: %w", basketID, err)
	}
	if len(basket.Constituents) == 0 {
		a.metrics.BasketCalcErrs.Inc()
		return models.BasketPrice{}, ErrNoResolvableConstituents
	}

	ids := make([]string, len(basket.Constituents))
	for i, c := range basket.Constituents {
		ids[i] = c.InstrumentID
	}
	quotes := a.market.GetBatchMarketData(ctx, ids, "")

	total := decimal.Zero
	resolved := make([]models.ConstituentPrice, 0, len(basket.Constituents))
	var excluded []string
	for _, c := range basket.Constituents {
		quote, ok := quotes[c.InstrumentID]
		if !ok {
			excluded = append(excluded, c.InstrumentID)
			continue
		}
		contribution := quote.LastPrice.Mul(c.Weight).Div(oneHundred)
		total = total.Add(contribution)
		resolved = append(resolved, models.ConstituentPrice{
			InstrumentID: c.InstrumentID,
			Weight:       c.Weight,
			LastPrice:    quote.LastPrice,
			Source:       quote.Source,
			QualityTier:  quote.QualityTier,
		})
	}

	if len(resolved) == 0 {
		a.metrics.BasketCalcErrs.Inc()
		a.log.WithFields(logger.Fields{"basket_id": basketID}).Error("every constituent unresolved")
		return models.BasketPrice{}, ErrNoResolvableConstituents
	}

	currency := basket.BaseCurrency
	if currency == "" {
		currency = "USD"
	}

	price := models.BasketPrice{
		BasketID:      basketID,
		CalculationID: uuid.NewString(),
		Price:         total,
		Currency:      currency,
		CalculatedAt:  time.Now().UTC(),
		Constituents:  resolved,
		ExcludedCount: len(excluded),
		ExcludedIDs:   excluded,
		Metadata: map[string]string{
			"basket_code":        basket.Code,
			"constituent_count":  strconv.Itoa(len(basket.Constituents)),
			"resolved_count":     strconv.Itoa(len(resolved)),
			"calculation_method": "weighted_sum",
		},
	}

	if previous, ok := a.GetCachedBasketPrice(basketID); ok {
		price.PreviousPrice = previous.Price
		price.ChangeAmount = total.Sub(previous.Price)
		if !previous.Price.IsZero() {
			price.ChangePercentage = price.ChangeAmount.Div(previous.Price).Mul(oneHundred)
		}
	}

	a.mu.Lock()
	a.prices[basketID] = cachedPrice{price: price, expiresAt: time.Now().Add(a.priceTTL)}
	a.mu.Unlock()

	a.metrics.BasketCalcs.Inc()
	logger.IncrementBasketCalculation()
	a.log.WithFields(logger.Fields{
		"basket_id":      basketID,
		"calculation_id": price.CalculationID,
		"price":          total.String(),
		"resolved":       len(resolved),
		"excluded":       len(excluded),
	}).Info("basket price calculated")

	a.publish(ctx, price)
	return price, nil
}

// publish hands the price downstream without failing the calculation.
func (a *Aggregator) publish(ctx context.Context, price models.BasketPrice) {
	if a.publisher == nil || !a.publisher.Enabled() {
		return
	}
	if err := a.publisher.PublishPrice(ctx, price); err != nil {
		a.log.WithError(err).WithFields(logger.Fields{
			"basket_id":      price.BasketID,
			"calculation_id": price.CalculationID,
		}).Warn("basket price publish failed")
	}
}

// GetCachedBasketPrice returns the last calculated price for the basket
// if it has not expired.
func (a *Aggregator) GetCachedBasketPrice(basketID string) (models.BasketPrice, bool) {
	a.mu.RLock()
	entry, ok := a.prices[basketID]
	a.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return models.BasketPrice{}, false
	}
	return entry.price, true
}
