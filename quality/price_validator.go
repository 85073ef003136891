package quality

import (
	"fmt"

	"github.com/shopspring/decimal"

	"basketflow/models"
)

// PriceValidator checks price ranges, bid/ask ordering, spread sanity and
// intra-day consistency. Absent fields (decimal zero) are skipped; only
// supplied values are judged.
type PriceValidator struct {
	minPrice  decimal.Decimal
	maxPrice  decimal.Decimal
	maxSpread decimal.Decimal // percentage, e.g. 50.0
}

// NewPriceValidator builds the validator from the configured thresholds.
func NewPriceValidator(minPrice, maxPrice decimal.Decimal, maxSpreadPct float64) *PriceValidator {
	return &PriceValidator{
		minPrice:  minPrice,
		maxPrice:  maxPrice,
		maxSpread: decimal.NewFromFloat(maxSpreadPct),
	}
}

func (v *PriceValidator) Name() string { return "price_validator" }

func (v *PriceValidator) Validate(q models.Quote) []models.ValidationError {
	var errs []models.ValidationError

	errs = v.checkBounds(q.LastPrice, "last_price", errs)
	errs = v.checkBounds(q.BidPrice, "bid_price", errs)
	errs = v.checkBounds(q.AskPrice, "ask_price", errs)
	errs = v.checkBounds(q.OpenPrice, "open_price", errs)
	errs = v.checkBounds(q.HighPrice, "high_price", errs)
	errs = v.checkBounds(q.LowPrice, "low_price", errs)

	errs = v.checkSpread(q, errs)
	errs = v.checkConsistency(q, errs)

	return errs
}

func (v *PriceValidator) checkBounds(price decimal.Decimal, field string, errs []models.ValidationError) []models.ValidationError {
	if price.IsZero() {
		return errs
	}
	if price.LessThan(v.minPrice) {
		errs = append(errs, models.ValidationError{
			Code:     "PRICE_TOO_LOW",
			Message:  fmt.Sprintf("%s %s is below minimum threshold %s", field, price, v.minPrice),
			Field:    field,
			Value:    price.String(),
			Severity: models.SeverityHigh,
		})
	}
	if price.GreaterThan(v.maxPrice) {
		errs = append(errs, models.ValidationError{
			Code:     "PRICE_TOO_HIGH",
			Message:  fmt.Sprintf("%s %s is above maximum threshold %s", field, price, v.maxPrice),
			Field:    field,
			Value:    price.String(),
			Severity: models.SeverityHigh,
		})
	}
	return errs
}

func (v *PriceValidator) checkSpread(q models.Quote, errs []models.ValidationError) []models.ValidationError {
	if !q.HasBidAsk() {
		return errs
	}

	if q.AskPrice.LessThanOrEqual(q.BidPrice) {
		errs = append(errs, models.ValidationError{
			Code:     "INVALID_BID_ASK_SPREAD",
			Message:  "ask price must be greater than bid price",
			Field:    "bid_ask_spread",
			Value:    fmt.Sprintf("bid: %s, ask: %s", q.BidPrice, q.AskPrice),
			Severity: models.SeverityCritical,
		})
		return errs
	}

	spread := q.AskPrice.Sub(q.BidPrice)
	mid := q.BidPrice.Add(q.AskPrice).Div(decimal.NewFromInt(2))
	spreadPct := spread.Div(mid).Mul(decimal.NewFromInt(100))
	if spreadPct.GreaterThan(v.maxSpread) {
		errs = append(errs, models.ValidationError{
			Code:     "SPREAD_TOO_WIDE",
			Message:  fmt.Sprintf("bid-ask spread %s%% exceeds maximum threshold %s%%", spreadPct.Round(2), v.maxSpread),
			Field:    "bid_ask_spread",
			Value:    spreadPct.Round(4).String(),
			Severity: models.SeverityMedium,
		})
	}
	return errs
}

func (v *PriceValidator) checkConsistency(q models.Quote, errs []models.ValidationError) []models.ValidationError {
	if q.HasRange() && q.HighPrice.LessThan(q.LowPrice) {
		errs = append(errs, models.ValidationError{
			Code:     "INVALID_HIGH_LOW_PRICES",
			Message:  "high price must be greater than or equal to low price",
			Field:    "high_low_prices",
			Value:    fmt.Sprintf("high: %s, low: %s", q.HighPrice, q.LowPrice),
			Severity: models.SeverityHigh,
		})
	}

	if q.HasRange() && q.LastPrice.IsPositive() {
		if q.LastPrice.GreaterThan(q.HighPrice) || q.LastPrice.LessThan(q.LowPrice) {
			errs = append(errs, models.ValidationError{
				Code:     "LAST_PRICE_OUT_OF_RANGE",
				Message:  "last price must be between high and low prices",
				Field:    "last_price",
				Value:    q.LastPrice.String(),
				Severity: models.SeverityMedium,
			})
		}
	}
	return errs
}
