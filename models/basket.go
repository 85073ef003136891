package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConstituentWeight is one instrument's share of a basket, as reported by
// the basket-management collaborator. Weights are percentages in (0, 100].
// This core consumes weights but does not own or persist them.
type ConstituentWeight struct {
	InstrumentID string          `json:"instrument_id"`
	Symbol       string          `json:"symbol,omitempty"`
	Weight       decimal.Decimal `json:"weight"`
}

// Basket is the read-only view of a basket fetched from the collaborator.
// Only the fields the aggregation layer needs are mapped.
type Basket struct {
	ID           string              `json:"id"`
	Code         string              `json:"code"`
	Name         string              `json:"name"`
	Status       string              `json:"status"`
	BaseCurrency string              `json:"base_currency"`
	Constituents []ConstituentWeight `json:"constituents"`
}

// ConstituentPrice records one constituent's contribution to a basket
// price calculation.
type ConstituentPrice struct {
	InstrumentID string          `json:"instrument_id"`
	Weight       decimal.Decimal `json:"weight"`
	LastPrice    decimal.Decimal `json:"last_price"`
	Source       string          `json:"source"`
	QualityTier  QualityTier     `json:"quality_tier"`
}

// BasketPrice is the publish-ready weighted price of a basket. A fresh
// instance is created on every aggregation; the previously cached instance
// only supplies PreviousPrice for the delta fields.
type BasketPrice struct {
	BasketID         string             `json:"basket_id"`
	CalculationID    string             `json:"calculation_id"`
	Price            decimal.Decimal    `json:"price"`
	Currency         string             `json:"currency"`
	CalculatedAt     time.Time          `json:"calculated_at"`
	PreviousPrice    decimal.Decimal    `json:"previous_price"`
	ChangeAmount     decimal.Decimal    `json:"change_amount"`
	ChangePercentage decimal.Decimal    `json:"change_percentage"`
	Constituents     []ConstituentPrice `json:"constituents"`
	ExcludedCount    int                `json:"excluded_count"`
	ExcludedIDs      []string           `json:"excluded_ids,omitempty"`
	Metadata         map[string]string  `json:"metadata,omitempty"`
}
