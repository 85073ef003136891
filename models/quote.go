package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the canonical, source-normalized market data snapshot for a
// single instrument. All adapters convert provider payloads into this
// shape before anything else looks at them.
//
// Price fields use the decimal zero value to mean "not supplied by the
// provider"; validators skip absent fields.
type Quote struct {
	InstrumentID string          `json:"instrument_id"`
	Symbol       string          `json:"symbol,omitempty"`
	LastPrice    decimal.Decimal `json:"last_price"`
	BidPrice     decimal.Decimal `json:"bid_price"`
	AskPrice     decimal.Decimal `json:"ask_price"`
	OpenPrice    decimal.Decimal `json:"open_price"`
	HighPrice    decimal.Decimal `json:"high_price"`
	LowPrice     decimal.Decimal `json:"low_price"`
	Volume       int64           `json:"volume"`
	Currency     string          `json:"currency"`
	Exchange     string          `json:"exchange"`
	Source       string          `json:"source"`

	// Quality fields are filled in by the quality engine after the fetch.
	QualityTier  QualityTier     `json:"quality_tier"`
	QualityScore float64         `json:"quality_score"`
	Valid        bool            `json:"is_valid"`

	ChangeAmount     decimal.Decimal `json:"change_amount"`
	ChangePercentage decimal.Decimal `json:"change_percentage"`

	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
}

// HasBidAsk reports whether both sides of the book were supplied.
func (q Quote) HasBidAsk() bool {
	return q.BidPrice.IsPositive() && q.AskPrice.IsPositive()
}

// HasRange reports whether both the high and low prices were supplied.
func (q Quote) HasRange() bool {
	return q.HighPrice.IsPositive() && q.LowPrice.IsPositive()
}
