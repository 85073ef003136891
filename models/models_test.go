package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityPenalty(t *testing.T) {
	assert.Equal(t, 0.20, SeverityCritical.Penalty())
	assert.Equal(t, 0.15, SeverityHigh.Penalty())
	assert.Equal(t, 0.10, SeverityMedium.Penalty())
	assert.Equal(t, 0.05, SeverityLow.Penalty())
	assert.Equal(t, 0.10, Severity("bogus").Penalty())
}

func TestQuoteFieldPresence(t *testing.T) {
	q := Quote{
		LastPrice: decimal.NewFromFloat(100),
		BidPrice:  decimal.NewFromFloat(99.95),
		AskPrice:  decimal.NewFromFloat(100.05),
	}
	assert.True(t, q.HasBidAsk())
	assert.False(t, q.HasRange())

	q.BidPrice = decimal.Zero
	assert.False(t, q.HasBidAsk(), "a one-sided book is not a bid/ask pair")

	q.HighPrice = decimal.NewFromFloat(102)
	q.LowPrice = decimal.NewFromFloat(98)
	assert.True(t, q.HasRange())
}

func TestQualityReportTier(t *testing.T) {
	report := QualityReport{Score: 0.85}
	require.Equal(t, TierMedium, report.Tier())

	report.Score = 0.95
	require.Equal(t, TierHigh, report.Tier())

	report.Score = 0.10
	require.Equal(t, TierLow, report.Tier())
}
