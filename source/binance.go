package source

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"basketflow/config"
	"basketflow/logger"
	"basketflow/models"
)

// BinanceSource normalizes Binance 24h ticker statistics into canonical
// quotes. It is the one exchange-backed adapter and is mainly useful for
// crypto-referencing baskets and for exercising the proxy stack against a
// real public endpoint in development.
type BinanceSource struct {
	client *binance.Client
	log    *logger.Log
}

// NewBinanceSource creates the adapter. Market data endpoints need no
// credentials.
func NewBinanceSource(cfg config.SourceConfig) *BinanceSource {
	client := binance.NewClient("", "")
	client.HTTPClient = NewHTTPClient(cfg)
	return &BinanceSource{
		client: client,
		log:    logger.GetLogger(),
	}
}

func (b *BinanceSource) Name() string { return "BINANCE" }

func (b *BinanceSource) FetchQuote(ctx context.Context, instrumentID string) (models.Quote, error) {
	stats, err := b.client.NewListPriceChangeStatsService().Symbol(instrumentID).Do(ctx)
	if err != nil {
		return models.Quote{}, fmt.Errorf("binance: ticker stats for %s: %w", instrumentID, err)
	}
	if len(stats) == 0 {
		return models.Quote{}, fmt.Errorf("binance: no ticker data for %s", instrumentID)
	}
	st := stats[0]

	last, err := decimal.NewFromString(st.LastPrice)
	if err != nil {
		return models.Quote{}, fmt.Errorf("binance: parse last price %q: %w", st.LastPrice, err)
	}

	now := time.Now().UTC()
	q := models.Quote{
		InstrumentID: instrumentID,
		Symbol:       st.Symbol,
		LastPrice:    last,
		BidPrice:     parseOrZero(st.BidPrice),
		AskPrice:     parseOrZero(st.AskPrice),
		OpenPrice:    parseOrZero(st.OpenPrice),
		HighPrice:    parseOrZero(st.HighPrice),
		LowPrice:     parseOrZero(st.LowPrice),
		Volume:       parseOrZero(st.Volume).IntPart(),
		Currency:     "USDT",
		Exchange:     "BINANCE",
		Source:       b.Name(),
		Timestamp:    time.UnixMilli(st.CloseTime).UTC(),
		ReceivedAt:   now,
	}
	return q, nil
}

func (b *BinanceSource) Ping(ctx context.Context) error {
	if err := b.client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("binance: ping: %w", err)
	}
	return nil
}

func parseOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
