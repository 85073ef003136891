package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"basketflow/config"
	"basketflow/logger"
	"basketflow/models"
)

// SmaSource fetches quotes from the SMA adapter service, which fronts the
// Refinitiv feed. The adapter speaks plain JSON over HTTP; this client
// normalizes its payload into the canonical Quote shape.
type SmaSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logger.Log
}

type smaPriceResponse struct {
	Symbol    string          `json:"symbol"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	BidPrice  decimal.Decimal `json:"bidPrice"`
	AskPrice  decimal.Decimal `json:"askPrice"`
	OpenPrice decimal.Decimal `json:"openPrice"`
	HighPrice decimal.Decimal `json:"highPrice"`
	LowPrice  decimal.Decimal `json:"lowPrice"`
	Volume    int64           `json:"volume"`
	Currency  string          `json:"currency"`
	Exchange  string          `json:"exchange"`
	Timestamp time.Time       `json:"timestamp"`
}

type smaHealthResponse struct {
	Status string `json:"status"`
}

// NewSmaSource creates the SMA adapter client.
func NewSmaSource(cfg config.SmaConfig) *SmaSource {
	return &SmaSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  NewHTTPClient(cfg.SourceConfig),
		log:     logger.GetLogger(),
	}
}

func (s *SmaSource) Name() string { return "SMA_REFINITIV" }

func (s *SmaSource) FetchQuote(ctx context.Context, instrumentID string) (models.Quote, error) {
	url := fmt.Sprintf("%s/api/v1/sma/prices/%s", s.baseURL, instrumentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("sma: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("sma: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Quote{}, fmt.Errorf("sma: unexpected status %d for %s", resp.StatusCode, instrumentID)
	}

	var body smaPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Quote{}, fmt.Errorf("sma: decode response: %w", err)
	}

	now := time.Now().UTC()
	ts := body.Timestamp
	if ts.IsZero() {
		ts = now
	}
	currency := body.Currency
	if currency == "" {
		currency = "USD"
	}

	return models.Quote{
		InstrumentID: instrumentID,
		Symbol:       firstNonEmpty(body.Symbol, instrumentID),
		LastPrice:    body.LastPrice,
		BidPrice:     body.BidPrice,
		AskPrice:     body.AskPrice,
		OpenPrice:    body.OpenPrice,
		HighPrice:    body.HighPrice,
		LowPrice:     body.LowPrice,
		Volume:       body.Volume,
		Currency:     currency,
		Exchange:     body.Exchange,
		Source:       s.Name(),
		Timestamp:    ts,
		ReceivedAt:   now,
	}, nil
}

// Ping hits the adapter's health endpoint; anything other than an "UP"
// status is treated as unavailable.
func (s *SmaSource) Ping(ctx context.Context) error {
	url := s.baseURL + "/api/v1/sma/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("sma: build health request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sma: health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sma: health status %d", resp.StatusCode)
	}

	var body smaHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("sma: decode health response: %w", err)
	}
	if body.Status != "UP" {
		return fmt.Errorf("sma: adapter reports status %q", body.Status)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
