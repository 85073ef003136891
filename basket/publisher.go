package basket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"basketflow/config"
	"basketflow/logger"
	"basketflow/models"
)

// Publisher hands calculated basket prices to the downstream publishing
// service. Publishing is best-effort: a failed publish is logged, never
// retried here, and never fails the calculation that produced the price.
type Publisher struct {
	enabled bool
	baseURL string
	http    *http.Client
	log     *logger.Entry
}

func NewPublisher(cfg config.PublishingConfig) *Publisher {
	return &Publisher{
		enabled: cfg.Enabled,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logger.GetLogger().WithComponent("price-publisher"),
	}
}

func (p *Publisher) Enabled() bool { return p.enabled }

// PublishPrice posts one basket price downstream.
func (p *Publisher) PublishPrice(ctx context.Context, price models.BasketPrice) error {
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(price)
	if err != nil {
		return fmt.Errorf("marshal basket price: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/prices/%s", p.baseURL, price.BasketID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("publishing service returned status %d", resp.StatusCode)
	}

	logger.IncrementPricePublish(1)
	p.log.WithFields(logger.Fields{
		"basket_id":      price.BasketID,
		"calculation_id": price.CalculationID,
		"price":          price.Price.String(),
	}).Info("basket price published")
	return nil
}
