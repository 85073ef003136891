package basket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"basketflow/config"
	"basketflow/logger"
	"basketflow/models"
)

// ErrBasketNotFound is returned when the collaborator has no basket with
// the requested ID.
var ErrBasketNotFound = errors.New("basket not found")

// Client is the read-only HTTP client for the basket-management
// collaborator. Basket definitions and weights are owned there; this
// side only reads them to price baskets.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Entry
}

func NewClient(cfg config.BasketClientConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger().WithComponent("basket-client"),
	}
}

// GetBasket fetches one basket definition with its constituent weights.
func (c *Client) GetBasket(ctx context.Context, basketID string) (models.Basket, error) {
	var basket models.Basket
	url := fmt.Sprintf("%s/api/v1/baskets/%s", c.baseURL, basketID)
	if err := c.getJSON(ctx, url, &basket); err != nil {
		return models.Basket{}, err
	}
	return basket, nil
}

// ListActiveBaskets fetches every basket currently in ACTIVE status, for
// scheduled recalculation runs.
func (c *Client) ListActiveBaskets(ctx context.Context) ([]models.Basket, error) {
	var baskets []models.Basket
	url := c.baseURL + "/api/v1/baskets?status=ACTIVE"
	if err := c.getJSON(ctx, url, &baskets); err != nil {
		return nil, err
	}
	return baskets, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("basket service request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrBasketNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("basket service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode basket response: %w", err)
	}
	return nil
}
