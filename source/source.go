package source

import (
	"context"
	"net"
	"net/http"
	"time"

	"basketflow/config"
	"basketflow/models"
)

// DataSource is the uniform contract every provider adapter implements.
// An adapter converts provider-specific payloads into the canonical Quote
// shape and nothing else; resilience (circuit breaking, rate limiting,
// retries, metrics) lives in the proxy wrapper.
type DataSource interface {
	Name() string
	FetchQuote(ctx context.Context, instrumentID string) (models.Quote, error)
	Ping(ctx context.Context) error
}

// NewHTTPClient builds an http.Client with the pooling knobs from the
// source configuration.
func NewHTTPClient(cfg config.SourceConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:       cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:    cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:    cfg.ConnectionPool.IdleConnTimeout,
		ForceAttemptHTTP2:  true,
		DisableCompression: false,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}
