package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"basketflow/aggregator"
	"basketflow/config"
	"basketflow/logger"
	"basketflow/orchestrator"
)

// Server exposes the market data and basket pricing operations over
// HTTP. It owns the listener lifecycle; handlers delegate to the
// orchestrator and aggregator.
type Server struct {
	cfg        config.ServerConfig
	market     *orchestrator.Orchestrator
	aggregator *aggregator.Aggregator
	httpServer *http.Server
	log        *logger.Entry
}

func NewServer(cfg config.ServerConfig, market *orchestrator.Orchestrator, agg *aggregator.Aggregator, prometheusEnabled bool) *Server {
	s := &Server{
		cfg:        cfg,
		market:     market,
		aggregator: agg,
		log:        logger.GetLogger().WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(s.requestLogger)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/instrument/{instrumentID}", s.handleGetInstrument)
		r.Post("/instruments/batch", s.handleBatch)

		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleSourceMetrics)

		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache/{instrumentID}", s.handleInvalidateCache)
		r.Delete("/cache", s.handleClearCache)

		r.Post("/basket/{basketID}/price", s.handleCalculateBasketPrice)
		r.Get("/basket/{basketID}/price", s.handleGetBasketPrice)
	})

	if prometheusEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the listener until Stop is called.
func (s *Server) Start() error {
	s.log.WithFields(logger.Fields{"addr": s.httpServer.Addr}).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
