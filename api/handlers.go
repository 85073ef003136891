package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"basketflow/aggregator"
	"basketflow/basket"
	"basketflow/models"
	"basketflow/proxy"
)

type errorResponse struct {
	Error string `json:"error"`
}

type batchRequest struct {
	InstrumentIDs []string `json:"instrument_ids"`
	Source        string   `json:"source,omitempty"`
}

type batchResponse struct {
	Quotes     map[string]models.Quote `json:"quotes"`
	Requested  int                     `json:"requested"`
	Resolved   int                     `json:"resolved"`
	Unresolved []string                `json:"unresolved,omitempty"`
}

type healthResponse struct {
	Status  models.HealthStatus   `json:"status"`
	Sources []models.SourceHealth `json:"sources"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleGetInstrument resolves a single quote, optionally preferring the
// source named in the ?source query parameter. Quotes that failed
// validation are still returned; the quality fields flag them.
func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrumentID")
	preferred := r.URL.Query().Get("source")

	quote, err := s.market.GetMarketData(r.Context(), instrumentID, preferred)
	if err != nil {
		if errors.Is(err, proxy.ErrNoSourceAvailable) {
			writeError(w, http.StatusServiceUnavailable, "no data source available")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.InstrumentIDs) == 0 {
		writeError(w, http.StatusBadRequest, "instrument_ids must not be empty")
		return
	}
	preferred := req.Source
	if preferred == "" {
		preferred = r.URL.Query().Get("source")
	}

	quotes := s.market.GetBatchMarketData(r.Context(), req.InstrumentIDs, preferred)

	var unresolved []string
	for _, id := range req.InstrumentIDs {
		if _, ok := quotes[id]; !ok {
			unresolved = append(unresolved, id)
		}
	}
	writeJSON(w, http.StatusOK, batchResponse{
		Quotes:     quotes,
		Requested:  len(req.InstrumentIDs),
		Resolved:   len(quotes),
		Unresolved: unresolved,
	})
}

// handleHealth aggregates per-source health into one service status:
// every source healthy is HEALTHY, none healthy is UNHEALTHY, anything
// in between is DEGRADED.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sources := s.market.GetAllSourceHealth(r.Context())

	healthy := 0
	for _, src := range sources {
		if src.Status == models.StatusHealthy {
			healthy++
		}
	}

	resp := healthResponse{Sources: sources}
	status := http.StatusOK
	switch {
	case len(sources) == 0 || healthy == 0:
		resp.Status = models.StatusUnhealthy
		status = http.StatusServiceUnavailable
	case healthy == len(sources):
		resp.Status = models.StatusHealthy
	default:
		resp.Status = models.StatusDegraded
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleSourceMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.GetAllSourceMetrics())
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.CacheStats())
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	s.market.InvalidateCache(r.Context(), chi.URLParam(r, "instrumentID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.market.ClearCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCalculateBasketPrice(w http.ResponseWriter, r *http.Request) {
	basketID := chi.URLParam(r, "basketID")

	price, err := s.aggregator.CalculateBasketPrice(r.Context(), basketID)
	if err != nil {
		switch {
		case errors.Is(err, basket.ErrBasketNotFound):
			writeError(w, http.StatusNotFound, "basket not found")
		case errors.Is(err, aggregator.ErrNoResolvableConstituents):
			writeError(w, http.StatusServiceUnavailable, "no basket constituent could be resolved")
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, price)
}

// handleGetBasketPrice serves the cached price without triggering a
// recalculation.
func (s *Server) handleGetBasketPrice(w http.ResponseWriter, r *http.Request) {
	basketID := chi.URLParam(r, "basketID")

	price, ok := s.aggregator.GetCachedBasketPrice(basketID)
	if !ok {
		writeError(w, http.StatusNotFound, "no cached price for basket")
		return
	}
	writeJSON(w, http.StatusOK, price)
}
