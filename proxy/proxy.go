package proxy

import (
	"context"

	"basketflow/models"
)

// DataSourceProxy is what the orchestrator talks to: a data source
// wrapped with rate limiting, circuit breaking, retries and metrics.
// Implementations must be safe for concurrent use.
type DataSourceProxy interface {
	// Name returns the wrapped source's name.
	Name() string

	// FetchOne retrieves the quote for a single instrument, applying the
	// full resilience chain. Returns ErrRateLimited or ErrCircuitOpen
	// without touching the provider when a local guard refuses the call.
	FetchOne(ctx context.Context, instrumentID string) (models.Quote, error)

	// FetchBatch retrieves quotes for many instruments with bounded
	// per-source concurrency. Instruments that fail are absent from the
	// result; the error is non-nil only when the batch as a whole could
	// not run.
	FetchBatch(ctx context.Context, instrumentIDs []string) (map[string]models.Quote, error)

	// IsAvailable reports whether the proxy would currently admit a call:
	// the breaker is not open and the last health probe did not fail.
	IsAvailable() bool

	// HealthStatus probes the underlying source and classifies it.
	HealthStatus(ctx context.Context) models.SourceHealth

	// Metrics returns a snapshot of the cumulative request counters.
	Metrics() models.SourceMetrics
}
