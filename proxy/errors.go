package proxy

import (
	"errors"
	"fmt"
)

// Sentinel errors let the orchestrator distinguish why a source refused a
// fetch without string matching. Rate-limited and circuit-open failures
// are local decisions that never touched the network; provider errors
// wrap the underlying transport fault.
var (
	// ErrRateLimited is returned when no rate-limit permit was available.
	// The caller may retry after backing off.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCircuitOpen is returned while the breaker excludes the source.
	// The orchestrator treats it as an immediate fallback signal.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrNoSourceAvailable is returned by the orchestrator when every
	// registered source was exhausted.
	ErrNoSourceAvailable = errors.New("no data source available")
)

// ProviderError wraps a transient provider or transport fault, keeping
// the source name for logs and metrics.
type ProviderError struct {
	Source string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether the orchestrator's fallback loop should
// try the next source after this error. Every source-level failure is
// retryable against a different source; only terminal orchestrator
// errors are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCircuitOpen) ||
		isProviderError(err)
}

func isProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
