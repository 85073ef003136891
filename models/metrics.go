package models

import "time"

// CircuitState mirrors the breaker state machine of the resilient proxy.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// SourceMetrics is a point-in-time snapshot of the cumulative counters a
// resilient proxy keeps for its data source. Counters accumulate
// monotonically and reset only on explicit operator action.
type SourceMetrics struct {
	Source       string        `json:"source"`
	Total        int64         `json:"total_requests"`
	Success      int64         `json:"successful_requests"`
	Failure      int64         `json:"failed_requests"`
	MeanLatency  time.Duration `json:"mean_latency_ns"`
	MaxLatency   time.Duration `json:"max_latency_ns"`
	SuccessRate  float64       `json:"success_rate"`
	CircuitState CircuitState  `json:"circuit_state"`
}
