package models

import "time"

// HealthStatus is the coarse availability classification of a data source.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "HEALTHY"
	StatusDegraded  HealthStatus = "DEGRADED"
	StatusUnhealthy HealthStatus = "UNHEALTHY"
	StatusUnknown   HealthStatus = "UNKNOWN"
)

// SourceHealth is the latest health snapshot for one data source.
// Only the most recent probe is retained; trend tracking belongs to an
// external time-series system.
type SourceHealth struct {
	Source    string       `json:"source"`
	Status    HealthStatus `json:"status"`
	CheckedAt time.Time    `json:"checked_at"`
	Error     string       `json:"error,omitempty"`
}
