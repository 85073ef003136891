package models

import "time"

// Severity classifies how badly a validation rule was broken.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Penalty returns the score penalty applied for one error of this
// severity. A clean quote scores 1.0.
func (s Severity) Penalty() float64 {
	switch s {
	case SeverityCritical:
		return 0.20
	case SeverityHigh:
		return 0.15
	case SeverityMedium:
		return 0.10
	case SeverityLow:
		return 0.05
	default:
		return 0.10
	}
}

// QualityTier buckets a quality score for cache TTL selection.
type QualityTier string

const (
	TierHigh   QualityTier = "HIGH"
	TierMedium QualityTier = "MEDIUM"
	TierLow    QualityTier = "LOW"
)

// TierForScore maps a 0..1 quality score onto a tier.
func TierForScore(score float64) QualityTier {
	switch {
	case score >= 0.9:
		return TierHigh
	case score >= 0.7:
		return TierMedium
	default:
		return TierLow
	}
}

// ValidationError is a single broken rule reported by a validator.
type ValidationError struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Field    string   `json:"field"`
	Value    string   `json:"value"`
	Severity Severity `json:"severity"`
}

// QualityReport is the aggregated output of the quality engine for one
// quote. Reports are immutable once built; the engine hands them to the
// orchestrator, which logs and discards them.
type QualityReport struct {
	InstrumentID string            `json:"instrument_id"`
	Source       string            `json:"source"`
	CheckedAt    time.Time         `json:"checked_at"`
	Valid        bool              `json:"is_valid"`
	Score        float64           `json:"score"`
	Errors       []ValidationError `json:"errors,omitempty"`
}

// Tier derives the quality tier from the report score.
func (r QualityReport) Tier() QualityTier {
	return TierForScore(r.Score)
}
