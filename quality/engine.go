package quality

import (
	"time"

	"github.com/shopspring/decimal"

	"basketflow/config"
	"basketflow/logger"
	"basketflow/models"
)

// Engine runs a fixed, ordered set of validators against every freshly
// fetched quote and folds their findings into one immutable QualityReport.
// The engine owns its validators; callers consume reports but never keep
// them.
type Engine struct {
	validators []Validator
	log        *logger.Log
}

// NewEngine builds the default validator pipeline from the configured
// thresholds.
func NewEngine(cfg config.QualityConfig) *Engine {
	minPrice, err := decimal.NewFromString(cfg.MinPrice)
	if err != nil {
		minPrice = decimal.NewFromFloat(0.01)
	}
	maxPrice, err := decimal.NewFromString(cfg.MaxPrice)
	if err != nil {
		maxPrice = decimal.NewFromInt(1000000)
	}

	return &Engine{
		validators: []Validator{
			NewPriceValidator(minPrice, maxPrice, cfg.MaxSpreadPercentage),
		},
		log: logger.GetLogger(),
	}
}

// Register appends an extra validator to the pipeline. Validators run in
// registration order.
func (e *Engine) Register(v Validator) {
	e.validators = append(e.validators, v)
}

// Validate runs all validators and returns the aggregated report. A quote
// with zero errors scores 1.0; each error subtracts its severity penalty.
// Validity is the AND across validators ignoring LOW severity findings.
func (e *Engine) Validate(q models.Quote) models.QualityReport {
	var all []models.ValidationError
	for _, v := range e.validators {
		all = append(all, v.Validate(q)...)
	}

	score := 1.0
	valid := true
	for _, ve := range all {
		score -= ve.Severity.Penalty()
		if ve.Severity != models.SeverityLow {
			valid = false
		}
	}
	if score < 0 {
		score = 0
	}

	report := models.QualityReport{
		InstrumentID: q.InstrumentID,
		Source:       q.Source,
		CheckedAt:    time.Now().UTC(),
		Valid:        valid,
		Score:        score,
		Errors:       all,
	}

	if !valid {
		e.log.WithComponent("quality_engine").WithFields(logger.Fields{
			"instrument_id": q.InstrumentID,
			"source":        q.Source,
			"score":         score,
			"errors":        len(all),
		}).Warn("quote failed quality validation")
	}

	return report
}

// Apply stamps the report's outcome onto a copy of the quote so downstream
// consumers can filter on quality without holding the report.
func Apply(q models.Quote, report models.QualityReport) models.Quote {
	q.QualityScore = report.Score
	q.QualityTier = report.Tier()
	q.Valid = report.Valid
	return q
}
