package quality

import "basketflow/models"

// Validator is one independent rule set run against every freshly fetched
// quote. Validators report errors; they never mutate the quote.
type Validator interface {
	Name() string
	Validate(q models.Quote) []models.ValidationError
}
