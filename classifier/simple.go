package classifier

import (
	"context"
	"time"

	"dealmatch/models"
)

// SimpleClassifier is the heuristic fallback used when no LLM service is
// configured. It only looks at stated condition, age, and mileage.
type SimpleClassifier struct{}

// NewSimple creates the fallback classifier.
func NewSimple() *SimpleClassifier {
	return &SimpleClassifier{}
}

// Classify produces a deterministic assessment from the listing alone.
func (c *SimpleClassifier) Classify(_ context.Context, listing *models.VehicleListing) (models.ConditionAssessment, error) {
	risk := 0.2

	switch listing.Condition {
	case models.ConditionPoor:
		risk += 0.3
	case models.ConditionSalvage:
		risk += 0.6
	case "":
		risk += 0.15 // undisclosed condition carries its own risk
	}

	age := time.Now().Year() - listing.Year
	if age > 10 {
		risk += 0.15
	}
	if listing.Mileage != nil && *listing.Mileage > 120000 {
		risk += 0.15
	}
	if risk > 1 {
		risk = 1
	}

	verdict := models.VerdictBuy
	switch {
	case risk >= 0.7:
		verdict = models.VerdictAvoid
	case risk >= 0.4:
		verdict = models.VerdictCaution
	}

	return models.ConditionAssessment{
		ListingID:      listing.ID,
		Verdict:        verdict,
		RiskScore:      risk,
		ProfitEstimate: listing.Price * (1 - risk) * 0.12,
		AssessedAt:     time.Now().UTC(),
	}, nil
}
