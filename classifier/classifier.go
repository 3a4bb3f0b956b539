package classifier

import (
	"context"

	"dealmatch/models"
)

// Classifier assigns a condition verdict, risk score, and profit estimate
// to a listing. The production implementation calls the hosted LLM service;
// that client lives outside this module.
type Classifier interface {
	Classify(ctx context.Context, listing *models.VehicleListing) (models.ConditionAssessment, error)
}
