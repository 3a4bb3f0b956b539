package services

import (
	"fmt"

	"dealmatch/models"
)

// LearningStage is a UX readout over total_interactions. It has no effect
// on the boost formula.
type LearningStage struct {
	Name          string `json:"name"`
	Progress      int    `json:"progress"` // percent, monotone in interactions
	NextMilestone string `json:"next_milestone"`
}

// Stage thresholds on total interactions.
const (
	stageLearningAt  = 5
	stageImprovingAt = 20
	stageOptimizedAt = 50
)

// StageFor classifies how far along a dealer's profile is.
func StageFor(learned *models.LearnedPreferences) LearningStage {
	total := 0
	if learned != nil {
		total = learned.TotalInteractions
	}

	switch {
	case total >= stageOptimizedAt:
		return LearningStage{
			Name:          "Optimized",
			Progress:      100,
			NextMilestone: "Your matches are fully personalized. Keep saving and skipping to keep them sharp.",
		}
	case total >= stageImprovingAt:
		return LearningStage{
			Name:          "Improving",
			Progress:      progressBetween(total, stageImprovingAt, stageOptimizedAt, 60, 100),
			NextMilestone: fmt.Sprintf("%d more interactions until your matches are fully optimized.", stageOptimizedAt-total),
		}
	case total >= stageLearningAt:
		return LearningStage{
			Name:          "Learning",
			Progress:      progressBetween(total, stageLearningAt, stageImprovingAt, 25, 60),
			NextMilestone: fmt.Sprintf("%d more interactions until your matches start improving.", stageImprovingAt-total),
		}
	default:
		return LearningStage{
			Name:          "Getting Started",
			Progress:      progressBetween(total, 0, stageLearningAt, 0, 25),
			NextMilestone: fmt.Sprintf("Save or skip %d more vehicles to start personalizing your matches.", stageLearningAt-total),
		}
	}
}

func progressBetween(total, lo, hi, pctLo, pctHi int) int {
	if hi <= lo {
		return pctLo
	}
	return pctLo + (pctHi-pctLo)*(total-lo)/(hi-lo)
}
