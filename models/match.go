package models

import (
	"time"

	"github.com/google/uuid"
)

// ScoreBreakdown is the fixed set of factor points behind a base score.
// Kept as a closed struct rather than an open map so the explanation layer
// can be tested exhaustively.
type ScoreBreakdown struct {
	Make          float64 `json:"make"`
	Model         float64 `json:"model"`
	Year          float64 `json:"year"`
	Price         float64 `json:"price"`
	Mileage       float64 `json:"mileage"`
	Condition     float64 `json:"condition"`
	Fuel          float64 `json:"fuel"`
	MaxApplicable float64 `json:"max_applicable"`
}

// Sum returns the raw (pre-normalization) points.
func (b ScoreBreakdown) Sum() float64 {
	return b.Make + b.Model + b.Year + b.Price + b.Mileage + b.Condition + b.Fuel
}

// VehicleMatch is the scored association between one dealer and one listing.
// Created once per (dealer, listing), updated in place by later
// interactions, never deleted.
type VehicleMatch struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	DealerID        uuid.UUID      `json:"dealer_id" db:"dealer_id"`
	ListingID       uuid.UUID      `json:"listing_id" db:"listing_id"`
	BaseScore       int            `json:"base_score" db:"base_score"`
	Boost           int            `json:"personalization_boost" db:"personalization_boost"`
	FinalScore      int            `json:"final_score" db:"final_score"`
	Breakdown       ScoreBreakdown `json:"score_breakdown" db:"score_breakdown"`
	Viewed          bool           `json:"viewed" db:"viewed"`
	Saved           bool           `json:"saved" db:"saved"`
	Skipped         bool           `json:"skipped" db:"skipped"`
	ContactedSeller bool           `json:"contacted_seller" db:"contacted_seller"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// DisplayScore clamps the final score to [0,100] for presentation. The
// stored final score itself is base + boost, unclamped.
func (m *VehicleMatch) DisplayScore() int {
	switch {
	case m.FinalScore < 0:
		return 0
	case m.FinalScore > 100:
		return 100
	}
	return m.FinalScore
}
