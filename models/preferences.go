package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidPriceRange = errors.New("min_price greater than max_price")
	ErrInvalidYearRange  = errors.New("min_year greater than max_year")
)

// DealerPreferences holds a dealer's explicit filters. A zero/empty field
// means "no preference" and counts as full credit when scoring, never as a
// disqualification.
type DealerPreferences struct {
	DealerID               uuid.UUID `json:"dealer_id" db:"dealer_id"`
	PreferredMakes         []string  `json:"preferred_makes" db:"preferred_makes"`
	PreferredModels        []string  `json:"preferred_models" db:"preferred_models"`
	MinYear                int       `json:"min_year" db:"min_year"`
	MaxYear                int       `json:"max_year" db:"max_year"`
	MinPrice               float64   `json:"min_price" db:"min_price"`
	MaxPrice               float64   `json:"max_price" db:"max_price"`
	MaxMileage             int       `json:"max_mileage" db:"max_mileage"`
	PreferredConditions    []string  `json:"preferred_conditions" db:"preferred_conditions"`
	PreferredFuelTypes     []string  `json:"preferred_fuel_types" db:"preferred_fuel_types"`
	PreferredTransmissions []string  `json:"preferred_transmissions" db:"preferred_transmissions"`
	EnabledSources         []string  `json:"enabled_sources" db:"enabled_sources"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// Validate rejects malformed filter combinations before they reach scoring.
func (p *DealerPreferences) Validate() error {
	if p.MinPrice > 0 && p.MaxPrice > 0 && p.MinPrice > p.MaxPrice {
		return ErrInvalidPriceRange
	}
	if p.MinYear > 0 && p.MaxYear > 0 && p.MinYear > p.MaxYear {
		return ErrInvalidYearRange
	}
	return nil
}

// LearnedRange tracks the running shape of saved listings for one dimension.
type LearnedRange struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Preferred float64 `json:"preferred"`
}

// LearnedPreferences is the per-dealer statistical profile accumulated from
// SAVE/SKIP interactions. Weights are exponentially smoothed frequencies,
// always in [0,1].
type LearnedPreferences struct {
	DealerID          uuid.UUID          `json:"dealer_id" db:"dealer_id"`
	Makes             map[string]float64 `json:"learned_makes" db:"learned_makes"`
	Models            map[string]float64 `json:"learned_models" db:"learned_models"`
	PriceRange        LearnedRange       `json:"learned_price_range" db:"learned_price_range"`
	MileageRange      LearnedRange       `json:"learned_mileage_range" db:"learned_mileage_range"`
	TotalInteractions int                `json:"total_interactions" db:"total_interactions"`
	TotalSaves        int                `json:"total_saves" db:"total_saves"`
	TotalSkips        int                `json:"total_skips" db:"total_skips"`
	LastUpdated       time.Time          `json:"last_updated" db:"last_updated"`
}

// NewLearnedPreferences returns an empty profile for a dealer.
func NewLearnedPreferences(dealerID uuid.UUID) *LearnedPreferences {
	return &LearnedPreferences{
		DealerID: dealerID,
		Makes:    make(map[string]float64),
		Models:   make(map[string]float64),
	}
}

// SaveRate is the dealer's own save fraction over decisive interactions.
// Returns 0.5 (neutral) until the dealer has made at least one decision.
func (l *LearnedPreferences) SaveRate() float64 {
	decisive := l.TotalSaves + l.TotalSkips
	if decisive == 0 {
		return 0.5
	}
	return float64(l.TotalSaves) / float64(decisive)
}
