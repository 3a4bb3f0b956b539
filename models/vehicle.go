package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VehicleListing is a canonical auction listing. Immutable once normalized;
// identity is (source, source_listing_id).
type VehicleListing struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Source       string          `json:"source" db:"source"` // auction_house_a, dealer_bid, etc.
	SourceID     string          `json:"source_id" db:"source_id"`
	URL          string          `json:"url" db:"url"`
	Make         string          `json:"make" db:"make"`
	Model        string          `json:"model" db:"model"`
	Year         int             `json:"year" db:"year"`
	Price        float64         `json:"price" db:"price"`
	Currency     string          `json:"currency" db:"currency"`
	Mileage      *int            `json:"mileage" db:"mileage"` // nil when the lot card omits it
	Condition    string          `json:"condition" db:"condition"`
	FuelType     string          `json:"fuel_type" db:"fuel_type"`
	Transmission string          `json:"transmission" db:"transmission"`
	RawData      json.RawMessage `json:"raw_data" db:"raw_data"`
	ScrapedAt    time.Time       `json:"scraped_at" db:"scraped_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// RawListing is the unnormalized shape handed over by the scraping side.
type RawListing struct {
	SourceID     string
	URL          string
	Title        string
	Make         string
	Model        string
	Year         int
	PriceText    string
	MileageText  string
	Condition    string
	FuelType     string
	Transmission string
}

// ConditionAssessment is the verdict produced by the external classifier.
type ConditionAssessment struct {
	ListingID      uuid.UUID `json:"listing_id" db:"listing_id"`
	Verdict        string    `json:"verdict" db:"verdict"` // buy, caution, avoid
	RiskScore      float64   `json:"risk_score" db:"risk_score"`
	ProfitEstimate float64   `json:"profit_estimate" db:"profit_estimate"`
	Notes          string    `json:"notes" db:"notes"`
	AssessedAt     time.Time `json:"assessed_at" db:"assessed_at"`
}

// Condition values
const (
	ConditionExcellent = "excellent"
	ConditionGood      = "good"
	ConditionFair      = "fair"
	ConditionPoor      = "poor"
	ConditionSalvage   = "salvage"
)

// Fuel types
const (
	FuelPetrol   = "petrol"
	FuelDiesel   = "diesel"
	FuelHybrid   = "hybrid"
	FuelElectric = "electric"
)

// Verdicts
const (
	VerdictBuy     = "buy"
	VerdictCaution = "caution"
	VerdictAvoid   = "avoid"
)
