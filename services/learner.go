package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dealmatch/identity"
	"dealmatch/models"
)

// Smoothing constants. Weight updates are exponentially smoothed
// frequencies, never raw counts, so every weight stays in [0,1]. Price and
// mileage averages use a gentler constant since money amounts are noisier
// than brand identity.
const (
	weightAlpha = 0.3
	rangeAlpha  = 0.2

	// Boost term budgets; the total is clamped to ±maxBoost so
	// personalization refines ranking without overriding a hard
	// disqualification in the base score.
	makeBoostMax  = 12.0
	modelBoostMax = 8.0
	priceBoostMax = 5.0
	maxBoost      = 25

	// Below this many decisive interactions the profile is noise and the
	// boost is exactly 0.
	minDecisiveForBoost = 3
)

// LearnerStore is the persistence the learner needs. UpdateLearned must
// apply fn as a single atomic read-modify-write per dealer (the Postgres
// implementation holds a row lock for the duration of fn).
type LearnerStore interface {
	GetLearnedPreferences(ctx context.Context, dealerID uuid.UUID) (*models.LearnedPreferences, error)
	UpdateLearnedPreferences(ctx context.Context, dealerID uuid.UUID, fn func(*models.LearnedPreferences) error) error
	GetListingForMatch(ctx context.Context, matchID uuid.UUID) (*models.VehicleListing, error)
}

// Learner maintains per-dealer learned profiles and turns them into a
// signed adjustment on top of the base score.
type Learner struct {
	store LearnerStore
	log   zerolog.Logger
}

// NewLearner creates a Learner.
func NewLearner(store LearnerStore, log zerolog.Logger) *Learner {
	return &Learner{store: store, log: log.With().Str("component", "learner").Logger()}
}

// Boost computes the personalization adjustment for a listing. A dealer with
// no profile, or too thin a profile, gets exactly 0 — never an error.
func (l *Learner) Boost(ctx context.Context, dealerID uuid.UUID, listing *models.VehicleListing) (int, error) {
	learned, err := l.store.GetLearnedPreferences(ctx, dealerID)
	if err != nil {
		return 0, fmt.Errorf("get learned preferences: %w", err)
	}
	return BoostFromProfile(learned, listing), nil
}

// BoostFromProfile is the pure boost computation, separated so scoring stays
// stateless and parallelizable.
func BoostFromProfile(learned *models.LearnedPreferences, listing *models.VehicleListing) int {
	if learned == nil || learned.TotalSaves+learned.TotalSkips < minDecisiveForBoost {
		return 0
	}

	boost := MakeSignal(learned, listing.Make)*makeBoostMax +
		ModelSignal(learned, listing.Model)*modelBoostMax +
		PriceSignal(learned, listing.Price)*priceBoostMax

	rounded := int(math.Round(boost))
	if rounded > maxBoost {
		return maxBoost
	}
	if rounded < -maxBoost {
		return -maxBoost
	}
	return rounded
}

// MakeSignal returns the make contribution in [-1,1]: positive when the
// dealer saves this make at a rate above their own average save rate,
// negative below, zero when the make has never been seen.
func MakeSignal(learned *models.LearnedPreferences, makeName string) float64 {
	return weightSignal(learned, learned.Makes, identity.CanonicalMake(makeName))
}

// ModelSignal is MakeSignal for models.
func ModelSignal(learned *models.LearnedPreferences, model string) float64 {
	return weightSignal(learned, learned.Models, identity.CanonicalModel(model))
}

func weightSignal(learned *models.LearnedPreferences, weights map[string]float64, key string) float64 {
	if key == "" {
		return 0
	}
	w, ok := weights[key]
	if !ok {
		return 0
	}
	rate := learned.SaveRate()
	switch {
	case rate >= 1:
		rate = 0.99 // a dealer who saves everything still shouldn't be flattered by every make
	case rate <= 0:
		rate = 0.01
	}
	if w >= rate {
		return (w - rate) / (1 - rate)
	}
	return (w - rate) / rate
}

// PriceSignal returns the price-proximity contribution in [0,1], peaking at
// the running average price of the dealer's saved listings.
func PriceSignal(learned *models.LearnedPreferences, price float64) float64 {
	preferred := learned.PriceRange.Preferred
	if preferred <= 0 || price <= 0 {
		return 0
	}
	distance := math.Abs(price-preferred) / preferred
	if distance >= 1 {
		return 0
	}
	return 1 - distance
}

// Observe applies one interaction to the dealer's learned profile. The
// update is atomic per dealer; cross-dealer updates need no coordination.
// Replaying the same event compounds on purpose — the pipeline guarantees
// each interaction record is consumed exactly once, not the learner.
func (l *Learner) Observe(ctx context.Context, dealerID uuid.UUID, interaction *models.Interaction) error {
	if !interaction.Type.Valid() {
		return models.ErrInvalidInteractionType
	}

	var listing *models.VehicleListing
	if interaction.Type.Decisive() && interaction.MatchID != nil {
		var err error
		listing, err = l.store.GetListingForMatch(ctx, *interaction.MatchID)
		if err != nil {
			return fmt.Errorf("get listing for match: %w", err)
		}
	}

	err := l.store.UpdateLearnedPreferences(ctx, dealerID, func(learned *models.LearnedPreferences) error {
		ApplyInteraction(learned, interaction.Type, listing, interaction.CreatedAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update learned preferences: %w", err)
	}

	l.log.Debug().
		Str("dealer_id", dealerID.String()).
		Str("type", string(interaction.Type)).
		Msg("interaction observed")
	return nil
}

// ApplyInteraction mutates a learned profile in place. Exposed as a pure
// transition so the storage layer can run it inside its own transaction.
func ApplyInteraction(learned *models.LearnedPreferences, typ models.InteractionType, listing *models.VehicleListing, at time.Time) {
	learned.TotalInteractions++
	if at.IsZero() {
		at = time.Now().UTC()
	}
	learned.LastUpdated = at

	if listing == nil || !typ.Decisive() {
		return
	}

	makeKey := identity.CanonicalMake(listing.Make)
	modelKey := identity.CanonicalModel(listing.Model)

	switch typ {
	case models.InteractionSave:
		learned.TotalSaves++
		smoothToward(learned.Makes, makeKey, 1)
		smoothToward(learned.Models, modelKey, 1)
		updateRange(&learned.PriceRange, listing.Price)
		if listing.Mileage != nil {
			updateRange(&learned.MileageRange, float64(*listing.Mileage))
		}
	case models.InteractionSkip:
		learned.TotalSkips++
		smoothToward(learned.Makes, makeKey, 0)
		smoothToward(learned.Models, modelKey, 0)
	}
}

// smoothToward moves a weight toward target by the smoothing constant:
// new = old*(1-α) + target*α. The result never leaves [0,1].
func smoothToward(weights map[string]float64, key string, target float64) {
	if key == "" {
		return
	}
	old := weights[key]
	w := old*(1-weightAlpha) + target*weightAlpha
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	weights[key] = w
}

// updateRange folds a saved listing's value into the running preferred
// average and widens observed bounds. Skipped listings never touch ranges.
func updateRange(r *models.LearnedRange, value float64) {
	if value <= 0 {
		return
	}
	if r.Preferred == 0 {
		r.Preferred = value
		r.Min = value
		r.Max = value
		return
	}
	r.Preferred = r.Preferred*(1-rangeAlpha) + value*rangeAlpha
	if value < r.Min {
		r.Min = value
	}
	if value > r.Max {
		r.Max = value
	}
}
