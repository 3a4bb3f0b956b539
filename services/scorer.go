package services

import (
	"math"
	"strings"

	"dealmatch/identity"
	"dealmatch/models"
)

// Factor maxima. They sum to 100; inapplicable factors leave the
// denominator so missing listing data is never a penalty.
const (
	makePoints      = 20.0
	modelPoints     = 15.0
	yearPoints      = 15.0
	pricePoints     = 20.0
	mileagePoints   = 15.0
	conditionPoints = 10.0
	fuelPoints      = 5.0

	unknownMileageCredit = mileagePoints / 2
)

// ScoreListing computes the deterministic base score of a listing against a
// dealer's explicit filters. An unset filter always counts as full credit.
func ScoreListing(listing *models.VehicleListing, prefs *models.DealerPreferences) (int, models.ScoreBreakdown, error) {
	if err := prefs.Validate(); err != nil {
		return 0, models.ScoreBreakdown{}, err
	}

	b := models.ScoreBreakdown{MaxApplicable: 100}

	b.Make = setFactor(listing.Make, prefs.PreferredMakes, makePoints, identity.CanonicalMake)
	b.Model = setFactor(listing.Model, prefs.PreferredModels, modelPoints, identity.CanonicalModel)
	b.Year = yearFactor(listing.Year, prefs.MinYear, prefs.MaxYear)
	b.Price = priceFactor(listing.Price, prefs.MinPrice, prefs.MaxPrice)
	b.Mileage = mileageFactor(listing.Mileage, prefs.MaxMileage)

	var applicable bool
	b.Condition, applicable = flatFactor(listing.Condition, prefs.PreferredConditions, conditionPoints)
	if !applicable {
		b.MaxApplicable -= conditionPoints
	}
	b.Fuel, applicable = flatFactor(listing.FuelType, prefs.PreferredFuelTypes, fuelPoints)
	if !applicable {
		b.MaxApplicable -= fuelPoints
	}

	base := int(math.Round(100 * b.Sum() / b.MaxApplicable))
	if base < 0 {
		base = 0
	}
	if base > 100 {
		base = 100
	}
	return base, b, nil
}

// setFactor awards full points when the dealer has no preference or the
// listing value matches any preferred entry by case-insensitive substring.
func setFactor(value string, preferred []string, max float64, canon func(string) string) float64 {
	if len(preferred) == 0 {
		return max
	}
	v := canon(value)
	if v == "" {
		return 0
	}
	for _, p := range preferred {
		pc := canon(p)
		if pc == "" {
			continue
		}
		if strings.Contains(v, pc) || strings.Contains(pc, v) {
			return max
		}
	}
	return 0
}

// yearFactor awards nothing below min-year. With only a min-year the credit
// is flat; with a max-year too, credit scales toward min-year (older
// qualifying stock is where auction margin lives).
func yearFactor(year, minYear, maxYear int) float64 {
	if minYear <= 0 {
		return yearPoints
	}
	if year < minYear {
		return 0
	}
	if maxYear <= 0 || maxYear <= minYear {
		return yearPoints
	}
	pos := float64(year-minYear) / float64(maxYear-minYear)
	if pos > 1 {
		pos = 1
	}
	return yearPoints * (1 - pos)
}

// priceFactor awards nothing outside [min,max]; within range, cheaper finds
// score higher: 10 + 10*(1 - position).
func priceFactor(price, minPrice, maxPrice float64) float64 {
	if minPrice <= 0 && maxPrice <= 0 {
		return pricePoints
	}
	if price < minPrice {
		return 0
	}
	if maxPrice <= 0 {
		return pricePoints
	}
	if price > maxPrice {
		return 0
	}
	span := maxPrice - minPrice
	if span <= 0 {
		return pricePoints
	}
	pos := (price - minPrice) / span
	return 10 + 10*(1-pos)
}

// mileageFactor scales linearly down to 0 as mileage approaches the cap.
// Unknown mileage gets exactly half credit: genuine uncertainty, not a
// disqualification and not a free pass.
func mileageFactor(mileage *int, maxMileage int) float64 {
	if maxMileage <= 0 {
		return mileagePoints
	}
	if mileage == nil {
		return unknownMileageCredit
	}
	m := *mileage
	if m > maxMileage {
		return 0
	}
	return mileagePoints * (1 - float64(m)/float64(maxMileage))
}

// flatFactor awards flat credit on no-preference or set membership. When the
// dealer has a preference but the listing value is unknown the factor is
// inapplicable (second return false) and must leave the denominator.
func flatFactor(value string, preferred []string, max float64) (float64, bool) {
	if len(preferred) == 0 {
		return max, true
	}
	if strings.TrimSpace(value) == "" {
		return 0, false
	}
	for _, p := range preferred {
		if strings.EqualFold(strings.TrimSpace(p), strings.TrimSpace(value)) {
			return max, true
		}
	}
	return 0, true
}
