package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"dealmatch/identity"
	"dealmatch/models"
)

// Explain renders a match's score into ordered, user-facing statements.
// Pure and deterministic: identical inputs always produce identical output,
// since these strings are shown to dealers verbatim and may be re-rendered.
func Explain(match *models.VehicleMatch, listing *models.VehicleListing, learned *models.LearnedPreferences) []string {
	lines := []string{
		fmt.Sprintf("Base match score: %d/100 against your saved filters.", match.BaseScore),
	}

	lines = append(lines, breakdownLines(match.Breakdown, listing)...)

	switch {
	case match.Boost > 0:
		lines = append(lines, fmt.Sprintf("Personal boost: +%d based on what you've saved before.", match.Boost))
		lines = append(lines, boostSignalLines(listing, learned)...)
	case match.Boost < 0:
		lines = append(lines, fmt.Sprintf("Adjusted by %d: this vehicle is atypical for what you usually save.", match.Boost))
	default:
		lines = append(lines, "No personal adjustment yet - save or skip a few vehicles and we'll start tailoring your matches.")
	}

	lines = append(lines, fmt.Sprintf("Final score: %d/100.", match.DisplayScore()))
	return lines
}

func breakdownLines(b models.ScoreBreakdown, listing *models.VehicleListing) []string {
	var lines []string
	if b.Make >= makePoints {
		lines = append(lines, fmt.Sprintf("%s matches your preferred makes.", titleWord(listing.Make)))
	}
	if b.Price > 0 && b.Price < pricePoints {
		lines = append(lines, fmt.Sprintf("Priced at %s%.0f, inside your budget.", currencySymbol(listing.Currency), listing.Price))
	}
	if b.Mileage == unknownMileageCredit && listing.Mileage == nil {
		lines = append(lines, "Mileage wasn't listed, so we've scored it cautiously.")
	}
	return lines
}

// boostSignalLines lists the learned signals behind a positive boost in
// descending order of contribution. Weights are phrased as save
// percentages, never as bare probabilities.
func boostSignalLines(listing *models.VehicleListing, learned *models.LearnedPreferences) []string {
	if learned == nil {
		return nil
	}

	type signal struct {
		contribution float64
		line         string
	}
	var signals []signal

	if s := MakeSignal(learned, listing.Make); s > 0 {
		signals = append(signals, signal{
			contribution: s * makeBoostMax,
			line: fmt.Sprintf("You save %s listings %.0f%% of the time.",
				titleWord(listing.Make), weightPercent(learned.Makes, identity.CanonicalMake(listing.Make))),
		})
	}
	if s := ModelSignal(learned, listing.Model); s > 0 {
		signals = append(signals, signal{
			contribution: s * modelBoostMax,
			line: fmt.Sprintf("The %s is one of your most-saved models (%.0f%% preference).",
				titleWord(listing.Model), weightPercent(learned.Models, identity.CanonicalModel(listing.Model))),
		})
	}
	if s := PriceSignal(learned, listing.Price); s > 0 && learned.PriceRange.Preferred > 0 {
		signals = append(signals, signal{
			contribution: s * priceBoostMax,
			line: fmt.Sprintf("Priced near the %s%.0f you typically save at.",
				currencySymbol(listing.Currency), math.Round(learned.PriceRange.Preferred)),
		})
	}

	sort.SliceStable(signals, func(i, j int) bool { return signals[i].contribution > signals[j].contribution })

	lines := make([]string, 0, len(signals))
	for _, s := range signals {
		lines = append(lines, s.line)
	}
	return lines
}

func weightPercent(weights map[string]float64, canonicalKey string) float64 {
	return weights[canonicalKey] * 100
}

func titleWord(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "This vehicle"
	}
	if len(s) <= 3 {
		return strings.ToUpper(s) // BMW, VW, MG
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func currencySymbol(currency string) string {
	switch strings.ToUpper(currency) {
	case "USD":
		return "$"
	case "EUR":
		return "€"
	default:
		return "£"
	}
}
