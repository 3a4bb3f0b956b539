package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"dealmatch/models"
)

func testListing() *models.VehicleListing {
	mileage := 40000
	return &models.VehicleListing{
		ID:        uuid.New(),
		Source:    "auction_house_a",
		SourceID:  "LOT-1001",
		Make:      "BMW",
		Model:     "3 Series",
		Year:      2019,
		Price:     18000,
		Currency:  "GBP",
		Mileage:   &mileage,
		Condition: models.ConditionGood,
		FuelType:  models.FuelDiesel,
	}
}

func TestScoreListing_NoFiltersIsFullCredit(t *testing.T) {
	prefs := &models.DealerPreferences{DealerID: uuid.New()}
	score, breakdown, err := ScoreListing(testListing(), prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 100 {
		t.Fatalf("expected 100 with no filters, got %d", score)
	}
	if breakdown.MaxApplicable != 100 {
		t.Fatalf("expected max applicable 100, got %v", breakdown.MaxApplicable)
	}
	if breakdown.Sum() != 100 {
		t.Fatalf("expected breakdown sum 100, got %v", breakdown.Sum())
	}
}

func TestScoreListing_TypicalDealerScenario(t *testing.T) {
	prefs := &models.DealerPreferences{
		DealerID:       uuid.New(),
		PreferredMakes: []string{"BMW"},
		MinYear:        2018,
		MaxPrice:       20000,
		MaxMileage:     60000,
	}
	score, breakdown, err := ScoreListing(testListing(), prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score < 70 || score > 90 {
		t.Fatalf("expected score in [70,90], got %d", score)
	}
	if breakdown.Make != 20 {
		t.Fatalf("expected full make credit, got %v", breakdown.Make)
	}
	if breakdown.Year != 15 {
		t.Fatalf("expected full year credit with no max year, got %v", breakdown.Year)
	}
	if breakdown.Mileage < 4.99 || breakdown.Mileage > 5.01 {
		t.Fatalf("expected mileage credit ~5 at 40000/60000, got %v", breakdown.Mileage)
	}
}

func TestScoreListing_BelowMinYearGetsNoYearCredit(t *testing.T) {
	listing := testListing()
	listing.Year = 2015
	prefs := &models.DealerPreferences{DealerID: uuid.New(), MinYear: 2018}

	_, breakdown, err := ScoreListing(listing, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if breakdown.Year != 0 {
		t.Fatalf("expected 0 year credit below min year, got %v", breakdown.Year)
	}
}

func TestScoreListing_YearCreditScalesTowardMinYear(t *testing.T) {
	prefs := &models.DealerPreferences{DealerID: uuid.New(), MinYear: 2016, MaxYear: 2020}

	old := testListing()
	old.Year = 2016
	newer := testListing()
	newer.Year = 2020

	_, bOld, err := ScoreListing(old, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	_, bNew, err := ScoreListing(newer, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if bOld.Year != 15 {
		t.Fatalf("expected full credit at min year, got %v", bOld.Year)
	}
	if bNew.Year != 0 {
		t.Fatalf("expected 0 credit at max year, got %v", bNew.Year)
	}
}

func TestScoreListing_PriceOutsideRangeGetsNothing(t *testing.T) {
	listing := testListing()
	listing.Price = 25000
	prefs := &models.DealerPreferences{DealerID: uuid.New(), MaxPrice: 20000}

	_, breakdown, err := ScoreListing(listing, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if breakdown.Price != 0 {
		t.Fatalf("expected 0 price credit above max price, got %v", breakdown.Price)
	}
}

func TestScoreListing_CheaperScoresHigherWithinBudget(t *testing.T) {
	prefs := &models.DealerPreferences{DealerID: uuid.New(), MinPrice: 10000, MaxPrice: 20000}

	cheap := testListing()
	cheap.Price = 11000
	dear := testListing()
	dear.Price = 19000

	_, bCheap, err := ScoreListing(cheap, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	_, bDear, err := ScoreListing(dear, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if bCheap.Price <= bDear.Price {
		t.Fatalf("expected cheaper listing to outscore: %v vs %v", bCheap.Price, bDear.Price)
	}
}

func TestScoreListing_MileageMonotone(t *testing.T) {
	prefs := &models.DealerPreferences{DealerID: uuid.New(), MaxMileage: 100000}

	prev := -1.0
	for _, m := range []int{90000, 60000, 30000, 10000} {
		listing := testListing()
		mileage := m
		listing.Mileage = &mileage
		_, breakdown, err := ScoreListing(listing, prefs)
		if err != nil {
			t.Fatalf("score failed at %d miles: %v", m, err)
		}
		if breakdown.Mileage <= prev {
			t.Fatalf("mileage credit not increasing: %v at %d miles after %v", breakdown.Mileage, m, prev)
		}
		prev = breakdown.Mileage
	}
}

func TestScoreListing_UnknownMileageGetsHalfCredit(t *testing.T) {
	listing := testListing()
	listing.Mileage = nil
	prefs := &models.DealerPreferences{DealerID: uuid.New(), MaxMileage: 60000}

	_, breakdown, err := ScoreListing(listing, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if breakdown.Mileage != 7.5 {
		t.Fatalf("expected exactly 7.5 for unknown mileage, got %v", breakdown.Mileage)
	}
}

func TestScoreListing_UnknownConditionLeavesDenominator(t *testing.T) {
	listing := testListing()
	listing.Condition = ""
	listing.FuelType = ""
	prefs := &models.DealerPreferences{
		DealerID:            uuid.New(),
		PreferredConditions: []string{models.ConditionGood},
		PreferredFuelTypes:  []string{models.FuelDiesel},
	}

	score, breakdown, err := ScoreListing(listing, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if breakdown.MaxApplicable != 85 {
		t.Fatalf("expected max applicable 85, got %v", breakdown.MaxApplicable)
	}
	if score != 100 {
		t.Fatalf("expected 100 when every applicable factor is full, got %d", score)
	}
}

func TestScoreListing_MakeMatchIsCaseInsensitive(t *testing.T) {
	listing := testListing()
	listing.Make = "bmw"
	prefs := &models.DealerPreferences{DealerID: uuid.New(), PreferredMakes: []string{"BMW"}}

	_, breakdown, err := ScoreListing(listing, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if breakdown.Make != 20 {
		t.Fatalf("expected full make credit, got %v", breakdown.Make)
	}
}

func TestScoreListing_MakeAliasesResolve(t *testing.T) {
	listing := testListing()
	listing.Make = "VW"
	prefs := &models.DealerPreferences{DealerID: uuid.New(), PreferredMakes: []string{"Volkswagen"}}

	_, breakdown, err := ScoreListing(listing, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if breakdown.Make != 20 {
		t.Fatalf("expected VW to match Volkswagen, got %v", breakdown.Make)
	}
}

func TestScoreListing_RejectsInvertedRanges(t *testing.T) {
	prefs := &models.DealerPreferences{DealerID: uuid.New(), MinPrice: 20000, MaxPrice: 10000}
	if _, _, err := ScoreListing(testListing(), prefs); !errors.Is(err, models.ErrInvalidPriceRange) {
		t.Fatalf("expected ErrInvalidPriceRange, got %v", err)
	}

	prefs = &models.DealerPreferences{DealerID: uuid.New(), MinYear: 2022, MaxYear: 2018}
	if _, _, err := ScoreListing(testListing(), prefs); !errors.Is(err, models.ErrInvalidYearRange) {
		t.Fatalf("expected ErrInvalidYearRange, got %v", err)
	}
}

func TestScoreListing_Deterministic(t *testing.T) {
	prefs := &models.DealerPreferences{
		DealerID:       uuid.New(),
		PreferredMakes: []string{"BMW", "Audi"},
		MinYear:        2016,
		MaxYear:        2022,
		MinPrice:       5000,
		MaxPrice:       25000,
		MaxMileage:     80000,
	}
	listing := testListing()

	first, fb, err := ScoreListing(listing, prefs)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		score, b, err := ScoreListing(listing, prefs)
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if score != first || b != fb {
			t.Fatalf("score not deterministic: run %d got %d, want %d", i, score, first)
		}
	}
}
