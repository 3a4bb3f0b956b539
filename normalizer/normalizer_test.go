package normalizer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"dealmatch/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func TestParseLotPage_Basic(t *testing.T) {
	data := loadFixture(t, "auction_results.html")

	listings, err := ParseLotPage(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	first := listings[0]
	if first.SourceID != "LOT-88412" {
		t.Fatalf("expected lot LOT-88412, got %s", first.SourceID)
	}
	if first.Year != 2019 {
		t.Fatalf("expected year 2019, got %d", first.Year)
	}
	if first.Make != "BMW" {
		t.Fatalf("expected make BMW, got %s", first.Make)
	}
	if first.Model != "3 Series 320d M Sport" {
		t.Fatalf("unexpected model %s", first.Model)
	}
	if first.URL != "https://auctions.example.co.uk/lots/88412" {
		t.Fatalf("unexpected URL %s", first.URL)
	}
	if first.FuelType != "diesel" {
		t.Fatalf("expected diesel, got %s", first.FuelType)
	}

	second := listings[1]
	if second.Make != "Land Rover" {
		t.Fatalf("expected two-word make Land Rover, got %s", second.Make)
	}
	if second.Model != "Discovery Sport" {
		t.Fatalf("unexpected model %s", second.Model)
	}
}

func TestNormalize_Basic(t *testing.T) {
	data := loadFixture(t, "auction_results.html")
	raws, err := ParseLotPage(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	listing, err := Normalize(&raws[0], "auction_house_a")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if listing.Price != 18450 {
		t.Fatalf("expected price 18450, got %.0f", listing.Price)
	}
	if listing.Currency != "GBP" {
		t.Fatalf("expected GBP, got %s", listing.Currency)
	}
	if listing.Mileage == nil || *listing.Mileage != 42000 {
		t.Fatalf("expected mileage 42000, got %v", listing.Mileage)
	}
	if listing.Source != "auction_house_a" {
		t.Fatalf("unexpected source %s", listing.Source)
	}
}

func TestNormalize_UnknownMileageStaysNil(t *testing.T) {
	data := loadFixture(t, "auction_results.html")
	raws, err := ParseLotPage(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	listing, err := Normalize(&raws[1], "auction_house_a")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if listing.Mileage != nil {
		t.Fatalf("expected nil mileage for TBC, got %d", *listing.Mileage)
	}
	if listing.Condition != "" {
		t.Fatalf("expected empty condition, got %s", listing.Condition)
	}
}

func sampleRaw() models.RawListing {
	return models.RawListing{
		SourceID:  "LOT-1",
		Make:      "BMW",
		Model:     "3 Series",
		Year:      2019,
		PriceText: "£18,000",
	}
}

func TestNormalize_MissingSourceIDGetsFingerprint(t *testing.T) {
	raw := sampleRaw()
	raw.SourceID = ""
	listing, err := Normalize(&raw, "auction_house_a")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if listing.SourceID == "" {
		t.Fatalf("expected derived source id")
	}
}

func TestNormalize_RejectsEmptyVehicle(t *testing.T) {
	raw := sampleRaw()
	raw.Make = ""
	raw.Model = ""
	if _, err := Normalize(&raw, "auction_house_a"); err == nil {
		t.Fatalf("expected error for listing without make or model")
	}
}
