package normalizer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"dealmatch/identity"
	"dealmatch/models"
)

// Makes whose names span two tokens in listing titles.
var twoWordMakes = map[string]bool{
	"land":  true, // land rover
	"alfa":  true, // alfa romeo
	"aston": true, // aston martin
}

// ParseLotPage extracts raw listings from an auction results page. The
// scraping side hands over fetched HTML; no network I/O happens here.
func ParseLotPage(r io.Reader) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var listings []models.RawListing
	doc.Find(".lot-card").Each(func(_ int, card *goquery.Selection) {
		raw := models.RawListing{
			SourceID:     card.AttrOr("data-lot-id", ""),
			Title:        strings.TrimSpace(card.Find(".lot-title").Text()),
			PriceText:    strings.TrimSpace(card.Find(".lot-price").Text()),
			MileageText:  strings.TrimSpace(card.Find(".lot-mileage").Text()),
			Condition:    strings.ToLower(strings.TrimSpace(card.Find(".lot-condition").Text())),
			FuelType:     strings.ToLower(strings.TrimSpace(card.Find(".lot-fuel").Text())),
			Transmission: strings.ToLower(strings.TrimSpace(card.Find(".lot-transmission").Text())),
		}
		if href, ok := card.Find("a.lot-link").Attr("href"); ok {
			raw.URL = href
		}

		raw.Year, raw.Make, raw.Model = splitTitle(raw.Title)
		if raw.Title == "" && raw.SourceID == "" {
			return // empty card, skip
		}
		listings = append(listings, raw)
	})

	return listings, nil
}

// Normalize turns a raw listing into the canonical immutable record. A
// missing mileage stays nil rather than zero: downstream scoring treats the
// two very differently.
func Normalize(raw *models.RawListing, source string) (*models.VehicleListing, error) {
	if raw.Make == "" && raw.Model == "" {
		return nil, fmt.Errorf("listing %q has no make or model", raw.SourceID)
	}

	sourceID := raw.SourceID
	if sourceID == "" {
		sourceID = identity.Fingerprint(raw)
	}

	now := time.Now().UTC()
	listing := &models.VehicleListing{
		ID:           uuid.New(),
		Source:       source,
		SourceID:     sourceID,
		URL:          raw.URL,
		Make:         strings.TrimSpace(raw.Make),
		Model:        strings.TrimSpace(raw.Model),
		Year:         raw.Year,
		Price:        float64(parseDigits(raw.PriceText)),
		Currency:     "GBP",
		Condition:    raw.Condition,
		FuelType:     raw.FuelType,
		Transmission: raw.Transmission,
		ScrapedAt:    now,
		CreatedAt:    now,
	}

	if m := parseMileage(raw.MileageText); m != nil {
		listing.Mileage = m
	}
	return listing, nil
}

// splitTitle pulls year, make, and model out of a "2019 BMW 3 Series"
// style title. Two-word makes keep both tokens.
func splitTitle(title string) (int, string, string) {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return 0, "", ""
	}

	year := 0
	if y, err := strconv.Atoi(fields[0]); err == nil && y >= 1900 && y <= 2100 {
		year = y
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return year, "", ""
	}

	makeTokens := 1
	if twoWordMakes[strings.ToLower(fields[0])] && len(fields) > 1 {
		makeTokens = 2
	}
	vehicleMake := strings.Join(fields[:makeTokens], " ")
	model := strings.Join(fields[makeTokens:], " ")
	return year, vehicleMake, model
}

// parseDigits folds the digits out of "£18,450" style text.
func parseDigits(s string) int {
	var result int
	for _, c := range s {
		if c >= '0' && c <= '9' {
			result = result*10 + int(c-'0')
		}
	}
	return result
}

// parseMileage returns nil for missing or non-numeric mileage text ("TBC",
// "Unknown"), since the lot card genuinely may not state it.
func parseMileage(s string) *int {
	if !strings.ContainsAny(s, "0123456789") {
		return nil
	}
	m := parseDigits(s)
	return &m
}
