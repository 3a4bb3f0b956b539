package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"dealmatch/models"
)

var (
	// Free-text makes arrive from scrapers in whatever casing the auction
	// house uses. Learned-weight maps are keyed by the canonical form so the
	// same make never fragments across casings.
	makeAliases = map[string]string{
		"vw":            "volkswagen",
		"volks wagen":   "volkswagen",
		"merc":          "mercedes-benz",
		"mercedes":      "mercedes-benz",
		"mercedes benz": "mercedes-benz",
		"beemer":        "bmw",
		"landrover":     "land rover",
		"range rover":   "land rover",
		"alfa":          "alfa romeo",
		"chevy":         "chevrolet",
		"citreon":       "citroen", // common listing typo
	}
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s\-]`)
)

// CanonicalMake folds a free-text make to its canonical lookup key.
func CanonicalMake(make string) string {
	n := normalize(make)
	if alias, ok := makeAliases[n]; ok {
		return alias
	}
	return n
}

// CanonicalModel folds a free-text model to its canonical lookup key.
func CanonicalModel(model string) string {
	return normalize(model)
}

// Fingerprint identifies a listing by its source identity. Two scrapes of
// the same lot always produce the same fingerprint.
func Fingerprint(listing *models.RawListing) string {
	input := fmt.Sprintf("%s|%s|%s|%d",
		normalize(listing.SourceID),
		CanonicalMake(listing.Make),
		CanonicalModel(listing.Model),
		listing.Year,
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnumRegex.ReplaceAllString(s, " ")
	s = multiSpaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
