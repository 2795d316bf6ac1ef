package filter

import (
	"strings"

	"listing_harvester/models"
)

var distressedKeywords = []string{
	"foreclosure", "pre-foreclosure", "auction", "bank owned", "reo", "short sale", "fixer", "distressed",
}

// Thresholds are the search minimums applied to candidates. Unknown values
// pass every minimum.
type Thresholds struct {
	MinPrice          float64
	MaxPrice          float64
	MinBeds           float64
	MinSqft           float64
	RequireDistressed bool
	RequireNoHOA      bool
}

// PassesMin reports whether v meets minimum. Unknown passes.
func PassesMin(v *float64, minimum float64) bool {
	if v == nil || minimum <= 0 {
		return true
	}
	return *v >= minimum
}

func passesMax(v *float64, maximum float64) bool {
	if v == nil || maximum <= 0 {
		return true
	}
	return *v <= maximum
}

// Pass applies the numeric minimums, then the text predicates when the
// candidate carries card text.
func (t Thresholds) Pass(c *models.RawCandidate) bool {
	if !PassesMin(c.Price, t.MinPrice) || !passesMax(c.Price, t.MaxPrice) {
		return false
	}
	if !PassesMin(c.Beds, t.MinBeds) || !PassesMin(c.Sqft, t.MinSqft) {
		return false
	}
	if c.Text == "" {
		return true
	}
	if t.RequireDistressed && !LooksDistressed(c.Text) {
		return false
	}
	if t.RequireNoHOA && !HasNoHOA(c.Text) {
		return false
	}
	return true
}

func LooksDistressed(text string) bool {
	t := strings.ToLower(text)
	for _, k := range distressedKeywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

// HasNoHOA reports whether the text never mentions an HOA.
func HasNoHOA(text string) bool {
	return !strings.Contains(strings.ToLower(text), "hoa")
}
