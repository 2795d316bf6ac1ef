// Package market turns "City, ST" strings into search targets.
package market

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"listing_harvester/filter"
)

var ErrBadMarket = errors.New("bad market")

var stateCodes = map[string]string{
	"alabama": "al", "alaska": "ak", "arizona": "az", "arkansas": "ar",
	"california": "ca", "colorado": "co", "connecticut": "ct",
	"delaware": "de", "florida": "fl", "georgia": "ga", "hawaii": "hi",
	"idaho": "id", "illinois": "il", "indiana": "in", "iowa": "ia",
	"kansas": "ks", "kentucky": "ky", "louisiana": "la", "maine": "me",
	"maryland": "md", "massachusetts": "ma", "michigan": "mi",
	"minnesota": "mn", "mississippi": "ms", "missouri": "mo",
	"montana": "mt", "nebraska": "ne", "nevada": "nv", "new hampshire": "nh",
	"new jersey": "nj", "new mexico": "nm", "new york": "ny",
	"north carolina": "nc", "north dakota": "nd", "ohio": "oh",
	"oklahoma": "ok", "oregon": "or", "pennsylvania": "pa",
	"rhode island": "ri", "south carolina": "sc", "south dakota": "sd",
	"tennessee": "tn", "texas": "tx", "utah": "ut", "vermont": "vt",
	"virginia": "va", "washington": "wa", "west virginia": "wv",
	"wisconsin": "wi", "wyoming": "wy",
	"district of columbia": "dc", "washington dc": "dc",
}

const distressedKeywords = "fixer,foreclosure,short+sale,reo,distressed"

// Market is one search target.
type Market struct {
	Name  string
	State string // lower-case two-letter code
	City  string // slug, e.g. paradise-valley
}

func (m Market) String() string {
	return m.Name
}

// Parse accepts "City, ST" or "City, State Name".
func Parse(s string) (Market, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Market{}, fmt.Errorf("%w: expected 'City, ST', got %q", ErrBadMarket, s)
	}
	city := slug(parts[0])
	if city == "" {
		return Market{}, fmt.Errorf("%w: empty city in %q", ErrBadMarket, s)
	}

	raw := strings.TrimSpace(parts[1])
	var st string
	if len(raw) == 2 {
		st = strings.ToLower(raw)
	} else {
		code, ok := stateCodes[strings.ToLower(strings.Join(strings.Fields(raw), " "))]
		if !ok {
			return Market{}, fmt.Errorf("%w: unrecognized state %q", ErrBadMarket, raw)
		}
		st = code
	}
	return Market{Name: strings.TrimSpace(s), State: st, City: city}, nil
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// Filters are the user's search criteria.
type Filters struct {
	MinPrice     int
	MaxPrice     int
	MinBeds      int
	MinSqft      int
	NoHOA        bool
	Distressed   bool
	PropertyType string
	Sort         string
}

func DefaultFilters() Filters {
	return Filters{
		MinPrice:     600000,
		MinBeds:      3,
		MinSqft:      1000,
		PropertyType: "house",
		Sort:         "newest",
	}
}

// Thresholds is the client-side mirror of the search filters.
func (f Filters) Thresholds() filter.Thresholds {
	return filter.Thresholds{
		MinPrice:          float64(f.MinPrice),
		MaxPrice:          float64(f.MaxPrice),
		MinBeds:           float64(f.MinBeds),
		MinSqft:           float64(f.MinSqft),
		RequireDistressed: f.Distressed,
		RequireNoHOA:      f.NoHOA,
	}
}

// BuildSearchURL renders the results URL for m under baseURL.
func BuildSearchURL(baseURL string, m Market, f Filters) string {
	propertyType := f.PropertyType
	if propertyType == "" {
		propertyType = "house"
	}
	sort := f.Sort
	if sort == "" {
		sort = "newest"
	}

	params := [][2]string{
		{"min_price", strconv.Itoa(f.MinPrice)},
		{"min_beds", strconv.Itoa(f.MinBeds)},
		{"min_sqft", strconv.Itoa(f.MinSqft)},
		{"property_type", propertyType},
		{"status", "active"},
		{"sort", sort},
	}
	if f.MaxPrice > 0 {
		params = append(params, [2]string{"max_price", strconv.Itoa(f.MaxPrice)})
	}
	if f.NoHOA {
		params = append(params, [2]string{"hoa", "no"})
	}
	if f.Distressed {
		params = append(params, [2]string{"keywords", distressedKeywords})
	}

	// url.Values sorts keys; the site's own links keep this order.
	query := make([]string, 0, len(params))
	for _, p := range params {
		query = append(query, url.QueryEscape(p[0])+"="+url.QueryEscape(p[1]))
	}
	return strings.TrimRight(baseURL, "/") + "/" + m.State + "/" + m.City + "?" + strings.Join(query, "&")
}
