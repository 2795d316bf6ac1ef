package extract

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/titanous/json5"

	"listing_harvester/coerce"
	"listing_harvester/filter"
	"listing_harvester/models"
)

var antiJSONPrefixes = []string{")]}',", "for(;;);", ")]}'", "while(1);"}

var (
	addressKeys = []string{"address", "streetAddress", "street_address", "line1", "addressLine1", "address1"}
	cityKeys    = []string{"city", "addressCity", "addressLocality"}
	stateKeys   = []string{"state", "addressState", "stateCode", "addressRegion"}
	zipKeys     = []string{"zip", "zipcode", "postalCode", "zip_code"}
	bedKeys     = []string{"beds", "bedrooms", "num_bedrooms", "bedCount"}
	bathKeys    = []string{"baths", "bathrooms", "fullBaths", "bathCount"}
	sqftKeys    = []string{"sqft", "livingArea", "squareFeet", "square_feet", "living_area"}
	hrefKeys    = []string{"url", "detailUrl", "permalink", "canonicalUrl", "seoUrl", "listingUrl"}
	priceKeys   = []string{"listPrice", "price", "displayPrice", "list_price", "listPriceCents", "priceCents", "list_price_cents", "price_cents"}
	centsKeys   = map[string]bool{"listPriceCents": true, "priceCents": true, "list_price_cents": true, "price_cents": true}
)

// ParseBlob decodes a response body or script payload. Markup is rejected,
// anti-JSON shields are stripped and decoding starts at the first brace or
// bracket. Strict JSON is tried first, then JSON5 for JS object literals.
func ParseBlob(text string) (any, bool) {
	low := strings.ToLower(text)
	if strings.Contains(low, "<html") || strings.Contains(low, "<!doctype") {
		return nil, false
	}

	t := strings.TrimSpace(text)
	for _, prefix := range antiJSONPrefixes {
		if strings.HasPrefix(t, prefix) {
			t = strings.TrimSpace(t[len(prefix):])
		}
	}
	start := strings.IndexAny(t, "{[")
	if start < 0 {
		return nil, false
	}
	t = t[start:]

	var data any
	if err := json.Unmarshal([]byte(t), &data); err == nil {
		return data, true
	}
	if end := balancedEnd(t, 0); end > 0 {
		t = t[:end]
		if err := json.Unmarshal([]byte(t), &data); err == nil {
			return data, true
		}
	}
	if err := json5.Unmarshal([]byte(t), &data); err == nil {
		return data, true
	}
	return nil, false
}

// balancedEnd returns the index just past the bracket that closes the one
// at start, skipping over string literals. It returns -1 when the input
// ends first.
func balancedEnd(s string, start int) int {
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// Walk visits every object in the tree, parents before children. Object
// members are visited in key order so harvests are reproducible.
func Walk(data any, fn func(map[string]any)) {
	switch v := data.(type) {
	case map[string]any:
		fn(v)
		for _, k := range slices.Sorted(maps.Keys(v)) {
			Walk(v[k], fn)
		}
	case []any:
		for _, child := range v {
			Walk(child, fn)
		}
	}
}

// firstSet returns the first truthy value among keys.
func firstSet(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && coerce.Truthy(v) {
			return v
		}
	}
	return nil
}

func firstText(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := coerce.Text(m[k]); s != "" {
			return s
		}
	}
	return ""
}

type location struct {
	address, city, state, zip string
}

// addressFrom reads an address from the node itself or from a nested
// address-like object. It requires a street, or a city and state.
func addressFrom(node map[string]any) (location, bool) {
	holder := node
	if nested, ok := firstSet(node, "address", "location", "propertyAddress", "address_obj").(map[string]any); ok {
		holder = nested
	}
	loc := location{
		address: firstText(holder, addressKeys...),
		city:    firstText(holder, cityKeys...),
		state:   firstText(holder, stateKeys...),
		zip:     firstText(holder, zipKeys...),
	}
	if loc.address != "" || (loc.city != "" && loc.state != "") {
		return loc, true
	}
	return location{}, false
}

// priceFrom picks the first price-shaped key. Values under a cents key are
// converted to dollars, and so is a numeric dollar value that a cents
// sibling repeats exactly.
func priceFrom(node map[string]any) (float64, bool) {
	for _, k := range priceKeys {
		v, ok := node[k]
		if !ok || !coerce.Truthy(v) {
			continue
		}
		if centsKeys[k] {
			return coerce.Cents(v)
		}
		if m, ok := v.(map[string]any); ok {
			return coerce.Number(firstSet(m, "value", "amount"))
		}
		price, ok := coerce.Number(v)
		if ok && echoedAsCents(node, v, price) {
			return price / 100, true
		}
		return price, ok
	}
	if offers, ok := node["offers"].(map[string]any); ok {
		return coerce.Number(offers["price"])
	}
	return 0, false
}

func echoedAsCents(node map[string]any, raw any, price float64) bool {
	if _, isText := raw.(string); isText {
		return false
	}
	for k := range centsKeys {
		sibling, ok := node[k]
		if !ok {
			continue
		}
		if _, isText := sibling.(string); isText {
			continue
		}
		if cents, ok := coerce.Number(sibling); ok && cents == price {
			return true
		}
	}
	return false
}

type blobKey struct {
	address string
	price   float64
	zip     string
}

// Listings walks any JSON tree and returns every active object carrying
// both an address and a price under known synonym keys.
func Listings(data any, source models.Source) []models.RawCandidate {
	var out []models.RawCandidate
	seen := make(map[blobKey]bool)

	Walk(data, func(node map[string]any) {
		loc, ok := addressFrom(node)
		if !ok {
			return
		}
		price, ok := priceFrom(node)
		if !ok {
			return
		}
		status := filter.StatusField(node)
		if !filter.LooksActive(status) {
			return
		}

		key := blobKey{strings.ToLower(loc.address), price, loc.zip}
		if seen[key] {
			return
		}
		seen[key] = true

		out = append(out, models.RawCandidate{
			Source:  source,
			Address: loc.address,
			City:    loc.city,
			State:   loc.state,
			Zip:     loc.zip,
			Price:   &price,
			Beds:    coerce.Ptr(firstSet(node, bedKeys...)),
			Baths:   coerce.Ptr(firstSet(node, bathKeys...)),
			Sqft:    coerce.Ptr(firstSet(node, sqftKeys...)),
			Href:    firstText(node, hrefKeys...),
			Status:  status,
			Node:    node,
		})
	})
	return out
}

// JSONBlob parses text and harvests it with Listings.
func JSONBlob(text string, source models.Source) []models.RawCandidate {
	data, ok := ParseBlob(text)
	if !ok {
		return nil
	}
	return Listings(data, source)
}
