package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"listing_harvester/coerce"
	"listing_harvester/models"
)

var residenceTypes = map[string]bool{
	"singlefamilyresidence": true,
	"house":                 true,
	"apartment":             true,
	"residence":             true,
}

// Structured reads the JSON-LD blocks inside a container. The residence
// object supplies address, size and rooms; the product/offer supplies
// price. ok is false when no block yields any field.
func (e *Extractor) Structured(container *goquery.Selection) (models.RawCandidate, bool) {
	var items []map[string]any
	container.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		data, ok := ParseBlob(scriptText(s))
		if !ok {
			return
		}
		items = append(items, ldItems(data)...)
	})
	if len(items) == 0 {
		return models.RawCandidate{}, false
	}

	merged := mergeLD(items)
	if len(merged) == 0 {
		return models.RawCandidate{}, false
	}

	c := models.RawCandidate{Source: models.SourceStructured, Node: merged}
	switch addr := merged["address"].(type) {
	case map[string]any:
		c.Address = coerce.Text(addr["streetAddress"])
		c.City = coerce.Text(addr["addressLocality"])
		c.State = coerce.Text(addr["addressRegion"])
		c.Zip = coerce.Text(addr["postalCode"])
	case string:
		c.Address = strings.TrimSpace(addr)
	}

	if u, ok := merged["url"].(string); ok {
		c.Href = e.Absolute(u)
	}

	c.Beds = quantity(firstSet(merged, "numberOfRooms", "numberOfBedrooms"))
	c.Baths = quantity(firstSet(merged, "numberOfBathroomsTotal", "numberOfFullBathrooms"))
	c.Sqft = quantity(merged["floorSize"])

	var price any
	switch offers := merged["offers"].(type) {
	case map[string]any:
		price = offers["price"]
	case []any:
		if len(offers) > 0 {
			if first, ok := offers[0].(map[string]any); ok {
				price = first["price"]
			}
		}
	}
	if price == nil {
		price = merged["price"]
	}
	c.Price = quantity(price)

	if c.Address == "" && c.City == "" && c.Price == nil && c.Href == "" {
		return models.RawCandidate{}, false
	}
	return c, true
}

func ldItems(data any) []map[string]any {
	var out []map[string]any
	switch v := data.(type) {
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			return ldItems(graph)
		}
		out = append(out, v)
	case []any:
		for _, it := range v {
			if m, ok := it.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func ldType(obj map[string]any) []string {
	switch t := obj["@type"].(type) {
	case string:
		return []string{strings.ToLower(t)}
	case []any:
		var out []string
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, strings.ToLower(s))
			}
		}
		return out
	}
	return nil
}

func isLDType(obj map[string]any, want func(string) bool) bool {
	for _, t := range ldType(obj) {
		if want(t) {
			return true
		}
	}
	return false
}

// mergeLD lays the residence object over the product object and pins the
// first offer found on either.
func mergeLD(items []map[string]any) map[string]any {
	var residence, product map[string]any
	for _, it := range items {
		if residence == nil && isLDType(it, func(t string) bool { return residenceTypes[t] }) {
			residence = it
		}
		if product == nil && isLDType(it, func(t string) bool { return t == "product" }) {
			product = it
		}
	}

	hosts := []map[string]any{product, residence}
	if product == nil && residence == nil {
		hosts = items
	}
	var offer any
	for _, host := range hosts {
		if host == nil {
			continue
		}
		switch off := host["offers"].(type) {
		case []any:
			if len(off) > 0 {
				offer = off[0]
			}
		case map[string]any:
			offer = off
		}
		if offer != nil {
			break
		}
	}

	merged := map[string]any{}
	for k, v := range residence {
		merged[k] = v
	}
	for k, v := range product {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	if offer != nil {
		if _, ok := merged["offers"]; !ok {
			merged["offers"] = offer
		}
	}
	if len(merged) == 0 && len(items) == 1 {
		return items[0]
	}
	return merged
}

// quantity reads a QuantitativeValue-style {"value": x} wrapper or a bare
// number or numeric string.
func quantity(v any) *float64 {
	if m, ok := v.(map[string]any); ok {
		return coerce.Ptr(m["value"])
	}
	return coerce.Ptr(v)
}
