package extract

import (
	"encoding/json"
	"strings"
	"sync"

	"listing_harvester/coerce"
	"listing_harvester/filter"
	"listing_harvester/models"
)

// Capture is one observed response body.
type Capture struct {
	URL  string
	Body string
}

// Bucket buffers captured responses. Add is safe to call from response
// callbacks while the collector reads.
type Bucket struct {
	mu    sync.Mutex
	items []Capture
	limit int
}

func NewBucket(limit int) *Bucket {
	return &Bucket{limit: limit}
}

func (b *Bucket) Add(c Capture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, c)
	if b.limit > 0 && len(b.items) > b.limit {
		b.items = b.items[len(b.items)-b.limit:]
	}
}

func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Last returns a copy of the newest n captures, oldest first.
func (b *Bucket) Last(n int) []Capture {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.items) {
		n = len(b.items)
	}
	out := make([]Capture, n)
	copy(out, b.items[len(b.items)-n:])
	return out
}

// Interesting reports whether a response URL looks like a data endpoint.
func (e *Extractor) Interesting(rawURL string) bool {
	for _, k := range e.site.CaptureKeywords {
		if strings.Contains(rawURL, k) {
			return true
		}
	}
	return false
}

// Network harvests one captured body: the targeted map endpoint parser
// first, the generic tree walk otherwise.
func (e *Extractor) Network(c Capture) []models.RawCandidate {
	if found := e.MapProperties(c.URL, c.Body); len(found) > 0 {
		return found
	}
	return JSONBlob(c.Body, models.SourceNetwork)
}

// MapProperties parses the map endpoint's JSON array of listings with
// nested address objects and cents-or-dollars prices.
func (e *Extractor) MapProperties(rawURL, body string) []models.RawCandidate {
	if e.site.MapEndpoint == "" || !strings.Contains(rawURL, e.site.MapEndpoint) {
		return nil
	}
	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil
	}
	items, ok := data.([]any)
	if !ok {
		return nil
	}

	var out []models.RawCandidate
	for _, raw := range items {
		it, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		addr, _ := it["address"].(map[string]any)
		if addr == nil {
			addr = map[string]any{}
		}
		street := firstText(addr, "street", "address")
		if street == "" {
			street = firstText(it, "streetAddress")
		}
		city := firstText(addr, "city")
		if city == "" {
			city = firstText(it, "city")
		}
		state := firstText(addr, "state")
		if state == "" {
			state = firstText(it, "state")
		}
		zip := firstText(addr, "zip", "zipcode", "postalCode")
		if zip == "" {
			zip = firstText(it, "zip")
		}

		price, ok := mapPrice(it)
		if !ok {
			continue
		}
		status := filter.StatusField(it)
		if _, active := filter.Status(status, ""); !active {
			continue
		}
		if street == "" || (city == "" && state == "") {
			continue
		}

		out = append(out, models.RawCandidate{
			Source:  models.SourceNetwork,
			Address: street,
			City:    city,
			State:   state,
			Zip:     zip,
			Price:   &price,
			Beds:    coerce.Ptr(firstSet(it, "beds", "bedrooms", "bed_count")),
			Baths:   coerce.Ptr(firstSet(it, "baths", "bathrooms", "bath_count")),
			Sqft:    coerce.Ptr(firstSet(it, "sqft", "square_feet", "living_area")),
			Href:    firstText(it, "url", "listing_url", "permalink"),
			Status:  status,
			Node:    it,
		})
	}
	return out
}

// mapPrice prefers an explicit cents field whenever one is present.
func mapPrice(it map[string]any) (float64, bool) {
	for _, k := range []string{"list_price_cents", "price_cents"} {
		if v, ok := it[k]; ok {
			if f, ok := coerce.Number(v); ok {
				return f / 100, true
			}
		}
	}
	return coerce.Number(firstSet(it, "list_price", "price"))
}
