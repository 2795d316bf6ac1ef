// Package filter decides which candidates become listings: the active/for
// sale heuristic, search thresholds, the validity gate and the per-target
// deduplicator.
package filter

import (
	"regexp"
	"strings"

	"listing_harvester/coerce"
)

var statusFields = []string{
	"status", "listingStatus", "propertyStatus", "marketStatus", "statusText",
	"saleType", "listing_type", "onMarket", "isActive", "forSale",
	"sale_status", "availability", "listing_status", "mlsStatus",
	"property_status", "propStatus",
}

var (
	inactiveTokens = []string{
		"pending", "sold", "contingent", "off market", "closed", "withdrawn",
		"canceled", "cancelled", "leased", "rented", "temporarily off market", "under contract", "coming soon", "expired", "inactive",
	}
	activeTokens = []string{"for sale", "active", "active listing", "on market"}

	inactiveRe = tokenRegexp(inactiveTokens)
	activeRe   = tokenRegexp(activeTokens)

	camelRe        = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	joinerReplacer = strings.NewReplacer("_", " ", "-", " ")
)

func tokenRegexp(tokens []string) *regexp.Regexp {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// statusWords splits status codes such as RECENTLY_SOLD, off-market or
// pendingSale into lower-case words.
func statusWords(s string) string {
	s = camelRe.ReplaceAllString(s, "$1 $2")
	return strings.ToLower(joinerReplacer.Replace(s))
}

// StatusField returns the first status-like value on node, or nil.
// Booleans count even when false.
func StatusField(node map[string]any) any {
	for _, k := range statusFields {
		v, ok := node[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// Status normalizes a raw status value and decides whether the listing is
// active. A boolean is authoritative. Otherwise the value and any free text
// are scanned for inactive tokens, then active tokens. No token at all
// means active.
func Status(raw any, text string) (string, bool) {
	rawText := coerce.Text(raw)
	s := strings.ToLower(rawText)
	if b, ok := raw.(bool); ok {
		return s, b
	}

	blob := strings.TrimSpace(statusWords(rawText) + " " + statusWords(text))
	switch {
	case blob == "":
		return s, true
	case inactiveRe.MatchString(blob):
		return s, false
	case activeRe.MatchString(blob):
		return s, true
	}
	return s, true
}

// LooksActive is Status without free text.
func LooksActive(raw any) bool {
	_, active := Status(raw, "")
	return active
}
