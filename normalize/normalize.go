// Package normalize reconciles extractor outputs for one listing into a
// single record and renders the persisted document shape.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"dario.cat/mergo"

	"listing_harvester/coerce"
	"listing_harvester/filter"
	"listing_harvester/identity"
	"listing_harvester/models"
)

var (
	phoneRe = regexp.MustCompile(`(?:\+?1[\s.-]?)?(?:\(?\d{3}\)?[\s.-]?)?\d{3}[\s.-]?\d{4}`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

var (
	agentKeys       = []string{"agent", "agentName", "listingAgent", "agent_name"}
	brokerKeys      = []string{"broker", "brokerage", "officeName", "broker_name"}
	agentPhoneKeys  = []string{"agent_phone", "agentPhone", "listingAgentPhone"}
	agentEmailKeys  = []string{"agent_email", "agentEmail", "listingAgentEmail"}
	brokerPhoneKeys = []string{"broker_phone", "officePhone"}
	brokerEmailKeys = []string{"broker_email"}
)

// Linker makes links absolute against the site origin.
type Linker interface {
	Absolute(href string) string
}

type Normalizer struct {
	links Linker
	now   func() time.Time
}

func New(links Linker) *Normalizer {
	return &Normalizer{links: links, now: time.Now}
}

// Merge lays secondary under primary. Primary values win everywhere except
// the street address, which secondary corrects when primary is empty or
// does not contain it.
func Merge(primary, secondary models.RawCandidate) (models.RawCandidate, error) {
	out := primary
	out.Node = mergeNodes(primary.Node, secondary.Node)

	if secondary.Address != "" &&
		(primary.Address == "" || !strings.Contains(strings.ToLower(primary.Address), strings.ToLower(secondary.Address))) {
		out.Address = secondary.Address
	}

	// A known number, zero included, is never replaced. mergo fills text
	// fields only.
	out.Price = backfill(primary.Price, secondary.Price)
	out.Beds = backfill(primary.Beds, secondary.Beds)
	out.Baths = backfill(primary.Baths, secondary.Baths)
	out.Sqft = backfill(primary.Sqft, secondary.Sqft)

	src := secondary
	src.Node = nil
	src.Source = ""
	src.Price, src.Beds, src.Baths, src.Sqft = nil, nil, nil, nil
	if err := mergo.Merge(&out, src); err != nil {
		return primary, fmt.Errorf("merge %s into %s: %w", secondary.Source, primary.Source, err)
	}
	return out, nil
}

// backfill returns a copy of known, or of fallback when known is unset.
func backfill(known, fallback *float64) *float64 {
	v := known
	if v == nil {
		v = fallback
	}
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

func mergeNodes(a, b map[string]any) map[string]any {
	if a == nil && b == nil {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Build converts an admitted candidate into a listing. pageURL stands in
// for the link when the candidate has none.
func (n *Normalizer) Build(c models.RawCandidate, pageURL string) models.Listing {
	statusText, active := filter.Status(c.Status, c.Text)

	l := models.Listing{
		Address:       strings.TrimSpace(c.Address),
		City:          strings.TrimSpace(c.City),
		State:         strings.TrimSpace(c.State),
		Zip:           strings.TrimSpace(c.Zip),
		Price:         c.Price,
		Beds:          c.Beds,
		Baths:         c.Baths,
		Sqft:          coerce.IntPtr(c.Sqft),
		SourceURL:     n.links.Absolute(c.Href),
		Active:        active,
		ListingStatus: statusText,
		Source:        c.Source,
		Raw:           rawOf(c),
	}
	if l.SourceURL == "" {
		l.SourceURL = pageURL
	}

	node := c.Node
	l.AgentName = firstText(node, agentKeys)
	l.BrokerName = firstText(node, brokerKeys)
	l.AgentPhone = firstText(node, agentPhoneKeys)
	l.AgentEmail = firstText(node, agentEmailKeys)
	l.BrokerPhone = firstText(node, brokerPhoneKeys)
	l.BrokerEmail = firstText(node, brokerEmailKeys)

	if l.AgentPhone == "" {
		l.AgentPhone = phoneRe.FindString(c.Text)
	}
	if l.AgentEmail == "" {
		l.AgentEmail = emailRe.FindString(c.Text)
	}
	return l
}

// Document renders the persisted shape of l.
func (n *Normalizer) Document(l models.Listing) models.Document {
	state := strings.ToUpper(l.State)

	var parts []string
	if l.Address != "" {
		parts = append(parts, l.Address)
	}
	tail := strings.TrimSpace(strings.Join(nonEmpty(state, l.Zip), " "))
	if locality := strings.Join(nonEmpty(l.City, tail), ", "); locality != "" {
		parts = append(parts, locality)
	}
	full := strings.Join(parts, ", ")
	ci := identity.NormalizeAddress(full)

	status := models.StatusInactive
	if l.Active {
		status = models.StatusActive
	}
	listingStatus := l.ListingStatus
	if listingStatus == "" {
		listingStatus = models.StatusActive
	}

	return models.Document{
		ID:            identity.Fingerprint(ci),
		FullAddress:   full,
		FullAddressCI: ci,
		Address:       l.Address,
		City:          l.City,
		State:         state,
		Zip:           l.Zip,
		Price:         l.Price,
		Details: models.Details{
			Beds:  l.Beds,
			Baths: l.Baths,
			Sqft:  l.Sqft,
			Raw:   l.Raw,
		},
		Agent:         l.AgentName,
		AgentName:     l.AgentName,
		AgentPhone:    l.AgentPhone,
		AgentPhoneAlt: l.AgentPhone,
		AgentEmail:    l.AgentEmail,
		Broker:        l.BrokerName,
		BrokerPhone:   l.BrokerPhone,
		BrokerEmail:   l.BrokerEmail,
		ListingStatus: listingStatus,
		Status:        status,
		ForSale:       l.Active,
		IsActive:      l.Active,
		SourceURL:     l.SourceURL,
		ScrapedAt:     n.now().UTC(),
	}
}

func rawOf(c models.RawCandidate) map[string]any {
	raw := map[string]any{
		"source":  string(c.Source),
		"address": c.Address,
		"city":    c.City,
		"state":   c.State,
		"zip":     c.Zip,
		"href":    c.Href,
	}
	for k, v := range map[string]*float64{"price": c.Price, "beds": c.Beds, "baths": c.Baths, "sqft": c.Sqft} {
		if v != nil {
			raw[k] = *v
		}
	}
	if c.Node != nil {
		raw["node"] = c.Node
	}
	return raw
}

func firstText(node map[string]any, keys []string) string {
	for _, k := range keys {
		if s := coerce.Text(node[k]); s != "" {
			return s
		}
	}
	return ""
}

func nonEmpty(vals ...string) []string {
	var out []string
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
