package models

// Source tags which extraction strategy produced a candidate.
type Source string

const (
	SourceDOM        Source = "dom"
	SourceStructured Source = "structured"
	SourceInline     Source = "inline"
	SourceNetwork    Source = "network"
	SourceDetail     Source = "detail"
)

// RawCandidate is one extractor's view of a single card or JSON node.
// Every field is optional; numeric fields are nil when unknown.
type RawCandidate struct {
	Source  Source
	Address string
	City    string
	State   string
	Zip     string
	Price   *float64
	Beds    *float64
	Baths   *float64
	Sqft    *float64
	Href    string
	Status  any
	Text    string
	Node    map[string]any
}

// HasLocation reports whether the candidate meets the location floor:
// a street address, or both city and state.
func (c *RawCandidate) HasLocation() bool {
	return c.Address != "" || (c.City != "" && c.State != "")
}

// Listing is the validated, deduplicated output record.
type Listing struct {
	Address       string   `json:"address" validate:"required"`
	City          string   `json:"city,omitempty"`
	State         string   `json:"state,omitempty"`
	Zip           string   `json:"zip,omitempty"`
	Price         *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
	Beds          *float64 `json:"beds,omitempty" validate:"omitempty,gte=0"`
	Baths         *float64 `json:"baths,omitempty" validate:"omitempty,gte=0"`
	Sqft          *int     `json:"sqft,omitempty" validate:"omitempty,gte=0"`
	SourceURL     string   `json:"sourceUrl" validate:"required,url"`
	Active        bool     `json:"active"`
	ListingStatus string   `json:"listingStatus,omitempty"`
	AgentName     string   `json:"agentName,omitempty"`
	AgentPhone    string   `json:"agentPhone,omitempty"`
	AgentEmail    string   `json:"agentEmail,omitempty"`
	BrokerName    string   `json:"brokerName,omitempty"`
	BrokerPhone   string   `json:"brokerPhone,omitempty"`
	BrokerEmail   string   `json:"brokerEmail,omitempty"`
	Source        Source   `json:"source"`

	// Raw carries the merged candidate node for the persisted details._raw.
	Raw map[string]any `json:"-"`
}
