package models

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Document is the persisted shape of a listing, keyed by FullAddressCI.
type Document struct {
	ID            string    `json:"id"`
	FullAddress   string    `json:"fullAddress"`
	FullAddressCI string    `json:"fullAddress_ci"`
	Address       string    `json:"address"`
	City          string    `json:"city"`
	State         string    `json:"state"`
	Zip           string    `json:"zip"`
	Price         *float64  `json:"price"`
	Details       Details   `json:"details"`
	Agent         string    `json:"agent,omitempty"`
	AgentName     string    `json:"agentName,omitempty"`
	AgentPhone    string    `json:"agent_phone,omitempty"`
	AgentPhoneAlt string    `json:"agentPhone,omitempty"`
	AgentEmail    string    `json:"agent_email,omitempty"`
	Broker        string    `json:"broker,omitempty"`
	BrokerPhone   string    `json:"broker_phone,omitempty"`
	BrokerEmail   string    `json:"broker_email,omitempty"`
	ListingStatus string    `json:"listing_status"`
	Status        string    `json:"status"`
	ForSale       bool      `json:"forSale"`
	IsActive      bool      `json:"isActive"`
	SourceURL     string    `json:"source_url"`
	ScrapedAt     time.Time `json:"scrapedAt"`
}

type Details struct {
	Beds  *float64       `json:"beds"`
	Baths *float64       `json:"baths"`
	Sqft  *int           `json:"sqft"`
	Raw   map[string]any `json:"_raw,omitempty"`
}

// UpsertStats summarizes one batch write.
type UpsertStats struct {
	Ops      int
	Upserted int
	Failed   int
}
