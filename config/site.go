package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Site describes the target site's known rendering shapes. Selector
// cascades are data: each list is tried in order and the first hit wins.
type Site struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`

	CardSelectors      []string `yaml:"card_selectors"`
	FallbackCards      []string `yaml:"fallback_card_selectors"`
	RenderedCards      []string `yaml:"rendered_card_selectors"`
	MarkerAddress      []string `yaml:"marker_address_selectors"`
	MarkerPrice        []string `yaml:"marker_price_selectors"`
	AddressSelectors   []string `yaml:"address_selectors"`
	LocalitySelectors  []string `yaml:"locality_selectors"`
	PriceSelectors     []string `yaml:"price_selectors"`
	ListingPaths       []string `yaml:"listing_paths"`
	VirtualLinkAttrs   []string `yaml:"virtual_link_attrs"`
	InjectedUI         []string `yaml:"injected_ui"`
	InjectedIDPrefixes []string `yaml:"injected_id_prefixes"`
	CaptureKeywords    []string `yaml:"capture_keywords"`
	MapEndpoint        string   `yaml:"map_endpoint"`
	NextSelectors      []string `yaml:"next_selectors"`
	BannerTexts        []string `yaml:"banner_texts"`
	PrimeTexts         []string `yaml:"prime_texts"`
	WaitSelectors      []string `yaml:"wait_selectors"`
	WaitRounds         int      `yaml:"wait_rounds"`
	NetworkWindow      int      `yaml:"network_window"`
	SweepWindow        int      `yaml:"sweep_window"`
}

// LoadSite reads dir/<id>.yaml and fills anything it leaves out from the
// built-in profile. A missing file yields the built-in profile.
func LoadSite(dir, id string) (*Site, error) {
	site := &Site{}
	data, err := os.ReadFile(siteFile(dir, id))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read site profile: %w", err)
	default:
		if err := yaml.Unmarshal(data, site); err != nil {
			return nil, fmt.Errorf("parse site profile %s: %w", id, err)
		}
	}

	if err := mergo.Merge(site, DefaultSite()); err != nil {
		return nil, fmt.Errorf("merge site defaults: %w", err)
	}
	return site, nil
}

// DefaultSite is the built-in estately.com profile.
func DefaultSite() Site {
	return Site{
		ID:      "estately",
		Name:    "Estately",
		BaseURL: "https://www.estately.com/",
		CardSelectors: []string{
			".js-map-listing-result",
		},
		FallbackCards: []string{
			".ListingCard", ".listing-card", ".result", ".result-card", ".result-list .result",
			"li[class*='result']", "article[class*='card']",
			"[data-testid*='listing-card']", "[data-qa*='listing-card']",
		},
		RenderedCards: []string{
			".js-map-listing-result",
			"div[data-testid*='MapResultsCard']",
			"div[class*='PropertyCard__wrapper']",
			"article[data-testid*='resultCard']",
			"[data-testid='listing-card']",
			"[data-qa='home-card']",
			"article.listingCard__wrapper",
			"article[class*='ListingCard']",
			"div[class*='PropertyCard']",
			"section[class*='HomeCard']",
			"li[class*='result'] article",
		},
		MarkerAddress: []string{
			"[data-testid*='address']", "[data-qa*='address']",
			".ListingCard-address", ".listing-address", ".result-address",
		},
		MarkerPrice: []string{
			"[data-testid*='price']", ".ListingCard-price", ".listing-price",
			"[itemprop='price']", "meta[itemprop='price']", "[class*='price']", ".result-price",
		},
		AddressSelectors: []string{
			"[data-testid*='address']",
			"[data-qa*='address']",
			".ListingCard-address",
			".listing-address",
			"span[itemprop='streetAddress']",
			"[class*='street']",
			".result-address a",
			".result-address",
		},
		LocalitySelectors: []string{
			".ListingCard-location",
			".listing-location",
			"[itemprop='addressLocality']",
			"[data-testid*='location']",
			"[class*='cityState']",
			"[class*='location']",
			".result-address a",
		},
		PriceSelectors: []string{
			"[data-testid*='price']",
			".ListingCard-price",
			".listing-price",
			"[itemprop='price']",
			"meta[itemprop='price']",
			"[class*='price']",
			".result-price strong",
			".result-price",
		},
		ListingPaths:       []string{"/listings/", "/home/", "/homes/", "/property/"},
		VirtualLinkAttrs:   []string{"to", "data-href", "data-url", "data-listing-url"},
		InjectedUI:         []string{"plasmo-csui", "#jobright-helper-plugin", "[id^='jobright-helper']"},
		InjectedIDPrefixes: []string{"jobright-helper"},
		CaptureKeywords: []string{
			"search", "listing", "listings", "results", "graphql", "homes", "api", "inventory", "properties",
		},
		MapEndpoint:   "/map/properties",
		NextSelectors: []string{"a[rel='next']", "a[aria-label='Next']"},
		BannerTexts:   []string{"OK", "Accept", "I agree", "Got it"},
		PrimeTexts:    []string{"Click to see homes here"},
		WaitSelectors: []string{
			".js-map-listing-result",
			"div[data-testid*='MapResultsCard']",
			"div[class*='PropertyCard__wrapper']",
			"article[data-testid*='resultCard']",
			"a[href*='/home/']",
			"[data-testid='listing-card']",
			"[data-qa='home-card']",
			"article[class*='ListingCard']",
			"div[class*='PropertyCard']",
			"section[class*='HomeCard']",
			"li[class*='result'] article",
			"a[href*='/listings/']",
			"article",
		},
		WaitRounds:    4,
		NetworkWindow: 20,
		SweepWindow:   40,
	}
}
