// Package extract holds the independent record-extraction strategies: DOM
// cards, structured data (JSON-LD), inline script state, and captured
// network responses. Each strategy is total: malformed input yields no
// candidates rather than an error.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"listing_harvester/config"
)

// Extractor applies one site profile's selector tables.
type Extractor struct {
	site     *config.Site
	base     *url.URL
	injected string
}

func New(site *config.Site) *Extractor {
	base, err := url.Parse(site.BaseURL)
	if err != nil || base.Host == "" {
		base, _ = url.Parse(config.DefaultSite().BaseURL)
	}

	injected := append([]string{}, site.InjectedUI...)
	for _, prefix := range site.InjectedIDPrefixes {
		injected = append(injected, "[id^='"+prefix+"']", "[class*='"+prefix+"']")
	}

	return &Extractor{
		site:     site,
		base:     base,
		injected: strings.Join(injected, ", "),
	}
}

func (e *Extractor) Site() *config.Site {
	return e.site
}

// Absolute resolves href against the site origin. Already-absolute links
// come back unchanged.
func (e *Extractor) Absolute(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return e.base.ResolveReference(ref).String()
}

// Sanitize removes nodes injected by browser extensions so they can never
// contribute anchors or text.
func (e *Extractor) Sanitize(root *goquery.Selection) {
	if len(e.site.InjectedUI) == 0 {
		return
	}
	root.Find(strings.Join(e.site.InjectedUI, ", ")).Remove()
}

func (e *Extractor) isInjected(s *goquery.Selection) bool {
	if e.injected == "" {
		return false
	}
	return s.Closest(e.injected).Length() > 0
}

// Text is the element's visible text with fragments joined by single
// spaces. Script and style contents are skipped.
func Text(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, strings.Join(strings.Fields(t), " "))
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

func pick(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := root.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func scriptText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}
