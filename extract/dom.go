package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"listing_harvester/coerce"
	"listing_harvester/models"
)

var (
	locationRe   = regexp.MustCompile(`([^,]+),\s*([A-Za-z]{2})(?:\s+(\d{5})(?:-\d{4})?)?\s*$`)
	mediaWordsRe = regexp.MustCompile(`(?i)\b(?:view|photo|photos|image|images)\b`)
	bedsRe       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:beds?|bds?|bedrooms?)\b`)
	bathsRe      = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:baths?|ba|bathrooms?)\b`)
	sqftRe       = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(?:sq\.?\s*ft|square\s*feet|sf)\b`)
	scriptURLRe  = regexp.MustCompile(`"(?:url|@id)"\s*:\s*"(/[^"]+)"`)
	rawHrefRe    = regexp.MustCompile(`href="(/[A-Za-z0-9_\-/]+)"`)
)

// Cards returns the probable listing cards under root, primary skin first.
// Extension UI is stripped from root before selection.
func (e *Extractor) Cards(root *goquery.Selection) []*goquery.Selection {
	e.Sanitize(root)

	var found *goquery.Selection
	for _, family := range [][]string{e.site.CardSelectors, e.site.FallbackCards, e.site.RenderedCards} {
		if len(family) == 0 {
			continue
		}
		found = root.Find(strings.Join(family, ", "))
		if found.Length() > 0 {
			break
		}
	}
	if found == nil {
		return nil
	}

	var cards []*goquery.Selection
	found.Each(func(_ int, card *goquery.Selection) {
		if e.isProbableCard(card) {
			cards = append(cards, card)
		}
	})
	return cards
}

func (e *Extractor) isProbableCard(card *goquery.Selection) bool {
	if e.isInjected(card) {
		return false
	}
	if card.Find("script[type='application/ld+json']").Length() > 0 {
		return true
	}
	if len(e.site.MarkerAddress) > 0 && card.Find(strings.Join(e.site.MarkerAddress, ", ")).Length() > 0 {
		return true
	}
	hasPrice := len(e.site.MarkerPrice) > 0 && card.Find(strings.Join(e.site.MarkerPrice, ", ")).Length() > 0
	return hasPrice && card.Find("a[href]").Length() > 0
}

// Card reads the fields visible in one card's markup.
func (e *Extractor) Card(card *goquery.Selection) models.RawCandidate {
	e.Sanitize(card)
	c := models.RawCandidate{Source: models.SourceDOM}

	if el := pick(card, e.site.AddressSelectors); el != nil {
		c.Address = Text(el)
	}

	if el := pick(card, e.site.LocalitySelectors); el != nil {
		if m := locationRe.FindStringSubmatch(Text(el)); m != nil {
			c.City = strings.TrimSpace(m[1])
			c.State = strings.ToUpper(m[2])
			c.Zip = m[3]
		} else {
			c.City = Text(card.Find("[itemprop='addressLocality']").First())
			c.State = Text(card.Find("[itemprop='addressRegion']").First())
			c.Zip = Text(card.Find("[itemprop='postalCode']").First())
		}
	}

	if el := pick(card, e.site.PriceSelectors); el != nil {
		raw := Text(el)
		if goquery.NodeName(el) == "meta" {
			raw, _ = el.Attr("content")
		}
		c.Price = coerce.Ptr(raw)
	}

	c.Text = Text(card)
	facts := mediaWordsRe.ReplaceAllString(c.Text, "")
	if m := bedsRe.FindStringSubmatch(facts); m != nil {
		c.Beds = coerce.Ptr(m[1])
	}
	if m := bathsRe.FindStringSubmatch(facts); m != nil {
		c.Baths = coerce.Ptr(m[1])
	}
	if m := sqftRe.FindStringSubmatch(facts); m != nil {
		c.Sqft = coerce.Ptr(m[1])
	}

	c.Href = e.cardHref(card)
	return c
}

// cardHref resolves a card's link through progressively weaker signals.
func (e *Extractor) cardHref(card *goquery.Selection) string {
	anchors := card.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		return strings.TrimSpace(href) != "" && !e.isInjected(a)
	})

	var listing, anyAnchor string
	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if anyAnchor == "" {
			anyAnchor = href
		}
		for _, p := range e.site.ListingPaths {
			if strings.Contains(href, p) {
				listing = href
				return false
			}
		}
		return true
	})
	if listing != "" {
		return e.Absolute(listing)
	}
	if anyAnchor != "" {
		return e.Absolute(anyAnchor)
	}

	if href := e.virtualLink(card); href != "" {
		return e.Absolute(href)
	}

	var fromScript string
	card.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if e.isInjected(s) {
			return true
		}
		if m := scriptURLRe.FindStringSubmatch(scriptText(s)); m != nil {
			fromScript = m[1]
			return false
		}
		return true
	})
	if fromScript != "" {
		return e.Absolute(fromScript)
	}

	if raw, err := goquery.OuterHtml(card); err == nil {
		if m := rawHrefRe.FindStringSubmatch(raw); m != nil {
			return e.Absolute(m[1])
		}
	}
	return ""
}

func (e *Extractor) virtualLink(card *goquery.Selection) string {
	var sels []string
	for _, attr := range e.site.VirtualLinkAttrs {
		sels = append(sels, "["+attr+"]")
	}
	sels = append(sels, "[role='link']")

	var candidate *goquery.Selection
	card.Find(strings.Join(sels, ", ")).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if e.isInjected(el) {
			return true
		}
		candidate = el
		return false
	})
	if candidate == nil {
		return ""
	}

	for _, attr := range append([]string{"href"}, e.site.VirtualLinkAttrs...) {
		if v, ok := candidate.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
