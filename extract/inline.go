package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"listing_harvester/filter"
	"listing_harvester/models"
)

// Inline mines every script payload in a document for embedded listing
// state. Assignments such as window.__STATE__ = {...}; are isolated by
// bracket balance before decoding.
func (e *Extractor) Inline(doc *goquery.Document) []models.RawCandidate {
	var out []models.RawCandidate
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		typ = strings.ToLower(strings.TrimSpace(typ))
		switch typ {
		case "", "application/json", "application/ld+json", "text/javascript", "module":
		default:
			return
		}
		for _, blob := range scriptBlobs(scriptText(s)) {
			out = append(out, Listings(blob, models.SourceInline)...)
		}
	})
	return out
}

// InlineHTML is Inline over raw markup.
func (e *Extractor) InlineHTML(markup string) []models.RawCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	return e.Inline(doc)
}

const maxBlobsPerScript = 8

// scriptBlobs decodes each balanced object literal in a script body, in
// order. Regions that fail to decode are skipped whole.
func scriptBlobs(text string) []any {
	var blobs []any
	pos := 0
	for len(blobs) < maxBlobsPerScript {
		rel := strings.IndexByte(text[pos:], '{')
		if rel < 0 {
			break
		}
		start := pos + rel
		end := balancedEnd(text, start)
		if end < 0 {
			break
		}
		if data, ok := ParseBlob(text[start:end]); ok {
			blobs = append(blobs, data)
		}
		pos = end
	}
	return blobs
}

// InlineStatus returns the status value of the first listing-shaped node in
// the page's scripts, active or not.
func (e *Extractor) InlineStatus(markup string) (any, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, false
	}
	var found any
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, blob := range scriptBlobs(scriptText(s)) {
			Walk(blob, func(node map[string]any) {
				if found != nil {
					return
				}
				if _, ok := addressFrom(node); ok {
					found = filter.StatusField(node)
				}
			})
			if found != nil {
				return false
			}
		}
		return true
	})
	return found, found != nil
}
