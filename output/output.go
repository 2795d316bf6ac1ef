// Package output renders harvested listings for people and files.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"listing_harvester/models"
)

var csvHeader = []string{"address", "city", "state", "zip", "listing_price", "beds", "baths", "sqft", "source_url"}

var printer = message.NewPrinter(language.English)

// Row is the exported shape of one listing.
type Row struct {
	Address      string   `json:"address"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	Zip          string   `json:"zip"`
	ListingPrice *float64 `json:"listing_price"`
	Beds         *float64 `json:"beds"`
	Baths        *float64 `json:"baths"`
	Sqft         *int     `json:"sqft"`
	SourceURL    string   `json:"source_url"`
}

func Rows(listings []models.Listing) []Row {
	rows := make([]Row, len(listings))
	for i, l := range listings {
		rows[i] = Row{
			Address:      l.Address,
			City:         l.City,
			State:        l.State,
			Zip:          l.Zip,
			ListingPrice: l.Price,
			Beds:         l.Beds,
			Baths:        l.Baths,
			Sqft:         l.Sqft,
			SourceURL:    l.SourceURL,
		}
	}
	return rows
}

// WriteFile saves listings as JSON or CSV, chosen by the path's extension.
func WriteFile(path string, listings []models.Listing) error {
	var write func(io.Writer, []models.Listing) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		write = WriteJSON
	case ".csv":
		write = WriteCSV
	default:
		return fmt.Errorf("unknown output format for %q: use .json or .csv", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := write(f, listings); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func WriteJSON(w io.Writer, listings []models.Listing) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Rows(listings)); err != nil {
		return fmt.Errorf("encode listings: %w", err)
	}
	return nil
}

func WriteCSV(w io.Writer, listings []models.Listing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range Rows(listings) {
		rec := []string{
			r.Address, r.City, r.State, r.Zip,
			floatField(r.ListingPrice), floatField(r.Beds), floatField(r.Baths),
			intField(r.Sqft), r.SourceURL,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PrintDetails writes one summary line per listing:
// "- 123 Main St, Phoenix, AZ 85001 | $650,000 | 3 bd / 2 ba | 1,200 sqft | url".
func PrintDetails(w io.Writer, listings []models.Listing) {
	for _, l := range listings {
		locality := strings.Trim(strings.TrimSpace(fmt.Sprintf("%s, %s %s", l.City, l.State, l.Zip)), ", ")
		var parts []string
		for _, p := range []string{l.Address, locality} {
			if p != "" {
				parts = append(parts, p)
			}
		}

		price := "N/A"
		if l.Price != nil {
			price = printer.Sprintf("$%d", int64(*l.Price))
		}
		beds, baths, sqft := "--", "--", "--"
		if l.Beds != nil {
			beds = fmt.Sprintf("%d bd", int(*l.Beds))
		}
		if l.Baths != nil {
			baths = fmt.Sprintf("%d ba", int(*l.Baths))
		}
		if l.Sqft != nil {
			sqft = printer.Sprintf("%d sqft", *l.Sqft)
		}
		fmt.Fprintf(w, "- %s | %s | %s / %s | %s | %s\n", strings.Join(parts, ", "), price, beds, baths, sqft, l.SourceURL)
	}
}

func floatField(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intField(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
