package storage

import (
	"context"
	"encoding/json"
	"log"

	"listing_harvester/models"
)

// Sink persists listing documents keyed by their normalized full address.
// A failing document is counted in the stats and does not stop the rest.
type Sink interface {
	UpsertDocuments(ctx context.Context, docs []models.Document) (models.UpsertStats, error)
}

// upsertable drops documents that have no key.
func upsertable(docs []models.Document) []models.Document {
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if d.FullAddressCI != "" {
			out = append(out, d)
		}
	}
	return out
}

func documentJSON(d *models.Document) []byte {
	data, err := json.Marshal(d)
	if err != nil {
		log.Printf("marshal document %s: %v", d.FullAddressCI, err)
		return []byte("{}")
	}
	return data
}
