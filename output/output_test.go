package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_harvester/models"
)

func ptr(f float64) *float64 { return &f }
func iptr(i int) *int        { return &i }

func sample() []models.Listing {
	return []models.Listing{
		{
			Address:   "123 Main St",
			City:      "Phoenix",
			State:     "AZ",
			Zip:       "85001",
			Price:     ptr(650000),
			Baths:     ptr(2.5),
			Sqft:      iptr(1200),
			SourceURL: "https://www.estately.com/listings/info/123-main-st",
		},
		{
			Address:   "456 Oak Ave",
			State:     "AZ",
			Beds:      ptr(3),
			SourceURL: "https://www.estately.com/listings/info/456-oak-ave",
		},
	}
}

func TestPrintDetails(t *testing.T) {
	var buf bytes.Buffer
	PrintDetails(&buf, sample())

	want := "- 123 Main St, Phoenix, AZ 85001 | $650,000 | -- / 2 ba | 1,200 sqft | https://www.estately.com/listings/info/123-main-st\n" +
		"- 456 Oak Ave, AZ | N/A | 3 bd / -- | -- | https://www.estately.com/listings/info/456-oak-ave\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("details mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))
	assert.Equal(t,
		"address,city,state,zip,listing_price,beds,baths,sqft,source_url\n"+
			"123 Main St,Phoenix,AZ,85001,650000,,2.5,1200,https://www.estately.com/listings/info/123-main-st\n"+
			"456 Oak Ave,,AZ,,,3,,,https://www.estately.com/listings/info/456-oak-ave\n",
		buf.String())
}

func TestWriteFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.JSON")
	require.NoError(t, WriteFile(path, sample()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 650000.0, rows[0]["listing_price"])
	assert.Nil(t, rows[1]["listing_price"])
	assert.Equal(t, "https://www.estately.com/listings/info/456-oak-ave", rows[1]["source_url"])
}

func TestWriteFile_UnknownExtension(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "out.xml"), sample())
	assert.ErrorContains(t, err, "unknown output format")
}
