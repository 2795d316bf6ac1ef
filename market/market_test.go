package market

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in    string
		state string
		city  string
	}{
		{"Phoenix, AZ", "az", "phoenix"},
		{"Paradise Valley, Arizona", "az", "paradise-valley"},
		{"  Salt Lake   City ,  ut ", "ut", "salt-lake-city"},
		{"Charleston, West  Virginia", "wv", "charleston"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			m, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.state, m.State)
			assert.Equal(t, tc.city, m.City)
		})
	}
}

func TestParse_Bad(t *testing.T) {
	for _, in := range []string{"Phoenix", "Phoenix, AZ, USA", "Phoenix, Arizonia", ", AZ"} {
		_, err := Parse(in)
		assert.True(t, errors.Is(err, ErrBadMarket), in)
	}
}

func TestBuildSearchURL(t *testing.T) {
	m, err := Parse("Phoenix, AZ")
	require.NoError(t, err)

	got := BuildSearchURL("https://www.estately.com/", m, DefaultFilters())
	assert.Equal(t,
		"https://www.estately.com/az/phoenix?min_price=600000&min_beds=3&min_sqft=1000&property_type=house&status=active&sort=newest",
		got)

	f := DefaultFilters()
	f.MaxPrice = 900000
	f.NoHOA = true
	f.Distressed = true
	got = BuildSearchURL("https://www.estately.com", m, f)
	assert.True(t, strings.HasSuffix(got,
		"&max_price=900000&hoa=no&keywords=fixer%2Cforeclosure%2Cshort%2Bsale%2Creo%2Cdistressed"), got)
}

func TestFiltersThresholds(t *testing.T) {
	f := DefaultFilters()
	f.NoHOA = true
	th := f.Thresholds()
	assert.Equal(t, 600000.0, th.MinPrice)
	assert.Equal(t, 3.0, th.MinBeds)
	assert.True(t, th.RequireNoHOA)
	assert.False(t, th.RequireDistressed)
}

func TestReadCSV_TopPerState(t *testing.T) {
	data := `City,State_ID,Population
Tucson,AZ,"542,629"
Phoenix,AZ,1608139
Mesa,AZ,504258
Austin,TX,961855
Houston,TX,2304580
Nowhere,Texas,5
,AZ,100
`
	got, err := ReadCSV(strings.NewReader(data), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Phoenix, AZ", "Tucson, AZ", "Houston, TX", "Austin, TX"}, got)

	capped, err := ReadCSV(strings.NewReader(data), 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Phoenix, AZ", "Tucson, AZ", "Mesa, AZ"}, capped)
}

func TestReadCSV_AlternateColumns(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("name,st\nBoise,id\n"), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Boise, ID"}, got)
}
