package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	cityColumns       = []string{"city", "city_name", "name"}
	stateColumns      = []string{"state", "st", "state_id", "state_code", "state_abbr"}
	populationColumns = []string{"population", "pop", "pop2020", "pop_estimate"}
)

type cityRow struct {
	city  string
	state string
	pop   float64
}

// LoadCSV reads markets from a city table. It keeps the perState most
// populous cities of each state (all when perState <= 0), states in order of
// first appearance, and caps the result at maxMarkets when positive.
func LoadCSV(path string, perState, maxMarkets int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open markets file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, perState, maxMarkets)
}

func ReadCSV(r io.Reader, perState, maxMarkets int) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read markets header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")] = i
	}

	var order []string
	byState := make(map[string][]cityRow)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read markets row: %w", err)
		}

		city := pickCity(rec, index)
		st := pickState(rec, index)
		if city == "" || st == "" {
			continue
		}
		if _, ok := byState[st]; !ok {
			order = append(order, st)
		}
		byState[st] = append(byState[st], cityRow{city: city, state: st, pop: pickPopulation(rec, index)})
	}

	var markets []string
	for _, st := range order {
		rows := byState[st]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].pop > rows[j].pop })
		if perState > 0 && len(rows) > perState {
			rows = rows[:perState]
		}
		for _, r := range rows {
			markets = append(markets, r.city+", "+r.state)
		}
	}
	if maxMarkets > 0 && len(markets) > maxMarkets {
		markets = markets[:maxMarkets]
	}
	return markets, nil
}

func field(rec []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func pickCity(rec []string, index map[string]int) string {
	for _, k := range cityColumns {
		if v := field(rec, index, k); v != "" {
			return v
		}
	}
	return ""
}

func pickState(rec []string, index map[string]int) string {
	for _, k := range stateColumns {
		if v := field(rec, index, k); len(v) == 2 {
			return strings.ToUpper(v)
		}
	}
	return ""
}

func pickPopulation(rec []string, index map[string]int) float64 {
	for _, k := range populationColumns {
		v := field(rec, index, k)
		if v == "" || v == "NA" {
			continue
		}
		if f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err == nil {
			return f
		}
	}
	return 0
}
