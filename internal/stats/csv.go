package stats

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Values treated as missing in either column type.
var missingMarkers = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"null": true,
	"nan":  true,
}

// LoadCSV reads a headered CSV file into a Dataset. A column is numeric when
// every non-missing value parses as a float; otherwise it is categorical.
// Missing numeric values become NaN, missing categorical values become "".
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dataset %s has no data rows", filepath.Base(path))
	}

	header := records[0]
	rows := records[1:]

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ds := &Dataset{
		Name:        name,
		Numeric:     make(map[string][]float64),
		Categorical: make(map[string][]string),
	}

	for col, colName := range header {
		colName = strings.TrimSpace(colName)
		if colName == "" {
			return nil, fmt.Errorf("dataset %s: empty header in column %d", name, col+1)
		}

		raw := make([]string, len(rows))
		numeric := true
		for i, row := range rows {
			v := ""
			if col < len(row) {
				v = strings.TrimSpace(row[col])
			}
			raw[i] = v
			if isMissing(v) {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
		}

		if numeric {
			vals := make([]float64, len(raw))
			for i, v := range raw {
				if isMissing(v) {
					vals[i] = math.NaN()
					continue
				}
				vals[i], _ = strconv.ParseFloat(v, 64)
			}
			ds.Numeric[colName] = vals
		} else {
			vals := make([]string, len(raw))
			for i, v := range raw {
				if isMissing(v) {
					continue
				}
				vals[i] = v
			}
			ds.Categorical[colName] = vals
		}
	}

	return ds, nil
}

func isMissing(v string) bool {
	return missingMarkers[strings.ToLower(v)]
}
