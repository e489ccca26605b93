// Package stats is the trusted reference implementation used to recompute
// ground truth independently of any generated output. Missing numeric
// values are NaN; missing categorical values are empty strings.
package stats

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
)

// Dataset is the canonical source data for one session.
type Dataset struct {
	Name        string
	Numeric     map[string][]float64
	Categorical map[string][]string
}

// Checksum fingerprints the dataset contents. Column order does not affect
// the result; the verification cache keys on it.
func (d *Dataset) Checksum() string {
	h := sha256.New()
	fmt.Fprintf(h, "dataset:%s\n", d.Name)

	cols := make([]string, 0, len(d.Numeric))
	for c := range d.Numeric {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		fmt.Fprintf(h, "num:%s:", c)
		for _, v := range d.Numeric[c] {
			fmt.Fprintf(h, "%x,", math.Float64bits(v))
		}
		fmt.Fprintln(h)
	}

	cats := make([]string, 0, len(d.Categorical))
	for c := range d.Categorical {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(h, "cat:%s:", c)
		for _, v := range d.Categorical[c] {
			fmt.Fprintf(h, "%s,", v)
		}
		fmt.Fprintln(h)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// NumericColumn returns the named numeric column or an error; the gate
// fails closed on unknown references.
func (d *Dataset) NumericColumn(name string) ([]float64, error) {
	col, ok := d.Numeric[name]
	if !ok {
		return nil, fmt.Errorf("numeric column %q not found", name)
	}
	return col, nil
}

func (d *Dataset) CategoricalColumn(name string) ([]string, error) {
	col, ok := d.Categorical[name]
	if !ok {
		return nil, fmt.Errorf("categorical column %q not found", name)
	}
	return col, nil
}

// dropMissing filters NaN entries.
func dropMissing(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// pairwiseComplete keeps only rows where both columns are present.
func pairwiseComplete(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(a[i]) && !math.IsNaN(b[i]) {
			xs = append(xs, a[i])
			ys = append(ys, b[i])
		}
	}
	return xs, ys
}

// listwiseComplete keeps only rows present in every column.
func listwiseComplete(cols [][]float64) [][]float64 {
	if len(cols) == 0 {
		return nil
	}
	n := len(cols[0])
	for _, c := range cols[1:] {
		if len(c) < n {
			n = len(c)
		}
	}
	out := make([][]float64, len(cols))
	for i := range out {
		out[i] = make([]float64, 0, n)
	}
	for row := 0; row < n; row++ {
		complete := true
		for _, c := range cols {
			if math.IsNaN(c[row]) {
				complete = false
				break
			}
		}
		if complete {
			for i, c := range cols {
				out[i] = append(out[i], c[row])
			}
		}
	}
	return out
}
