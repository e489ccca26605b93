package stats

import (
	"math"
	"sort"
)

// Descriptives holds the standard descriptive statistics for one column.
// Sample (n-1) denominators throughout; skewness and excess kurtosis are
// bias-corrected and NaN below their minimum n.
type Descriptives struct {
	Count    int
	Missing  int
	Mean     float64
	SD       float64
	Variance float64
	Min      float64
	Max      float64
	Median   float64
	Skewness float64
	Kurtosis float64
}

func ComputeDescriptives(raw []float64) Descriptives {
	values := dropMissing(raw)
	d := Descriptives{
		Count:   len(values),
		Missing: len(raw) - len(values),
	}
	if len(values) == 0 {
		d.Mean, d.SD, d.Variance = math.NaN(), math.NaN(), math.NaN()
		d.Min, d.Max, d.Median = math.NaN(), math.NaN(), math.NaN()
		d.Skewness, d.Kurtosis = math.NaN(), math.NaN()
		return d
	}

	d.Mean = mean(values)
	d.Variance = variance(values, d.Mean)
	d.SD = math.Sqrt(d.Variance)
	d.Min, d.Max = minMax(values)
	d.Median = median(values)
	d.Skewness = skewness(values, d.Mean, d.SD)
	d.Kurtosis = kurtosis(values, d.Mean, d.SD)
	return d
}

// Pearson computes the product-moment correlation over pairwise-complete
// observations. NaN with fewer than 3 pairs.
func Pearson(a, b []float64) float64 {
	xs, ys := pairwiseComplete(a, b)
	n := len(xs)
	if n < 3 {
		return math.NaN()
	}

	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

// CronbachAlpha computes internal-consistency reliability over
// listwise-complete rows: (k/(k-1)) * (1 - Σ item variances / total variance).
func CronbachAlpha(items [][]float64) float64 {
	k := len(items)
	if k < 2 {
		return math.NaN()
	}
	complete := listwiseComplete(items)
	n := len(complete[0])
	if n < 2 {
		return math.NaN()
	}

	var itemVarSum float64
	totals := make([]float64, n)
	for _, item := range complete {
		m := mean(item)
		itemVarSum += variance(item, m)
		for row, v := range item {
			totals[row] += v
		}
	}
	totalVar := variance(totals, mean(totals))
	if totalVar == 0 {
		return 0.0
	}
	return (float64(k) / float64(k-1)) * (1 - itemVarSum/totalVar)
}

// CohensD computes the standardized mean difference between two groups
// using the pooled standard deviation.
func CohensD(group1, group2 []float64) float64 {
	g1 := dropMissing(group1)
	g2 := dropMissing(group2)
	if len(g1) < 2 || len(g2) < 2 {
		return math.NaN()
	}

	n1, n2 := float64(len(g1)), float64(len(g2))
	m1, m2 := mean(g1), mean(g2)
	v1, v2 := variance(g1, m1), variance(g2, m2)

	pooled := math.Sqrt(((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2))
	if pooled == 0 {
		return 0.0
	}
	return (m1 - m2) / pooled
}

// Frequency counts occurrences of each non-missing categorical value.
func Frequency(values []string) map[string]int {
	counts := make(map[string]int)
	for _, v := range values {
		if v == "" {
			continue
		}
		counts[v]++
	}
	return counts
}

// Proportion is the share of non-missing observations equal to value.
func Proportion(values []string, value string) float64 {
	total := 0
	matched := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		total++
		if v == value {
			matched++
		}
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(matched) / float64(total)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64, m float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return ss / float64(len(values)-1)
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// skewness is the adjusted Fisher–Pearson coefficient G1. NaN below n=3.
func skewness(values []float64, m, sd float64) float64 {
	n := float64(len(values))
	if n < 3 || sd == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		z := (v - m) / sd
		sum += z * z * z
	}
	return (n / ((n - 1) * (n - 2))) * sum
}

// kurtosis is bias-corrected excess kurtosis G2. NaN below n=4.
func kurtosis(values []float64, m, sd float64) float64 {
	n := float64(len(values))
	if n < 4 || sd == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		z := (v - m) / sd
		sum += z * z * z * z
	}
	term := (n * (n + 1)) / ((n - 1) * (n - 2) * (n - 3))
	correction := (3 * (n - 1) * (n - 1)) / ((n - 2) * (n - 3))
	return term*sum - correction
}
