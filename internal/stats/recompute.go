package stats

import (
	"context"
	"fmt"
	"math"

	"github.com/albarami/veristat/internal/model"
)

// Reference recomputes ground truth for a task's checks directly from the
// canonical dataset. It never reads generated output.
type Reference struct {
	Data *Dataset
}

func NewReference(data *Dataset) *Reference {
	return &Reference{Data: data}
}

// SourceChecksum identifies the dataset snapshot the ground truth came from.
func (r *Reference) SourceChecksum() string {
	return r.Data.Checksum()
}

// Recompute derives every check's expected value from the source data.
// Unknown columns or stats are errors, not skips: the gate fails closed.
func (r *Reference) Recompute(ctx context.Context, spec model.TaskSpec) (map[string]float64, error) {
	truth := make(map[string]float64, len(spec.Checks))
	for _, check := range spec.Checks {
		v, err := r.computeCheck(spec, check)
		if err != nil {
			return nil, fmt.Errorf("task %s check %q: %w", spec.ID, check.Name, err)
		}
		truth[check.Name] = v
	}
	return truth, nil
}

func (r *Reference) computeCheck(spec model.TaskSpec, check model.CheckSpec) (float64, error) {
	switch check.Stat {
	case "count", "mean", "std", "min", "max", "median", "variance", "missing", "skewness", "kurtosis":
		col, err := r.Data.NumericColumn(check.Column)
		if err != nil {
			return math.NaN(), err
		}
		return descriptiveStat(ComputeDescriptives(col), check.Stat)

	case "pearson_r":
		if len(check.Columns) != 2 {
			return math.NaN(), fmt.Errorf("pearson_r needs exactly 2 columns, got %d", len(check.Columns))
		}
		a, err := r.Data.NumericColumn(check.Columns[0])
		if err != nil {
			return math.NaN(), err
		}
		b, err := r.Data.NumericColumn(check.Columns[1])
		if err != nil {
			return math.NaN(), err
		}
		return Pearson(a, b), nil

	case "cronbach_alpha":
		cols := check.Columns
		if len(cols) == 0 {
			cols = spec.ScaleItems
		}
		if len(cols) < 2 {
			return math.NaN(), fmt.Errorf("cronbach_alpha needs at least 2 scale items, got %d", len(cols))
		}
		items := make([][]float64, 0, len(cols))
		for _, name := range cols {
			col, err := r.Data.NumericColumn(name)
			if err != nil {
				return math.NaN(), err
			}
			items = append(items, col)
		}
		return CronbachAlpha(items), nil

	case "cohens_d":
		if len(check.Columns) != 2 {
			return math.NaN(), fmt.Errorf("cohens_d needs exactly 2 group columns, got %d", len(check.Columns))
		}
		g1, err := r.Data.NumericColumn(check.Columns[0])
		if err != nil {
			return math.NaN(), err
		}
		g2, err := r.Data.NumericColumn(check.Columns[1])
		if err != nil {
			return math.NaN(), err
		}
		return CohensD(g1, g2), nil

	case "frequency":
		col, err := r.Data.CategoricalColumn(check.Column)
		if err != nil {
			return math.NaN(), err
		}
		return float64(Frequency(col)[check.Value]), nil

	case "proportion":
		col, err := r.Data.CategoricalColumn(check.Column)
		if err != nil {
			return math.NaN(), err
		}
		return Proportion(col, check.Value), nil

	default:
		return math.NaN(), fmt.Errorf("unknown stat %q", check.Stat)
	}
}

func descriptiveStat(d Descriptives, stat string) (float64, error) {
	switch stat {
	case "count":
		return float64(d.Count), nil
	case "missing":
		return float64(d.Missing), nil
	case "mean":
		return d.Mean, nil
	case "std":
		return d.SD, nil
	case "variance":
		return d.Variance, nil
	case "min":
		return d.Min, nil
	case "max":
		return d.Max, nil
	case "median":
		return d.Median, nil
	case "skewness":
		return d.Skewness, nil
	case "kurtosis":
		return d.Kurtosis, nil
	default:
		return math.NaN(), fmt.Errorf("unknown descriptive stat %q", stat)
	}
}
