// Package verify recomputes expected results from canonical source data and
// compares generated output against them within per-field-kind tolerances.
// The gate fails closed: a recomputation error is a FAIL, never a skip.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/albarami/veristat/internal/model"
)

// Tolerance constants by field kind. Tolerance belongs to the kind of the
// field, not to a global knob.
const (
	defaultTolerance     = 1e-6
	proportionTolerance  = 0.01
	statisticalTolerance = 1e-4 // relative, except near zero
	nearZeroBound        = 1e-4
)

// Recomputer derives ground-truth values for a task's checks from the
// canonical source, never from generated output.
type Recomputer interface {
	Recompute(ctx context.Context, spec model.TaskSpec) (map[string]float64, error)
	SourceChecksum() string
}

// Gate verifies generated output against independently recomputed ground
// truth. Results for identical inputs are cached and deduplicated.
type Gate struct {
	recomputer Recomputer
	cache      *resultCache
	sf         singleflight.Group
}

func NewGate(recomputer Recomputer) *Gate {
	return &Gate{
		recomputer: recomputer,
		cache:      newResultCache(1000, 30*time.Minute),
	}
}

// Verify runs one verification attempt. The attempt is atomic: it either
// fully recomputes and compares, or the error discards it; partial results
// are never produced. Identical (task, output, source) inputs yield
// identical results.
func (g *Gate) Verify(ctx context.Context, spec model.TaskSpec, output *model.ArtifactFragment, attempt int) (*model.VerificationResult, error) {
	fp := g.fingerprint(spec, output)

	if cached := g.cache.Get(fp); cached != nil {
		result := *cached
		result.Attempt = attempt
		return &result, nil
	}

	v, err, _ := g.sf.Do(fp, func() (interface{}, error) {
		return g.verifyUncached(ctx, spec, output, fp), nil
	})
	if err != nil {
		return nil, err
	}

	result := *(v.(*model.VerificationResult))
	result.Attempt = attempt
	g.cache.Set(fp, &result)
	return &result, nil
}

func (g *Gate) verifyUncached(ctx context.Context, spec model.TaskSpec, output *model.ArtifactFragment, fp string) *model.VerificationResult {
	result := &model.VerificationResult{
		TaskID:      spec.ID,
		Status:      model.VerificationPass,
		Fingerprint: fp,
		VerifiedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	if output == nil {
		result.Status = model.VerificationFail
		result.Reasons = append(result.Reasons, "no generated output to verify")
		return result
	}

	// Structural coverage first: every numeric result cell must be backed
	// by a declared derivation. A bare literal fails regardless of value.
	coverage, literals := coverageOf(output)
	result.Coverage = coverage
	result.CoveragePass = len(literals) == 0
	if !result.CoveragePass {
		result.Status = model.VerificationFail
		for _, cell := range literals {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("cell %s holds a bare numeric literal with no derivation", cell))
		}
	}

	// Independent recomputation from canonical source data.
	truth, err := g.recomputer.Recompute(ctx, spec)
	if err != nil {
		result.Status = model.VerificationFail
		result.Reasons = append(result.Reasons, fmt.Sprintf("ground truth recomputation failed: %v", err))
		return result
	}

	for _, check := range spec.Checks {
		fc := compareCheck(check, truth, output)
		result.Checks = append(result.Checks, fc)
		if !fc.Pass {
			result.Status = model.VerificationFail
			result.Reasons = append(result.Reasons, fmt.Sprintf("check %q: %s", fc.Name, fc.Detail))
		}
	}

	return result
}

func compareCheck(check model.CheckSpec, truth map[string]float64, output *model.ArtifactFragment) model.FieldCheck {
	fc := model.FieldCheck{
		Name: check.Name,
		Cell: check.Cell,
		Kind: check.Kind,
	}

	expected, ok := truth[check.Name]
	if !ok {
		fc.Detail = "no ground truth value computed"
		return fc
	}
	fc.Expected = expected
	fc.Tolerance = ToleranceFor(check.Kind, expected)

	if math.IsNaN(expected) {
		fc.Detail = "ground truth undefined for source data"
		return fc
	}

	cell, ok := output.Cells[check.Cell]
	if !ok || cell.Value == nil {
		fc.Detail = fmt.Sprintf("cell %s missing or non-numeric in generated output", check.Cell)
		return fc
	}
	fc.Actual = cell.Value

	diff := math.Abs(expected - *cell.Value)
	fc.Pass = diff <= fc.Tolerance
	if !fc.Pass {
		fc.Detail = fmt.Sprintf("expected %.6g, got %.6g (diff %.3g > tolerance %.3g)",
			expected, *cell.Value, diff, fc.Tolerance)
	}
	return fc
}

// ToleranceFor resolves the comparison tolerance for a field kind. Counts
// match exactly; statistics use a relative epsilon except near zero, where
// relative comparison degenerates.
func ToleranceFor(kind model.FieldKind, expected float64) float64 {
	switch kind {
	case model.FieldCount:
		return 0
	case model.FieldProportion:
		return proportionTolerance
	case model.FieldStatistic:
		if math.Abs(expected) < nearZeroBound {
			return defaultTolerance
		}
		return statisticalTolerance * math.Abs(expected)
	default:
		return defaultTolerance
	}
}

// coverageOf returns the percentage of numeric cells backed by a formula or
// reference, and the refs of any bare literals. No numeric cells counts as
// full coverage.
func coverageOf(output *model.ArtifactFragment) (float64, []string) {
	numeric := 0
	backed := 0
	var literals []string

	refs := make([]string, 0, len(output.Cells))
	for ref := range output.Cells {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	for _, ref := range refs {
		cell := output.Cells[ref]
		if cell.Value == nil {
			continue
		}
		numeric++
		if cell.Formula != "" {
			backed++
		} else {
			literals = append(literals, ref)
		}
	}

	if numeric == 0 {
		return 100.0, nil
	}
	return float64(backed) / float64(numeric) * 100, literals
}

// fingerprint hashes task spec identity, the full generated output, and the
// source data checksum into the cache key.
func (g *Gate) fingerprint(spec model.TaskSpec, output *model.ArtifactFragment) string {
	h := sha256.New()
	fmt.Fprintf(h, "task:%s\n", spec.ID)
	for _, check := range spec.Checks {
		fmt.Fprintf(h, "check:%s:%s:%s:%s:%s:%v:%s\n",
			check.Name, check.Cell, check.Kind, check.Stat, check.Column, check.Columns, check.Value)
	}
	if output != nil {
		fmt.Fprintf(h, "sheet:%s\n", output.SheetName)
		refs := make([]string, 0, len(output.Cells))
		for ref := range output.Cells {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			cell := output.Cells[ref]
			if cell.Value != nil {
				fmt.Fprintf(h, "cell:%s:%x:%s:%s\n", ref, math.Float64bits(*cell.Value), cell.Formula, cell.Text)
			} else {
				fmt.Fprintf(h, "cell:%s:nil:%s:%s\n", ref, cell.Formula, cell.Text)
			}
		}
	}
	fmt.Fprintf(h, "source:%s\n", g.recomputer.SourceChecksum())
	return hex.EncodeToString(h.Sum(nil))
}
