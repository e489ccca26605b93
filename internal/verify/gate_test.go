package verify

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/veristat/internal/model"
)

// fakeRecomputer returns canned ground truth and counts invocations so the
// tests can observe caching.
type fakeRecomputer struct {
	truth    map[string]float64
	err      error
	checksum string
	calls    int
}

func (f *fakeRecomputer) Recompute(ctx context.Context, spec model.TaskSpec) (map[string]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.truth, nil
}

func (f *fakeRecomputer) SourceChecksum() string {
	if f.checksum == "" {
		return "src-1"
	}
	return f.checksum
}

func ptr(v float64) *float64 { return &v }

func specWithCheck(kind model.FieldKind) model.TaskSpec {
	return model.TaskSpec{
		ID:          "T1",
		OutputSheet: "3_Desc",
		Checks: []model.CheckSpec{
			{Name: "age_mean", Cell: "B2", Kind: kind, Stat: "mean", Column: "age"},
		},
	}
}

func outputWithValue(v float64) *model.ArtifactFragment {
	return &model.ArtifactFragment{
		TaskID:    "T1",
		SheetName: "3_Desc",
		Cells: map[string]model.Cell{
			"B2": {Value: ptr(v), Formula: "=AVERAGE(data!C2:C100)"},
		},
		Narrative: "mean age of the sample",
	}
}

func TestVerifyPass(t *testing.T) {
	gate := NewGate(&fakeRecomputer{truth: map[string]float64{"age_mean": 30.0}})
	vr, err := gate.Verify(context.Background(), specWithCheck(model.FieldStatistic), outputWithValue(30.0), 1)
	require.NoError(t, err)

	assert.Equal(t, model.VerificationPass, vr.Status)
	assert.True(t, vr.CoveragePass)
	assert.Equal(t, 100.0, vr.Coverage)
	require.Len(t, vr.Checks, 1)
	assert.True(t, vr.Checks[0].Pass)
	assert.NotEmpty(t, vr.Fingerprint)
}

func TestVerifyToleranceByKind(t *testing.T) {
	tests := []struct {
		name     string
		kind     model.FieldKind
		expected float64
		actual   float64
		pass     bool
	}{
		{"count exact match", model.FieldCount, 120, 120, true},
		{"count off by one", model.FieldCount, 120, 121, false},
		{"proportion within 0.01", model.FieldProportion, 0.50, 0.505, true},
		{"proportion outside 0.01", model.FieldProportion, 5.00, 5.02, false},
		{"statistic within relative tolerance", model.FieldStatistic, 1000, 1000.05, true},
		{"statistic outside relative tolerance", model.FieldStatistic, 1000, 1000.2, false},
		{"statistic near zero absolute", model.FieldStatistic, 0.00001, 0.0000105, true},
		{"exact within 1e-6", model.FieldExact, 1.0, 1.0000005, true},
		{"exact outside 1e-6", model.FieldExact, 1.0, 1.00001, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(&fakeRecomputer{truth: map[string]float64{"age_mean": tt.expected}})
			vr, err := gate.Verify(context.Background(), specWithCheck(tt.kind), outputWithValue(tt.actual), 1)
			require.NoError(t, err)

			require.Len(t, vr.Checks, 1)
			assert.Equal(t, tt.pass, vr.Checks[0].Pass, "detail: %s", vr.Checks[0].Detail)
			if tt.pass {
				assert.Equal(t, model.VerificationPass, vr.Status)
			} else {
				assert.Equal(t, model.VerificationFail, vr.Status)
			}
		})
	}
}

func TestVerifyBareLiteralFails(t *testing.T) {
	gate := NewGate(&fakeRecomputer{truth: map[string]float64{"age_mean": 30.0}})
	output := outputWithValue(30.0)
	output.Cells["C5"] = model.Cell{Value: ptr(42.0)} // no formula

	vr, err := gate.Verify(context.Background(), specWithCheck(model.FieldStatistic), output, 1)
	require.NoError(t, err)

	// The declared check matches ground truth exactly, but the bare literal
	// fails the attempt anyway.
	assert.Equal(t, model.VerificationFail, vr.Status)
	assert.False(t, vr.CoveragePass)
	assert.Equal(t, 50.0, vr.Coverage)
	require.NotEmpty(t, vr.Reasons)
	assert.Contains(t, vr.Reasons[0], "C5")
}

func TestVerifyNilOutputFails(t *testing.T) {
	gate := NewGate(&fakeRecomputer{truth: map[string]float64{"age_mean": 30.0}})
	vr, err := gate.Verify(context.Background(), specWithCheck(model.FieldStatistic), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationFail, vr.Status)
}

func TestVerifyRecomputationErrorFailsClosed(t *testing.T) {
	gate := NewGate(&fakeRecomputer{err: errors.New("column missing")})
	vr, err := gate.Verify(context.Background(), specWithCheck(model.FieldStatistic), outputWithValue(30.0), 1)
	require.NoError(t, err)

	assert.Equal(t, model.VerificationFail, vr.Status)
	require.NotEmpty(t, vr.Reasons)
	assert.Contains(t, vr.Reasons[0], "recomputation failed")
}

func TestVerifyMissingCellFails(t *testing.T) {
	gate := NewGate(&fakeRecomputer{truth: map[string]float64{"age_mean": 30.0}})
	output := &model.ArtifactFragment{
		TaskID:    "T1",
		SheetName: "3_Desc",
		Cells:     map[string]model.Cell{"Z9": {Text: "irrelevant"}},
	}
	vr, err := gate.Verify(context.Background(), specWithCheck(model.FieldStatistic), output, 1)
	require.NoError(t, err)

	assert.Equal(t, model.VerificationFail, vr.Status)
	require.Len(t, vr.Checks, 1)
	assert.Contains(t, vr.Checks[0].Detail, "missing or non-numeric")
}

func TestVerifyNaNGroundTruthFails(t *testing.T) {
	gate := NewGate(&fakeRecomputer{truth: map[string]float64{"age_mean": math.NaN()}})
	vr, err := gate.Verify(context.Background(), specWithCheck(model.FieldStatistic), outputWithValue(30.0), 1)
	require.NoError(t, err)

	assert.Equal(t, model.VerificationFail, vr.Status)
	require.Len(t, vr.Checks, 1)
	assert.Contains(t, vr.Checks[0].Detail, "undefined")
}

func TestVerifyIdempotent(t *testing.T) {
	rec := &fakeRecomputer{truth: map[string]float64{"age_mean": 30.0}}
	gate := NewGate(rec)
	spec := specWithCheck(model.FieldStatistic)
	output := outputWithValue(30.0)

	first, err := gate.Verify(context.Background(), spec, output, 1)
	require.NoError(t, err)
	second, err := gate.Verify(context.Background(), spec, output, 2)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 2, second.Attempt, "attempt number reflects the caller, not the cache")
	assert.Equal(t, 1, rec.calls, "identical inputs recompute once")
}

func TestVerifyFingerprintChangesWithOutput(t *testing.T) {
	rec := &fakeRecomputer{truth: map[string]float64{"age_mean": 30.0}}
	gate := NewGate(rec)
	spec := specWithCheck(model.FieldStatistic)

	a, err := gate.Verify(context.Background(), spec, outputWithValue(30.0), 1)
	require.NoError(t, err)
	b, err := gate.Verify(context.Background(), spec, outputWithValue(31.0), 2)
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, 2, rec.calls)
}

func TestToleranceFor(t *testing.T) {
	assert.Equal(t, 0.0, ToleranceFor(model.FieldCount, 42))
	assert.Equal(t, 0.01, ToleranceFor(model.FieldProportion, 0.3))
	assert.InDelta(t, 1e-4*250.0, ToleranceFor(model.FieldStatistic, 250.0), 1e-12)
	assert.Equal(t, 1e-6, ToleranceFor(model.FieldStatistic, 0.00001))
	assert.Equal(t, 1e-6, ToleranceFor(model.FieldExact, 9.9))
}
