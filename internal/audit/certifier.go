// Package audit scores a finished session across five weighted dimensions
// and decides whether the artifact is releasable. Scores are derived purely
// from the recorded attempt history; nothing is recomputed here.
package audit

import (
	"fmt"
	"sort"
	"time"

	"github.com/albarami/veristat/internal/model"
)

// Dimension names. Weights sum to 1.0 and are persisted with every score so
// a historical audit stays interpretable if the weighting ever changes.
const (
	DimMethodological  = "methodological"
	DimComputational   = "computational"
	DimAcademic        = "academic"
	DimDocumentation   = "documentation"
	DimReproducibility = "reproducibility"
)

var dimensionWeights = map[string]float64{
	DimMethodological:  0.30,
	DimComputational:   0.25,
	DimAcademic:        0.25,
	DimDocumentation:   0.15,
	DimReproducibility: 0.05,
}

// Certifier computes audit passes. Stateless; the session carries the history.
type Certifier struct {
	cfg model.AuditConfig
}

func NewCertifier(cfg model.AuditConfig) *Certifier {
	return &Certifier{cfg: cfg}
}

// Certify scores the session as it stands. A session with no tasks scores
// zero on every dimension; absence of evidence never inflates a score.
func (c *Certifier) Certify(s *model.Session) (model.AuditScore, error) {
	id, err := model.GenerateID(model.IDTypeAudit)
	if err != nil {
		return model.AuditScore{}, fmt.Errorf("failed to generate audit id: %w", err)
	}

	dims := map[string]float64{
		DimMethodological:  methodologicalScore(s),
		DimComputational:   computationalScore(s),
		DimAcademic:        academicScore(s),
		DimDocumentation:   documentationScore(s),
		DimReproducibility: reproducibilityScore(s),
	}

	composite := 0.0
	for name, weight := range dimensionWeights {
		composite += dims[name] * weight
	}

	score := model.AuditScore{
		ID:         id,
		Dimensions: dims,
		Weights:    copyWeights(),
		Composite:  composite,
		Tier:       model.TierFor(composite, c.cfg.Thresholds),
		Releasable: composite >= c.cfg.ReleaseThreshold,
		ComputedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if !score.Releasable {
		score.Deficiencies = deficienciesFor(s, dims, c.cfg.ReleaseThreshold)
	}
	return score, nil
}

// methodologicalScore is the share of planned tasks that reached approval.
// Escalated tasks count against it in full.
func methodologicalScore(s *model.Session) float64 {
	if len(s.Tasks) == 0 {
		return 0
	}
	return float64(s.ApprovedTasks()) / float64(len(s.Tasks)) * 100
}

// computationalScore averages the final verification pass rate of each task.
// Only the last attempt counts; earlier failures were already paid for in
// revisions.
func computationalScore(s *model.Session) float64 {
	if len(s.Tasks) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range s.Tasks {
		vr := finalVerification(&t)
		if vr == nil {
			continue // missing evidence scores zero
		}
		if len(vr.Checks) == 0 {
			if vr.Status == model.VerificationPass {
				total += 100
			}
			continue
		}
		passed := 0
		for _, fc := range vr.Checks {
			if fc.Pass {
				passed++
			}
		}
		total += float64(passed) / float64(len(vr.Checks)) * 100
	}
	return total / float64(len(s.Tasks))
}

// academicScore is the approve share of every verdict ever issued. Review
// friction across the whole history lowers it; a clean first-pass session
// scores 100.
func academicScore(s *model.Session) float64 {
	approvals, total := 0, 0
	for _, t := range s.Tasks {
		for _, a := range t.Attempts {
			for _, v := range a.Verdicts {
				total++
				if v.Decision == model.DecisionApprove {
					approvals++
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(approvals) / float64(total) * 100
}

// documentationScore averages the structural coverage of each frozen output:
// the share of numeric cells backed by a formula.
func documentationScore(s *model.Session) float64 {
	if len(s.Tasks) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range s.Tasks {
		if vr := finalVerification(&t); vr != nil {
			total += vr.Coverage
		}
	}
	return total / float64(len(s.Tasks))
}

// reproducibilityScore is the share of attempts that carry a persisted
// verification record with a fingerprint, so the run can be replayed.
func reproducibilityScore(s *model.Session) float64 {
	recorded, total := 0, 0
	for _, t := range s.Tasks {
		for _, a := range t.Attempts {
			total++
			if a.Verification != nil && a.Verification.Fingerprint != "" {
				recorded++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(recorded) / float64(total) * 100
}

func finalVerification(t *model.Task) *model.VerificationResult {
	for i := len(t.Attempts) - 1; i >= 0; i-- {
		if t.Attempts[i].Verification != nil {
			return t.Attempts[i].Verification
		}
	}
	return nil
}

// deficienciesFor names the dimensions dragging the composite below the
// release threshold, worst first, with the task ids responsible. These become
// remediation feedback when the session re-enters the task loop.
func deficienciesFor(s *model.Session, dims map[string]float64, threshold float64) []model.Deficiency {
	type ranked struct {
		name  string
		score float64
	}
	order := make([]ranked, 0, len(dims))
	for name, score := range dims {
		if score < threshold {
			order = append(order, ranked{name, score})
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score < order[j].score
		}
		return order[i].name < order[j].name
	})

	defs := make([]model.Deficiency, 0, len(order))
	for _, r := range order {
		defs = append(defs, model.Deficiency{
			Dimension: r.name,
			TaskIDs:   offendingTasks(s, r.name),
			Reason:    fmt.Sprintf("%s scored %.1f, below release threshold %.1f", r.name, r.score, threshold),
		})
	}
	return defs
}

func offendingTasks(s *model.Session, dimension string) []string {
	var ids []string
	for _, t := range s.Tasks {
		switch dimension {
		case DimMethodological:
			if t.Status != model.TaskApproved {
				ids = append(ids, t.Spec.ID)
			}
		case DimComputational:
			vr := finalVerification(&t)
			if vr == nil || vr.Status == model.VerificationFail {
				ids = append(ids, t.Spec.ID)
			}
		case DimAcademic:
			if hasNonApproval(&t) {
				ids = append(ids, t.Spec.ID)
			}
		case DimDocumentation:
			if vr := finalVerification(&t); vr == nil || vr.Coverage < 100 {
				ids = append(ids, t.Spec.ID)
			}
		case DimReproducibility:
			if missingVerification(&t) {
				ids = append(ids, t.Spec.ID)
			}
		}
	}
	return ids
}

func hasNonApproval(t *model.Task) bool {
	for _, a := range t.Attempts {
		for _, v := range a.Verdicts {
			if v.Decision != model.DecisionApprove {
				return true
			}
		}
	}
	return false
}

func missingVerification(t *model.Task) bool {
	for _, a := range t.Attempts {
		if a.Verification == nil || a.Verification.Fingerprint == "" {
			return true
		}
	}
	return len(t.Attempts) == 0
}

func copyWeights() map[string]float64 {
	w := make(map[string]float64, len(dimensionWeights))
	for k, v := range dimensionWeights {
		w[k] = v
	}
	return w
}
