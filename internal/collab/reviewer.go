package collab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/albarami/veristat/internal/model"
	"github.com/albarami/veristat/internal/yaml"
)

// StructuralReviewer is the deterministic in-process judge: it checks the
// shape of the output against the task spec without recomputing anything.
// It never issues HALT; substantive objections belong to external reviewers.
type StructuralReviewer struct {
	name string
}

func NewStructuralReviewer(name string) *StructuralReviewer {
	if name == "" {
		name = "structural_reviewer"
	}
	return &StructuralReviewer{name: name}
}

func (r *StructuralReviewer) Name() string { return r.name }

func (r *StructuralReviewer) Review(ctx context.Context, spec model.TaskSpec, output *model.ArtifactFragment, vr *model.VerificationResult) (model.ReviewVerdict, error) {
	var reasons []string

	if output == nil {
		return r.verdict(model.DecisionReject, []string{"no output fragment"}), nil
	}
	if output.SheetName != spec.OutputSheet {
		reasons = append(reasons, fmt.Sprintf("output sheet %q does not match declared sheet %q", output.SheetName, spec.OutputSheet))
	}
	if len(output.Cells) == 0 {
		reasons = append(reasons, "output has no cells")
	}

	for _, check := range spec.Checks {
		if _, ok := output.Cells[check.Cell]; !ok {
			reasons = append(reasons, fmt.Sprintf("declared cell %s (%s) missing from output", check.Cell, check.Name))
		}
	}

	var bare []string
	for addr, cell := range output.Cells {
		if cell.Value != nil && cell.Formula == "" {
			bare = append(bare, addr)
		}
	}
	if len(bare) > 0 {
		sort.Strings(bare)
		reasons = append(reasons, fmt.Sprintf("numeric cells without a derivation: %s", strings.Join(bare, ", ")))
	}

	if len(reasons) > 0 {
		return r.verdict(model.DecisionReject, reasons), nil
	}
	if output.Narrative == "" {
		return r.verdict(model.DecisionConditional, []string{"narrative missing from output"}), nil
	}
	return r.verdict(model.DecisionApprove, nil), nil
}

func (r *StructuralReviewer) verdict(d model.Decision, reasons []string) model.ReviewVerdict {
	return model.ReviewVerdict{
		Reviewer: r.name,
		Decision: d,
		Reasons:  reasons,
	}
}

// ReviewRequest is the file handed to an external judge. The judge answers
// with a ReviewVerdict YAML under the reviewer's responses/ directory.
type ReviewRequest struct {
	RequestID    string                    `yaml:"request_id"`
	Spec         model.TaskSpec            `yaml:"spec"`
	Output       *model.ArtifactFragment   `yaml:"output"`
	Verification *model.VerificationResult `yaml:"verification"`
	RequestedAt  string                    `yaml:"requested_at"`
}

// SpoolReviewer hands review work to an external judge through the
// filesystem, one exchange directory per reviewer identity so multiple
// judges stay independent. An unanswered request times out at the gate and
// counts as an implicit REJECT there.
type SpoolReviewer struct {
	name string
	dir  string
	poll time.Duration
}

func NewSpoolReviewer(name, dir string, poll time.Duration) (*SpoolReviewer, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	base := filepath.Join(dir, name)
	for _, sub := range []string{requestsDir(base), responsesDir(base)} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			return nil, fmt.Errorf("ensure exchange dir %s: %w", sub, err)
		}
	}
	return &SpoolReviewer{name: name, dir: base, poll: poll}, nil
}

func (r *SpoolReviewer) Name() string { return r.name }

func (r *SpoolReviewer) Review(ctx context.Context, spec model.TaskSpec, output *model.ArtifactFragment, vr *model.VerificationResult) (model.ReviewVerdict, error) {
	requestID := fmt.Sprintf("%s_%s", spec.ID, ulid.Make().String())
	req := ReviewRequest{
		RequestID:    requestID,
		Spec:         spec,
		Output:       output,
		Verification: vr,
		RequestedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	reqPath := filepath.Join(requestsDir(r.dir), requestID+".yaml")
	if err := yaml.AtomicWrite(reqPath, req); err != nil {
		return model.ReviewVerdict{}, fmt.Errorf("write review request: %w", err)
	}

	respPath := filepath.Join(responsesDir(r.dir), requestID+".yaml")
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			os.Remove(reqPath)
			return model.ReviewVerdict{}, ctx.Err()
		case <-ticker.C:
			if _, err := os.Stat(respPath); err != nil {
				continue
			}
			var verdict model.ReviewVerdict
			if err := yaml.ReadFile(respPath, &verdict); err != nil {
				return model.ReviewVerdict{}, fmt.Errorf("read review response: %w", err)
			}
			os.Remove(reqPath)
			os.Remove(respPath)
			if verdict.Decision == "" {
				return model.ReviewVerdict{}, fmt.Errorf("review response %s has no decision", requestID)
			}
			return verdict, nil
		}
	}
}
