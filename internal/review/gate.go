// Package review routes one task's output to N independent reviewers and
// aggregates their verdicts. Approval requires unanimity; halt dominates
// reject dominates conditional dominates approve.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	"github.com/albarami/veristat/internal/model"
)

// Reviewer is one independent review oracle. Implementations are external
// collaborators; the gate only assumes they are side-effect-free.
type Reviewer interface {
	Name() string
	Review(ctx context.Context, spec model.TaskSpec, output *model.ArtifactFragment, vr *model.VerificationResult) (model.ReviewVerdict, error)
}

// Outcome is the aggregated result of one gate invocation.
type Outcome struct {
	Decision model.Decision
	Verdicts []model.ReviewVerdict
	// Feedback is the union of all objections in reviewer order, not
	// deduplicated, handed to the next generation attempt.
	Feedback []string
}

// Approved reports whether the outcome advances the task under the given
// conditional policy.
func (o Outcome) Approved(conditionalApproves bool) bool {
	switch o.Decision {
	case model.DecisionApprove:
		return true
	case model.DecisionConditional:
		return conditionalApproves
	default:
		return false
	}
}

// Gate fans a task out to every configured reviewer concurrently and joins
// the verdicts with the dominance rule.
type Gate struct {
	reviewers []Reviewer
	cfg       model.ReviewConfig
}

func NewGate(reviewers []Reviewer, cfg model.ReviewConfig) *Gate {
	return &Gate{reviewers: reviewers, cfg: cfg}
}

// Review collects every reviewer's verdict. Reviewers run concurrently and
// independently; a timeout, error, or panic from a reviewer is an implicit
// REJECT, never a silent approval. An empty reviewer set rejects too:
// approval requires at least one affirmative verdict.
func (g *Gate) Review(ctx context.Context, spec model.TaskSpec, output *model.ArtifactFragment, vr *model.VerificationResult) Outcome {
	if len(g.reviewers) == 0 {
		return Outcome{
			Decision: model.DecisionReject,
			Feedback: []string{"no reviewers configured; approval requires at least one verdict"},
		}
	}

	verdicts := make([]model.ReviewVerdict, len(g.reviewers))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, reviewer := range g.reviewers {
		i, reviewer := i, reviewer
		eg.Go(func() error {
			verdicts[i] = g.callReviewer(egCtx, reviewer, spec, output, vr)
			return nil
		})
	}
	_ = eg.Wait() // individual failures are encoded as REJECT verdicts

	return aggregate(verdicts)
}

func (g *Gate) callReviewer(ctx context.Context, reviewer Reviewer, spec model.TaskSpec, output *model.ArtifactFragment, vr *model.VerificationResult) model.ReviewVerdict {
	reviewCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout())
	defer cancel()

	var (
		verdict model.ReviewVerdict
		err     error
		catcher panics.Catcher
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		catcher.Try(func() {
			verdict, err = reviewer.Review(reviewCtx, spec, output, vr)
		})
	}()

	select {
	case <-done:
	case <-reviewCtx.Done():
		return rejectVerdict(reviewer.Name(), "reviewer timeout")
	}

	if recovered := catcher.Recovered(); recovered != nil {
		return rejectVerdict(reviewer.Name(), fmt.Sprintf("reviewer panicked: %v", recovered.Value))
	}
	if err != nil {
		return rejectVerdict(reviewer.Name(), fmt.Sprintf("reviewer error: %v", err))
	}

	verdict.Reviewer = reviewer.Name()
	if verdict.ID == "" {
		if id, idErr := model.GenerateID(model.IDTypeVerdict); idErr == nil {
			verdict.ID = id
		}
	}
	if verdict.IssuedAt == "" {
		verdict.IssuedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return verdict
}

func rejectVerdict(reviewer, reason string) model.ReviewVerdict {
	id, _ := model.GenerateID(model.IDTypeVerdict)
	return model.ReviewVerdict{
		ID:       id,
		Reviewer: reviewer,
		Decision: model.DecisionReject,
		Reasons:  []string{reason},
		IssuedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// aggregate joins verdicts under the dominance ordering and merges every
// objection into feedback.
func aggregate(verdicts []model.ReviewVerdict) Outcome {
	outcome := Outcome{
		Decision: model.DecisionApprove,
		Verdicts: verdicts,
	}

	for _, v := range verdicts {
		if model.Dominates(v.Decision, outcome.Decision) {
			outcome.Decision = v.Decision
		}
		if v.Decision != model.DecisionApprove {
			for _, reason := range v.Reasons {
				outcome.Feedback = append(outcome.Feedback, fmt.Sprintf("[%s] %s", v.Reviewer, reason))
			}
		}
	}

	return outcome
}
