package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/veristat/internal/model"
)

// stubReviewer returns a fixed verdict, optionally after a delay or by
// panicking.
type stubReviewer struct {
	name     string
	decision model.Decision
	reasons  []string
	delay    time.Duration
	panics   bool
}

func (r *stubReviewer) Name() string { return r.name }

func (r *stubReviewer) Review(ctx context.Context, spec model.TaskSpec, output *model.ArtifactFragment, vr *model.VerificationResult) (model.ReviewVerdict, error) {
	if r.panics {
		panic("reviewer exploded")
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return model.ReviewVerdict{}, ctx.Err()
		}
	}
	return model.ReviewVerdict{Decision: r.decision, Reasons: r.reasons}, nil
}

func gateWith(cfg model.ReviewConfig, reviewers ...Reviewer) *Gate {
	return NewGate(reviewers, cfg)
}

func review(t *testing.T, g *Gate) Outcome {
	t.Helper()
	return g.Review(context.Background(), model.TaskSpec{ID: "T1"}, &model.ArtifactFragment{TaskID: "T1"}, &model.VerificationResult{TaskID: "T1", Status: model.VerificationPass})
}

func TestReviewUnanimousApprove(t *testing.T) {
	g := gateWith(model.ReviewConfig{TimeoutSec: 5},
		&stubReviewer{name: "a", decision: model.DecisionApprove},
		&stubReviewer{name: "b", decision: model.DecisionApprove},
	)
	outcome := review(t, g)

	assert.Equal(t, model.DecisionApprove, outcome.Decision)
	assert.True(t, outcome.Approved(false))
	assert.Len(t, outcome.Verdicts, 2)
	assert.Empty(t, outcome.Feedback)
}

func TestReviewNoReviewersRejects(t *testing.T) {
	outcome := review(t, gateWith(model.ReviewConfig{TimeoutSec: 5}))

	assert.Equal(t, model.DecisionReject, outcome.Decision)
	assert.False(t, outcome.Approved(true), "an empty panel never approves, whatever the conditional policy")
	assert.Empty(t, outcome.Verdicts)
	require.NotEmpty(t, outcome.Feedback)
	assert.Contains(t, outcome.Feedback[0], "no reviewers configured")
}

func TestReviewDominance(t *testing.T) {
	tests := []struct {
		name      string
		decisions []model.Decision
		want      model.Decision
	}{
		{"reject beats approve", []model.Decision{model.DecisionApprove, model.DecisionReject}, model.DecisionReject},
		{"halt beats reject", []model.Decision{model.DecisionReject, model.DecisionHalt, model.DecisionApprove}, model.DecisionHalt},
		{"conditional beats approve", []model.Decision{model.DecisionConditional, model.DecisionApprove}, model.DecisionConditional},
		{"reject beats conditional", []model.Decision{model.DecisionConditional, model.DecisionReject}, model.DecisionReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reviewers := make([]Reviewer, len(tt.decisions))
			for i, d := range tt.decisions {
				reviewers[i] = &stubReviewer{name: string(rune('a' + i)), decision: d}
			}
			outcome := review(t, gateWith(model.ReviewConfig{TimeoutSec: 5}, reviewers...))
			assert.Equal(t, tt.want, outcome.Decision)
		})
	}
}

// Adding an objecting reviewer can only make the outcome stricter, never
// flip a rejection back to approval.
func TestReviewMonotonicity(t *testing.T) {
	base := []Reviewer{
		&stubReviewer{name: "a", decision: model.DecisionApprove},
		&stubReviewer{name: "b", decision: model.DecisionReject, reasons: []string{"wrong test"}},
	}
	before := review(t, gateWith(model.ReviewConfig{TimeoutSec: 5}, base...))
	after := review(t, gateWith(model.ReviewConfig{TimeoutSec: 5},
		append(base, &stubReviewer{name: "c", decision: model.DecisionApprove})...))

	assert.Equal(t, model.DecisionReject, before.Decision)
	assert.Equal(t, model.DecisionReject, after.Decision)
}

func TestReviewConditionalPolicy(t *testing.T) {
	g := gateWith(model.ReviewConfig{TimeoutSec: 5},
		&stubReviewer{name: "a", decision: model.DecisionConditional, reasons: []string{"tighten wording"}},
		&stubReviewer{name: "b", decision: model.DecisionApprove},
	)
	outcome := review(t, g)

	assert.Equal(t, model.DecisionConditional, outcome.Decision)
	assert.False(t, outcome.Approved(false), "conditional is non-approval by default")
	assert.True(t, outcome.Approved(true), "conditional approves when configured")
}

func TestReviewTimeoutIsImplicitReject(t *testing.T) {
	g := gateWith(model.ReviewConfig{TimeoutSec: 1},
		&stubReviewer{name: "fast", decision: model.DecisionApprove},
		&stubReviewer{name: "slow", decision: model.DecisionApprove, delay: 5 * time.Second},
	)
	outcome := review(t, g)

	assert.Equal(t, model.DecisionReject, outcome.Decision)
	require.Len(t, outcome.Verdicts, 2)

	var slow model.ReviewVerdict
	for _, v := range outcome.Verdicts {
		if v.Reviewer == "slow" {
			slow = v
		}
	}
	assert.Equal(t, model.DecisionReject, slow.Decision)
	require.NotEmpty(t, slow.Reasons)
	assert.Contains(t, slow.Reasons[0], "timeout")
}

func TestReviewPanicIsReject(t *testing.T) {
	g := gateWith(model.ReviewConfig{TimeoutSec: 5},
		&stubReviewer{name: "a", decision: model.DecisionApprove},
		&stubReviewer{name: "broken", panics: true},
	)
	outcome := review(t, g)

	assert.Equal(t, model.DecisionReject, outcome.Decision)
	var broken model.ReviewVerdict
	for _, v := range outcome.Verdicts {
		if v.Reviewer == "broken" {
			broken = v
		}
	}
	require.NotEmpty(t, broken.Reasons)
	assert.Contains(t, broken.Reasons[0], "panicked")
}

func TestReviewFeedbackMergedNotDeduplicated(t *testing.T) {
	g := gateWith(model.ReviewConfig{TimeoutSec: 5},
		&stubReviewer{name: "a", decision: model.DecisionReject, reasons: []string{"missing n", "wrong test"}},
		&stubReviewer{name: "b", decision: model.DecisionReject, reasons: []string{"wrong test"}},
	)
	outcome := review(t, g)

	require.Len(t, outcome.Feedback, 3, "duplicate objections from different reviewers both survive")
	assert.Contains(t, outcome.Feedback[0], "[a]")
	assert.Contains(t, outcome.Feedback[2], "[b]")
}

func TestReviewVerdictMetadataFilled(t *testing.T) {
	g := gateWith(model.ReviewConfig{TimeoutSec: 5},
		&stubReviewer{name: "a", decision: model.DecisionApprove},
	)
	outcome := review(t, g)

	require.Len(t, outcome.Verdicts, 1)
	v := outcome.Verdicts[0]
	assert.Equal(t, "a", v.Reviewer)
	assert.NotEmpty(t, v.ID)
	assert.NotEmpty(t, v.IssuedAt)
}
