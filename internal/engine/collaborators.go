package engine

import (
	"context"

	"github.com/albarami/veristat/internal/model"
)

// PlanSource proposes an ordered task plan. Invoked again with the previous
// validation objections when a plan is rejected.
type PlanSource interface {
	Name() string
	ProposePlan(ctx context.Context, objective string, rejections []string) (*model.Plan, error)
}

// Generator produces one task's output fragment. Feedback carries the merged
// objections from the prior rejected attempt, or audit deficiencies during
// remediation.
type Generator interface {
	Name() string
	Generate(ctx context.Context, spec model.TaskSpec, feedback []string) (*model.ArtifactFragment, error)
}
