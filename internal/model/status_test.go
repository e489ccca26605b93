package model

import "testing"

func TestIsPhaseTerminal(t *testing.T) {
	tests := []struct {
		phase    Phase
		terminal bool
	}{
		{PhasePlanning, false},
		{PhasePlanReview, false},
		{PhaseExecuting, false},
		{PhaseAuditing, false},
		{PhaseCompleted, true},
		{PhaseFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := IsPhaseTerminal(tt.phase); got != tt.terminal {
				t.Errorf("IsPhaseTerminal(%q) = %v, want %v", tt.phase, got, tt.terminal)
			}
		})
	}
}

func TestValidatePhaseTransition(t *testing.T) {
	valid := []struct {
		from, to Phase
	}{
		{PhasePlanning, PhasePlanReview},
		{PhasePlanReview, PhasePlanning},
		{PhasePlanReview, PhaseExecuting},
		{PhaseExecuting, PhaseAuditing},
		{PhaseAuditing, PhaseExecuting},
		{PhaseAuditing, PhaseCompleted},
		{PhasePlanning, PhaseFailed},
		{PhaseExecuting, PhaseFailed},
		{PhaseAuditing, PhaseFailed},
	}
	for _, tt := range valid {
		if err := ValidatePhaseTransition(tt.from, tt.to); err != nil {
			t.Errorf("ValidatePhaseTransition(%q, %q) = %v, want nil", tt.from, tt.to, err)
		}
	}

	invalid := []struct {
		from, to Phase
	}{
		{PhasePlanning, PhaseExecuting},
		{PhasePlanning, PhaseAuditing},
		{PhaseExecuting, PhaseCompleted},
		{PhaseExecuting, PhasePlanning},
		{PhaseCompleted, PhaseExecuting},
		{PhaseFailed, PhasePlanning},
	}
	for _, tt := range invalid {
		if err := ValidatePhaseTransition(tt.from, tt.to); err == nil {
			t.Errorf("ValidatePhaseTransition(%q, %q) = nil, want error", tt.from, tt.to)
		}
	}
}

func TestValidateTaskTransition(t *testing.T) {
	valid := []struct {
		from, to TaskStatus
	}{
		{TaskPending, TaskInReview},
		{TaskPending, TaskRejected},
		{TaskInReview, TaskApproved},
		{TaskInReview, TaskRejected},
		{TaskRejected, TaskPending},
		{TaskRejected, TaskEscalated},
		{TaskApproved, TaskPending},
	}
	for _, tt := range valid {
		if err := ValidateTaskTransition(tt.from, tt.to); err != nil {
			t.Errorf("ValidateTaskTransition(%q, %q) = %v, want nil", tt.from, tt.to, err)
		}
	}

	invalid := []struct {
		from, to TaskStatus
	}{
		{TaskPending, TaskApproved},
		{TaskPending, TaskEscalated},
		{TaskApproved, TaskRejected},
		{TaskEscalated, TaskPending},
		{TaskEscalated, TaskRejected},
	}
	for _, tt := range invalid {
		if err := ValidateTaskTransition(tt.from, tt.to); err == nil {
			t.Errorf("ValidateTaskTransition(%q, %q) = nil, want error", tt.from, tt.to)
		}
	}
}

func TestDominates(t *testing.T) {
	tests := []struct {
		a, b Decision
		want bool
	}{
		{DecisionHalt, DecisionReject, true},
		{DecisionHalt, DecisionApprove, true},
		{DecisionReject, DecisionConditional, true},
		{DecisionConditional, DecisionApprove, true},
		{DecisionApprove, DecisionApprove, false},
		{DecisionApprove, DecisionHalt, false},
		{DecisionReject, DecisionHalt, false},
	}
	for _, tt := range tests {
		if got := Dominates(tt.a, tt.b); got != tt.want {
			t.Errorf("Dominates(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTierFor(t *testing.T) {
	th := Thresholds{PublicationReady: 97, ThesisReady: 95, NeedsRevision: 90}
	tests := []struct {
		composite float64
		want      Tier
	}{
		{100, TierPublicationReady},
		{97, TierPublicationReady},
		{96.9, TierThesisReady},
		{95, TierThesisReady},
		{94.9, TierNeedsRevision},
		{90, TierNeedsRevision},
		{89.9, TierMajorIssues},
		{0, TierMajorIssues},
	}
	for _, tt := range tests {
		if got := TierFor(tt.composite, th); got != tt.want {
			t.Errorf("TierFor(%.1f) = %q, want %q", tt.composite, got, tt.want)
		}
	}
}
