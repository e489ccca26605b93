package model

import "fmt"

// Phase is the lifecycle phase of a session.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhasePlanReview Phase = "plan_review"
	PhaseExecuting  Phase = "executing"
	PhaseAuditing   Phase = "auditing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// TaskStatus is the review status of a task inside an approved plan.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskInReview  TaskStatus = "in_review"
	TaskApproved  TaskStatus = "approved"
	TaskRejected  TaskStatus = "rejected"
	TaskEscalated TaskStatus = "escalated"
)

// Decision is a reviewer verdict or the aggregated gate decision.
type Decision string

const (
	DecisionApprove     Decision = "APPROVE"
	DecisionReject      Decision = "REJECT"
	DecisionConditional Decision = "CONDITIONAL"
	DecisionHalt        Decision = "HALT"
)

// VerificationStatus is the outcome of one verification attempt.
// Recomputation errors fail closed: there is no skip state.
type VerificationStatus string

const (
	VerificationPass VerificationStatus = "pass"
	VerificationFail VerificationStatus = "fail"
)

// Tier is the certification level derived from the composite audit score.
type Tier string

const (
	TierPublicationReady Tier = "PUBLICATION-READY"
	TierThesisReady      Tier = "THESIS-READY"
	TierNeedsRevision    Tier = "NEEDS-REVISION"
	TierMajorIssues      Tier = "MAJOR-ISSUES"
)

var terminalPhases = map[Phase]bool{
	PhaseCompleted: true,
	PhaseFailed:    true,
}

var terminalTaskStatuses = map[TaskStatus]bool{
	TaskEscalated: true,
}

// Session phase transitions. Auditing may re-enter executing when the
// composite score is below the release threshold (remediation loop).
var validPhaseTransitions = map[Phase]map[Phase]bool{
	PhasePlanning: {
		PhasePlanReview: true,
		PhaseFailed:     true,
	},
	PhasePlanReview: {
		PhasePlanning:  true, // rejected plan → regenerate
		PhaseExecuting: true,
		PhaseFailed:    true,
	},
	PhaseExecuting: {
		PhaseAuditing: true,
		PhaseFailed:   true,
	},
	PhaseAuditing: {
		PhaseExecuting: true, // below release threshold → remediation
		PhaseCompleted: true,
		PhaseFailed:    true,
	},
}

// Task status transitions. rejected → pending is the retry path and
// rejected → escalated ends the retry loop; approved → pending exists only
// for audit remediation. Escalated is the sole terminal status: it requires
// external intervention.
var validTaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskPending: {
		TaskInReview: true,
		TaskRejected: true, // verification failure before any review
	},
	TaskInReview: {
		TaskApproved: true,
		TaskRejected: true,
	},
	TaskRejected: {
		TaskPending:   true,
		TaskEscalated: true,
	},
	TaskApproved: {
		TaskPending: true, // audit remediation reopens an approved task
	},
}

func IsPhaseTerminal(p Phase) bool {
	return terminalPhases[p]
}

func IsTaskTerminal(s TaskStatus) bool {
	return terminalTaskStatuses[s]
}

func ValidatePhaseTransition(from, to Phase) error {
	if IsPhaseTerminal(from) {
		return fmt.Errorf("cannot transition from terminal phase %q", from)
	}
	allowed, ok := validPhaseTransitions[from]
	if !ok {
		return fmt.Errorf("unknown phase %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid phase transition: %q → %q", from, to)
	}
	return nil
}

func ValidateTaskTransition(from, to TaskStatus) error {
	if IsTaskTerminal(from) {
		return fmt.Errorf("cannot transition from terminal task status %q", from)
	}
	allowed, ok := validTaskTransitions[from]
	if !ok {
		return fmt.Errorf("unknown task status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid task transition: %q → %q", from, to)
	}
	return nil
}

// Dominance ordering for aggregating reviewer verdicts:
// halt > reject > conditional > approve.
var decisionRank = map[Decision]int{
	DecisionApprove:     0,
	DecisionConditional: 1,
	DecisionReject:      2,
	DecisionHalt:        3,
}

// Dominates reports whether a dominates b in the consensus ordering.
func Dominates(a, b Decision) bool {
	return decisionRank[a] > decisionRank[b]
}

// TierFor maps a composite 0–100 score to a certification tier using
// fixed, non-overlapping thresholds.
func TierFor(composite float64, t Thresholds) Tier {
	switch {
	case composite >= t.PublicationReady:
		return TierPublicationReady
	case composite >= t.ThesisReady:
		return TierThesisReady
	case composite >= t.NeedsRevision:
		return TierNeedsRevision
	default:
		return TierMajorIssues
	}
}
