package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrSessionTerminal  = errors.New("session is in a terminal phase")
	ErrSessionCancelled = errors.New("session cancelled")
)

// PlanInvalidError means the plan failed validation more times than the plan
// revision budget allows. The session never executed a task.
type PlanInvalidError struct {
	Revisions int
	Reasons   []string
}

func (e *PlanInvalidError) Error() string {
	return fmt.Sprintf("plan invalid after %d revisions: %s", e.Revisions, strings.Join(e.Reasons, "; "))
}

// ReviewHaltError is terminal: a reviewer demanded external intervention.
// Never retried.
type ReviewHaltError struct {
	TaskID  string
	Reasons []string
}

func (e *ReviewHaltError) Error() string {
	return fmt.Sprintf("review halted on task %s: %s", e.TaskID, strings.Join(e.Reasons, "; "))
}

// RevisionExhaustedError reports tasks escalated after the revision budget.
// The session stays in the executing phase awaiting intervention; it is not
// silently advanced to audit.
type RevisionExhaustedError struct {
	TaskIDs []string
}

func (e *RevisionExhaustedError) Error() string {
	return fmt.Sprintf("escalated tasks require intervention: %s", strings.Join(e.TaskIDs, ", "))
}

// AuditBelowThresholdError means every audit pass stayed under the release
// threshold. The artifact is never released best-effort.
type AuditBelowThresholdError struct {
	Composite float64
	Threshold float64
	Passes    int
}

func (e *AuditBelowThresholdError) Error() string {
	return fmt.Sprintf("audit composite %.1f below release threshold %.1f after %d passes", e.Composite, e.Threshold, e.Passes)
}

// CollaboratorTimeoutError marks an external call that exceeded its deadline.
// Routed through the same rejection machinery as a substantive failure and
// counted against the revision budget.
type CollaboratorTimeoutError struct {
	Collaborator string
	Op           string
	Timeout      time.Duration
}

func (e *CollaboratorTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out during %s after %s", e.Collaborator, e.Op, e.Timeout)
}

// HaltedError wraps the reason a session entered the failed phase.
type HaltedError struct {
	SessionID string
	Reason    string
}

func (e *HaltedError) Error() string {
	return fmt.Sprintf("session %s failed: %s", e.SessionID, e.Reason)
}
