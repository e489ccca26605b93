// Package revision decides what happens to a task after a failed
// verification or a non-approving review: retry with feedback, or escalate
// when the revision budget is spent.
package revision

import (
	"fmt"
	"time"

	"github.com/albarami/veristat/internal/model"
)

// Action is the controller's disposition for one rejected attempt.
type Action string

const (
	// ActionRetry re-queues the task for another generation attempt.
	ActionRetry Action = "retry"
	// ActionEscalate marks the task escalated; execution holds there until
	// an operator intervenes.
	ActionEscalate Action = "escalate"
	// ActionHaltSession stops the whole session. Only the global ceiling or
	// the wall clock produce this.
	ActionHaltSession Action = "halt_session"
)

// Disposition is the full outcome of one controller decision.
type Disposition struct {
	Action   Action
	Reason   string
	Feedback []string
}

// Controller applies the layered revision budget: a per-task cap, a global
// attempt ceiling, and a wall-clock limit. The global bounds hold even when
// per-task revisions are configured unlimited, so every session terminates.
type Controller struct {
	cfg model.RevisionConfig
}

func NewController(cfg model.RevisionConfig) *Controller {
	return &Controller{cfg: cfg}
}

// OnRejected decides the disposition for a task whose latest attempt did not
// approve. The caller passes the session so the global budgets are visible.
func (c *Controller) OnRejected(s *model.Session, task *model.Task, feedback []string, startedAt time.Time) Disposition {
	if d, halted := c.checkGlobalBudgets(s, startedAt); halted {
		return d
	}

	if !c.cfg.Unlimited && task.Revisions >= c.cfg.MaxPerTask {
		return Disposition{
			Action: ActionEscalate,
			Reason: fmt.Sprintf("revision budget exhausted: %d of %d revisions used", task.Revisions, c.cfg.MaxPerTask),
		}
	}

	return Disposition{
		Action:   ActionRetry,
		Reason:   fmt.Sprintf("revision %d of %s", task.Revisions+1, c.budgetLabel()),
		Feedback: feedback,
	}
}

// Apply mutates the task and session counters for a decided disposition.
// Retry resets the task to pending so the iterator regenerates it; escalate
// is terminal for the task but not the session.
func (c *Controller) Apply(s *model.Session, task *model.Task, d Disposition) error {
	switch d.Action {
	case ActionRetry:
		if err := model.ValidateTaskTransition(task.Status, model.TaskPending); err != nil {
			return err
		}
		task.Status = model.TaskPending
		task.Revisions++
	case ActionEscalate:
		if err := model.ValidateTaskTransition(task.Status, model.TaskEscalated); err != nil {
			return err
		}
		task.Status = model.TaskEscalated
	case ActionHaltSession:
		s.FailureReason = d.Reason
	default:
		return fmt.Errorf("unknown revision action %q", d.Action)
	}
	return nil
}

// BudgetRemaining reports how many revisions the task may still consume, or
// -1 when per-task revisions are unlimited.
func (c *Controller) BudgetRemaining(task *model.Task) int {
	if c.cfg.Unlimited {
		return -1
	}
	remaining := c.cfg.MaxPerTask - task.Revisions
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (c *Controller) checkGlobalBudgets(s *model.Session, startedAt time.Time) (Disposition, bool) {
	if s.GlobalAttempts >= c.cfg.SessionCeiling {
		return Disposition{
			Action: ActionHaltSession,
			Reason: fmt.Sprintf("session attempt ceiling reached: %d attempts", s.GlobalAttempts),
		}, true
	}
	if limit := c.cfg.WallClock(); limit > 0 && time.Since(startedAt) >= limit {
		return Disposition{
			Action: ActionHaltSession,
			Reason: fmt.Sprintf("wall clock limit reached: %s elapsed", limit),
		}, true
	}
	return Disposition{}, false
}

func (c *Controller) budgetLabel() string {
	if c.cfg.Unlimited {
		return "unlimited budget"
	}
	return fmt.Sprintf("%d", c.cfg.MaxPerTask)
}
