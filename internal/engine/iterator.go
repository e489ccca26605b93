package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/albarami/veristat/internal/model"
	"github.com/albarami/veristat/internal/revision"
)

// runAttempt drives one generate → verify → review cycle for the current
// task. Verification failure is a conclusive rejection that never reaches
// review; a review HALT fails the whole session. Every outcome lands in the
// task's append-only attempt history before the disposition is applied.
func (e *Engine) runAttempt(ctx context.Context, s *model.Session, task *model.Task, startedAt time.Time) error {
	s.GlobalAttempts++

	attemptID, err := model.GenerateID(model.IDTypeAttempt)
	if err != nil {
		return fmt.Errorf("failed to generate attempt id: %w", err)
	}
	attempt := model.Attempt{
		ID:          attemptID,
		Number:      len(task.Attempts) + 1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	feedback := task.PendingFeedback
	e.log(LogLevelInfo, "attempt started id=%s task=%s number=%d feedback_items=%d", s.ID, task.Spec.ID, attempt.Number, len(feedback))

	output, genErr := e.generate(ctx, task.Spec, feedback)
	if genErr != nil {
		attempt.Decision = model.DecisionReject
		attempt.Feedback = []string{fmt.Sprintf("generation failed: %v", genErr)}
		return e.reject(s, task, attempt, attempt.Feedback, startedAt)
	}

	vr, verifyErr := e.verify(ctx, task.Spec, output, attempt.Number)
	if verifyErr != nil {
		// The attempt is discarded whole; no partial verification result is
		// ever persisted.
		attempt.Decision = model.DecisionReject
		attempt.Feedback = []string{fmt.Sprintf("verification failed to run: %v", verifyErr)}
		return e.reject(s, task, attempt, attempt.Feedback, startedAt)
	}
	attempt.Verification = vr

	if vr.Status == model.VerificationFail {
		// Conclusive: ground truth mismatch cannot be overridden by review.
		attempt.Decision = model.DecisionReject
		attempt.Feedback = vr.Reasons
		e.appendLog(s, "verifier", "verification_failed", fmt.Sprintf("attempt=%d reasons=%d", attempt.Number, len(vr.Reasons)), task.Spec.ID)
		return e.reject(s, task, attempt, vr.Reasons, startedAt)
	}

	if err := e.setTaskStatus(s, task, model.TaskInReview); err != nil {
		return err
	}

	outcome := e.reviews.Review(ctx, task.Spec, output, vr)
	attempt.Verdicts = outcome.Verdicts
	attempt.Decision = outcome.Decision
	e.appendLog(s, "review_gate", "verdicts_issued", fmt.Sprintf("attempt=%d decision=%s", attempt.Number, outcome.Decision), task.Spec.ID)

	if outcome.Decision == model.DecisionHalt {
		task.Attempts = append(task.Attempts, attempt)
		haltErr := &ReviewHaltError{TaskID: task.Spec.ID, Reasons: outcome.Feedback}
		if err := e.fail(s, haltErr.Error()); err != nil {
			return err
		}
		return haltErr
	}

	if outcome.Approved(e.cfg.Review.ConditionalApproves) {
		task.Attempts = append(task.Attempts, attempt)
		if err := e.setTaskStatus(s, task, model.TaskApproved); err != nil {
			return err
		}
		task.Output = output
		task.PendingFeedback = nil
		s.CurrentTask++
		e.log(LogLevelInfo, "task approved id=%s task=%s attempts=%d", s.ID, task.Spec.ID, attempt.Number)
		return e.persist(s)
	}

	attempt.Feedback = outcome.Feedback
	return e.reject(s, task, attempt, outcome.Feedback, startedAt)
}

// reject records the attempt and consults the revision controller: retry with
// feedback, escalate, or halt the session when a global budget is spent.
func (e *Engine) reject(s *model.Session, task *model.Task, attempt model.Attempt, feedback []string, startedAt time.Time) error {
	task.Attempts = append(task.Attempts, attempt)

	if task.Status == model.TaskInReview || task.Status == model.TaskPending {
		if err := e.setTaskStatus(s, task, model.TaskRejected); err != nil {
			return err
		}
	}

	d := e.revisions.OnRejected(s, task, feedback, startedAt)
	switch d.Action {
	case revision.ActionRetry:
		// Objections accumulate across attempts so the producer sees the
		// whole history, not just the latest round.
		task.PendingFeedback = append(task.PendingFeedback, feedback...)
	case revision.ActionEscalate:
		task.PendingFeedback = nil
		e.log(LogLevelWarn, "task escalated id=%s task=%s revisions=%d", s.ID, task.Spec.ID, task.Revisions)
		e.appendLog(s, "revision_controller", "task_escalated", d.Reason, task.Spec.ID)
	case revision.ActionHaltSession:
		if err := e.revisions.Apply(s, task, d); err != nil {
			return err
		}
		if err := e.fail(s, d.Reason); err != nil {
			return err
		}
		return &HaltedError{SessionID: s.ID, Reason: d.Reason}
	}

	if err := e.revisions.Apply(s, task, d); err != nil {
		return err
	}
	return e.persist(s)
}

func (e *Engine) generate(ctx context.Context, spec model.TaskSpec, feedback []string) (*model.ArtifactFragment, error) {
	genCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Generate())
	defer cancel()

	output, err := e.generator.Generate(genCtx, spec, feedback)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, &CollaboratorTimeoutError{Collaborator: e.generator.Name(), Op: "generate", Timeout: e.cfg.Timeouts.Generate()}
		}
		return nil, err
	}
	return output, nil
}

func (e *Engine) verify(ctx context.Context, spec model.TaskSpec, output *model.ArtifactFragment, attempt int) (*model.VerificationResult, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Verify())
	defer cancel()

	vr, err := e.verifier.Verify(verifyCtx, spec, output, attempt)
	if err != nil {
		if errors.Is(verifyCtx.Err(), context.DeadlineExceeded) {
			return nil, &CollaboratorTimeoutError{Collaborator: "verifier", Op: "recompute", Timeout: e.cfg.Timeouts.Verify()}
		}
		return nil, err
	}
	return vr, nil
}

func (e *Engine) setTaskStatus(s *model.Session, task *model.Task, to model.TaskStatus) error {
	if err := model.ValidateTaskTransition(task.Status, to); err != nil {
		return err
	}
	task.Status = to
	return e.persist(s)
}
