// Package engine drives sessions through the bounded pipeline:
// plan → validate → per-task generate/verify/review → audit → release.
// State is persisted after every phase and task transition so a crashed
// session resumes from its last durable step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/albarami/veristat/internal/audit"
	"github.com/albarami/veristat/internal/model"
	"github.com/albarami/veristat/internal/plan"
	"github.com/albarami/veristat/internal/review"
	"github.com/albarami/veristat/internal/revision"
	"github.com/albarami/veristat/internal/store"
	"github.com/albarami/veristat/internal/verify"
)

// Engine orchestrates sessions. Sessions are fully independent: each loop
// iteration touches exactly one session, and the store's per-session mutex is
// the only point of mutual exclusion.
type Engine struct {
	cfg   model.Config
	store *store.SessionStore

	plans     PlanSource
	generator Generator
	verifier  *verify.Gate
	reviews   *review.Gate
	revisions *revision.Controller
	auditor   *audit.Certifier

	logLevel LogLevel
	logger   *log.Logger

	mu        sync.Mutex
	cancelled map[string]bool

	wg sync.WaitGroup
}

func New(cfg model.Config, st *store.SessionStore, plans PlanSource, gen Generator, verifier *verify.Gate, reviewers []review.Reviewer, w io.Writer) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     st,
		plans:     plans,
		generator: gen,
		verifier:  verifier,
		reviews:   review.NewGate(reviewers, cfg.Review),
		revisions: revision.NewController(cfg.Revision),
		auditor:   audit.NewCertifier(cfg.Audit),
		logLevel:  ParseLogLevel(cfg.Logging.Level),
		logger:    log.New(w, "", 0),
		cancelled: make(map[string]bool),
	}
}

// StartSession creates a session and drives it to a terminal or blocked
// state. Returns the session in its final persisted form together with the
// pipeline outcome.
func (e *Engine) StartSession(ctx context.Context, objective string) (*model.Session, error) {
	session, err := e.store.Create()
	if err != nil {
		return nil, err
	}
	e.log(LogLevelInfo, "session started id=%s objective=%q", session.ID, objective)

	runErr := e.run(ctx, session, objective)
	return session, runErr
}

// Resume drives every non-terminal persisted session. Called once at startup.
func (e *Engine) Resume(ctx context.Context) error {
	sessions, err := e.store.Resumable()
	if err != nil {
		return err
	}
	for _, s := range sessions {
		e.log(LogLevelInfo, "resuming session id=%s phase=%s task=%d", s.ID, s.Phase, s.CurrentTask)
		e.wg.Add(1)
		go func(s *model.Session) {
			defer e.wg.Done()
			if err := e.run(ctx, s, ""); err != nil {
				e.log(LogLevelWarn, "resumed session ended id=%s err=%v", s.ID, err)
			}
		}(s)
	}
	return nil
}

// Wait blocks until every background session goroutine finishes.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// run is the phase loop. Cancellation is honored only between transitions;
// an in-flight verification either completes whole or its attempt is
// discarded.
func (e *Engine) run(ctx context.Context, s *model.Session, objective string) error {
	startedAt := time.Now()
	var planFeedback []string

	for !model.IsPhaseTerminal(s.Phase) {
		if err := e.checkCancel(ctx, s); err != nil {
			return err
		}

		switch s.Phase {
		case model.PhasePlanning:
			feedback, err := e.doPlanning(ctx, s, objective, planFeedback)
			if err != nil {
				return err
			}
			planFeedback = feedback

		case model.PhasePlanReview:
			feedback, err := e.doPlanReview(s)
			if err != nil {
				return err
			}
			planFeedback = feedback

		case model.PhaseExecuting:
			if err := e.doExecuting(ctx, s, startedAt); err != nil {
				return err
			}

		case model.PhaseAuditing:
			if err := e.doAuditing(s); err != nil {
				return err
			}

		default:
			return fmt.Errorf("session %s in unknown phase %q", s.ID, s.Phase)
		}
	}

	if s.Phase == model.PhaseFailed {
		return &HaltedError{SessionID: s.ID, Reason: s.FailureReason}
	}
	e.log(LogLevelInfo, "session completed id=%s released=%t", s.ID, s.Released)
	return nil
}

// doPlanning asks the plan source for a plan, carrying the previous
// rejection's objections. A timeout or error here fails the session: there is
// nothing to retry against without a plan.
func (e *Engine) doPlanning(ctx context.Context, s *model.Session, objective string, rejections []string) ([]string, error) {
	planCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Generate())
	defer cancel()

	p, err := e.plans.ProposePlan(planCtx, objective, rejections)
	if err != nil {
		if errors.Is(planCtx.Err(), context.DeadlineExceeded) {
			err = &CollaboratorTimeoutError{Collaborator: e.plans.Name(), Op: "propose_plan", Timeout: e.cfg.Timeouts.Generate()}
		}
		return nil, e.fail(s, fmt.Sprintf("plan source failed: %v", err))
	}

	s.Plan = p
	e.appendLog(s, "plan_source", "plan_proposed", fmt.Sprintf("tasks=%d revision=%d", len(p.Tasks), s.PlanRevisions), "")
	return nil, e.transition(s, model.PhasePlanReview)
}

// doPlanReview validates the proposed plan. A valid plan freezes into the
// task list; an invalid one is discarded whole and regenerated until the plan
// revision budget runs out.
func (e *Engine) doPlanReview(s *model.Session) ([]string, error) {
	result := plan.Validate(s.Plan, e.cfg.Plan)
	if result.Valid {
		s.Plan.ApprovedAt = time.Now().UTC().Format(time.RFC3339)
		s.Tasks = make([]model.Task, len(s.Plan.Tasks))
		for i, spec := range s.Plan.Tasks {
			s.Tasks[i] = model.Task{Spec: spec, Status: model.TaskPending}
		}
		s.CurrentTask = 0
		e.appendLog(s, "engine", "plan_approved", fmt.Sprintf("tasks=%d", len(s.Tasks)), "")
		return nil, e.transition(s, model.PhaseExecuting)
	}

	s.PlanRevisions++
	e.log(LogLevelWarn, "plan rejected id=%s revision=%d errors=%d", s.ID, s.PlanRevisions, len(result.Errors))
	e.appendLog(s, "engine", "plan_rejected", fmt.Sprintf("revision=%d errors=%d", s.PlanRevisions, len(result.Errors)), "")

	if s.PlanRevisions > e.cfg.Plan.MaxRevisions {
		s.Errors = append(s.Errors, result.Errors...)
		planErr := &PlanInvalidError{Revisions: s.PlanRevisions - 1, Reasons: result.Errors}
		if err := e.fail(s, planErr.Error()); err != nil {
			return nil, err
		}
		return nil, planErr
	}

	s.Plan = nil
	if err := e.transition(s, model.PhasePlanning); err != nil {
		return nil, err
	}
	return result.Errors, nil
}

// doExecuting drives tasks in strict plan order. Each task runs attempt
// cycles until approved; an escalated task stops execution where it stands,
// since later tasks may reference earlier frozen outputs and must never
// start while an earlier task is unresolved.
func (e *Engine) doExecuting(ctx context.Context, s *model.Session, startedAt time.Time) error {
	for s.CurrentTask < len(s.Tasks) {
		if err := e.checkCancel(ctx, s); err != nil {
			return err
		}

		task := &s.Tasks[s.CurrentTask]
		if task.Status == model.TaskApproved {
			s.CurrentTask++
			if err := e.persist(s); err != nil {
				return err
			}
			continue
		}
		if task.Status == model.TaskEscalated {
			break
		}

		if err := e.runAttempt(ctx, s, task, startedAt); err != nil {
			return err
		}
	}

	if escalated := s.EscalatedTasks(); len(escalated) > 0 {
		// Blocked, not failed: the session holds in executing until an
		// operator intervenes.
		e.log(LogLevelWarn, "session blocked id=%s escalated=%v", s.ID, escalated)
		if err := e.persist(s); err != nil {
			return err
		}
		return &RevisionExhaustedError{TaskIDs: escalated}
	}

	return e.transition(s, model.PhaseAuditing)
}

// doAuditing scores the artifact from recorded history. Below-threshold
// scores reopen the deficient tasks with the audit's objections as feedback,
// bounded by the audit pass ceiling.
func (e *Engine) doAuditing(s *model.Session) error {
	score, err := e.auditor.Certify(s)
	if err != nil {
		return e.fail(s, fmt.Sprintf("audit failed: %v", err))
	}
	s.Audits = append(s.Audits, score)
	s.AuditPasses++
	e.appendLog(s, "auditor", "audit_scored", fmt.Sprintf("pass=%d composite=%.1f tier=%s", s.AuditPasses, score.Composite, score.Tier), "")
	e.log(LogLevelInfo, "audit pass=%d id=%s composite=%.1f tier=%s releasable=%t", s.AuditPasses, s.ID, score.Composite, score.Tier, score.Releasable)

	if score.Releasable {
		s.Released = true
		return e.transition(s, model.PhaseCompleted)
	}

	if s.AuditPasses >= e.cfg.Audit.MaxPasses {
		auditErr := &AuditBelowThresholdError{Composite: score.Composite, Threshold: e.cfg.Audit.ReleaseThreshold, Passes: s.AuditPasses}
		if err := e.fail(s, auditErr.Error()); err != nil {
			return err
		}
		return auditErr
	}

	reopened := e.reopenDeficient(s, score)
	if reopened == 0 {
		// Nothing attributable to remediate; retrying audits on an unchanged
		// artifact would loop to the same score.
		auditErr := &AuditBelowThresholdError{Composite: score.Composite, Threshold: e.cfg.Audit.ReleaseThreshold, Passes: s.AuditPasses}
		if err := e.fail(s, auditErr.Error()); err != nil {
			return err
		}
		return auditErr
	}

	return e.transition(s, model.PhaseExecuting)
}

// reopenDeficient resets the tasks named by the worst deficiencies back to
// pending with the audit objections attached, and rewinds the task cursor to
// the first of them.
func (e *Engine) reopenDeficient(s *model.Session, score model.AuditScore) int {
	reopened := 0
	first := -1
	for _, def := range score.Deficiencies {
		for _, id := range def.TaskIDs {
			for i := range s.Tasks {
				task := &s.Tasks[i]
				if task.Spec.ID != id || task.Status != model.TaskApproved {
					continue
				}
				if err := model.ValidateTaskTransition(task.Status, model.TaskPending); err != nil {
					continue
				}
				task.Status = model.TaskPending
				task.Output = nil
				task.PendingFeedback = append(task.PendingFeedback, def.Reason)
				reopened++
				if first == -1 || i < first {
					first = i
				}
				e.appendLog(s, "auditor", "task_reopened", def.Reason, task.Spec.ID)
			}
		}
	}
	if first >= 0 {
		s.CurrentTask = first
	}
	return reopened
}

// GetStatus reports the current phase and a specific, attributable reason for
// any failure. Never a bare "failed".
func (e *Engine) GetStatus(id string) (*Status, error) {
	s, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}

	st := &Status{
		ID:              s.ID,
		Phase:           s.Phase,
		CurrentTask:     s.CurrentTask,
		TotalTasks:      len(s.Tasks),
		ApprovedTasks:   s.ApprovedTasks(),
		Escalated:       s.EscalatedTasks(),
		PlanRevisions:   s.PlanRevisions,
		AuditPasses:     s.AuditPasses,
		Released:        s.Released,
		FailureReason:   s.FailureReason,
		UpdatedAt:       s.UpdatedAt,
		ProgressPercent: model.ProgressPercent(s),
		LastLogEntries:  model.TailLogs(s.Logs, statusLogTail),
	}
	if a := s.LatestAudit(); a != nil {
		st.Composite = a.Composite
		st.Tier = a.Tier
	}
	return st, nil
}

// GetAuditResult returns the latest audit pass, or nil before any ran.
func (e *Engine) GetAuditResult(id string) (*model.AuditScore, error) {
	s, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	return s.LatestAudit(), nil
}

// CancelSession requests cancellation. Takes effect at the next transition
// boundary; a verification in flight finishes or is discarded whole.
func (e *Engine) CancelSession(id, reason string) error {
	s, err := e.store.Load(id)
	if err != nil {
		return err
	}
	if model.IsPhaseTerminal(s.Phase) {
		return fmt.Errorf("%w: %s", ErrSessionTerminal, id)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	s.Cancel = model.CancelState{Requested: true, RequestedAt: &now, Reason: &reason}
	if err := e.store.Save(s); err != nil {
		return err
	}

	e.mu.Lock()
	e.cancelled[id] = true
	e.mu.Unlock()

	e.log(LogLevelInfo, "cancel requested id=%s reason=%q", id, reason)
	return nil
}

// statusLogTail caps how many trailing log entries a status query returns.
const statusLogTail = 10

// Status is the user-visible session summary.
type Status struct {
	ID              string
	Phase           model.Phase
	CurrentTask     int
	TotalTasks      int
	ApprovedTasks   int
	Escalated       []string
	PlanRevisions   int
	AuditPasses     int
	Composite       float64
	Tier            model.Tier
	Released        bool
	FailureReason   string
	UpdatedAt       string
	ProgressPercent float64
	LastLogEntries  []model.LogEntry
}

func (e *Engine) checkCancel(ctx context.Context, s *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	flagged := e.cancelled[s.ID]
	e.mu.Unlock()

	if !flagged && !s.Cancel.Requested {
		return nil
	}

	if flagged && !s.Cancel.Requested {
		s.Cancel.Requested = true
	}
	reason := "cancelled"
	if s.Cancel.Reason != nil && *s.Cancel.Reason != "" {
		reason = "cancelled: " + *s.Cancel.Reason
	}
	if err := e.fail(s, reason); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrSessionCancelled, s.ID)
}

// transition validates and applies a phase change, then persists.
func (e *Engine) transition(s *model.Session, to model.Phase) error {
	if err := model.ValidatePhaseTransition(s.Phase, to); err != nil {
		return err
	}
	e.log(LogLevelDebug, "phase transition id=%s %s=>%s", s.ID, s.Phase, to)
	s.Phase = to
	return e.persist(s)
}

// fail moves the session to the failed phase with an attributable reason.
func (e *Engine) fail(s *model.Session, reason string) error {
	s.FailureReason = reason
	s.Errors = append(s.Errors, reason)
	e.log(LogLevelError, "session failed id=%s reason=%q", s.ID, reason)
	if err := model.ValidatePhaseTransition(s.Phase, model.PhaseFailed); err != nil {
		return err
	}
	s.Phase = model.PhaseFailed
	return e.persist(s)
}

func (e *Engine) persist(s *model.Session) error {
	return e.store.Save(s)
}

func (e *Engine) appendLog(s *model.Session, actor, action, detail, taskID string) {
	s.Logs = append(s.Logs, model.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor:     actor,
		Action:    action,
		Detail:    detail,
		TaskID:    taskID,
	})
}
