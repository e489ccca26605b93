// Package model defines the persisted data structures for veristat sessions:
// plans, tasks, verification and review records, and audit scores.
package model

// Session is one end-to-end pipeline run. It exclusively owns its plan,
// tasks, and the append-only attempt history; the store is the only
// component that writes it to disk.
type Session struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
	ID            string `yaml:"session_id"`
	Phase         Phase  `yaml:"phase"`

	Plan          *Plan `yaml:"plan"`
	PlanRevisions int   `yaml:"plan_revisions"`

	CurrentTask int    `yaml:"current_task"`
	Tasks       []Task `yaml:"tasks"`

	// GlobalAttempts counts every generation attempt across all tasks,
	// including remediation passes. Bounded by the session ceiling so the
	// pipeline provably terminates even with unlimited per-task revisions.
	GlobalAttempts int `yaml:"global_attempts"`

	AuditPasses int          `yaml:"audit_passes"`
	Audits      []AuditScore `yaml:"audits,omitempty"`
	Released    bool         `yaml:"released"`

	Cancel CancelState `yaml:"cancel"`

	Logs          []LogEntry `yaml:"logs,omitempty"`
	Errors        []string   `yaml:"errors,omitempty"`
	FailureReason string     `yaml:"failure_reason,omitempty"`

	CreatedAt string `yaml:"created_at"`
	UpdatedAt string `yaml:"updated_at"`
}

// Plan is the ordered task list for one session. Immutable once approved;
// a rejected plan is discarded whole and regenerated.
type Plan struct {
	Source     string     `yaml:"source"`
	Tasks      []TaskSpec `yaml:"tasks"`
	ApprovedAt string     `yaml:"approved_at,omitempty"`
}

// TaskSpec is one unit of work proposed by the plan source.
type TaskSpec struct {
	ID          string      `yaml:"id"`
	Phase       string      `yaml:"phase"`
	Type        string      `yaml:"type"`
	Name        string      `yaml:"name"`
	Objective   string      `yaml:"objective"`
	Method      string      `yaml:"method,omitempty"`
	OutputSheet string      `yaml:"output_sheet"`
	Columns     []string    `yaml:"columns,omitempty"`
	GroupBy     string      `yaml:"group_by,omitempty"`
	ScaleItems  []string    `yaml:"scale_items,omitempty"`
	DependsOn   []string    `yaml:"depends_on,omitempty"`
	Checks      []CheckSpec `yaml:"checks,omitempty"`
}

// FieldKind classifies a verified value and selects its tolerance policy.
type FieldKind string

const (
	FieldCount      FieldKind = "count"      // exact match
	FieldProportion FieldKind = "proportion" // absolute 0.01
	FieldStatistic  FieldKind = "statistic"  // relative 1e-4, absolute 1e-6 near zero
	FieldExact      FieldKind = "exact"      // absolute 1e-6
)

// CheckSpec declares one ground-truth comparison for a task: which cell of
// the generated output holds the value, how to recompute it, and the field
// kind that fixes its tolerance.
type CheckSpec struct {
	Name    string    `yaml:"name"`
	Cell    string    `yaml:"cell"`
	Kind    FieldKind `yaml:"kind"`
	Stat    string    `yaml:"stat"`
	Column  string    `yaml:"column,omitempty"`
	Columns []string  `yaml:"columns,omitempty"`
	Value   string    `yaml:"value,omitempty"` // category value for frequency checks
}

// Task is the runtime record for one TaskSpec: status, revision count, and
// the append-only attempt history.
type Task struct {
	Spec      TaskSpec          `yaml:"spec"`
	Status    TaskStatus        `yaml:"status"`
	Revisions int               `yaml:"revisions"`
	Attempts  []Attempt         `yaml:"attempts,omitempty"`
	Output    *ArtifactFragment `yaml:"output,omitempty"` // frozen on approval
	// PendingFeedback carries objections from the last rejection or audit
	// deficiency into the next generation attempt. Persisted so a resumed
	// session regenerates with the same guidance.
	PendingFeedback []string `yaml:"pending_feedback,omitempty"`
}

// Attempt is one generate→verify→review cycle for a task. Records are
// appended, never mutated; a new attempt supersedes the last.
type Attempt struct {
	ID           string              `yaml:"id"`
	Number       int                 `yaml:"number"`
	GeneratedAt  string              `yaml:"generated_at"`
	Verification *VerificationResult `yaml:"verification,omitempty"`
	Verdicts     []ReviewVerdict     `yaml:"verdicts,omitempty"`
	Decision     Decision            `yaml:"decision,omitempty"`
	Feedback     []string            `yaml:"feedback,omitempty"`
}

// ArtifactFragment is the opaque-to-the-core output of one generation call:
// a named sheet of cells. A cell with a numeric value and no formula is a
// bare literal and fails structural coverage.
type Cell struct {
	Value   *float64 `yaml:"value,omitempty"`
	Text    string   `yaml:"text,omitempty"`
	Formula string   `yaml:"formula,omitempty"`
}

type ArtifactFragment struct {
	TaskID    string          `yaml:"task_id"`
	SheetName string          `yaml:"sheet_name"`
	Cells     map[string]Cell `yaml:"cells"`
	Narrative string          `yaml:"narrative,omitempty"`
}

// VerificationResult records one verification attempt against ground truth.
type VerificationResult struct {
	TaskID       string             `yaml:"task_id"`
	Attempt      int                `yaml:"attempt"`
	Status       VerificationStatus `yaml:"status"`
	Checks       []FieldCheck       `yaml:"checks,omitempty"`
	Coverage     float64            `yaml:"coverage"` // % of numeric cells backed by a derivation
	CoveragePass bool               `yaml:"coverage_pass"`
	Reasons      []string           `yaml:"reasons,omitempty"`
	Fingerprint  string             `yaml:"fingerprint,omitempty"`
	VerifiedAt   string             `yaml:"verified_at"`
}

// FieldCheck is a single ground-truth comparison inside a VerificationResult.
type FieldCheck struct {
	Name      string    `yaml:"name"`
	Cell      string    `yaml:"cell"`
	Kind      FieldKind `yaml:"kind"`
	Expected  float64   `yaml:"expected"`
	Actual    *float64  `yaml:"actual,omitempty"`
	Tolerance float64   `yaml:"tolerance"`
	Pass      bool      `yaml:"pass"`
	Detail    string    `yaml:"detail,omitempty"`
}

// ReviewVerdict is one reviewer's decision for one attempt.
type ReviewVerdict struct {
	ID       string   `yaml:"id"`
	Reviewer string   `yaml:"reviewer"`
	Decision Decision `yaml:"decision"`
	Reasons  []string `yaml:"reasons,omitempty"`
	IssuedAt string   `yaml:"issued_at"`
}

// AuditScore is one full certification pass over the finished artifact.
// Recomputed whole on every pass; prior passes stay in the session history.
type AuditScore struct {
	ID           string             `yaml:"id"`
	Dimensions   map[string]float64 `yaml:"dimensions"`
	Weights      map[string]float64 `yaml:"weights"`
	Composite    float64            `yaml:"composite"`
	Tier         Tier               `yaml:"tier"`
	Releasable   bool               `yaml:"releasable"`
	Deficiencies []Deficiency       `yaml:"deficiencies,omitempty"`
	ComputedAt   string             `yaml:"computed_at"`
}

// Deficiency names the tasks dragging a dimension down, attached as feedback
// when the session re-enters the task loop after a failed audit.
type Deficiency struct {
	Dimension string   `yaml:"dimension"`
	TaskIDs   []string `yaml:"task_ids,omitempty"`
	Reason    string   `yaml:"reason"`
}

type CancelState struct {
	Requested   bool    `yaml:"requested"`
	RequestedAt *string `yaml:"requested_at,omitempty"`
	Reason      *string `yaml:"reason,omitempty"`
}

// LogEntry is one line of the session's actor history. Carries json tags
// because status queries surface the tail of the log.
type LogEntry struct {
	Timestamp string `yaml:"timestamp" json:"timestamp"`
	Actor     string `yaml:"actor" json:"actor"`
	Action    string `yaml:"action" json:"action"`
	Detail    string `yaml:"detail,omitempty" json:"detail,omitempty"`
	TaskID    string `yaml:"task_id,omitempty" json:"task_id,omitempty"`
}

// EscalatedTasks lists task ids currently in the escalated state.
func (s *Session) EscalatedTasks() []string {
	var ids []string
	for _, t := range s.Tasks {
		if t.Status == TaskEscalated {
			ids = append(ids, t.Spec.ID)
		}
	}
	return ids
}

// ApprovedTasks counts tasks whose output is frozen.
func (s *Session) ApprovedTasks() int {
	n := 0
	for _, t := range s.Tasks {
		if t.Status == TaskApproved {
			n++
		}
	}
	return n
}

// LatestAudit returns the most recent audit pass, or nil before any ran.
func (s *Session) LatestAudit() *AuditScore {
	if len(s.Audits) == 0 {
		return nil
	}
	return &s.Audits[len(s.Audits)-1]
}

// ProgressPercent is the share of planned tasks with frozen output, 0 until
// a plan is approved.
func ProgressPercent(s *Session) float64 {
	if len(s.Tasks) == 0 {
		return 0
	}
	return float64(s.ApprovedTasks()) / float64(len(s.Tasks)) * 100
}

// TailLogs returns up to n trailing log entries, copied so callers cannot
// mutate the session history.
func TailLogs(logs []LogEntry, n int) []LogEntry {
	if n <= 0 || len(logs) == 0 {
		return nil
	}
	start := len(logs) - n
	if start < 0 {
		start = 0
	}
	return append([]LogEntry(nil), logs[start:]...)
}
