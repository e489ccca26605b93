package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/albarami/veristat/internal/collab"
	"github.com/albarami/veristat/internal/config"
	"github.com/albarami/veristat/internal/engine"
	"github.com/albarami/veristat/internal/lock"
	"github.com/albarami/veristat/internal/model"
	"github.com/albarami/veristat/internal/plan"
	"github.com/albarami/veristat/internal/review"
	"github.com/albarami/veristat/internal/stats"
	"github.com/albarami/veristat/internal/store"
	"github.com/albarami/veristat/internal/verify"
	"github.com/albarami/veristat/internal/yaml"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runEngine(os.Args[2:])
	case "start":
		runStart(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "audit":
		runAudit(os.Args[2:])
	case "sessions":
		runSessions(os.Args[2:])
	case "cancel":
		runCancel(os.Args[2:])
	case "plan":
		runPlan(os.Args[2:])
	case "version":
		fmt.Printf("veristat %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// runEngine starts the long-running process: resume persisted sessions, then
// watch the spool directory for new session requests until a signal arrives.
func runEngine(args []string) {
	configPath := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fatal("--config requires a path")
			}
			configPath = args[i]
		default:
			fatal("unknown flag: %s\nusage: veristat run [--config <path>]", args[i])
		}
	}

	cfg := loadConfig(configPath)
	eng, fileLock := buildEngine(cfg)
	defer fileLock.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "shutdown requested")
		cancel()
		<-sigCh
		os.Exit(1)
	}()

	if err := eng.Resume(ctx); err != nil {
		fatal("resume: %v", err)
	}

	if cfg.Spool.Enabled {
		if err := eng.WatchSpool(ctx); err != nil && ctx.Err() == nil {
			fatal("spool watcher: %v", err)
		}
	} else {
		<-ctx.Done()
	}

	eng.Wait()
}

// runStart drives a single session to its end state in the foreground.
func runStart(args []string) {
	configPath := ""
	objective := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fatal("--config requires a path")
			}
			configPath = args[i]
		case "--objective":
			i++
			if i >= len(args) {
				fatal("--objective requires a value")
			}
			objective = args[i]
		default:
			fatal("unknown flag: %s\nusage: veristat start --objective <text> [--config <path>]", args[i])
		}
	}
	if objective == "" {
		fatal("usage: veristat start --objective <text> [--config <path>]")
	}

	cfg := loadConfig(configPath)
	eng, fileLock := buildEngine(cfg)
	defer fileLock.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()

	session, err := eng.StartSession(ctx, objective)
	if session != nil {
		printSessionSummary(session)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "session ended: %v\n", err)
		os.Exit(1)
	}
}

func runStatus(args []string) {
	id, jsonOutput, configPath := parseIDArgs(args, "status")
	cfg := loadConfig(configPath)

	st, err := newStore(cfg)
	if err != nil {
		fatal("status: %v", err)
	}
	session, err := st.Load(id)
	if err != nil {
		fatal("status: %v", err)
	}

	if jsonOutput {
		printJSON(sessionStatus(session))
		return
	}
	printSessionSummary(session)
}

func runAudit(args []string) {
	id, jsonOutput, configPath := parseIDArgs(args, "audit")
	cfg := loadConfig(configPath)

	st, err := newStore(cfg)
	if err != nil {
		fatal("audit: %v", err)
	}
	session, err := st.Load(id)
	if err != nil {
		fatal("audit: %v", err)
	}

	score := session.LatestAudit()
	if score == nil {
		fmt.Println("no audit has run for this session")
		return
	}
	if jsonOutput {
		printJSON(score)
		return
	}
	printAuditScore(score)
}

func runSessions(args []string) {
	configPath := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fatal("--config requires a path")
			}
			configPath = args[i]
		default:
			fatal("unknown flag: %s\nusage: veristat sessions [--config <path>]", args[i])
		}
	}
	cfg := loadConfig(configPath)

	st, err := newStore(cfg)
	if err != nil {
		fatal("sessions: %v", err)
	}
	ids, err := st.List()
	if err != nil {
		fatal("sessions: %v", err)
	}
	if len(ids) == 0 {
		fmt.Println("no sessions")
		return
	}
	for _, id := range ids {
		session, err := st.Load(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: unreadable: %v\n", id, err)
			continue
		}
		fmt.Printf("%s  %-12s  tasks %d/%d  updated %s\n",
			session.ID, session.Phase, session.ApprovedTasks(), len(session.Tasks), session.UpdatedAt)
	}
}

func runCancel(args []string) {
	if len(args) < 1 {
		fatal("usage: veristat cancel <session-id> [--reason <text>] [--config <path>]")
	}
	id := args[0]
	reason := ""
	configPath := ""
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--reason":
			i++
			if i >= len(args) {
				fatal("--reason requires a value")
			}
			reason = args[i]
		case "--config":
			i++
			if i >= len(args) {
				fatal("--config requires a path")
			}
			configPath = args[i]
		default:
			fatal("unknown flag: %s", args[i])
		}
	}

	cfg := loadConfig(configPath)
	st, err := newStore(cfg)
	if err != nil {
		fatal("cancel: %v", err)
	}
	session, err := st.Load(id)
	if err != nil {
		fatal("cancel: %v", err)
	}
	if model.IsPhaseTerminal(session.Phase) {
		fatal("cancel: session %s already %s", id, session.Phase)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	session.Cancel = model.CancelState{Requested: true, RequestedAt: &now, Reason: &reason}
	if err := st.Save(session); err != nil {
		fatal("cancel: %v", err)
	}
	fmt.Printf("cancel requested for %s; takes effect at the next transition\n", id)
}

// runPlan validates a plan file offline, before it is handed to a session.
func runPlan(args []string) {
	if len(args) < 1 || args[0] != "check" {
		fatal("usage: veristat plan check <plan.yaml> [--config <path>]")
	}
	args = args[1:]
	if len(args) < 1 {
		fatal("usage: veristat plan check <plan.yaml> [--config <path>]")
	}
	planPath := args[0]
	configPath := ""
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fatal("--config requires a path")
			}
			configPath = args[i]
		default:
			fatal("unknown flag: %s", args[i])
		}
	}
	cfg := loadConfig(configPath)

	var p model.Plan
	if err := yaml.ReadFile(planPath, &p); err != nil {
		fatal("plan check: %v", err)
	}

	result := plan.Validate(&p, cfg.Plan)
	fmt.Print(result.Report())
	if !result.Valid {
		os.Exit(1)
	}
}

func loadConfig(path string) model.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatal("config: %v", err)
	}
	return cfg
}

func newStore(cfg model.Config) (*store.SessionStore, error) {
	return store.NewSessionStore(cfg.DataDir)
}

// buildEngine wires the store, the ground-truth recomputer, and the
// file-exchange collaborators, holding the data-dir lock for the lifetime of
// the process.
func buildEngine(cfg model.Config) (*engine.Engine, *lock.FileLock) {
	if cfg.Collab.Dataset == "" {
		fatal("collab.dataset is required: the verifier needs the canonical source data")
	}
	if cfg.Collab.PlanPath == "" {
		fatal("collab.plan_path is required")
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		fatal("create data dir: %v", err)
	}
	fileLock := lock.NewFileLock(filepath.Join(cfg.DataDir, "engine.lock"))
	if err := fileLock.TryLock(); err != nil {
		fatal("%v", err)
	}

	st, err := newStore(cfg)
	if err != nil {
		fileLock.Unlock()
		fatal("store: %v", err)
	}

	dataset, err := stats.LoadCSV(cfg.Collab.Dataset)
	if err != nil {
		fileLock.Unlock()
		fatal("dataset: %v", err)
	}
	verifier := verify.NewGate(stats.NewReference(dataset))

	generator, err := collab.NewSpoolGenerator(cfg.Collab.ExchangeDir, cfg.Collab.Poll())
	if err != nil {
		fileLock.Unlock()
		fatal("generator: %v", err)
	}

	var reviewers []review.Reviewer
	if cfg.Collab.Structural {
		reviewers = append(reviewers, collab.NewStructuralReviewer(""))
	}
	for _, name := range cfg.Collab.Reviewers {
		r, err := collab.NewSpoolReviewer(name, cfg.Collab.ExchangeDir, cfg.Collab.Poll())
		if err != nil {
			fileLock.Unlock()
			fatal("reviewer %s: %v", name, err)
		}
		reviewers = append(reviewers, r)
	}
	if len(reviewers) == 0 {
		fileLock.Unlock()
		fatal("no reviewers configured: the review gate requires at least one")
	}

	plans := collab.NewFilePlanSource(cfg.Collab.PlanPath)
	return engine.New(cfg, st, plans, generator, verifier, reviewers, os.Stderr), fileLock
}

func parseIDArgs(args []string, cmd string) (id string, jsonOutput bool, configPath string) {
	if len(args) < 1 {
		fatal("usage: veristat %s <session-id> [--json] [--config <path>]", cmd)
	}
	id = args[0]
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--json":
			jsonOutput = true
		case "--config":
			i++
			if i >= len(args) {
				fatal("--config requires a path")
			}
			configPath = args[i]
		default:
			fatal("unknown flag: %s", args[i])
		}
	}
	return id, jsonOutput, configPath
}

func printSessionSummary(s *model.Session) {
	phaseColor := color.New(color.FgYellow)
	switch s.Phase {
	case model.PhaseCompleted:
		phaseColor = color.New(color.FgGreen)
	case model.PhaseFailed:
		phaseColor = color.New(color.FgRed)
	}

	fmt.Printf("session  %s\n", s.ID)
	fmt.Printf("phase    %s\n", phaseColor.Sprint(string(s.Phase)))
	if len(s.Tasks) > 0 {
		fmt.Printf("tasks    %d/%d approved (cursor %d)\n", s.ApprovedTasks(), len(s.Tasks), s.CurrentTask)
	}
	if escalated := s.EscalatedTasks(); len(escalated) > 0 {
		fmt.Printf("escalated %s\n", color.RedString("%v", escalated))
	}
	if a := s.LatestAudit(); a != nil {
		fmt.Printf("audit    composite %.1f tier %s (pass %d)\n", a.Composite, a.Tier, s.AuditPasses)
	}
	if s.Released {
		fmt.Printf("released %s\n", color.GreenString("yes"))
	}
	if s.FailureReason != "" {
		fmt.Printf("failure  %s\n", color.RedString(s.FailureReason))
	}
}

func printAuditScore(a *model.AuditScore) {
	fmt.Printf("audit %s (%s)\n", a.ID, a.ComputedAt)
	for dim, score := range a.Dimensions {
		fmt.Printf("  %-16s %6.1f  (weight %.2f)\n", dim, score, a.Weights[dim])
	}
	tierColor := color.New(color.FgRed)
	if a.Releasable {
		tierColor = color.New(color.FgGreen)
	}
	fmt.Printf("composite %.1f  tier %s\n", a.Composite, tierColor.Sprint(string(a.Tier)))
	for _, d := range a.Deficiencies {
		fmt.Printf("  deficiency: %s  tasks=%v\n", d.Reason, d.TaskIDs)
	}
}

type statusView struct {
	ID              string           `json:"session_id"`
	Phase           model.Phase      `json:"phase"`
	CurrentTask     int              `json:"current_task"`
	TotalTasks      int              `json:"total_tasks"`
	ApprovedTasks   int              `json:"approved_tasks"`
	ProgressPercent float64          `json:"progress_percent"`
	Escalated       []string         `json:"escalated,omitempty"`
	PlanRevisions   int              `json:"plan_revisions"`
	AuditPasses     int              `json:"audit_passes"`
	Released        bool             `json:"released"`
	FailureReason   string           `json:"failure_reason,omitempty"`
	UpdatedAt       string           `json:"updated_at"`
	LastLogEntries  []model.LogEntry `json:"last_logs,omitempty"`
}

func sessionStatus(s *model.Session) statusView {
	return statusView{
		ID:              s.ID,
		Phase:           s.Phase,
		CurrentTask:     s.CurrentTask,
		TotalTasks:      len(s.Tasks),
		ApprovedTasks:   s.ApprovedTasks(),
		ProgressPercent: model.ProgressPercent(s),
		Escalated:       s.EscalatedTasks(),
		PlanRevisions:   s.PlanRevisions,
		AuditPasses:     s.AuditPasses,
		Released:        s.Released,
		FailureReason:   s.FailureReason,
		UpdatedAt:       s.UpdatedAt,
		LastLogEntries:  model.TailLogs(s.Logs, 10),
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `veristat %s - verified statistical artifact pipeline

Usage: veristat <command> [options]

Engine:
  run [--config <path>]                  Resume sessions and watch the spool
  start --objective <text>               Run one session in the foreground

Inspection:
  sessions                               List persisted sessions
  status <session-id> [--json]           Show phase, tasks, and failures
  audit <session-id> [--json]            Show the latest audit score
  cancel <session-id> [--reason <text>]  Request cancellation

Utilities:
  plan check <plan.yaml>                 Validate a plan file offline
  version                                Show version
  help                                   Show this help

`, version)
}
