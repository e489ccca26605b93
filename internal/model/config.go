package model

import "time"

// Config is the full veristat configuration, loaded from YAML with
// environment overrides applied on top.
type Config struct {
	DataDir  string         `yaml:"data_dir" envconfig:"DATA_DIR"`
	Logging  LoggingConfig  `yaml:"logging"`
	Plan     PlanConfig     `yaml:"plan"`
	Revision RevisionConfig `yaml:"revision"`
	Review   ReviewConfig   `yaml:"review"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Audit    AuditConfig    `yaml:"audit"`
	Spool    SpoolConfig    `yaml:"spool"`
	Collab   CollabConfig   `yaml:"collab"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
}

type PlanConfig struct {
	MinTasks       int      `yaml:"min_tasks" envconfig:"PLAN_MIN_TASKS"`
	MaxTasks       int      `yaml:"max_tasks" envconfig:"PLAN_MAX_TASKS"`
	RequiredPhases []string `yaml:"required_phases"`
	RequiredTypes  []string `yaml:"required_types"`
	MaxRevisions   int      `yaml:"max_revisions" envconfig:"PLAN_MAX_REVISIONS"`
}

type RevisionConfig struct {
	// MaxPerTask bounds regeneration of a single task before escalation.
	// Unlimited disables the per-task ceiling; the session ceiling and the
	// wall clock still apply so termination stays provable.
	MaxPerTask     int  `yaml:"max_per_task" envconfig:"MAX_TASK_REVISIONS"`
	Unlimited      bool `yaml:"unlimited" envconfig:"UNLIMITED_REVISIONS"`
	SessionCeiling int  `yaml:"session_ceiling" envconfig:"SESSION_ATTEMPT_CEILING"`
	WallClockMin   int  `yaml:"wall_clock_min" envconfig:"REVISION_WALL_CLOCK_MIN"`
}

type ReviewConfig struct {
	// ConditionalApproves controls whether a CONDITIONAL verdict counts
	// toward consensus. Default false: only unanimous APPROVE advances.
	ConditionalApproves bool `yaml:"conditional_approves" envconfig:"CONDITIONAL_APPROVES"`
	TimeoutSec          int  `yaml:"timeout_sec" envconfig:"REVIEW_TIMEOUT_SEC"`
}

type TimeoutConfig struct {
	GenerateSec int `yaml:"generate_sec" envconfig:"GENERATE_TIMEOUT_SEC"`
	VerifySec   int `yaml:"verify_sec" envconfig:"VERIFY_TIMEOUT_SEC"`
}

type AuditConfig struct {
	ReleaseThreshold float64    `yaml:"release_threshold" envconfig:"RELEASE_THRESHOLD"`
	MaxPasses        int        `yaml:"max_passes" envconfig:"AUDIT_MAX_PASSES"`
	Thresholds       Thresholds `yaml:"thresholds"`
}

// Thresholds are the fixed tier boundaries for the composite score.
type Thresholds struct {
	PublicationReady float64 `yaml:"publication_ready"`
	ThesisReady      float64 `yaml:"thesis_ready"`
	NeedsRevision    float64 `yaml:"needs_revision"`
}

// CollabConfig wires the file-exchange collaborators: the canonical dataset
// for ground-truth recomputation, the plan file, and the exchange directory
// external producers and judges answer through.
type CollabConfig struct {
	Dataset     string   `yaml:"dataset" envconfig:"DATASET"`
	PlanPath    string   `yaml:"plan_path" envconfig:"PLAN_PATH"`
	ExchangeDir string   `yaml:"exchange_dir" envconfig:"EXCHANGE_DIR"`
	Reviewers   []string `yaml:"reviewers"`
	Structural  bool     `yaml:"structural_reviewer" envconfig:"STRUCTURAL_REVIEWER"`
	PollMs      int      `yaml:"poll_ms" envconfig:"COLLAB_POLL_MS"`
}

type SpoolConfig struct {
	Enabled    bool   `yaml:"enabled" envconfig:"SPOOL_ENABLED"`
	Dir        string `yaml:"dir" envconfig:"SPOOL_DIR"`
	DebounceMs int    `yaml:"debounce_ms" envconfig:"SPOOL_DEBOUNCE_MS"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		DataDir: ".veristat",
		Logging: LoggingConfig{Level: "info"},
		Plan: PlanConfig{
			MinTasks:       1,
			MaxTasks:       60,
			RequiredPhases: []string{"1_Data_Validation", "3_Descriptive", "7_Synthesis"},
			RequiredTypes:  []string{"data_audit", "descriptive_stats"},
			MaxRevisions:   3,
		},
		Revision: RevisionConfig{
			MaxPerTask:     10,
			SessionCeiling: 100,
			WallClockMin:   120,
		},
		Review: ReviewConfig{
			TimeoutSec: 120,
		},
		Timeouts: TimeoutConfig{
			GenerateSec: 300,
			VerifySec:   120,
		},
		Audit: AuditConfig{
			ReleaseThreshold: 95.0,
			MaxPasses:        3,
			Thresholds: Thresholds{
				PublicationReady: 97.0,
				ThesisReady:      95.0,
				NeedsRevision:    90.0,
			},
		},
		Spool: SpoolConfig{
			DebounceMs: 500,
		},
		Collab: CollabConfig{
			ExchangeDir: ".veristat/exchange",
			Reviewers:   []string{"methodology_judge", "statistics_judge"},
			Structural:  true,
			PollMs:      500,
		},
	}
}

func (c ReviewConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c TimeoutConfig) Generate() time.Duration {
	if c.GenerateSec <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.GenerateSec) * time.Second
}

func (c TimeoutConfig) Verify() time.Duration {
	if c.VerifySec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.VerifySec) * time.Second
}

func (c CollabConfig) Poll() time.Duration {
	if c.PollMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.PollMs) * time.Millisecond
}

func (c RevisionConfig) WallClock() time.Duration {
	if c.WallClockMin <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.WallClockMin) * time.Minute
}
