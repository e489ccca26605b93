// Package config loads the veristat configuration: defaults, then an
// optional YAML file, then VERISTAT_* environment overrides.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/albarami/veristat/internal/model"
)

const namespace = "VERISTAT"

// Load reads path if it exists, applies it over the defaults, and finishes
// with environment overrides. An empty path skips the file step.
func Load(path string) (model.Config, error) {
	cfg := model.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yamlv3.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(namespace, &cfg); err != nil {
		return cfg, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg model.Config) error {
	if cfg.Plan.MinTasks < 1 {
		return fmt.Errorf("plan.min_tasks must be >= 1, got %d", cfg.Plan.MinTasks)
	}
	if cfg.Plan.MaxTasks < cfg.Plan.MinTasks {
		return fmt.Errorf("plan.max_tasks %d below plan.min_tasks %d", cfg.Plan.MaxTasks, cfg.Plan.MinTasks)
	}
	if cfg.Revision.SessionCeiling <= 0 {
		return fmt.Errorf("revision.session_ceiling must be > 0, got %d", cfg.Revision.SessionCeiling)
	}
	if !cfg.Revision.Unlimited && cfg.Revision.MaxPerTask <= 0 {
		return fmt.Errorf("revision.max_per_task must be > 0 unless unlimited, got %d", cfg.Revision.MaxPerTask)
	}
	t := cfg.Audit.Thresholds
	if !(t.PublicationReady >= t.ThesisReady && t.ThesisReady >= t.NeedsRevision) {
		return fmt.Errorf("audit thresholds must be ordered: publication %.1f >= thesis %.1f >= revision %.1f",
			t.PublicationReady, t.ThesisReady, t.NeedsRevision)
	}
	if cfg.Audit.ReleaseThreshold < 0 || cfg.Audit.ReleaseThreshold > 100 {
		return fmt.Errorf("audit.release_threshold out of range: %.1f", cfg.Audit.ReleaseThreshold)
	}
	return nil
}
