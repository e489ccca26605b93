// Package collab holds the file-exchange collaborator implementations: the
// engine writes request files into an exchange directory and external
// producers (analysts, model-backed agents) answer with response files. The
// engine never assumes anything about what produces the responses.
package collab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/albarami/veristat/internal/model"
	"github.com/albarami/veristat/internal/yaml"
)

// FilePlanSource reads the session plan from a fixed YAML file. When a plan
// is rejected, the validation objections are written next to it so the author
// can revise; the source then waits for the file to change before re-reading.
type FilePlanSource struct {
	path string
	poll time.Duration
}

func NewFilePlanSource(path string) *FilePlanSource {
	return &FilePlanSource{path: path, poll: time.Second}
}

func (s *FilePlanSource) Name() string { return "file_plan_source" }

func (s *FilePlanSource) ProposePlan(ctx context.Context, objective string, rejections []string) (*model.Plan, error) {
	if len(rejections) > 0 {
		feedback := struct {
			Objective  string   `yaml:"objective,omitempty"`
			Rejections []string `yaml:"rejections"`
		}{Objective: objective, Rejections: rejections}
		feedbackPath := s.path + ".feedback"
		if err := yaml.AtomicWrite(feedbackPath, feedback); err != nil {
			return nil, fmt.Errorf("write plan feedback: %w", err)
		}
		if err := s.waitForChange(ctx); err != nil {
			return nil, err
		}
	}

	var p model.Plan
	if err := yaml.ReadFile(s.path, &p); err != nil {
		return nil, fmt.Errorf("read plan %s: %w", s.path, err)
	}
	if p.Source == "" {
		p.Source = filepath.Base(s.path)
	}
	return &p, nil
}

// waitForChange blocks until the plan file's mtime moves past the rejection,
// or the context deadline fires.
func (s *FilePlanSource) waitForChange(ctx context.Context) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat plan %s: %w", s.path, err)
	}
	since := info.ModTime()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := os.Stat(s.path)
			if err != nil {
				continue
			}
			if info.ModTime().After(since) {
				return nil
			}
		}
	}
}
