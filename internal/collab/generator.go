package collab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/albarami/veristat/internal/model"
	"github.com/albarami/veristat/internal/yaml"
)

// GenerationRequest is the file the engine drops into requests/ for each
// attempt. The producer answers with an ArtifactFragment under responses/
// using the same file name.
type GenerationRequest struct {
	RequestID   string         `yaml:"request_id"`
	Spec        model.TaskSpec `yaml:"spec"`
	Feedback    []string       `yaml:"feedback,omitempty"`
	RequestedAt string         `yaml:"requested_at"`
}

// SpoolGenerator exchanges generation work through the filesystem:
// requests/<id>.yaml out, responses/<id>.yaml back. The engine's per-call
// deadline bounds the wait; an unanswered request is a timeout, handled by
// the revision machinery like any other rejection.
type SpoolGenerator struct {
	dir  string
	poll time.Duration
}

func NewSpoolGenerator(dir string, poll time.Duration) (*SpoolGenerator, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	for _, sub := range []string{requestsDir(dir), responsesDir(dir)} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			return nil, fmt.Errorf("ensure exchange dir %s: %w", sub, err)
		}
	}
	return &SpoolGenerator{dir: dir, poll: poll}, nil
}

func (g *SpoolGenerator) Name() string { return "spool_generator" }

func (g *SpoolGenerator) Generate(ctx context.Context, spec model.TaskSpec, feedback []string) (*model.ArtifactFragment, error) {
	requestID := fmt.Sprintf("%s_%s", spec.ID, ulid.Make().String())
	req := GenerationRequest{
		RequestID:   requestID,
		Spec:        spec,
		Feedback:    feedback,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}

	reqPath := filepath.Join(requestsDir(g.dir), requestID+".yaml")
	if err := yaml.AtomicWrite(reqPath, req); err != nil {
		return nil, fmt.Errorf("write generation request: %w", err)
	}

	respPath := filepath.Join(responsesDir(g.dir), requestID+".yaml")
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			os.Remove(reqPath) // withdraw so producers skip stale work
			return nil, ctx.Err()
		case <-ticker.C:
			if _, err := os.Stat(respPath); err != nil {
				continue
			}
			var fragment model.ArtifactFragment
			if err := yaml.ReadFile(respPath, &fragment); err != nil {
				return nil, fmt.Errorf("read generation response: %w", err)
			}
			os.Remove(reqPath)
			os.Remove(respPath)
			if fragment.TaskID == "" {
				fragment.TaskID = spec.ID
			}
			return &fragment, nil
		}
	}
}

func requestsDir(dir string) string  { return filepath.Join(dir, "requests") }
func responsesDir(dir string) string { return filepath.Join(dir, "responses") }
