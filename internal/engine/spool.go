package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albarami/veristat/internal/yaml"
)

// SessionRequest is the spool file format: dropping one into the spool
// directory starts a session.
type SessionRequest struct {
	Objective string `yaml:"objective"`
}

// WatchSpool blocks, starting a session for every request file dropped into
// the spool directory. Writes are debounced so a request is read only after
// the producer finishes writing it. Processed files move to a done/ subdir;
// malformed ones move to rejected/ instead of being retried forever.
func (e *Engine) WatchSpool(ctx context.Context) error {
	if !e.cfg.Spool.Enabled {
		return nil
	}

	dir := e.cfg.Spool.Dir
	for _, sub := range []string{dir, filepath.Join(dir, "done"), filepath.Join(dir, "rejected")} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			return fmt.Errorf("ensure spool dir %s: %w", sub, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	debounce := time.Duration(e.cfg.Spool.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	pending := make(map[string]*time.Timer)
	fire := make(chan string, 16)

	e.log(LogLevelInfo, "spool watcher started dir=%s", dir)
	e.scanSpool(dir)

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name := event.Name
			if !strings.HasSuffix(name, ".yaml") {
				continue
			}
			e.log(LogLevelDebug, "spool event=%s file=%s", event.Op, name)
			if t, exists := pending[name]; exists {
				t.Reset(debounce)
				continue
			}
			pending[name] = time.AfterFunc(debounce, func() { fire <- name })

		case name := <-fire:
			delete(pending, name)
			e.handleSpoolFile(ctx, name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.log(LogLevelError, "spool watcher error=%v", err)
		}
	}
}

// scanSpool picks up request files that arrived while no watcher was running.
func (e *Engine) scanSpool(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		e.log(LogLevelError, "spool scan failed dir=%s err=%v", dir, err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		e.handleSpoolFile(context.Background(), filepath.Join(dir, entry.Name()))
	}
}

func (e *Engine) handleSpoolFile(ctx context.Context, path string) {
	var req SessionRequest
	if err := yaml.ReadFile(path, &req); err != nil {
		e.log(LogLevelWarn, "spool request unreadable file=%s err=%v", path, err)
		e.moveSpoolFile(path, "rejected")
		return
	}
	if req.Objective == "" {
		e.log(LogLevelWarn, "spool request missing objective file=%s", path)
		e.moveSpoolFile(path, "rejected")
		return
	}

	e.moveSpoolFile(path, "done")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		session, err := e.StartSession(ctx, req.Objective)
		if err != nil {
			id := "unknown"
			if session != nil {
				id = session.ID
			}
			e.log(LogLevelWarn, "spooled session ended id=%s err=%v", id, err)
		}
	}()
}

func (e *Engine) moveSpoolFile(path, subdir string) {
	dst := filepath.Join(filepath.Dir(path), subdir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		e.log(LogLevelError, "spool move failed file=%s err=%v", path, err)
	}
}
