// Package store persists sessions as one YAML file per session under
// <data-dir>/sessions/. The store is the only writer; every mutation goes
// through the per-session mutex and the atomic write path.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/albarami/veristat/internal/lock"
	"github.com/albarami/veristat/internal/model"
	"github.com/albarami/veristat/internal/yaml"
)

const (
	schemaVersion   = 1
	sessionFileType = "session"
	sessionsSubdir  = "sessions"
)

var ErrNotFound = errors.New("session not found")

// SessionStore owns the session directory. Safe for concurrent use; writes to
// the same session serialize on its mutex, writes to different sessions do not
// contend.
type SessionStore struct {
	dir     string
	mutexes *lock.MutexMap
}

func NewSessionStore(dataDir string) (*SessionStore, error) {
	dir := filepath.Join(dataDir, sessionsSubdir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &SessionStore{
		dir:     dir,
		mutexes: lock.NewMutexMap(),
	}, nil
}

// Create initializes and persists a new session in the planning phase.
func (s *SessionStore) Create() (*model.Session, error) {
	id, err := model.GenerateID(model.IDTypeSession)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	session := &model.Session{
		SchemaVersion: schemaVersion,
		FileType:      sessionFileType,
		ID:            id,
		Phase:         model.PhasePlanning,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Save persists the full session record atomically, bumping updated_at.
func (s *SessionStore) Save(session *model.Session) error {
	if !model.ValidateID(session.ID) {
		return fmt.Errorf("refusing to save session with malformed id %q", session.ID)
	}

	s.mutexes.Lock(session.ID)
	defer s.mutexes.Unlock(session.ID)

	session.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := yaml.AtomicWrite(s.path(session.ID), session); err != nil {
		return fmt.Errorf("persist session %s: %w", session.ID, err)
	}
	return nil
}

// Load reads one session by id.
func (s *SessionStore) Load(id string) (*model.Session, error) {
	if !model.ValidateID(id) {
		return nil, fmt.Errorf("malformed session id %q", id)
	}

	s.mutexes.Lock(id)
	defer s.mutexes.Unlock(id)

	var session model.Session
	if err := yaml.ReadFile(s.path(id), &session); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if session.FileType != sessionFileType {
		return nil, fmt.Errorf("load session %s: unexpected file_type %q", id, session.FileType)
	}
	return &session, nil
}

// List returns every session id present on disk, in directory order.
func (s *SessionStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".bak") {
			continue
		}
		id := strings.TrimSuffix(name, ".yaml")
		if !model.ValidateID(id) {
			continue // temp files, backups, foreign files
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Resumable returns every persisted session not in a terminal phase. Called
// once at engine startup so interrupted sessions continue from their last
// persisted transition.
func (s *SessionStore) Resumable() ([]*model.Session, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}

	var sessions []*model.Session
	for _, id := range ids {
		session, err := s.Load(id)
		if err != nil {
			return nil, err
		}
		if !model.IsPhaseTerminal(session.Phase) {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (s *SessionStore) path(id string) string {
	return filepath.Join(s.dir, id+".yaml")
}
