package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/veristat/internal/model"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	st, err := NewSessionStore(t.TempDir())
	require.NoError(t, err)
	return st
}

func TestCreateAndLoad(t *testing.T) {
	st := newTestStore(t)

	created, err := st.Create()
	require.NoError(t, err)
	assert.Equal(t, model.PhasePlanning, created.Phase)
	assert.True(t, model.ValidateID(created.ID))

	loaded, err := st.Load(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, created.Phase, loaded.Phase)
	assert.Equal(t, "session", loaded.FileType)
}

func TestSaveRoundTripsFullRecord(t *testing.T) {
	st := newTestStore(t)
	s, err := st.Create()
	require.NoError(t, err)

	v := 30.0
	s.Phase = model.PhaseExecuting
	s.Plan = &model.Plan{Source: "test", Tasks: []model.TaskSpec{{ID: "T1", Name: "audit"}}}
	s.Tasks = []model.Task{
		{
			Spec:   model.TaskSpec{ID: "T1", Name: "audit"},
			Status: model.TaskApproved,
			Attempts: []model.Attempt{
				{
					ID:     "att_01HQXW5P8JQRS7VMKT3NBYFZAG",
					Number: 1,
					Verification: &model.VerificationResult{
						TaskID: "T1",
						Status: model.VerificationPass,
						Checks: []model.FieldCheck{{Name: "mean", Expected: 30, Actual: &v, Pass: true}},
					},
					Verdicts: []model.ReviewVerdict{{Reviewer: "a", Decision: model.DecisionApprove}},
					Decision: model.DecisionApprove,
				},
			},
			Output: &model.ArtifactFragment{
				TaskID:    "T1",
				SheetName: "1_Audit",
				Cells:     map[string]model.Cell{"B2": {Value: &v, Formula: "=AVERAGE(A:A)"}},
			},
		},
	}
	require.NoError(t, st.Save(s))

	loaded, err := st.Load(s.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Tasks, 1)
	task := loaded.Tasks[0]
	assert.Equal(t, model.TaskApproved, task.Status)
	require.Len(t, task.Attempts, 1)
	require.NotNil(t, task.Attempts[0].Verification)
	assert.True(t, task.Attempts[0].Verification.Checks[0].Pass)
	require.NotNil(t, task.Output)
	assert.Equal(t, 30.0, *task.Output.Cells["B2"].Value)
	assert.NotEmpty(t, loaded.UpdatedAt)
}

func TestSaveRejectsMalformedID(t *testing.T) {
	st := newTestStore(t)
	err := st.Save(&model.Session{ID: "not-a-session-id"})
	assert.Error(t, err)
}

func TestLoadMissingSession(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Load("ses_01HQXW5P8JQRS7VMKT3NBYFZAG")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	st, err := NewSessionStore(dir)
	require.NoError(t, err)

	s, err := st.Create()
	require.NoError(t, err)

	// Backups and stray files must not surface as sessions.
	junk := filepath.Join(dir, "sessions", "notes.yaml")
	require.NoError(t, os.WriteFile(junk, []byte("x: 1\n"), 0644))
	require.NoError(t, st.Save(s)) // second save creates a .bak

	ids, err := st.List()
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, ids)
}

func TestResumableSkipsTerminalSessions(t *testing.T) {
	st := newTestStore(t)

	running, err := st.Create()
	require.NoError(t, err)
	running.Phase = model.PhaseExecuting
	require.NoError(t, st.Save(running))

	done, err := st.Create()
	require.NoError(t, err)
	done.Phase = model.PhaseCompleted
	require.NoError(t, st.Save(done))

	failed, err := st.Create()
	require.NoError(t, err)
	failed.Phase = model.PhaseFailed
	require.NoError(t, st.Save(failed))

	resumable, err := st.Resumable()
	require.NoError(t, err)
	require.Len(t, resumable, 1)
	assert.Equal(t, running.ID, resumable[0].ID)
	assert.Equal(t, model.PhaseExecuting, resumable[0].Phase)
}

func TestSaveKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	st, err := NewSessionStore(dir)
	require.NoError(t, err)

	s, err := st.Create()
	require.NoError(t, err)
	s.Phase = model.PhasePlanReview
	require.NoError(t, st.Save(s))

	bak := filepath.Join(dir, "sessions", s.ID+".yaml.bak")
	_, err = os.Stat(bak)
	assert.NoError(t, err, "previous version should be kept as .bak")
}
