package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestCreateAndGetRun(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			run := &Run{
				ID:          uuid.NewString(),
				Tool:        "recon-all",
				ToolVersion: "5.3.0",
				SubjectID:   "sub01",
				FSDir:       "/data/fs",
				OutDir:      "/data/out",
				Inputs:      map[string]interface{}{"anatfile": "/data/sub01_T1.nii.gz"},
			}
			require.NoError(t, s.CreateRun(run))

			got, err := s.GetRun(run.ID)
			require.NoError(t, err)
			assert.Equal(t, "recon-all", got.Tool)
			assert.Equal(t, "sub01", got.SubjectID)
			assert.Equal(t, RunStatusRunning, got.Status)
			assert.Equal(t, "/data/sub01_T1.nii.gz", got.Inputs["anatfile"])
			assert.False(t, got.StartedAt.IsZero())
			assert.Nil(t, got.CompletedAt)
		})
	}
}

func TestGetRunNotFound(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetRun("missing")
			assert.ErrorIs(t, err, ErrRunNotFound)
		})
	}
}

func TestCompleteRun(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			run := &Run{ID: uuid.NewString(), Tool: "trac-all"}
			require.NoError(t, s.CreateRun(run))

			require.NoError(t, s.CompleteRun(run.ID, RunStatusFailed, "trac-all exited with status 1"))

			got, err := s.GetRun(run.ID)
			require.NoError(t, err)
			assert.Equal(t, RunStatusFailed, got.Status)
			assert.Equal(t, "trac-all exited with status 1", got.Error)
			require.NotNil(t, got.CompletedAt)

			assert.ErrorIs(t, s.CompleteRun("missing", RunStatusCompleted, ""), ErrRunNotFound)
		})
	}
}

func TestGetSubjectRunsOrdered(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().Add(-time.Hour)
			for i, subject := range []string{"sub01", "sub02", "sub01"} {
				require.NoError(t, s.CreateRun(&Run{
					ID:        uuid.NewString(),
					Tool:      "mri_convert",
					SubjectID: subject,
					StartedAt: base.Add(time.Duration(i) * time.Minute),
				}))
			}

			runs := s.GetSubjectRuns("sub01")
			require.Len(t, runs, 2)
			assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
			assert.Len(t, s.GetAllRuns(), 3)
		})
	}
}

func TestCountByStatus(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			a := &Run{ID: uuid.NewString(), Tool: "recon-all"}
			b := &Run{ID: uuid.NewString(), Tool: "recon-all"}
			require.NoError(t, s.CreateRun(a))
			require.NoError(t, s.CreateRun(b))
			require.NoError(t, s.CompleteRun(b.ID, RunStatusCompleted, ""))

			counts := s.CountByStatus()
			assert.Equal(t, 1, counts[RunStatusRunning])
			assert.Equal(t, 1, counts[RunStatusCompleted])
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	run := &Run{ID: uuid.NewString(), Tool: "recon-all", SubjectID: "sub01"}
	require.NoError(t, s.CreateRun(run))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub01", got.SubjectID)
}
