package storage_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nirsvault/internal/apperr"
	"nirsvault/internal/etl"
	"nirsvault/internal/storage"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "state", "nirsvault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_MigrationsAreRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nirsvault.db")
	db, err := storage.New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// The second open re-runs every migration, including the ALTER TABLE.
	db, err = storage.New(path)
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())
	require.NoError(t, db.Close())
}

func TestRunStore_RunLogWithFailures(t *testing.T) {
	runs := storage.NewRunStore(openDB(t))
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	log := &etl.SyncRunLog{
		JobID:        "preautism-nightly",
		StartedAt:    start,
		FinishedAt:   start.Add(2 * time.Second),
		Status:       etl.StatusPartial,
		Trigger:      "schedule",
		GroupsRead:   3,
		GroupsLoaded: 2,
		RowsWritten:  120,
		Failures: []etl.GroupFailure{
			etl.NewGroupFailure("P03-A_StressedConversation/NIRS-2021-05-04_002.hdr", "extract",
				apperr.IncompleteGroup("P03", ".wl2")),
		},
	}
	require.NoError(t, runs.CreateRunLog(log))
	require.NotEmpty(t, log.ID)

	got, err := runs.GetRunLog(log.ID)
	require.NoError(t, err)
	assert.Equal(t, "preautism-nightly", got.JobID)
	assert.Equal(t, etl.StatusPartial, got.Status)
	assert.Equal(t, "schedule", got.Trigger)
	assert.True(t, start.Equal(got.StartedAt))
	assert.Equal(t, 120, got.RowsWritten)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, apperr.KindIncompleteGroup, got.Failures[0].Kind)
	assert.Equal(t, "extract", got.Failures[0].Stage)
	assert.Contains(t, got.Failures[0].Error, ".wl2")

	_, err = runs.GetRunLog("missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRunStore_ListRunLogsNewestFirst(t *testing.T) {
	runs := storage.NewRunStore(openDB(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, job := range []string{"vm", "vm", "preautism", "vm"} {
		require.NoError(t, runs.CreateRunLog(&etl.SyncRunLog{
			JobID:      job,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Status:     etl.StatusSuccess,
		}))
	}

	logs, err := runs.ListRunLogs("vm", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].StartedAt.After(logs[1].StartedAt))
	assert.Empty(t, logs[0].Failures)

	all, err := runs.ListRunLogs("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRunStore_JobState(t *testing.T) {
	runs := storage.NewRunStore(openDB(t))

	st, err := runs.JobState("vm")
	require.NoError(t, err)
	assert.Empty(t, st.LastStatus)
	assert.True(t, st.LastRunAt.IsZero())

	require.NoError(t, runs.UpdateJobStatus("vm", etl.StatusRunning, ""))
	require.NoError(t, runs.UpdateJobStatus("vm", etl.StatusError, "discover: folder missing"))

	job := &etl.SyncJob{Name: "vm"}
	require.NoError(t, runs.ApplyState(job))
	assert.Equal(t, etl.StatusError, job.LastStatus)
	assert.Equal(t, "discover: folder missing", job.LastError)
	assert.False(t, job.LastRunAt.IsZero())
}

func TestSnapshotStore_LatestAndPrune(t *testing.T) {
	snaps := storage.NewSnapshotStore(openDB(t))
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, snaps.Save(&storage.Snapshot{
		Metric: "group-members", Params: "prefix=Subj",
		Columns: []string{"group", "subject"}, Rows: [][]any{{"Control", "Subj01"}},
		CreatedAt: old,
	}))
	require.NoError(t, snaps.Save(&storage.Snapshot{
		Metric: "group-members", Params: "prefix=Subj",
		Columns: []string{"group", "subject"}, Rows: [][]any{{"Control", "Subj01"}, {"Visual", "Subj02"}},
		CreatedAt: old.Add(time.Hour),
	}))

	got, err := snaps.Latest("group-members", "prefix=Subj")
	require.NoError(t, err)
	assert.Equal(t, []string{"group", "subject"}, got.Columns)
	assert.Equal(t, [][]any{{"Control", "Subj01"}, {"Visual", "Subj02"}}, got.Rows)

	_, err = snaps.Latest("group-members", "prefix=Autism")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	n, err := snaps.Prune(old.Add(30 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
