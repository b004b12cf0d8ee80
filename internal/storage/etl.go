package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nirsvault/internal/apperr"
	"nirsvault/internal/etl"
)

// RunStore persists pipeline run logs, their failed file groups and the
// last-run state of each configured job.
type RunStore struct {
	db  *DB
	now func() time.Time
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db, now: time.Now}
}

// ── Job state ──────────────────────────────────────────────

// JobState is the last-run status of a configured job.
type JobState struct {
	JobName    string    `json:"jobName"`
	LastRunAt  time.Time `json:"lastRunAt"`
	LastStatus string    `json:"lastStatus"`
	LastError  string    `json:"lastError"`
}

// UpdateJobStatus records the outcome (or the start) of a job's run.
func (s *RunStore) UpdateJobStatus(name, status, errMsg string) error {
	now := s.now()
	_, err := s.db.conn.Exec(
		`INSERT INTO job_state (job_name, last_run_at, last_status, last_error, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(job_name) DO UPDATE SET
		   last_run_at=excluded.last_run_at, last_status=excluded.last_status,
		   last_error=excluded.last_error, updated_at=excluded.updated_at`,
		name, now, status, errMsg, now,
	)
	return err
}

// JobState returns a job's state; a job that never ran has a zero state.
func (s *RunStore) JobState(name string) (JobState, error) {
	st := JobState{JobName: name}
	var lastRun sql.NullTime
	err := s.db.conn.QueryRow(
		`SELECT last_run_at, last_status, last_error FROM job_state WHERE job_name = ?`, name,
	).Scan(&lastRun, &st.LastStatus, &st.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.LastRunAt = lastRun.Time
	return st, nil
}

// ApplyState copies a job's persisted state onto the job.
func (s *RunStore) ApplyState(job *etl.SyncJob) error {
	st, err := s.JobState(job.Name)
	if err != nil {
		return err
	}
	job.LastRunAt = st.LastRunAt
	job.LastStatus = st.LastStatus
	job.LastError = st.LastError
	return nil
}

// ── Run Logs ───────────────────────────────────────────────

// CreateRunLog stores a run and its failed groups in one transaction.
func (s *RunStore) CreateRunLog(log *etl.SyncRunLog) error {
	log.ID = uuid.New().String()

	tx, err := s.db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO run_logs (id, job_name, started_at, finished_at, status, triggered_by,
		 groups_read, groups_loaded, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobID, log.StartedAt, log.FinishedAt, log.Status, log.Trigger,
		log.GroupsRead, log.GroupsLoaded, log.RowsWritten, log.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	for i, f := range log.Failures {
		_, err := tx.Exec(
			`INSERT INTO run_failures (run_id, position, group_name, stage, kind, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			log.ID, i, f.Group, f.Stage, string(f.Kind), f.Error,
		)
		if err != nil {
			return fmt.Errorf("insert run failure: %w", err)
		}
	}
	return tx.Commit()
}

const runLogColumns = `id, job_name, started_at, finished_at, status, triggered_by,
	groups_read, groups_loaded, rows_written, error`

func scanRunLog(sc interface{ Scan(...any) error }) (etl.SyncRunLog, error) {
	var l etl.SyncRunLog
	err := sc.Scan(&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status, &l.Trigger,
		&l.GroupsRead, &l.GroupsLoaded, &l.RowsWritten, &l.Error)
	return l, err
}

// ListRunLogs returns a job's most recent runs, newest first, failures
// included. An empty jobName lists runs of every job.
func (s *RunStore) ListRunLogs(jobName string, limit int) ([]etl.SyncRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runLogColumns + ` FROM run_logs`
	args := []any{}
	if jobName != "" {
		query += ` WHERE job_name = ?`
		args = append(args, jobName)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var logs []etl.SyncRunLog
	for rows.Next() {
		l, err := scanRunLog(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		logs = append(logs, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Single connection: the failure queries run after the list is closed.
	for i := range logs {
		if logs[i].Failures, err = s.failures(logs[i].ID); err != nil {
			return nil, err
		}
	}
	return logs, nil
}

// GetRunLog returns one run with its failures.
func (s *RunStore) GetRunLog(id string) (*etl.SyncRunLog, error) {
	l, err := scanRunLog(s.db.conn.QueryRow(`SELECT `+runLogColumns+` FROM run_logs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("run %s", id))
	}
	if err != nil {
		return nil, err
	}
	if l.Failures, err = s.failures(id); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *RunStore) failures(runID string) ([]etl.GroupFailure, error) {
	rows, err := s.db.conn.Query(
		`SELECT group_name, stage, kind, error FROM run_failures WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []etl.GroupFailure
	for rows.Next() {
		var f etl.GroupFailure
		var kind string
		if err := rows.Scan(&f.Group, &f.Stage, &kind, &f.Error); err != nil {
			return nil, err
		}
		f.Kind = apperr.Kind(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}
