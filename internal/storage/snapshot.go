package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nirsvault/internal/apperr"
)

// Snapshot is a cached dashboard result.
type Snapshot struct {
	ID         string    `json:"id"`
	Metric     string    `json:"metric"`
	Params     string    `json:"params"` // canonical parameter string
	Columns    []string  `json:"columns"`
	Rows       [][]any   `json:"rows"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SnapshotStore manages cached dashboard results in SQLite.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save stores a snapshot, assigning its id and creation time.
func (s *SnapshotStore) Save(snap *Snapshot) error {
	snap.ID = uuid.New().String()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	cols, err := json.Marshal(snap.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	rows, err := json.Marshal(snap.Rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	_, err = s.db.Conn().Exec(
		`INSERT INTO dashboard_snapshots (id, metric, params, columns_json, rows_json, row_count, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Metric, snap.Params, string(cols), string(rows), len(snap.Rows), snap.DurationMs, snap.CreatedAt,
	)
	return err
}

// Latest returns the newest snapshot of a metric with the given params.
func (s *SnapshotStore) Latest(metric, params string) (*Snapshot, error) {
	row := s.db.Conn().QueryRow(
		`SELECT id, metric, params, columns_json, rows_json, duration_ms, created_at
		 FROM dashboard_snapshots WHERE metric = ? AND params = ?
		 ORDER BY created_at DESC LIMIT 1`, metric, params,
	)

	snap := &Snapshot{}
	var cols, rows string
	err := row.Scan(&snap.ID, &snap.Metric, &snap.Params, &cols, &rows, &snap.DurationMs, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("snapshot of %s", metric))
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cols), &snap.Columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	if err := json.Unmarshal([]byte(rows), &snap.Rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return snap, nil
}

// Prune deletes snapshots older than the cutoff and returns how many went.
func (s *SnapshotStore) Prune(before time.Time) (int, error) {
	res, err := s.db.Conn().Exec(`DELETE FROM dashboard_snapshots WHERE created_at < ?`, before)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
