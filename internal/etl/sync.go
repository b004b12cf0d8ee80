package etl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nirsvault/internal/apperr"
)

// ── SyncJob ────────────────────────────────────────────────
// Orchestrates: source.Discover → source.Process per batch → collision
// check → destination.Write per table.
//
// Pattern: Airbyte sync / Singer tap→target pipeline.

// Run statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial" // some file groups failed, the rest loaded
	StatusError   = "error"
	StatusRunning = "running"
)

// SyncJob holds the configuration for a single ingest.
type SyncJob struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	SourceType    string       `json:"sourceType"`
	SourceCfg     SourceConfig `json:"sourceConfig"`
	TriggerType   string       `json:"triggerType"`   // "manual" | "schedule" | "file_watch"
	TriggerConfig string       `json:"triggerConfig"` // cron expression or watch path
	Enabled       bool         `json:"enabled"`
	LastRunAt     time.Time    `json:"lastRunAt"`
	LastStatus    string       `json:"lastStatus"` // "success" | "partial" | "error" | "running" | ""
	LastError     string       `json:"lastError"`
}

// SyncResult is the outcome of running a sync job.
type SyncResult struct {
	JobID        string         `json:"jobId"`
	Status       string         `json:"status"`
	Batches      int            `json:"batches"`
	GroupsRead   int            `json:"groupsRead"`
	GroupsLoaded int            `json:"groupsLoaded"`
	RowsWritten  int            `json:"rowsWritten"`
	Tables       map[string]int `json:"tables,omitempty"` // rows written per table
	Failures     []GroupFailure `json:"failures,omitempty"`
	Duration     time.Duration  `json:"duration"`
	Error        string         `json:"error,omitempty"`
}

// SyncRunLog is a historical record of a sync run.
type SyncRunLog struct {
	ID           string         `json:"id"`
	JobID        string         `json:"jobId"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	Status       string         `json:"status"`
	Trigger      string         `json:"trigger"` // "manual" | "schedule" | "file_watch"
	GroupsRead   int            `json:"groupsRead"`
	GroupsLoaded int            `json:"groupsLoaded"`
	RowsWritten  int            `json:"rowsWritten"`
	Error        string         `json:"error,omitempty"`
	Failures     []GroupFailure `json:"failures,omitempty"`
}

// Observer receives engine events; metrics implement it.
type Observer interface {
	TableWritten(table string, rows int, elapsed time.Duration)
	GroupFailed(source, stage string)
}

// ── Engine ─────────────────────────────────────────────────
// The Engine orchestrates sync execution.

// Engine runs sync jobs using the registered sources and a destination.
type Engine struct {
	Dest     Destination
	Logger   *zap.Logger
	Observer Observer
	Workers  int // batches processed concurrently; <= 0 means 1
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// RunSync executes a sync job end-to-end.
func (e *Engine) RunSync(ctx context.Context, job *SyncJob) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{JobID: job.ID, Tables: map[string]int{}}
	log := e.logger().With(zap.String("job", job.Name), zap.String("source", job.SourceType))

	fail := func(err error) (*SyncResult, error) {
		result.Status = StatusError
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	// 1. Resolve source from registry.
	source, err := GetSource(job.SourceType)
	if err != nil {
		return fail(err)
	}

	// 2. Discover batches of file groups.
	batches, err := source.Discover(ctx, job.SourceCfg)
	if err != nil {
		return fail(fmt.Errorf("discover: %w", err))
	}
	result.Batches = len(batches)
	for _, b := range batches {
		result.GroupsRead += len(b.Groups)
	}
	log.Info("batches discovered", zap.Int("batches", len(batches)), zap.Int("groups", result.GroupsRead))

	// 3. Extract + transform each batch. Batches share nothing.
	outputs, err := e.processBatches(ctx, source, job.SourceCfg, batches)
	if err != nil {
		return fail(fmt.Errorf("process: %w", err))
	}

	// 4. Merge per-batch tables and drop natural-key collisions.
	var loaded []string
	for _, out := range outputs {
		result.Failures = append(result.Failures, out.Failures...)
		loaded = append(loaded, out.Groups...)
	}
	tables := MergeTables(outputs)
	collisions := DetectCollisions(tables)
	if len(collisions) > 0 {
		dropped := make(map[string]bool, len(collisions))
		for _, c := range collisions {
			dropped[c.Group] = true
			log.Warn("natural key collision", zap.String("group", c.Group), zap.Error(c.Err))
		}
		tables = DropOrigins(tables, dropped)
		result.Failures = append(result.Failures, collisions...)
		kept := loaded[:0]
		for _, g := range loaded {
			if !dropped[g] {
				kept = append(kept, g)
			}
		}
		loaded = kept
	}
	for _, f := range result.Failures {
		log.Warn("file group failed",
			zap.String("group", f.Group), zap.String("stage", f.Stage), zap.String("error", f.Error))
		if e.Observer != nil {
			e.Observer.GroupFailed(job.SourceType, f.Stage)
		}
	}

	// 5. Write hubs, then links, then satellites.
	for _, t := range tables {
		if len(t.Records) == 0 {
			continue
		}
		t0 := time.Now()
		n, err := e.Dest.Write(ctx, t)
		result.RowsWritten += n
		result.Tables[t.Name] += n
		if err != nil {
			return fail(fmt.Errorf("write: %w", err))
		}
		if e.Observer != nil {
			e.Observer.TableWritten(t.Name, n, time.Since(t0))
		}
		log.Debug("table written", zap.String("table", t.Name), zap.Int("rows", n))
	}

	result.GroupsLoaded = len(loaded)
	switch {
	case len(result.Failures) == 0:
		result.Status = StatusSuccess
	case result.GroupsLoaded > 0:
		result.Status = StatusPartial
	default:
		result.Status = StatusError
		result.Error = fmt.Sprintf("all %d file groups failed", len(result.Failures))
	}
	result.Duration = time.Since(start)
	log.Info("sync finished",
		zap.String("status", result.Status),
		zap.Int("groups_loaded", result.GroupsLoaded),
		zap.Int("groups_failed", len(result.Failures)),
		zap.Int("rows", result.RowsWritten),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (e *Engine) processBatches(ctx context.Context, source Source, cfg SourceConfig, batches []Batch) ([]*BatchOutput, error) {
	outputs := make([]*BatchOutput, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	workers := e.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, b := range batches {
		g.Go(func() error {
			out, err := source.Process(gctx, cfg, b)
			if err != nil {
				return fmt.Errorf("batch %s: %w", b.Name, err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// Preview discovers the batches a job would process without reading files.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig) ([]Batch, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, err
	}
	batches, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	return batches, nil
}

// ── Merge & collision check ────────────────────────────────

// MergeTables concatenates same-named tables across batch outputs, keeping
// first-seen table order, then orders them hubs, links, satellites.
func MergeTables(outputs []*BatchOutput) []Table {
	var merged []Table
	index := make(map[string]int)
	for _, out := range outputs {
		if out == nil {
			continue
		}
		for _, t := range out.Tables {
			i, ok := index[t.Name]
			if !ok {
				index[t.Name] = len(merged)
				t.Records = append([]Record(nil), t.Records...)
				merged = append(merged, t)
				continue
			}
			merged[i].Records = append(merged[i].Records, t.Records...)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Kind.Rank() < merged[j].Kind.Rank()
	})
	return merged
}

// DetectCollisions finds hub and link sequences claimed by more than one
// file group. The first claimant keeps the key; each later claimant is
// reported once.
func DetectCollisions(tables []Table) []GroupFailure {
	var failures []GroupFailure
	dropped := make(map[string]bool)
	for _, t := range tables {
		if t.Kind == KindSatellite {
			continue
		}
		owner := make(map[string]string)
		for _, r := range t.Records {
			if dropped[r.Origin] {
				continue
			}
			seq, _ := r.Data["sequence"].(string)
			first, ok := owner[seq]
			if !ok {
				owner[seq] = r.Origin
				continue
			}
			if first == r.Origin {
				continue
			}
			dropped[r.Origin] = true
			err := apperr.NaturalKeyCollision(seq, first, r.Origin).WithContext("table", t.Name)
			failures = append(failures, NewGroupFailure(r.Origin, "collision", err))
		}
	}
	return failures
}

// DropOrigins removes every record produced by the given groups.
func DropOrigins(tables []Table, origins map[string]bool) []Table {
	out := make([]Table, 0, len(tables))
	for _, t := range tables {
		kept := make([]Record, 0, len(t.Records))
		for _, r := range t.Records {
			if !origins[r.Origin] {
				kept = append(kept, r)
			}
		}
		t.Records = kept
		out = append(out, t)
	}
	return out
}
