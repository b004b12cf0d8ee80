package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nirsvault/internal/apperr"
	"nirsvault/internal/etl"
	"nirsvault/internal/etl/sources"
	"nirsvault/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service: runs ingest jobs on demand, on a schedule or
// when the data folder changes
// ─────────────────────────────────────────────────────────────

// Trigger types.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

// ErrAlreadyRunning is returned when a job is triggered while a previous
// run of it is still in flight.
var ErrAlreadyRunning = errors.New("job is already running")

// RunObserver is told about every finished run; metrics implement it.
type RunObserver interface {
	RunFinished(job, status string, elapsed time.Duration)
}

// PipelineOptions tunes a PipelineService. Zero values get defaults.
type PipelineOptions struct {
	Logger      *zap.Logger
	Emitter     EventEmitter
	Observer    etl.Observer
	RunObserver RunObserver
	Timeout     time.Duration // per run; default 30m
	Workers     int           // batches in flight per run; default 2
	Debounce    time.Duration // file-watch quiet period; default 2s
}

// PipelineService runs the configured jobs against one destination.
type PipelineService struct {
	jobs        map[string]etl.SyncJob
	runs        *storage.RunStore
	dest        etl.Destination
	opts        PipelineOptions
	log         *zap.Logger
	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
	triggered   sync.WaitGroup // debounced runs pending or in flight
}

// NewPipelineService creates a PipelineService. runs may be nil, in which
// case run logs are not persisted.
func NewPipelineService(jobs []etl.SyncJob, runs *storage.RunStore, dest etl.Destination, opts PipelineOptions) *PipelineService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emitter == nil {
		opts.Emitter = LogEmitter{Logger: opts.Logger}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	byName := make(map[string]etl.SyncJob, len(jobs))
	for _, j := range jobs {
		if j.ID == "" {
			j.ID = j.Name
		}
		if j.TriggerType == "" {
			j.TriggerType = TriggerManual
		}
		byName[j.Name] = j
	}
	return &PipelineService{
		jobs: byName,
		runs: runs,
		dest: dest,
		opts: opts,
		log:  opts.Logger.Named("pipeline"),
	}
}

// ── Jobs ───────────────────────────────────────────────────

// Jobs lists the configured jobs by name, with their last-run state.
func (s *PipelineService) Jobs() ([]etl.SyncJob, error) {
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]etl.SyncJob, 0, len(names))
	for _, n := range names {
		j := s.jobs[n]
		if s.runs != nil {
			if err := s.runs.ApplyState(&j); err != nil {
				return nil, fmt.Errorf("job state %s: %w", n, err)
			}
		}
		out = append(out, j)
	}
	return out, nil
}

// Job returns one configured job.
func (s *PipelineService) Job(name string) (etl.SyncJob, error) {
	j, ok := s.jobs[name]
	if !ok {
		return etl.SyncJob{}, apperr.NotFound(fmt.Sprintf("job %q", name))
	}
	return j, nil
}

// Running lists the jobs with a run in flight.
func (s *PipelineService) Running() []string {
	return s.runningJobs.Running()
}

// ListSources returns the available source descriptors.
func (s *PipelineService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ListRunLogs returns the last runs of a job; all jobs when name is empty.
func (s *PipelineService) ListRunLogs(name string, limit int) ([]etl.SyncRunLog, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.ListRunLogs(name, limit)
}

// Preview lists the batches and file groups a job would read.
func (s *PipelineService) Preview(ctx context.Context, name string) ([]etl.Batch, error) {
	job, err := s.Job(name)
	if err != nil {
		return nil, err
	}
	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	engine := &etl.Engine{Dest: s.dest, Logger: s.log}
	return engine.Preview(previewCtx, job.SourceType, job.SourceCfg)
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes one job synchronously: discover, transform, load, then
// persist the run log and report the failed groups.
func (s *PipelineService) RunJob(ctx context.Context, name, trigger string) (*etl.SyncResult, error) {
	job, err := s.Job(name)
	if err != nil {
		return nil, err
	}
	// Prevent concurrent execution of the same job.
	if !s.runningJobs.TryLock(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	defer s.runningJobs.Unlock(name)

	log := s.log.With(zap.String("job", name), zap.String("trigger", trigger))
	if s.runs != nil {
		if err := s.runs.UpdateJobStatus(name, etl.StatusRunning, ""); err != nil {
			log.Warn("job state not saved", zap.Error(err))
		}
	}
	s.opts.Emitter.Emit(ctx, EventRunStarted, map[string]string{"job": name, "trigger": trigger})

	engine := &etl.Engine{
		Dest:     s.dest,
		Logger:   s.opts.Logger.Named("etl"),
		Observer: s.opts.Observer,
		Workers:  s.opts.Workers,
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now().UTC()
	result, runErr := engine.RunSync(runCtx, &job)

	runLog := &etl.SyncRunLog{
		JobID:        name,
		StartedAt:    start,
		FinishedAt:   time.Now().UTC(),
		Status:       result.Status,
		Trigger:      trigger,
		GroupsRead:   result.GroupsRead,
		GroupsLoaded: result.GroupsLoaded,
		RowsWritten:  result.RowsWritten,
		Error:        result.Error,
		Failures:     result.Failures,
	}
	if s.runs != nil {
		if err := s.runs.CreateRunLog(runLog); err != nil {
			log.Warn("run log not saved", zap.Error(err))
		}
		if err := s.runs.UpdateJobStatus(name, result.Status, result.Error); err != nil {
			log.Warn("job state not saved", zap.Error(err))
		}
	}
	if s.opts.RunObserver != nil {
		s.opts.RunObserver.RunFinished(name, result.Status, result.Duration)
	}

	for _, f := range result.Failures {
		s.opts.Emitter.Emit(ctx, EventGroupFailed, map[string]string{
			"job": name, "group": f.Group, "stage": f.Stage, "kind": string(f.Kind), "error": f.Error,
		})
	}
	s.opts.Emitter.Emit(ctx, EventRunCompleted, map[string]any{
		"job":          name,
		"runId":        runLog.ID,
		"status":       result.Status,
		"groupsLoaded": result.GroupsLoaded,
		"groupsFailed": len(result.Failures),
		"rowsWritten":  result.RowsWritten,
	})

	return result, runErr
}

// ── Watchers (cron + file_watch) ──────────────────────────

// watchFolder is the directory a file_watch job observes: its trigger
// config, else its source folder.
func watchFolder(j etl.SyncJob) string {
	if j.TriggerConfig != "" {
		return j.TriggerConfig
	}
	return j.SourceCfg.String(sources.KeyFolder)
}

// RestartWatchers tears down the current watcher/cron and rebuilds them
// for the enabled schedule and file_watch jobs. Jobs whose trigger cannot
// be set up are skipped and reported in the returned error; the rest run.
func (s *PipelineService) RestartWatchers(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	var errs []error
	var scheduled, watched []etl.SyncJob
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		switch j.TriggerType {
		case TriggerSchedule:
			scheduled = append(scheduled, j)
		case TriggerFileWatch:
			watched = append(watched, j)
		}
	}

	// ── Cron jobs ──
	if len(scheduled) > 0 {
		c := cron.New()
		n := 0
		for _, j := range scheduled {
			name := j.Name
			_, err := c.AddFunc(j.TriggerConfig, func() {
				s.trigger(ctx, name, TriggerSchedule)
			})
			if err != nil {
				errs = append(errs, apperr.Config(fmt.Sprintf("job %s: schedule %q", name, j.TriggerConfig), err))
				continue
			}
			n++
		}
		c.Start()
		s.cronSched = c
		s.log.Info("cron scheduled", zap.Int("jobs", n))
	}

	// ── File watchers ──
	if len(watched) == 0 {
		return errors.Join(errs...)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errs = append(errs, fmt.Errorf("create watcher: %w", err))
		return errors.Join(errs...)
	}
	s.watcher = watcher

	dirToJobs := make(map[string][]string)
	for _, j := range watched {
		root, err := filepath.Abs(watchFolder(j))
		if err != nil {
			errs = append(errs, apperr.Config(fmt.Sprintf("job %s: bad watch path", j.Name), err))
			continue
		}
		dirs, err := watchDirs(root)
		if err != nil {
			errs = append(errs, apperr.Config(fmt.Sprintf("job %s: watch %s", j.Name, root), err))
			continue
		}
		for _, d := range dirs {
			if _, seen := dirToJobs[d]; !seen {
				if err := watcher.Add(d); err != nil {
					errs = append(errs, fmt.Errorf("job %s: watch %s: %w", j.Name, d, err))
					continue
				}
			}
			dirToJobs[d] = append(dirToJobs[d], j.Name)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	s.watchDone = make(chan struct{})
	go s.watchLoop(watchCtx, watcher, dirToJobs, s.watchDone)

	s.log.Info("watching folders", zap.Int("dirs", len(dirToJobs)), zap.Int("jobs", len(watched)))
	return errors.Join(errs...)
}

// watchDirs returns root and its immediate subdirectories; Pre-Autism
// exports keep one subdirectory per subject and condition.
func watchDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	dirs := []string{root}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}

func (s *PipelineService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, dirToJobs map[string][]string, done chan struct{}) {
	defer close(done)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			if t.Stop() {
				s.triggered.Done()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			jobs := dirToJobs[filepath.Dir(absPath)]
			if len(jobs) == 0 {
				continue
			}
			// A new subject folder is watched too.
			if info, err := os.Stat(absPath); err == nil && info.IsDir() && event.Has(fsnotify.Create) {
				if err := watcher.Add(absPath); err == nil {
					dirToJobs[absPath] = jobs
				}
			}
			for _, name := range jobs {
				if t, exists := timers[name]; exists && t.Stop() {
					s.triggered.Done()
				}
				jobName := name
				s.triggered.Add(1)
				timers[name] = time.AfterFunc(s.opts.Debounce, func() {
					defer s.triggered.Done()
					if ctx.Err() != nil {
						return
					}
					s.log.Info("data folder changed", zap.String("job", jobName), zap.String("path", absPath))
					s.trigger(ctx, jobName, TriggerFileWatch)
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// trigger runs a job from the scheduler or the watcher; errors are logged.
func (s *PipelineService) trigger(ctx context.Context, name, trigger string) {
	result, err := s.RunJob(ctx, name, trigger)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.log.Info("run skipped, previous run still in flight", zap.String("job", name))
	case err != nil:
		s.log.Error("run failed", zap.String("job", name), zap.String("trigger", trigger), zap.Error(err))
	default:
		s.log.Info("run finished", zap.String("job", name), zap.String("trigger", trigger),
			zap.String("status", result.Status))
	}
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers and waits for the runs they
// started. Pending debounced runs are dropped.
func (s *PipelineService) Stop() {
	s.mu.Lock()
	s.stopWatchersLocked()
	s.mu.Unlock()
	s.triggered.Wait()
}

func (s *PipelineService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.watchDone != nil {
		<-s.watchDone
		s.watchDone = nil
	}
	if s.cronSched != nil {
		<-s.cronSched.Stop().Done()
		s.cronSched = nil
	}
}
