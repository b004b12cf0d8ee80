package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"nirsvault/internal/apperr"
	"nirsvault/internal/dashboard"
	"nirsvault/internal/dbclient"
	"nirsvault/internal/domain"
	"nirsvault/internal/export"
	"nirsvault/internal/secret"
	"nirsvault/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Dashboard Service: metric evaluation, snapshots and ad hoc
// queries against the warehouse
// ─────────────────────────────────────────────────────────────

// QueryObserver is told about every served metric; metrics implement it.
type QueryObserver interface {
	QueryServed(metric string, cached bool)
}

// DashboardOptions tunes a DashboardService.
type DashboardOptions struct {
	Logger   *zap.Logger
	Emitter  EventEmitter
	Observer QueryObserver
	Secrets  []secret.SecretStore
	// MaxAge bounds how old a snapshot may be to answer a cached run;
	// zero means snapshots never expire.
	MaxAge time.Duration
	Now    func() time.Time
}

// DashboardService answers dashboard metrics from one warehouse. The
// connector is opened on first use and reused.
type DashboardService struct {
	warehouse *domain.Warehouse
	snaps     *storage.SnapshotStore
	opts      DashboardOptions
	log       *zap.Logger

	mu        sync.Mutex
	connector dbclient.Connector
	owned     bool
}

// NewDashboardService creates a DashboardService. snaps may be nil, in
// which case nothing is cached.
func NewDashboardService(w *domain.Warehouse, snaps *storage.SnapshotStore, opts DashboardOptions) *DashboardService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emitter == nil {
		opts.Emitter = LogEmitter{Logger: opts.Logger}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DashboardService{
		warehouse: w,
		snaps:     snaps,
		opts:      opts,
		log:       opts.Logger.Named("dashboard"),
	}
}

// UseConnector makes the service read through an already open connector,
// typically the one the pipeline writes with.
func (s *DashboardService) UseConnector(c dbclient.Connector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connector, s.owned = c, false
}

// ── Metrics ────────────────────────────────────────────────

// Metrics lists the available metrics.
func (s *DashboardService) Metrics() []dashboard.Metric {
	return dashboard.Metrics()
}

// Run evaluates a metric. With useCache, the latest snapshot for the same
// metric and params answers the call when one exists and is fresh enough;
// otherwise the metric is computed and a new snapshot saved. Transforms
// are applied after the cache, so they never split it.
func (s *DashboardService) Run(ctx context.Context, metric string, p dashboard.Params, useCache bool) (*dashboard.Result, error) {
	if _, ok := dashboard.Lookup(metric); !ok {
		return nil, fmt.Errorf("%w: unknown metric %q", dashboard.ErrInvalidParams, metric)
	}
	log := s.log.With(zap.String("metric", metric), zap.String("params", p.Key()))

	if useCache && s.snaps != nil {
		res, err := s.fromSnapshot(metric, p.Key())
		switch {
		case err == nil:
			log.Debug("served from snapshot")
			s.served(metric, true)
			return dashboard.Transform(res, p.Transforms)
		case !errors.Is(err, apperr.ErrNotFound):
			log.Warn("snapshot unreadable", zap.Error(err))
		}
	}

	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	base := p
	base.Transforms = nil
	res, err := dashboard.Run(ctx, conn, metric, base)
	if err != nil {
		return nil, err
	}
	log.Debug("metric computed", zap.Int("rows", len(res.Rows)), zap.Duration("elapsed", res.Duration))
	s.served(metric, false)

	if s.snaps != nil {
		snap := &storage.Snapshot{
			Metric:     metric,
			Params:     p.Key(),
			Columns:    res.Columns,
			Rows:       res.Rows,
			DurationMs: res.Duration.Milliseconds(),
			CreatedAt:  s.opts.Now(),
		}
		if err := s.snaps.Save(snap); err != nil {
			log.Warn("snapshot not saved", zap.Error(err))
		} else {
			s.opts.Emitter.Emit(ctx, EventSnapshot, map[string]any{
				"id": snap.ID, "metric": metric, "params": snap.Params, "rows": len(res.Rows),
			})
		}
	}
	return dashboard.Transform(res, p.Transforms)
}

func (s *DashboardService) fromSnapshot(metric, key string) (*dashboard.Result, error) {
	snap, err := s.snaps.Latest(metric, key)
	if err != nil {
		return nil, err
	}
	if s.opts.MaxAge > 0 && s.opts.Now().Sub(snap.CreatedAt) > s.opts.MaxAge {
		return nil, apperr.NotFound(fmt.Sprintf("fresh snapshot of %s", metric))
	}
	return &dashboard.Result{
		Metric:   metric,
		Columns:  snap.Columns,
		Rows:     snap.Rows,
		Duration: time.Duration(snap.DurationMs) * time.Millisecond,
	}, nil
}

func (s *DashboardService) served(metric string, cached bool) {
	if s.opts.Observer != nil {
		s.opts.Observer.QueryServed(metric, cached)
	}
}

// Export evaluates a metric and writes it to w as an xlsx workbook.
func (s *DashboardService) Export(ctx context.Context, w io.Writer, metric string, p dashboard.Params, useCache bool) error {
	res, err := s.Run(ctx, metric, p, useCache)
	if err != nil {
		return err
	}
	return export.WriteXLSX(w, res)
}

// PruneSnapshots drops snapshots older than age.
func (s *DashboardService) PruneSnapshots(age time.Duration) (int, error) {
	if s.snaps == nil {
		return 0, nil
	}
	return s.snaps.Prune(s.opts.Now().Add(-age))
}

// ── Ad hoc queries ─────────────────────────────────────────

// Query runs a statement against the warehouse and returns the first page.
func (s *DashboardService) Query(ctx context.Context, query string, args []any, fetchSize int) (*dbclient.QueryPage, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	page, err := conn.Execute(ctx, query, args, fetchSize)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return page, nil
}

// FetchMore continues the last query's cursor.
func (s *DashboardService) FetchMore(ctx context.Context, fetchSize int) (*dbclient.QueryPage, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	return conn.FetchMore(ctx, fetchSize)
}

// ── Test + Introspect ──────────────────────────────────────

func (s *DashboardService) TestConnection(ctx context.Context) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	return conn.TestConnection(ctx)
}

func (s *DashboardService) Introspect(ctx context.Context) (*dbclient.SchemaInfo, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	return conn.Introspect(ctx)
}

// ── Connector ──────────────────────────────────────────────

func (s *DashboardService) conn() (dbclient.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connector != nil {
		return s.connector, nil
	}
	if s.warehouse == nil {
		return nil, apperr.Config("no warehouse configured", nil)
	}

	password, err := secret.WarehousePassword(s.warehouse, s.opts.Secrets...)
	if err != nil {
		return nil, fmt.Errorf("warehouse password: %w", err)
	}
	c, err := dbclient.NewConnector(s.warehouse, password, dbclient.Options{Logger: s.opts.Logger})
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	s.connector, s.owned = c, true
	return c, nil
}

// Close closes the warehouse connector if the service opened one.
func (s *DashboardService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connector == nil || !s.owned {
		return nil
	}
	err := s.connector.Close()
	s.connector = nil
	return err
}
