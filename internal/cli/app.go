package cli

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"nirsvault/internal/dbclient"
	"nirsvault/internal/metrics"
	"nirsvault/internal/secret"
	"nirsvault/internal/service"
	"nirsvault/internal/storage"
	"nirsvault/internal/vault"
)

// app is everything a command needs, opened from the configuration.
type app struct {
	log       *zap.Logger
	metrics   *metrics.Pipeline
	state     *storage.DB
	warehouse dbclient.Connector
	pipeline  *service.PipelineService
	dashboard *service.DashboardService
}

func secretStores() []secret.SecretStore {
	stores := []secret.SecretStore{secret.NewEnvStore()}
	if runtime.GOOS == "darwin" {
		stores = append(stores, secret.NewKeychainStore())
	}
	return stores
}

// open connects to the warehouse, makes sure the vault tables exist and
// opens the local state database.
func (g *globals) open(ctx context.Context) (*app, error) {
	cfg, log := g.cfg, g.logger
	secrets := secretStores()

	password, err := secret.WarehousePassword(&cfg.Warehouse, secrets...)
	if err != nil {
		return nil, err
	}
	conn, err := dbclient.NewConnector(&cfg.Warehouse, password, dbclient.Options{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	if err := conn.EnsureSchema(ctx, vault.Tables()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vault schema: %w", err)
	}

	state, err := storage.New(cfg.State.Path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open state %s: %w", cfg.State.Path, err)
	}

	m := metrics.New()
	a := &app{log: log, metrics: m, state: state, warehouse: conn}
	a.pipeline = service.NewPipelineService(cfg.SyncJobs(), storage.NewRunStore(state), conn, service.PipelineOptions{
		Logger:      log,
		Observer:    m,
		RunObserver: m,
		Timeout:     cfg.Pipeline.Timeout,
		Workers:     cfg.Pipeline.Workers,
		Debounce:    cfg.Pipeline.Debounce,
	})

	var snaps *storage.SnapshotStore
	if cfg.Dashboard.Cache {
		snaps = storage.NewSnapshotStore(state)
	}
	a.dashboard = service.NewDashboardService(&cfg.Warehouse, snaps, service.DashboardOptions{
		Logger:   log,
		Observer: m,
		Secrets:  secrets,
		MaxAge:   cfg.Dashboard.SnapshotMaxAge,
	})
	a.dashboard.UseConnector(conn)
	return a, nil
}

func (a *app) Close() error {
	a.pipeline.Stop()
	return errors.Join(a.dashboard.Close(), a.warehouse.Close(), a.state.Close())
}
