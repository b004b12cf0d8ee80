package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nirsvault/internal/httpapi"
)

func newServeCmd(g *globals) *cobra.Command {
	var (
		addr       string
		noTriggers bool
		pruneEvery time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and run scheduled and watched jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if !noTriggers {
				if err := a.pipeline.RestartWatchers(ctx); err != nil {
					// a broken watcher does not stop the others
					a.log.Warn("some triggers did not start", zap.Error(err))
				}
			}
			if maxAge := g.cfg.Dashboard.SnapshotMaxAge; maxAge > 0 && pruneEvery > 0 {
				go a.pruneSnapshots(ctx, maxAge, pruneEvery)
			}

			if addr == "" {
				addr = g.cfg.Server.Addr
			}
			h := httpapi.New(a.pipeline, a.dashboard, a.metrics.Handler(), a.log)
			err = httpapi.ListenAndServe(ctx, addr, h, g.cfg.Server.ShutdownTimeout)

			waitCtx, cancel := context.WithTimeout(context.Background(), g.cfg.Server.ShutdownTimeout)
			defer cancel()
			a.pipeline.WaitRunning(waitCtx)
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().BoolVar(&noTriggers, "no-triggers", false, "do not start schedules or folder watchers")
	cmd.Flags().DurationVar(&pruneEvery, "prune-every", time.Hour, "how often expired snapshots are deleted")
	return cmd
}

func (a *app) pruneSnapshots(ctx context.Context, maxAge, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.dashboard.PruneSnapshots(maxAge)
			if err != nil {
				a.log.Warn("snapshot prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.log.Info("snapshots pruned", zap.Int("count", n))
			}
		}
	}
}
