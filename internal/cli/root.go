// Package cli is the nirsvault command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nirsvault/internal/config"
	"nirsvault/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// globals holds the persistent flags and what PersistentPreRunE builds
// from them.
type globals struct {
	configPath string
	legacyPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "nirsvault",
		Short: "Load fNIRS recordings into a data vault and query them",
		Long: `nirsvault reads the VM and Pre-Autism NIRS exports, turns every file group
into data-vault hubs, links and satellites, and appends them to a warehouse.

The dashboard metrics, the HTTP API and the MCP server read the loaded vault.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if g.legacyPath != "" {
				if err := cfg.ApplyLegacy(g.legacyPath); err != nil {
					return err
				}
			}
			g.cfg = cfg
			g.logger, err = logging.New(cfg.Logging, g.verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "nirsvault.yaml", "configuration file")
	root.PersistentFlags().StringVar(&g.legacyPath, "legacy-config", "", "config.txt naming VMDataFolder and PreAutismDataFolder")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newIngestCmd(g),
		newJobsCmd(g),
		newRunsCmd(g),
		newQueryCmd(g),
		newSchemaCmd(g),
		newServeCmd(g),
		newMCPCmd(g),
		newSecretCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nirsvault", Version)
		},
	}
}
