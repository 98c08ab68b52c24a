package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"listmerge/internal/config"
	"listmerge/internal/logging"
	"listmerge/pkg/ingest"
	"listmerge/pkg/registry"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg *config.Config
	log *zap.Logger
	reg *registry.Registry
}

func (o *rootOptions) open(ctx context.Context) (*app, error) {
	if err := config.LoadEnvFile(o.envFile, o.envFile != ".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	reg, err := registry.Open(ctx, cfg.Paths.RegistryDB)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, reg: reg}, nil
}

func (a *app) close() {
	if err := a.reg.Close(); err != nil {
		a.log.Warn("listmerge: close registry", zap.Error(err))
	}
	_ = a.log.Sync()
}

func (a *app) coordinator() (*ingest.Coordinator, error) {
	if err := os.MkdirAll(a.cfg.Paths.IngestDir, 0o755); err != nil {
		return nil, fmt.Errorf("create ingest dir: %w", err)
	}
	settle, err := a.cfg.SettleDelay()
	if err != nil {
		return nil, err
	}
	merge, err := a.cfg.MergeOptions()
	if err != nil {
		return nil, err
	}
	return ingest.New(ingest.Options{
		IngestDir:   a.cfg.Paths.IngestDir,
		OutputPath:  a.cfg.Paths.OutputFile,
		Extensions:  a.cfg.Ingest.Extensions,
		SettleDelay: settle,
		QueueSize:   a.cfg.Ingest.QueueSize,
		Merge:       merge,
	}, a.reg, a.log)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "listmerge",
		Short:         "Merge contact files into one deduplicated list keyed by email",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a TOML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file (optional when left at the default)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newWatchCmd(opts),
		newScanCmd(opts),
		newStatusCmd(opts),
		newForgetCmd(opts),
	)
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Process the backlog, then watch the ingest directory for new files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts)
		},
	}
}

func runWatch(ctx context.Context, opts *rootOptions) error {
	a, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	c, err := a.coordinator()
	if err != nil {
		return err
	}
	return c.Run(ctx)
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Process files already in the ingest directory and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			c, err := a.coordinator()
			if err != nil {
				return err
			}
			runErr := c.RunOnce(ctx)
			s := c.Summary()
			a.log.Info("listmerge: scan finished", s.LogFields()...)
			return runErr
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List files recorded in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.reg.List(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if entries == nil {
					entries = []registry.Entry{}
				}
				return enc.Encode(entries)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTATUS\tROWS\tMERGED\tDROPPED\tPROCESSED AT\tREASON")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					e.Name, e.Status, e.RowsRead, e.RowsMerged, e.RowsDropped,
					e.ProcessedAt.Local().Format(time.DateTime), e.Reason)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func newForgetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget NAME",
		Short: "Remove a file from the registry so it is ingested again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.reg.Forget(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %d entr%s for %s\n", n, plural(n, "y", "ies"), args[0])
			return nil
		},
	}
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "listmerge:", err)
		stop()
		os.Exit(1)
	}
}
