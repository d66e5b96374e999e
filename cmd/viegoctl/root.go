package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/viego-wallet/viego-backend/internal/app"
	"github.com/viego-wallet/viego-backend/internal/clock"
	"github.com/viego-wallet/viego-backend/internal/config"
	"github.com/viego-wallet/viego-backend/internal/controls"
	"github.com/viego-wallet/viego-backend/internal/logging"
)

type rootOptions struct {
	configPath string
	quiet      bool
	timeout    time.Duration

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "viegoctl",
		Short:         "Operate the Viego transaction controls backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			if opts.quiet {
				opts.logger = logging.Discard()
			} else {
				opts.logger = logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml, json or toml); env vars take precedence")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress logs")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline for the command")

	root.AddCommand(
		newDispatchCmd(opts),
		newDiscoverCmd(opts),
		newSimulateCmd(opts),
		newAlertsCmd(opts),
		newNextDueCmd(opts),
	)
	return root
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// workflow builds a vendor-only orchestration service; no store is
// contacted.
func (o *rootOptions) workflow() (*controls.Service, error) {
	clk := clock.Real()
	return app.NewWorkflow(o.cfg, o.logger, clk, controls.NewMemoryCache(o.cfg.Visa.DiscoveryTTL, clk))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
