package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/poolpilot/alerts/internal/config"
	"github.com/poolpilot/alerts/internal/poolpilot/service"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

func runCmd() *cobra.Command {
	var maxAgeMinutes int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one dispatch cycle and print the summary",
		Long: `Run selects pending alerts, delivers them and acknowledges the ones
that were sent, then prints the run summary as JSON.

The configured token is not checked; access to the process is the
authorization.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.PurposeRunOnce)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opt := service.RunOptions{Source: types.SourceCLI}
			if cmd.Flags().Changed("max-age") {
				d := time.Duration(maxAgeMinutes) * time.Minute
				opt.MaxAge = &d
			}

			summary, err := a.dispatcher.Run(ctx, opt)
			if err != nil {
				logger.Error("run failed", zap.Error(err))
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().IntVar(&maxAgeMinutes, "max-age", 0, "Only consider alerts detected in the last N minutes (0 = no limit)")
	return cmd
}
