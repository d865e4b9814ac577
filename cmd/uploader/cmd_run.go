package main

import (
	"context"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single poll cycle and exit",
	Long: `Poll every configured device once and exit. Device failures are logged and
do not change the exit status, so the command is safe to schedule from cron.`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	var (
		runner *service.Runner
		logger *zap.Logger
	)

	return runApp(cmd.Context(), func(ctx context.Context) error {
		report := runner.RunOnce(ctx)
		logger.Info("run finished",
			zap.String("run_id", report.RunID),
			zap.Int("devices", len(report.Devices)),
			zap.Int("failed_devices", report.Failed()),
		)
		return nil
	},
		fx.Invoke(registerAutoMigrate),
		fx.Populate(&runner, &logger),
	)
}
