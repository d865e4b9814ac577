package main

import (
	"context"
	"fmt"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/anomaly"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List reading headers that have no values",
	Long: `Report readings created before now minus --older-than that have no
reading_values rows. Defaults come from SCAN_ORPHAN_AGE and SCAN_LIMIT.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().Duration("older-than", 0, "only report readings created at least this long ago")
	scanCmd.Flags().Int("limit", 0, "maximum number of readings to report")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	var (
		scanner *anomaly.Scanner
		cfg     *config.Config
	)

	return runApp(cmd.Context(), func(ctx context.Context) error {
		olderThan := cfg.Scan.OrphanAge
		if cmd.Flags().Changed("older-than") {
			olderThan, _ = cmd.Flags().GetDuration("older-than")
		}
		limit := cfg.Scan.Limit
		if cmd.Flags().Changed("limit") {
			limit, _ = cmd.Flags().GetInt("limit")
		}

		report, err := scanner.Scan(ctx, olderThan, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, r := range report.Orphans {
			fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", r.ID, r.DeviceName,
				r.ObservedAt.UTC().Format(time.RFC3339), r.CreatedAt.UTC().Format(time.RFC3339))
		}
		fmt.Fprintf(out, "%d orphan readings before %s\n", len(report.Orphans), report.Cutoff.Format(time.RFC3339))
		if report.Truncated {
			fmt.Fprintln(out, "limit reached, more may exist")
		}
		return nil
	}, fx.Populate(&scanner, &cfg))
}
