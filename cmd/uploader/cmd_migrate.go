package main

import (
	"context"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	var migrator *db.Migrator

	return runApp(cmd.Context(), func(ctx context.Context) error {
		return migrator.Run(ctx)
	}, fx.Populate(&migrator))
}
