package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voyagen/epgsync/internal/config"
	"github.com/voyagen/epgsync/internal/store"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := migrateDatabase(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

// migrateDatabase installs pgvector and applies pending migrations, from
// MigrationsPath when set and from the embedded set otherwise.
func migrateDatabase(cfg *config.Config) error {
	if err := store.EnsurePgvector(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("pgvector: %w", err)
	}
	if err := store.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
