package main

import (
	"github.com/spf13/cobra"

	"github.com/prudhvinik1/syncengine/internal/config"
	"github.com/prudhvinik1/syncengine/internal/database"
	"github.com/prudhvinik1/syncengine/internal/logger"
)

func newRootCommand() *cobra.Command {
	serve := newServeCommand()

	cmd := &cobra.Command{
		Use:           "syncengine",
		Short:         "Multi-device synchronization server",
		SilenceUsage:  true,
		SilenceErrors: true,
		// running without a subcommand starts the server
		RunE: serve.RunE,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(newMigrateCommand())

	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations, then serve the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			log := logger.NewLogger("migrate", cfg.Log)

			pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			db := database.OpenDB(pool)
			defer db.Close()

			if status {
				return database.MigrationStatus(ctx, db)
			}
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "print migration status instead of applying")

	return cmd
}
