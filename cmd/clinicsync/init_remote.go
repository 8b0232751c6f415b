package main

import (
	"fmt"

	"clinicsync/backend/postgres"
	"clinicsync/internal/utils"

	"github.com/spf13/cobra"
)

// newInitRemoteCmd creates the command that prepares a postgres remote
func newInitRemoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-remote",
		Short: "Create the synced tables and change trigger on a postgres remote",
		Long: `Create every synced table on the configured postgres remote and install
the trigger that feeds realtime change notifications. Safe to run again.

Only remote.type: postgres is supported; hosted REST backends manage their
own schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.config.Remote.URL == "" {
				return utils.ErrRemoteNotConfigured()
			}
			pg, ok := app.remote.(*postgres.Client)
			if !ok {
				return fmt.Errorf("init-remote needs remote.type postgres (configured: %s)", app.config.Remote.Type)
			}

			if err := utils.LogOperation("ensure remote schema", func() error {
				return pg.EnsureSchema(ctx)
			}); err != nil {
				return fmt.Errorf("failed to prepare remote: %w", err)
			}
			fmt.Printf("✓ Remote schema ready on %s\n", app.config.RemoteHost())
			return nil
		},
	}
}
