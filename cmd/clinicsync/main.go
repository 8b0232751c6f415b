package main

import (
	"context"
	"fmt"
	"os"

	"clinicsync/internal/config"
	"clinicsync/internal/utils"

	// Remote store types register themselves with the backend registry
	_ "clinicsync/backend/postgres"
	_ "clinicsync/backend/rest"

	"github.com/spf13/cobra"
)

// Global flags
var (
	configPath string
	verbose    bool
	username   string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clinicsync",
		Short: "Offline-first clinic data sync",
		Long: `clinicsync keeps the clinic's local database in step with the hosted backend.

Every record is written locally first. Full syncs reconcile each table by
updated_at (newest wins), the daemon repeats them on a timer and applies
realtime changes as they arrive, and chat messages go out immediately.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				utils.Warnf("failed to load .env: %v", err)
			}
			if configPath != "" {
				config.SetCustomConfigPath(configPath)
			}
			utils.SetVerboseMode(verbose)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file or directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&username, "user", "u", "", "Act as this clinic user")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newDaemonCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newCredentialsCmd())
	rootCmd.AddCommand(newInitRemoteCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newBackgroundSyncCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
