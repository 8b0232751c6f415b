package main

import (
	"log"
	"time"

	"clinicsync/internal/config"
	engine "clinicsync/internal/sync"

	"github.com/spf13/cobra"
)

// newBackgroundSyncCmd creates a hidden command that runs sync in background
// This is spawned as a separate process to allow the main CLI to exit immediately
func newBackgroundSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:    engine.BackgroundCommand,
		Hidden: true, // Don't show in help
		Short:  "Internal command for background sync (do not call directly)",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Give the parent a moment to exit
			time.Sleep(100 * time.Millisecond)

			if _, err := engine.RunBackgroundSyncInProcess(cmd.Context(), config.GetConfig()); err != nil {
				log.Printf("[BackgroundSync] %v", err)
			}
			return nil // Silent fail
		},
	}
}
