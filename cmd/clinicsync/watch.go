package main

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"clinicsync/internal/events"
	"clinicsync/internal/realtime"
	engine "clinicsync/internal/sync"
	"clinicsync/internal/tui"
	"clinicsync/internal/utils"

	"github.com/spf13/cobra"
)

// newWatchCmd creates the live terminal view command
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live view of realtime changes and sync results",
		Long: `Open a terminal view that shows remote changes as the realtime bridge
applies them, chat messages, and the outcome of each sync.

Keys: s sync now, q quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			app, err := NewApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			// The view owns the terminal; log lines go to a file beside the database
			logPath := filepath.Join(filepath.Dir(app.store.Path()), "watch.log")
			closer, err := utils.SetFileOutput(utils.FileOutput{Path: logPath, MaxSizeMB: 5, MaxBackups: 1})
			if err == nil {
				defer closer.Close()
			}

			bus := events.NewBus()
			defer bus.Close()
			ch, unsubscribe := bus.Subscribe(256)
			defer unsubscribe()

			coordinator, err := app.NewCoordinator()
			if err != nil {
				return err
			}
			coordinator.SetLogger(log.New(log.Writer(), "[AutoSync] ", log.LstdFlags))
			coordinator.OnReport(func(r engine.SyncReport) {
				bus.Publish(events.Event{Name: events.SyncComplete, Payload: r})
			})
			defer coordinator.Shutdown(5 * time.Second)
			if app.config.Sync.AutoSync {
				coordinator.StartAutoSync(app.config.Interval())
			}

			bridge := realtime.New(app.store, app.remote, bus)
			bridge.Start(ctx)
			defer bridge.Stop()

			var who string
			if user, err := app.CurrentUser(); err == nil {
				who = user.Username
			}

			return tui.Run(tui.Options{
				Sync:   coordinator.SyncAll,
				Online: coordinator.Prober().IsOnline,
				Events: ch,
				User:   who,
			})
		},
	}
}
