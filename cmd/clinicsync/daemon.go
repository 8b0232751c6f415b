package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/dashboard"
	"clinicsync/internal/events"
	"clinicsync/internal/realtime"
	engine "clinicsync/internal/sync"
	"clinicsync/internal/utils"

	"github.com/spf13/cobra"
)

// newDaemonCmd creates the long-running sync daemon command
func newDaemonCmd() *cobra.Command {
	var noRealtime bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run auto-sync and realtime updates until interrupted",
		Long: `Run the sync engine in the foreground:
- a full sync every sync.interval_minutes (default 5)
- realtime remote changes applied as they arrive (sync.realtime)
- the websocket event dashboard when dashboard.enabled is set

The config file is watched: a changed interval takes effect immediately.
Stop with Ctrl+C or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			cfg := app.config

			logFile, err := cfg.LogFile()
			if err != nil {
				return err
			}
			if logFile != "" {
				closer, err := utils.SetFileOutput(utils.FileOutput{
					Path:       logFile,
					MaxSizeMB:  cfg.Logging.MaxSizeMB,
					MaxBackups: cfg.Logging.MaxBackups,
					Tee:        true,
				})
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer closer.Close()
			}

			bus := events.NewBus()
			defer bus.Close()

			coordinator, err := app.NewCoordinator()
			if err != nil {
				return err
			}
			coordinator.SetLogger(log.New(log.Writer(), "[AutoSync] ", log.LstdFlags))
			coordinator.OnReport(func(r engine.SyncReport) {
				bus.Publish(events.Event{Name: events.SyncComplete, Payload: r})
			})

			if cfg.Dashboard.Enabled {
				server := dashboard.NewServer(dashboard.Config{Port: cfg.Dashboard.Port})
				if err := server.Start(); err != nil {
					return fmt.Errorf("failed to start dashboard: %w", err)
				}
				server.Attach(bus)
				defer server.Stop()
				utils.Infof("Dashboard listening on ws://%s/ws", server.Addr())
			}

			if cfg.Sync.Realtime && !noRealtime {
				bridge := realtime.New(app.store, app.remote, bus)
				bridge.Start(ctx)
				defer bridge.Stop()
			}

			interval := cfg.Interval()
			if cfg.Sync.AutoSync {
				// catch up right away instead of waiting a full interval
				coordinator.TriggerSync()
				coordinator.StartAutoSync(interval)
			}
			defer coordinator.Shutdown(30 * time.Second)

			var changes <-chan *config.Config
			var watchErrs <-chan error
			if path, err := config.GetConfigPath(); err == nil {
				if watcher, err := config.Watch(path); err == nil {
					defer watcher.Stop()
					changes = watcher.Changes()
					watchErrs = watcher.Errors()
				} else {
					utils.Warnf("config changes will not be picked up: %v", err)
				}
			}

			utils.Infof("Daemon started (auto sync %v every %s, remote online: %v)",
				cfg.Sync.AutoSync, interval, coordinator.Prober().IsOnline(ctx))

			for {
				select {
				case <-ctx.Done():
					utils.Infof("Shutting down")
					return nil
				case next, ok := <-changes:
					if !ok {
						changes = nil
						continue
					}
					interval = applyConfigChange(coordinator, next, interval)
				case err, ok := <-watchErrs:
					if !ok {
						watchErrs = nil
						continue
					}
					utils.Warnf("config reload failed, keeping current settings: %v", err)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&noRealtime, "no-realtime", false, "Disable the realtime bridge")
	return cmd
}

// applyConfigChange re-arms the auto-sync trigger for an edited config and
// returns the interval now in force. Remote and database changes need a restart.
func applyConfigChange(c *engine.Coordinator, next *config.Config, current time.Duration) time.Duration {
	utils.SetVerboseMode(next.Logging.Verbose || verbose)

	if !next.Sync.AutoSync {
		c.StopAutoSync()
		utils.Infof("Config reloaded: auto sync disabled")
		return current
	}
	interval := next.Interval()
	c.StartAutoSync(interval)
	if interval != current {
		utils.Infof("Config reloaded: auto sync every %s", interval)
	}
	return interval
}
