package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"clinicsync/backend"
	"clinicsync/internal/cli"
	"clinicsync/internal/config"
	engine "clinicsync/internal/sync"
	"clinicsync/internal/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// tableView is a TableResult with its error flattened for JSON/YAML output
type tableView struct {
	Table      string `json:"table" yaml:"table"`
	Uploaded   int    `json:"uploaded" yaml:"uploaded"`
	Downloaded int    `json:"downloaded" yaml:"downloaded"`
	Conflicts  int    `json:"conflicts" yaml:"conflicts"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

type reportView struct {
	Success  bool        `json:"success" yaml:"success"`
	Message  string      `json:"message,omitempty" yaml:"message,omitempty"`
	Duration string      `json:"duration,omitempty" yaml:"duration,omitempty"`
	Tables   []tableView `json:"tables,omitempty" yaml:"tables,omitempty"`
}

func newReportView(r engine.SyncReport) reportView {
	v := reportView{Success: r.Success, Message: r.Message}
	if r.Success {
		v.Duration = r.Duration.Round(time.Millisecond).String()
	}
	for _, res := range r.Results {
		tv := tableView{
			Table:      res.Table,
			Uploaded:   res.Uploaded,
			Downloaded: res.Downloaded,
			Conflicts:  res.Conflicts,
		}
		if res.Err != nil {
			tv.Error = res.Err.Error()
		}
		v.Tables = append(v.Tables, tv)
	}
	return v
}

// printReport writes a sync report in the requested format
func printReport(w io.Writer, format string, r engine.SyncReport) error {
	if format != utils.FormatText {
		return utils.WriteFormatted(w, format, newReportView(r))
	}

	if !r.Success {
		if r.Message == engine.MsgOffline {
			fmt.Fprintln(w, "⚠ Offline: changes stay local and sync when the backend is reachable")
			return nil
		}
		fmt.Fprintf(w, "Sync skipped: %s\n", r.Message)
		return nil
	}

	fmt.Fprintln(w, headerStyle.Render("=== Sync Results ==="))
	for _, res := range r.Results {
		line := fmt.Sprintf("  %-14s ↑%-4d ↓%-4d conflicts %d", res.Table, res.Uploaded, res.Downloaded, res.Conflicts)
		if res.Err != nil {
			fmt.Fprintln(w, failStyle.Render(line+"  ✗ "+res.Err.Error()))
			continue
		}
		fmt.Fprintln(w, line)
	}
	up, down, conflicts := r.Totals()
	summary := fmt.Sprintf("Done in %s: %d uploaded, %d downloaded, %d conflicts",
		r.Duration.Round(time.Millisecond), up, down, conflicts)
	if failed := r.Failed(); len(failed) > 0 {
		fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("%s (%d tables failed)", summary, len(failed))))
		return nil
	}
	fmt.Fprintln(w, okStyle.Render("✓ "+summary))
	return nil
}

// newSyncCmd creates the sync command with its subcommands
func newSyncCmd() *cobra.Command {
	var output string
	var background bool

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the local database with the remote backend",
		Long: `Reconcile every table with the remote backend, in dependency order.

For each record the copy with the newer updated_at wins; records that exist
on one side only are copied to the other.

Examples:
  clinicsync sync                  # Run one full sync
  clinicsync sync --output json    # Machine-readable results
  clinicsync sync --background     # Sync in a detached process and return
  clinicsync sync status           # Show connectivity and checkpoints`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !utils.ValidFormat(output) {
				return fmt.Errorf("invalid output format %q (use text, json or yaml)", output)
			}

			if background {
				path, err := config.GetConfigPath()
				if err != nil {
					return err
				}
				if err := engine.SpawnBackgroundSync(path); err != nil {
					return fmt.Errorf("failed to start background sync: %w", err)
				}
				fmt.Println("Background sync started")
				return nil
			}

			ctx := cmd.Context()
			app, err := NewApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.config.Remote.URL == "" {
				return utils.ErrRemoteNotConfigured()
			}

			coordinator, err := app.NewCoordinator()
			if err != nil {
				return err
			}
			defer coordinator.Shutdown(5 * time.Second)

			report := coordinator.SyncAll(ctx)
			return printReport(os.Stdout, output, report)
		},
	}

	syncCmd.Flags().StringVarP(&output, "output", "o", utils.FormatText, "Output format: text, json or yaml")
	syncCmd.Flags().BoolVar(&background, "background", false, "Run the sync in a detached process")

	syncCmd.AddCommand(newSyncStatusCmd())

	return syncCmd
}

// statusView is what 'sync status' prints
type statusView struct {
	Remote      string            `json:"remote" yaml:"remote"`
	Online      bool              `json:"online" yaml:"online"`
	Syncing     bool              `json:"syncing" yaml:"syncing"`
	Database    string            `json:"database" yaml:"database"`
	Rows        map[string]int    `json:"rows" yaml:"rows"`
	Checkpoints map[string]string `json:"checkpoints" yaml:"checkpoints"`
}

// newSyncStatusCmd creates the 'sync status' command
func newSyncStatusCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		Long: `Display the current synchronization status:
- Remote backend and whether it is reachable
- Whether a sync is running in this process
- Row counts per table
- Last sync checkpoint per table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !utils.ValidFormat(output) {
				return fmt.Errorf("invalid output format %q (use text, json or yaml)", output)
			}

			ctx := cmd.Context()
			app, err := NewApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			view, err := collectStatus(ctx, app)
			if err != nil {
				return err
			}
			if output != utils.FormatText {
				return utils.WriteFormatted(os.Stdout, output, view)
			}
			printStatus(os.Stdout, view)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", utils.FormatText, "Output format: text, json or yaml")
	return cmd
}

func collectStatus(ctx context.Context, app *App) (statusView, error) {
	coordinator, err := app.NewCoordinator()
	if err != nil {
		return statusView{}, err
	}
	defer coordinator.Shutdown(time.Second)

	st, err := coordinator.Status(ctx)
	if err != nil {
		return statusView{}, err
	}
	stats, err := app.store.GetStats(ctx)
	if err != nil {
		return statusView{}, err
	}

	view := statusView{
		Remote:      "none",
		Online:      coordinator.Prober().IsOnline(ctx),
		Syncing:     st.Syncing,
		Database:    app.store.Path(),
		Rows:        stats.RowCounts,
		Checkpoints: make(map[string]string, len(st.Checkpoints)),
	}
	if app.config.Remote.URL != "" {
		view.Remote = fmt.Sprintf("%s (%s)", app.config.RemoteHost(), app.config.Remote.Type)
	}
	for table, at := range st.Checkpoints {
		view.Checkpoints[table] = backend.FormatStamp(at)
	}
	return view, nil
}

func printStatus(w io.Writer, v statusView) {
	connection := failStyle.Render("Offline")
	if v.Online {
		connection = okStyle.Render("Online")
	}
	lines := []string{
		"Connection: " + connection,
		"Remote: " + v.Remote,
		"Database: " + v.Database,
	}
	if v.Syncing {
		lines = append(lines, "A sync is in progress")
	}

	tables := make([]string, 0, len(v.Rows))
	for t := range v.Rows {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return syncIndex(tables[i]) < syncIndex(tables[j]) })

	lines = append(lines, "")
	for _, t := range tables {
		last := v.Checkpoints[t]
		if last == "" {
			last = "never"
		}
		lines = append(lines, fmt.Sprintf("%-14s %6d rows   last sync %s", t, v.Rows[t], last))
	}
	cli.WriteBox(w, "Sync Status", lines, cli.BoxWidth(cli.GetTerminalWidth()))
}

func syncIndex(table string) int {
	for i, t := range backend.SyncOrder {
		if t == table {
			return i
		}
	}
	return len(backend.SyncOrder)
}
