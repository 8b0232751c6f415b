package sync

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"clinicsync/backend"
	"clinicsync/backend/sqlite"
	"clinicsync/internal/config"
	"clinicsync/internal/credentials"
	"clinicsync/internal/utils"
)

// BackgroundCommand is the hidden CLI command the detached process runs
const BackgroundCommand = "_internal_background_sync"

// BackgroundLogName is the detached sync's log file, kept next to the database
const BackgroundLogName = "background-sync.log"

// backgroundTimeout bounds one detached pass
var backgroundTimeout = 2 * time.Minute

// SpawnBackgroundSync spawns a detached process running one full sync.
// This allows the CLI to exit immediately while the pass continues.
func SpawnBackgroundSync(configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return err
	}

	args := []string{BackgroundCommand}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(executable, args...)

	// Detach from parent process
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return err
	}
	// The child is not waited on; release its resources now
	return cmd.Process.Release()
}

// OpenRemote builds the configured remote store with its access key resolved.
// No remote URL yields (nil, nil): the caller runs local-only.
func OpenRemote(cfg *config.Config) (backend.RemoteStore, error) {
	if cfg.Remote.URL == "" {
		return nil, nil
	}

	var key string
	creds, err := credentials.NewResolver().Resolve(cfg.RemoteHost(), cfg.Remote.AccessKey)
	switch {
	case err == nil:
		key = creds.AccessKey
		utils.Debugf("[Remote] using access key from %s", creds.Source)
	case cfg.Remote.Type == "postgres":
		// the password may live in the connection URL itself
	default:
		return nil, err
	}
	return backend.NewRemote(cfg.RemoteBackendConfig(key))
}

// BackgroundLogPath returns where the detached pass logs for cfg
func BackgroundLogPath(cfg *config.Config) (string, error) {
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return "", err
	}
	dbPath, err = sqlite.GetDatabasePath(dbPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(dbPath), BackgroundLogName), nil
}

// RunBackgroundSyncInProcess runs one full sync pass in the current process.
// It is what the detached process executes; tests call it directly.
// Failures are logged to the background log, not returned, except when the
// local store cannot be opened.
func RunBackgroundSyncInProcess(ctx context.Context, cfg *config.Config) (SyncReport, error) {
	logf := func(string, ...any) {}
	if logPath, err := BackgroundLogPath(cfg); err == nil {
		if bgLogger, err := utils.NewBackgroundLogger(logPath); err == nil {
			defer bgLogger.Close()
			logf = bgLogger.Printf
		}
	}
	logf("Started background sync at %s (PID: %d)", time.Now().Format(time.RFC3339), os.Getpid())

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return SyncReport{}, err
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		logf("Failed to open local store: %v", err)
		return SyncReport{}, fmt.Errorf("failed to open local store: %w", err)
	}
	defer store.Close()

	remote, err := OpenRemote(cfg)
	if err != nil {
		// no remote: the pass reports offline below
		logf("Failed to open remote: %v", err)
		remote = nil
	}
	if remote != nil {
		defer remote.Close()
	}

	coordinator, err := NewCoordinator(store, remote)
	if err != nil {
		return SyncReport{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, backgroundTimeout)
	defer cancel()

	report := coordinator.SyncAll(ctx)
	if !report.Success {
		logf("Sync skipped: %s", report.Message)
		return report, nil
	}
	up, down, conflicts := report.Totals()
	logf("Sync done in %s: %d uploaded, %d downloaded, %d conflicts", report.Duration.Round(time.Millisecond), up, down, conflicts)
	for _, res := range report.Failed() {
		logf("Table %s failed: %v", res.Table, res.Err)
	}
	return report, nil
}
