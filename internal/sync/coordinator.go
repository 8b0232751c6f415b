package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"clinicsync/backend"
	backendsync "clinicsync/backend/sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Messages returned in a SyncReport when no pass ran
const (
	MsgAlreadyInProgress = "already in progress"
	MsgOffline           = "offline"
)

// DefaultInterval is the auto-sync period when none is configured
const DefaultInterval = 5 * time.Minute

var tracer = otel.Tracer("clinicsync/internal/sync")

// Store is the local store as the coordinator needs it
type Store interface {
	backendsync.LocalStore
	Checkpoints(ctx context.Context) (map[string]time.Time, error)
}

// SyncReport is the outcome of one SyncAll call
type SyncReport struct {
	Success   bool                      `json:"success" yaml:"success"`
	Message   string                    `json:"message,omitempty" yaml:"message,omitempty"`
	Results   []backendsync.TableResult `json:"results,omitempty" yaml:"results,omitempty"`
	StartedAt time.Time                 `json:"started_at" yaml:"started_at"`
	Duration  time.Duration             `json:"duration" yaml:"duration"`
}

// Failed returns the tables whose reconciliation reported an error
func (r SyncReport) Failed() []backendsync.TableResult {
	var failed []backendsync.TableResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Totals sums the per-table counts
func (r SyncReport) Totals() (uploaded, downloaded, conflicts int) {
	for _, res := range r.Results {
		uploaded += res.Uploaded
		downloaded += res.Downloaded
		conflicts += res.Conflicts
	}
	return
}

// Status is a point-in-time view of the coordinator
type Status struct {
	Syncing     bool                 `json:"syncing" yaml:"syncing"`
	AutoSync    bool                 `json:"auto_sync" yaml:"auto_sync"`
	Interval    time.Duration        `json:"interval,omitempty" yaml:"interval,omitempty"`
	LastReport  *SyncReport          `json:"last_report,omitempty" yaml:"last_report,omitempty"`
	Checkpoints map[string]time.Time `json:"checkpoints" yaml:"checkpoints"`
}

// Coordinator drives reconciliation across every table in dependency order,
// guarantees at most one pass at a time and runs the periodic trigger
type Coordinator struct {
	local      Store
	reconciler *backendsync.Reconciler
	prober     *Prober
	tables     []string

	// Goroutine management
	wg sync.WaitGroup

	// Sync state tracking (prevent overlapping passes)
	syncing  atomic.Bool
	shutdown atomic.Bool

	mu       sync.Mutex // protects the fields below
	stopAuto chan struct{}
	interval time.Duration
	last     *SyncReport
	onReport []func(SyncReport)

	// Logging (silent errors)
	logger *log.Logger
}

// NewCoordinator creates a coordinator. remote may be nil: every pass then
// reports offline and nothing is touched.
func NewCoordinator(local Store, remote backend.RemoteStore) (*Coordinator, error) {
	if local == nil {
		return nil, fmt.Errorf("local store is required")
	}

	return &Coordinator{
		local:      local,
		reconciler: backendsync.NewReconciler(local, remote),
		prober:     NewProber(remote),
		tables:     backend.SyncOrder,
		logger:     log.New(os.Stderr, "[AutoSync] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the auto-sync logger (the daemon points it at its log file)
func (c *Coordinator) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// OnReport registers a callback run after every pass that ran
func (c *Coordinator) OnReport(fn func(SyncReport)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReport = append(c.onReport, fn)
}

// Prober returns the connectivity prober the coordinator uses
func (c *Coordinator) Prober() *Prober {
	return c.prober
}

// SyncAll reconciles every table in order. A call made while another pass
// is running returns MsgAlreadyInProgress without touching any table; an
// offline remote returns MsgOffline. Per-table failures land in their
// result slot and do not stop later tables.
func (c *Coordinator) SyncAll(ctx context.Context) SyncReport {
	if !c.syncing.CompareAndSwap(false, true) {
		return SyncReport{Success: false, Message: MsgAlreadyInProgress}
	}
	defer c.syncing.Store(false)

	ctx, span := tracer.Start(ctx, "sync.all")
	defer span.End()

	report := SyncReport{StartedAt: time.Now()}

	if !c.prober.IsOnline(ctx) {
		report.Message = MsgOffline
		span.SetAttributes(attribute.Bool("online", false))
		return report
	}

	for _, table := range c.tables {
		result := c.reconciler.ReconcileTable(ctx, table)
		if result.Err != nil {
			c.logger.Printf("Sync of %s failed: %v", table, result.Err)
		}
		report.Results = append(report.Results, result)
	}

	report.Success = true
	report.Duration = time.Since(report.StartedAt)

	up, down, conflicts := report.Totals()
	span.SetAttributes(
		attribute.Bool("online", true),
		attribute.Int("uploaded", up),
		attribute.Int("downloaded", down),
		attribute.Int("conflicts", conflicts),
		attribute.Int("failed_tables", len(report.Failed())),
	)

	c.mu.Lock()
	c.last = &report
	callbacks := append([]func(SyncReport){}, c.onReport...)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(report)
	}
	return report
}

// TriggerSync starts one pass in the background, like a tick of the
// trigger. The pass is not tied to the caller's context and Shutdown waits
// for it.
func (c *Coordinator) TriggerSync() {
	if c.shutdown.Load() {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runScheduled()
	}()
}

// IsSyncing reports whether a pass is running
func (c *Coordinator) IsSyncing() bool {
	return c.syncing.Load()
}

// StartAutoSync arms a periodic trigger that runs SyncAll when idle.
// Calling it again replaces the previous trigger.
func (c *Coordinator) StartAutoSync(interval time.Duration) {
	if c.shutdown.Load() {
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopAuto != nil {
		close(c.stopAuto)
	}
	stop := make(chan struct{})
	c.stopAuto = stop
	c.interval = interval

	c.wg.Add(1)
	go c.autoSyncLoop(interval, stop)
}

// StopAutoSync disarms the periodic trigger. It never cancels a pass in
// flight and is safe to call when nothing is armed.
func (c *Coordinator) StopAutoSync() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopAuto != nil {
		close(c.stopAuto)
		c.stopAuto = nil
		c.interval = 0
	}
}

func (c *Coordinator) autoSyncLoop(interval time.Duration, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.runScheduled()
		}
	}
}

// runScheduled performs one best-effort pass for the trigger
func (c *Coordinator) runScheduled() {
	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("Panic in auto sync: %v", r)
		}
	}()

	if c.syncing.Load() {
		return
	}

	// A pass started by the trigger runs to completion even if the trigger is stopped
	report := c.SyncAll(context.Background())
	switch {
	case report.Message == MsgOffline:
		c.logger.Printf("Skipping auto sync: offline")
	case !report.Success:
		return
	default:
		up, down, _ := report.Totals()
		if up > 0 || down > 0 {
			c.logger.Printf("Auto sync completed: %d uploaded, %d downloaded", up, down)
		}
		if failed := report.Failed(); len(failed) > 0 {
			c.logger.Printf("Auto sync finished with %d failed tables", len(failed))
		}
	}
}

// Status returns the coordinator state and per-table checkpoints
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	c.mu.Lock()
	st := Status{
		Syncing:    c.syncing.Load(),
		AutoSync:   c.stopAuto != nil,
		Interval:   c.interval,
		LastReport: c.last,
	}
	c.mu.Unlock()

	checkpoints, err := c.local.Checkpoints(ctx)
	if err != nil {
		return st, fmt.Errorf("failed to read checkpoints: %w", err)
	}
	st.Checkpoints = checkpoints
	return st, nil
}

// Shutdown stops the trigger and waits for pending work, up to timeout
func (c *Coordinator) Shutdown(timeout time.Duration) {
	c.shutdown.Store(true)
	c.StopAutoSync()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Printf("Warning: Pending syncs did not complete within %v", timeout)
	}
}
