package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clinicsync/backend"
)

// Helper function to create a test store
func createTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		store.Close()
	}
	return store, cleanup
}

// TestOpen tests database creation and schema setup
func TestOpen(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()

	if _, err := os.Stat(store.Path()); os.IsNotExist(err) {
		t.Errorf("Database file was not created")
	}

	version, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion, version)
	}

	// Re-opening an existing database must not fail on the schema
	store.Close()
	again, err := Open(store.Path())
	if err != nil {
		t.Fatalf("Re-open failed: %v", err)
	}
	again.Close()
}

// TestGetDatabasePath tests path resolution
func TestGetDatabasePath(t *testing.T) {
	if p, _ := GetDatabasePath("/tmp/custom.db"); p != "/tmp/custom.db" {
		t.Errorf("custom path ignored: %s", p)
	}

	t.Setenv("XDG_DATA_HOME", "/data")
	if p, _ := GetDatabasePath(""); p != filepath.Join("/data", "clinicsync", "clinic.db") {
		t.Errorf("unexpected XDG path: %s", p)
	}
}

// TestUpsertAndGet tests inserting, overwriting and reading rows
func TestUpsertAndGet(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	row := backend.Row{
		"id":            "item-1",
		"item_name":     "Gloves",
		"quantity":      int64(10),
		"unit":          "box",
		"reorder_level": int64(2),
		"updated_at":    "2024-01-01T00:00:00Z",
		"not_a_column":  "ignored",
	}
	if err := store.Upsert(ctx, backend.TableInventory, row); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, backend.TableInventory, "item-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.String("item_name") != "Gloves" || got["quantity"] != int64(10) {
		t.Errorf("unexpected row: %v", got)
	}

	row["quantity"] = int64(4)
	row["updated_at"] = "2024-01-02T00:00:00Z"
	if err := store.Upsert(ctx, backend.TableInventory, row); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	got, _ = store.Get(ctx, backend.TableInventory, "item-1")
	if got["quantity"] != int64(4) || got.String("updated_at") != "2024-01-02T00:00:00Z" {
		t.Errorf("overwrite not applied: %v", got)
	}

	rows, err := store.SelectAll(ctx, backend.TableInventory)
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows))
	}
}

// TestUpsertPartialRow tests that columns missing from the row are kept
func TestUpsertPartialRow(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	store.Upsert(ctx, backend.TableChat, backend.Row{
		"id": "m1", "sender_id": "a", "receiver_id": "b", "message_text": "hi",
		"status": backend.StatusUnread, "updated_at": "2024-01-01T00:00:00Z",
	})
	if err := store.Upsert(ctx, backend.TableChat, backend.Row{"id": "m1", "status": backend.StatusRead}); err != nil {
		t.Fatalf("partial Upsert failed: %v", err)
	}

	got, _ := store.Get(ctx, backend.TableChat, "m1")
	if got.String("status") != backend.StatusRead || got.String("message_text") != "hi" {
		t.Errorf("unexpected row after partial upsert: %v", got)
	}
}

// TestGetMissing tests that a missing row is (nil, nil)
func TestGetMissing(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()

	got, err := store.Get(context.Background(), backend.TableUsers, "nobody")
	if err != nil || got != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", got, err)
	}
}

// TestDelete tests removing rows
func TestDelete(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	store.Upsert(ctx, backend.TableUsers, backend.Row{"id": "u1", "username": "amina"})
	if err := store.Delete(ctx, backend.TableUsers, "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := store.Get(ctx, backend.TableUsers, "u1"); got != nil {
		t.Error("row still present after Delete")
	}
	if err := store.Delete(ctx, backend.TableUsers, "u1"); err != nil {
		t.Errorf("deleting a missing row should succeed: %v", err)
	}
}

// TestUnknownTable tests that only synced tables are addressable
func TestUnknownTable(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.SelectAll(ctx, "sqlite_master; DROP TABLE users"); !errors.Is(err, backend.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
	if err := store.Upsert(ctx, "invoices", backend.Row{"id": "x"}); !errors.Is(err, backend.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
}

// TestCheckpoint tests that checkpoints are upserted per table
func TestCheckpoint(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	got, err := store.Checkpoint(ctx, backend.TableUsers)
	if err != nil || !got.IsZero() {
		t.Fatalf("expected zero checkpoint, got (%v, %v)", got, err)
	}

	first := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	if err := store.SetCheckpoint(ctx, backend.TableUsers, first); err != nil {
		t.Fatalf("SetCheckpoint failed: %v", err)
	}
	if err := store.SetCheckpoint(ctx, backend.TableUsers, second); err != nil {
		t.Fatalf("SetCheckpoint failed: %v", err)
	}

	got, _ = store.Checkpoint(ctx, backend.TableUsers)
	if !got.Equal(second) {
		t.Errorf("Checkpoint = %v, want %v", got, second)
	}

	rows, _ := store.QueryAll(ctx, "SELECT * FROM sync_metadata WHERE table_name = ?", backend.TableUsers)
	if len(rows) != 1 {
		t.Errorf("expected one sync_metadata row, got %d", len(rows))
	}

	all, err := store.Checkpoints(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("Checkpoints = (%v, %v)", all, err)
	}
}

// TestTombstone tests that a tracked delete removes the row and is listed
// apart from the table checkpoint until cleared
func TestTombstone(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	store.Upsert(ctx, backend.TableChat, backend.Row{"id": "m1", "sender_id": "u1", "receiver_id": "u2", "message_text": "hi"})
	store.SetCheckpoint(ctx, backend.TableChat, time.Now())

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	if err := store.Tombstone(ctx, backend.TableChat, "m1", at); err != nil {
		t.Fatalf("Tombstone failed: %v", err)
	}
	if row, _ := store.Get(ctx, backend.TableChat, "m1"); row != nil {
		t.Errorf("row still present: %v", row)
	}

	tombs, err := store.Tombstones(ctx, backend.TableChat)
	if err != nil {
		t.Fatalf("Tombstones failed: %v", err)
	}
	if len(tombs) != 1 || !tombs["m1"].Equal(at) {
		t.Errorf("Tombstones = %v", tombs)
	}
	if cps, _ := store.Checkpoints(ctx); len(cps) != 1 {
		t.Errorf("tombstone leaked into checkpoints: %v", cps)
	}

	if err := store.ClearTombstone(ctx, backend.TableChat, "m1"); err != nil {
		t.Fatalf("ClearTombstone failed: %v", err)
	}
	if tombs, _ := store.Tombstones(ctx, backend.TableChat); len(tombs) != 0 {
		t.Errorf("tombstone not cleared: %v", tombs)
	}
	if cp, _ := store.Checkpoint(ctx, backend.TableChat); cp.IsZero() {
		t.Error("clearing a tombstone removed the checkpoint")
	}
	if err := store.ClearTombstone(ctx, backend.TableChat, "all"); err == nil {
		t.Error("expected an error clearing the checkpoint row")
	}
}

// TestGetStats tests row counting
func TestGetStats(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	store.Upsert(ctx, backend.TablePatients, backend.Row{"id": "p1", "full_name": "A"})
	store.Upsert(ctx, backend.TablePatients, backend.Row{"id": "p2", "full_name": "B"})

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.RowCounts[backend.TablePatients] != 2 || stats.RowCounts[backend.TableUsers] != 0 {
		t.Errorf("unexpected counts: %v", stats.RowCounts)
	}
}

// TestExecAndQueryOne tests the raw statement helpers
func TestExecAndQueryOne(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()
	ctx := context.Background()

	store.Upsert(ctx, backend.TableSettings, backend.Row{"id": "s1", "key": "clinic_name", "value": "Old"})
	n, err := store.Exec(ctx, "UPDATE settings SET value = ? WHERE key = ?", "New", "clinic_name")
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 changed row, got %d", n)
	}

	if _, err := store.Exec(ctx, "UPDATE no_such_table SET x = 1"); err == nil {
		t.Error("expected Exec to report a failed statement")
	}

	row, err := store.QueryOne(ctx, "SELECT value FROM settings WHERE key = ?", "clinic_name")
	if err != nil || row.String("value") != "New" {
		t.Errorf("QueryOne = (%v, %v)", row, err)
	}
	row, err = store.QueryOne(ctx, "SELECT value FROM settings WHERE key = ?", "missing")
	if err != nil || row != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", row, err)
	}
}

// TestStoreError tests that keyed failures carry table and id
func TestStoreError(t *testing.T) {
	store, cleanup := createTestStore(t)
	defer cleanup()

	err := store.Upsert(context.Background(), backend.TableUsers, backend.Row{"username": "no-id"})
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StoreError, got %v", err)
	}
	if se.Op != "upsert" || se.Table != backend.TableUsers {
		t.Errorf("unexpected StoreError: %+v", se)
	}
}
