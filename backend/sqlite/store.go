package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"clinicsync/backend"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store is the embedded local datastore. It keeps one row per record in
// each synced table plus the sync checkpoints.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database and applies the schema
func Open(customPath string) (*Store, error) {
	dbPath, err := GetDatabasePath(customPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %w", err)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: dbPath}
	if err := store.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// GetDatabasePath returns the path to the SQLite database file
// Priority: customPath > $XDG_DATA_HOME/clinicsync/clinic.db > ~/.local/share/clinicsync/clinic.db
func GetDatabasePath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}

	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, "clinicsync", "clinic.db"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "clinicsync", "clinic.db"), nil
}

// initializeSchema creates all tables, indexes, and sets pragmas
func (s *Store) initializeSchema() error {
	for _, pragma := range PragmaStatements() {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %q: %w", pragma, err)
		}
	}

	for _, schema := range AllTableSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, index := range AllIndexes() {
		if _, err := s.db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)",
		SchemaVersion,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// SchemaVersion returns the current schema version from the database
func (s *Store) SchemaVersion() (int, error) {
	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Path returns the filesystem path to the database file
func (s *Store) Path() string {
	return s.path
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreError describes a failed keyed operation on the local store
type StoreError struct {
	Op       string
	Table    string
	RecordID string
	Err      error
}

func (e *StoreError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Table, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Exec runs a statement that returns no rows and reports how many rows changed
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// QueryAll runs a query and returns every result row
func (s *Store) QueryAll(ctx context.Context, query string, args ...any) ([]backend.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []backend.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(backend.Row, len(columns))
		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return result, nil
}

// QueryOne runs a query and returns its first row, or nil when there is none
func (s *Store) QueryOne(ctx context.Context, query string, args ...any) (backend.Row, error) {
	rows, err := s.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// SelectAll returns every row of a synced table
func (s *Store) SelectAll(ctx context.Context, table string) ([]backend.Row, error) {
	t, err := backend.LookupTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.QueryAll(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(t.Columns, ", "), t.Name))
	if err != nil {
		return nil, &StoreError{Op: "select", Table: table, Err: err}
	}
	return rows, nil
}

// Get returns one row by id, or nil when it does not exist
func (s *Store) Get(ctx context.Context, table string, id string) (backend.Row, error) {
	t, err := backend.LookupTable(table)
	if err != nil {
		return nil, err
	}
	return s.QueryOne(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(t.Columns, ", "), t.Name), id)
}

// Upsert inserts the row or overwrites the columns it carries.
// Keys that are not columns of the table are ignored.
func (s *Store) Upsert(ctx context.Context, table string, row backend.Row) error {
	t, err := backend.LookupTable(table)
	if err != nil {
		return err
	}
	if row.ID() == "" {
		return &StoreError{Op: "upsert", Table: table, Err: errors.New("row has no id")}
	}

	var columns, placeholders, updates []string
	var args []any
	for _, c := range t.Columns {
		v, ok := row[c]
		if !ok {
			continue
		}
		columns = append(columns, c)
		placeholders = append(placeholders, "?")
		args = append(args, v)
		if c != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if len(updates) > 0 {
		query += " ON CONFLICT(id) DO UPDATE SET " + strings.Join(updates, ", ")
	} else {
		query += " ON CONFLICT(id) DO NOTHING"
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &StoreError{Op: "upsert", Table: table, RecordID: row.ID(), Err: err}
	}
	return nil
}

// Delete removes a row by id. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, table string, id string) error {
	t, err := backend.LookupTable(table)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.Name), id); err != nil {
		return &StoreError{Op: "delete", Table: table, RecordID: id, Err: err}
	}
	return nil
}

// Tombstone deletes a row and records the deletion in sync_metadata under
// the row's id, so the next sync removes the remote copy instead of
// downloading it again.
func (s *Store) Tombstone(ctx context.Context, table string, id string, at time.Time) error {
	t, err := backend.LookupTable(table)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "tombstone", Table: table, RecordID: id, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.Name), id); err != nil {
		return &StoreError{Op: "tombstone", Table: table, RecordID: id, Err: err}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_metadata (id, table_name, record_id, last_synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(table_name, record_id) DO UPDATE SET last_synced_at = excluded.last_synced_at`,
		backend.NewID(), table, id, backend.FormatStamp(at),
	)
	if err != nil {
		return &StoreError{Op: "tombstone", Table: table, RecordID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "tombstone", Table: table, RecordID: id, Err: err}
	}
	return nil
}

// Tombstones returns the deletions of a table not yet pushed, by record id
func (s *Store) Tombstones(ctx context.Context, table string) (map[string]time.Time, error) {
	rows, err := s.QueryAll(ctx,
		"SELECT record_id, last_synced_at FROM sync_metadata WHERE table_name = ? AND record_id != 'all'",
		table,
	)
	if err != nil {
		return nil, &StoreError{Op: "tombstones", Table: table, Err: err}
	}
	result := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		t, _ := backend.ParseStamp(r.String("last_synced_at"))
		result[r.String("record_id")] = t
	}
	return result, nil
}

// ClearTombstone forgets a recorded deletion
func (s *Store) ClearTombstone(ctx context.Context, table string, id string) error {
	if id == "all" {
		return &StoreError{Op: "clear tombstone", Table: table, RecordID: id, Err: errors.New("not a record id")}
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_metadata WHERE table_name = ? AND record_id = ?", table, id)
	if err != nil {
		return &StoreError{Op: "clear tombstone", Table: table, RecordID: id, Err: err}
	}
	return nil
}

// SetCheckpoint records the time a table last finished a sync pass
func (s *Store) SetCheckpoint(ctx context.Context, table string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (id, table_name, record_id, last_synced_at)
		VALUES (?, ?, 'all', ?)
		ON CONFLICT(table_name, record_id) DO UPDATE SET last_synced_at = excluded.last_synced_at`,
		backend.NewID(), table, backend.FormatStamp(at),
	)
	if err != nil {
		return fmt.Errorf("failed to record checkpoint for %s: %w", table, err)
	}
	return nil
}

// Checkpoint returns when a table last finished a sync pass.
// The zero time means the table has never been synced.
func (s *Store) Checkpoint(ctx context.Context, table string) (time.Time, error) {
	var stamp string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_synced_at FROM sync_metadata WHERE table_name = ? AND record_id = 'all'",
		table,
	).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read checkpoint for %s: %w", table, err)
	}
	t, _ := backend.ParseStamp(stamp)
	return t, nil
}

// Checkpoints returns every recorded whole-table checkpoint
func (s *Store) Checkpoints(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.QueryAll(ctx, "SELECT table_name, last_synced_at FROM sync_metadata WHERE record_id = 'all'")
	if err != nil {
		return nil, err
	}
	result := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		t, _ := backend.ParseStamp(r.String("last_synced_at"))
		result[r.String("table_name")] = t
	}
	return result, nil
}

// Stats holds statistics about the database
type Stats struct {
	RowCounts    map[string]int
	DatabaseSize int64 // in bytes
}

// GetStats returns row counts per synced table and the file size
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{RowCounts: make(map[string]int)}
	for _, table := range backend.SyncOrder {
		var n int
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return stats, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats.RowCounts[table] = n
	}

	fileInfo, err := os.Stat(s.path)
	if err != nil {
		return stats, fmt.Errorf("failed to stat database file: %w", err)
	}
	stats.DatabaseSize = fileInfo.Size()
	return stats, nil
}

// String returns a human-readable representation of database statistics
func (s Stats) String() string {
	tables := make([]string, 0, len(s.RowCounts))
	for t := range s.RowCounts {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	parts := make([]string, 0, len(tables)+1)
	for _, t := range tables {
		parts = append(parts, fmt.Sprintf("%s: %d", t, s.RowCounts[t]))
	}
	parts = append(parts, fmt.Sprintf("Size: %.2f MB", float64(s.DatabaseSize)/(1024*1024)))
	return strings.Join(parts, " | ")
}

var _ backend.LocalStore = (*Store)(nil)
