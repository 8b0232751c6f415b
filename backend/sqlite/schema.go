package sqlite

// Schema version for migration management
const SchemaVersion = 1

// SQL statements for database schema creation.
// Reference columns are plain TEXT: rows arrive from the remote in any
// order and legacy rows may point at ids that no longer exist, so
// references are not enforced here.

// UsersTableSQL creates the staff accounts table
const UsersTableSQL = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    full_name TEXT,
    role TEXT,
    password_hash TEXT,
    created_at TEXT,
    updated_at TEXT
);
`

// SettingsTableSQL creates the shared key/value settings table
const SettingsTableSQL = `
CREATE TABLE IF NOT EXISTS settings (
    id TEXT PRIMARY KEY,
    key TEXT NOT NULL,
    value TEXT,
    updated_at TEXT
);
`

// TestsTableSQL creates the lab test catalogue
const TestsTableSQL = `
CREATE TABLE IF NOT EXISTS tests (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT,
    price REAL DEFAULT 0,
    normal_range TEXT,
    unit TEXT,
    created_at TEXT,
    updated_at TEXT
);
`

// InventoryTableSQL creates the stock table
const InventoryTableSQL = `
CREATE TABLE IF NOT EXISTS inventory (
    id TEXT PRIMARY KEY,
    item_name TEXT NOT NULL,
    quantity INTEGER DEFAULT 0,
    unit TEXT,
    reorder_level INTEGER DEFAULT 0,
    expiry_date TEXT,
    created_at TEXT,
    updated_at TEXT
);
`

// PatientsTableSQL creates the patient registry
const PatientsTableSQL = `
CREATE TABLE IF NOT EXISTS patients (
    id TEXT PRIMARY KEY,
    full_name TEXT NOT NULL,
    date_of_birth TEXT,
    gender TEXT,
    phone TEXT,
    address TEXT,
    created_by TEXT,
    created_at TEXT,
    updated_at TEXT
);
`

// ReportsTableSQL creates the test results table
const ReportsTableSQL = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    patient_id TEXT,
    test_id TEXT,
    doctor_id TEXT,
    result TEXT,
    status TEXT,
    notes TEXT,
    created_at TEXT,
    updated_at TEXT
);
`

// ChatTableSQL creates the direct message table
const ChatTableSQL = `
CREATE TABLE IF NOT EXISTS chat (
    id TEXT PRIMARY KEY,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    message_text TEXT,
    attachment TEXT,
    status TEXT DEFAULT 'unread',
    reply_to_id TEXT,
    created_at TEXT,
    updated_at TEXT
);
`

// ActivityLogsTableSQL creates the audit trail table
const ActivityLogsTableSQL = `
CREATE TABLE IF NOT EXISTS activity_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    action TEXT NOT NULL,
    details TEXT,
    created_at TEXT,
    updated_at TEXT
);
`

// SyncMetadataTableSQL creates the per-table sync checkpoint table.
// Whole-table checkpoints use record_id 'all'.
const SyncMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS sync_metadata (
    id TEXT PRIMARY KEY,
    table_name TEXT NOT NULL,
    record_id TEXT NOT NULL DEFAULT 'all',
    last_synced_at TEXT NOT NULL,

    UNIQUE(table_name, record_id)
);
`

// SchemaVersionTableSQL creates the schema version table for migration tracking
const SchemaVersionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// Index creation statements for the lookups the app and chat path make

const PatientsIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_patients_full_name ON patients(full_name);
`

const ReportsIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_reports_patient_id ON reports(patient_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
`

const ChatIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_chat_sender_id ON chat(sender_id);
CREATE INDEX IF NOT EXISTS idx_chat_receiver_id ON chat(receiver_id);
CREATE INDEX IF NOT EXISTS idx_chat_created_at ON chat(created_at);
`

const ActivityLogsIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_activity_logs_user_id ON activity_logs(user_id);
`

// AllTableSchemas returns all table creation statements in order
func AllTableSchemas() []string {
	return []string{
		SchemaVersionTableSQL,
		UsersTableSQL,
		SettingsTableSQL,
		TestsTableSQL,
		InventoryTableSQL,
		PatientsTableSQL,
		ReportsTableSQL,
		ChatTableSQL,
		ActivityLogsTableSQL,
		SyncMetadataTableSQL,
	}
}

// AllIndexes returns all index creation statements
func AllIndexes() []string {
	return []string{
		PatientsIndexesSQL,
		ReportsIndexesSQL,
		ChatIndexesSQL,
		ActivityLogsIndexesSQL,
	}
}

// PragmaStatements returns pragma statements to execute on database connection
func PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous = NORMAL", // Balance between safety and performance
		"PRAGMA busy_timeout = 5000",
	}
}
