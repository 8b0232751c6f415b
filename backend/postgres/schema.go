package postgres

// NotifyChannel is the LISTEN/NOTIFY channel the change trigger publishes on
const NotifyChannel = "clinicsync_changes"

// Remote tables mirror the local ones. Timestamps stay TEXT so the stamps
// written by clients come back byte-for-byte and compare equal.
var remoteTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		value TEXT NOT NULL DEFAULT '',
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tests (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		price NUMERIC NOT NULL DEFAULT 0,
		normal_range TEXT,
		unit TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		id TEXT PRIMARY KEY,
		item_name TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		unit TEXT NOT NULL DEFAULT '',
		reorder_level INTEGER NOT NULL DEFAULT 0,
		expiry_date TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		date_of_birth TEXT,
		gender TEXT NOT NULL DEFAULT '',
		phone TEXT,
		address TEXT,
		created_by TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		test_id TEXT NOT NULL,
		doctor_id TEXT,
		result TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		notes TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS chat (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		message_text TEXT NOT NULL DEFAULT '',
		attachment TEXT,
		status TEXT NOT NULL DEFAULT 'unread',
		reply_to_id TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS activity_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		action TEXT NOT NULL DEFAULT '',
		details TEXT,
		created_at TEXT,
		updated_at TEXT
	)`,
}

// notifyFunction publishes every committed row change as
// {"table": ..., "type": "INSERT|UPDATE|DELETE", "record": {...}}
const notifyFunction = `CREATE OR REPLACE FUNCTION clinicsync_notify() RETURNS trigger AS $$
DECLARE
	rec json;
BEGIN
	IF TG_OP = 'DELETE' THEN
		rec := row_to_json(OLD);
	ELSE
		rec := row_to_json(NEW);
	END IF;
	PERFORM pg_notify('` + NotifyChannel + `', json_build_object(
		'table', TG_TABLE_NAME,
		'type', TG_OP,
		'record', rec
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`
