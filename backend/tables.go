package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Synced table names
const (
	TableUsers        = "users"
	TableSettings     = "settings"
	TableTests        = "tests"
	TableInventory    = "inventory"
	TablePatients     = "patients"
	TableReports      = "reports"
	TableChat         = "chat"
	TableActivityLogs = "activity_logs"
)

// SyncOrder is the fixed order tables are reconciled in.
// Parents come before the tables that reference them; chat and
// activity_logs reference users and always go last.
var SyncOrder = []string{
	TableUsers,
	TableSettings,
	TableTests,
	TableInventory,
	TablePatients,
	TableReports,
	TableChat,
	TableActivityLogs,
}

// Table describes one synced table
type Table struct {
	Name    string
	Columns []string
	// Refs maps reference columns to the table whose ids they hold
	Refs map[string]string
	New  func() Record
}

var tables = map[string]Table{
	TableUsers: {
		Name:    TableUsers,
		Columns: []string{"id", "username", "full_name", "role", "password_hash", "created_at", "updated_at"},
		New:     func() Record { return &User{} },
	},
	TableSettings: {
		Name:    TableSettings,
		Columns: []string{"id", "key", "value", "updated_at"},
		New:     func() Record { return &Setting{} },
	},
	TableTests: {
		Name:    TableTests,
		Columns: []string{"id", "name", "category", "price", "normal_range", "unit", "created_at", "updated_at"},
		New:     func() Record { return &LabTest{} },
	},
	TableInventory: {
		Name:    TableInventory,
		Columns: []string{"id", "item_name", "quantity", "unit", "reorder_level", "expiry_date", "created_at", "updated_at"},
		New:     func() Record { return &InventoryItem{} },
	},
	TablePatients: {
		Name:    TablePatients,
		Columns: []string{"id", "full_name", "date_of_birth", "gender", "phone", "address", "created_by", "created_at", "updated_at"},
		Refs:    map[string]string{"created_by": TableUsers},
		New:     func() Record { return &Patient{} },
	},
	TableReports: {
		Name:    TableReports,
		Columns: []string{"id", "patient_id", "test_id", "doctor_id", "result", "status", "notes", "created_at", "updated_at"},
		Refs:    map[string]string{"patient_id": TablePatients, "test_id": TableTests, "doctor_id": TableUsers},
		New:     func() Record { return &Report{} },
	},
	TableChat: {
		Name:    TableChat,
		Columns: []string{"id", "sender_id", "receiver_id", "message_text", "attachment", "status", "reply_to_id", "created_at", "updated_at"},
		Refs:    map[string]string{"sender_id": TableUsers, "receiver_id": TableUsers, "reply_to_id": TableChat},
		New:     func() Record { return &ChatMessage{} },
	},
	TableActivityLogs: {
		Name:    TableActivityLogs,
		Columns: []string{"id", "user_id", "action", "details", "created_at", "updated_at"},
		Refs:    map[string]string{"user_id": TableUsers},
		New:     func() Record { return &ActivityLog{} },
	},
}

// LookupTable returns the descriptor for a synced table
func LookupTable(name string) (Table, error) {
	t, ok := tables[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

// HasColumn reports whether the table has the named column
func (t Table) HasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Decode converts a row into the table's typed record.
// Numeric id and reference values (legacy local rows) are read as strings.
// Timestamps of any other shape decode as "", which compares as oldest.
func (t Table) Decode(row Row) (Record, error) {
	clean := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		v, ok := row[c]
		if !ok {
			continue
		}
		if _, isRef := t.Refs[c]; (isRef || c == "id") && v != nil {
			v = row.String(c)
		}
		if (c == "created_at" || c == "updated_at") && v != nil {
			v = StampString(v)
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		clean[c] = v
	}

	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s row: %w", t.Name, err)
	}
	rec := t.New()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("malformed %s row %q: %w", t.Name, row.ID(), err)
	}
	if rec.RecordID() == "" {
		return nil, fmt.Errorf("malformed %s row: missing id", t.Name)
	}
	return rec, nil
}

// Encode converts a typed record into a row restricted to the table's columns
func (t Table) Encode(rec Record) (Row, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", t.Name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", t.Name, err)
	}

	row := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		v, ok := raw[c]
		if !ok {
			continue
		}
		if n, isNum := v.(json.Number); isNum {
			if i, err := n.Int64(); err == nil {
				v = i
			} else if f, err := n.Float64(); err == nil {
				v = f
			}
		}
		row[c] = v
	}
	return row, nil
}

// EncodeRecord encodes a typed record using its own table's descriptor
func EncodeRecord(rec Record) (Row, error) {
	t, err := LookupTable(rec.TableName())
	if err != nil {
		return nil, err
	}
	return t.Encode(rec)
}
