package backend

import (
	"errors"
	"testing"
)

// TestLookupTable tests that every synced table resolves and unknown names fail
func TestLookupTable(t *testing.T) {
	for _, name := range SyncOrder {
		table, err := LookupTable(name)
		if err != nil {
			t.Fatalf("LookupTable(%q) failed: %v", name, err)
		}
		if table.Name != name {
			t.Errorf("LookupTable(%q).Name = %q", name, table.Name)
		}
		if !table.HasColumn("id") || !table.HasColumn("updated_at") {
			t.Errorf("table %q is missing id or updated_at", name)
		}
		if got := table.New().TableName(); got != name {
			t.Errorf("table %q constructs records for %q", name, got)
		}
	}

	if _, err := LookupTable("invoices"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
}

// TestSyncOrder tests that every referenced table is synced before its referrers
func TestSyncOrder(t *testing.T) {
	if len(SyncOrder) != 8 {
		t.Fatalf("expected 8 synced tables, got %d", len(SyncOrder))
	}
	position := make(map[string]int)
	for i, name := range SyncOrder {
		position[name] = i
	}
	if SyncOrder[6] != TableChat || SyncOrder[7] != TableActivityLogs {
		t.Errorf("chat and activity_logs must be last, got %v", SyncOrder)
	}
	for _, name := range SyncOrder {
		table, _ := LookupTable(name)
		for column, target := range table.Refs {
			if target == name {
				continue
			}
			if position[target] > position[name] {
				t.Errorf("%s.%s references %s which syncs later", name, column, target)
			}
		}
	}
}

// TestDecodeEncode tests converting rows to typed records and back
func TestDecodeEncode(t *testing.T) {
	table, _ := LookupTable(TableInventory)
	row := Row{
		"id":            "7b0f5c8e-1a2b-4c3d-8e9f-0a1b2c3d4e5f",
		"item_name":     "Syringe 5ml",
		"quantity":      int64(120),
		"unit":          "pcs",
		"reorder_level": int64(20),
		"expiry_date":   nil,
		"created_at":    "2024-01-01T10:00:00Z",
		"updated_at":    "2024-01-02T10:00:00Z",
		"ignored":       "not a column",
	}

	rec, err := table.Decode(row)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	item, ok := rec.(*InventoryItem)
	if !ok {
		t.Fatalf("expected *InventoryItem, got %T", rec)
	}
	if item.Quantity != 120 || item.ItemName != "Syringe 5ml" || item.ExpiryDate != nil {
		t.Errorf("unexpected decoded item: %+v", item)
	}
	if item.UpdatedAt() != "2024-01-02T10:00:00Z" {
		t.Errorf("UpdatedAt() = %q", item.UpdatedAt())
	}

	out, err := table.Encode(rec)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, ok := out["ignored"]; ok {
		t.Error("Encode kept a column the table does not have")
	}
	if out["quantity"] != int64(120) {
		t.Errorf("quantity = %#v, want int64(120)", out["quantity"])
	}
	if v, ok := out["expiry_date"]; !ok || v != nil {
		t.Errorf("expiry_date = %#v, want explicit nil", v)
	}
}

// TestDecodeLegacyNumericRefs tests that integer ids from old local rows decode as strings
func TestDecodeLegacyNumericRefs(t *testing.T) {
	table, _ := LookupTable(TableReports)
	rec, err := table.Decode(Row{
		"id":         int64(42),
		"patient_id": int64(7),
		"test_id":    "3",
		"result":     "positive",
		"status":     "final",
		"updated_at": "2024-01-02 10:00:00",
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	report := rec.(*Report)
	if report.ID != "42" || report.PatientID != "7" {
		t.Errorf("unexpected ids: id=%q patient_id=%q", report.ID, report.PatientID)
	}
}

// TestDecodeMalformed tests rows that cannot become records
func TestDecodeMalformed(t *testing.T) {
	table, _ := LookupTable(TableInventory)
	tests := []struct {
		name string
		row  Row
	}{
		{"missing id", Row{"item_name": "gloves", "updated_at": "2024-01-01T00:00:00Z"}},
		{"wrong type", Row{"id": "a", "quantity": "lots"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := table.Decode(tt.row); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

// TestNewMeta tests freshly minted record metadata
func TestNewMeta(t *testing.T) {
	a, b := NewMeta(), NewMeta()
	if !IsUUID(a.ID) {
		t.Errorf("NewMeta id %q is not a UUID", a.ID)
	}
	if a.ID == b.ID {
		t.Error("NewMeta returned the same id twice")
	}
	if a.CreatedAt != a.Modified {
		t.Errorf("created_at %q != updated_at %q", a.CreatedAt, a.Modified)
	}
	if _, ok := ParseStamp(a.Modified); !ok {
		t.Errorf("NewMeta stamp %q does not parse", a.Modified)
	}
}

// TestChatMessageInvolves tests participant checks
func TestChatMessageInvolves(t *testing.T) {
	msg := ChatMessage{SenderID: "u1", ReceiverID: "u2"}
	if !msg.Involves("u1") || !msg.Involves("u2") {
		t.Error("participants should be involved")
	}
	if msg.Involves("u3") {
		t.Error("u3 is not a participant")
	}
}

// TestRowString tests formatting of non-string column values
func TestRowString(t *testing.T) {
	row := Row{"a": "x", "b": []byte("y"), "c": int64(3), "d": nil}
	if row.String("a") != "x" || row.String("b") != "y" || row.String("c") != "3" {
		t.Errorf("unexpected String results for %v", row)
	}
	if row.String("d") != "" || row.String("missing") != "" {
		t.Error("nil and missing columns should be empty")
	}
}
