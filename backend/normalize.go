package backend

import "github.com/google/uuid"

// legacyNamespace seeds the deterministic ids given to pre-UUID references
var legacyNamespace = uuid.MustParse("6f1c2a4e-7d3b-5e8f-9a10-b2c3d4e5f607")

// IsUUID reports whether s is a canonical UUID string
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// LegacyID maps a pre-UUID identifier of a table to a stable UUID.
// The same (table, value) pair always yields the same id.
func LegacyID(table, value string) string {
	return uuid.NewSHA1(legacyNamespace, []byte(table+":"+value)).String()
}

// ParentLookup reports whether a row with the given id exists in a table
type ParentLookup func(table, id string) bool

// NormalizeForUpload returns a copy of row whose reference columns hold
// UUIDs. Empty and null references are left alone, as is the row's own id.
// A legacy reference whose parent still carries that legacy id (per exists)
// is kept, so it keeps pointing at the parent once both are uploaded.
func (t Table) NormalizeForUpload(row Row, exists ParentLookup) Row {
	out := row.Clone()
	for column, target := range t.Refs {
		v := out.String(column)
		if v == "" || IsUUID(v) {
			continue
		}
		if exists != nil && exists(target, v) {
			out[column] = v
			continue
		}
		out[column] = LegacyID(target, v)
	}
	return out
}
