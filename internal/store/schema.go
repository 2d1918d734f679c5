package store

import (
	"fmt"
	"strings"
)

// Collection declares a named record collection and its secondary indexes.
// Every collection carries the same base row shape: the record id, the JSON
// document, the lifecycle timestamps and the synced flag; index columns are
// extracted from the record at write time.
type Collection struct {
	Name    string
	Indexes []string
	Unique  []string
}

// Collection names.
const (
	CollectionUsers          = "users"
	CollectionAppointments   = "appointments"
	CollectionMedicalRecords = "medical_records"
)

// Collections is the full schema. Users is the single source of truth for
// both patients and doctors, discriminated by the role index.
var Collections = []Collection{
	{Name: CollectionUsers, Indexes: []string{"role"}, Unique: []string{"email"}},
	{Name: CollectionAppointments, Indexes: []string{"patient_id", "doctor_id", "date"}},
	{Name: CollectionMedicalRecords, Indexes: []string{"patient_id", "doctor_id", "date"}},
}

// SchemaVersion is bumped when the upgrade routine gains new collections or
// indexes. Upgrading is idempotent; re-running against a current store is a
// no-op.
const SchemaVersion = 1

func collectionByName(name string) (Collection, bool) {
	for _, c := range Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// ddl renders the CREATE statements for one collection.
func (c Collection) ddl() []string {
	cols := []string{
		"id TEXT PRIMARY KEY",
		"data TEXT NOT NULL",
		"created_at DATETIME NOT NULL",
		"updated_at DATETIME NOT NULL",
		"synced INTEGER NOT NULL DEFAULT 0",
	}
	for _, idx := range c.Indexes {
		cols = append(cols, fmt.Sprintf("%s TEXT", idx))
	}
	for _, idx := range c.Unique {
		cols = append(cols, fmt.Sprintf("%s TEXT", idx))
	}

	stmts := []string{fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)", c.Name, strings.Join(cols, ", "),
	)}
	for _, idx := range c.Indexes {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", c.Name, idx, c.Name, idx,
		))
	}
	for _, idx := range c.Unique {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", c.Name, idx, c.Name, idx,
		))
	}
	return stmts
}

// indexColumns returns all extracted columns, unique ones included.
func (c Collection) indexColumns() []string {
	cols := make([]string, 0, len(c.Indexes)+len(c.Unique))
	cols = append(cols, c.Indexes...)
	cols = append(cols, c.Unique...)
	return cols
}

// System tables owned by the engine itself.
const systemDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_changes (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	record_id TEXT NOT NULL,
	op TEXT NOT NULL,
	queued_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_changes_queued_at ON pending_changes(queued_at);
`
