package domain

import (
	"encoding/json"
	"time"
)

// ColumnSpec declares one required physical column.
type ColumnSpec struct {
	Name          string
	Type          string
	Nullable      bool
	Unique        bool
	PrimaryKey    bool
	AutoIncrement bool
}

// IndexSpec declares one required index.
type IndexSpec struct {
	Name    string
	Table   string
	Columns []string
}

// TableSpec is the canonical definition of one required physical table.
// AutoFix creates missing tables from exactly this definition.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
	Indexes []IndexSpec
}

// Descriptor is the static declaration of the physical schema this engine
// requires. It is built once at process start and never mutated.
type Descriptor struct {
	Tables []TableSpec
}

func (d Descriptor) Table(name string) (TableSpec, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}

func (d Descriptor) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, t := range d.Tables {
		names = append(names, t.Name)
	}
	return names
}

const (
	TableRecords      = "records"
	TableAuditEntries = "audit_entries"
	TablePrincipals   = "principals"
	TableTableSchemas = "table_schemas"
)

// DefaultDescriptor declares the four relations the engine persists into.
func DefaultDescriptor() Descriptor {
	return Descriptor{Tables: []TableSpec{
		{
			Name: TableRecords,
			Columns: []ColumnSpec{
				{Name: "id", Type: "INTEGER", PrimaryKey: true, AutoIncrement: true},
				{Name: "logical_table", Type: "TEXT"},
				{Name: "owner_id", Type: "INTEGER", Nullable: true},
				{Name: "payload_json", Type: "TEXT"},
				{Name: "encrypted_json", Type: "TEXT"},
				{Name: "metadata_json", Type: "TEXT"},
				{Name: "created_at", Type: "DATETIME"},
				{Name: "updated_at", Type: "DATETIME"},
			},
			Indexes: []IndexSpec{
				{Name: "idx_records_table_owner", Table: TableRecords, Columns: []string{"logical_table", "owner_id"}},
			},
		},
		{
			Name: TableAuditEntries,
			Columns: []ColumnSpec{
				{Name: "id", Type: "INTEGER", PrimaryKey: true, AutoIncrement: true},
				{Name: "event_id", Type: "TEXT"},
				{Name: "principal", Type: "INTEGER", Nullable: true},
				{Name: "action", Type: "TEXT"},
				{Name: "logical_table", Type: "TEXT"},
				{Name: "record_id", Type: "INTEGER"},
				{Name: "before_json", Type: "TEXT", Nullable: true},
				{Name: "after_json", Type: "TEXT", Nullable: true},
				{Name: "created_at", Type: "DATETIME"},
			},
			Indexes: []IndexSpec{
				{Name: "idx_audit_table_record", Table: TableAuditEntries, Columns: []string{"logical_table", "record_id"}},
			},
		},
		{
			Name: TablePrincipals,
			Columns: []ColumnSpec{
				{Name: "id", Type: "INTEGER", PrimaryKey: true, AutoIncrement: true},
				{Name: "name", Type: "TEXT", Unique: true},
				{Name: "active", Type: "INTEGER"},
				{Name: "created_at", Type: "DATETIME"},
			},
			Indexes: []IndexSpec{
				{Name: "idx_principals_name", Table: TablePrincipals, Columns: []string{"name"}},
			},
		},
		{
			Name: TableTableSchemas,
			Columns: []ColumnSpec{
				{Name: "logical_table", Type: "TEXT", PrimaryKey: true},
				{Name: "schema_json", Type: "TEXT"},
				{Name: "updated_at", Type: "DATETIME"},
			},
		},
	}}
}

// TableSchema holds the JSON Schema document configured for a logical table.
// Configuring one is optional; without it only the is-it-a-map check applies.
type TableSchema struct {
	LogicalTable string
	Schema       json.RawMessage
	UpdatedAt    time.Time
}

// Principal is an identity that can own records. Rows whose owner reference
// points at no principal are orphans.
type Principal struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
}
