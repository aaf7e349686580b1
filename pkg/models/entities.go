package models

// FieldTypeLinkRow is the upstream field type denoting a reference to
// another table.
const FieldTypeLinkRow = "link_row"

// Workspace is the top-level grouping scope containing databases.
type Workspace struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Database is a named collection of tables within a workspace.
// TableCount is always the live count of normalized tables that reference
// this database; an upstream-reported count survives only as
// ReportedTableCount for display.
type Database struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	WorkspaceID        int64  `json:"workspace_id"`
	TableCount         int    `json:"table_count"`
	HasTables          bool   `json:"has_tables"`
	ReportedTableCount *int   `json:"reported_table_count,omitempty"`
}

// Field is a table column. LinkedTableID is set only when the field
// represents a relationship endpoint.
type Field struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	LinkedTableID *int64 `json:"linked_table_id,omitempty"`
}

// Table is a schema entity belonging to exactly one database.
type Table struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	DatabaseID  int64   `json:"database_id"`
	WorkspaceID int64   `json:"workspace_id"`
	Fields      []Field `json:"fields"`
}

// Relationship is a derived directed edge between two tables via a
// link-type field. It is never stored on a Table.
type Relationship struct {
	SourceTableID int64  `json:"source_table_id"`
	TargetTableID int64  `json:"target_table_id"`
	FieldID       int64  `json:"field_id"`
	FieldName     string `json:"field_name"`
}

// EntitySet is the normalized, deduplicated hierarchy built from a single
// upstream payload. It is immutable once built and rebuilt from scratch on
// every successful fetch.
type EntitySet struct {
	Workspaces    []Workspace
	Databases     []Database
	Tables        []Table
	Relationships []Relationship
}

// EmptyEntitySet returns the zero entity set used before the first fetch.
func EmptyEntitySet() *EntitySet {
	return &EntitySet{}
}
