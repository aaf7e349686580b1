package models

import "github.com/erdview/erd-engine/pkg/jsonutil"

// ERDPayload is the raw upstream payload before normalization: a required
// tables sequence with embedded workspace/database identifiers, derived
// relationships, and optional explicit databases/workspaces lists.
type ERDPayload struct {
	Tables        []PayloadTable        `json:"tables"`
	Relationships []PayloadRelationship `json:"relationships"`
	Databases     []PayloadDatabase     `json:"databases,omitempty"`
	Workspaces    []PayloadWorkspace    `json:"workspaces,omitempty"`
}

// PayloadTable is a table record as the upstream API reports it.
type PayloadTable struct {
	ID            jsonutil.FlexibleID `json:"id"`
	Name          string              `json:"name"`
	DatabaseID    jsonutil.FlexibleID `json:"database_id"`
	DatabaseName  string              `json:"database_name,omitempty"`
	WorkspaceID   jsonutil.FlexibleID `json:"workspace_id"`
	WorkspaceName string              `json:"workspace_name,omitempty"`
	Fields        []PayloadField      `json:"fields"`
}

// PayloadField is a field record embedded in a PayloadTable.
// LinkRowTableID is set only for link-type fields.
type PayloadField struct {
	ID             jsonutil.FlexibleID `json:"id"`
	Name           string              `json:"name"`
	Type           string              `json:"type"`
	LinkRowTableID jsonutil.FlexibleID `json:"link_row_table_id,omitempty"`
}

// PayloadRelationship is a directed reference from a field on the source
// table to the target table, as reported by the upstream traversal.
type PayloadRelationship struct {
	SourceTableID   jsonutil.FlexibleID `json:"source_table_id"`
	SourceTableName string              `json:"source_table_name,omitempty"`
	TargetTableID   jsonutil.FlexibleID `json:"target_table_id"`
	TargetTableName string              `json:"target_table_name,omitempty"`
	FieldID         jsonutil.FlexibleID `json:"field_id"`
	FieldName       string              `json:"field_name"`
}

// PayloadDatabase is an optional explicit database record. HasTables and
// TableCount are upstream-reported hints; live counts are recomputed during
// normalization.
type PayloadDatabase struct {
	ID            jsonutil.FlexibleID `json:"id"`
	Name          string              `json:"name"`
	WorkspaceID   jsonutil.FlexibleID `json:"workspace_id"`
	WorkspaceName string              `json:"workspace_name,omitempty"`
	HasTables     *bool               `json:"has_tables,omitempty"`
	TableCount    *int                `json:"table_count,omitempty"`
}

// PayloadWorkspace is an optional explicit workspace record.
type PayloadWorkspace struct {
	ID   jsonutil.FlexibleID `json:"id"`
	Name string              `json:"name"`
}
