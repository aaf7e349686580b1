package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erdview/erd-engine/pkg/apperrors"
	"github.com/erdview/erd-engine/pkg/jsonutil"
	"github.com/erdview/erd-engine/pkg/models"
)

func payloadTable(id int64, name string, dbID, wsID int64, fields ...models.PayloadField) models.PayloadTable {
	return models.PayloadTable{
		ID:          jsonutil.ID(id),
		Name:        name,
		DatabaseID:  jsonutil.ID(dbID),
		WorkspaceID: jsonutil.ID(wsID),
		Fields:      fields,
	}
}

func TestNormalize_DerivesDatabasesAndWorkspaces(t *testing.T) {
	payload := &models.ERDPayload{
		Tables: []models.PayloadTable{
			payloadTable(1, "Users", 10, 100,
				models.PayloadField{ID: jsonutil.ID(1), Name: "id", Type: "number"}),
			payloadTable(2, "Orders", 10, 100,
				models.PayloadField{ID: jsonutil.ID(2), Name: "user_id", Type: "link_row", LinkRowTableID: jsonutil.ID(1)}),
		},
		Relationships: []models.PayloadRelationship{
			{SourceTableID: jsonutil.ID(2), TargetTableID: jsonutil.ID(1), FieldID: jsonutil.ID(2), FieldName: "user_id"},
		},
	}

	entities, err := Normalize(payload)
	require.NoError(t, err)

	require.Len(t, entities.Databases, 1)
	assert.Equal(t, int64(10), entities.Databases[0].ID)
	assert.Equal(t, "Database 10", entities.Databases[0].Name)
	assert.Equal(t, 2, entities.Databases[0].TableCount)
	assert.True(t, entities.Databases[0].HasTables)

	require.Len(t, entities.Workspaces, 1)
	assert.Equal(t, int64(100), entities.Workspaces[0].ID)
	assert.Equal(t, "Workspace 100", entities.Workspaces[0].Name)

	require.Len(t, entities.Tables, 2)
	require.Len(t, entities.Relationships, 1)
	assert.Equal(t, "user_id", entities.Relationships[0].FieldName)
}

func TestNormalize_DerivedCardinalityMatchesDistinctIDs(t *testing.T) {
	payload := &models.ERDPayload{
		Tables: []models.PayloadTable{
			payloadTable(1, "A", 10, 100),
			payloadTable(2, "B", 10, 100),
			payloadTable(3, "C", 20, 100),
			payloadTable(4, "D", 30, 200),
		},
	}

	entities, err := Normalize(payload)
	require.NoError(t, err)
	assert.Len(t, entities.Databases, 3)
	assert.Len(t, entities.Workspaces, 2)
}

func TestNormalize_AuthoritativeDatabaseList(t *testing.T) {
	reported := 99
	payload := &models.ERDPayload{
		Tables: []models.PayloadTable{
			payloadTable(1, "Users", 10, 100),
			payloadTable(2, "Orders", 10, 100),
		},
		Databases: []models.PayloadDatabase{
			// Payload order must survive, and the reported count must not
			// displace the live count.
			{ID: jsonutil.ID(20), Name: "Zebra", WorkspaceID: jsonutil.ID(100), TableCount: &reported},
			{ID: jsonutil.ID(10), Name: "Apple", WorkspaceID: jsonutil.ID(100)},
		},
	}

	entities, err := Normalize(payload)
	require.NoError(t, err)

	require.Len(t, entities.Databases, 2)
	assert.Equal(t, "Zebra", entities.Databases[0].Name, "payload order preserved, not sorted")
	assert.Equal(t, "Apple", entities.Databases[1].Name)

	assert.Equal(t, 0, entities.Databases[0].TableCount, "live count, not the reported hint")
	require.NotNil(t, entities.Databases[0].ReportedTableCount)
	assert.Equal(t, 99, *entities.Databases[0].ReportedTableCount)
	assert.False(t, entities.Databases[0].HasTables)

	assert.Equal(t, 2, entities.Databases[1].TableCount)
	assert.True(t, entities.Databases[1].HasTables)
}

func TestNormalize_ExplicitListWinsOverEmbeddedNames(t *testing.T) {
	tbl := payloadTable(1, "Users", 10, 100)
	tbl.DatabaseName = "Embedded Name"
	payload := &models.ERDPayload{
		Tables:    []models.PayloadTable{tbl},
		Databases: []models.PayloadDatabase{{ID: jsonutil.ID(10), Name: "Explicit Name", WorkspaceID: jsonutil.ID(100)}},
	}

	entities, err := Normalize(payload)
	require.NoError(t, err)
	require.Len(t, entities.Databases, 1)
	assert.Equal(t, "Explicit Name", entities.Databases[0].Name)
}

func TestNormalize_HasTablesOverride(t *testing.T) {
	override := true
	payload := &models.ERDPayload{
		Tables: []models.PayloadTable{},
		Databases: []models.PayloadDatabase{
			{ID: jsonutil.ID(10), Name: "Empty", WorkspaceID: jsonutil.ID(100), HasTables: &override},
		},
	}

	entities, err := Normalize(payload)
	require.NoError(t, err)
	require.Len(t, entities.Databases, 1)
	assert.True(t, entities.Databases[0].HasTables, "explicit has_tables override honored")
	assert.Equal(t, 0, entities.Databases[0].TableCount)
}

func TestNormalize_DerivedListsSortedByName(t *testing.T) {
	t1 := payloadTable(1, "T1", 30, 300)
	t1.DatabaseName = "zulu"
	t1.WorkspaceName = "Zeta"
	t2 := payloadTable(2, "T2", 10, 100)
	t2.DatabaseName = "alpha"
	t2.WorkspaceName = "Alpha"
	t3 := payloadTable(3, "T3", 20, 200)
	t3.DatabaseName = "Mike"
	t3.WorkspaceName = "mike"

	entities, err := Normalize(&models.ERDPayload{Tables: []models.PayloadTable{t1, t2, t3}})
	require.NoError(t, err)

	dbNames := []string{entities.Databases[0].Name, entities.Databases[1].Name, entities.Databases[2].Name}
	assert.Equal(t, []string{"alpha", "Mike", "zulu"}, dbNames, "locale-aware, case-insensitive ordering")

	wsNames := []string{entities.Workspaces[0].Name, entities.Workspaces[1].Name, entities.Workspaces[2].Name}
	assert.Equal(t, []string{"Alpha", "mike", "Zeta"}, wsNames)
}

func TestNormalize_DedupLastSeenWins(t *testing.T) {
	first := payloadTable(1, "Old Name", 10, 100)
	first.DatabaseName = "First DB Name"
	second := payloadTable(1, "New Name", 10, 100)
	second.DatabaseName = "Second DB Name"

	entities, err := Normalize(&models.ERDPayload{Tables: []models.PayloadTable{first, second}})
	require.NoError(t, err)

	require.Len(t, entities.Tables, 1)
	assert.Equal(t, "New Name", entities.Tables[0].Name)
	require.Len(t, entities.Databases, 1)
	assert.Equal(t, "Second DB Name", entities.Databases[0].Name)
	assert.Equal(t, 1, entities.Databases[0].TableCount, "duplicate table not double counted")
}

func TestNormalize_MalformedTables(t *testing.T) {
	tests := []struct {
		name  string
		table models.PayloadTable
	}{
		{
			name:  "missing id",
			table: models.PayloadTable{Name: "Users", DatabaseID: jsonutil.ID(10)},
		},
		{
			name:  "missing name",
			table: models.PayloadTable{ID: jsonutil.ID(1), DatabaseID: jsonutil.ID(10)},
		},
		{
			name:  "missing database id",
			table: models.PayloadTable{ID: jsonutil.ID(1), Name: "Users"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(&models.ERDPayload{Tables: []models.PayloadTable{tt.table}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedPayload))
		})
	}
}

func TestNormalize_NilPayload(t *testing.T) {
	_, err := Normalize(nil)
	assert.True(t, errors.Is(err, apperrors.ErrMalformedPayload))
}

func TestNormalize_StringIDsInJSON(t *testing.T) {
	// Ids transmitted as text must land on the same numeric type as
	// numeric ids.
	raw := `{
		"tables": [
			{"id": "1", "name": "Users", "database_id": "10", "workspace_id": "100",
			 "fields": [{"id": "5", "name": "id", "type": "number"}]}
		],
		"relationships": []
	}`
	var payload models.ERDPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	entities, err := Normalize(&payload)
	require.NoError(t, err)
	require.Len(t, entities.Tables, 1)
	assert.Equal(t, int64(1), entities.Tables[0].ID)
	assert.Equal(t, int64(10), entities.Tables[0].DatabaseID)
	assert.Equal(t, int64(100), entities.Tables[0].WorkspaceID)
}

func TestNormalize_RelationshipWithoutEndpointsDropped(t *testing.T) {
	payload := &models.ERDPayload{
		Tables: []models.PayloadTable{payloadTable(1, "Users", 10, 100)},
		Relationships: []models.PayloadRelationship{
			{SourceTableID: jsonutil.ID(1), FieldID: jsonutil.ID(2), FieldName: "broken"},
		},
	}

	entities, err := Normalize(payload)
	require.NoError(t, err)
	assert.Empty(t, entities.Relationships)
}
