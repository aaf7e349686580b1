package services

import (
	"fmt"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/erdview/erd-engine/pkg/apperrors"
	"github.com/erdview/erd-engine/pkg/models"
)

// Normalize converts a raw upstream payload into a deduplicated EntitySet.
//
// Databases and workspaces come from the payload's explicit lists when
// supplied and non-empty (authoritative path, payload order preserved).
// Otherwise they are derived from the distinct ids embedded in the tables
// (derive-from-children path) and sorted by name with a locale-aware
// collator. The two paths are never merged: an explicit list wins outright
// over per-table names that disagree with it.
//
// Returns ErrMalformedPayload when any table lacks an id, name, or numeric
// database_id. No partial result is produced on error.
func Normalize(payload *models.ERDPayload) (*models.EntitySet, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is nil", apperrors.ErrMalformedPayload)
	}

	tables, err := normalizeTables(payload.Tables)
	if err != nil {
		return nil, err
	}

	return &models.EntitySet{
		Workspaces:    normalizeWorkspaces(payload),
		Databases:     normalizeDatabases(payload, tables),
		Tables:        tables,
		Relationships: normalizeRelationships(payload.Relationships),
	}, nil
}

func normalizeTables(raw []models.PayloadTable) ([]models.Table, error) {
	tables := make([]models.Table, 0, len(raw))
	indexByID := make(map[int64]int, len(raw))

	for i, pt := range raw {
		if !pt.ID.Valid || pt.Name == "" || !pt.DatabaseID.Valid {
			return nil, fmt.Errorf("%w: table at index %d lacks id, name, or numeric database_id",
				apperrors.ErrMalformedPayload, i)
		}

		fields := make([]models.Field, 0, len(pt.Fields))
		for _, pf := range pt.Fields {
			f := models.Field{ID: pf.ID.Value, Name: pf.Name, Type: pf.Type}
			if pf.LinkRowTableID.Valid {
				linked := pf.LinkRowTableID.Value
				f.LinkedTableID = &linked
			}
			fields = append(fields, f)
		}

		t := models.Table{
			ID:          pt.ID.Value,
			Name:        pt.Name,
			DatabaseID:  pt.DatabaseID.Value,
			WorkspaceID: pt.WorkspaceID.Value,
			Fields:      fields,
		}

		// Dedup by id, last seen wins.
		if idx, ok := indexByID[t.ID]; ok {
			tables[idx] = t
		} else {
			indexByID[t.ID] = len(tables)
			tables = append(tables, t)
		}
	}

	return tables, nil
}

func normalizeDatabases(payload *models.ERDPayload, tables []models.Table) []models.Database {
	counts := tableCountsByDatabase(tables)

	if len(payload.Databases) > 0 {
		databases := make([]models.Database, 0, len(payload.Databases))
		indexByID := make(map[int64]int, len(payload.Databases))
		for _, pd := range payload.Databases {
			if !pd.ID.Valid {
				continue
			}
			db := models.Database{
				ID:                 pd.ID.Value,
				Name:               pd.Name,
				WorkspaceID:        pd.WorkspaceID.Value,
				TableCount:         counts[pd.ID.Value],
				ReportedTableCount: pd.TableCount,
			}
			if pd.HasTables != nil {
				db.HasTables = *pd.HasTables
			} else {
				db.HasTables = db.TableCount > 0
			}
			if idx, ok := indexByID[db.ID]; ok {
				databases[idx] = db
			} else {
				indexByID[db.ID] = len(databases)
				databases = append(databases, db)
			}
		}
		return databases
	}

	// Derive one database per distinct database_id observed across tables,
	// last non-empty name wins.
	databases := make([]models.Database, 0)
	indexByID := make(map[int64]int)
	for _, pt := range payload.Tables {
		if !pt.DatabaseID.Valid {
			continue
		}
		id := pt.DatabaseID.Value
		if idx, ok := indexByID[id]; ok {
			if pt.DatabaseName != "" {
				databases[idx].Name = pt.DatabaseName
			}
			continue
		}
		indexByID[id] = len(databases)
		databases = append(databases, models.Database{
			ID:          id,
			Name:        pt.DatabaseName,
			WorkspaceID: pt.WorkspaceID.Value,
		})
	}
	for i := range databases {
		if databases[i].Name == "" {
			databases[i].Name = fmt.Sprintf("Database %d", databases[i].ID)
		}
		databases[i].TableCount = counts[databases[i].ID]
		databases[i].HasTables = databases[i].TableCount > 0
	}
	sortByName(databases, func(db models.Database) string { return db.Name })
	return databases
}

func normalizeWorkspaces(payload *models.ERDPayload) []models.Workspace {
	if len(payload.Workspaces) > 0 {
		workspaces := make([]models.Workspace, 0, len(payload.Workspaces))
		indexByID := make(map[int64]int, len(payload.Workspaces))
		for _, pw := range payload.Workspaces {
			if !pw.ID.Valid {
				continue
			}
			ws := models.Workspace{ID: pw.ID.Value, Name: pw.Name}
			if idx, ok := indexByID[ws.ID]; ok {
				workspaces[idx] = ws
			} else {
				indexByID[ws.ID] = len(workspaces)
				workspaces = append(workspaces, ws)
			}
		}
		return workspaces
	}

	// Derive one workspace per distinct workspace_id observed across tables,
	// last non-empty name wins.
	workspaces := make([]models.Workspace, 0)
	indexByID := make(map[int64]int)
	for _, pt := range payload.Tables {
		if !pt.WorkspaceID.Valid {
			continue
		}
		id := pt.WorkspaceID.Value
		if idx, ok := indexByID[id]; ok {
			if pt.WorkspaceName != "" {
				workspaces[idx].Name = pt.WorkspaceName
			}
			continue
		}
		indexByID[id] = len(workspaces)
		workspaces = append(workspaces, models.Workspace{ID: id, Name: pt.WorkspaceName})
	}
	for i := range workspaces {
		if workspaces[i].Name == "" {
			workspaces[i].Name = fmt.Sprintf("Workspace %d", workspaces[i].ID)
		}
	}
	sortByName(workspaces, func(ws models.Workspace) string { return ws.Name })
	return workspaces
}

func normalizeRelationships(raw []models.PayloadRelationship) []models.Relationship {
	relationships := make([]models.Relationship, 0, len(raw))
	for _, pr := range raw {
		// A relationship without two resolvable endpoints can never be
		// rendered; drop it here rather than carry a dangling edge.
		if !pr.SourceTableID.Valid || !pr.TargetTableID.Valid {
			continue
		}
		relationships = append(relationships, models.Relationship{
			SourceTableID: pr.SourceTableID.Value,
			TargetTableID: pr.TargetTableID.Value,
			FieldID:       pr.FieldID.Value,
			FieldName:     pr.FieldName,
		})
	}
	return relationships
}

func tableCountsByDatabase(tables []models.Table) map[int64]int {
	counts := make(map[int64]int, len(tables))
	for _, t := range tables {
		counts[t.DatabaseID]++
	}
	return counts
}

// sortByName orders derived entity lists lexicographically by name for
// stable, locale-aware display ordering. Authoritative payload lists are
// never passed through here.
func sortByName[T any](items []T, name func(T) string) {
	c := collate.New(language.English)
	sort.SliceStable(items, func(i, j int) bool {
		return c.CompareString(name(items[i]), name(items[j])) < 0
	})
}
