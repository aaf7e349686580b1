package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/erdview/erd-engine/pkg/apperrors"
	"github.com/erdview/erd-engine/pkg/models"
)

// Selection identifies a cascading-filter choice: either the sentinel
// "all" or a concrete entity id.
type Selection struct {
	ID  int64
	All bool
}

// SelectAll returns the unscoped selection.
func SelectAll() Selection { return Selection{All: true} }

// SelectID returns a selection scoped to a single entity id.
func SelectID(id int64) Selection { return Selection{ID: id} }

// ParseSelection normalizes a selection transmitted as text ("all" or a
// numeric id). This is the single normalization point for string-typed
// selection transport: entity ids are numeric, and comparing an unparsed
// string against them would silently empty every filter result.
func ParseSelection(s string) (Selection, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return SelectAll(), nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %q is not a numeric id or \"all\"", apperrors.ErrInvalidSelection, s)
	}
	return SelectID(id), nil
}

// Matches reports whether the selection admits the given id.
func (s Selection) Matches(id int64) bool {
	return s.All || s.ID == id
}

func (s Selection) String() string {
	if s.All {
		return "all"
	}
	return strconv.FormatInt(s.ID, 10)
}

// FilterState holds the workspace/database selection over one normalized
// entity set and derives the visible subset on demand. Derivations are
// pure and recomputed in full on every call; there is no cached or
// incrementally-patched view. A new FilterState is built for every fetch,
// so the initial (all, all) state is restored whenever entities change.
type FilterState struct {
	entities  *models.EntitySet
	workspace Selection
	database  Selection
}

// NewFilterState returns a filter over the given entities in the initial
// (all, all) state.
func NewFilterState(entities *models.EntitySet) *FilterState {
	if entities == nil {
		entities = models.EmptyEntitySet()
	}
	return &FilterState{
		entities:  entities,
		workspace: SelectAll(),
		database:  SelectAll(),
	}
}

// Workspace returns the current workspace selection.
func (f *FilterState) Workspace() Selection { return f.workspace }

// Database returns the current database selection.
func (f *FilterState) Database() Selection { return f.database }

// SetWorkspace sets the workspace selection and unconditionally resets the
// database selection to "all": a database selection must never reference a
// workspace scope it no longer belongs to.
func (f *FilterState) SetWorkspace(sel Selection) {
	f.workspace = sel
	f.database = SelectAll()
}

// SetDatabase sets the database selection. A concrete id is legal only
// when the database exists and belongs to the currently selected
// workspace (or the workspace selection is "all").
func (f *FilterState) SetDatabase(sel Selection) error {
	if sel.All {
		f.database = sel
		return nil
	}
	db, ok := f.lookupDatabase(sel.ID)
	if !ok {
		return fmt.Errorf("%w: database %d", apperrors.ErrNotFound, sel.ID)
	}
	if !f.workspace.Matches(db.WorkspaceID) {
		return fmt.Errorf("%w: database %d is outside workspace %s",
			apperrors.ErrInvalidSelection, sel.ID, f.workspace)
	}
	f.database = sel
	return nil
}

// FilteredDatabases returns the databases within the current workspace
// scope. Each entry's TableCount is recomputed against the full,
// unfiltered table set so it reports the database's true total regardless
// of the current workspace scope.
func (f *FilterState) FilteredDatabases() []models.Database {
	counts := tableCountsByDatabase(f.entities.Tables)
	databases := make([]models.Database, 0, len(f.entities.Databases))
	for _, db := range f.entities.Databases {
		if !f.workspace.Matches(db.WorkspaceID) {
			continue
		}
		db.TableCount = counts[db.ID]
		databases = append(databases, db)
	}
	return databases
}

// FilteredTables returns the tables matching both the workspace and
// database selections; an "all" selection is a pass-through.
func (f *FilterState) FilteredTables() []models.Table {
	tables := make([]models.Table, 0, len(f.entities.Tables))
	for _, t := range f.entities.Tables {
		if f.workspace.Matches(t.WorkspaceID) && f.database.Matches(t.DatabaseID) {
			tables = append(tables, t)
		}
	}
	return tables
}

// FilteredRelationships returns the relationships whose source and target
// tables are both visible. A relationship with only one endpoint visible
// is dropped entirely, never partially rendered.
func (f *FilterState) FilteredRelationships() []models.Relationship {
	visible := make(map[int64]struct{})
	for _, t := range f.FilteredTables() {
		visible[t.ID] = struct{}{}
	}

	relationships := make([]models.Relationship, 0, len(f.entities.Relationships))
	for _, r := range f.entities.Relationships {
		if _, ok := visible[r.SourceTableID]; !ok {
			continue
		}
		if _, ok := visible[r.TargetTableID]; !ok {
			continue
		}
		relationships = append(relationships, r)
	}
	return relationships
}

// VisibleTableCount returns the number of tables in the current scope.
func (f *FilterState) VisibleTableCount() int {
	return len(f.FilteredTables())
}

// WorkspaceOptions returns selector entries for every workspace, with
// database and table totals computed over the full entity set.
func (f *FilterState) WorkspaceOptions() []models.WorkspaceOption {
	dbCounts := make(map[int64]int, len(f.entities.Databases))
	for _, db := range f.entities.Databases {
		dbCounts[db.WorkspaceID]++
	}
	tableCounts := make(map[int64]int, len(f.entities.Tables))
	for _, t := range f.entities.Tables {
		tableCounts[t.WorkspaceID]++
	}

	options := make([]models.WorkspaceOption, 0, len(f.entities.Workspaces))
	for _, ws := range f.entities.Workspaces {
		options = append(options, models.WorkspaceOption{
			ID:            ws.ID,
			Name:          ws.Name,
			DatabaseCount: dbCounts[ws.ID],
			TableCount:    tableCounts[ws.ID],
		})
	}
	return options
}

// DatabaseOptions returns selector entries for the databases within the
// current workspace scope.
func (f *FilterState) DatabaseOptions() []models.DatabaseOption {
	filtered := f.FilteredDatabases()
	options := make([]models.DatabaseOption, 0, len(filtered))
	for _, db := range filtered {
		options = append(options, models.DatabaseOption{
			ID:         db.ID,
			Name:       db.Name,
			TableCount: db.TableCount,
		})
	}
	return options
}

func (f *FilterState) lookupDatabase(id int64) (models.Database, bool) {
	for _, db := range f.entities.Databases {
		if db.ID == id {
			return db, true
		}
	}
	return models.Database{}, false
}
