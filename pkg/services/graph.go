package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/erdview/erd-engine/pkg/models"
)

// Grid layout constants. Positions are re-derived on every filter change;
// no user-moved positions survive because the node set itself changes.
const (
	gridColumns  = 3
	nodeSpacingX = 320.0
	nodeSpacingY = 240.0
)

// DeriveGraph maps filtered tables and relationships into render-ready
// nodes and edges. It is pure: no I/O, deterministic for a given table
// ordering, and an empty input yields empty (non-nil) slices.
func DeriveGraph(tables []models.Table, relationships []models.Relationship) *models.Graph {
	nodes := make([]models.Node, 0, len(tables))
	for i, t := range tables {
		fields := make([]models.NodeField, 0, len(t.Fields))
		for _, f := range t.Fields {
			fields = append(fields, models.NodeField{
				ID:        f.ID,
				Name:      f.Name,
				Type:      f.Type,
				IsPrimary: isPrimaryKeyName(t.Name, f.Name),
				IsForeign: isForeignKeyField(f),
			})
		}
		nodes = append(nodes, models.Node{
			ID: strconv.FormatInt(t.ID, 10),
			Position: models.Position{
				X: float64(i%gridColumns) * nodeSpacingX,
				Y: float64(i/gridColumns) * nodeSpacingY,
			},
			Data: models.NodeData{Label: t.Name, Fields: fields},
		})
	}

	edges := make([]models.Edge, 0, len(relationships))
	for i, r := range relationships {
		edges = append(edges, models.Edge{
			ID:     fmt.Sprintf("e%d", i),
			Source: strconv.FormatInt(r.SourceTableID, 10),
			Target: strconv.FormatInt(r.TargetTableID, 10),
			Label:  r.FieldName,
		})
	}

	return &models.Graph{Nodes: nodes, Edges: edges}
}

// isPrimaryKeyName flags fields named "{table_name}_id" (case-insensitive)
// as primary-key indicators. This is a naming-convention heuristic with
// expected false negatives for differently named primary keys.
func isPrimaryKeyName(tableName, fieldName string) bool {
	name := strings.ToLower(fieldName)
	return strings.Contains(name, "id") && name == strings.ToLower(tableName)+"_id"
}

// isForeignKeyField flags link-type fields and fields carrying a linked
// table id as foreign-key indicators.
func isForeignKeyField(f models.Field) bool {
	return f.Type == models.FieldTypeLinkRow || f.LinkedTableID != nil
}
