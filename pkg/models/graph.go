package models

// Position is a node's grid-derived diagram coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeField is a classified field rendered inside a diagram node.
// IsPrimary comes from a naming-convention heuristic and is a display
// hint, not a schema guarantee.
type NodeField struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsPrimary bool   `json:"isPrimary"`
	IsForeign bool   `json:"isForeign"`
}

// NodeData is the renderer-facing content of a diagram node.
type NodeData struct {
	Label  string      `json:"label"`
	Fields []NodeField `json:"fields"`
}

// Node is a positioned diagram node, one per visible table.
type Node struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Edge is a labeled directed edge, one per visible relationship. Edge ids
// are assigned by derivation order and are stable only within a single
// derivation pass.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Graph is the render-ready output handed to the diagram renderer.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// WorkspaceOption is a workspace selector entry.
type WorkspaceOption struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	DatabaseCount int    `json:"database_count"`
	TableCount    int    `json:"table_count"`
}

// DatabaseOption is a database selector entry scoped to the current
// workspace selection.
type DatabaseOption struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	TableCount int    `json:"table_count"`
}
