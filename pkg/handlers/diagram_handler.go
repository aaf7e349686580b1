package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/erdview/erd-engine/pkg/apperrors"
	"github.com/erdview/erd-engine/pkg/models"
	"github.com/erdview/erd-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// FiltersResponse carries the selector option lists and current selection.
type FiltersResponse struct {
	SelectedWorkspace string                   `json:"selected_workspace"`
	SelectedDatabase  string                   `json:"selected_database"`
	Workspaces        []models.WorkspaceOption `json:"workspaces"`
	Databases         []models.DatabaseOption  `json:"databases"`
	VisibleTableCount int                      `json:"visible_table_count"`
}

// UpdateFiltersRequest sets the workspace and/or database selection.
// Values may be the string "all", a numeric string, or a JSON number;
// ids are normalized to a common numeric type before any comparison.
type UpdateFiltersRequest struct {
	Workspace json.RawMessage `json:"workspace,omitempty"`
	Database  json.RawMessage `json:"database,omitempty"`
}

// TablesResponse lists the tables visible under the current filter.
type TablesResponse struct {
	Tables     []models.Table `json:"tables"`
	TotalCount int            `json:"total_count"`
}

// FieldsResponse lists the upstream fields of a single table.
type FieldsResponse struct {
	TableID int64                 `json:"table_id"`
	Fields  []models.PayloadField `json:"fields"`
}

// ============================================================================
// Handler
// ============================================================================

// FieldLister fetches per-table fields from the upstream API.
type FieldLister interface {
	ListFields(ctx context.Context, tableID int64) ([]models.PayloadField, error)
}

// DiagramHandler exposes the diagram, filter, and table endpoints.
type DiagramHandler struct {
	diagram  services.DiagramService
	upstream FieldLister
	logger   *zap.Logger
}

// NewDiagramHandler creates a new diagram handler.
func NewDiagramHandler(diagram services.DiagramService, upstream FieldLister, logger *zap.Logger) *DiagramHandler {
	return &DiagramHandler{
		diagram:  diagram,
		upstream: upstream,
		logger:   logger,
	}
}

// RegisterRoutes registers the diagram handler's routes on the given mux.
func (h *DiagramHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/erd", h.GetERD)
	mux.HandleFunc("POST /api/erd/refresh", h.RefreshERD)
	mux.HandleFunc("GET /api/filters", h.GetFilters)
	mux.HandleFunc("PUT /api/filters", h.UpdateFilters)
	mux.HandleFunc("GET /api/tables", h.GetTables)
	mux.HandleFunc("GET /api/fields/{table_id}", h.GetFields)
}

// GetERD handles GET /api/erd. The first call triggers an upstream fetch;
// afterwards the graph is re-derived from the last normalized entities and
// the current filter state.
func (h *DiagramHandler) GetERD(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureLoaded(r.Context()); err != nil {
		h.writeError(w, "load ERD data", err)
		return
	}

	snapshot := h.diagram.Snapshot()
	if err := WriteJSON(w, http.StatusOK, snapshot.Graph); err != nil {
		h.logger.Error("Failed to encode ERD response", zap.Error(err))
	}
}

// RefreshERD handles POST /api/erd/refresh: a forced refetch. The filter
// selection resets to its initial state because the entity set changes.
func (h *DiagramHandler) RefreshERD(w http.ResponseWriter, r *http.Request) {
	if err := h.diagram.Refresh(r.Context()); err != nil {
		h.writeError(w, "refresh ERD data", err)
		return
	}

	snapshot := h.diagram.Snapshot()
	if err := WriteJSON(w, http.StatusOK, snapshot.Graph); err != nil {
		h.logger.Error("Failed to encode ERD response", zap.Error(err))
	}
}

// GetFilters handles GET /api/filters.
func (h *DiagramHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureLoaded(r.Context()); err != nil {
		h.writeError(w, "load ERD data", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, h.filtersResponse()); err != nil {
		h.logger.Error("Failed to encode filters response", zap.Error(err))
	}
}

// UpdateFilters handles PUT /api/filters. Transitions apply in
// workspace-then-database order so a workspace change resets the database
// selection before a new database value (if any) is applied.
func (h *DiagramHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var req UpdateFiltersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	if len(req.Workspace) > 0 {
		sel, err := selectionFromJSON(req.Workspace)
		if err != nil {
			h.writeError(w, "parse workspace selection", err)
			return
		}
		if err := h.diagram.SetWorkspace(sel); err != nil {
			h.writeError(w, "set workspace selection", err)
			return
		}
	}

	if len(req.Database) > 0 {
		sel, err := selectionFromJSON(req.Database)
		if err != nil {
			h.writeError(w, "parse database selection", err)
			return
		}
		if err := h.diagram.SetDatabase(sel); err != nil {
			h.writeError(w, "set database selection", err)
			return
		}
	}

	if err := WriteJSON(w, http.StatusOK, h.filtersResponse()); err != nil {
		h.logger.Error("Failed to encode filters response", zap.Error(err))
	}
}

// GetTables handles GET /api/tables.
func (h *DiagramHandler) GetTables(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureLoaded(r.Context()); err != nil {
		h.writeError(w, "load ERD data", err)
		return
	}

	snapshot := h.diagram.Snapshot()
	response := TablesResponse{
		Tables:     snapshot.Tables,
		TotalCount: snapshot.VisibleTableCount,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode tables response", zap.Error(err))
	}
}

// GetFields handles GET /api/fields/{table_id}, proxying the upstream
// field list for a single table.
func (h *DiagramHandler) GetFields(w http.ResponseWriter, r *http.Request) {
	tableID, err := strconv.ParseInt(r.PathValue("table_id"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_table_id", "table_id must be numeric")
		return
	}

	fields, err := h.upstream.ListFields(r.Context(), tableID)
	if err != nil {
		h.writeError(w, "list table fields", err)
		return
	}

	response := FieldsResponse{TableID: tableID, Fields: fields}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode fields response", zap.Error(err))
	}
}

// ============================================================================
// Helpers
// ============================================================================

func (h *DiagramHandler) ensureLoaded(ctx context.Context) error {
	if h.diagram.Loaded() {
		return nil
	}
	return h.diagram.Refresh(ctx)
}

func (h *DiagramHandler) filtersResponse() FiltersResponse {
	snapshot := h.diagram.Snapshot()
	return FiltersResponse{
		SelectedWorkspace: snapshot.SelectedWorkspace,
		SelectedDatabase:  snapshot.SelectedDatabase,
		Workspaces:        snapshot.Workspaces,
		Databases:         snapshot.Databases,
		VisibleTableCount: snapshot.VisibleTableCount,
	}
}

// selectionFromJSON accepts "all", a numeric string, or a JSON number.
func selectionFromJSON(raw json.RawMessage) (services.Selection, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return services.ParseSelection(s)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return services.SelectID(n), nil
	}
	return services.Selection{}, fmt.Errorf("%w: selection must be \"all\" or a numeric id", apperrors.ErrInvalidSelection)
}

// writeError maps engine errors to HTTP status codes. The engine never
// substitutes empty data for a failed or malformed fetch, so every error
// surfaces here.
func (h *DiagramHandler) writeError(w http.ResponseWriter, action string, err error) {
	h.logger.Error("Request failed", zap.String("action", action), zap.Error(err))

	switch {
	case errors.Is(err, apperrors.ErrInvalidSelection):
		h.respondError(w, http.StatusBadRequest, "invalid_selection", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrMalformedPayload):
		h.respondError(w, http.StatusBadGateway, "malformed_payload", err.Error())
	case errors.Is(err, apperrors.ErrAuthFailed):
		h.respondError(w, http.StatusBadGateway, "upstream_auth_failed", err.Error())
	case errors.Is(err, apperrors.ErrUpstreamUnavailable):
		h.respondError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *DiagramHandler) respondError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
