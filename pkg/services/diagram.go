package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erdview/erd-engine/pkg/models"
)

// ErrClosed is returned by operations on a torn-down diagram service.
var ErrClosed = errors.New("diagram service is closed")

// Fetcher retrieves the raw ERD payload from the upstream API.
type Fetcher interface {
	FetchERD(ctx context.Context) (*models.ERDPayload, error)
}

// DiagramSnapshot is one consistent read of the derivation pipeline:
// selector options, the current selection, the visible entities, and the
// render-ready graph.
type DiagramSnapshot struct {
	SelectedWorkspace string                   `json:"selected_workspace"`
	SelectedDatabase  string                   `json:"selected_database"`
	Workspaces        []models.WorkspaceOption `json:"workspaces"`
	Databases         []models.DatabaseOption  `json:"databases"`
	VisibleTableCount int                      `json:"visible_table_count"`
	Tables            []models.Table           `json:"tables"`
	Graph             *models.Graph            `json:"graph"`
}

// DiagramService owns the fetch lifecycle and the single filter-state
// record. Transitions have exactly one writer path (the Set* methods and
// Refresh commit, under the write lock); reads re-derive the full view
// from the latest entities, never patch it incrementally.
type DiagramService interface {
	// Refresh fetches and normalizes a fresh payload, replaces the entity
	// set, and resets the filter to its initial state. A result arriving
	// after a newer refresh began, or after Close, is discarded.
	Refresh(ctx context.Context) error

	// Loaded reports whether a fetch has completed since startup.
	Loaded() bool

	// SetWorkspace applies a workspace transition, resetting the database
	// selection.
	SetWorkspace(sel Selection) error

	// SetDatabase applies a database transition; the id must belong to the
	// currently selected workspace scope.
	SetDatabase(sel Selection) error

	// Snapshot derives the complete view for the current filter state.
	Snapshot() *DiagramSnapshot

	// Close tears the service down; in-flight fetch results are ignored.
	Close()
}

type diagramService struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu         sync.RWMutex
	filter     *FilterState
	loaded     bool
	closed     bool
	generation uint64
}

// NewDiagramService creates a diagram service over the given fetcher.
// Until the first successful Refresh it serves an empty entity set.
func NewDiagramService(fetcher Fetcher, logger *zap.Logger) DiagramService {
	return &diagramService{
		fetcher: fetcher,
		logger:  logger.Named("diagram"),
		filter:  NewFilterState(models.EmptyEntitySet()),
	}
}

func (s *diagramService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	fetchID := uuid.New().String()
	s.logger.Info("Fetching ERD payload", zap.String("fetch_id", fetchID))

	payload, err := s.fetcher.FetchERD(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch ERD payload: %w", err)
	}

	entities, err := Normalize(payload)
	if err != nil {
		return fmt.Errorf("failed to normalize ERD payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation {
		// A newer refresh superseded this one, or the service was torn
		// down mid-fetch. Stale entities must not replace current state.
		s.logger.Debug("Discarding stale fetch result", zap.String("fetch_id", fetchID))
		return nil
	}

	s.filter = NewFilterState(entities)
	s.loaded = true
	s.logger.Info("ERD entities rebuilt",
		zap.String("fetch_id", fetchID),
		zap.Int("workspaces", len(entities.Workspaces)),
		zap.Int("databases", len(entities.Databases)),
		zap.Int("tables", len(entities.Tables)),
		zap.Int("relationships", len(entities.Relationships)))
	return nil
}

func (s *diagramService) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *diagramService) SetWorkspace(sel Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.filter.SetWorkspace(sel)
	return nil
}

func (s *diagramService) SetDatabase(sel Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.filter.SetDatabase(sel)
}

func (s *diagramService) Snapshot() *DiagramSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := s.filter.FilteredTables()
	relationships := s.filter.FilteredRelationships()

	return &DiagramSnapshot{
		SelectedWorkspace: s.filter.Workspace().String(),
		SelectedDatabase:  s.filter.Database().String(),
		Workspaces:        s.filter.WorkspaceOptions(),
		Databases:         s.filter.DatabaseOptions(),
		VisibleTableCount: len(tables),
		Tables:            tables,
		Graph:             DeriveGraph(tables, relationships),
	}
}

func (s *diagramService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
