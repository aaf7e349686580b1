// Package baserow provides a JWT-authenticated client for the Baserow API.
package baserow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/erdview/erd-engine/pkg/apperrors"
	"github.com/erdview/erd-engine/pkg/jsonutil"
	"github.com/erdview/erd-engine/pkg/logging"
	"github.com/erdview/erd-engine/pkg/models"
	"github.com/erdview/erd-engine/pkg/retry"
)

// DefaultAPIURL is the hosted Baserow API base URL.
const DefaultAPIURL = "https://api.baserow.io/api"

const (
	defaultTimeout = 30 * time.Second

	// tokenRefreshSkew re-authenticates this long before the access
	// token's exp claim to avoid racing the expiry mid-request.
	tokenRefreshSkew = 30 * time.Second

	// fallbackTokenTTL is assumed when the exp claim cannot be read.
	// Baserow access tokens live for 10 minutes.
	fallbackTokenTTL = 9 * time.Minute

	maxLoggedBodyLen = 200
)

// applicationTypeDatabase filters workspace applications down to databases.
const applicationTypeDatabase = "database"

// Config holds upstream connection settings.
type Config struct {
	APIURL   string
	Email    string
	Password string
	Timeout  time.Duration
}

// Client talks to the Baserow API. Safe for concurrent use; the JWT access
// token is shared and refreshed under a mutex.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retryCfg   *retry.Config
	logger     *zap.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient creates a Baserow client. Email and password are required;
// authentication is lazy and happens on the first request.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", apperrors.ErrAuthFailed)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryCfg:   retry.DefaultConfig(),
		logger:     logger.Named("baserow"),
	}, nil
}

// statusError is a non-2xx upstream response. 429 and 5xx are transient.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.code, e.body)
}

func (e *statusError) IsRetryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// ============================================================================
// Authentication
// ============================================================================

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Add(tokenRefreshSkew).Before(c.tokenExp) {
		return c.token, nil
	}
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode auth payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/user/token-auth/", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrUpstreamUnavailable, logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read auth response: %s", apperrors.ErrUpstreamUnavailable, logging.SanitizeError(err))
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Token auth failed", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: token auth returned status %d", apperrors.ErrAuthFailed, resp.StatusCode)
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"` // pre-1.x API versions
	}
	if err := json.Unmarshal(body, &tokens); err != nil {
		return "", fmt.Errorf("%w: failed to decode auth response: %v", apperrors.ErrAuthFailed, err)
	}

	token := tokens.AccessToken
	if token == "" {
		token = tokens.Token
	}
	if token == "" {
		return "", fmt.Errorf("%w: auth response carried no token", apperrors.ErrAuthFailed)
	}

	c.token = token
	c.tokenExp = tokenExpiry(token)
	c.logger.Debug("Authenticated with upstream", zap.Time("token_exp", c.tokenExp))
	return token, nil
}

// tokenExpiry reads the exp claim without verifying the signature — the
// client only needs to know when to re-authenticate, not to trust the
// token contents.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(fallbackTokenTTL)
}

func (c *Client) invalidateToken(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == stale {
		c.token = ""
		c.tokenExp = time.Time{}
	}
}

// ============================================================================
// Transport
// ============================================================================

// get performs an authenticated GET, retrying transient failures and
// re-authenticating once on a 401 (expired token mid-request).
func (c *Client) get(ctx context.Context, path string, out any) error {
	return retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		return c.getOnce(ctx, path, out)
	})
}

func (c *Client) getOnce(ctx context.Context, path string, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	body, status, err := c.do(ctx, path, token)
	if err == nil && status == http.StatusUnauthorized {
		c.logger.Debug("Access token rejected, re-authenticating", zap.String("path", path))
		c.invalidateToken(token)
		if token, err = c.ensureToken(ctx); err != nil {
			return err
		}
		body, status, err = c.do(ctx, path, token)
	}
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, path)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: still unauthorized after re-authentication", apperrors.ErrAuthFailed)
	case status != http.StatusOK:
		return &statusError{code: status, body: logging.TruncateString(string(body), maxLoggedBodyLen)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", apperrors.ErrMalformedPayload, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "JWT "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", apperrors.ErrUpstreamUnavailable, logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read %s response: %s", apperrors.ErrUpstreamUnavailable, path, logging.SanitizeError(err))
	}
	return body, resp.StatusCode, nil
}

// ============================================================================
// API operations
// ============================================================================

type wireApplication struct {
	ID        jsonutil.FlexibleID `json:"id"`
	Name      string              `json:"name"`
	Type      string              `json:"type"`
	Workspace struct {
		ID   jsonutil.FlexibleID `json:"id"`
		Name string              `json:"name"`
	} `json:"workspace"`
}

type wireTable struct {
	ID         jsonutil.FlexibleID `json:"id"`
	Name       string              `json:"name"`
	DatabaseID jsonutil.FlexibleID `json:"database_id"`
}

type wireField struct {
	ID             jsonutil.FlexibleID `json:"id"`
	Name           string              `json:"name"`
	Type           string              `json:"type"`
	LinkRowTableID jsonutil.FlexibleID `json:"link_row_table_id"`
	LinkRowTable   *struct {
		Name string `json:"name"`
	} `json:"link_row_table"`
}

// ListWorkspaces returns all workspaces visible to the account.
func (c *Client) ListWorkspaces(ctx context.Context) ([]models.PayloadWorkspace, error) {
	var workspaces []models.PayloadWorkspace
	if err := c.get(ctx, "/workspaces/", &workspaces); err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	return workspaces, nil
}

// ListDatabases returns the database-type applications of a workspace.
// Other application types are filtered out.
func (c *Client) ListDatabases(ctx context.Context, workspaceID int64) ([]models.PayloadDatabase, error) {
	var apps []wireApplication
	path := fmt.Sprintf("/applications/workspace/%d/", workspaceID)
	if err := c.get(ctx, path, &apps); err != nil {
		return nil, fmt.Errorf("failed to list applications for workspace %d: %w", workspaceID, err)
	}

	databases := make([]models.PayloadDatabase, 0, len(apps))
	for _, app := range apps {
		if app.Type != applicationTypeDatabase {
			continue
		}
		db := models.PayloadDatabase{
			ID:            app.ID,
			Name:          app.Name,
			WorkspaceID:   app.Workspace.ID,
			WorkspaceName: app.Workspace.Name,
		}
		if !db.WorkspaceID.Valid {
			db.WorkspaceID = jsonutil.ID(workspaceID)
		}
		databases = append(databases, db)
	}
	return databases, nil
}

// ListTables returns the tables of a database.
func (c *Client) ListTables(ctx context.Context, databaseID int64) ([]models.PayloadTable, error) {
	var tables []wireTable
	path := fmt.Sprintf("/database/tables/database/%d/", databaseID)
	if err := c.get(ctx, path, &tables); err != nil {
		return nil, fmt.Errorf("failed to list tables for database %d: %w", databaseID, err)
	}

	out := make([]models.PayloadTable, 0, len(tables))
	for _, t := range tables {
		pt := models.PayloadTable{ID: t.ID, Name: t.Name, DatabaseID: t.DatabaseID}
		if !pt.DatabaseID.Valid {
			pt.DatabaseID = jsonutil.ID(databaseID)
		}
		out = append(out, pt)
	}
	return out, nil
}

// ListFields returns the fields of a table. Unknown table ids map to
// apperrors.ErrNotFound.
func (c *Client) ListFields(ctx context.Context, tableID int64) ([]models.PayloadField, error) {
	fields, err := c.listFields(ctx, tableID)
	if err != nil {
		return nil, err
	}
	out := make([]models.PayloadField, 0, len(fields))
	for _, f := range fields {
		out = append(out, models.PayloadField{
			ID:             f.ID,
			Name:           f.Name,
			Type:           f.Type,
			LinkRowTableID: f.LinkRowTableID,
		})
	}
	return out, nil
}

func (c *Client) listFields(ctx context.Context, tableID int64) ([]wireField, error) {
	var fields []wireField
	path := fmt.Sprintf("/database/fields/table/%d/", tableID)
	if err := c.get(ctx, path, &fields); err != nil {
		return nil, fmt.Errorf("failed to list fields for table %d: %w", tableID, err)
	}
	return fields, nil
}

// FetchERD traverses workspaces, databases, tables, and fields and
// assembles the raw diagram payload. Link-type fields become directed
// relationships. A failing workspace, database, or table is logged and
// skipped so one broken scope does not take down the whole diagram, but an
// authentication failure aborts the traversal.
func (c *Client) FetchERD(ctx context.Context) (*models.ERDPayload, error) {
	workspaces, err := c.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}

	payload := &models.ERDPayload{
		Tables:        []models.PayloadTable{},
		Relationships: []models.PayloadRelationship{},
		Workspaces:    workspaces,
	}

	for _, ws := range workspaces {
		if !ws.ID.Valid {
			continue
		}
		databases, err := c.ListDatabases(ctx, ws.ID.Value)
		if err != nil {
			if errors.Is(err, apperrors.ErrAuthFailed) {
				return nil, err
			}
			c.logger.Warn("Skipping workspace",
				zap.Int64("workspace_id", ws.ID.Value),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		payload.Databases = append(payload.Databases, databases...)

		for _, db := range databases {
			if err := c.collectDatabase(ctx, ws, db, payload); err != nil {
				if errors.Is(err, apperrors.ErrAuthFailed) {
					return nil, err
				}
				c.logger.Warn("Skipping database",
					zap.Int64("database_id", db.ID.Value),
					zap.String("error", logging.SanitizeError(err)))
			}
		}
	}

	c.logger.Info("Collected ERD payload",
		zap.Int("workspaces", len(payload.Workspaces)),
		zap.Int("databases", len(payload.Databases)),
		zap.Int("tables", len(payload.Tables)),
		zap.Int("relationships", len(payload.Relationships)))
	return payload, nil
}

func (c *Client) collectDatabase(ctx context.Context, ws models.PayloadWorkspace, db models.PayloadDatabase, payload *models.ERDPayload) error {
	tables, err := c.ListTables(ctx, db.ID.Value)
	if err != nil {
		return err
	}

	for _, t := range tables {
		fields, err := c.listFields(ctx, t.ID.Value)
		if err != nil {
			if errors.Is(err, apperrors.ErrAuthFailed) {
				return err
			}
			c.logger.Warn("Skipping table",
				zap.Int64("table_id", t.ID.Value),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}

		pt := models.PayloadTable{
			ID:            t.ID,
			Name:          t.Name,
			DatabaseID:    db.ID,
			DatabaseName:  db.Name,
			WorkspaceID:   ws.ID,
			WorkspaceName: ws.Name,
			Fields:        make([]models.PayloadField, 0, len(fields)),
		}

		for _, f := range fields {
			pt.Fields = append(pt.Fields, models.PayloadField{
				ID:             f.ID,
				Name:           f.Name,
				Type:           f.Type,
				LinkRowTableID: f.LinkRowTableID,
			})

			if f.Type != models.FieldTypeLinkRow {
				continue
			}
			rel := models.PayloadRelationship{
				SourceTableID:   t.ID,
				SourceTableName: t.Name,
				TargetTableID:   f.LinkRowTableID,
				FieldID:         f.ID,
				FieldName:       f.Name,
			}
			if f.LinkRowTable != nil {
				rel.TargetTableName = f.LinkRowTable.Name
			}
			payload.Relationships = append(payload.Relationships, rel)
		}

		payload.Tables = append(payload.Tables, pt)
	}

	return nil
}
