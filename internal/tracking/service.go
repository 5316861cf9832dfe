// Package tracking registers Notion databases for publishing and manages
// their column mapping.
package tracking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuomag9/notionsocial/internal/models"
	"github.com/fuomag9/notionsocial/internal/notion"
	"github.com/fuomag9/notionsocial/internal/store"
)

// EventDatabaseConnected is published after a database is registered.
const EventDatabaseConnected = "database.connected"

var (
	ErrMissingFields     = errors.New("missing required fields")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrDatabaseNotFound  = errors.New("database not found")
	ErrAlreadyConnected  = errors.New("database already connected")
	ErrInvalidConfig     = errors.New("invalid database configuration")
)

// NotionAPI is the part of the Notion API the service calls.
type NotionAPI interface {
	notion.API
	SearchDatabases(ctx context.Context, token string) ([]notion.Database, error)
}

// Stores is the persistence the service needs.
type Stores interface {
	store.WorkspaceStore
	store.DatabaseStore
}

// Publisher pushes live events to a user's open dashboards.
type Publisher interface {
	Publish(userID, eventType string, payload any)
}

// Service implements database registration on top of the Notion API.
type Service struct {
	stores     Stores
	api        NotionAPI
	reconciler *notion.Reconciler
	events     Publisher
	log        zerolog.Logger
}

// NewService creates a service. events may be nil.
func NewService(stores Stores, api NotionAPI, events Publisher, log zerolog.Logger) *Service {
	return &Service{
		stores:     stores,
		api:        api,
		reconciler: notion.NewReconciler(api, log),
		events:     events,
		log:        log.With().Str("component", "tracking").Logger(),
	}
}

// ConnectRequest names the database to register.
type ConnectRequest struct {
	WorkspaceID  string `json:"workspaceId"`
	DatabaseID   string `json:"databaseId"`
	DatabaseName string `json:"databaseName"`
}

// ConnectResult is a registered database and what reconciling it changed.
type ConnectResult struct {
	Database *models.TrackedDatabase `json:"database"`
	Schema   *notion.Result          `json:"schema"`
}

// ConnectDatabase prepares the Notion database schema and registers it with
// the default configuration. When reconciliation fails nothing is stored
// and the returned error wraps notion.ErrSchemaReconciliation.
func (s *Service) ConnectDatabase(ctx context.Context, userID string, req ConnectRequest) (*ConnectResult, error) {
	if req.WorkspaceID == "" || req.DatabaseID == "" || req.DatabaseName == "" {
		return nil, ErrMissingFields
	}
	log := s.log.With().Str("user_id", userID).Str("notion_id", req.DatabaseID).Logger()

	ws, err := s.workspace(ctx, userID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	_, err = s.stores.FindDatabaseByNotionID(ctx, userID, req.DatabaseID)
	switch {
	case err == nil:
		return nil, ErrAlreadyConnected
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to look up database: %w", err)
	}

	schema, err := s.reconciler.Reconcile(ctx, req.DatabaseID, ws.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prepare database schema")
		return nil, err
	}

	db := &models.TrackedDatabase{
		UserID:      userID,
		WorkspaceID: ws.ID,
		NotionID:    req.DatabaseID,
		Name:        req.DatabaseName,
		Active:      true,
	}
	cfg := models.DefaultDatabaseConfig("")
	if err := s.stores.CreateDatabase(ctx, db, &cfg); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAlreadyConnected
		}
		return nil, fmt.Errorf("failed to store database: %w", err)
	}

	log.Info().Str("database_id", db.ID).Msg("Database connected")
	if s.events != nil {
		s.events.Publish(userID, EventDatabaseConnected, db)
	}
	return &ConnectResult{Database: db, Schema: schema}, nil
}

func (s *Service) workspace(ctx context.Context, userID, workspaceID string) (*models.NotionWorkspace, error) {
	ws, err := s.stores.GetWorkspace(ctx, userID, workspaceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return ws, nil
}

// AvailableDatabase is a database shared with the integration that the user
// has not registered yet.
type AvailableDatabase struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Icon       *string   `json:"icon"`
	LastEdited time.Time `json:"lastEdited"`
}

// AvailableDatabases lists the workspace databases not yet tracked, most
// recently edited first.
func (s *Service) AvailableDatabases(ctx context.Context, userID, workspaceID string) ([]AvailableDatabase, error) {
	if workspaceID == "" {
		return nil, ErrMissingFields
	}
	ws, err := s.workspace(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}

	found, err := s.api.SearchDatabases(ctx, ws.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to search databases: %w", err)
	}
	tracked, err := s.stores.TrackedNotionIDs(ctx, userID, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked databases: %w", err)
	}

	out := make([]AvailableDatabase, 0, len(found))
	for _, db := range found {
		if slices.Contains(tracked, db.ID) {
			continue
		}
		title := db.TitleText()
		if title == "" {
			title = "Untitled"
		}
		var icon *string
		if e := db.Emoji(); e != "" {
			icon = &e
		}
		out = append(out, AvailableDatabase{ID: db.ID, Title: title, Icon: icon, LastEdited: db.LastEditedTime})
	}
	return out, nil
}

// Column describes one live column of a tracked database.
type Column struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Type    notion.PropertyType   `json:"type"`
	Options []notion.SelectOption `json:"options"`
}

// DatabaseDetails is a tracked database with its live columns.
type DatabaseDetails struct {
	Database   *models.TrackedDatabase `json:"database"`
	Properties []Column                `json:"properties"`
}

// DatabaseProperties loads a tracked database and reads its columns from
// Notion, sorted by name.
func (s *Service) DatabaseProperties(ctx context.Context, userID, databaseID string) (*DatabaseDetails, error) {
	if databaseID == "" {
		return nil, ErrMissingFields
	}
	db, err := s.database(ctx, userID, databaseID)
	if err != nil {
		return nil, err
	}
	ws, err := s.workspace(ctx, userID, db.WorkspaceID)
	if err != nil {
		return nil, err
	}

	live, err := s.api.RetrieveDatabase(ctx, ws.AccessToken, db.NotionID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve database: %w", err)
	}

	cols := make([]Column, 0, len(live.Properties))
	for name, p := range live.Properties {
		col := Column{ID: p.PropertyID(), Name: name, Type: p.Type()}
		if p.Type() == notion.TypeSelect {
			col.Options = notion.Options(p)
		}
		cols = append(cols, col)
	}
	slices.SortFunc(cols, func(a, b Column) int { return cmp.Compare(a.Name, b.Name) })
	return &DatabaseDetails{Database: db, Properties: cols}, nil
}

func (s *Service) database(ctx context.Context, userID, id string) (*models.TrackedDatabase, error) {
	db, err := s.stores.GetDatabase(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrDatabaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load database: %w", err)
	}
	return db, nil
}

// ConfigUpdate changes the fields that are set and leaves the others.
type ConfigUpdate struct {
	StatusColumn    *string                          `json:"statusColumn"`
	StatusValue     *string                          `json:"statusValue"`
	ContentColumn   *string                          `json:"contentColumn"`
	ImageColumn     *string                          `json:"imageColumn"`
	PlatformColumn  *string                          `json:"platformColumn"`
	DateColumn      *string                          `json:"dateColumn"`
	UpdateStatus    *bool                            `json:"updateStatus"`
	NotifyOnPublish *bool                            `json:"notifyOnPublish"`
	PlatformConfigs map[string]models.PlatformConfig `json:"platformConfigs"`
}

// Empty reports whether the update changes nothing.
func (u ConfigUpdate) Empty() bool {
	return u.StatusColumn == nil && u.StatusValue == nil && u.ContentColumn == nil &&
		u.ImageColumn == nil && u.PlatformColumn == nil && u.DateColumn == nil &&
		u.UpdateStatus == nil && u.NotifyOnPublish == nil && u.PlatformConfigs == nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (u ConfigUpdate) apply(cfg *models.DatabaseConfig) error {
	setString(&cfg.StatusColumn, u.StatusColumn)
	setString(&cfg.StatusValue, u.StatusValue)
	setString(&cfg.ContentColumn, u.ContentColumn)
	setString(&cfg.ImageColumn, u.ImageColumn)
	setString(&cfg.PlatformColumn, u.PlatformColumn)
	setString(&cfg.DateColumn, u.DateColumn)
	if u.UpdateStatus != nil {
		cfg.UpdateStatus = *u.UpdateStatus
	}
	if u.NotifyOnPublish != nil {
		cfg.NotifyOnPublish = *u.NotifyOnPublish
	}
	if u.PlatformConfigs == nil {
		return nil
	}

	merged, err := cfg.PlatformConfigs()
	if err != nil {
		return err
	}
	for name, pc := range u.PlatformConfigs {
		merged[name] = pc
	}
	return cfg.SetPlatformConfigs(merged)
}

// UpdateConfig applies update to the configuration of a tracked database.
// Platform toggles are merged into the stored ones.
func (s *Service) UpdateConfig(ctx context.Context, userID, databaseID string, update ConfigUpdate) (*models.DatabaseConfig, error) {
	if databaseID == "" {
		return nil, ErrMissingFields
	}
	if update.Empty() {
		return nil, fmt.Errorf("%w: empty update", ErrInvalidConfig)
	}

	db, err := s.database(ctx, userID, databaseID)
	if err != nil {
		return nil, err
	}

	cfg := models.DefaultDatabaseConfig(db.ID)
	if db.Config != nil {
		cfg = *db.Config
	}
	if err := update.apply(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := s.stores.UpdateDatabaseConfig(ctx, &cfg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDatabaseNotFound
		}
		return nil, fmt.Errorf("failed to store configuration: %w", err)
	}
	s.log.Info().Str("user_id", userID).Str("database_id", db.ID).Msg("Database configuration updated")
	return &cfg, nil
}
